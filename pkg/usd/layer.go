// Package usd implements the small slice of the USD text format this
// tool needs: reading enough of a .usda layer to compute world bounds,
// composing ephemeral overlay layers with a generated camera, and
// binding thumbnail metadata onto a layer's default prim.
package usd

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/usdtools/usdthumb/pkg/framing"
)

// CameraPrimName is the name of the camera prim authored into composed
// render layers. usdrecord is pointed at CameraPrimPath.
const CameraPrimName = "ThumbnailCamera"

// CameraPrimPath is the stage path of the authored camera.
const CameraPrimPath = "/" + CameraPrimName

// USD's default vertical filmback aperture in millimeters. Focal length
// is derived against it so the authored camera reproduces the framing
// field of view exactly.
const defaultVerticalAperture = 15.2908

// Layer is an authorable usda document. It covers only the document
// shapes this tool writes: a sublayered subject plus a camera (render
// layers), or a sublayered archive plus a thumbnail override (wrapper
// layers).
type Layer struct {
	DefaultPrim string
	UpAxis      string
	SubLayers   []string

	Camera *framing.Camera

	// ThumbnailOver names a prim to override with thumbnail metadata,
	// pointing at ThumbnailImage.
	ThumbnailOver  string
	ThumbnailImage string
}

// ComposeRenderLayer builds the ephemeral layer handed to the renderer:
// it sublayers the subject and defines the thumbnail camera.
func ComposeRenderLayer(subjectPath, defaultPrim, upAxis string, cam framing.Camera) *Layer {
	return &Layer{
		DefaultPrim: defaultPrim,
		UpAxis:      upAxis,
		SubLayers:   []string{subjectPath},
		Camera:      &cam,
	}
}

// ComposeWrapperLayer builds the new top-level document for archive
// subjects: it sublayers the unmodified archive and overrides its
// default prim with the thumbnail binding.
func ComposeWrapperLayer(archivePath, defaultPrim, imagePath string) *Layer {
	return &Layer{
		DefaultPrim:    defaultPrim,
		SubLayers:      []string{archivePath},
		ThumbnailOver:  defaultPrim,
		ThumbnailImage: imagePath,
	}
}

// Encode serializes the layer as usda text.
func (l *Layer) Encode() []byte {
	var b strings.Builder
	b.WriteString("#usda 1.0\n(\n")
	if l.DefaultPrim != "" {
		fmt.Fprintf(&b, "    defaultPrim = %q\n", l.DefaultPrim)
	}
	if l.UpAxis != "" {
		fmt.Fprintf(&b, "    upAxis = %q\n", l.UpAxis)
	}
	if len(l.SubLayers) > 0 {
		b.WriteString("    subLayers = [\n")
		for _, sub := range l.SubLayers {
			fmt.Fprintf(&b, "        @%s@\n", sub)
		}
		b.WriteString("    ]\n")
	}
	b.WriteString(")\n")

	if l.Camera != nil {
		b.WriteString("\n")
		encodeCamera(&b, *l.Camera)
	}
	if l.ThumbnailOver != "" {
		b.WriteString("\n")
		fmt.Fprintf(&b, "over %q (\n", l.ThumbnailOver)
		for _, line := range thumbnailMetadataLines(l.ThumbnailImage) {
			b.WriteString("    " + line + "\n")
		}
		b.WriteString(")\n{\n}\n")
	}
	return []byte(b.String())
}

// WriteFile serializes the layer to path.
func (l *Layer) WriteFile(path string) error {
	if err := os.WriteFile(path, l.Encode(), 0o644); err != nil {
		return fmt.Errorf("failed to write layer: %w", err)
	}
	return nil
}

// encodeCamera authors a UsdGeom Camera prim for the framing result.
// The camera's local frame has +X right, +Y up and looks down -Z, so
// the transform rows are the camera basis expressed in world space.
func encodeCamera(b *strings.Builder, cam framing.Camera) {
	fmt.Fprintf(b, "def Camera %q\n{\n", CameraPrimName)
	fmt.Fprintf(b, "    float2 clippingRange = (%s, %s)\n", f(cam.Near), f(cam.Far))

	if cam.Orthographic {
		b.WriteString("    token projection = \"orthographic\"\n")
		// Orthographic apertures are tenths of a scene unit.
		h := cam.OrthoAperture * 10
		v := cam.OrthoAperture / cam.AspectRatio * 10
		fmt.Fprintf(b, "    float horizontalAperture = %s\n", f(h))
		fmt.Fprintf(b, "    float verticalAperture = %s\n", f(v))
	} else {
		b.WriteString("    token projection = \"perspective\"\n")
		focal := defaultVerticalAperture / (2 * tanHalfDegrees(cam.FOV))
		fmt.Fprintf(b, "    float focalLength = %s\n", f(focal))
		fmt.Fprintf(b, "    float horizontalAperture = %s\n", f(defaultVerticalAperture*cam.AspectRatio))
		fmt.Fprintf(b, "    float verticalAperture = %s\n", f(defaultVerticalAperture))
	}

	x, y := cam.Right, cam.Up
	z := cam.Forward.Neg()
	p := cam.Position
	fmt.Fprintf(b, "    matrix4d xformOp:transform = ( (%s, %s, %s, 0), (%s, %s, %s, 0), (%s, %s, %s, 0), (%s, %s, %s, 1) )\n",
		f(x.X), f(x.Y), f(x.Z),
		f(y.X), f(y.Y), f(y.Z),
		f(z.X), f(z.Y), f(z.Z),
		f(p.X), f(p.Y), f(p.Z))
	b.WriteString("    uniform token[] xformOpOrder = [\"xformOp:transform\"]\n")
	b.WriteString("}\n")
}

// thumbnailMetadataLines is the AssetPreviewsAPI metadata block written
// into prim metadata, one line per element, without indentation.
func thumbnailMetadataLines(imagePath string) []string {
	return []string{
		`prepend apiSchemas = ["AssetPreviewsAPI"]`,
		`assetInfo = {`,
		`    dictionary previews = {`,
		`        dictionary thumbnails = {`,
		`            dictionary default = {`,
		fmt.Sprintf(`                asset defaultImage = @%s@`, imagePath),
		`            }`,
		`        }`,
		`    }`,
		`}`,
	}
}

func f(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func tanHalfDegrees(fovDegrees float64) float64 {
	return math.Tan(fovDegrees * math.Pi / 360)
}
