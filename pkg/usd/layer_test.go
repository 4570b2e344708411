package usd

import (
	"math"
	"strings"
	"testing"

	"github.com/usdtools/usdthumb/pkg/framing"
	"github.com/usdtools/usdthumb/pkg/geometry"
)

func frameBox(t *testing.T, s framing.Settings) framing.Camera {
	t.Helper()
	box := geometry.NewBoundingBox(geometry.NewVector3(-1, -1, -1), geometry.NewVector3(1, 1, 1))
	cam, err := framing.Frame(box, s)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	return cam
}

func TestComposeRenderLayerEncoding(t *testing.T) {
	cam := frameBox(t, framing.DefaultSettings())
	layer := ComposeRenderLayer("/assets/teapot.usda", "Teapot", "Y", cam)
	text := string(layer.Encode())

	for _, want := range []string{
		"#usda 1.0",
		`defaultPrim = "Teapot"`,
		`upAxis = "Y"`,
		"@/assets/teapot.usda@",
		`def Camera "ThumbnailCamera"`,
		`token projection = "perspective"`,
		"float focalLength = ",
		"matrix4d xformOp:transform = ",
		`uniform token[] xformOpOrder = ["xformOp:transform"]`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("encoded layer missing %q:\n%s", want, text)
		}
	}
}

func TestComposeRenderLayerRoundTrips(t *testing.T) {
	cam := frameBox(t, framing.DefaultSettings())
	layer := ComposeRenderLayer("subject.usda", "Subject", "Z", cam)

	stage, err := ParseLayer(strings.NewReader(string(layer.Encode())))
	if err != nil {
		t.Fatalf("composed layer does not parse back: %v", err)
	}
	if stage.DefaultPrim != "Subject" {
		t.Errorf("defaultPrim = %q", stage.DefaultPrim)
	}
	if stage.UpAxis != "Z" {
		t.Errorf("upAxis = %q", stage.UpAxis)
	}
	if len(stage.Roots) != 1 || stage.Roots[0].Type != "Camera" || stage.Roots[0].Name != CameraPrimName {
		t.Fatalf("expected a single %s camera prim, got %+v", CameraPrimName, stage.Roots)
	}
}

func TestComposeRenderLayerOrthographic(t *testing.T) {
	s := framing.DefaultSettings()
	s.Orthographic = true
	cam := frameBox(t, s)

	text := string(ComposeRenderLayer("s.usda", "S", "", cam).Encode())
	if !strings.Contains(text, `token projection = "orthographic"`) {
		t.Errorf("missing orthographic projection:\n%s", text)
	}
	if strings.Contains(text, "focalLength") {
		t.Errorf("orthographic camera should not author focalLength:\n%s", text)
	}
}

func TestComposeWrapperLayer(t *testing.T) {
	layer := ComposeWrapperLayer("model.usdz", "Model", "model.0.png")
	text := string(layer.Encode())

	for _, want := range []string{
		"@model.usdz@",
		`over "Model"`,
		`prepend apiSchemas = ["AssetPreviewsAPI"]`,
		"asset defaultImage = @model.0.png@",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("wrapper layer missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "def Camera") {
		t.Error("wrapper layer should not contain a camera")
	}
}

func TestEncodedFocalLengthMatchesFOV(t *testing.T) {
	cam := frameBox(t, framing.DefaultSettings())

	// focalLength = verticalAperture / (2 tan(fov/2)) reproduces the
	// framing field of view on USD's filmback.
	wantFocal := defaultVerticalAperture / (2 * math.Tan(cam.FOV*math.Pi/360))
	text := string(ComposeRenderLayer("s.usda", "S", "", cam).Encode())
	if !strings.Contains(text, "float focalLength = "+f(wantFocal)) {
		t.Errorf("focal length mismatch, want %s in:\n%s", f(wantFocal), text)
	}
}
