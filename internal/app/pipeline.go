// Package app wires the thumbnail pipeline together: resolve the
// subject's extent, frame a camera, compose a render layer, invoke the
// renderer, bind the image and optionally package the results.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/usdtools/usdthumb/internal/config"
	"github.com/usdtools/usdthumb/pkg/framing"
	"github.com/usdtools/usdthumb/pkg/render"
	"github.com/usdtools/usdthumb/pkg/usd"
	"github.com/usdtools/usdthumb/pkg/usdz"
)

// SubjectKind distinguishes subjects that can be edited in place from
// read-only archives, decided once when the pipeline is built.
type SubjectKind int

const (
	// SubjectLayer is a text layer (.usd/.usda) whose thumbnail
	// metadata is written into the file itself.
	SubjectLayer SubjectKind = iota
	// SubjectArchive is a .usdz archive, which is never modified; the
	// thumbnail binding goes into a new wrapper layer instead.
	SubjectArchive
)

// ClassifySubject maps a subject path to its kind.
func ClassifySubject(path string) (SubjectKind, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".usd", ".usda":
		return SubjectLayer, nil
	case ".usdz":
		return SubjectArchive, nil
	case ".usdc":
		return 0, fmt.Errorf("binary usd crate files are not supported: %s", path)
	default:
		return 0, fmt.Errorf("unsupported subject type %q (expected .usd, .usda or .usdz)", filepath.Ext(path))
	}
}

// Renderer records a frame of a composed layer. *render.Invoker is the
// production implementation; tests substitute their own.
type Renderer interface {
	Render(ctx context.Context, layerPath, cameraPath, outputPattern string, opts render.Options) (string, error)
}

// OutputSet lists the files a successful run produced.
type OutputSet struct {
	// ImagePath is the rendered thumbnail image.
	ImagePath string
	// WrapperLayer is the new document carrying the thumbnail binding
	// for archive subjects. Empty for in-place subjects.
	WrapperLayer string
	// Archive is the combined usdz result, when requested.
	Archive string
}

// Options configures a pipeline run.
type Options struct {
	SubjectPath   string
	CreateArchive bool
	Config        config.Config
	Renderer      Renderer // nil selects the usdrecord invoker
	Logger        zerolog.Logger
}

// Pipeline executes one thumbnail generation end to end.
type Pipeline struct {
	subject  string
	kind     SubjectKind
	archive  bool
	cfg      config.Config
	renderer Renderer
	log      zerolog.Logger
}

// New builds a pipeline for the subject, resolving its kind up front.
func New(opts Options) (*Pipeline, error) {
	kind, err := ClassifySubject(opts.SubjectPath)
	if err != nil {
		return nil, err
	}
	renderer := opts.Renderer
	if renderer == nil {
		renderer = &render.Invoker{}
	}
	return &Pipeline{
		subject:  opts.SubjectPath,
		kind:     kind,
		archive:  opts.CreateArchive,
		cfg:      opts.Config,
		renderer: renderer,
		log:      opts.Logger,
	}, nil
}

// Run executes the pipeline. It is fail-fast: the first error aborts
// the run, and the temporary composed layer is removed on every exit
// path. On success the returned OutputSet names everything produced.
func (p *Pipeline) Run(ctx context.Context) (*OutputSet, error) {
	subject, err := filepath.Abs(p.subject)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve subject path: %w", err)
	}

	p.log.Info().Str("subject", subject).Msg("resolving extent")
	var stage *usd.Stage
	switch p.kind {
	case SubjectLayer:
		stage, err = usd.OpenLayer(subject)
	case SubjectArchive:
		stage, err = usdz.OpenStage(subject)
	}
	if err != nil {
		return nil, err
	}

	defaultPrim := stage.DefaultPrim
	if defaultPrim == "" {
		if len(stage.Roots) == 0 {
			return nil, fmt.Errorf("%s: layer has no default prim and no root prims", subject)
		}
		defaultPrim = stage.Roots[0].Name
	}

	bounds, ok := stage.WorldBounds(float64(p.cfg.Frame))
	if !ok {
		return nil, fmt.Errorf("%s: %w", subject, framing.ErrDegenerateSubject)
	}
	p.log.Info().
		Str("min", bounds.Min.String()).
		Str("max", bounds.Max.String()).
		Msg("extent resolved")

	cam, err := framing.Frame(bounds, p.cfg.FramingSettings(stage.UpAxis))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", subject, err)
	}
	p.log.Info().
		Float64("distance", cam.Distance).
		Str("position", cam.Position.String()).
		Msg("camera framed")

	tempDir, err := os.MkdirTemp("", "usdthumb-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	stem := subjectStem(subject)
	renderLayerPath := filepath.Join(tempDir, stem+"_render.usda")
	renderLayer := usd.ComposeRenderLayer(subject, defaultPrim, stage.UpAxis, cam)
	if err := renderLayer.WriteFile(renderLayerPath); err != nil {
		return nil, err
	}

	rendersDir := p.cfg.OutputDir
	if rendersDir == "" {
		rendersDir = "renders"
	}
	if !filepath.IsAbs(rendersDir) {
		rendersDir = filepath.Join(filepath.Dir(subject), rendersDir)
	}
	if err := os.MkdirAll(rendersDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	p.log.Info().Str("layer", renderLayerPath).Msg("rendering")
	renderCtx, cancel := context.WithTimeout(ctx, p.cfg.RenderTimeout())
	defer cancel()
	imagePath, err := p.renderer.Render(renderCtx, renderLayerPath, usd.CameraPrimPath,
		filepath.Join(rendersDir, stem+".#.png"),
		render.Options{Frame: p.cfg.Frame, Width: p.cfg.ImageWidth, Backend: p.cfg.Renderer})
	if err != nil {
		return nil, err
	}
	p.log.Info().Str("image", imagePath).Msg("image rendered")

	out := &OutputSet{ImagePath: imagePath}
	subjectDir := filepath.Dir(subject)

	// Inside a packaged archive entries resolve by base name; loose
	// layers reference the image relative to their own location.
	imageRef := filepath.Base(imagePath)
	if !p.archive {
		if rel, err := filepath.Rel(subjectDir, imagePath); err == nil {
			imageRef = rel
		} else {
			imageRef = imagePath
		}
	}

	switch p.kind {
	case SubjectLayer:
		if err := usd.BindThumbnail(subject, defaultPrim, imageRef); err != nil {
			return nil, err
		}
	case SubjectArchive:
		wrapper := usd.ComposeWrapperLayer(filepath.Base(subject), defaultPrim, imageRef)
		wrapperPath := filepath.Join(subjectDir, stem+"_Thumbnail.usda")
		if err := wrapper.WriteFile(wrapperPath); err != nil {
			return nil, err
		}
		out.WrapperLayer = wrapperPath
	}
	p.log.Info().Msg("thumbnail bound")

	if p.archive {
		archivePath := filepath.Join(subjectDir, stem+"_Thumbnail.usdz")
		var files []string
		if p.kind == SubjectArchive {
			files = []string{out.WrapperLayer, subject, imagePath}
		} else {
			files = []string{subject, imagePath}
		}
		if err := usdz.Pack(archivePath, files...); err != nil {
			return nil, err
		}
		out.Archive = archivePath
		p.log.Info().Str("archive", archivePath).Msg("archive packaged")
	}

	return out, nil
}

func subjectStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
