package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/usdtools/usdthumb/internal/config"
	"github.com/usdtools/usdthumb/pkg/framing"
	"github.com/usdtools/usdthumb/pkg/render"
	"github.com/usdtools/usdthumb/pkg/usdz"
)

const subjectText = `#usda 1.0
(
    defaultPrim = "Teapot"
    upAxis = "Y"
)

def Xform "Teapot"
{
    def Mesh "Body"
    {
        float3[] extent = [(-1, -1, -1), (1, 1, 1)]
    }
}
`

const emptySubjectText = `#usda 1.0
(
    defaultPrim = "Empty"
)

def Xform "Empty"
{
}
`

// stubRenderer stands in for usdrecord: it records the composed layer
// and writes a placeholder image where the real renderer would.
type stubRenderer struct {
	calls        int
	layerPath    string
	layerContent []byte
	cameraPath   string
	opts         render.Options
	fail         error
}

func (s *stubRenderer) Render(_ context.Context, layerPath, cameraPath, pattern string, opts render.Options) (string, error) {
	s.calls++
	s.layerPath = layerPath
	s.cameraPath = cameraPath
	s.opts = opts
	s.layerContent, _ = os.ReadFile(layerPath)
	if s.fail != nil {
		return "", s.fail
	}
	image := strings.Replace(pattern, "#", strconv.Itoa(opts.Frame), 1)
	if err := os.WriteFile(image, []byte("fake-png"), 0o644); err != nil {
		return "", err
	}
	return image, nil
}

func newTestPipeline(t *testing.T, subject string, createArchive bool, stub *stubRenderer) *Pipeline {
	t.Helper()
	p, err := New(Options{
		SubjectPath:   subject,
		CreateArchive: createArchive,
		Config:        config.Default(),
		Renderer:      stub,
		Logger:        zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func writeSubject(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunLayerSubject(t *testing.T) {
	dir := t.TempDir()
	subject := writeSubject(t, dir, "teapot.usda", subjectText)
	stub := &stubRenderer{}

	out, err := newTestPipeline(t, subject, false, stub).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantImage := filepath.Join(dir, "renders", "teapot.0.png")
	if out.ImagePath != wantImage {
		t.Errorf("image = %q, want %q", out.ImagePath, wantImage)
	}
	if _, err := os.Stat(wantImage); err != nil {
		t.Fatalf("image missing: %v", err)
	}
	if out.WrapperLayer != "" {
		t.Errorf("no wrapper expected for an in-place subject, got %q", out.WrapperLayer)
	}
	if out.Archive != "" {
		t.Errorf("no archive requested, got %q", out.Archive)
	}

	// The subject itself now carries the binding, relative to its dir.
	data, _ := os.ReadFile(subject)
	if !strings.Contains(string(data), "asset defaultImage = @renders/teapot.0.png@") {
		t.Errorf("subject not bound:\n%s", data)
	}

	// The composed layer sublayered the subject and held the camera.
	composed := string(stub.layerContent)
	if !strings.Contains(composed, "@"+subject+"@") {
		t.Errorf("composed layer does not sublayer the subject:\n%s", composed)
	}
	if !strings.Contains(composed, `def Camera "ThumbnailCamera"`) {
		t.Errorf("composed layer has no camera:\n%s", composed)
	}
	if stub.cameraPath != "/ThumbnailCamera" {
		t.Errorf("camera path = %q", stub.cameraPath)
	}

	// The ephemeral layer is cleaned up after the run.
	if _, err := os.Stat(stub.layerPath); !os.IsNotExist(err) {
		t.Errorf("temp render layer %s not cleaned up", stub.layerPath)
	}
}

func TestRunArchiveSubject(t *testing.T) {
	dir := t.TempDir()
	inner := writeSubject(t, dir, "teapot.usda", subjectText)
	archive := filepath.Join(dir, "teapot.usdz")
	if err := usdz.Pack(archive, inner); err != nil {
		t.Fatalf("Pack: %v", err)
	}
	original, _ := os.ReadFile(archive)

	stub := &stubRenderer{}
	out, err := newTestPipeline(t, archive, false, stub).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wrapper := filepath.Join(dir, "teapot_Thumbnail.usda")
	if out.WrapperLayer != wrapper {
		t.Errorf("wrapper = %q, want %q", out.WrapperLayer, wrapper)
	}
	data, err := os.ReadFile(wrapper)
	if err != nil {
		t.Fatalf("wrapper missing: %v", err)
	}
	if !strings.Contains(string(data), "@teapot.usdz@") {
		t.Errorf("wrapper does not reference the archive:\n%s", data)
	}
	if !strings.Contains(string(data), "asset defaultImage = @renders/teapot.0.png@") {
		t.Errorf("wrapper has no thumbnail binding:\n%s", data)
	}

	// The archive itself is byte-for-byte unmodified.
	after, _ := os.ReadFile(archive)
	if !bytes.Equal(original, after) {
		t.Error("archive subject was modified")
	}
}

func TestRunEmptySubject(t *testing.T) {
	dir := t.TempDir()
	subject := writeSubject(t, dir, "empty.usda", emptySubjectText)
	stub := &stubRenderer{}

	_, err := newTestPipeline(t, subject, false, stub).Run(context.Background())
	if !errors.Is(err, framing.ErrDegenerateSubject) {
		t.Fatalf("expected ErrDegenerateSubject, got %v", err)
	}
	if stub.calls != 0 {
		t.Error("renderer should not run for an empty subject")
	}
	if _, statErr := os.Stat(filepath.Join(dir, "renders")); statErr == nil {
		t.Error("no output directory should be created on failure")
	}
}

func TestRunCreateArchiveResult(t *testing.T) {
	dir := t.TempDir()
	subject := writeSubject(t, dir, "teapot.usda", subjectText)
	stub := &stubRenderer{}

	out, err := newTestPipeline(t, subject, true, stub).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantArchive := filepath.Join(dir, "teapot_Thumbnail.usdz")
	if out.Archive != wantArchive {
		t.Fatalf("archive = %q, want %q", out.Archive, wantArchive)
	}

	stage, err := usdz.OpenStage(wantArchive)
	if err != nil {
		t.Fatalf("result archive unreadable: %v", err)
	}
	if stage.DefaultPrim != "Teapot" {
		t.Errorf("archived layer defaultPrim = %q", stage.DefaultPrim)
	}

	// Inside the archive entries resolve by name, so the binding uses
	// the bare image name.
	data, _ := os.ReadFile(subject)
	if !strings.Contains(string(data), "asset defaultImage = @teapot.0.png@") {
		t.Errorf("archived subject should bind by base name:\n%s", data)
	}
}

func TestRunRendererFailure(t *testing.T) {
	dir := t.TempDir()
	subject := writeSubject(t, dir, "teapot.usda", subjectText)
	before, _ := os.ReadFile(subject)

	stub := &stubRenderer{fail: &render.InvocationError{Output: "boom", Err: errors.New("exit 1")}}
	_, err := newTestPipeline(t, subject, false, stub).Run(context.Background())

	var invErr *render.InvocationError
	if !errors.As(err, &invErr) {
		t.Fatalf("expected InvocationError, got %v", err)
	}

	// Fail-fast: no binding applied, temp layer cleaned up.
	after, _ := os.ReadFile(subject)
	if !bytes.Equal(before, after) {
		t.Error("subject must not be modified when rendering fails")
	}
	if _, statErr := os.Stat(stub.layerPath); !os.IsNotExist(statErr) {
		t.Errorf("temp render layer %s not cleaned up on failure", stub.layerPath)
	}
}

func TestClassifySubject(t *testing.T) {
	cases := map[string]struct {
		kind SubjectKind
		ok   bool
	}{
		"model.usda":  {SubjectLayer, true},
		"model.usd":   {SubjectLayer, true},
		"MODEL.USDZ":  {SubjectArchive, true},
		"model.usdz":  {SubjectArchive, true},
		"model.usdc":  {0, false},
		"model.obj":   {0, false},
		"no-ext-file": {0, false},
	}
	for path, want := range cases {
		kind, err := ClassifySubject(path)
		if want.ok && err != nil {
			t.Errorf("%s: unexpected error %v", path, err)
			continue
		}
		if !want.ok {
			if err == nil {
				t.Errorf("%s: expected error", path)
			}
			continue
		}
		if kind != want.kind {
			t.Errorf("%s: kind = %v, want %v", path, kind, want.kind)
		}
	}
}
