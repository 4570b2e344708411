package usdz

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenStageReadsRootLayer(t *testing.T) {
	dir := t.TempDir()
	layer := writeFile(t, dir, "chair.usda", []byte(`#usda 1.0
(
    defaultPrim = "Chair"
    upAxis = "Z"
)

def Xform "Chair"
{
    def Mesh "Seat"
    {
        float3[] extent = [(-1, -1, 0), (1, 1, 0.5)]
    }
}
`))
	texture := writeFile(t, dir, "wood.png", []byte{0x89, 'P', 'N', 'G'})

	archive := filepath.Join(dir, "chair.usdz")
	if err := Pack(archive, layer, texture); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	stage, err := OpenStage(archive)
	if err != nil {
		t.Fatalf("OpenStage: %v", err)
	}
	if stage.DefaultPrim != "Chair" {
		t.Errorf("defaultPrim = %q", stage.DefaultPrim)
	}
	if stage.UpAxis != "Z" {
		t.Errorf("upAxis = %q", stage.UpAxis)
	}
	if stage.FilePath != archive {
		t.Errorf("FilePath = %q, want %q", stage.FilePath, archive)
	}

	bounds, ok := stage.WorldBounds(0)
	if !ok {
		t.Fatal("expected bounds from the archived layer")
	}
	if bounds.Max.Z != 0.5 {
		t.Errorf("bounds.Max.Z = %g", bounds.Max.Z)
	}
}

func TestOpenStageNoRootLayer(t *testing.T) {
	dir := t.TempDir()
	texture := writeFile(t, dir, "wood.png", []byte{0x89, 'P', 'N', 'G'})

	archive := filepath.Join(dir, "textures.usdz")
	if err := Pack(archive, texture); err != nil {
		t.Fatalf("Pack: %v", err)
	}

	if _, err := OpenStage(archive); err == nil {
		t.Fatal("archive without a usda layer should not open as a stage")
	}
}

func TestOpenStageMissingArchive(t *testing.T) {
	if _, err := OpenStage(filepath.Join(t.TempDir(), "nope.usdz")); err == nil {
		t.Fatal("expected an error for a missing archive")
	}
}

func TestOpenStageNotAZip(t *testing.T) {
	dir := t.TempDir()
	bogus := filepath.Join(dir, "bogus.usdz")
	if err := os.WriteFile(bogus, []byte("not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenStage(bogus); err == nil {
		t.Fatal("expected an error for a non-zip file")
	}
}
