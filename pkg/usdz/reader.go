package usdz

import (
	"archive/zip"
	"fmt"
	"strings"

	"github.com/usdtools/usdthumb/pkg/usd"
)

// OpenStage parses the archive's root layer: the first .usda or .usd
// member, which by convention holds the default prim the rest of the
// archive hangs off. Binary (.usdc) root layers are not supported by
// this reader.
func OpenStage(archivePath string) (*usd.Stage, error) {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		ext := strings.ToLower(entry.Name)
		if !strings.HasSuffix(ext, ".usda") && !strings.HasSuffix(ext, ".usd") {
			continue
		}
		rc, err := entry.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open archive member %s: %w", entry.Name, err)
		}
		stage, err := usd.ParseLayer(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("%s[%s]: %w", archivePath, entry.Name, err)
		}
		stage.FilePath = archivePath
		return stage, nil
	}
	return nil, fmt.Errorf("no usda root layer found in archive %s", archivePath)
}
