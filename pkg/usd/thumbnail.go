package usd

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var defaultImageRe = regexp.MustCompile(`(asset\s+defaultImage\s*=\s*@)[^@]*(@)`)

// BindThumbnail writes imagePath into the thumbnail metadata slot of
// the layer's default prim, editing the file in place and leaving every
// unrelated byte untouched. An existing thumbnail binding on the
// default prim is replaced; otherwise the AssetPreviewsAPI metadata
// block is inserted into the prim's metadata. Bindings on other prims
// are never touched.
func BindThumbnail(path, defaultPrim, imagePath string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read layer: %w", err)
	}

	updated, err := bindThumbnail(data, defaultPrim, imagePath)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat layer: %w", err)
	}
	if err := os.WriteFile(path, updated, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write layer: %w", err)
	}
	return nil
}

func bindThumbnail(data []byte, defaultPrim, imagePath string) ([]byte, error) {
	headerRe := regexp.MustCompile(`(?m)^([ \t]*)(?:def|over)(?:[ \t]+\w+)?[ \t]+"` + regexp.QuoteMeta(defaultPrim) + `"`)
	loc := headerRe.FindSubmatchIndex(data)
	if loc == nil {
		return nil, fmt.Errorf("default prim %q not found in layer", defaultPrim)
	}
	headerEnd := loc[1]
	indent := string(data[loc[2]:loc[3]])
	inner := indent + "    "

	// Find the first structural byte after the prim header to decide
	// whether a metadata parenthesis already exists.
	next := headerEnd
	for next < len(data) && isSpace(data[next]) {
		next++
	}

	if next < len(data) && data[next] == '(' {
		metaEnd := closeParen(data, next)
		meta := data[next:metaEnd]
		if defaultImageRe.Match(meta) {
			replaced := defaultImageRe.ReplaceAll(meta, []byte("${1}"+imagePath+"${2}"))
			out := make([]byte, 0, len(data)-len(meta)+len(replaced))
			out = append(out, data[:next]...)
			out = append(out, replaced...)
			out = append(out, data[metaEnd:]...)
			return out, nil
		}
	}

	lines := thumbnailMetadataLines(imagePath)
	for i, line := range lines {
		lines[i] = inner + line
	}
	blockBody := strings.Join(lines, "\n")

	var insertAt int
	var block string
	if next < len(data) && data[next] == '(' {
		insertAt = next + 1
		block = "\n" + blockBody
	} else {
		insertAt = headerEnd
		block = " (\n" + blockBody + "\n" + indent + ")"
	}

	out := make([]byte, 0, len(data)+len(block))
	out = append(out, data[:insertAt]...)
	out = append(out, block...)
	out = append(out, data[insertAt:]...)
	return out, nil
}

// closeParen returns the index just past the parenthesis block opening
// at open, or len(data) when the block never closes.
func closeParen(data []byte, open int) int {
	depth := 0
	for i := open; i < len(data); i++ {
		switch data[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i + 1
			}
		}
	}
	return len(data)
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
