package usd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/usdtools/usdthumb/pkg/geometry"
)

// Prim is one node of a parsed layer's prim hierarchy, carrying just
// the attributes needed for bounds computation.
type Prim struct {
	Type string
	Name string
	Path string

	// Extent is the authored local-space extent, if any.
	Extent *geometry.BoundingBox
	// Points are authored point positions, consulted when no extent is
	// authored on the prim.
	Points []geometry.Vector3
	// Translate is the prim's xformOp:translate offset.
	Translate geometry.Vector3
	// Invisible marks prims authored with visibility = "invisible";
	// their whole subtree is excluded from bounds.
	Invisible bool

	Children []*Prim
}

// Stage is a read-only view of a parsed usda layer.
type Stage struct {
	FilePath    string
	DefaultPrim string
	UpAxis      string
	Roots       []*Prim
}

var (
	primHeaderRe  = regexp.MustCompile(`^\s*(def|over|class)(?:\s+([A-Za-z_]\w*))?\s+"([^"]+)"`)
	defaultPrimRe = regexp.MustCompile(`^\s*defaultPrim\s*=\s*"([^"]+)"`)
	upAxisRe      = regexp.MustCompile(`^\s*upAxis\s*=\s*"([^"]+)"`)
	extentRe      = regexp.MustCompile(`^\s*float3\[\]\s+extent\s*=\s*\[`)
	pointsRe      = regexp.MustCompile(`^\s*point3f\[\]\s+points\s*=\s*\[`)
	translateRe   = regexp.MustCompile(`^\s*(?:double3|float3)\s+xformOp:translate\s*=\s*\(([^)]*)\)`)
	invisibleRe   = regexp.MustCompile(`^\s*(?:uniform\s+)?token\s+visibility\s*=\s*"invisible"`)
	tupleRe       = regexp.MustCompile(`\(([^)]*)\)`)
)

// OpenLayer parses a usda text layer from disk.
func OpenLayer(path string) (*Stage, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open layer: %w", err)
	}
	defer file.Close()

	stage, err := ParseLayer(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	stage.FilePath = path
	return stage, nil
}

// ParseLayer reads the usda subset: layer metadata (defaultPrim,
// upAxis), the prim hierarchy, and per-prim extent, points, translate
// and visibility. Everything else is skipped structurally. Only
// default-time values are read; timeSamples blocks are ignored.
func ParseLayer(r io.Reader) (*Stage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("empty layer")
	}
	if !strings.HasPrefix(strings.TrimSpace(scanner.Text()), "#usda") {
		return nil, fmt.Errorf("not a usda text layer (missing #usda cookie)")
	}

	p := &layerParser{stage: &Stage{}}
	for scanner.Scan() {
		if err := p.line(scanner.Text()); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading layer: %w", err)
	}
	return p.stage, nil
}

type layerParser struct {
	stage *Stage

	stack   []*Prim // open prim bodies, outermost first
	pending *Prim   // prim announced, body brace not yet seen

	parenDepth  int // inside layer or prim metadata parentheses
	inLayerMeta bool
	sawPrim     bool

	valueDepth int // inside a skipped brace block (timeSamples, variants)

	// array accumulates a bracketed attribute value spanning lines.
	array       strings.Builder
	arrayDepth  int
	arrayTarget string // "extent" or "points"
}

func (p *layerParser) line(raw string) error {
	line := strings.TrimRight(raw, "\r")
	trimmed := strings.TrimSpace(line)

	if p.arrayDepth > 0 {
		p.array.WriteString(line)
		p.arrayDepth += strings.Count(line, "[") - strings.Count(line, "]")
		if p.arrayDepth <= 0 {
			return p.finishArray()
		}
		return nil
	}

	if p.valueDepth > 0 {
		p.valueDepth += strings.Count(line, "{") - strings.Count(line, "}")
		return nil
	}

	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil
	}

	if p.parenDepth > 0 {
		if p.inLayerMeta {
			if m := defaultPrimRe.FindStringSubmatch(line); m != nil {
				p.stage.DefaultPrim = m[1]
			} else if m := upAxisRe.FindStringSubmatch(line); m != nil {
				p.stage.UpAxis = m[1]
			}
		}
		p.parenDepth += strings.Count(line, "(") - strings.Count(line, ")")
		if p.parenDepth <= 0 {
			p.parenDepth = 0
			p.inLayerMeta = false
			if p.pending != nil && strings.Contains(line, "{") {
				p.openPending()
			}
		}
		return nil
	}

	if m := primHeaderRe.FindStringSubmatch(line); m != nil {
		p.pending = &Prim{Type: m[2], Name: m[3], Path: p.currentPath() + "/" + m[3]}
		p.sawPrim = true
		rest := line[len(m[0]):]
		p.parenDepth = strings.Count(rest, "(") - strings.Count(rest, ")")
		if p.parenDepth < 0 {
			p.parenDepth = 0
		}
		if p.parenDepth == 0 && strings.Contains(rest, "{") {
			p.openPending()
		}
		return nil
	}

	switch trimmed {
	case "(":
		p.parenDepth = 1
		p.inLayerMeta = p.pending == nil && !p.sawPrim && len(p.stack) == 0
		return nil
	case "{":
		if p.pending != nil {
			p.openPending()
		} else {
			p.valueDepth = 1
		}
		return nil
	case "}":
		if len(p.stack) > 0 {
			p.stack = p.stack[:len(p.stack)-1]
		}
		return nil
	}

	if len(p.stack) == 0 {
		return nil
	}
	return p.attribute(line)
}

// attribute interprets a line inside a prim body.
func (p *layerParser) attribute(line string) error {
	prim := p.stack[len(p.stack)-1]

	switch {
	case extentRe.MatchString(line):
		return p.startArray(line, "extent")
	case pointsRe.MatchString(line):
		return p.startArray(line, "points")
	case invisibleRe.MatchString(line):
		prim.Invisible = true
	default:
		if m := translateRe.FindStringSubmatch(line); m != nil {
			v, err := parseTriple(m[1])
			if err != nil {
				return fmt.Errorf("bad xformOp:translate on %s: %w", prim.Path, err)
			}
			prim.Translate = v
			return nil
		}
		// Unknown attributes with brace values are skipped as blocks.
		if open := strings.Count(line, "{") - strings.Count(line, "}"); open > 0 {
			p.valueDepth = open
		}
	}
	return nil
}

func (p *layerParser) startArray(line, target string) error {
	p.arrayTarget = target
	p.array.Reset()
	p.array.WriteString(line)
	p.arrayDepth = strings.Count(line, "[") - strings.Count(line, "]")
	if p.arrayDepth <= 0 {
		p.arrayDepth = 0
		return p.finishArray()
	}
	return nil
}

func (p *layerParser) finishArray() error {
	prim := p.stack[len(p.stack)-1]
	values, err := parseTupleArray(p.array.String())
	p.array.Reset()
	p.arrayDepth = 0
	if err != nil {
		return fmt.Errorf("bad %s on %s: %w", p.arrayTarget, prim.Path, err)
	}

	switch p.arrayTarget {
	case "extent":
		if len(values) == 2 {
			box := geometry.NewBoundingBox(values[0], values[1])
			prim.Extent = &box
		}
	case "points":
		prim.Points = values
	}
	return nil
}

func (p *layerParser) openPending() {
	prim := p.pending
	p.pending = nil
	if len(p.stack) == 0 {
		p.stage.Roots = append(p.stage.Roots, prim)
	} else {
		parent := p.stack[len(p.stack)-1]
		parent.Children = append(parent.Children, prim)
	}
	p.stack = append(p.stack, prim)
}

func (p *layerParser) currentPath() string {
	var b strings.Builder
	for _, prim := range p.stack {
		b.WriteString("/")
		b.WriteString(prim.Name)
	}
	return b.String()
}

// parseTupleArray extracts every "(x, y, z)" tuple from a bracketed
// array payload.
func parseTupleArray(payload string) ([]geometry.Vector3, error) {
	matches := tupleRe.FindAllStringSubmatch(payload, -1)
	values := make([]geometry.Vector3, 0, len(matches))
	for _, m := range matches {
		v, err := parseTriple(m[1])
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

func parseTriple(payload string) (geometry.Vector3, error) {
	parts := strings.Split(payload, ",")
	if len(parts) != 3 {
		return geometry.Vector3{}, fmt.Errorf("expected 3 components, got %d", len(parts))
	}
	var out [3]float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return geometry.Vector3{}, fmt.Errorf("bad component %q: %w", strings.TrimSpace(part), err)
		}
		out[i] = v
	}
	return geometry.NewVector3(out[0], out[1], out[2]), nil
}
