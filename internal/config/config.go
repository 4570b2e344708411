// Package config holds the tool's tunable settings, loadable from an
// optional TOML file and overridable by command line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/usdtools/usdthumb/pkg/framing"
	"github.com/usdtools/usdthumb/pkg/geometry"
	"github.com/usdtools/usdthumb/pkg/render"
)

// Config collects every knob of the thumbnail pipeline. Zero values
// mean "use the default"; Load starts from Default so a config file
// only needs the fields it wants to change.
type Config struct {
	// ImageWidth is the rendered image width in pixels.
	ImageWidth int `toml:"image_width"`
	// Renderer names the usdrecord backend; empty picks the platform
	// default.
	Renderer string `toml:"renderer"`
	// Frame is the time code to render and measure bounds at.
	Frame int `toml:"frame"`
	// TimeoutSeconds bounds the renderer subprocess.
	TimeoutSeconds int `toml:"timeout_seconds"`
	// OutputDir is where rendered images land, relative to the
	// subject's directory unless absolute.
	OutputDir string `toml:"output_dir"`

	// Camera framing.
	FOV           float64    `toml:"fov"`
	MarginFactor  float64    `toml:"margin_factor"`
	AspectRatio   float64    `toml:"aspect_ratio"`
	Projection    string     `toml:"projection"` // "perspective" or "orthographic"
	ViewDirection [3]float64 `toml:"view_direction"`
	UpAxis        string     `toml:"up_axis"` // "X", "Y" or "Z"; empty follows the stage
}

// Default returns the built-in configuration.
func Default() Config {
	def := framing.DefaultSettings()
	return Config{
		ImageWidth:     render.DefaultWidth,
		TimeoutSeconds: 120,
		OutputDir:      "renders",
		FOV:            def.FOV,
		MarginFactor:   def.MarginFactor,
		AspectRatio:    def.AspectRatio,
		Projection:     "perspective",
		ViewDirection:  [3]float64{def.ViewDirection.X, def.ViewDirection.Y, def.ViewDirection.Z},
	}
}

// Load reads a TOML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}

// FramingSettings translates the config into camera framing settings.
// stageUpAxis is the subject layer's authored upAxis, used when the
// config does not pin one.
func (c Config) FramingSettings(stageUpAxis string) framing.Settings {
	s := framing.DefaultSettings()
	if c.FOV > 0 {
		s.FOV = c.FOV
	}
	if c.MarginFactor > 0 {
		s.MarginFactor = c.MarginFactor
	}
	if c.AspectRatio > 0 {
		s.AspectRatio = c.AspectRatio
	}
	s.Orthographic = c.Projection == "orthographic"

	dir := geometry.NewVector3(c.ViewDirection[0], c.ViewDirection[1], c.ViewDirection[2])
	if dir.Length() > 0 {
		s.ViewDirection = dir
	}

	axis := c.UpAxis
	if axis == "" {
		axis = stageUpAxis
	}
	switch axis {
	case "X":
		s.Up = geometry.NewVector3(1, 0, 0)
	case "Z":
		s.Up = geometry.NewVector3(0, 0, 1)
	default:
		s.Up = geometry.NewVector3(0, 1, 0)
	}
	return s
}

// RenderTimeout returns the subprocess timeout as a duration.
func (c Config) RenderTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 120 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
