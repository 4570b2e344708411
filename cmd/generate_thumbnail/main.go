package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/usdtools/usdthumb/internal/app"
	"github.com/usdtools/usdthumb/internal/config"
	"github.com/usdtools/usdthumb/pkg/watcher"
	"github.com/usdtools/usdthumb/version"
)

var (
	createUSDZResult bool
	verbose          bool
	watchMode        bool
	configPath       string
	outputDir        string
	imageWidth       int
	rendererBackend  string
	frame            int
	timeoutSeconds   int
)

var rootCmd = &cobra.Command{
	Use:   "generate_thumbnail <subject-file>",
	Short: "Render a thumbnail for a USD asset and bind it as metadata",
	Long: `generate_thumbnail frames a USD asset with an automatically placed
camera, renders a single-frame thumbnail through usdrecord and writes the
image path into the asset's preview metadata. Text layers are updated in
place; usdz archives get a new wrapper layer referencing the unmodified
archive. With --create-usdz-result everything is bundled into a single
distributable archive.`,
	Args:          cobra.ExactArgs(1),
	Version:       version.GetFullVersion(),
	RunE:          run,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.Flags()
	flags.BoolVar(&createUSDZResult, "create-usdz-result", false, "Bundle the outputs into a single usdz archive")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Emit step-by-step progress")
	flags.BoolVar(&watchMode, "watch", false, "Keep running and regenerate when the subject changes")
	flags.StringVar(&configPath, "config", "", "TOML config file with framing and renderer defaults")
	flags.StringVar(&outputDir, "output-dir", "renders", "Directory for rendered images (relative to the subject)")
	flags.IntVar(&imageWidth, "image-width", 0, "Rendered image width in pixels")
	flags.StringVar(&rendererBackend, "renderer", "", "usdrecord backend (default per platform)")
	flags.IntVar(&frame, "frame", 0, "Time code to render")
	flags.IntVar(&timeoutSeconds, "timeout", 0, "Renderer timeout in seconds")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := newLogger(verbose)
	subject := args[0]

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("output-dir") {
		cfg.OutputDir = outputDir
	}
	if cmd.Flags().Changed("image-width") {
		cfg.ImageWidth = imageWidth
	}
	if cmd.Flags().Changed("renderer") {
		cfg.Renderer = rendererBackend
	}
	if cmd.Flags().Changed("frame") {
		cfg.Frame = frame
	}
	if cmd.Flags().Changed("timeout") {
		cfg.TimeoutSeconds = timeoutSeconds
	}

	pipeline, err := app.New(app.Options{
		SubjectPath:   subject,
		CreateArchive: createUSDZResult,
		Config:        cfg,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}
	reportOutputs(out)

	if watchMode {
		return runWatch(ctx, pipeline, subject, logger)
	}
	return nil
}

// runWatch regenerates the thumbnail whenever the subject file changes,
// until interrupted. Failed regenerations are reported and the loop
// keeps going.
func runWatch(ctx context.Context, pipeline *app.Pipeline, subject string, logger zerolog.Logger) error {
	w, err := watcher.New(subject, 500*time.Millisecond)
	if err != nil {
		return err
	}
	defer w.Close()

	fmt.Printf("Watching %s for changes (interrupt to stop)\n", subject)
	w.Run(ctx,
		func() {
			out, err := pipeline.Run(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Regeneration failed: %v\n", err)
				return
			}
			reportOutputs(out)
		},
		func(err error) {
			logger.Error().Err(err).Msg("watch error")
		})
	return nil
}

func reportOutputs(out *app.OutputSet) {
	fmt.Printf("Thumbnail: %s\n", out.ImagePath)
	if out.WrapperLayer != "" {
		fmt.Printf("Wrapper layer: %s\n", out.WrapperLayer)
	}
	if out.Archive != "" {
		fmt.Printf("Archive: %s\n", out.Archive)
	}
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.ErrorLevel
	if verbose {
		level = zerolog.InfoLevel
	}
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
