// Package render shells out to usdrecord to rasterize a composed layer
// through a named camera.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// DefaultBinary is the renderer executable looked up on PATH.
const DefaultBinary = "usdrecord"

// DefaultWidth matches the image width the original tooling recorded.
const DefaultWidth = 2048

// UnsupportedPlatformError reports a renderer backend that cannot run
// on the host platform. It is detected before the subprocess is
// spawned.
type UnsupportedPlatformError struct {
	Backend string
	OS      string
}

func (e *UnsupportedPlatformError) Error() string {
	return fmt.Sprintf("renderer backend %q is not available on %s", e.Backend, e.OS)
}

// InvocationError reports a renderer subprocess that failed, timed out,
// or produced no image. Output carries the captured diagnostics.
type InvocationError struct {
	Output string
	Err    error
}

func (e *InvocationError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("renderer failed: %v", e.Err)
	}
	return fmt.Sprintf("renderer failed: %v\n%s", e.Err, e.Output)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// Options selects how a frame is recorded.
type Options struct {
	// Frame is the time code rendered (a single frame).
	Frame int
	// Width is the output image width in pixels.
	Width int
	// Backend names the render delegate. Empty selects the platform
	// default.
	Backend string
}

// Invoker runs the external renderer.
type Invoker struct {
	// Binary overrides the renderer executable. Empty means
	// DefaultBinary resolved via PATH.
	Binary string
}

// DefaultBackend returns the render delegate assumed usable on the
// current platform.
func DefaultBackend() string {
	if runtime.GOOS == "darwin" {
		return "Metal"
	}
	return "GL"
}

// CheckBackend verifies the backend can run on this host. Metal only
// exists on macOS; other delegates are assumed present and left for the
// subprocess to reject.
func CheckBackend(backend string) error {
	if backend == "Metal" && runtime.GOOS != "darwin" {
		return &UnsupportedPlatformError{Backend: backend, OS: runtime.GOOS}
	}
	return nil
}

// Render records one frame of the composed layer through the camera at
// cameraPath into outputPattern, where '#' stands for the frame number.
// It returns the path of the produced image. The context bounds the
// subprocess lifetime; on cancellation the renderer is killed.
func (inv *Invoker) Render(ctx context.Context, layerPath, cameraPath, outputPattern string, opts Options) (string, error) {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Backend == "" {
		opts.Backend = DefaultBackend()
	}
	if err := CheckBackend(opts.Backend); err != nil {
		return "", err
	}

	binary := inv.Binary
	if binary == "" {
		binary = DefaultBinary
	}
	if _, err := exec.LookPath(binary); err != nil {
		return "", fmt.Errorf("%s not found in PATH (is the USD toolset installed?): %w", binary, err)
	}

	cmd := exec.CommandContext(ctx, binary,
		"--frames", fmt.Sprintf("%d:%d", opts.Frame, opts.Frame),
		"--camera", cameraPath,
		"--imageWidth", strconv.Itoa(opts.Width),
		"--renderer", opts.Backend,
		layerPath, outputPattern)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Orphaned renderer children must not keep us waiting on the
	// output pipes after the process is killed.
	cmd.WaitDelay = 5 * time.Second

	err := cmd.Run()
	output := combinedOutput(stdout, stderr)
	if err != nil {
		if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
			return "", &InvocationError{Output: output, Err: fmt.Errorf("timed out: %w", ctxErr)}
		}
		return "", &InvocationError{Output: output, Err: err}
	}

	imagePath := strings.Replace(outputPattern, "#", strconv.Itoa(opts.Frame), 1)
	if _, err := os.Stat(imagePath); err != nil {
		return "", &InvocationError{
			Output: output,
			Err:    fmt.Errorf("renderer exited cleanly but produced no image at %s", imagePath),
		}
	}
	return imagePath, nil
}

func combinedOutput(stdout, stderr bytes.Buffer) string {
	var b strings.Builder
	if stderr.Len() > 0 {
		b.WriteString("stderr: ")
		b.WriteString(strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() > 0 {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("stdout: ")
		b.WriteString(strings.TrimSpace(stdout.String()))
	}
	return b.String()
}
