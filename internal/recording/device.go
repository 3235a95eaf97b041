package recording

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"go.uber.org/zap"
)

const stopGrace = 10 * time.Second

// FFmpegDevice captures video from a local device or stream URL by running
// ffmpeg as a subprocess. Stop interrupts ffmpeg so it finalizes the
// container, waiting up to stopGrace before killing it.
type FFmpegDevice struct {
	input  string // e.g. /dev/video0, an RTSP URL, or an avfoundation index
	format string // ffmpeg input format flag (v4l2, avfoundation); empty lets ffmpeg probe
	logger *zap.Logger

	mu         sync.Mutex
	cmd        *exec.Cmd
	outputPath string
}

// NewFFmpegDevice creates an ffmpeg capture device.
func NewFFmpegDevice(input, format string, logger *zap.Logger) *FFmpegDevice {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpegDevice{input: input, format: format, logger: logger}
}

// Ready reports whether the device has an input configured and no capture running.
func (d *FFmpegDevice) Ready() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.input != "" && d.cmd == nil
}

// Start launches ffmpeg writing to outputPath. The request context is not
// wired to the process: stop must be explicit so the container gets finalized.
func (d *FFmpegDevice) Start(_ context.Context, outputPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cmd != nil {
		return fmt.Errorf("capture already running")
	}

	args := []string{}
	if d.format != "" {
		args = append(args, "-f", d.format)
	}
	args = append(args, "-i", d.input, "-c:v", "libx264", "-preset", "ultrafast", "-y", outputPath)
	cmd := exec.Command("ffmpeg", args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	d.cmd = cmd
	d.outputPath = outputPath
	d.logger.Debug("ffmpeg capture started", zap.String("input", d.input), zap.String("output", outputPath))
	return nil
}

// Stop interrupts ffmpeg and waits for it to finalize the artifact.
func (d *FFmpegDevice) Stop(_ context.Context) (string, error) {
	d.mu.Lock()
	cmd := d.cmd
	path := d.outputPath
	d.cmd = nil
	d.outputPath = ""
	d.mu.Unlock()

	if cmd == nil {
		return "", fmt.Errorf("no capture running")
	}

	if cmd.Process != nil {
		_ = cmd.Process.Signal(os.Interrupt)
		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		select {
		case <-done:
			// ffmpeg exited and flushed the container
		case <-time.After(stopGrace):
			_ = cmd.Process.Kill()
		}
	}

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("capture artifact missing: %w", err)
	}
	d.logger.Debug("ffmpeg capture stopped", zap.String("output", path))
	return path, nil
}
