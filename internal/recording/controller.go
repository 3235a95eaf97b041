package recording

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// MinClipDuration is the floor below which stop completion is deferred,
	// guarding against zero-length or corrupt artifacts from near-instant taps.
	MinClipDuration = 900 * time.Millisecond
	// MaxClipDuration is the default auto-stop ceiling.
	MaxClipDuration = 12 * time.Second
)

var (
	// ErrDeviceUnavailable means the capture device is missing or not ready.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrRecordingFailed means start/stop failed or the artifact is missing.
	ErrRecordingFailed = errors.New("recording failed")
)

// Phase is the capture session lifecycle state.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseStarting   Phase = "starting"
	PhaseRecording  Phase = "recording"
	PhaseStopping   Phase = "stopping"
	PhaseProcessing Phase = "processing"
)

// CaptureDevice abstracts the camera/capture hardware. Implementations
// finalize the artifact on Stop and return its on-disk location.
type CaptureDevice interface {
	Ready() bool
	Start(ctx context.Context, outputPath string) error
	Stop(ctx context.Context) (artifactPath string, err error)
}

// Controller drives one capture device through
// Idle → Starting → Recording → Stopping → Processing → Idle.
// Re-entrant Start/Stop calls outside the valid phase are silent no-ops, so
// duplicate taps cannot race the underlying device.
type Controller struct {
	device      CaptureDevice
	outputDir   string
	minDuration time.Duration
	maxDuration time.Duration
	logger      *zap.Logger

	mu         sync.Mutex
	phase      Phase
	startedAt  time.Time
	outputPath string
	autoStop   *time.Timer
}

// NewController creates a recording controller. Zero durations select the
// defaults; an empty outputDir selects os.TempDir().
func NewController(device CaptureDevice, outputDir string, minDuration, maxDuration time.Duration, logger *zap.Logger) *Controller {
	if outputDir == "" {
		outputDir = os.TempDir()
	}
	if minDuration <= 0 {
		minDuration = MinClipDuration
	}
	if maxDuration <= 0 {
		maxDuration = MaxClipDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		device:      device,
		outputDir:   outputDir,
		minDuration: minDuration,
		maxDuration: maxDuration,
		logger:      logger,
		phase:       PhaseIdle,
	}
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// Start begins a capture session. Valid only from Idle: calls from any other
// phase, or with a device that is not ready, are silently ignored. On device
// failure the controller returns to Idle with ErrRecordingFailed.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return nil
	}
	if c.device == nil || !c.device.Ready() {
		c.mu.Unlock()
		return nil
	}
	c.phase = PhaseStarting
	c.mu.Unlock()

	dir := filepath.Join(c.outputDir, "clips")
	if err := os.MkdirAll(dir, 0750); err != nil {
		c.reset()
		return fmt.Errorf("%w: create clip dir: %v", ErrRecordingFailed, err)
	}
	outputPath := filepath.Join(dir, fmt.Sprintf("%d.mp4", time.Now().UnixMilli()))

	if err := c.device.Start(ctx, outputPath); err != nil {
		c.reset()
		return fmt.Errorf("%w: start device: %v", ErrRecordingFailed, err)
	}

	c.mu.Lock()
	c.phase = PhaseRecording
	c.startedAt = time.Now()
	c.outputPath = outputPath
	// Auto-stop is tied 1:1 to the Recording phase; Stop cancels it on exit.
	c.autoStop = time.AfterFunc(c.maxDuration, func() {
		if _, err := c.Stop(context.Background()); err != nil {
			c.logger.Warn("auto-stop failed", zap.Error(err))
		}
	})
	c.mu.Unlock()

	c.logger.Info("recording started", zap.String("output", outputPath), zap.Duration("max_duration", c.maxDuration))
	return nil
}

// Stop ends the capture session. Valid only from Recording: calls from any
// other phase are silently ignored and return an empty path. A stop arriving
// before the minimum clip duration has elapsed suspends until the floor is
// reached before the underlying stop command is issued. On success the
// controller is left in Processing; call Finish once the artifact has been
// handed off.
func (c *Controller) Stop(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.phase != PhaseRecording {
		c.mu.Unlock()
		return "", nil
	}
	c.phase = PhaseStopping
	if c.autoStop != nil {
		c.autoStop.Stop()
		c.autoStop = nil
	}
	startedAt := c.startedAt
	elapsed := time.Since(startedAt)
	c.mu.Unlock()

	if remaining := c.minDuration - elapsed; remaining > 0 {
		select {
		case <-time.After(remaining):
		case <-ctx.Done():
			c.reset()
			return "", fmt.Errorf("%w: %v", ErrRecordingFailed, ctx.Err())
		}
	}

	path, err := c.device.Stop(ctx)
	if err != nil {
		c.reset()
		return "", fmt.Errorf("%w: stop device: %v", ErrRecordingFailed, err)
	}
	if path == "" {
		c.reset()
		return "", fmt.Errorf("%w: device returned no artifact location", ErrRecordingFailed)
	}
	if _, err := os.Stat(path); err != nil {
		c.reset()
		return "", fmt.Errorf("%w: artifact missing: %v", ErrRecordingFailed, err)
	}

	c.mu.Lock()
	c.phase = PhaseProcessing
	c.mu.Unlock()

	c.logger.Info("recording stopped", zap.String("artifact", path), zap.Duration("elapsed", time.Since(startedAt)))
	return path, nil
}

// Finish returns the controller to Idle after the artifact has been handed
// off. No-op outside Processing.
func (c *Controller) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.phase == PhaseProcessing {
		c.phase = PhaseIdle
		c.startedAt = time.Time{}
		c.outputPath = ""
	}
}

// reset drops back to Idle from any phase, cancelling the auto-stop timer.
func (c *Controller) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autoStop != nil {
		c.autoStop.Stop()
		c.autoStop = nil
	}
	c.phase = PhaseIdle
	c.startedAt = time.Time{}
	c.outputPath = ""
}
