package l1frames

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/banshee-data/pigun/internal/gun"
)

// LibcameraConfig configures the libcamera-raw subprocess.
type LibcameraConfig struct {
	Binary string // default "libcamera-raw"
	Camera int
	Width  int
	Height int
	FPS    int
	// ExtraArgs are appended verbatim, e.g. exposure overrides.
	ExtraArgs []string
}

// LibcameraSource streams YUV420 frames from libcamera-raw's stdout.
type LibcameraSource struct {
	cfg LibcameraConfig
}

// NewLibcameraSource returns a source for the given config.
func NewLibcameraSource(cfg LibcameraConfig) *LibcameraSource {
	if cfg.Binary == "" {
		cfg.Binary = "libcamera-raw"
	}
	return &LibcameraSource{cfg: cfg}
}

// Args returns the command line used to start the camera.
func (s *LibcameraSource) Args() []string {
	args := []string{
		"--camera", strconv.Itoa(s.cfg.Camera),
		"--width", strconv.Itoa(s.cfg.Width),
		"--height", strconv.Itoa(s.cfg.Height),
		"--framerate", strconv.Itoa(s.cfg.FPS),
		"--flush", "1",
		"-t", "0",
		"--nopreview",
	}
	args = append(args, s.cfg.ExtraArgs...)
	return append(args, "-o", "-")
}

// Run starts the subprocess and delivers frames until ctx is done.
func (s *LibcameraSource) Run(ctx context.Context, h Handler) error {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.Args()...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("libcamera stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", s.cfg.Binary, err)
	}
	gun.Opsf("camera started: %s %dx%d@%d", s.cfg.Binary, s.cfg.Width, s.cfg.Height, s.cfg.FPS)

	runErr := NewStreamSource(stdout, s.cfg.Width, s.cfg.Height, FormatYUV420, nil).Run(ctx, h)

	if cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	waitErr := cmd.Wait()
	if runErr != nil {
		return runErr
	}
	if waitErr != nil && ctx.Err() == nil {
		gun.Diagf("camera exited: %v", waitErr)
	}
	return nil
}
