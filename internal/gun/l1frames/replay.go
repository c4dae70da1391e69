package l1frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/pigun/internal/fsutil"
	"github.com/banshee-data/pigun/internal/timeutil"
)

// ReplayConfig describes a raw frame recording.
type ReplayConfig struct {
	Path   string
	Width  int
	Height int
	Format Format
	FPS    int  // 0 delivers as fast as the handler allows
	Loop   bool // restart at end of file
}

// ReplaySource plays back a file of concatenated raw frames.
type ReplaySource struct {
	cfg   ReplayConfig
	fs    fsutil.FileSystem
	clock timeutil.Clock
}

// NewReplaySource creates a replay source. Nil fs or clock use the OS.
func NewReplaySource(cfg ReplayConfig, fs fsutil.FileSystem, clock timeutil.Clock) *ReplaySource {
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &ReplaySource{cfg: cfg, fs: fs, clock: clock}
}

// Run delivers the recording, paced at cfg.FPS.
func (s *ReplaySource) Run(ctx context.Context, h Handler) error {
	data, err := s.fs.ReadFile(s.cfg.Path)
	if err != nil {
		return fmt.Errorf("read recording: %w", err)
	}
	size := s.cfg.Format.FrameBytes(s.cfg.Width, s.cfg.Height)
	if size == 0 || len(data) < size {
		return fmt.Errorf("recording %s holds no complete %dx%d %s frame", s.cfg.Path, s.cfg.Width, s.cfg.Height, s.cfg.Format)
	}

	var tick <-chan time.Time
	if s.cfg.FPS > 0 {
		t := s.clock.NewTicker(time.Second / time.Duration(s.cfg.FPS))
		defer t.Stop()
		tick = t.C()
	}

	seq := uint64(0)
	for {
		stopped := false
		paced := Handler(func(f *Frame) error {
			if tick != nil {
				select {
				case <-ctx.Done():
					stopped = true
					return ErrStop
				case <-tick:
				}
			}
			f.Seq = seq
			seq++
			err := h(f)
			if errors.Is(err, ErrStop) {
				stopped = true
			}
			return err
		})
		if err := NewStreamSource(bytes.NewReader(data), s.cfg.Width, s.cfg.Height, s.cfg.Format, s.clock).Run(ctx, paced); err != nil {
			return err
		}
		if !s.cfg.Loop || stopped || ctx.Err() != nil {
			return nil
		}
	}
}
