package l1frames

import (
	"context"
	"math"
	"time"

	"github.com/banshee-data/pigun/internal/timeutil"
)

// SyntheticConfig drives a generated marker scene for bench testing
// without a camera.
type SyntheticConfig struct {
	Width     int
	Height    int
	FPS       int     // 0 runs unpaced
	Radius    int     // marker disc radius in pixels
	Intensity uint8   // marker brightness
	Noise     uint8   // background level
	Drift     float64 // circular sway amplitude in pixels
	Period    int     // frames per sway revolution
	Frames    int     // 0 runs until cancelled
}

// DefaultSyntheticConfig returns a 640x480 scene of four radius-4 markers
// placed on the quadrant seed rectangle.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Width:     640,
		Height:    480,
		FPS:       120,
		Radius:    4,
		Intensity: 220,
		Noise:     16,
		Drift:     20,
		Period:    240,
	}
}

// SyntheticSource renders four bright discs that sway together.
type SyntheticSource struct {
	cfg   SyntheticConfig
	clock timeutil.Clock
}

// NewSyntheticSource creates a generator. A nil clock uses the real clock.
func NewSyntheticSource(cfg SyntheticConfig, clock timeutil.Clock) *SyntheticSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SyntheticSource{cfg: cfg, clock: clock}
}

// MarkerCentres returns the disc centres rendered for frame seq, in
// TL, TR, BL, BR order.
func (s *SyntheticSource) MarkerCentres(seq uint64) [4][2]int {
	w, h := s.cfg.Width, s.cfg.Height
	var ox, oy int
	if s.cfg.Period > 0 && s.cfg.Drift > 0 {
		phase := 2 * math.Pi * float64(seq%uint64(s.cfg.Period)) / float64(s.cfg.Period)
		ox = int(math.Round(s.cfg.Drift * math.Cos(phase)))
		oy = int(math.Round(s.cfg.Drift * math.Sin(phase)))
	}
	return [4][2]int{
		{w/4 + ox, h/4 + oy},
		{3*w/4 + ox, h/4 + oy},
		{w/4 + ox, 3*h/4 + oy},
		{3*w/4 + ox, 3*h/4 + oy},
	}
}

// Run renders frames into a reused buffer.
func (s *SyntheticSource) Run(ctx context.Context, h Handler) error {
	frame := NewBlankFrame(s.cfg.Width, s.cfg.Height)

	var tick <-chan time.Time
	if s.cfg.FPS > 0 {
		t := s.clock.NewTicker(time.Second / time.Duration(s.cfg.FPS))
		defer t.Stop()
		tick = t.C()
	}

	for seq := uint64(0); s.cfg.Frames == 0 || seq < uint64(s.cfg.Frames); seq++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		Fill(frame, s.cfg.Noise)
		for _, c := range s.MarkerCentres(seq) {
			DrawDisc(frame, c[0], c[1], s.cfg.Radius, s.cfg.Intensity)
		}
		frame.Seq = seq
		frame.Time = s.clock.Now()
		if stop, err := callHandler(h, frame); stop {
			return err
		}
	}
	return nil
}

// Fill sets every pixel to v.
func Fill(f *Frame, v uint8) {
	for i := range f.Pix {
		f.Pix[i] = v
	}
}

// DrawSquare paints a (2*half+1)-wide square centred on (cx, cy).
func DrawSquare(f *Frame, cx, cy, half int, v uint8) {
	for y := cy - half; y <= cy+half; y++ {
		for x := cx - half; x <= cx+half; x++ {
			f.Set(x, y, v)
		}
	}
}

// DrawDisc paints every pixel within radius r of (cx, cy).
func DrawDisc(f *Frame, cx, cy, r int, v uint8) {
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if dx*dx+dy*dy <= r*r {
				f.Set(cx+dx, cy+dy, v)
			}
		}
	}
}
