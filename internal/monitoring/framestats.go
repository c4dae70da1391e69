package monitoring

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/pigun/internal/timeutil"
)

// Window summarises frame processing over one reporting period.
type Window struct {
	Start    time.Time
	Frames   int
	Lost     int // frames without all markers
	FPS      float64
	MeanMs   float64
	StdDevMs float64
	MaxMs    float64
}

// FrameStats accumulates per-frame processing times and emits a Window
// once per period.
type FrameStats struct {
	mu     sync.Mutex
	clock  timeutil.Clock
	period time.Duration

	start   time.Time
	samples []float64
	lost    int
	last    Window
	total   uint64
}

// NewFrameStats returns stats that roll over every period.
func NewFrameStats(clock timeutil.Clock, period time.Duration) *FrameStats {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if period <= 0 {
		period = time.Second
	}
	return &FrameStats{
		clock:   clock,
		period:  period,
		start:   clock.Now(),
		samples: make([]float64, 0, 256),
	}
}

// Observe records one frame. When the period has elapsed it returns the
// completed window and true, and logs it.
func (s *FrameStats) Observe(processing time.Duration, tracked bool) (Window, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples = append(s.samples, float64(processing)/float64(time.Millisecond))
	if !tracked {
		s.lost++
	}
	s.total++

	now := s.clock.Now()
	elapsed := now.Sub(s.start)
	if elapsed < s.period {
		return Window{}, false
	}

	w := Window{
		Start:  s.start,
		Frames: len(s.samples),
		Lost:   s.lost,
		FPS:    float64(len(s.samples)) / elapsed.Seconds(),
	}
	w.MeanMs, w.StdDevMs = stat.MeanStdDev(s.samples, nil)
	if math.IsNaN(w.StdDevMs) {
		w.StdDevMs = 0
	}
	for _, v := range s.samples {
		w.MaxMs = math.Max(w.MaxMs, v)
	}

	Logf("[pigun] fps=%.1f frames=%d lost=%d proc mean=%.2fms sd=%.2fms max=%.2fms",
		w.FPS, w.Frames, w.Lost, w.MeanMs, w.StdDevMs, w.MaxMs)

	s.last = w
	s.start = now
	s.samples = s.samples[:0]
	s.lost = 0
	return w, true
}

// Last returns the most recent completed window.
func (s *FrameStats) Last() Window {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Total returns the number of frames observed since creation.
func (s *FrameStats) Total() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}
