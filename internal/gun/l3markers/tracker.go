package l3markers

import (
	"errors"
	"fmt"

	"github.com/banshee-data/pigun/internal/config"
	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/gun/l1frames"
	"github.com/banshee-data/pigun/internal/gun/l2blobs"
)

// ErrNotEnoughMarkers is returned when fewer than four peaks resolve.
var ErrNotEnoughMarkers = errors.New("not enough markers")

// TrackerConfig holds the search parameters.
type TrackerConfig struct {
	Width             int
	Height            int
	Blobs             l2blobs.Config
	Stride            int // ring spacing and perimeter sample spacing
	MaxSearchDistance int // largest ring radius in pixels
	ErrorThreshold    int // consecutive failures before re-seeding
	FullFrameFallback bool
}

// DefaultTrackerConfig returns the 640x480 defaults.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfigFromTuning(config.EmptyTuningConfig())
}

// TrackerConfigFromTuning builds a TrackerConfig from tuning values.
func TrackerConfigFromTuning(t *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		Width:  t.GetWidth(),
		Height: t.GetHeight(),
		Blobs: l2blobs.Config{
			Threshold: t.GetThreshold(),
			MinSize:   t.GetMinBlobSize(),
			MaxSize:   t.GetMaxBlobSize(),
		},
		Stride:            t.GetSparseStep(),
		MaxSearchDistance: t.GetMaxSearchDistance(),
		ErrorThreshold:    t.GetErrorThreshold(),
		FullFrameFallback: t.GetFullFrameFallback(),
	}
}

// Tracker follows four peaks from frame to frame.
type Tracker struct {
	cfg     TrackerConfig
	scanner *l2blobs.Scanner

	peaks    [4]Peak // role order after the first successful frame
	markers  OrderedMarkers
	failures int
	errFlag  bool
	resets   int
}

// NewTracker allocates scan buffers and seeds the peaks.
func NewTracker(cfg TrackerConfig) *Tracker {
	if cfg.Stride < 1 {
		cfg.Stride = 1
	}
	if cfg.ErrorThreshold < 1 {
		cfg.ErrorThreshold = 1
	}
	t := &Tracker{
		cfg:     cfg,
		scanner: l2blobs.NewScanner(cfg.Blobs, cfg.Width, cfg.Height),
	}
	t.peaks = t.Seeds()
	return t
}

// Seeds returns the quadrant start positions in role order.
func (t *Tracker) Seeds() [4]Peak {
	w, h := float32(t.cfg.Width), float32(t.cfg.Height)
	return [4]Peak{
		{X: 0.25 * w, Y: 0.25 * h},
		{X: 0.75 * w, Y: 0.25 * h},
		{X: 0.25 * w, Y: 0.75 * h},
		{X: 0.75 * w, Y: 0.75 * h},
	}
}

// Peaks returns the current tracker state.
func (t *Tracker) Peaks() [4]Peak { return t.peaks }

// Markers returns the last successfully sorted markers.
func (t *Tracker) Markers() OrderedMarkers { return t.markers }

// Failures returns the consecutive failure count.
func (t *Tracker) Failures() int { return t.failures }

// ErrorFlag reports whether the last frame failed to resolve all markers.
func (t *Tracker) ErrorFlag() bool { return t.errFlag }

// Resets returns how many times the peaks have been re-seeded.
func (t *Tracker) Resets() int { return t.resets }

// ScanStats returns flood fills and rejections for the last frame.
func (t *Tracker) ScanStats() (scans, rejected int) { return t.scanner.Stats() }

// Run locates all four markers in f. On failure the previous state is
// kept and ErrNotEnoughMarkers is returned.
func (t *Tracker) Run(f *l1frames.Frame) (OrderedMarkers, error) {
	if f.Width != t.cfg.Width || f.Height != t.cfg.Height {
		return OrderedMarkers{}, fmt.Errorf("frame %dx%d does not match tracker %dx%d", f.Width, f.Height, t.cfg.Width, t.cfg.Height)
	}
	t.scanner.Reset()

	var next [4]Peak
	resolved := 0
	for i, p := range t.peaks {
		blob, ok := t.search(f, p)
		if !ok && t.cfg.FullFrameFallback {
			blob, ok = t.scanFrame(f)
		}
		if !ok {
			continue
		}
		next[i] = Peak{X: blob.X, Y: blob.Y, DX: blob.X - p.X, DY: blob.Y - p.Y}
		resolved++
	}

	if resolved < len(next) {
		t.failures++
		t.errFlag = true
		if t.failures == t.cfg.ErrorThreshold {
			t.peaks = t.Seeds()
			t.resets++
			gun.Diagf("tracker lost markers for %d frames; re-seeding", t.failures)
		}
		return OrderedMarkers{}, fmt.Errorf("%w: resolved %d of 4", ErrNotEnoughMarkers, resolved)
	}

	t.markers = Sort(next)
	t.peaks = t.markers
	t.failures = 0
	t.errFlag = false
	return t.markers, nil
}

func (t *Tracker) predict(p Peak) (int, int) {
	x := clamp(int(p.X+p.DX), 0, t.cfg.Width-1)
	y := clamp(int(p.Y+p.DY), 0, t.cfg.Height-1)
	return x, y
}

// search probes square rings of growing radius around the predicted
// position until a blob is accepted or the radius bound is passed.
func (t *Tracker) search(f *l1frames.Frame, p Peak) (l2blobs.Blob, bool) {
	cx, cy := t.predict(p)
	if b, ok := t.probe(f, cx, cy); ok {
		return b, true
	}

	step := t.cfg.Stride
	for r := step; r <= t.cfg.MaxSearchDistance; r += step {
		for x := cx - r; x <= cx+r; x += step {
			if b, ok := t.probe(f, x, cy-r); ok {
				return b, true
			}
			if b, ok := t.probe(f, x, cy+r); ok {
				return b, true
			}
		}
		for y := cy - r + step; y < cy+r; y += step {
			if b, ok := t.probe(f, cx-r, y); ok {
				return b, true
			}
			if b, ok := t.probe(f, cx+r, y); ok {
				return b, true
			}
		}
	}
	return l2blobs.Blob{}, false
}

// scanFrame walks the stride grid in row-major order.
func (t *Tracker) scanFrame(f *l1frames.Frame) (l2blobs.Blob, bool) {
	for y := 0; y < t.cfg.Height; y += t.cfg.Stride {
		for x := 0; x < t.cfg.Width; x += t.cfg.Stride {
			if b, ok := t.probe(f, x, y); ok {
				return b, true
			}
		}
	}
	return l2blobs.Blob{}, false
}

func (t *Tracker) probe(f *l1frames.Frame, x, y int) (l2blobs.Blob, bool) {
	if !f.InBounds(x, y) || !t.scanner.Candidate(f, x, y) {
		return l2blobs.Blob{}, false
	}
	b, err := t.scanner.Scan(f, x, y)
	if err != nil {
		gun.Tracef("rejected blob at (%d,%d): %v", x, y, err)
		return l2blobs.Blob{}, false
	}
	return b, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
