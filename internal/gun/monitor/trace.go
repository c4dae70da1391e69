// Package monitor keeps a short history of aim results and serves it on
// the debug admin routes as JSON, an interactive chart and a PNG plot.
package monitor

import (
	"sync"
	"time"

	"github.com/banshee-data/pigun/internal/gun/l3markers"
	"github.com/banshee-data/pigun/internal/gun/l5control"
	"github.com/banshee-data/pigun/internal/gun/pipeline"
)

// TracePoint is one frame in the aim trace.
type TracePoint struct {
	Seq          uint64          `json:"seq"`
	At           time.Time       `json:"at"`
	RawX         float64         `json:"raw_x"`
	RawY         float64         `json:"raw_y"`
	X            float64         `json:"x"`
	Y            float64         `json:"y"`
	Tracking     bool            `json:"tracking"`
	State        l5control.State `json:"-"`
	StateName    string          `json:"state"`
	ProcessingUs int64           `json:"processing_us"`
}

// AimTrace is a fixed-size ring of recent frames. It implements
// pipeline.Observer and never blocks the frame loop for longer than a
// copy.
type AimTrace struct {
	mu      sync.Mutex
	points  []TracePoint
	next    int
	full    bool
	markers l3markers.OrderedMarkers
	hasMark bool
}

// NewAimTrace keeps the last n frames. n < 1 is treated as 1.
func NewAimTrace(n int) *AimTrace {
	if n < 1 {
		n = 1
	}
	return &AimTrace{points: make([]TracePoint, n)}
}

// ObserveFrame records r.
func (t *AimTrace) ObserveFrame(r pipeline.Result) {
	p := TracePoint{
		Seq:          r.Seq,
		At:           r.At,
		Tracking:     r.Tracking,
		State:        r.Transition.To,
		StateName:    r.Transition.To.String(),
		ProcessingUs: r.Processing.Microseconds(),
	}
	if r.AimValid {
		p.RawX, p.RawY = r.Aim.Raw.X, r.Aim.Raw.Y
		p.X, p.Y = r.Aim.Calibrated.X, r.Aim.Calibrated.Y
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.points[t.next] = p
	t.next++
	if t.next == len(t.points) {
		t.next = 0
		t.full = true
	}
	if r.Tracking {
		t.markers = r.Markers
		t.hasMark = true
	}
}

// Points returns the trace oldest first.
func (t *AimTrace) Points() []TracePoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.full {
		return append([]TracePoint(nil), t.points[:t.next]...)
	}
	out := make([]TracePoint, 0, len(t.points))
	out = append(out, t.points[t.next:]...)
	return append(out, t.points[:t.next]...)
}

// Len is the number of frames held.
func (t *AimTrace) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.full {
		return len(t.points)
	}
	return t.next
}

// LastMarkers returns the most recent fully tracked marker set.
func (t *AimTrace) LastMarkers() (l3markers.OrderedMarkers, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.markers, t.hasMark
}
