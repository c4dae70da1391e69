// Package report holds the pointer report shared between the frame loop
// and the transport goroutines.
package report

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/banshee-data/pigun/internal/gun/l5control"
)

const (
	// HeaderInput prefixes device-to-host reports.
	HeaderInput byte = 0xa1
	// HeaderOutput prefixes host-to-device output reports.
	HeaderOutput byte = 0xa2
	// ReportID is the HID report id of the pointer report.
	ReportID byte = 0x03
	// WireSize is the encoded report length.
	WireSize = 6
)

// Report is the pointer state sent to the host.
// Layout: 0xa1, x lo, x hi, y lo, y hi, buttons.
type Report struct {
	X       int16
	Y       int16
	Buttons uint8
}

// MarshalBinary encodes the report.
func (r Report) MarshalBinary() ([]byte, error) {
	return r.AppendBinary(make([]byte, 0, WireSize))
}

// AppendBinary appends the encoded report to b.
func (r Report) AppendBinary(b []byte) ([]byte, error) {
	return append(b,
		HeaderInput,
		byte(r.X), byte(r.X>>8),
		byte(r.Y), byte(r.Y>>8),
		r.Buttons,
	), nil
}

// UnmarshalBinary decodes a report written by MarshalBinary.
func (r *Report) UnmarshalBinary(data []byte) error {
	if len(data) < WireSize {
		return io.ErrUnexpectedEOF
	}
	if data[0] != HeaderInput {
		return fmt.Errorf("unexpected report header 0x%02x", data[0])
	}
	r.X = int16(data[1]) | int16(data[2])<<8
	r.Y = int16(data[3]) | int16(data[4])<<8
	r.Buttons = data[5]
	return nil
}

// Snapshot is everything a reader sees for one frame.
type Snapshot struct {
	Report   Report
	State    l5control.State
	Tracking bool // all four markers resolved this frame
	Seq      uint64
	At       time.Time
}

// Shared is the mutex-guarded latest snapshot. The writer overwrites it
// every frame; readers always see a complete snapshot.
type Shared struct {
	mu   sync.Mutex
	snap Snapshot
	cond chan struct{}
}

// NewShared returns an empty shared report.
func NewShared() *Shared {
	return &Shared{cond: make(chan struct{})}
}

// Store publishes a new snapshot and wakes waiters.
func (s *Shared) Store(snap Snapshot) {
	s.mu.Lock()
	s.snap = snap
	ch := s.cond
	s.cond = make(chan struct{})
	s.mu.Unlock()
	close(ch)
}

// Load returns the latest snapshot.
func (s *Shared) Load() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Changed returns a channel closed at the next Store, and the snapshot
// current when it was obtained.
func (s *Shared) Changed() (<-chan struct{}, Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cond, s.snap
}
