package hw

import (
	"sync"

	"github.com/banshee-data/pigun/internal/gun/l5control"
)

// Sim is an in-memory backend. Presses are latched as edges until the
// next Sample, as a real switch would be seen by a polling reader.
type Sim struct {
	mu      sync.Mutex
	levels  l5control.ButtonSet
	edges   l5control.ButtonSet
	outputs [l5control.NumPins]bool
	writes  [l5control.NumPins]int
	closed  bool
}

// NewSim returns a backend with nothing pressed and every output off.
func NewSim() *Sim { return &Sim{} }

// Press holds buttons down.
func (s *Sim) Press(bs ...l5control.Button) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := l5control.Buttons(bs...)
	s.edges |= set &^ s.levels
	s.levels |= set
}

// Release lets buttons go.
func (s *Sim) Release(bs ...l5control.Button) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels &^= l5control.Buttons(bs...)
}

func (s *Sim) Sample() (l5control.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sm := l5control.Sample{Levels: s.levels, Edges: s.edges}
	s.edges = 0
	return sm, nil
}

func (s *Sim) Write(pin l5control.Pin, on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if pin >= 0 && pin < l5control.NumPins {
		s.outputs[pin] = on
		s.writes[pin]++
	}
	return nil
}

// Output returns the last value written to pin.
func (s *Sim) Output(pin l5control.Pin) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outputs[pin]
}

// Writes counts writes to pin.
func (s *Sim) Writes(pin l5control.Pin) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes[pin]
}

func (s *Sim) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.outputs = [l5control.NumPins]bool{}
	return nil
}

// Closed reports whether Close was called.
func (s *Sim) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
