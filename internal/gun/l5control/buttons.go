package l5control

import (
	"fmt"
	"strings"
)

// Button identifies a physical input.
type Button int

const (
	Trigger Button = iota
	Reload
	Mag
	DpadCenter
	DpadUp
	DpadDown
	DpadLeft
	DpadRight
	Calibrate
	NumButtons
)

var buttonNames = [NumButtons]string{"TRG", "RLD", "MAG", "BT0", "BTU", "BTD", "BTL", "BTR", "CAL"}

func (b Button) String() string {
	if b >= 0 && b < NumButtons {
		return buttonNames[b]
	}
	return fmt.Sprintf("Button(%d)", int(b))
}

// ButtonSet is a bitmask with bit i set for Button i.
type ButtonSet uint16

// Buttons builds a set.
func Buttons(bs ...Button) ButtonSet {
	var s ButtonSet
	for _, b := range bs {
		s |= 1 << uint(b)
	}
	return s
}

// Has reports whether b is in the set.
func (s ButtonSet) Has(b Button) bool { return s&(1<<uint(b)) != 0 }


// ReportByte is the low byte sent to the host. Calibrate is bit 8 and is
// never reported.
func (s ButtonSet) ReportByte() uint8 { return uint8(s) }

func (s ButtonSet) String() string {
	var names []string
	for b := Button(0); b < NumButtons; b++ {
		if s.Has(b) {
			names = append(names, b.String())
		}
	}
	return "[" + strings.Join(names, " ") + "]"
}

// Sample is one read of the raw inputs: current levels and the buttons
// whose level rose since the previous read.
type Sample struct {
	Levels ButtonSet
	Edges  ButtonSet
}

// RawButtons is polled once per frame.
type RawButtons interface {
	Sample() (Sample, error)
}

// EdgeDetector derives rising edges from successive level reads, for
// backends that only report levels.
type EdgeDetector struct {
	prev ButtonSet
}

// Next returns the sample for the given levels.
func (e *EdgeDetector) Next(levels ButtonSet) Sample {
	s := Sample{Levels: levels, Edges: levels &^ e.prev}
	e.prev = levels
	return s
}

// ButtonState is the debounced result for one frame.
type ButtonState struct {
	Held    ButtonSet // currently held, as reported to the host
	Pressed ButtonSet // newly pressed this frame
}

// Debouncer suppresses contact bounce. After a release a button
// recharges for delay frames before another press can register.
type Debouncer struct {
	delay  int
	status [NumButtons]int // 0 ready, 1 pressed, <0 recharging
	held   ButtonSet
}

// NewDebouncer returns a debouncer with the given recharge time.
func NewDebouncer(delay int) *Debouncer {
	return &Debouncer{delay: delay}
}

// Update advances one frame.
func (d *Debouncer) Update(s Sample) ButtonState {
	var pressed ButtonSet
	for b := Button(0); b < NumButtons; b++ {
		bit := ButtonSet(1) << uint(b)
		switch {
		case s.Edges&bit != 0 && d.status[b] == 0:
			pressed |= bit
			d.held |= bit
			d.status[b] = 1
		case s.Levels&bit == 0 && d.status[b] == 1:
			d.held &^= bit
			d.status[b] = -d.delay
		case d.status[b] < 0:
			d.status[b]++
		}
	}
	return ButtonState{Held: d.held, Pressed: pressed}
}

// Held returns the current debounced held set.
func (d *Debouncer) Held() ButtonSet { return d.held }
