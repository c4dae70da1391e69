// Package l5control runs the calibration and mode state machine and the
// recoil timer from debounced button input.
package l5control

import (
	"errors"
	"fmt"

	"github.com/banshee-data/pigun/internal/config"
	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/gun/l4aim"
)

// State is the control mode.
type State int

const (
	Idle State = iota
	Service
	CalTopLeft
	CalBottomRight
	Shutdown
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Service:
		return "service"
	case CalTopLeft:
		return "cal-top-left"
	case CalBottomRight:
		return "cal-bottom-right"
	case Shutdown:
		return "shutdown"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ShutdownCombo powers off when it is exactly the held set in Service.
var ShutdownCombo = Buttons(Trigger, Reload, Mag)

// Config holds the control timings.
type Config struct {
	ButtonDelayFrames    int
	RecoilCooldownFrames int
	RecoilPulseFrames    int
	RecoilMode           RecoilMode
}

// DefaultConfig returns delay 3, cooldown 6, pulse 1, self recoil.
func DefaultConfig() Config {
	return ConfigFromTuning(config.EmptyTuningConfig())
}

// ConfigFromTuning reads control timings from tuning values. An invalid
// recoil mode falls back to self.
func ConfigFromTuning(t *config.TuningConfig) Config {
	mode, err := ParseRecoilMode(t.GetRecoilMode())
	if err != nil {
		mode = RecoilSelf
	}
	return Config{
		ButtonDelayFrames:    t.GetButtonDelayFrames(),
		RecoilCooldownFrames: t.GetRecoilCooldownFrames(),
		RecoilPulseFrames:    t.GetRecoilPulseFrames(),
		RecoilMode:           mode,
	}
}

// Input is what the machine sees each frame.
type Input struct {
	Buttons ButtonState
	// Raw is the most recent raw aim, captured during calibration.
	Raw l4aim.Point
}

// Transition describes a state change. Zero value means no change.
type Transition struct {
	From State
	To   State
}

// Changed reports whether the state moved.
func (t Transition) Changed() bool { return t.From != t.To }

// Machine is the control state machine. It is driven from the frame
// goroutine only.
type Machine struct {
	state  State
	anchor l4aim.Anchor
	recoil *Recoil

	out   Outputs
	store AnchorStore
	shut  Shutdowner
}

// NewMachine creates a machine in Idle with the given anchor.
func NewMachine(cfg Config, anchor l4aim.Anchor, out Outputs, store AnchorStore, shut Shutdowner) *Machine {
	return &Machine{
		state:  Idle,
		anchor: anchor,
		recoil: NewRecoil(cfg.RecoilMode, cfg.RecoilCooldownFrames, cfg.RecoilPulseFrames),
		out:    out,
		store:  store,
		shut:   shut,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Anchor returns the active calibration.
func (m *Machine) Anchor() l4aim.Anchor { return m.anchor }

// Recoil exposes the recoil timer.
func (m *Machine) Recoil() *Recoil { return m.recoil }

// Step consumes one frame of input. At most one button event is acted on
// per frame. Collaborator errors are returned after the state has moved.
func (m *Machine) Step(in Input) (Transition, error) {
	from := m.state
	var err error
	m.recoil.Tick()

	switch m.state {
	case Idle:
		if in.Buttons.Pressed.Has(Calibrate) {
			m.state = Service
			err = m.out.Write(PinCalibration, true)
		} else {
			err = m.recoil.Evaluate(m.out, in.Buttons)
		}

	case Service:
		switch {
		case in.Buttons.Held == ShutdownCombo:
			m.state = Shutdown
			gun.Opsf("shutdown combination held")
			err = errors.Join(m.out.Write(PinCalibration, false), m.shut.Shutdown())
		case in.Buttons.Pressed.Has(Trigger):
			m.state = CalTopLeft
		case in.Buttons.Pressed.Has(Calibrate):
			m.state = Idle
			err = m.out.Write(PinCalibration, false)
		case in.Buttons.Pressed.Has(DpadCenter):
			err = m.cycleRecoil()
		}

	case CalTopLeft:
		switch {
		case in.Buttons.Pressed.Has(Trigger):
			m.anchor.TopLeft = in.Raw
			m.state = CalBottomRight
			gun.Diagf("calibration top-left = (%.4f, %.4f)", in.Raw.X, in.Raw.Y)
			err = m.store.SaveAnchor(m.anchor)
		case in.Buttons.Pressed.Has(Calibrate):
			m.state = Idle
			err = m.out.Write(PinCalibration, false)
		}

	case CalBottomRight:
		switch {
		case in.Buttons.Pressed.Has(Trigger):
			m.anchor.BottomRight = in.Raw
			m.state = Idle
			gun.Diagf("calibration bottom-right = (%.4f, %.4f)", in.Raw.X, in.Raw.Y)
			err = errors.Join(m.store.SaveAnchor(m.anchor), m.out.Write(PinCalibration, false))
		case in.Buttons.Pressed.Has(Calibrate):
			m.state = Idle
			err = m.out.Write(PinCalibration, false)
		}

	case Shutdown:
	}

	if m.state != Shutdown {
		err = errors.Join(err, m.recoil.EndFrame(m.out))
	}

	t := Transition{From: from, To: m.state}
	if t.Changed() {
		gun.Diagf("control %s -> %s", from, m.state)
	}
	return t, err
}

func (m *Machine) cycleRecoil() error {
	next := m.recoil.Mode().Next()
	m.recoil.SetMode(next)
	gun.Diagf("recoil mode %s", next)
	if next == RecoilSelf {
		return m.recoil.Kick(m.out)
	}
	return nil
}
