package l5control

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// RecoilMode selects when the actuator fires.
type RecoilMode int

const (
	// RecoilSelf fires once per trigger press.
	RecoilSelf RecoilMode = iota
	// RecoilAuto fires repeatedly while the trigger is held.
	RecoilAuto
	// RecoilHost fires when the host asks for it.
	RecoilHost
	// RecoilOff never fires.
	RecoilOff
	numRecoilModes
)

func (m RecoilMode) String() string {
	switch m {
	case RecoilSelf:
		return "self"
	case RecoilAuto:
		return "auto"
	case RecoilHost:
		return "host"
	case RecoilOff:
		return "off"
	}
	return fmt.Sprintf("RecoilMode(%d)", int(m))
}

// Next returns the mode after m in the service-menu cycle.
func (m RecoilMode) Next() RecoilMode {
	return (m + 1) % numRecoilModes
}

// ParseRecoilMode parses a mode name.
func ParseRecoilMode(s string) (RecoilMode, error) {
	for m := RecoilSelf; m < numRecoilModes; m++ {
		if strings.EqualFold(s, m.String()) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown recoil mode %q", s)
}

// Recoil times actuator pulses. Tick, Evaluate and EndFrame run on the
// frame goroutine; RequestFire may be called from any goroutine.
type Recoil struct {
	mode           RecoilMode
	cooldownFrames int
	pulseFrames    int

	cooldown int // <0 while cooling down
	pulse    int // frames left before release
	firing   bool
	fired    uint64

	hostFire atomic.Bool
}

// NewRecoil returns a recoil timer.
func NewRecoil(mode RecoilMode, cooldownFrames, pulseFrames int) *Recoil {
	if pulseFrames < 1 {
		pulseFrames = 1
	}
	return &Recoil{mode: mode, cooldownFrames: cooldownFrames, pulseFrames: pulseFrames}
}

// Mode returns the current mode.
func (r *Recoil) Mode() RecoilMode { return r.mode }

// SetMode changes the mode.
func (r *Recoil) SetMode(m RecoilMode) { r.mode = m }

// Fired returns the number of pulses started.
func (r *Recoil) Fired() uint64 { return r.fired }

// RequestFire queues a host-initiated pulse, honoured in RecoilHost mode.
func (r *Recoil) RequestFire() { r.hostFire.Store(true) }

// Tick advances the auto-fire cooldown. Called once per frame in every
// state.
func (r *Recoil) Tick() {
	if r.cooldown < 0 {
		r.cooldown++
	}
}

// Evaluate decides whether to fire this frame. Called in Idle only.
func (r *Recoil) Evaluate(out Outputs, b ButtonState) error {
	host := r.hostFire.Swap(false)

	switch r.mode {
	case RecoilAuto:
		if b.Held.Has(Trigger) && r.cooldown == 0 {
			r.cooldown = -r.cooldownFrames
			return r.Kick(out)
		}
	case RecoilSelf:
		if b.Pressed.Has(Trigger) {
			return r.Kick(out)
		}
	case RecoilHost:
		if host {
			return r.Kick(out)
		}
	}
	return nil
}

// Kick starts a pulse regardless of mode.
func (r *Recoil) Kick(out Outputs) error {
	r.firing = true
	r.pulse = r.pulseFrames
	r.fired++
	return out.Write(PinRecoil, true)
}

// EndFrame releases the actuator once the pulse has lasted pulseFrames.
func (r *Recoil) EndFrame(out Outputs) error {
	if !r.firing {
		return nil
	}
	if r.pulse > 0 {
		r.pulse--
		return nil
	}
	r.firing = false
	return out.Write(PinRecoil, false)
}

// Firing reports whether the actuator is currently driven.
func (r *Recoil) Firing() bool { return r.firing }
