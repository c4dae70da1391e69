// Package hw connects the control layer to physical buttons, LEDs and the
// recoil solenoid. Three backends exist: native Raspberry Pi GPIO through
// periph.io, a USB microcontroller bridge speaking the serialmux line
// protocol, and an in-memory simulation for development and tests.
package hw

import (
	"context"
	"fmt"
	"strings"

	"github.com/banshee-data/pigun/internal/gun/l5control"
	"github.com/banshee-data/pigun/internal/serialmux"
)

// Backend is a complete I/O surface for the control state machine.
type Backend interface {
	l5control.RawButtons
	l5control.Outputs
	Close() error
}

// Kind names a backend.
type Kind string

const (
	KindGPIO   Kind = "gpio"
	KindBridge Kind = "bridge"
	KindSim    Kind = "sim"
)

// ParseKind accepts a backend name case-insensitively.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindGPIO, KindBridge, KindSim:
		return k, nil
	case "":
		return KindSim, nil
	}
	return "", fmt.Errorf("unknown hardware backend %q: expected gpio, bridge or sim", s)
}

// PinMap assigns GPIO line names to buttons and outputs.
type PinMap struct {
	Buttons [l5control.NumButtons]string
	Outputs [l5control.NumPins]string
	// OutputActiveLow marks outputs that are on when driven low.
	OutputActiveLow [l5control.NumPins]bool
}

// DefaultPinMap is the wiring of the reference build (BCM numbering).
// Buttons close to ground against the internal pull-ups. The solenoid
// driver is active low.
func DefaultPinMap() PinMap {
	var m PinMap
	m.Buttons[l5control.Trigger] = "GPIO17"
	m.Buttons[l5control.Reload] = "GPIO27"
	m.Buttons[l5control.Mag] = "GPIO22"
	m.Buttons[l5control.DpadCenter] = "GPIO24"
	m.Buttons[l5control.DpadUp] = "GPIO8"
	m.Buttons[l5control.DpadDown] = "GPIO12"
	m.Buttons[l5control.DpadLeft] = "GPIO25"
	m.Buttons[l5control.DpadRight] = "GPIO23"
	m.Buttons[l5control.Calibrate] = "GPIO15"

	m.Outputs[l5control.PinError] = "GPIO16"
	m.Outputs[l5control.PinCalibration] = "GPIO20"
	m.Outputs[l5control.PinReady] = "GPIO21"
	m.Outputs[l5control.PinRecoil] = "GPIO14"
	m.OutputActiveLow[l5control.PinRecoil] = true
	return m
}

// Config selects and parameterises a backend.
type Config struct {
	Kind          Kind
	Pins          PinMap
	BridgePath    string
	BridgeOptions serialmux.PortOptions
	// PortFactory opens the bridge port; nil means real hardware.
	PortFactory serialmux.SerialPortFactory
	// Lookup resolves GPIO names; nil means periph's registry.
	Lookup PinLookup
}

// Open initialises the configured backend. A bridge backend starts
// reading lines immediately and stops when ctx is done or on Close.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Kind {
	case KindGPIO:
		lookup := cfg.Lookup
		if lookup == nil {
			var err error
			if lookup, err = PeriphLookup(); err != nil {
				return nil, err
			}
		}
		return NewGPIO(cfg.Pins, lookup)
	case KindBridge:
		factory := cfg.PortFactory
		if factory == nil {
			factory = serialmux.RealPortFactory
		}
		port, err := factory.Open(cfg.BridgePath, cfg.BridgeOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to open bridge %s: %w", cfg.BridgePath, err)
		}
		return StartBridge(ctx, serialmux.NewSerialMux(port))
	case KindSim, "":
		return NewSim(), nil
	}
	return nil, fmt.Errorf("unknown hardware backend %q", cfg.Kind)
}
