package hw

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/gun/l5control"
)

// Pin is the part of a GPIO line the backend uses. gpio.PinIO satisfies
// it.
type Pin interface {
	Name() string
	In(pull gpio.Pull, edge gpio.Edge) error
	Read() gpio.Level
	Out(l gpio.Level) error
}

// PinLookup resolves a line name, returning nil when it does not exist.
type PinLookup func(name string) Pin

// PeriphLookup initialises periph's host drivers and resolves names
// through its registry.
func PeriphLookup() (PinLookup, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialise GPIO host drivers: %w", err)
	}
	return func(name string) Pin {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil
		}
		return p
	}, nil
}

// GPIO reads buttons and drives outputs on native GPIO lines.
type GPIO struct {
	buttons   [l5control.NumButtons]Pin
	outputs   [l5control.NumPins]Pin
	activeLow [l5control.NumPins]bool
	edges     l5control.EdgeDetector
}

// NewGPIO configures every mapped line: buttons as pulled-up inputs,
// outputs driven to their off level. Unmapped entries are skipped.
func NewGPIO(m PinMap, lookup PinLookup) (*GPIO, error) {
	g := &GPIO{activeLow: m.OutputActiveLow}
	var errs []error
	for b, name := range m.Buttons {
		if name == "" {
			continue
		}
		p := lookup(name)
		if p == nil {
			errs = append(errs, fmt.Errorf("button %s: no GPIO line %q", l5control.Button(b), name))
			continue
		}
		if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
			errs = append(errs, fmt.Errorf("button %s: %w", l5control.Button(b), err))
			continue
		}
		g.buttons[b] = p
	}
	for o, name := range m.Outputs {
		if name == "" {
			continue
		}
		p := lookup(name)
		if p == nil {
			errs = append(errs, fmt.Errorf("output %s: no GPIO line %q", l5control.Pin(o), name))
			continue
		}
		g.outputs[o] = p
		if err := g.Write(l5control.Pin(o), false); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	gun.Opsf("GPIO backend ready")
	return g, nil
}

// Sample reads every button. Lines are active low.
func (g *GPIO) Sample() (l5control.Sample, error) {
	var levels l5control.ButtonSet
	for b, p := range g.buttons {
		if p != nil && p.Read() == gpio.Low {
			levels |= l5control.Buttons(l5control.Button(b))
		}
	}
	return g.edges.Next(levels), nil
}

// Write drives a logical output, applying its polarity.
func (g *GPIO) Write(pin l5control.Pin, on bool) error {
	if pin < 0 || pin >= l5control.NumPins {
		return fmt.Errorf("invalid output %s", pin)
	}
	p := g.outputs[pin]
	if p == nil {
		return nil
	}
	level := gpio.Level(on != g.activeLow[pin])
	if err := p.Out(level); err != nil {
		return fmt.Errorf("output %s (%s): %w", pin, p.Name(), err)
	}
	return nil
}

// Close switches every output off.
func (g *GPIO) Close() error {
	var errs []error
	for o := range g.outputs {
		errs = append(errs, g.Write(l5control.Pin(o), false))
	}
	return errors.Join(errs...)
}
