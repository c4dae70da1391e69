package l5control

import (
	"fmt"
	"os/exec"

	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/gun/l4aim"
)

// Pin is a logical output.
type Pin int

const (
	PinReady Pin = iota
	PinError
	PinCalibration
	PinRecoil
	NumPins
)

func (p Pin) String() string {
	switch p {
	case PinReady:
		return "ready"
	case PinError:
		return "error"
	case PinCalibration:
		return "calibration"
	case PinRecoil:
		return "recoil"
	}
	return fmt.Sprintf("Pin(%d)", int(p))
}

// Outputs drives LEDs and the recoil actuator. on=true lights an LED or
// fires the actuator; backends translate to electrical polarity.
type Outputs interface {
	Write(pin Pin, on bool) error
}

// AnchorStore persists calibration. Implementations must not block the
// frame loop.
type AnchorStore interface {
	SaveAnchor(a l4aim.Anchor) error
}

// Shutdowner powers the device off.
type Shutdowner interface {
	Shutdown() error
}

// CommandShutdowner runs an external power-off command.
type CommandShutdowner struct {
	Command []string
	// DryRun logs instead of executing.
	DryRun bool
}

// DefaultShutdownCommand powers off a Raspberry Pi immediately.
var DefaultShutdownCommand = []string{"sudo", "shutdown", "-P", "now"}

// Shutdown runs the command, or logs it in dry-run mode.
func (c CommandShutdowner) Shutdown() error {
	cmd := c.Command
	if len(cmd) == 0 {
		cmd = DefaultShutdownCommand
	}
	if c.DryRun {
		gun.Opsf("shutdown requested (dry run): %v", cmd)
		return nil
	}
	gun.Opsf("shutting down: %v", cmd)
	if out, err := exec.Command(cmd[0], cmd[1:]...).CombinedOutput(); err != nil {
		return fmt.Errorf("shutdown command failed: %w: %s", err, out)
	}
	return nil
}
