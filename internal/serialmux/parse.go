package serialmux

import (
	"fmt"
	"strconv"
	"strings"
)

// Bridge line protocol. The microcontroller sends one line per event:
//
//	B <hex>      button levels, bit i set while button i is held
//	V <version>  firmware version
//	E <message>  firmware error
//	OK           command acknowledged
//
// and accepts:
//
//	V?              report version
//	I               configure inputs with pull-ups, start streaming levels
//	O <pin> <0|1>   drive a logical output
const (
	LineButtons = "buttons"
	LineVersion = "version"
	LineError   = "error"
	LineAck     = "ack"
	LineUnknown = "unknown"
)

// Line is a parsed bridge line.
type Line struct {
	Kind    string
	Levels  uint16 // LineButtons
	Payload string // LineVersion, LineError, LineUnknown
}

// ClassifyPayload returns the kind of a raw line.
func ClassifyPayload(payload string) string {
	l, err := ParseLine(payload)
	if err != nil {
		return LineUnknown
	}
	return l.Kind
}

// ParseLine decodes one bridge line.
func ParseLine(raw string) (Line, error) {
	s := strings.TrimSpace(raw)
	switch {
	case s == "OK":
		return Line{Kind: LineAck}, nil
	case strings.HasPrefix(s, "B "):
		v, err := strconv.ParseUint(strings.TrimSpace(s[2:]), 16, 16)
		if err != nil {
			return Line{}, fmt.Errorf("bad button line %q: %w", raw, err)
		}
		return Line{Kind: LineButtons, Levels: uint16(v)}, nil
	case strings.HasPrefix(s, "V "):
		return Line{Kind: LineVersion, Payload: strings.TrimSpace(s[2:])}, nil
	case strings.HasPrefix(s, "E "):
		return Line{Kind: LineError, Payload: strings.TrimSpace(s[2:])}, nil
	}
	return Line{Kind: LineUnknown, Payload: s}, nil
}

// OutputCommand formats a command driving logical output pin.
func OutputCommand(pin int, on bool) string {
	v := 0
	if on {
		v = 1
	}
	return fmt.Sprintf("O %d %d", pin, v)
}

// NumBridgeOutputs is the number of logical outputs the firmware exposes.
const NumBridgeOutputs = 4

// InitCommands returns the commands sent by Initialise.
func InitCommands() []string {
	cmds := []string{"V?", "I"}
	for pin := 0; pin < NumBridgeOutputs; pin++ {
		cmds = append(cmds, OutputCommand(pin, false))
	}
	return cmds
}
