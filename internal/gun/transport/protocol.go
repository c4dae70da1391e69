package transport

import (
	"errors"
	"fmt"

	"github.com/banshee-data/pigun/internal/gun/report"
)

// MsgHello is sent by a host announcing itself and by the device probing
// known hosts while disconnected.
const MsgHello byte = 0xa0

// Output report flags.
const (
	FlagFire byte = 1 << 0
)

var ErrShortPacket = errors.New("short packet")

// HostMessage is a decoded packet from the host.
type HostMessage struct {
	Hello bool
	Fire  bool
}

// ParseHostPacket decodes a host-to-device packet. Output reports are
// {0xa2, report id, flags}.
func ParseHostPacket(b []byte) (HostMessage, error) {
	if len(b) == 0 {
		return HostMessage{}, ErrShortPacket
	}
	switch b[0] {
	case MsgHello:
		return HostMessage{Hello: true}, nil
	case report.HeaderOutput:
		if len(b) < 3 {
			return HostMessage{}, fmt.Errorf("%w: output report of %d bytes", ErrShortPacket, len(b))
		}
		if b[1] != report.ReportID {
			return HostMessage{}, fmt.Errorf("unexpected output report id 0x%02x", b[1])
		}
		return HostMessage{Fire: b[2]&FlagFire != 0}, nil
	}
	return HostMessage{}, fmt.Errorf("unknown packet type 0x%02x", b[0])
}

// OutputReport encodes a host output report.
func OutputReport(fire bool) []byte {
	var flags byte
	if fire {
		flags |= FlagFire
	}
	return []byte{report.HeaderOutput, report.ReportID, flags}
}
