package serialmux

import (
	"context"
	"fmt"
	"log"
)

// LineHandler receives decoded bridge lines.
type LineHandler interface {
	HandleButtons(levels uint16)
	HandleVersion(version string)
	HandleError(msg string)
}

// HandleEvent decodes payload and dispatches it to h.
func HandleEvent(h LineHandler, payload string) error {
	l, err := ParseLine(payload)
	if err != nil {
		return fmt.Errorf("failed to parse bridge line: %w", err)
	}
	switch l.Kind {
	case LineButtons:
		h.HandleButtons(l.Levels)
	case LineVersion:
		h.HandleVersion(l.Payload)
	case LineError:
		h.HandleError(l.Payload)
	case LineAck:
	default:
		log.Printf("unknown bridge line: %s", payload)
	}
	return nil
}

// Dispatch subscribes to m and feeds every line to h until ctx is done or
// the mux closes.
func Dispatch(ctx context.Context, m Mux, h LineHandler) {
	id, lines := m.Subscribe()
	defer m.Unsubscribe(id)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if err := HandleEvent(h, line); err != nil {
				log.Printf("bridge: %v", err)
			}
		}
	}
}
