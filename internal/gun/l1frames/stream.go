package l1frames

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/banshee-data/pigun/internal/timeutil"
)

// StreamSource reads fixed-size raw frames from a byte stream. The
// luminance plane of each frame is delivered in a reused buffer.
type StreamSource struct {
	r      io.Reader
	width  int
	height int
	format Format
	clock  timeutil.Clock
}

// NewStreamSource wraps r. A nil clock uses the real clock.
func NewStreamSource(r io.Reader, width, height int, format Format, clock timeutil.Clock) *StreamSource {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &StreamSource{r: r, width: width, height: height, format: format, clock: clock}
}

// Run reads until EOF (returns nil), context cancellation, or handler stop.
func (s *StreamSource) Run(ctx context.Context, h Handler) error {
	buf := make([]byte, s.format.FrameBytes(s.width, s.height))
	frame := &Frame{Width: s.width, Height: s.height, Pix: buf[:s.width*s.height]}

	for seq := uint64(0); ; seq++ {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if _, err := io.ReadFull(s.r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame %d: %w", seq, err)
		}
		frame.Seq = seq
		frame.Time = s.clock.Now()
		if stop, err := callHandler(h, frame); stop {
			return err
		}
	}
}
