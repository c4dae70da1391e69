package l1frames

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrStop may be returned by a Handler to end a Source's Run without error.
var ErrStop = errors.New("l1frames: stop")

// Frame is a single-channel 8-bit luminance image. The Pix buffer is owned
// by the Source and is only valid until the Handler returns.
type Frame struct {
	Width  int
	Height int
	Pix    []byte // row-major, len Width*Height
	Seq    uint64
	Time   time.Time
}

// NewBlankFrame allocates a zeroed frame.
func NewBlankFrame(width, height int) *Frame {
	return &Frame{Width: width, Height: height, Pix: make([]byte, width*height)}
}

// At returns the intensity at (x, y). Callers must stay in bounds.
func (f *Frame) At(x, y int) uint8 {
	return f.Pix[y*f.Width+x]
}

// Set writes an intensity at (x, y), ignoring out-of-bounds writes.
func (f *Frame) Set(x, y int, v uint8) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	f.Pix[y*f.Width+x] = v
}

// InBounds reports whether (x, y) lies inside the frame.
func (f *Frame) InBounds(x, y int) bool {
	return x >= 0 && y >= 0 && x < f.Width && y < f.Height
}

// Clone returns a deep copy that outlives the callback.
func (f *Frame) Clone() *Frame {
	c := *f
	c.Pix = append([]byte(nil), f.Pix...)
	return &c
}

// Validate checks that the buffer matches the declared geometry.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame size %dx%d", f.Width, f.Height)
	}
	if len(f.Pix) != f.Width*f.Height {
		return fmt.Errorf("frame buffer is %d bytes, want %d", len(f.Pix), f.Width*f.Height)
	}
	return nil
}

// Handler consumes one frame. Returning ErrStop ends the Source cleanly;
// any other error ends it and is returned from Run.
type Handler func(*Frame) error

// Source delivers frames to a Handler until the context is cancelled, the
// stream ends or the handler stops it.
type Source interface {
	Run(ctx context.Context, h Handler) error
}

// Format is the raw pixel layout of a byte stream.
type Format int

const (
	// FormatGrey is one byte per pixel.
	FormatGrey Format = iota
	// FormatYUV420 is planar I420; only the Y plane is delivered.
	FormatYUV420
)

// ParseFormat maps a config string to a Format.
func ParseFormat(s string) (Format, error) {
	switch s {
	case "grey", "gray", "y8":
		return FormatGrey, nil
	case "yuv420", "i420":
		return FormatYUV420, nil
	}
	return 0, fmt.Errorf("unknown frame format %q", s)
}

func (f Format) String() string {
	switch f {
	case FormatGrey:
		return "grey"
	case FormatYUV420:
		return "yuv420"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FrameBytes returns the encoded size of one frame in this format.
func (f Format) FrameBytes(width, height int) int {
	if f == FormatYUV420 {
		return width * height * 3 / 2
	}
	return width * height
}

func callHandler(h Handler, f *Frame) (stop bool, err error) {
	if err := h(f); err != nil {
		if errors.Is(err, ErrStop) {
			return true, nil
		}
		return true, err
	}
	return false, nil
}
