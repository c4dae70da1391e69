package l1frames

import (
	"bytes"
	"fmt"
	"image"

	"golang.org/x/image/bmp"

	"github.com/banshee-data/pigun/internal/fsutil"
)

// Image wraps the frame in an image.Gray sharing its buffer.
func (f *Frame) Image() *image.Gray {
	return &image.Gray{Pix: f.Pix, Stride: f.Width, Rect: image.Rect(0, 0, f.Width, f.Height)}
}

// DumpRaw writes the luminance plane unchanged.
func DumpRaw(fs fsutil.FileSystem, path string, f *Frame) error {
	if err := fs.WriteFileAtomic(path, f.Pix, 0o644); err != nil {
		return fmt.Errorf("dump raw frame: %w", err)
	}
	return nil
}

// DumpBMP writes the frame as an 8-bit greyscale bitmap.
func DumpBMP(fs fsutil.FileSystem, path string, f *Frame) error {
	var buf bytes.Buffer
	if err := bmp.Encode(&buf, f.Image()); err != nil {
		return fmt.Errorf("encode bmp: %w", err)
	}
	if err := fs.WriteFileAtomic(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("dump bmp frame: %w", err)
	}
	return nil
}

// ReadRaw loads a frame written by DumpRaw.
func ReadRaw(fs fsutil.FileSystem, path string, width, height int) (*Frame, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	f := &Frame{Width: width, Height: height, Pix: data}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}
