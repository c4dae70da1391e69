package l1frames

import (
	"bytes"
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/banshee-data/pigun/internal/fsutil"
)

func TestParseFormat(t *testing.T) {
	t.Parallel()
	for in, want := range map[string]Format{"grey": FormatGrey, "gray": FormatGrey, "yuv420": FormatYUV420} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("rgb")
	assert.Error(t, err)

	assert.Equal(t, 640*480*3/2, FormatYUV420.FrameBytes(640, 480))
	assert.Equal(t, 640*480, FormatGrey.FrameBytes(640, 480))
}

func TestFrameHelpers(t *testing.T) {
	t.Parallel()
	f := NewBlankFrame(8, 4)
	require.NoError(t, f.Validate())

	f.Set(3, 2, 99)
	f.Set(-1, 0, 1) // ignored
	f.Set(8, 0, 1)  // ignored
	assert.Equal(t, uint8(99), f.At(3, 2))
	assert.True(t, f.InBounds(7, 3))
	assert.False(t, f.InBounds(8, 3))

	c := f.Clone()
	c.Set(3, 2, 0)
	assert.Equal(t, uint8(99), f.At(3, 2), "clone must not alias")

	bad := &Frame{Width: 4, Height: 4, Pix: make([]byte, 3)}
	assert.Error(t, bad.Validate())
}

func TestStreamSource_YUVDeliversLumaPlane(t *testing.T) {
	t.Parallel()
	const w, h = 4, 2
	var stream bytes.Buffer
	for i := 0; i < 3; i++ {
		luma := bytes.Repeat([]byte{byte(10 * (i + 1))}, w*h)
		chroma := bytes.Repeat([]byte{0xEE}, w*h/2)
		stream.Write(luma)
		stream.Write(chroma)
	}

	var seen []uint8
	err := NewStreamSource(&stream, w, h, FormatYUV420, nil).Run(context.Background(), func(f *Frame) error {
		require.Len(t, f.Pix, w*h)
		seen = append(seen, f.At(w-1, h-1))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint8{10, 20, 30}, seen)
}

func TestStreamSource_StopAndErrors(t *testing.T) {
	t.Parallel()
	data := make([]byte, 16*3)

	calls := 0
	err := NewStreamSource(bytes.NewReader(data), 4, 4, FormatGrey, nil).Run(context.Background(), func(*Frame) error {
		calls++
		return ErrStop
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	err = NewStreamSource(bytes.NewReader(data), 4, 4, FormatGrey, nil).Run(context.Background(), func(*Frame) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)

	// A truncated trailing frame is a read error, not EOF.
	err = NewStreamSource(bytes.NewReader(make([]byte, 20)), 4, 4, FormatGrey, nil).Run(context.Background(), func(*Frame) error {
		return nil
	})
	assert.Error(t, err)
}

func TestReplaySource_LoopsUntilStopped(t *testing.T) {
	t.Parallel()
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("rec.raw", append(bytes.Repeat([]byte{1}, 4), bytes.Repeat([]byte{2}, 4)...), 0o644))

	src := NewReplaySource(ReplayConfig{Path: "rec.raw", Width: 2, Height: 2, Format: FormatGrey, Loop: true}, fs, nil)

	var values []uint8
	var seqs []uint64
	err := src.Run(context.Background(), func(f *Frame) error {
		values = append(values, f.At(0, 0))
		seqs = append(seqs, f.Seq)
		if len(values) == 5 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []uint8{1, 2, 1, 2, 1}, values)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, seqs)
}

func TestReplaySource_RejectsShortRecording(t *testing.T) {
	t.Parallel()
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, fs.WriteFile("short.raw", []byte{1, 2}, 0o644))
	src := NewReplaySource(ReplayConfig{Path: "short.raw", Width: 2, Height: 2, Format: FormatGrey}, fs, nil)
	assert.Error(t, src.Run(context.Background(), func(*Frame) error { return nil }))
}

func TestSyntheticSource_RendersFourMarkers(t *testing.T) {
	t.Parallel()
	cfg := DefaultSyntheticConfig()
	cfg.FPS = 0
	cfg.Frames = 3
	src := NewSyntheticSource(cfg, nil)

	frames := 0
	err := src.Run(context.Background(), func(f *Frame) error {
		for _, c := range src.MarkerCentres(f.Seq) {
			assert.Equal(t, cfg.Intensity, f.At(c[0], c[1]))
		}
		assert.Equal(t, cfg.Noise, f.At(0, 0))
		frames++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, frames)
}

func TestSyntheticSource_CancelWhilePaced(t *testing.T) {
	t.Parallel()
	cfg := DefaultSyntheticConfig()
	cfg.FPS = 1
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := NewSyntheticSource(cfg, nil).Run(ctx, func(*Frame) error { return nil })
	assert.NoError(t, err)
}

func TestDrawShapes(t *testing.T) {
	t.Parallel()
	f := NewBlankFrame(20, 20)
	DrawSquare(f, 10, 10, 2, 200)
	n := 0
	for _, p := range f.Pix {
		if p == 200 {
			n++
		}
	}
	assert.Equal(t, 25, n)

	Fill(f, 0)
	DrawDisc(f, 10, 10, 3, 50)
	n = 0
	for _, p := range f.Pix {
		if p == 50 {
			n++
		}
	}
	assert.Equal(t, 29, n)
}

func TestDumpRoundTrip(t *testing.T) {
	t.Parallel()
	fs := fsutil.NewMemoryFileSystem()
	f := NewBlankFrame(6, 4)
	DrawSquare(f, 2, 2, 1, 180)

	require.NoError(t, DumpRaw(fs, "CALframe.bin", f))
	got, err := ReadRaw(fs, "CALframe.bin", 6, 4)
	require.NoError(t, err)
	assert.Equal(t, f.Pix, got.Pix)

	_, err = ReadRaw(fs, "CALframe.bin", 5, 5)
	assert.Error(t, err)

	require.NoError(t, DumpBMP(fs, "CALframe.bmp", f))
	data, err := fs.ReadFile("CALframe.bmp")
	require.NoError(t, err)
	img, err := bmp.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 6, 4), img.Bounds())
	r, _, _, _ := img.At(2, 2).RGBA()
	assert.Equal(t, uint32(180)*0x101, r)
}

func TestGocvStubOrAvailable(t *testing.T) {
	t.Parallel()
	if GocvAvailable {
		t.Skip("opencv build")
	}
	_, err := NewGocvSource(GocvConfig{Device: "0"})
	assert.Error(t, err)
}

func TestLibcameraArgs(t *testing.T) {
	t.Parallel()
	src := NewLibcameraSource(LibcameraConfig{Width: 640, Height: 480, FPS: 120})
	args := src.Args()
	assert.Equal(t, []string{"-o", "-"}, args[len(args)-2:])
	assert.Contains(t, args, "--framerate")
	assert.Contains(t, args, "120")
}
