//go:build gocv

package l1frames

import (
	"context"
	"fmt"
	"image"
	"strconv"

	"gocv.io/x/gocv"

	"github.com/banshee-data/pigun/internal/gun"
)

// GocvAvailable reports whether OpenCV capture was compiled in.
const GocvAvailable = true

type gocvSource struct {
	cfg GocvConfig
}

// NewGocvSource opens frames through OpenCV VideoCapture.
func NewGocvSource(cfg GocvConfig) (Source, error) {
	return &gocvSource{cfg: cfg}, nil
}

func (s *gocvSource) open() (*gocv.VideoCapture, error) {
	if id, err := strconv.Atoi(s.cfg.Device); err == nil {
		return gocv.VideoCaptureDevice(id)
	}
	return gocv.VideoCaptureFile(s.cfg.Device)
}

func (s *gocvSource) Run(ctx context.Context, h Handler) error {
	capture, err := s.open()
	if err != nil {
		return fmt.Errorf("open capture %q: %w", s.cfg.Device, err)
	}
	defer capture.Close()

	capture.Set(gocv.VideoCaptureFrameWidth, float64(s.cfg.Width))
	capture.Set(gocv.VideoCaptureFrameHeight, float64(s.cfg.Height))
	if s.cfg.FPS > 0 {
		capture.Set(gocv.VideoCaptureFPS, float64(s.cfg.FPS))
	}
	gun.Opsf("opencv capture opened: %s", s.cfg.Device)

	img := gocv.NewMat()
	defer img.Close()
	grey := gocv.NewMat()
	defer grey.Close()
	sized := gocv.NewMat()
	defer sized.Close()

	frame := NewBlankFrame(s.cfg.Width, s.cfg.Height)
	for seq := uint64(0); ctx.Err() == nil; seq++ {
		if ok := capture.Read(&img); !ok || img.Empty() {
			return nil
		}
		gocv.CvtColor(img, &grey, gocv.ColorBGRToGray)
		src := grey
		if grey.Cols() != s.cfg.Width || grey.Rows() != s.cfg.Height {
			gocv.Resize(grey, &sized, image.Point{X: s.cfg.Width, Y: s.cfg.Height}, 0, 0, gocv.InterpolationLinear)
			src = sized
		}
		copy(frame.Pix, src.ToBytes())
		frame.Seq = seq
		if stop, err := callHandler(h, frame); stop {
			return err
		}
	}
	return nil
}
