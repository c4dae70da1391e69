// Package l4aim converts ordered marker positions into a pointer
// coordinate on the display.
package l4aim

import (
	"errors"
	"math"

	"github.com/banshee-data/pigun/internal/gun/l3markers"
)

// ErrDegenerateMarkers is returned when the markers admit no projection,
// for example when three of them are collinear.
var ErrDegenerateMarkers = errors.New("degenerate marker geometry")

// Point is a normalised display coordinate. (0,0) is the top-left marker
// and (1,1) the bottom-right one.
type Point struct {
	X float64
	Y float64
}

// Anchor is the calibration pair captured while aiming at the display's
// top-left and bottom-right corners.
type Anchor struct {
	TopLeft     Point
	BottomRight Point
}

// DefaultAnchor maps raw aim directly, used when nothing is stored.
func DefaultAnchor() Anchor {
	return Anchor{TopLeft: Point{0, 0}, BottomRight: Point{1, 1}}
}

// Aim is the result of one projection.
type Aim struct {
	Raw        Point
	Calibrated Point // clamped to [0,1]
	X          int16
	Y          int16
	// NotCalibratedX/Y are set when the anchor spans zero on that axis.
	NotCalibratedX bool
	NotCalibratedY bool
}

// Projector maps markers seen by a Width x Height camera to aim points.
// The aim is where the camera's optical centre falls inside the marker
// quadrilateral.
type Projector struct {
	Width  int
	Height int
}

// NewProjector returns a projector for the given frame size.
func NewProjector(width, height int) *Projector {
	return &Projector{Width: width, Height: height}
}

// Raw projects the frame centre into marker space without calibration.
func (p *Projector) Raw(m l3markers.OrderedMarkers) (Point, error) {
	x1, y1 := float64(m[l3markers.TopLeft].X), float64(m[l3markers.TopLeft].Y)
	x2, y2 := float64(m[l3markers.TopRight].X), float64(m[l3markers.TopRight].Y)
	x3, y3 := float64(m[l3markers.BottomLeft].X), float64(m[l3markers.BottomLeft].Y)
	x4, y4 := float64(m[l3markers.BottomRight].X), float64(m[l3markers.BottomRight].Y)
	hw, hh := float64(p.Width)/2, float64(p.Height)/2

	dy := y1 - y3
	dxy := x1*y3 - x3*y1
	den := x4*dy + dxy - x1*y4 + x3*y4

	dyp := y1 - y2
	dxyp := x1*y2 - x2*y1
	denp := x4*dyp + dxyp - x1*y4 + x2*y4

	if den == 0 || denp == 0 {
		return Point{}, ErrDegenerateMarkers
	}

	out := Point{
		X: (dy*hw + (x3-x1)*hh + dxy) / den,
		Y: (dyp*hw + (x2-x1)*hh + dxyp) / denp,
	}
	if math.IsNaN(out.X) || math.IsInf(out.X, 0) || math.IsNaN(out.Y) || math.IsInf(out.Y, 0) {
		return Point{}, ErrDegenerateMarkers
	}
	return out, nil
}

// Project computes the raw aim and applies the calibration anchor.
func (p *Projector) Project(m l3markers.OrderedMarkers, a Anchor) (Aim, error) {
	raw, err := p.Raw(m)
	if err != nil {
		return Aim{}, err
	}
	return Calibrate(raw, a), nil
}

// Calibrate remaps raw into the anchor rectangle and converts to report
// axes. An axis whose anchor span is zero reports the midpoint.
func Calibrate(raw Point, a Anchor) Aim {
	cx, okX := remap(raw.X, a.TopLeft.X, a.BottomRight.X)
	cy, okY := remap(raw.Y, a.TopLeft.Y, a.BottomRight.Y)
	return Aim{
		Raw:            raw,
		Calibrated:     Point{cx, cy},
		X:              ToAxis(cx),
		Y:              ToAxis(cy),
		NotCalibratedX: !okX,
		NotCalibratedY: !okY,
	}
}

func remap(v, lo, hi float64) (float64, bool) {
	if hi == lo {
		return 0.5, false
	}
	c := (v - lo) / (hi - lo)
	return math.Max(0, math.Min(1, c)), true
}

// ToAxis converts a [0,1] coordinate to a signed 16-bit report axis.
func ToAxis(c float64) int16 {
	return int16(math.Round((2*c - 1) * 32767))
}
