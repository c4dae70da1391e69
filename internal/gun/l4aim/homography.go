package l4aim

import (
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/pigun/internal/gun/l3markers"
)

// Homography is a 3x3 projective map stored row-major with h[8] == 1.
type Homography [9]float64

// Apply maps (x, y) through the homography.
func (h Homography) Apply(x, y float64) (Point, bool) {
	w := h[6]*x + h[7]*y + h[8]
	if w == 0 {
		return Point{}, false
	}
	return Point{
		X: (h[0]*x + h[1]*y + h[2]) / w,
		Y: (h[3]*x + h[4]*y + h[5]) / w,
	}, true
}

// unitCorners are the marker roles' targets in aim space.
var unitCorners = [4]Point{
	l3markers.TopLeft:     {0, 0},
	l3markers.TopRight:    {1, 0},
	l3markers.BottomLeft:  {0, 1},
	l3markers.BottomRight: {1, 1},
}

// MarkerHomography solves the full 8-parameter map from image markers to
// the unit square.
func MarkerHomography(m l3markers.OrderedMarkers) (Homography, error) {
	a := mat.NewDense(8, 8, nil)
	b := mat.NewVecDense(8, nil)
	for i := range 4 {
		X, Y := float64(m[i].X), float64(m[i].Y)
		x, y := unitCorners[i].X, unitCorners[i].Y
		r := 2 * i
		a.SetRow(r, []float64{X, Y, 1, 0, 0, 0, -X * x, -Y * x})
		b.SetVec(r, x)
		a.SetRow(r+1, []float64{0, 0, 0, X, Y, 1, -X * y, -Y * y})
		b.SetVec(r+1, y)
	}

	var h mat.VecDense
	if err := h.SolveVec(a, b); err != nil {
		return Homography{}, ErrDegenerateMarkers
	}
	var out Homography
	for i := range 8 {
		out[i] = h.AtVec(i)
	}
	out[8] = 1
	return out, nil
}

// HomographyAim projects the frame centre with the full homography. It
// agrees with Raw when the markers form an axis-aligned rectangle and
// serves as a diagnostic for how far the closed form drifts under
// perspective.
func (p *Projector) HomographyAim(m l3markers.OrderedMarkers) (Point, error) {
	h, err := MarkerHomography(m)
	if err != nil {
		return Point{}, err
	}
	pt, ok := h.Apply(float64(p.Width)/2, float64(p.Height)/2)
	if !ok {
		return Point{}, ErrDegenerateMarkers
	}
	return pt, nil
}
