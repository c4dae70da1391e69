package l4aim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pigun/internal/gun/l3markers"
)

func rect(x0, y0, x1, y1 float32) l3markers.OrderedMarkers {
	return l3markers.OrderedMarkers{
		{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x0, Y: y1}, {X: x1, Y: y1},
	}
}

func TestRaw_SeedRectangleIsCentre(t *testing.T) {
	t.Parallel()
	p := NewProjector(640, 480)
	got, err := p.Raw(rect(160, 120, 480, 360))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.X, 1e-9)
	assert.InDelta(t, 0.5, got.Y, 1e-9)
}

func TestRaw_CornersMapToUnitSquare(t *testing.T) {
	t.Parallel()
	p := NewProjector(640, 480)

	// Top-left marker sitting on the optical centre.
	got, err := p.Raw(rect(320, 240, 640, 480))
	require.NoError(t, err)
	assert.InDelta(t, 0, got.X, 1e-9)
	assert.InDelta(t, 0, got.Y, 1e-9)

	// Bottom-right marker on the optical centre.
	got, err = p.Raw(rect(0, 0, 320, 240))
	require.NoError(t, err)
	assert.InDelta(t, 1, got.X, 1e-9)
	assert.InDelta(t, 1, got.Y, 1e-9)
}

func TestRaw_OffsetRectangle(t *testing.T) {
	t.Parallel()
	p := NewProjector(640, 480)
	got, err := p.Raw(rect(100, 50, 500, 450))
	require.NoError(t, err)
	assert.InDelta(t, 0.55, got.X, 1e-9)
	assert.InDelta(t, 0.475, got.Y, 1e-9)
}

func TestRaw_Degenerate(t *testing.T) {
	t.Parallel()
	p := NewProjector(640, 480)
	_, err := p.Raw(l3markers.OrderedMarkers{})
	assert.ErrorIs(t, err, ErrDegenerateMarkers)

	_, err = p.Project(rect(10, 10, 10, 10), DefaultAnchor())
	assert.ErrorIs(t, err, ErrDegenerateMarkers)
}

func TestCalibrate_IdentityIsClamp(t *testing.T) {
	t.Parallel()
	for _, raw := range []Point{{-0.3, 0.2}, {0.5, 0.5}, {1.7, -2}, {0, 1}, {0.25, 0.75}} {
		got := Calibrate(raw, DefaultAnchor())
		want := Point{math.Max(0, math.Min(1, raw.X)), math.Max(0, math.Min(1, raw.Y))}
		assert.InDelta(t, want.X, got.Calibrated.X, 1e-12, "%v", raw)
		assert.InDelta(t, want.Y, got.Calibrated.Y, 1e-12, "%v", raw)
		assert.Equal(t, raw, got.Raw)
		assert.False(t, got.NotCalibratedX || got.NotCalibratedY)
	}
}

func TestCalibrate_RemapsAnchorRectangle(t *testing.T) {
	t.Parallel()
	a := Anchor{TopLeft: Point{0.2, 0.1}, BottomRight: Point{0.8, 0.9}}

	got := Calibrate(Point{0.2, 0.1}, a)
	assert.Equal(t, int16(-32767), got.X)
	assert.Equal(t, int16(-32767), got.Y)

	got = Calibrate(Point{0.8, 0.9}, a)
	assert.Equal(t, int16(32767), got.X)
	assert.Equal(t, int16(32767), got.Y)

	got = Calibrate(Point{0.5, 0.5}, a)
	assert.Equal(t, int16(0), got.X)
	assert.Equal(t, int16(0), got.Y)
}

func TestCalibrate_NotCalibratedAxisIsMidpoint(t *testing.T) {
	t.Parallel()
	a := Anchor{TopLeft: Point{0.4, 0.1}, BottomRight: Point{0.4, 0.9}}
	got := Calibrate(Point{0.9, 0.9}, a)
	assert.True(t, got.NotCalibratedX)
	assert.False(t, got.NotCalibratedY)
	assert.Equal(t, int16(0), got.X)
	assert.Equal(t, int16(32767), got.Y)
}

func TestToAxis(t *testing.T) {
	t.Parallel()
	assert.Equal(t, int16(-32767), ToAxis(0))
	assert.Equal(t, int16(0), ToAxis(0.5))
	assert.Equal(t, int16(32767), ToAxis(1))
	assert.Equal(t, int16(16384), ToAxis(0.75))
}

func TestHomographyAgreesOnRectangles(t *testing.T) {
	t.Parallel()
	p := NewProjector(640, 480)
	for _, m := range []l3markers.OrderedMarkers{
		rect(160, 120, 480, 360),
		rect(100, 50, 500, 450),
		rect(300, 200, 620, 470),
	} {
		raw, err := p.Raw(m)
		require.NoError(t, err)
		h, err := p.HomographyAim(m)
		require.NoError(t, err)
		assert.InDelta(t, raw.X, h.X, 1e-6)
		assert.InDelta(t, raw.Y, h.Y, 1e-6)
	}
}

func TestMarkerHomography_MapsCorners(t *testing.T) {
	t.Parallel()
	m := l3markers.OrderedMarkers{{X: 120, Y: 80}, {X: 520, Y: 110}, {X: 90, Y: 400}, {X: 540, Y: 380}}
	h, err := MarkerHomography(m)
	require.NoError(t, err)
	for i, want := range unitCorners {
		got, ok := h.Apply(float64(m[i].X), float64(m[i].Y))
		require.True(t, ok)
		assert.InDelta(t, want.X, got.X, 1e-6)
		assert.InDelta(t, want.Y, got.Y, 1e-6)
	}

	_, err = MarkerHomography(l3markers.OrderedMarkers{})
	assert.ErrorIs(t, err, ErrDegenerateMarkers)
}
