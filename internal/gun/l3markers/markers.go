// Package l3markers tracks the four display markers across frames and
// assigns each one its corner role.
package l3markers

import "fmt"

// Peak is a tracked marker centroid and its per-frame velocity.
type Peak struct {
	X  float32
	Y  float32
	DX float32
	DY float32
}

// Role is a marker's corner of the display.
type Role int

const (
	TopLeft Role = iota
	TopRight
	BottomLeft
	BottomRight
)

func (r Role) String() string {
	switch r {
	case TopLeft:
		return "TL"
	case TopRight:
		return "TR"
	case BottomLeft:
		return "BL"
	case BottomRight:
		return "BR"
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// OrderedMarkers holds four peaks indexed by Role.
type OrderedMarkers [4]Peak

// At returns the peak for a role.
func (m OrderedMarkers) At(r Role) Peak { return m[r] }

// before is a total order on peaks: x, then y, then velocity. Peaks it
// cannot separate are identical.
func before(a, b Peak) bool {
	switch {
	case a.X != b.X:
		return a.X < b.X
	case a.Y != b.Y:
		return a.Y < b.Y
	case a.DX != b.DX:
		return a.DX < b.DX
	}
	return a.DY < b.DY
}

// Sort assigns roles to four unordered peaks. The two smallest-x peaks
// form the left pair and the other two the right pair; within each pair
// the smaller y is on top. The result does not depend on input order.
//
// Roles are only stable while the device is within about 90 degrees of
// its calibration orientation.
func Sort(p [4]Peak) OrderedMarkers {
	for i := 1; i < len(p); i++ {
		for j := i; j > 0 && before(p[j], p[j-1]); j-- {
			p[j], p[j-1] = p[j-1], p[j]
		}
	}

	var out OrderedMarkers
	out[TopLeft], out[BottomLeft] = topBottom([2]Peak{p[0], p[1]})
	out[TopRight], out[BottomRight] = topBottom([2]Peak{p[2], p[3]})
	return out
}

func topBottom(pair [2]Peak) (top, bottom Peak) {
	if pair[1].Y < pair[0].Y || (pair[1].Y == pair[0].Y && before(pair[1], pair[0])) {
		return pair[1], pair[0]
	}
	return pair[0], pair[1]
}
