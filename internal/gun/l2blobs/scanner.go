// Package l2blobs finds bright connected components in a luminance frame.
//
// A Scanner owns a visited bitmap and a fill stack sized once at
// construction. Reset clears the bitmap at the start of each frame; every
// Scan in that frame shares it, so no pixel is visited twice.
package l2blobs

import (
	"errors"
	"fmt"

	"github.com/banshee-data/pigun/internal/gun/l1frames"
)

var (
	// ErrBlobTooSmall is returned for components below the minimum size.
	ErrBlobTooSmall = errors.New("blob too small")
	// ErrBlobTooLarge is returned when the fill reaches the maximum size.
	ErrBlobTooLarge = errors.New("blob too large")
)

// Config bounds an accepted blob.
type Config struct {
	Threshold uint8 // pixel counts when value >= Threshold
	MinSize   int   // inclusive
	MaxSize   int   // exclusive; also the fill abort point
}

// DefaultConfig returns T=130, sizes in [20, 1000).
func DefaultConfig() Config {
	return Config{Threshold: 130, MinSize: 20, MaxSize: 1000}
}

// Blob is an accepted component with its intensity-weighted centroid.
type Blob struct {
	Count int
	X     float32
	Y     float32
}

type point struct{ x, y int32 }

// Scanner performs bounded 4-connected flood fills.
type Scanner struct {
	cfg     Config
	width   int
	height  int
	visited []bool
	stack   []point

	// Stats for the current frame.
	scans    int
	rejected int
}

// NewScanner allocates buffers for width x height frames.
func NewScanner(cfg Config, width, height int) *Scanner {
	return &Scanner{
		cfg:     cfg,
		width:   width,
		height:  height,
		visited: make([]bool, width*height),
		stack:   make([]point, 0, cfg.MaxSize),
	}
}

// Config returns the scanner's bounds.
func (s *Scanner) Config() Config { return s.cfg }

// Reset clears the visited bitmap. Call once per frame before scanning.
func (s *Scanner) Reset() {
	clear(s.visited)
	s.scans = 0
	s.rejected = 0
}

// Visited reports whether (x, y) has been claimed by a scan this frame.
func (s *Scanner) Visited(x, y int) bool {
	return s.visited[y*s.width+x]
}

// Candidate reports whether (x, y) is an unvisited, above-threshold pixel.
func (s *Scanner) Candidate(f *l1frames.Frame, x, y int) bool {
	i := y*s.width + x
	return !s.visited[i] && f.Pix[i] >= s.cfg.Threshold
}

// Stats returns the number of scans and rejections since Reset.
func (s *Scanner) Stats() (scans, rejected int) { return s.scans, s.rejected }

// Scan fills the component containing (x, y). The start pixel must be a
// Candidate. Pixels are marked visited as they are pushed, and the fill
// stops once MaxSize pixels have been discovered.
func (s *Scanner) Scan(f *l1frames.Frame, x, y int) (Blob, error) {
	if f.Width != s.width || f.Height != s.height {
		return Blob{}, fmt.Errorf("frame %dx%d does not match scanner %dx%d", f.Width, f.Height, s.width, s.height)
	}
	s.scans++

	var sumX, sumY, sumI uint64
	discovered := 0
	stack := s.stack[:0]

	push := func(px, py int) bool {
		i := py*s.width + px
		s.visited[i] = true
		stack = append(stack, point{int32(px), int32(py)})
		discovered++
		return discovered < s.cfg.MaxSize
	}

	if !push(x, y) {
		s.rejected++
		return Blob{}, ErrBlobTooLarge
	}

	for len(stack) > 0 {
		p := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		v := uint64(f.Pix[int(p.y)*s.width+int(p.x)])
		sumX += uint64(p.x) * v
		sumY += uint64(p.y) * v
		sumI += v

		for _, n := range [4]point{{p.x + 1, p.y}, {p.x - 1, p.y}, {p.x, p.y + 1}, {p.x, p.y - 1}} {
			nx, ny := int(n.x), int(n.y)
			if nx < 0 || ny < 0 || nx >= s.width || ny >= s.height {
				continue
			}
			if !s.Candidate(f, nx, ny) {
				continue
			}
			if !push(nx, ny) {
				s.stack = stack[:0]
				s.rejected++
				return Blob{}, ErrBlobTooLarge
			}
		}
	}
	s.stack = stack[:0]

	if discovered < s.cfg.MinSize {
		s.rejected++
		return Blob{}, ErrBlobTooSmall
	}
	return Blob{
		Count: discovered,
		X:     float32(float64(sumX) / float64(sumI)),
		Y:     float32(float64(sumY) / float64(sumI)),
	}, nil
}
