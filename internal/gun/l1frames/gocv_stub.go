//go:build !gocv

package l1frames

import "errors"

// GocvAvailable reports whether OpenCV capture was compiled in.
const GocvAvailable = false

// ErrGocvUnavailable is returned when the binary was built without the gocv tag.
var ErrGocvUnavailable = errors.New("opencv capture not compiled in (build with -tags gocv)")

// NewGocvSource is unavailable without the gocv build tag.
func NewGocvSource(cfg GocvConfig) (Source, error) {
	return nil, ErrGocvUnavailable
}
