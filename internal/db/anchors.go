package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/pigun/internal/gun/l4aim"
)

// ErrNoCalibration is returned when no anchor has been saved.
var ErrNoCalibration = errors.New("no calibration stored")

// DefaultAnchorKey is the row holding the active calibration.
const DefaultAnchorKey = "default"

// LoadAnchor returns the active calibration.
func (db *DB) LoadAnchor() (l4aim.Anchor, error) {
	var a l4aim.Anchor
	err := db.QueryRow(`SELECT top_left_x, top_left_y, bottom_right_x, bottom_right_y
		FROM anchors WHERE anchor_key = ?`, DefaultAnchorKey).
		Scan(&a.TopLeft.X, &a.TopLeft.Y, &a.BottomRight.X, &a.BottomRight.Y)
	if errors.Is(err, sql.ErrNoRows) {
		return l4aim.DefaultAnchor(), ErrNoCalibration
	}
	if err != nil {
		return l4aim.DefaultAnchor(), fmt.Errorf("failed to load calibration: %w", err)
	}
	return a, nil
}

// LoadAnchorOrDefault returns the stored calibration, or the identity
// anchor when nothing is stored. Only real read failures are errors.
func (db *DB) LoadAnchorOrDefault() (l4aim.Anchor, bool, error) {
	a, err := db.LoadAnchor()
	if errors.Is(err, ErrNoCalibration) {
		return a, false, nil
	}
	return a, err == nil, err
}

// SaveAnchor replaces the active calibration.
func (db *DB) SaveAnchor(a l4aim.Anchor) error {
	_, err := db.Exec(`INSERT INTO anchors
		(anchor_key, top_left_x, top_left_y, bottom_right_x, bottom_right_y, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(anchor_key) DO UPDATE SET
			top_left_x = excluded.top_left_x,
			top_left_y = excluded.top_left_y,
			bottom_right_x = excluded.bottom_right_x,
			bottom_right_y = excluded.bottom_right_y,
			updated_at = excluded.updated_at`,
		DefaultAnchorKey, a.TopLeft.X, a.TopLeft.Y, a.BottomRight.X, a.BottomRight.Y, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to save calibration: %w", err)
	}
	return nil
}
