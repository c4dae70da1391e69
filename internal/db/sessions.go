package db

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Session is one run of the device.
type Session struct {
	ID        uuid.UUID  `json:"id"`
	Version   string     `json:"version"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	Frames    uint64     `json:"frames"`
	Shots     uint64     `json:"shots"`
}

// StartSession records a new run.
func (db *DB) StartSession(version string) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := db.Exec(`INSERT INTO sessions (session_id, version, started_at) VALUES (?, ?, ?)`,
		id.String(), version, time.Now().UnixNano()); err != nil {
		return uuid.Nil, fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// EndSession closes a run with its totals.
func (db *DB) EndSession(id uuid.UUID, frames, shots uint64) error {
	res, err := db.Exec(`UPDATE sessions SET ended_at = ?, frames = ?, shots = ? WHERE session_id = ?`,
		time.Now().UnixNano(), int64(frames), int64(shots), id.String())
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s not found", id)
	}
	return nil
}

// Sessions returns up to limit runs, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	rows, err := db.Query(`SELECT session_id, version, started_at, ended_at, frames, shots
		FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			s       Session
			id      string
			started int64
			ended   sql.NullInt64
			frames  int64
			shots   int64
		)
		if err := rows.Scan(&id, &s.Version, &started, &ended, &frames, &shots); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("bad session id %q: %w", id, err)
		}
		s.StartedAt = time.Unix(0, started)
		if ended.Valid {
			t := time.Unix(0, ended.Int64)
			s.EndedAt = &t
		}
		s.Frames, s.Shots = uint64(frames), uint64(shots)
		out = append(out, s)
	}
	return out, rows.Err()
}
