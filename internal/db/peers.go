package db

import (
	"fmt"
	"time"
)

// MaxPeers is how many hosts are remembered.
const MaxPeers = 3

// RecordPeer marks addr as the most recently seen host and forgets the
// oldest beyond MaxPeers.
func (db *DB) RecordPeer(addr string) error {
	return db.recordPeerAt(addr, time.Now())
}

func (db *DB) recordPeerAt(addr string, at time.Time) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`INSERT INTO peers (addr, last_seen) VALUES (?, ?)
		ON CONFLICT(addr) DO UPDATE SET last_seen = excluded.last_seen`, addr, at.UnixNano()); err != nil {
		return fmt.Errorf("failed to record peer: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM peers WHERE addr NOT IN (
		SELECT addr FROM peers ORDER BY last_seen DESC LIMIT ?)`, MaxPeers); err != nil {
		return fmt.Errorf("failed to trim peers: %w", err)
	}
	return tx.Commit()
}

// Peers lists remembered hosts, most recent first.
func (db *DB) Peers() ([]string, error) {
	rows, err := db.Query(`SELECT addr FROM peers ORDER BY last_seen DESC LIMIT ?`, MaxPeers)
	if err != nil {
		return nil, fmt.Errorf("failed to list peers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// ImportPeers records addrs oldest first, so the first entry ends up the
// most recent.
func (db *DB) ImportPeers(addrs []string) error {
	now := time.Now()
	for i := len(addrs) - 1; i >= 0; i-- {
		at := now.Add(-time.Duration(i) * time.Millisecond)
		if err := db.recordPeerAt(addrs[i], at); err != nil {
			return err
		}
	}
	return nil
}
