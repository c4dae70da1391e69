package db

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/banshee-data/pigun/internal/fsutil"
	"github.com/banshee-data/pigun/internal/gun/l4aim"
)

// Legacy file names written by earlier firmware.
const (
	LegacyCalibrationFile = "cdata.bin"
	LegacyServersFile     = "servers.bin"
)

const calibrationFileSize = 16

// ReadCalibration decodes a cdata.bin body: four little-endian float32
// values TL.x, TL.y, BR.x, BR.y.
func ReadCalibration(r io.Reader) (l4aim.Anchor, error) {
	var raw [4]float32
	if err := binary.Read(r, binary.LittleEndian, &raw); err != nil {
		return l4aim.Anchor{}, fmt.Errorf("failed to read calibration: %w", err)
	}
	for i, v := range raw {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return l4aim.Anchor{}, fmt.Errorf("calibration value %d is not finite", i)
		}
	}
	return l4aim.Anchor{
		TopLeft:     l4aim.Point{X: float64(raw[0]), Y: float64(raw[1])},
		BottomRight: l4aim.Point{X: float64(raw[2]), Y: float64(raw[3])},
	}, nil
}

// WriteCalibration encodes a in the cdata.bin layout.
func WriteCalibration(w io.Writer, a l4aim.Anchor) error {
	raw := [4]float32{
		float32(a.TopLeft.X), float32(a.TopLeft.Y),
		float32(a.BottomRight.X), float32(a.BottomRight.Y),
	}
	return binary.Write(w, binary.LittleEndian, raw)
}

// ImportCalibrationFile loads path and makes it the active calibration.
func (db *DB) ImportCalibrationFile(fs fsutil.FileSystem, path string) (l4aim.Anchor, error) {
	f, err := fs.Open(path)
	if err != nil {
		return l4aim.Anchor{}, err
	}
	defer f.Close()
	a, err := ReadCalibration(f)
	if err != nil {
		return l4aim.Anchor{}, fmt.Errorf("%s: %w", path, err)
	}
	return a, db.SaveAnchor(a)
}

// ExportCalibrationFile writes the active calibration to path.
func (db *DB) ExportCalibrationFile(fs fsutil.FileSystem, path string) (l4aim.Anchor, error) {
	a, err := db.LoadAnchor()
	if err != nil {
		return a, err
	}
	var buf bytes.Buffer
	buf.Grow(calibrationFileSize)
	if err := WriteCalibration(&buf, a); err != nil {
		return a, err
	}
	return a, fs.WriteFileAtomic(path, buf.Bytes(), 0o644)
}

const (
	serverAddrSize = 6
	maxServers     = 3
)

// ReadServers decodes a servers.bin body: an int32 count followed by
// that many 6-byte Bluetooth addresses, most recent first. Addresses are
// stored least significant byte first and returned in the usual
// colon-separated form.
func ReadServers(r io.Reader) ([]string, error) {
	var count int32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("failed to read server count: %w", err)
	}
	if count < 0 || count > maxServers {
		return nil, fmt.Errorf("invalid server count %d", count)
	}
	out := make([]string, 0, count)
	for i := int32(0); i < count; i++ {
		var b [serverAddrSize]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, fmt.Errorf("failed to read server %d: %w", i, err)
		}
		out = append(out, fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[5], b[4], b[3], b[2], b[1], b[0]))
	}
	return out, nil
}

// ImportServersFile records the hosts listed in a servers.bin file.
func (db *DB) ImportServersFile(fs fsutil.FileSystem, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	addrs, err := ReadServers(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return addrs, db.ImportPeers(addrs)
}
