package report

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pigun/internal/gun/l5control"
)

func TestReportWireFormat(t *testing.T) {
	t.Parallel()
	r := Report{X: -32767, Y: 0x1234, Buttons: 0x05}
	b, err := r.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa1, 0x01, 0x80, 0x34, 0x12, 0x05}, b)

	var got Report
	require.NoError(t, got.UnmarshalBinary(b))
	assert.Equal(t, r, got)

	assert.Error(t, got.UnmarshalBinary(b[:4]))
	assert.Error(t, got.UnmarshalBinary([]byte{0xa2, 0, 0, 0, 0, 0}))
}

func TestSharedStoreLoad(t *testing.T) {
	t.Parallel()
	s := NewShared()
	assert.Equal(t, Snapshot{}, s.Load())

	ch, _ := s.Changed()
	snap := Snapshot{Report: Report{X: 1, Y: 2}, State: l5control.Service, Tracking: true, Seq: 7, At: time.Unix(10, 0)}
	s.Store(snap)

	select {
	case <-ch:
	default:
		t.Fatal("Changed channel not closed by Store")
	}
	assert.Equal(t, snap, s.Load())
}

func TestSharedConcurrentReadersSeeWholeSnapshots(t *testing.T) {
	t.Parallel()
	s := NewShared()
	var wg sync.WaitGroup
	done := make(chan struct{})

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap := s.Load()
				// Writer keeps X == Y == Seq.
				if int64(snap.Report.X) != int64(snap.Seq) || snap.Report.X != snap.Report.Y {
					t.Errorf("torn snapshot: %+v", snap)
					return
				}
			}
		}()
	}

	for i := 1; i <= 2000; i++ {
		s.Store(Snapshot{Report: Report{X: int16(i), Y: int16(i)}, Seq: uint64(i)})
	}
	close(done)
	wg.Wait()
}
