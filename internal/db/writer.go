package db

import (
	"context"
	"sync"

	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/gun/l4aim"
)

// AnchorSaver persists an anchor synchronously.
type AnchorSaver interface {
	SaveAnchor(a l4aim.Anchor) error
}

// AnchorWriter moves calibration writes off the frame loop. SaveAnchor
// only records the value; a background goroutine writes the latest one,
// so bursts collapse into a single write.
type AnchorWriter struct {
	store AnchorSaver

	mu      sync.Mutex
	pending *l4aim.Anchor
	saved   uint64
	lastErr error

	wake chan struct{}
	done chan struct{}
}

// NewAnchorWriter wraps store. Call Start before saving.
func NewAnchorWriter(store AnchorSaver) *AnchorWriter {
	return &AnchorWriter{
		store: store,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Start runs the writer until ctx is done, then writes any pending
// anchor.
func (w *AnchorWriter) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		for {
			select {
			case <-ctx.Done():
				w.flush()
				return
			case <-w.wake:
				w.flush()
			}
		}
	}()
}

// SaveAnchor implements l5control.AnchorStore without blocking.
func (w *AnchorWriter) SaveAnchor(a l4aim.Anchor) error {
	w.mu.Lock()
	w.pending = &a
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return nil
}

// Wait blocks until the writer has stopped.
func (w *AnchorWriter) Wait() { <-w.done }

// Saved counts completed writes.
func (w *AnchorWriter) Saved() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.saved
}

// Err returns the most recent write error.
func (w *AnchorWriter) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastErr
}

func (w *AnchorWriter) flush() {
	w.mu.Lock()
	a := w.pending
	w.pending = nil
	w.mu.Unlock()
	if a == nil {
		return
	}

	err := w.store.SaveAnchor(*a)

	w.mu.Lock()
	w.lastErr = err
	if err == nil {
		w.saved++
	}
	w.mu.Unlock()
	if err != nil {
		gun.Opsf("failed to persist calibration: %v", err)
		return
	}
	gun.Diagf("calibration persisted: TL=(%.4f,%.4f) BR=(%.4f,%.4f)",
		a.TopLeft.X, a.TopLeft.Y, a.BottomRight.X, a.BottomRight.Y)
}
