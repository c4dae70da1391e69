package hw

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/gun/l5control"
	"github.com/banshee-data/pigun/internal/serialmux"
)

// Bridge is a backend whose buttons and outputs live on a USB
// microcontroller. Level lines arrive asynchronously; edges seen between
// two samples accumulate so a short tap is never lost.
type Bridge struct {
	mux serialmux.Mux

	mu      sync.Mutex
	levels  l5control.ButtonSet
	edges   l5control.ButtonSet
	version string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge wraps mux without starting any goroutines.
func NewBridge(mux serialmux.Mux) *Bridge {
	return &Bridge{mux: mux}
}

// StartBridge initialises the firmware and starts reading lines.
func StartBridge(ctx context.Context, mux serialmux.Mux) (*Bridge, error) {
	b := NewBridge(mux)
	ctx, b.cancel = context.WithCancel(ctx)

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		if err := mux.Monitor(ctx); err != nil && ctx.Err() == nil {
			gun.Opsf("bridge monitor stopped: %v", err)
		}
	}()
	go func() {
		defer b.wg.Done()
		serialmux.Dispatch(ctx, mux, b)
	}()

	if err := mux.Initialise(); err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to initialise bridge: %w", err)
	}
	return b, nil
}

// HandleButtons records a level line.
func (b *Bridge) HandleButtons(raw uint16) {
	levels := l5control.ButtonSet(raw)
	b.mu.Lock()
	b.edges |= levels &^ b.levels
	b.levels = levels
	b.mu.Unlock()
}

// HandleVersion records the firmware version.
func (b *Bridge) HandleVersion(v string) {
	b.mu.Lock()
	b.version = v
	b.mu.Unlock()
	gun.Diagf("bridge firmware %s", v)
}

// HandleError logs a firmware-reported fault.
func (b *Bridge) HandleError(msg string) {
	gun.Opsf("bridge error: %s", msg)
}

// Version returns the firmware version, empty until reported.
func (b *Bridge) Version() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.version
}

// AttachAdminRoutes exposes the bridge console under /debug/.
func (b *Bridge) AttachAdminRoutes(mux *http.ServeMux) { b.mux.AttachAdminRoutes(mux) }

// Sample returns the latest levels and the edges since the last call.
func (b *Bridge) Sample() (l5control.Sample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := l5control.Sample{Levels: b.levels, Edges: b.edges}
	b.edges = 0
	return s, nil
}

// Write sends an output command. The bridge applies polarity itself.
func (b *Bridge) Write(pin l5control.Pin, on bool) error {
	if pin < 0 || int(pin) >= serialmux.NumBridgeOutputs {
		return fmt.Errorf("invalid output %s", pin)
	}
	return b.mux.SendCommand(serialmux.OutputCommand(int(pin), on))
}

// Close switches outputs off, stops the reader and closes the port.
func (b *Bridge) Close() error {
	for o := l5control.Pin(0); o < l5control.NumPins; o++ {
		_ = b.Write(o, false)
	}
	if b.cancel != nil {
		b.cancel()
	}
	err := b.mux.Close()
	b.wg.Wait()
	return err
}
