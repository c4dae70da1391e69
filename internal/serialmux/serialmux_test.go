package serialmux

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pigun/internal/testutil"
)

func TestSendCommand(t *testing.T) {
	t.Parallel()
	port := NewTestableSerialPort()
	m := NewSerialMux(port)

	require.NoError(t, m.SendCommand("O 1 1"))
	require.NoError(t, m.SendCommand("O 1 0\n"))
	assert.Equal(t, []string{"O 1 1", "O 1 0"}, port.Commands())

	port.WriteError = errors.New("unplugged")
	assert.Error(t, m.SendCommand("V?"))
}

func TestInitialise(t *testing.T) {
	t.Parallel()
	port := NewTestableSerialPort()
	m := NewSerialMux(port)
	require.NoError(t, m.Initialise())
	assert.Equal(t, InitCommands(), port.Commands())

	port.WriteError = errors.New("unplugged")
	err := m.Initialise()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "V?")
}

func TestMonitorFansOutLines(t *testing.T) {
	t.Parallel()
	port := NewBridgeSimPort()
	m := NewSerialMux(port)

	_, a := m.Subscribe()
	idB, b := m.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Monitor(ctx) }()

	port.EmitButtons(0x0001)
	for _, ch := range []chan string{a, b} {
		select {
		case line := <-ch:
			assert.Equal(t, "B 0001", line)
		case <-time.After(2 * time.Second):
			t.Fatal("line not delivered")
		}
	}

	m.Unsubscribe(idB)
	_, ok := <-b
	assert.False(t, ok, "unsubscribed channel is closed")

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not stop")
	}
	require.NoError(t, m.Close())
	_, ok = <-a
	assert.False(t, ok)
}

func TestMonitorReturnsAtEOF(t *testing.T) {
	t.Parallel()
	port := NewTestableSerialPort()
	port.AddReadData([]byte("V 1.0\nOK\n"))
	m := NewSerialMux(port)
	assert.NoError(t, m.Monitor(context.Background()))
}

type recordingHandler struct {
	mu       sync.Mutex
	levels   []uint16
	versions []string
	errs     []string
}

func (r *recordingHandler) HandleButtons(l uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.levels = append(r.levels, l)
}

func (r *recordingHandler) HandleVersion(v string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = append(r.versions, v)
}

func (r *recordingHandler) HandleError(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, e)
}

func TestHandleEvent(t *testing.T) {
	t.Parallel()
	h := &recordingHandler{}
	require.NoError(t, HandleEvent(h, "B 0003"))
	require.NoError(t, HandleEvent(h, "V 2.0"))
	require.NoError(t, HandleEvent(h, "E brownout"))
	require.NoError(t, HandleEvent(h, "OK"))
	require.NoError(t, HandleEvent(h, "noise"))
	assert.Error(t, HandleEvent(h, "B nope"))

	assert.Equal(t, []uint16{3}, h.levels)
	assert.Equal(t, []string{"2.0"}, h.versions)
	assert.Equal(t, []string{"brownout"}, h.errs)
}

func TestDispatchStopsWhenMuxCloses(t *testing.T) {
	t.Parallel()
	d := NewDisabledSerialMux()
	h := &recordingHandler{}
	done := make(chan struct{})
	go func() {
		Dispatch(context.Background(), d, h)
		close(done)
	}()

	// Wait for the subscription before closing.
	require.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.subscribers) == 1
	}, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, d.Close())

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Dispatch did not return")
	}
}

func TestDisabledSerialMux(t *testing.T) {
	t.Parallel()
	d := NewDisabledSerialMux()
	assert.NoError(t, d.Initialise())
	assert.NoError(t, d.SendCommand("O 0 1"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Monitor(ctx), context.Canceled)

	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	_, ch := d.Subscribe()
	_, ok := <-ch
	assert.False(t, ok, "subscribe after close returns a closed channel")

	mux := http.NewServeMux()
	d.AttachAdminRoutes(mux)
	rec := testutil.Serve(mux, testutil.LocalRequest(http.MethodGet, "/debug/bridge-disabled", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
}

func TestAdminRoutes(t *testing.T) {
	t.Parallel()
	port := NewTestableSerialPort()
	m := NewSerialMux(port)
	mux := http.NewServeMux()
	m.AttachAdminRoutes(mux)

	rec := testutil.Serve(mux, testutil.LocalRequest(http.MethodGet, "/debug/bridge", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Contains(t, rec.Body.String(), "bridge-tail.js")

	rec = testutil.Serve(mux, testutil.LocalFormRequest(http.MethodPost, "/debug/bridge-command", "command=O+2+1"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.Equal(t, []string{"O 2 1"}, port.Commands())

	rec = testutil.Serve(mux, testutil.LocalFormRequest(http.MethodPost, "/debug/bridge-command", "command=+"))
	testutil.AssertStatusCode(t, rec.Code, http.StatusBadRequest)

	rec = testutil.Serve(mux, testutil.LocalRequest(http.MethodGet, "/debug/bridge-command", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusMethodNotAllowed)

	rec = testutil.Serve(mux, testutil.LocalRequest(http.MethodGet, "/debug/bridge-tail.js", nil))
	testutil.AssertStatusCode(t, rec.Code, http.StatusOK)
	assert.True(t, strings.Contains(rec.Body.String(), "EventSource"))
}

func TestMockSerialPortFactory(t *testing.T) {
	t.Parallel()
	port := NewTestableSerialPort()
	f := NewMockSerialPortFactory(port)
	assert.Nil(t, f.LastCall())

	got, err := f.Open("/dev/ttyACM0", PortOptions{BaudRate: 9600})
	require.NoError(t, err)
	assert.Same(t, port, got)
	assert.Equal(t, "/dev/ttyACM0", f.LastCall().Path)

	f.Error = errors.New("busy")
	_, err = f.Open("/dev/ttyACM0", PortOptions{})
	assert.Error(t, err)
	assert.Len(t, f.OpenCalls, 2)
}
