package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/pigun/internal/gun/l5control"
	"github.com/banshee-data/pigun/internal/gun/monitor"
	"github.com/banshee-data/pigun/internal/gun/pipeline"
	"github.com/banshee-data/pigun/internal/monitoring"
	"github.com/banshee-data/pigun/internal/timeutil"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, published{topic: topic, retained: retained, payload: payload.([]byte)})
	return doneToken{err: c.err}
}

func (c *fakeClient) byTopic(topic string) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, m := range c.msgs {
		if m.topic == topic {
			out = append(out, m)
		}
	}
	return out
}

type staticStatus struct{}

func (staticStatus) Status() monitor.Status {
	return monitor.Status{State: "idle", Tracking: true, Seq: 9}
}

func testConfig() Config {
	c := DefaultConfig()
	c.Device = "unit"
	c.Interval = time.Second
	return c
}

func TestReporterPublishesStatus(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(100, 0))
	client := &fakeClient{}
	r := NewReporter(testConfig(), client, staticStatus{}, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return len(client.byTopic("pigun/unit/status")) == 1 }, 2*time.Second, time.Millisecond)
	clock.Advance(time.Second)
	require.Eventually(t, func() bool { return len(client.byTopic("pigun/unit/status")) == 2 }, 2*time.Second, time.Millisecond)

	msg := client.byTopic("pigun/unit/status")[0]
	assert.True(t, msg.retained)
	var body StatusMessage
	require.NoError(t, json.Unmarshal(msg.payload, &body))
	assert.Equal(t, r.Session().String(), body.Session)
	assert.Equal(t, "idle", body.State)
	assert.Equal(t, uint64(9), body.Seq)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestReporterPublishesTransitions(t *testing.T) {
	client := &fakeClient{}
	r := NewReporter(testConfig(), client, nil, timeutil.NewMockClock(time.Unix(0, 0)))

	r.ObserveFrame(pipeline.Result{Seq: 1, Transition: l5control.Transition{From: l5control.Idle, To: l5control.Idle}})
	r.ObserveFrame(pipeline.Result{Seq: 2, Transition: l5control.Transition{From: l5control.Idle, To: l5control.Service}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Run(ctx)

	require.Eventually(t, func() bool { return len(client.byTopic("pigun/unit/events")) == 1 }, 2*time.Second, time.Millisecond)
	var ev EventMessage
	require.NoError(t, json.Unmarshal(client.byTopic("pigun/unit/events")[0].payload, &ev))
	assert.Equal(t, EventMessage{Session: r.Session().String(), Time: time.Time{}, Seq: 2, From: "idle", To: "service"}, ev)
	assert.Empty(t, client.byTopic("pigun/unit/status"), "no status without a source")
}

func TestReporterDropsEventsWhenBehind(t *testing.T) {
	var logs []string
	monitoring.SetLogger(func(format string, v ...interface{}) { logs = append(logs, format) })
	defer monitoring.SetLogger(nil)

	r := NewReporter(testConfig(), &fakeClient{}, nil, nil)
	for i := 0; i < cap(r.events)+1; i++ {
		r.ObserveFrame(pipeline.Result{Transition: l5control.Transition{From: l5control.Idle, To: l5control.Service}})
	}
	assert.Len(t, r.events, cap(r.events))
	require.Len(t, logs, 1)
	assert.True(t, strings.Contains(logs[0], "dropped event"))
}

func TestPublishErrorIsLogged(t *testing.T) {
	var logs []string
	monitoring.SetLogger(func(format string, v ...interface{}) { logs = append(logs, format) })
	defer monitoring.SetLogger(nil)

	r := NewReporter(testConfig(), &fakeClient{err: errors.New("not connected")}, staticStatus{}, nil)
	r.publishStatus()
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "failed")
}
