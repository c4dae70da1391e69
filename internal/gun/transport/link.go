package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/pigun/internal/config"
	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/gun/l5control"
	"github.com/banshee-data/pigun/internal/gun/report"
	"github.com/banshee-data/pigun/internal/timeutil"
)

// FireRequester accepts host recoil requests.
type FireRequester interface {
	RequestFire()
}

// PeerStore remembers hosts across restarts.
type PeerStore interface {
	Peers() ([]string, error)
	RecordPeer(addr string) error
}

// maxKnownHosts matches the number of hosts the peer store keeps.
const maxKnownHosts = 3

// PacketRecorder observes every report sent.
type PacketRecorder interface {
	Record(src, dst *net.UDPAddr, payload []byte)
}

// LinkConfig holds the host link settings.
type LinkConfig struct {
	Listen            string
	SendInterval      time.Duration
	HeartbeatInterval time.Duration
	BlinkInterval     time.Duration
	LinkTimeout       time.Duration
}

// DefaultLinkConfig listens on all interfaces at port 7777.
func DefaultLinkConfig() LinkConfig {
	return LinkConfig{
		Listen:            ":7777",
		SendInterval:      8 * time.Millisecond,
		HeartbeatInterval: 5 * time.Second,
		BlinkInterval:     800 * time.Millisecond,
		LinkTimeout:       3 * time.Second,
	}
}

// LinkConfigFromTuning applies the tuning intervals to DefaultLinkConfig.
func LinkConfigFromTuning(t *config.TuningConfig, listen string) LinkConfig {
	c := DefaultLinkConfig()
	if listen != "" {
		c.Listen = listen
	}
	c.SendInterval = t.GetSendInterval()
	c.HeartbeatInterval = t.GetHeartbeatInterval()
	c.BlinkInterval = t.GetBlinkInterval()
	c.LinkTimeout = t.GetLinkTimeout()
	return c
}

// LinkDeps are the collaborators of a Link. Fire, LEDs, Peers and
// Recorder may be nil.
type LinkDeps struct {
	Shared   *report.Shared
	Fire     FireRequester
	LEDs     l5control.Outputs
	Peers    PeerStore
	Recorder PacketRecorder
	Clock    timeutil.Clock
}

// LinkStats counts link activity.
type LinkStats struct {
	Sent      uint64
	Received  uint64
	Dropped   uint64
	Connects  uint64
	Timeouts  uint64
	Heartbeat uint64
}

// Link is the UDP connection to one host at a time.
type Link struct {
	cfg  LinkConfig
	deps LinkDeps
	conn *net.UDPConn

	mu       sync.Mutex
	peer     *net.UDPAddr
	lastSeen time.Time
	known    []*net.UDPAddr
	next     int
	ledOn    bool
	lastSeq  uint64
	lastSent time.Time

	sent      atomic.Uint64
	received  atomic.Uint64
	dropped   atomic.Uint64
	connects  atomic.Uint64
	timeouts  atomic.Uint64
	heartbeat atomic.Uint64
}

// NewLink binds the listen address and loads known peers.
func NewLink(cfg LinkConfig, deps LinkDeps) (*Link, error) {
	if deps.Shared == nil {
		return nil, errors.New("link requires a shared report")
	}
	if deps.Clock == nil {
		deps.Clock = timeutil.RealClock{}
	}
	addr, err := net.ResolveUDPAddr("udp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve listen address: %w", err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", cfg.Listen, err)
	}
	l := &Link{cfg: cfg, deps: deps, conn: conn}
	if deps.Peers != nil {
		peers, err := deps.Peers.Peers()
		if err != nil {
			gun.Opsf("failed to load known hosts: %v", err)
		}
		for _, p := range peers {
			a, err := net.ResolveUDPAddr("udp", p)
			if err != nil {
				gun.Opsf("ignoring known host %q: %v", p, err)
				continue
			}
			l.known = append(l.known, a)
			if len(l.known) == maxKnownHosts {
				break
			}
		}
	}
	return l, nil
}

// LocalAddr is the bound address.
func (l *Link) LocalAddr() *net.UDPAddr { return l.conn.LocalAddr().(*net.UDPAddr) }

// Connected reports whether a host is attached.
func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peer != nil
}

// Peer returns the attached host address, or "".
func (l *Link) Peer() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.peer == nil {
		return ""
	}
	return l.peer.String()
}

// Stats returns a copy of the counters.
func (l *Link) Stats() LinkStats {
	return LinkStats{
		Sent:      l.sent.Load(),
		Received:  l.received.Load(),
		Dropped:   l.dropped.Load(),
		Connects:  l.connects.Load(),
		Timeouts:  l.timeouts.Load(),
		Heartbeat: l.heartbeat.Load(),
	}
}

type inbound struct {
	from *net.UDPAddr
	data []byte
}

// Run serves the link until ctx is done, then closes the socket and
// switches the ready LED off.
func (l *Link) Run(ctx context.Context) error {
	packets := make(chan inbound, 16)
	readErr := make(chan error, 1)
	go l.readLoop(packets, readErr)

	clock := l.deps.Clock
	send := clock.NewTicker(l.cfg.SendInterval)
	defer send.Stop()
	heartbeat := clock.NewTicker(l.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	blink := clock.NewTicker(l.cfg.BlinkInterval)
	defer blink.Stop()

	gun.Opsf("host link listening on %s (%d known hosts)", l.LocalAddr(), len(l.known))
	defer func() {
		l.conn.Close()
		l.writeReady(false)
	}()

	// Probe immediately rather than after the first interval.
	l.probe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return fmt.Errorf("host link read failed: %w", err)
		case p := <-packets:
			l.handlePacket(p.from, p.data)
		case <-send.C():
			l.sendTick()
		case <-heartbeat.C():
			l.probe()
		case <-blink.C():
			l.blink()
		}
	}
}

func (l *Link) readLoop(out chan<- inbound, errc chan<- error) {
	buf := make([]byte, 64)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			errc <- err
			return
		}
		select {
		case out <- inbound{from: from, data: append([]byte(nil), buf[:n]...)}:
		default:
			l.dropped.Add(1)
		}
	}
}

func (l *Link) handlePacket(from *net.UDPAddr, data []byte) {
	msg, err := ParseHostPacket(data)
	if err != nil {
		gun.Tracef("ignoring packet from %s: %v", from, err)
		return
	}
	l.received.Add(1)
	l.attach(from)
	if msg.Fire && l.deps.Fire != nil {
		l.deps.Fire.RequestFire()
	}
}

// attach makes from the current host and refreshes its liveness.
func (l *Link) attach(from *net.UDPAddr) {
	l.mu.Lock()
	l.lastSeen = l.deps.Clock.Now()
	if l.peer != nil && l.peer.String() == from.String() {
		l.mu.Unlock()
		return
	}
	l.peer = from
	l.lastSeq = 0
	l.known = remember(l.known, from)
	l.mu.Unlock()

	l.connects.Add(1)
	gun.Opsf("host connected: %s", from)
	l.writeReady(false)
	if l.deps.Peers != nil {
		if err := l.deps.Peers.RecordPeer(from.String()); err != nil {
			gun.Opsf("failed to record host %s: %v", from, err)
		}
	}
}

// remember moves a to the front of known, keeping at most maxKnownHosts.
func remember(known []*net.UDPAddr, a *net.UDPAddr) []*net.UDPAddr {
	out := []*net.UDPAddr{a}
	for _, k := range known {
		if len(out) == maxKnownHosts {
			break
		}
		if k.String() != a.String() {
			out = append(out, k)
		}
	}
	return out
}

// sendTick sends the latest report when it changed, or as a keepalive
// once per heartbeat interval. It also expires a silent host.
func (l *Link) sendTick() {
	now := l.deps.Clock.Now()
	l.mu.Lock()
	peer := l.peer
	if peer == nil {
		l.mu.Unlock()
		return
	}
	if now.Sub(l.lastSeen) > l.cfg.LinkTimeout {
		l.peer = nil
		l.mu.Unlock()
		l.timeouts.Add(1)
		gun.Opsf("host %s timed out", peer)
		return
	}
	snap := l.deps.Shared.Load()
	if snap.Seq == l.lastSeq && now.Sub(l.lastSent) < l.cfg.HeartbeatInterval {
		l.mu.Unlock()
		return
	}
	l.lastSeq = snap.Seq
	l.lastSent = now
	l.mu.Unlock()

	payload, _ := snap.Report.MarshalBinary()
	if _, err := l.conn.WriteToUDP(payload, peer); err != nil {
		l.dropped.Add(1)
		gun.Tracef("report to %s dropped: %v", peer, err)
		return
	}
	l.sent.Add(1)
	if l.deps.Recorder != nil {
		l.deps.Recorder.Record(l.LocalAddr(), peer, payload)
	}
}

// probe sends a hello to the next known host while disconnected.
func (l *Link) probe() {
	l.mu.Lock()
	if l.peer != nil || len(l.known) == 0 {
		l.mu.Unlock()
		return
	}
	target := l.known[l.next%len(l.known)]
	l.next++
	l.mu.Unlock()

	l.heartbeat.Add(1)
	gun.Diagf("probing host %s", target)
	if _, err := l.conn.WriteToUDP([]byte{MsgHello}, target); err != nil {
		gun.Tracef("hello to %s failed: %v", target, err)
	}
}

// blink toggles the ready LED while no host is attached.
func (l *Link) blink() {
	l.mu.Lock()
	if l.peer != nil {
		l.mu.Unlock()
		return
	}
	l.ledOn = !l.ledOn
	on := l.ledOn
	l.mu.Unlock()
	l.writeReady(on)
}

func (l *Link) writeReady(on bool) {
	if l.deps.LEDs == nil {
		return
	}
	l.mu.Lock()
	l.ledOn = on
	l.mu.Unlock()
	if err := l.deps.LEDs.Write(l5control.PinReady, on); err != nil {
		gun.Opsf("failed to write ready LED: %v", err)
	}
}
