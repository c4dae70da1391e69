package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync/atomic"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/gun/report"
	"github.com/banshee-data/pigun/internal/timeutil"
)

const snapLen = 1600

var (
	captureSrcMAC = net.HardwareAddr{0x02, 0x70, 0x69, 0x67, 0x75, 0x6e}
	captureDstMAC = net.HardwareAddr{0x02, 0x68, 0x6f, 0x73, 0x74, 0x00}
)

// Recorder writes sent reports to a pcap stream as Ethernet/IPv4/UDP
// frames. Writes happen on a background goroutine; when its buffer is
// full the packet is dropped and counted, so the link never blocks.
type Recorder struct {
	w       *pcapgo.Writer
	clock   timeutil.Clock
	channel chan capturedPacket
	done    chan struct{}

	closed  atomic.Bool
	written atomic.Uint64
	dropped atomic.Uint64
}

type capturedPacket struct {
	at       time.Time
	src, dst *net.UDPAddr
	payload  []byte
}

// NewRecorder writes the pcap file header to w.
func NewRecorder(w io.Writer, clock timeutil.Clock) (*Recorder, error) {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(snapLen, layers.LinkTypeEthernet); err != nil {
		return nil, fmt.Errorf("failed to write pcap header: %w", err)
	}
	return &Recorder{
		w:       pw,
		clock:   clock,
		channel: make(chan capturedPacket, 1024),
		done:    make(chan struct{}),
	}, nil
}

// Start drains queued packets until ctx is done or Close.
func (r *Recorder) Start(ctx context.Context) {
	go func() {
		defer close(r.done)
		var lastErr error
		for {
			select {
			case <-ctx.Done():
				r.drain()
				return
			case p, ok := <-r.channel:
				if !ok {
					return
				}
				if err := r.write(p); err != nil {
					r.dropped.Add(1)
					if lastErr == nil {
						gun.Opsf("capture write failed: %v", err)
					}
					lastErr = err
				}
			}
		}
	}()
}

func (r *Recorder) drain() {
	for {
		select {
		case p, ok := <-r.channel:
			if !ok {
				return
			}
			_ = r.write(p)
		default:
			return
		}
	}
}

// Record queues a packet without blocking.
func (r *Recorder) Record(src, dst *net.UDPAddr, payload []byte) {
	if r.closed.Load() {
		return
	}
	p := capturedPacket{at: r.clock.Now(), src: src, dst: dst, payload: append([]byte(nil), payload...)}
	select {
	case r.channel <- p:
	default:
		r.dropped.Add(1)
	}
}

// Close flushes queued packets and stops the writer goroutine. Start
// must have been called.
func (r *Recorder) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	close(r.channel)
	<-r.done
	return nil
}

// Written counts packets written.
func (r *Recorder) Written() uint64 { return r.written.Load() }

// Dropped counts packets lost to a full buffer or a write error.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

func (r *Recorder) write(p capturedPacket) error {
	data, err := EncodeUDPFrame(p.src, p.dst, p.payload)
	if err != nil {
		return err
	}
	ci := gopacket.CaptureInfo{Timestamp: p.at, CaptureLength: len(data), Length: len(data)}
	if err := r.w.WritePacket(ci, data); err != nil {
		return err
	}
	r.written.Add(1)
	return nil
}

func ipv4(a *net.UDPAddr) net.IP {
	if a != nil {
		if v4 := a.IP.To4(); v4 != nil {
			return v4
		}
	}
	return net.IPv4zero.To4()
}

func port(a *net.UDPAddr) layers.UDPPort {
	if a == nil {
		return 0
	}
	return layers.UDPPort(a.Port)
}

// EncodeUDPFrame builds an Ethernet frame carrying payload from src to
// dst. Non-IPv4 addresses are written as 0.0.0.0.
func EncodeUDPFrame(src, dst *net.UDPAddr, payload []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       captureSrcMAC,
		DstMAC:       captureDstMAC,
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    ipv4(src),
		DstIP:    ipv4(dst),
	}
	udp := &layers.UDP{SrcPort: port(src), DstPort: port(dst)}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}
	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("failed to serialise capture frame: %w", err)
	}
	return buf.Bytes(), nil
}

// CapturedReport is one report read back from a capture.
type CapturedReport struct {
	At      time.Time
	Src     string
	Dst     string
	Report  report.Report
	Payload []byte
}

// ReadCapture decodes every pointer report in a pcap stream. Packets that
// are not UDP or do not carry an input report are skipped.
func ReadCapture(r io.Reader) ([]CapturedReport, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	var out []CapturedReport
	for {
		data, ci, err := pr.ReadPacketData()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, fmt.Errorf("failed to read packet %d: %w", len(out)+1, err)
		}
		pkt := gopacket.NewPacket(data, pr.LinkType(), gopacket.Default)
		udpLayer := pkt.Layer(layers.LayerTypeUDP)
		if udpLayer == nil {
			continue
		}
		udp, ok := udpLayer.(*layers.UDP)
		if !ok {
			continue
		}
		var rep report.Report
		if err := rep.UnmarshalBinary(udp.Payload); err != nil {
			continue
		}
		c := CapturedReport{At: ci.Timestamp, Report: rep, Payload: append([]byte(nil), udp.Payload...)}
		if ipLayer, ok := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4); ok {
			c.Src = fmt.Sprintf("%s:%d", ipLayer.SrcIP, int(udp.SrcPort))
			c.Dst = fmt.Sprintf("%s:%d", ipLayer.DstIP, int(udp.DstPort))
		}
		out = append(out, c)
	}
}
