package transport

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/banshee-data/pigun/internal/gun"
	"github.com/banshee-data/pigun/internal/gun/l5control"
	"github.com/banshee-data/pigun/internal/gun/report"
)

// Stream frame layout, little-endian:
//
//	[0:6]   wire report
//	[6]     control state
//	[7]     flags, bit 0 set while tracking
//	[8:16]  sequence number
//	[16:24] capture time, Unix nanoseconds
const streamFrameSize = 24

// EncodeSnapshot packs a snapshot for the report stream.
func EncodeSnapshot(s report.Snapshot) []byte {
	b := make([]byte, 0, streamFrameSize)
	b, _ = s.Report.AppendBinary(b)
	var flags byte
	if s.Tracking {
		flags |= 1
	}
	b = append(b, byte(s.State), flags)
	b = binary.LittleEndian.AppendUint64(b, s.Seq)
	var nanos int64
	if !s.At.IsZero() {
		nanos = s.At.UnixNano()
	}
	return binary.LittleEndian.AppendUint64(b, uint64(nanos))
}

// DecodeSnapshot reverses EncodeSnapshot.
func DecodeSnapshot(b []byte) (report.Snapshot, error) {
	if len(b) < streamFrameSize {
		return report.Snapshot{}, fmt.Errorf("%w: stream frame of %d bytes", ErrShortPacket, len(b))
	}
	var s report.Snapshot
	if err := s.Report.UnmarshalBinary(b[:report.WireSize]); err != nil {
		return s, err
	}
	s.State = l5control.State(b[6])
	s.Tracking = b[7]&1 != 0
	s.Seq = binary.LittleEndian.Uint64(b[8:16])
	if nanos := int64(binary.LittleEndian.Uint64(b[16:24])); nanos != 0 {
		s.At = time.Unix(0, nanos)
	}
	return s, nil
}

// ReportStreamServer is the server side of the report stream.
type ReportStreamServer interface {
	Subscribe(*emptypb.Empty, grpc.ServerStream) error
}

const subscribeMethod = "/pigun.ReportStream/Subscribe"

var reportStreamDesc = grpc.ServiceDesc{
	ServiceName: "pigun.ReportStream",
	HandlerType: (*ReportStreamServer)(nil),
	Streams: []grpc.StreamDesc{{
		StreamName:    "Subscribe",
		Handler:       subscribeHandler,
		ServerStreams: true,
	}},
	Metadata: "pigun/report.proto",
}

func subscribeHandler(srv any, stream grpc.ServerStream) error {
	in := new(emptypb.Empty)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(ReportStreamServer).Subscribe(in, stream)
}

// RegisterReportStream registers srv on s.
func RegisterReportStream(s grpc.ServiceRegistrar, srv ReportStreamServer) {
	s.RegisterService(&reportStreamDesc, srv)
}

// ReportServer streams every new snapshot to each subscriber. A slow
// subscriber skips intermediate snapshots and always receives the latest.
type ReportServer struct {
	shared     *report.Shared
	maxClients int32

	clients atomic.Int32
	sent    atomic.Uint64
}

// NewReportServer serves snapshots from shared. maxClients <= 0 means
// unlimited.
func NewReportServer(shared *report.Shared, maxClients int) *ReportServer {
	return &ReportServer{shared: shared, maxClients: int32(maxClients)}
}

// Clients is the number of active subscribers.
func (s *ReportServer) Clients() int { return int(s.clients.Load()) }

// Sent counts snapshots sent across all subscribers.
func (s *ReportServer) Sent() uint64 { return s.sent.Load() }

// Subscribe implements ReportStreamServer.
func (s *ReportServer) Subscribe(_ *emptypb.Empty, stream grpc.ServerStream) error {
	n := s.clients.Add(1)
	defer s.clients.Add(-1)
	if s.maxClients > 0 && n > s.maxClients {
		return status.Errorf(codes.ResourceExhausted, "at most %d subscribers", s.maxClients)
	}
	gun.Diagf("report stream subscriber connected (%d active)", n)

	ctx := stream.Context()
	var last uint64
	for {
		changed, snap := s.shared.Changed()
		if snap.Seq != last {
			if err := stream.SendMsg(wrapperspb.Bytes(EncodeSnapshot(snap))); err != nil {
				return err
			}
			s.sent.Add(1)
			last = snap.Seq
		}
		select {
		case <-ctx.Done():
			gun.Diagf("report stream subscriber left")
			return nil
		case <-changed:
		}
	}
}

// Watch subscribes to a report stream and calls fn for each snapshot
// until the stream ends, ctx is done or fn returns an error.
func Watch(ctx context.Context, cc grpc.ClientConnInterface, fn func(report.Snapshot) error) error {
	stream, err := cc.NewStream(ctx, &reportStreamDesc.Streams[0], subscribeMethod)
	if err != nil {
		return fmt.Errorf("failed to open report stream: %w", err)
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		msg := new(wrapperspb.BytesValue)
		if err := stream.RecvMsg(msg); err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}
			return err
		}
		snap, err := DecodeSnapshot(msg.GetValue())
		if err != nil {
			return err
		}
		if err := fn(snap); err != nil {
			return err
		}
	}
}

// StreamConfig holds the report stream listener settings.
type StreamConfig struct {
	ListenAddr string
	MaxClients int
}

// DefaultStreamConfig listens on localhost only.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{ListenAddr: "localhost:50061", MaxClients: 4}
}

// StreamPublisher owns the gRPC server for the report stream.
type StreamPublisher struct {
	cfg      StreamConfig
	server   *grpc.Server
	reports  *ReportServer
	listener net.Listener

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewStreamPublisher prepares a server for shared.
func NewStreamPublisher(cfg StreamConfig, shared *report.Shared) *StreamPublisher {
	p := &StreamPublisher{
		cfg:     cfg,
		server:  grpc.NewServer(),
		reports: NewReportServer(shared, cfg.MaxClients),
	}
	RegisterReportStream(p.server, p.reports)
	return p
}

// Reports exposes the stream statistics.
func (p *StreamPublisher) Reports() *ReportServer { return p.reports }

// Start listens on the configured address.
func (p *StreamPublisher) Start() error {
	lis, err := net.Listen("tcp", p.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	return p.Serve(lis)
}

// Serve serves on lis in the background.
func (p *StreamPublisher) Serve(lis net.Listener) error {
	if p.running.Swap(true) {
		return errors.New("report stream already running")
	}
	p.listener = lis
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		gun.Opsf("report stream listening on %s", lis.Addr())
		if err := p.server.Serve(lis); err != nil && p.running.Load() {
			gun.Opsf("report stream server error: %v", err)
		}
	}()
	return nil
}

// Stop ends every stream and waits for the server to exit.
func (p *StreamPublisher) Stop() {
	if !p.running.Swap(false) {
		return
	}
	p.server.Stop()
	p.wg.Wait()
	gun.Opsf("report stream stopped")
}
