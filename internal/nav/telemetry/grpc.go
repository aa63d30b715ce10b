package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// The telemetry service carries snapshots as google.protobuf.Struct, so it
// needs no generated message types.
const (
	telemetryServiceName = "navcore.Telemetry"
	latestMethod         = "/navcore.Telemetry/Latest"
	watchMethod          = "/navcore.Telemetry/Watch"
)

// TelemetryServer is the server API for the navcore.Telemetry service.
type TelemetryServer interface {
	Latest(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	Watch(*emptypb.Empty, grpc.ServerStreamingServer[structpb.Struct]) error
}

func latestHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServer).Latest(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: latestMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TelemetryServer).Latest(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func watchHandler(srv any, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(TelemetryServer).Watch(m, &grpc.GenericServerStream[emptypb.Empty, structpb.Struct]{ServerStream: stream})
}

// TelemetryServiceDesc describes navcore.Telemetry for grpc.Server.RegisterService.
var TelemetryServiceDesc = grpc.ServiceDesc{
	ServiceName: telemetryServiceName,
	HandlerType: (*TelemetryServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Latest", Handler: latestHandler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: watchHandler, ServerStreams: true},
	},
	Metadata: "navcore/telemetry.proto",
}

// toStruct converts a JSON-encodable view into a Struct.
func toStruct(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return structpb.NewStruct(m)
}

// GRPCService implements TelemetryServer from a Publisher.
type GRPCService struct {
	pub    *Publisher
	buffer int
}

// NewGRPCService creates the service. Each Watch subscriber gets a buffer
// of the given depth; a slow client misses frames.
func NewGRPCService(pub *Publisher, buffer int) *GRPCService {
	if buffer < 1 {
		buffer = 10
	}
	return &GRPCService{pub: pub, buffer: buffer}
}

// Latest returns the most recent snapshot.
func (g *GRPCService) Latest(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap, ok := g.pub.Latest()
	if !ok {
		return nil, status.Error(codes.Unavailable, "no frame yet")
	}
	st, err := toStruct(snap)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return st, nil
}

// Watch streams a snapshot per tick until the client goes away.
func (g *GRPCService) Watch(_ *emptypb.Empty, stream grpc.ServerStreamingServer[structpb.Struct]) error {
	ctx := stream.Context()
	frames, cancel := g.pub.Subscribe(g.buffer)
	defer cancel()

	log.Printf("[Telemetry] watch client connected")
	defer log.Printf("[Telemetry] watch client disconnected")

	for {
		select {
		case <-ctx.Done():
			return nil
		case f, ok := <-frames:
			if !ok {
				return nil
			}
			st, err := toStruct(SnapshotOf(f))
			if err != nil {
				return status.Error(codes.Internal, err.Error())
			}
			if err := stream.Send(st); err != nil {
				return err
			}
		}
	}
}

// GRPCServer owns the grpc.Server serving the telemetry service.
type GRPCServer struct {
	server *grpc.Server
}

// NewGRPCServer creates a server with the telemetry service registered.
func NewGRPCServer(svc TelemetryServer) *GRPCServer {
	s := grpc.NewServer(
		grpc.MaxRecvMsgSize(1*1024*1024),
		grpc.MaxSendMsgSize(16*1024*1024),
	)
	s.RegisterService(&TelemetryServiceDesc, svc)
	return &GRPCServer{server: s}
}

// Serve blocks serving lis until Stop is called.
func (s *GRPCServer) Serve(lis net.Listener) error {
	log.Printf("[Telemetry] gRPC server listening on %s", lis.Addr())
	if err := s.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("serve telemetry: %w", err)
	}
	return nil
}

// Stop drains streams for up to timeout and then closes them.
func (s *GRPCServer) Stop(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		s.server.Stop()
	}
}

// TelemetryClient is a client for navcore.Telemetry.
type TelemetryClient struct {
	cc grpc.ClientConnInterface
}

// NewTelemetryClient wraps an established connection.
func NewTelemetryClient(cc grpc.ClientConnInterface) *TelemetryClient {
	return &TelemetryClient{cc: cc}
}

// Latest fetches the most recent snapshot.
func (c *TelemetryClient) Latest(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, latestMethod, &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch opens a snapshot stream.
func (c *TelemetryClient) Watch(ctx context.Context, opts ...grpc.CallOption) (grpc.ServerStreamingClient[structpb.Struct], error) {
	stream, err := c.cc.NewStream(ctx, &TelemetryServiceDesc.Streams[0], watchMethod, opts...)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[emptypb.Empty, structpb.Struct]{ClientStream: stream}
	if err := x.ClientStream.SendMsg(&emptypb.Empty{}); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

var _ TelemetryServer = (*GRPCService)(nil)
