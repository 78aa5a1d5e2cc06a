package transport

import (
	"context"
	"fmt"
	"net"
	"sync"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hpc-hxhim/hxhim-go/internal/herr"
)

// transportServiceName and sendMethod name the single hand-rolled RPC
// backend R exposes: "each server defines a named remote-procedure
// that takes a byte-string and returns a byte-string".
// No .proto compilation is needed since rawBytesCodec bypasses
// protobuf marshaling entirely.
const (
	transportServiceName = "hxhim.Transport"
	sendMethod           = "/" + transportServiceName + "/Send"
)

type grpcServer struct {
	handler Handler
}

func (s *grpcServer) send(ctx context.Context, in []byte) ([]byte, error) {
	return s.handler(ctx, in)
}

func sendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new([]byte)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*grpcServer).send(ctx, *in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: sendMethod}
	wrapped := func(ctx context.Context, req any) (any, error) {
		return srv.(*grpcServer).send(ctx, *(req.(*[]byte)))
	}
	return interceptor(ctx, in, info, wrapped)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: transportServiceName,
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Send", Handler: sendHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "internal/transport/grpc_transport.go",
}

// GRPCTransport implements backend R ("userspace RPC") via a plain
// gRPC unary call carrying raw bytes. Rank-to-address discovery is a
// static map populated at construction, standing in for MPI's
// one-shot allgather at startup (the allgather itself is an
// MPI-world concern outside what a library transport owns; the core
// supplies the resolved map).
type GRPCTransport struct {
	mu       sync.Mutex
	conns    map[int]*grpc.ClientConn
	addrs    map[int]string
	server   *grpc.Server
	listener net.Listener
}

// NewGRPCTransport returns a Transport that dials addrs[rank] lazily
// on first Send to that rank.
func NewGRPCTransport(addrs map[int]string) *GRPCTransport {
	return &GRPCTransport{
		conns: make(map[int]*grpc.ClientConn),
		addrs: addrs,
	}
}

func (t *GRPCTransport) connFor(dstRank int) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn, ok := t.conns[dstRank]; ok {
		return conn, nil
	}
	addr, ok := t.addrs[dstRank]
	if !ok {
		return nil, fmt.Errorf("no address known for rank %d", dstRank)
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawBytesCodec{})),
	)
	if err != nil {
		return nil, err
	}
	t.conns[dstRank] = conn
	return conn, nil
}

// Send invokes the Send RPC against dstRank's server.
func (t *GRPCTransport) Send(ctx context.Context, dstRank int, packed []byte) ([]byte, error) {
	conn, err := t.connFor(dstRank)
	if err != nil {
		return nil, herr.New(herr.Transport, "GRPCTransport.Send", err)
	}
	in := packed
	out := new([]byte)
	if err := conn.Invoke(ctx, sendMethod, &in, out); err != nil {
		return nil, herr.New(herr.Transport, "GRPCTransport.Send", err)
	}
	return *out, nil
}

// Serve listens on the address addrs[rank] names and answers Send
// calls with handler until ctx is cancelled.
func (t *GRPCTransport) Serve(ctx context.Context, rank int, handler Handler) error {
	addr, ok := t.addrs[rank]
	if !ok {
		return herr.New(herr.Config, "GRPCTransport.Serve", fmt.Errorf("no listen address configured for rank %d", rank))
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return herr.New(herr.Transport, "GRPCTransport.Serve", err)
	}
	t.mu.Lock()
	t.listener = lis
	t.server = grpc.NewServer(grpc.ForceServerCodec(rawBytesCodec{}))
	t.server.RegisterService(&serviceDesc, &grpcServer{handler: handler})
	srv := t.server
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	if err := srv.Serve(lis); err != nil {
		return herr.New(herr.Transport, "GRPCTransport.Serve", err)
	}
	return nil
}

// Close tears down any outbound connections and the inbound server.
func (t *GRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, conn := range t.conns {
		_ = conn.Close()
	}
	if t.server != nil {
		t.server.Stop()
	}
	return nil
}
