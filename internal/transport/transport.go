// Package transport ships packed request bytes to a peer rank and
// returns the reply: two concrete backends sharing one contract,
// `send(dst_rank, packed_bytes) -> reply_bytes`, where bytes are
// self-describing per the wire package. Backend P ("parallel message
// passing", the MPI analog) is implemented with `nats-io/nats.go`'s
// request/reply semantics; backend R ("userspace RPC", the Thallium
// analog) is implemented with a hand-rolled gRPC service taking and
// returning raw bytes, avoiding any dependency on compiled protobuf
// message types.
package transport

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Handler processes one incoming packed request and returns the
// packed reply, on the server side of a backend.
type Handler func(ctx context.Context, packed []byte) ([]byte, error)

// Transport is not required to preserve ordering between distinct
// (src,dst) pairs; for a single (src,dst) pair, requests are
// delivered and answered in submission order.
type Transport interface {
	// Send delivers packed to dstRank and returns its reply.
	Send(ctx context.Context, dstRank int, packed []byte) ([]byte, error)
	// Serve runs the server loop for this rank, invoking handler for
	// each inbound request, until ctx is cancelled.
	Serve(ctx context.Context, rank int, handler Handler) error
	// Close releases transport resources.
	Close() error
}

// Registerer is implemented by transports that can bind a rank's
// Handler synchronously, ahead of Serve's blocking loop.
// LoopbackTransport implements this so a single-process deployment can
// register its own handler before the first Send is issued, instead
// of racing Serve's goroutine startup against the caller's first
// operation.
type Registerer interface {
	Register(rank int, handler Handler)
}

// Limiters gates outbound sends per-destination-rank so one noisy
// destination cannot starve a shared connection pool. The core
// imposes no throttling of its own; Limiters is applied by callers
// that want it, not by the Transport implementations themselves.
type Limiters struct {
	mu      sync.Mutex
	perRank map[int]*rate.Limiter
	rps     rate.Limit
	burst   int
}

// NewLimiters creates a per-rank limiter set, lazily allocating one
// limiter the first time a given rank is seen.
func NewLimiters(rps float64, burst int) *Limiters {
	return &Limiters{
		perRank: make(map[int]*rate.Limiter),
		rps:     rate.Limit(rps),
		burst:   burst,
	}
}

// Wait blocks until a send to dstRank is permitted, or ctx is done.
func (l *Limiters) Wait(ctx context.Context, dstRank int) error {
	l.mu.Lock()
	lim, ok := l.perRank[dstRank]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.perRank[dstRank] = lim
	}
	l.mu.Unlock()
	return lim.Wait(ctx)
}
