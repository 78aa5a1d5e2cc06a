package transport

import (
	"context"
	"fmt"
	"sync"
)

// LoopbackTransport delivers Send calls directly to a locally
// registered Handler, with no network hop. A process may act as a
// client, a range server, or both; when every range server in a
// deployment lives in the same process as its clients (the common
// single-process test and development configuration), there is
// nothing for backend P or R to ship over the wire, and the
// transport's only job is to keep the Send/Serve contract intact for
// the rest of the pipeline.
type LoopbackTransport struct {
	mu       sync.Mutex
	handlers map[int]Handler
}

// NewLoopbackTransport returns an empty LoopbackTransport; ranks
// register their Handler via Serve.
func NewLoopbackTransport() *LoopbackTransport {
	return &LoopbackTransport{handlers: make(map[int]Handler)}
}

// Send invokes dstRank's registered Handler in the caller's own
// goroutine.
func (t *LoopbackTransport) Send(ctx context.Context, dstRank int, packed []byte) ([]byte, error) {
	t.mu.Lock()
	h, ok := t.handlers[dstRank]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("loopback transport: no handler registered for rank %d", dstRank)
	}
	return h(ctx, packed)
}

// Register binds handler to rank immediately, ahead of Serve's
// blocking loop (satisfies transport.Registerer).
func (t *LoopbackTransport) Register(rank int, handler Handler) {
	t.mu.Lock()
	t.handlers[rank] = handler
	t.mu.Unlock()
}

// Serve registers handler for rank (if not already registered via
// Register) and blocks until ctx is cancelled.
func (t *LoopbackTransport) Serve(ctx context.Context, rank int, handler Handler) error {
	t.Register(rank, handler)
	<-ctx.Done()
	t.mu.Lock()
	delete(t.handlers, rank)
	t.mu.Unlock()
	return nil
}

// Close is a no-op; LoopbackTransport owns no external resources.
func (t *LoopbackTransport) Close() error { return nil }
