package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/hpc-hxhim/hxhim-go/internal/herr"
)

// NATSTransport implements backend P ("parallel message passing") on
// top of nats.go request/reply: each rank subscribes to its own
// subject and answers with the reply inbox nats.go manages, which
// stands in for MPI's size-tag/data-tag exchange pair.
type NATSTransport struct {
	conn    *nats.Conn
	subject func(rank int) string
	timeout time.Duration
}

// NATSOption configures a NATSTransport.
type NATSOption func(*NATSTransport)

// WithRequestTimeout bounds how long Send waits for a reply. The
// core itself imposes no timeout; this is a transport-level safety
// net.
func WithRequestTimeout(d time.Duration) NATSOption {
	return func(t *NATSTransport) { t.timeout = d }
}

// NewNATSTransport connects to url and returns a Transport backed by
// NATS subjects of the form "hxhim.rank.<rank>".
func NewNATSTransport(url string, opts ...NATSOption) (*NATSTransport, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, herr.New(herr.Transport, "NewNATSTransport", err)
	}
	t := &NATSTransport{
		conn:    conn,
		subject: func(rank int) string { return fmt.Sprintf("hxhim.rank.%d", rank) },
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Send publishes packed to dstRank's subject and waits for one reply.
func (t *NATSTransport) Send(ctx context.Context, dstRank int, packed []byte) ([]byte, error) {
	reqCtx := ctx
	if t.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	msg, err := t.conn.RequestWithContext(reqCtx, t.subject(dstRank), packed)
	if err != nil {
		return nil, herr.New(herr.Transport, "NATSTransport.Send", err)
	}
	return msg.Data, nil
}

// Serve subscribes to rank's subject and answers each request with
// handler's result until ctx is cancelled.
func (t *NATSTransport) Serve(ctx context.Context, rank int, handler Handler) error {
	sub, err := t.conn.Subscribe(t.subject(rank), func(msg *nats.Msg) {
		reply, err := handler(ctx, msg.Data)
		if err != nil {
			// Codec/Datastore-kind errors are already folded into the
			// per-slot status by the caller; a Handler error here means
			// the whole packet could not be processed at all, so the
			// peer gets an empty reply rather than hanging.
			_ = msg.Respond(nil)
			return
		}
		_ = msg.Respond(reply)
	})
	if err != nil {
		return herr.New(herr.Transport, "NATSTransport.Serve", err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

// Close closes the underlying NATS connection; pending messages are
// not drained first.
func (t *NATSTransport) Close() error {
	t.conn.Close()
	return nil
}
