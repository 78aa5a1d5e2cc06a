// Package asyncput implements the single background PUT-flushing
// task: once the PUTs cache queue reaches START_ASYNC_PUTS_AT, a
// condition-variable-woken goroutine drains the whole backlog,
// shuffles and sends it like any synchronous PUT, and appends the
// results to a buffer the caller later collects via FlushPuts. A
// `go-co-op/gocron/v2` job additionally force-flushes a
// non-empty-but-under-watermark backlog after an idle period, so a
// trickle of writes never sits buffered indefinitely.
package asyncput

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/hpc-hxhim/hxhim-go/internal/cache"
	"github.com/hpc-hxhim/hxhim-go/internal/hash"
	"github.com/hpc-hxhim/hxhim-go/internal/herr"
	"github.com/hpc-hxhim/hxhim-go/internal/packet"
	"github.com/hpc-hxhim/hxhim-go/internal/rangeserver"
	"github.com/hpc-hxhim/hxhim-go/internal/shuffle"
	"github.com/hpc-hxhim/hxhim-go/internal/wire"
	"github.com/hpc-hxhim/hxhim-go/pkg/blob"
	"github.com/hpc-hxhim/hxhim-go/pkg/log"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
	"github.com/hpc-hxhim/hxhim-go/pkg/results"
)

// Sender delivers one packed request to dstRank and returns the
// packed reply; backed by a transport.Transport.Send in production,
// stubbed directly in tests.
type Sender func(ctx context.Context, dstRank int, packed []byte) ([]byte, error)

// Config parameterizes one Worker instance from the same options that
// drive the synchronous PUT path.
type Config struct {
	Rank                int
	Hash                hash.Func
	HashArgs            any
	Ratio               rangeserver.Ratio
	TotalDatastores     int
	DatastoresPerServer int
	MaxOpsPerSend       int
	Watermark           int
	FlushIdleAfter      time.Duration
	Send                Sender
}

// Worker drains cache's Puts queue in the background once it crosses
// Config.Watermark, or after FlushIdleAfter has elapsed with a
// nonempty-but-under-watermark backlog.
type Worker struct {
	cfg        Config
	puts       *cache.Queue[cache.PendingPut]
	mu         sync.Mutex
	cond       *sync.Cond
	running    bool
	forceFlush bool
	results    *results.Results
	sched      gocron.Scheduler
	done       chan struct{}
}

// New creates a Worker bound to puts. Start must be called to begin
// draining.
func New(cfg Config, puts *cache.Queue[cache.PendingPut]) (*Worker, error) {
	if cfg.Watermark <= 0 {
		return nil, herr.New(herr.Config, "asyncput.New", errNonPositiveWatermark)
	}
	if cfg.Send == nil || cfg.Hash == nil {
		return nil, herr.New(herr.Config, "asyncput.New", errMissingDependency)
	}
	w := &Worker{
		cfg:     cfg,
		puts:    puts,
		results: results.New(),
		done:    make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	return w, nil
}

// Start launches the drain goroutine and the idle-flush scheduler.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	go w.loop(ctx)

	if w.cfg.FlushIdleAfter > 0 {
		s, err := gocron.NewScheduler()
		if err != nil {
			return herr.New(herr.Config, "asyncput.Start", err)
		}
		if _, err := s.NewJob(
			gocron.DurationJob(w.cfg.FlushIdleAfter),
			gocron.NewTask(w.idleTick),
		); err != nil {
			return herr.New(herr.Config, "asyncput.Start", err)
		}
		s.Start()
		w.sched = s
	}
	return nil
}

// idleTick is the gocron-scheduled task: if the backlog is nonempty
// (and therefore hasn't already been drained by a watermark trip), it
// forces one flush regardless of size.
func (w *Worker) idleTick() {
	if w.puts.Len() == 0 {
		return
	}
	w.mu.Lock()
	w.forceFlush = true
	w.cond.Signal()
	w.mu.Unlock()
}

// MaybeSignal wakes the drain goroutine if the backlog has reached
// Config.Watermark. Put/BPut call this after enqueuing; it never
// blocks the caller.
func (w *Worker) MaybeSignal() {
	if w.puts.Len() < w.cfg.Watermark {
		return
	}
	w.mu.Lock()
	w.cond.Signal()
	w.mu.Unlock()
}

// Stop halts the drain goroutine and the idle scheduler, and blocks
// until the goroutine has exited.
func (w *Worker) Stop() {
	w.mu.Lock()
	w.running = false
	w.cond.Broadcast()
	w.mu.Unlock()
	<-w.done
	if w.sched != nil {
		_ = w.sched.Shutdown()
	}
}

// Flush synchronously drains and sends whatever is currently queued,
// regardless of watermark. Safe to call concurrently with the
// background loop: both only ever touch the queue through its own
// mutex-guarded Drain.
func (w *Worker) Flush(ctx context.Context) {
	w.flushOnce(ctx)
}

// TakeResults returns every Record accumulated by background flushes
// since the last call, leaving the buffer empty.
func (w *Worker) TakeResults() *results.Results {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.results
	w.results = results.New()
	return out
}

func (w *Worker) loop(ctx context.Context) {
	defer close(w.done)
	w.mu.Lock()
	for {
		for w.running && w.puts.Len() < w.cfg.Watermark && !w.forceFlush {
			w.cond.Wait()
		}
		if !w.running {
			w.mu.Unlock()
			return
		}
		w.forceFlush = false
		w.mu.Unlock()

		w.flushOnce(ctx)

		w.mu.Lock()
	}
}

// flushOnce drains the backlog: acquire the PUTs mutex
// (internal/cache.Queue.Drain does this), shuffle and send the whole
// backlog normally, and append results under the Worker's own mutex.
func (w *Worker) flushOnce(ctx context.Context) {
	items := w.puts.Drain()
	if len(items) == 0 {
		return
	}

	builder, err := packet.NewBuilder(w.cfg.Rank, opcode.PUT, w.cfg.MaxOpsPerSend)
	if err != nil {
		log.Errf("asyncput: %v", err)
		return
	}

	for _, it := range items {
		slot := wire.PutRequestSlot{
			Subject:     blob.New(it.Subject, blob.TypeByte),
			Predicate:   blob.New(it.Predicate, blob.TypeByte),
			Object:      blob.New(it.Object, blob.Type(it.ObjectType)),
			Permutation: opcode.Permutation(it.Permutation),
		}
		if _, err := shuffle.Dispatch(w.cfg.Hash, it.Subject, it.Predicate, w.cfg.TotalDatastores, w.cfg.HashArgs, w.cfg.Ratio, w.cfg.DatastoresPerServer, builder, slot); err != nil {
			w.appendResult(&results.Record{Op: opcode.PUT, Status: opcode.StatusError, Err: err})
		}
	}

	for _, p := range builder.Flush() {
		w.sendPacket(ctx, p)
	}
}

func (w *Worker) sendPacket(ctx context.Context, p *packet.Packet) {
	start := time.Now()
	slots := make([]wire.PutRequestSlot, len(p.Slots))
	for i, s := range p.Slots {
		slots[i] = s.(wire.PutRequestSlot)
	}
	msg := &wire.Message{
		Header: wire.Header{
			Direction: opcode.REQUEST,
			Op:        opcode.PUT,
			Src:       int32(w.cfg.Rank),
			Dst:       int32(p.Dst),
			Count:     uint32(len(slots)),
		},
		PutReq: slots,
	}
	packed, err := wire.Pack(msg)
	if err != nil {
		w.appendResult(&results.Record{Op: opcode.PUT, DatastoreID: p.Dst, Status: opcode.StatusError, Err: err})
		return
	}

	replyPacked, err := w.cfg.Send(ctx, p.Dst, packed)
	if err != nil {
		for range slots {
			w.appendResult(&results.Record{Op: opcode.PUT, DatastoreID: p.Dst, Status: opcode.StatusError, Err: err, Duration: time.Since(start)})
		}
		return
	}

	reply, err := wire.Unpack(replyPacked, uint32(w.cfg.MaxOpsPerSend))
	if err != nil {
		for range slots {
			w.appendResult(&results.Record{Op: opcode.PUT, DatastoreID: p.Dst, Status: opcode.StatusError, Err: err, Duration: time.Since(start)})
		}
		return
	}

	dur := time.Since(start)
	// The echoed subject/predicate references carry no payload;
	// rebind each response slot to the request slot it answers.
	for i, r := range reply.PutResp {
		rec := &results.Record{
			Op:          opcode.PUT,
			DatastoreID: p.Dst,
			Status:      r.Status,
			Duration:    dur,
		}
		if i < len(slots) {
			rec.Subject = slots[i].Subject
			rec.Predicate = slots[i].Predicate
		}
		w.appendResult(rec)
	}
}

func (w *Worker) appendResult(rec *results.Record) {
	w.mu.Lock()
	w.results.Add(rec)
	w.mu.Unlock()
}
