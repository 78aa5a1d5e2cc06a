package hxhim

import (
	"context"
	"fmt"
	"time"

	"github.com/hpc-hxhim/hxhim-go/internal/adminhttp"
	"github.com/hpc-hxhim/hxhim-go/internal/cache"
	"github.com/hpc-hxhim/hxhim-go/internal/herr"
	"github.com/hpc-hxhim/hxhim-go/internal/packet"
	"github.com/hpc-hxhim/hxhim-go/internal/rangeserver"
	"github.com/hpc-hxhim/hxhim-go/internal/shuffle"
	"github.com/hpc-hxhim/hxhim-go/internal/wire"
	"github.com/hpc-hxhim/hxhim-go/pkg/blob"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
	"github.com/hpc-hxhim/hxhim-go/pkg/results"
)

// PutItem is one (subject,predicate,object) triple to store, plus
// which additional key orderings to derive from it. A zero
// Permutation is treated as PermSP only.
type PutItem struct {
	Subject, Predicate, Object *blob.Blob
	Permutation                opcode.Permutation
}

// GetItem is one (subject,predicate) key to look up.
type GetItem struct {
	Subject, Predicate *blob.Blob
	ObjectType         blob.Type
}

// GetOpItem is one directional-scan request.
type GetOpItem struct {
	Subject, Predicate *blob.Blob
	ObjectType         blob.Type
	NumRecs            uint32
	Kind               opcode.GetOpKind
}

// DeleteItem is one (subject,predicate) key to remove.
type DeleteItem struct {
	Subject, Predicate *blob.Blob
}

// HistogramItem names one histogram to fetch, on the datastore id
// that owns it.
type HistogramItem struct {
	DatastoreID int
	Name        string
}

// Put enqueues one PUT. It does not send anything by itself: the
// synchronous ops (Get/GetOp/Delete/Histogram) and PUT alike are only
// sent on a Flush/FlushPuts/etc. call, except that when the async
// worker runs (Config.StartAsyncPutsAt) it starts draining PUTs on its
// own once that many are queued, and also flushes a smaller non-empty
// backlog every Options.AsyncFlushInterval.
func (in *Instance) Put(item PutItem) error {
	return in.BPut([]PutItem{item})
}

// BPut enqueues a batch of PUTs.
func (in *Instance) BPut(items []PutItem) error {
	for _, it := range items {
		for _, p := range expandPermutations(it) {
			in.cache.Puts.Enqueue(p)
		}
	}
	if in.asyncWorker != nil {
		in.asyncWorker.MaybeSignal()
	}
	return nil
}

// expandPermutations derives every additional key ordering item.Permutation
// selects. PermSO/PermOS are skipped when the object carries no bytes,
// since there is no key to derive.
func expandPermutations(item PutItem) []cache.PendingPut {
	perm := item.Permutation
	if perm == 0 {
		perm = opcode.PermSP
	}

	var out []cache.PendingPut
	if perm&opcode.PermSP != 0 {
		out = append(out, cache.PendingPut{
			Subject: item.Subject.Data, Predicate: item.Predicate.Data,
			Object: item.Object.Data, ObjectType: uint8(item.Object.Type),
			Permutation: uint8(opcode.PermSP),
		})
	}
	if perm&opcode.PermPS != 0 {
		out = append(out, cache.PendingPut{
			Subject: item.Predicate.Data, Predicate: item.Subject.Data,
			Object: item.Object.Data, ObjectType: uint8(item.Object.Type),
			Permutation: uint8(opcode.PermPS),
		})
	}
	if perm&opcode.PermSO != 0 && item.Object.Len() > 0 {
		out = append(out, cache.PendingPut{
			Subject: item.Subject.Data, Predicate: item.Object.Data,
			ObjectType: uint8(blob.TypeByte), Permutation: uint8(opcode.PermSO),
		})
	}
	if perm&opcode.PermOS != 0 && item.Object.Len() > 0 {
		out = append(out, cache.PendingPut{
			Subject: item.Object.Data, Predicate: item.Subject.Data,
			ObjectType: uint8(blob.TypeByte), Permutation: uint8(opcode.PermOS),
		})
	}
	return out
}

// Get enqueues one GET.
func (in *Instance) Get(item GetItem) error { return in.BGet([]GetItem{item}) }

// BGet enqueues a batch of GETs.
func (in *Instance) BGet(items []GetItem) error {
	for _, it := range items {
		in.cache.Gets.Enqueue(cache.PendingGet{
			Subject: it.Subject.Data, Predicate: it.Predicate.Data,
			ObjectType: uint8(it.ObjectType),
		})
	}
	return nil
}

// GetOp enqueues one directional-scan request.
func (in *Instance) GetOp(item GetOpItem) error { return in.BGetOp([]GetOpItem{item}) }

// BGetOp enqueues a batch of directional-scan requests.
func (in *Instance) BGetOp(items []GetOpItem) error {
	for _, it := range items {
		in.cache.GetOps.Enqueue(cache.PendingGetOp{
			Subject: it.Subject.Data, Predicate: it.Predicate.Data,
			ObjectType: uint8(it.ObjectType), NumRecs: it.NumRecs, Kind: uint8(it.Kind),
		})
	}
	return nil
}

// Delete enqueues one DELETE.
func (in *Instance) Delete(item DeleteItem) error { return in.BDelete([]DeleteItem{item}) }

// BDelete enqueues a batch of DELETEs.
func (in *Instance) BDelete(items []DeleteItem) error {
	for _, it := range items {
		in.cache.Deletes.Enqueue(cache.PendingDelete{Subject: it.Subject.Data, Predicate: it.Predicate.Data})
	}
	return nil
}

// Histogram enqueues one HISTOGRAM request.
func (in *Instance) Histogram(item HistogramItem) error {
	return in.BHistogram([]HistogramItem{item})
}

// BHistogram enqueues a batch of HISTOGRAM requests.
func (in *Instance) BHistogram(items []HistogramItem) error {
	for _, it := range items {
		in.cache.Histograms.Enqueue(cache.PendingHistogram{DatastoreID: it.DatastoreID, Name: it.Name})
	}
	return nil
}

// FlushPuts sends every queued PUT and returns the accumulated
// results. When the async worker is active it forces an out-of-band
// drain of whatever is left below the watermark and collects
// everything the worker has accumulated since the last call;
// otherwise it performs the send inline.
func (in *Instance) FlushPuts(ctx context.Context) *results.Results {
	in.epoch++
	if in.asyncWorker != nil {
		in.asyncWorker.Flush(ctx)
		return in.asyncWorker.TakeResults()
	}
	return in.flushPutsSync(ctx)
}

func (in *Instance) flushPutsSync(ctx context.Context) *results.Results {
	out := results.New()
	items := in.cache.Puts.Drain()
	if len(items) == 0 {
		return out
	}

	builder, err := packet.NewBuilder(in.comm.Rank, opcode.PUT, in.cfg.MaximumOpsPerSend)
	if err != nil {
		out.Add(&results.Record{Op: opcode.PUT, Status: opcode.StatusError, Err: err})
		return out
	}
	for _, it := range items {
		slot := wire.PutRequestSlot{
			Subject:     blob.New(it.Subject, blob.TypeByte),
			Predicate:   blob.New(it.Predicate, blob.TypeByte),
			Object:      blob.New(it.Object, blob.Type(it.ObjectType)),
			Permutation: opcode.Permutation(it.Permutation),
		}
		if _, err := shuffle.Dispatch(in.hashFn, it.Subject, it.Predicate, in.total, in.hashArgs, in.ratio, in.perServer, builder, slot); err != nil {
			out.Add(&results.Record{Op: opcode.PUT, Status: opcode.StatusError, Err: err})
		}
	}

	for _, p := range builder.Flush() {
		start := time.Now()
		slots := make([]wire.PutRequestSlot, len(p.Slots))
		for i, s := range p.Slots {
			slots[i] = s.(wire.PutRequestSlot)
		}
		reply, err := in.roundTrip(ctx, p.Dst, opcode.PUT, len(slots), wire.Message{PutReq: slots})
		if err != nil {
			for range slots {
				out.Add(&results.Record{Op: opcode.PUT, DatastoreID: p.Dst, Status: opcode.StatusError, Err: err, Duration: time.Since(start)})
			}
			continue
		}
		dur := time.Since(start)
		// The server echoes subject/predicate by reference with no
		// payload; rebind each response slot to the request slot it
		// answers, which is delivered in submission order within one
		// (src,dst) packet.
		for i, r := range reply.PutResp {
			rec := &results.Record{Op: opcode.PUT, DatastoreID: p.Dst, Status: r.Status, Duration: dur}
			if i < len(slots) {
				rec.Subject = slots[i].Subject
				rec.Predicate = slots[i].Predicate
			}
			out.Add(rec)
		}
	}
	return out
}

// FlushGets sends every queued GET and returns the results.
func (in *Instance) FlushGets(ctx context.Context) *results.Results {
	in.epoch++
	out := results.New()
	items := in.cache.Gets.Drain()
	if len(items) == 0 {
		return out
	}

	builder, err := packet.NewBuilder(in.comm.Rank, opcode.GET, in.cfg.MaximumOpsPerSend)
	if err != nil {
		out.Add(&results.Record{Op: opcode.GET, Status: opcode.StatusError, Err: err})
		return out
	}
	for _, it := range items {
		slot := wire.GetRequestSlot{
			Subject: blob.New(it.Subject, blob.TypeByte), Predicate: blob.New(it.Predicate, blob.TypeByte),
			ObjectType: blob.Type(it.ObjectType),
		}
		if _, err := shuffle.Dispatch(in.hashFn, it.Subject, it.Predicate, in.total, in.hashArgs, in.ratio, in.perServer, builder, slot); err != nil {
			out.Add(&results.Record{Op: opcode.GET, Status: opcode.StatusError, Err: err})
		}
	}

	for _, p := range builder.Flush() {
		start := time.Now()
		slots := make([]wire.GetRequestSlot, len(p.Slots))
		for i, s := range p.Slots {
			slots[i] = s.(wire.GetRequestSlot)
		}
		reply, err := in.roundTrip(ctx, p.Dst, opcode.GET, len(slots), wire.Message{GetReq: slots})
		if err != nil {
			for range slots {
				out.Add(&results.Record{Op: opcode.GET, DatastoreID: p.Dst, Status: opcode.StatusError, Err: err, Duration: time.Since(start)})
			}
			continue
		}
		dur := time.Since(start)
		// Rebind each response to the request slot it answers: the
		// server returns only the object, plus payload-free
		// subject/predicate references.
		for i, r := range reply.GetResp {
			rec := &results.Record{
				Op: opcode.GET, DatastoreID: p.Dst, Status: r.Status, Duration: dur,
				Triple: results.Triple{Object: r.Object},
			}
			if i < len(slots) {
				rec.Triple.Subject = slots[i].Subject
				rec.Triple.Predicate = slots[i].Predicate
			}
			out.Add(rec)
		}
	}
	return out
}

// FlushGetOps sends every queued GETOP request and returns the results.
func (in *Instance) FlushGetOps(ctx context.Context) *results.Results {
	in.epoch++
	out := results.New()
	items := in.cache.GetOps.Drain()
	if len(items) == 0 {
		return out
	}

	builder, err := packet.NewBuilder(in.comm.Rank, opcode.GETOP, in.cfg.MaximumOpsPerSend)
	if err != nil {
		out.Add(&results.Record{Op: opcode.GETOP, Status: opcode.StatusError, Err: err})
		return out
	}
	for _, it := range items {
		slot := wire.GetOpRequestSlot{
			Subject: blob.New(it.Subject, blob.TypeByte), Predicate: blob.New(it.Predicate, blob.TypeByte),
			ObjectType: blob.Type(it.ObjectType), NumRecs: it.NumRecs, Kind: opcode.GetOpKind(it.Kind),
		}
		if _, err := shuffle.Dispatch(in.hashFn, it.Subject, it.Predicate, in.total, in.hashArgs, in.ratio, in.perServer, builder, slot); err != nil {
			out.Add(&results.Record{Op: opcode.GETOP, Status: opcode.StatusError, Err: err})
		}
	}

	for _, p := range builder.Flush() {
		start := time.Now()
		slots := make([]wire.GetOpRequestSlot, len(p.Slots))
		for i, s := range p.Slots {
			slots[i] = s.(wire.GetOpRequestSlot)
		}
		reply, err := in.roundTrip(ctx, p.Dst, opcode.GETOP, len(slots), wire.Message{GetOpReq: slots})
		if err != nil {
			for range slots {
				out.Add(&results.Record{Op: opcode.GETOP, DatastoreID: p.Dst, Status: opcode.StatusError, Err: err, Duration: time.Since(start)})
			}
			continue
		}
		dur := time.Since(start)
		for _, r := range reply.GetOpResp {
			triples := make([]results.Triple, r.NumRecs)
			for i := range triples {
				triples[i] = results.Triple{Subject: r.Subjects[i], Predicate: r.Predicates[i], Object: r.Objects[i]}
			}
			out.Add(&results.Record{Op: opcode.GETOP, DatastoreID: p.Dst, Status: r.Status, Duration: dur, GetOpRecords: triples})
		}
	}
	return out
}

// FlushDeletes sends every queued DELETE and returns the results.
func (in *Instance) FlushDeletes(ctx context.Context) *results.Results {
	in.epoch++
	out := results.New()
	items := in.cache.Deletes.Drain()
	if len(items) == 0 {
		return out
	}

	builder, err := packet.NewBuilder(in.comm.Rank, opcode.DELETE, in.cfg.MaximumOpsPerSend)
	if err != nil {
		out.Add(&results.Record{Op: opcode.DELETE, Status: opcode.StatusError, Err: err})
		return out
	}
	for _, it := range items {
		slot := wire.DeleteRequestSlot{Subject: blob.New(it.Subject, blob.TypeByte), Predicate: blob.New(it.Predicate, blob.TypeByte)}
		if _, err := shuffle.Dispatch(in.hashFn, it.Subject, it.Predicate, in.total, in.hashArgs, in.ratio, in.perServer, builder, slot); err != nil {
			out.Add(&results.Record{Op: opcode.DELETE, Status: opcode.StatusError, Err: err})
		}
	}

	for _, p := range builder.Flush() {
		start := time.Now()
		slots := make([]wire.DeleteRequestSlot, len(p.Slots))
		for i, s := range p.Slots {
			slots[i] = s.(wire.DeleteRequestSlot)
		}
		reply, err := in.roundTrip(ctx, p.Dst, opcode.DELETE, len(slots), wire.Message{DeleteReq: slots})
		if err != nil {
			for range slots {
				out.Add(&results.Record{Op: opcode.DELETE, DatastoreID: p.Dst, Status: opcode.StatusError, Err: err, Duration: time.Since(start)})
			}
			continue
		}
		dur := time.Since(start)
		for i, r := range reply.DeleteResp {
			rec := &results.Record{Op: opcode.DELETE, DatastoreID: p.Dst, Status: r.Status, Duration: dur}
			if i < len(slots) {
				rec.Subject = slots[i].Subject
				rec.Predicate = slots[i].Predicate
			}
			out.Add(rec)
		}
	}
	return out
}

// FlushHistograms sends every queued HISTOGRAM request and returns the
// results. Unlike the other op kinds, a HISTOGRAM's destination is the
// datastore id it names directly, not a hash of a subject/predicate,
// so dispatch resolves the destination rank without going through
// internal/shuffle.
func (in *Instance) FlushHistograms(ctx context.Context) *results.Results {
	in.epoch++
	out := results.New()
	items := in.cache.Histograms.Drain()
	if len(items) == 0 {
		return out
	}

	builder, err := packet.NewBuilder(in.comm.Rank, opcode.HISTOGRAM, in.cfg.MaximumOpsPerSend)
	if err != nil {
		out.Add(&results.Record{Op: opcode.HISTOGRAM, Status: opcode.StatusError, Err: err})
		return out
	}
	for _, it := range items {
		rank, err := rangeserver.GetRank(it.DatastoreID/in.perServer, in.ratio)
		if err != nil {
			out.Add(&results.Record{Op: opcode.HISTOGRAM, DatastoreID: it.DatastoreID, Status: opcode.StatusError, Err: err})
			continue
		}
		builder.Add(rank, wire.HistogramRequestSlot{DatastoreID: int32(it.DatastoreID), Name: it.Name})
	}

	for _, p := range builder.Flush() {
		start := time.Now()
		slots := make([]wire.HistogramRequestSlot, len(p.Slots))
		for i, s := range p.Slots {
			slots[i] = s.(wire.HistogramRequestSlot)
		}
		reply, err := in.roundTrip(ctx, p.Dst, opcode.HISTOGRAM, len(slots), wire.Message{HistReq: slots})
		if err != nil {
			for range slots {
				out.Add(&results.Record{Op: opcode.HISTOGRAM, DatastoreID: p.Dst, Status: opcode.StatusError, Err: err, Duration: time.Since(start)})
			}
			continue
		}
		dur := time.Since(start)
		for _, r := range reply.HistResp {
			out.Add(&results.Record{Op: opcode.HISTOGRAM, DatastoreID: p.Dst, Status: r.Status, Duration: dur, Histogram: r.Histogram})
		}
	}
	return out
}

// Flush sends every queued op of every kind and returns one merged
// Results in Put, Get, GetOp, Delete, Histogram order.
func (in *Instance) Flush(ctx context.Context) *results.Results {
	out := in.FlushPuts(ctx)
	out.Append(in.FlushGets(ctx))
	out.Append(in.FlushGetOps(ctx))
	out.Append(in.FlushDeletes(ctx))
	out.Append(in.FlushHistograms(ctx))
	return out
}

// Sync asks every range server to fsync/commit all of its local
// datastores, returning one result per local datastore per server.
func (in *Instance) Sync(ctx context.Context) *results.Results {
	in.epoch++
	out := results.New()
	for _, rank := range in.serverRanks {
		reply, err := in.roundTrip(ctx, rank, opcode.SYNC, 1, wire.Message{SyncReq: []wire.SyncRequestSlot{{}}})
		if err != nil {
			out.Add(&results.Record{Op: opcode.SYNC, DatastoreID: rank, Status: opcode.StatusError, Err: err})
			continue
		}
		for _, r := range reply.SyncResp {
			out.Add(&results.Record{Op: opcode.SYNC, DatastoreID: rank, Status: r.Status})
		}
	}
	return out
}

// sendHistogram performs one unqueued HISTOGRAM round trip, used by
// HaveHistogram.
func (in *Instance) sendHistogram(ctx context.Context, datastoreID int, name string) (*wire.HistogramResponseSlot, error) {
	rank, err := rangeserver.GetRank(datastoreID/in.perServer, in.ratio)
	if err != nil {
		return nil, err
	}
	reply, err := in.roundTrip(ctx, rank, opcode.HISTOGRAM, 1, wire.Message{
		HistReq: []wire.HistogramRequestSlot{{DatastoreID: int32(datastoreID), Name: name}},
	})
	if err != nil {
		return nil, err
	}
	if len(reply.HistResp) == 0 {
		return nil, herr.New(herr.Codec, "hxhim.sendHistogram", fmt.Errorf("empty HISTOGRAM reply"))
	}
	return &reply.HistResp[0], nil
}

// roundTrip packs msg, sends it to dstRank, and unpacks the reply.
func (in *Instance) roundTrip(ctx context.Context, dstRank int, op opcode.Op, count int, msg wire.Message) (*wire.Message, error) {
	msg.Header = wire.Header{
		Direction: opcode.REQUEST, Op: op,
		Src: int32(in.comm.Rank), Dst: int32(dstRank), Count: uint32(count),
	}
	packed, err := wire.Pack(&msg)
	if err != nil {
		return nil, herr.New(herr.Codec, "hxhim.roundTrip", err)
	}
	replyPacked, err := in.transport.Send(ctx, dstRank, packed)
	if err != nil {
		return nil, herr.New(herr.Transport, "hxhim.roundTrip", err)
	}
	reply, err := wire.Unpack(replyPacked, uint32(in.cfg.MaximumOpsPerSend))
	if err != nil {
		return nil, herr.New(herr.Codec, "hxhim.roundTrip", err)
	}
	return reply, nil
}

// ChangeDatastoreName renames this rank's local datastores: each one
// is synced, closed, and reopened under the new base name, the rename
// is recorded in the registry audit trail when one is configured, and
// the caller gets back one SYNC result per local datastore. The
// rename is collective: every rank must call it with the same
// newName between its own flushes, the same way each rank
// independently computes its topology with no live coordination.
// Client-only ranks have nothing to reopen and get an empty
// Results.
func (in *Instance) ChangeDatastoreName(ctx context.Context, newName string) (*results.Results, error) {
	out := results.New()
	if !in.isServer {
		return out, nil
	}

	in.namesMu.Lock()
	defer in.namesMu.Unlock()
	for i := range in.localDatastores {
		id := in.baseDatastoreID + i
		status := opcode.StatusSuccess
		if err := in.localDatastores[i].Sync(ctx); err != nil {
			status = opcode.StatusError
		}
		if err := in.localDatastores[i].Close(); err != nil {
			status = opcode.StatusError
		}

		newPath := fmt.Sprintf("%s-%d.%s", newName, id, in.cfg.PersistPostfix)
		ds, err := in.opener(newPath, id)
		if err != nil {
			return out, herr.New(herr.Datastore, "hxhim.ChangeDatastoreName", err)
		}
		in.localDatastores[i] = ds
		in.localName[id] = newName

		if in.registry != nil {
			if err := in.registry.RecordRename(ctx, id, newName, newPath); err != nil {
				return out, herr.New(herr.Datastore, "hxhim.ChangeDatastoreName", err)
			}
		}
		out.Add(&results.Record{Op: opcode.SYNC, DatastoreID: id, Status: status})
	}
	return out, nil
}

// Datastores implements adminhttp.Source.
func (in *Instance) Datastores() []adminhttp.DatastoreStat {
	if !in.isServer {
		return nil
	}
	in.namesMu.Lock()
	defer in.namesMu.Unlock()

	out := make([]adminhttp.DatastoreStat, len(in.localDatastores))
	for i := range in.localDatastores {
		id := in.baseDatastoreID + i
		out[i] = adminhttp.DatastoreStat{
			ID:     id,
			Name:   in.localName[id],
			Path:   fmt.Sprintf("%s-%d.%s", in.localName[id], id, in.cfg.PersistPostfix),
			Engine: in.cfg.Datastore,
		}
	}
	return out
}

// Pools implements adminhttp.Source.
func (in *Instance) Pools() []adminhttp.PoolStat {
	if in.pools == nil {
		return nil
	}
	var out []adminhttp.PoolStat
	add := func(name string, p interface {
		InUse() int
		Regions() int
		AllocSize() int
	}) {
		out = append(out, adminhttp.PoolStat{Name: name, InUse: p.InUse(), Regions: p.Regions(), AllocSize: p.AllocSize()})
	}
	if in.pools.Keys != nil {
		add("keys", in.pools.Keys)
	}
	if in.pools.Buffers != nil {
		add("buffers", in.pools.Buffers)
	}
	if in.pools.OpsCache != nil {
		add("ops_cache", in.pools.OpsCache)
	}
	if in.pools.Arrays != nil {
		add("arrays", in.pools.Arrays)
	}
	if in.pools.Requests != nil {
		add("requests", in.pools.Requests)
	}
	if in.pools.Responses != nil {
		add("responses", in.pools.Responses)
	}
	if in.pools.Results != nil {
		add("results", in.pools.Results)
	}
	if in.pools.Packed != nil {
		add("packed", in.pools.Packed)
	}
	return out
}

// Histograms implements adminhttp.Source.
func (in *Instance) Histograms() []adminhttp.HistogramSnapshot {
	if in.histReg == nil {
		return nil
	}
	var out []adminhttp.HistogramSnapshot
	for i := range in.localDatastores {
		id := in.baseDatastoreID + i
		for _, name := range in.histReg.Names(id) {
			h, err := in.histReg.Get(id, name)
			if err != nil {
				continue
			}
			snap := h.Get()
			out = append(out, adminhttp.HistogramSnapshot{
				DatastoreID: id, Name: snap.Name, Buckets: snap.Buckets, Counts: snap.Counts, Size: snap.Size,
			})
		}
	}
	return out
}
