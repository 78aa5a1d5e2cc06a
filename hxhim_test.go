package hxhim_test

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"testing"

	hxhim "github.com/hpc-hxhim/hxhim-go"
	"github.com/hpc-hxhim/hxhim-go/internal/config"
	"github.com/hpc-hxhim/hxhim-go/internal/transport"
	"github.com/hpc-hxhim/hxhim-go/pkg/blob"
	"github.com/hpc-hxhim/hxhim-go/pkg/elen"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

// openSingleProcess opens a WorldSize=1 Instance where rank 0 is both
// the only client and the only range server, communicating over a
// LoopbackTransport with no network hop.
func openSingleProcess(t *testing.T) *hxhim.Instance {
	t.Helper()
	cfg := config.Default()
	cfg.ClientRatio = 1
	cfg.ServerRatio = 1
	cfg.DatastoresPerRangeServer = 1

	in, err := hxhim.Open(context.Background(), hxhim.Options{
		Comm:      hxhim.Comm{Rank: 0, WorldSize: 1},
		Config:    cfg,
		Transport: transport.NewLoopbackTransport(),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := in.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return in
}

func f64Bytes(v float64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v))
	return b
}

func u64Bytes(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// TestPutGetRoundTrip exercises the single-process round trip: PUT
// (S=u64 42, P=u64 7, O=f64 6.0), Flush, then GET (42,7) expecting the
// object back decoded as 6.0.
func TestPutGetRoundTrip(t *testing.T) {
	in := openSingleProcess(t)
	ctx := context.Background()

	subject := blob.New(u64Bytes(42), blob.TypeUint64)
	predicate := blob.New(u64Bytes(7), blob.TypeUint64)
	object := blob.New(f64Bytes(6.0), blob.TypeDouble)

	if err := in.Put(hxhim.PutItem{Subject: subject, Predicate: predicate, Object: object}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	putRes := in.FlushPuts(ctx)
	defer putRes.Destroy()
	putRecs := putRes.All()
	if len(putRecs) != 1 {
		t.Fatalf("FlushPuts: got %d records, want 1", len(putRecs))
	}
	if putRecs[0].Status != opcode.StatusSuccess {
		t.Fatalf("PUT status = %v, want success (err=%v)", putRecs[0].Status, putRecs[0].Err)
	}
	if string(putRecs[0].Subject.Data) != string(subject.Data) || string(putRecs[0].Predicate.Data) != string(predicate.Data) {
		t.Fatalf("PUT record not rebound to the caller's subject/predicate: %+v", putRecs[0])
	}

	if err := in.Get(hxhim.GetItem{Subject: subject, Predicate: predicate, ObjectType: blob.TypeDouble}); err != nil {
		t.Fatalf("Get: %v", err)
	}

	getRes := in.FlushGets(ctx)
	defer getRes.Destroy()
	getRecs := getRes.All()
	if len(getRecs) != 1 {
		t.Fatalf("FlushGets: got %d records, want 1", len(getRecs))
	}
	rec := getRecs[0]
	if rec.Status != opcode.StatusSuccess {
		t.Fatalf("GET status = %v, want success (err=%v)", rec.Status, rec.Err)
	}
	if len(rec.Triple.Object.Data) != 8 {
		t.Fatalf("GET object len = %d, want 8", len(rec.Triple.Object.Data))
	}
	got := math.Float64frombits(binary.LittleEndian.Uint64(rec.Triple.Object.Data))
	if math.Abs(got-6.0) > 1e-9 {
		t.Fatalf("GET object = %v, want 6.0", got)
	}
	if string(rec.Triple.Subject.Data) != string(subject.Data) || string(rec.Triple.Predicate.Data) != string(predicate.Data) {
		t.Fatalf("GET triple not rebound to the caller's subject/predicate: %+v", rec.Triple)
	}
}

// TestPutPermutations checks that the PS permutation stores the same
// object under the reverse (predicate,subject) key, so a follow-up
// Get with subject and predicate swapped finds it.
func TestPutPermutations(t *testing.T) {
	in := openSingleProcess(t)
	ctx := context.Background()

	subject := blob.New([]byte("alice"), blob.TypeByte)
	predicate := blob.New([]byte("age"), blob.TypeByte)
	object := blob.New(f64Bytes(30.0), blob.TypeDouble)

	if err := in.Put(hxhim.PutItem{
		Subject: subject, Predicate: predicate, Object: object,
		Permutation: opcode.PermSP | opcode.PermPS,
	}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	putRes := in.FlushPuts(ctx)
	defer putRes.Destroy()
	putRecs := putRes.All()
	if len(putRecs) != 2 {
		t.Fatalf("FlushPuts: got %d records, want 2 (one per selected ordering)", len(putRecs))
	}
	for _, rec := range putRecs {
		if rec.Status != opcode.StatusSuccess {
			t.Fatalf("PUT status = %v, want success (err=%v)", rec.Status, rec.Err)
		}
	}

	// The reverse ordering must carry the real object, not a null.
	if err := in.Get(hxhim.GetItem{Subject: predicate, Predicate: subject, ObjectType: blob.TypeDouble}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	getRes := in.FlushGets(ctx)
	defer getRes.Destroy()
	getRecs := getRes.All()
	if len(getRecs) != 1 {
		t.Fatalf("FlushGets: got %d records, want 1", len(getRecs))
	}
	rec := getRecs[0]
	if rec.Status != opcode.StatusSuccess {
		t.Fatalf("GET (P,S) status = %v, want success (err=%v)", rec.Status, rec.Err)
	}
	if len(rec.Triple.Object.Data) != 8 {
		t.Fatalf("GET (P,S) object len = %d, want 8", len(rec.Triple.Object.Data))
	}
	got := math.Float64frombits(binary.LittleEndian.Uint64(rec.Triple.Object.Data))
	if math.Abs(got-30.0) > 1e-9 {
		t.Fatalf("GET (P,S) object = %v, want 30.0", got)
	}
}

// TestDeleteRemovesKey verifies a DELETE'd key no longer GETs.
func TestDeleteRemovesKey(t *testing.T) {
	in := openSingleProcess(t)
	ctx := context.Background()

	subject := blob.New(u64Bytes(1), blob.TypeUint64)
	predicate := blob.New(u64Bytes(2), blob.TypeUint64)
	object := blob.New(f64Bytes(3.5), blob.TypeDouble)

	if err := in.Put(hxhim.PutItem{Subject: subject, Predicate: predicate, Object: object}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	in.FlushPuts(ctx).Destroy()

	if err := in.Delete(hxhim.DeleteItem{Subject: subject, Predicate: predicate}); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	delRes := in.FlushDeletes(ctx)
	defer delRes.Destroy()
	if delRecs := delRes.All(); len(delRecs) != 1 || delRecs[0].Status != opcode.StatusSuccess {
		t.Fatalf("DELETE failed: %+v", delRecs)
	}

	if err := in.Get(hxhim.GetItem{Subject: subject, Predicate: predicate, ObjectType: blob.TypeDouble}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	getRes := in.FlushGets(ctx)
	defer getRes.Destroy()
	getRecs := getRes.All()
	if len(getRecs) != 1 {
		t.Fatalf("FlushGets: got %d records, want 1", len(getRecs))
	}
	if getRecs[0].Status == opcode.StatusSuccess {
		t.Fatalf("GET after DELETE succeeded, want not-found")
	}
}

// TestSyncReturnsOnePerLocalDatastore checks Sync fans out to every
// range server and returns one record per local datastore it owns.
func TestSyncReturnsOnePerLocalDatastore(t *testing.T) {
	in := openSingleProcess(t)
	res := in.Sync(context.Background())
	defer res.Destroy()
	recs := res.All()
	if len(recs) != 1 {
		t.Fatalf("Sync: got %d records, want 1 (one local datastore)", len(recs))
	}
	if recs[0].Status != opcode.StatusSuccess {
		t.Fatalf("SYNC status = %v, want success", recs[0].Status)
	}
}

// TestGetOpStreams puts 10 triples under one subject with
// elen-encoded float predicates and scans them both directions:
// NEXT from predicate 0 yields ascending predicate order, PREV from
// predicate 9 yields descending.
func TestGetOpStreams(t *testing.T) {
	in := openSingleProcess(t)
	ctx := context.Background()

	subject := blob.New([]byte("0"), blob.TypeByte)
	items := make([]hxhim.PutItem, 10)
	for i := range items {
		items[i] = hxhim.PutItem{
			Subject:   subject,
			Predicate: blob.New([]byte(elen.EncodeFloat(float64(i), elen.DefaultPrecision)), blob.TypeByte),
			Object:    blob.New([]byte(fmt.Sprintf("-%d", i)), blob.TypeByte),
		}
	}
	if err := in.BPut(items); err != nil {
		t.Fatalf("BPut: %v", err)
	}
	in.FlushPuts(ctx).Destroy()

	scan := func(fromPred float64, kind opcode.GetOpKind) []string {
		t.Helper()
		if err := in.GetOp(hxhim.GetOpItem{
			Subject:   subject,
			Predicate: blob.New([]byte(elen.EncodeFloat(fromPred, elen.DefaultPrecision)), blob.TypeByte),
			NumRecs:   10,
			Kind:      kind,
		}); err != nil {
			t.Fatalf("GetOp: %v", err)
		}
		res := in.FlushGetOps(ctx)
		defer res.Destroy()
		recs := res.All()
		if len(recs) != 1 {
			t.Fatalf("FlushGetOps: got %d records, want 1", len(recs))
		}
		if recs[0].Status != opcode.StatusSuccess {
			t.Fatalf("GETOP status = %v, want success (err=%v)", recs[0].Status, recs[0].Err)
		}
		objects := make([]string, len(recs[0].GetOpRecords))
		for i, tr := range recs[0].GetOpRecords {
			objects[i] = string(tr.Object.Data)
		}
		return objects
	}

	forward := scan(0.0, opcode.GetOpNEXT)
	if len(forward) != 10 {
		t.Fatalf("NEXT: got %d records, want 10", len(forward))
	}
	for i, obj := range forward {
		if want := fmt.Sprintf("-%d", i); obj != want {
			t.Fatalf("NEXT record %d = %q, want %q", i, obj, want)
		}
	}

	backward := scan(9.0, opcode.GetOpPREV)
	if len(backward) != 10 {
		t.Fatalf("PREV: got %d records, want 10", len(backward))
	}
	for i, obj := range backward {
		if want := fmt.Sprintf("-%d", 9-i); obj != want {
			t.Fatalf("PREV record %d = %q, want %q", i, obj, want)
		}
	}
}

// TestChangeDatastoreName checks the rename cycle: a key stored
// before the rename is retrievable, the rename closes and reopens the
// backing store under the new base name, and the same key then misses
// because the reopened store is empty.
func TestChangeDatastoreName(t *testing.T) {
	in := openSingleProcess(t)
	ctx := context.Background()

	subject := blob.New(u64Bytes(9), blob.TypeUint64)
	predicate := blob.New(u64Bytes(10), blob.TypeUint64)
	object := blob.New(f64Bytes(11.0), blob.TypeDouble)

	if err := in.Put(hxhim.PutItem{Subject: subject, Predicate: predicate, Object: object}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	in.FlushPuts(ctx).Destroy()

	if err := in.Get(hxhim.GetItem{Subject: subject, Predicate: predicate, ObjectType: blob.TypeDouble}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	pre := in.FlushGets(ctx)
	defer pre.Destroy()
	if recs := pre.All(); len(recs) != 1 || recs[0].Status != opcode.StatusSuccess {
		t.Fatalf("GET before rename failed: %+v", recs)
	}

	renamed, err := in.ChangeDatastoreName(ctx, "renamed")
	if err != nil {
		t.Fatalf("ChangeDatastoreName: %v", err)
	}
	defer renamed.Destroy()
	syncRecs := renamed.All()
	if len(syncRecs) != 1 {
		t.Fatalf("ChangeDatastoreName: got %d SYNC records, want 1", len(syncRecs))
	}
	if syncRecs[0].Op != opcode.SYNC || syncRecs[0].Status != opcode.StatusSuccess {
		t.Fatalf("ChangeDatastoreName SYNC record = %+v", syncRecs[0])
	}

	if err := in.Get(hxhim.GetItem{Subject: subject, Predicate: predicate, ObjectType: blob.TypeDouble}); err != nil {
		t.Fatalf("Get: %v", err)
	}
	post := in.FlushGets(ctx)
	defer post.Destroy()
	recs := post.All()
	if len(recs) != 1 {
		t.Fatalf("FlushGets after rename: got %d records, want 1", len(recs))
	}
	if recs[0].Status == opcode.StatusSuccess {
		t.Fatalf("GET after rename succeeded, want miss against the empty reopened store")
	}
}

// TestGetEpochAdvancesPerFlush checks GetEpoch increments once for a
// single per-kind flush (FlushGets).
func TestGetEpochAdvancesPerFlush(t *testing.T) {
	in := openSingleProcess(t)
	ctx := context.Background()
	before := in.GetEpoch()
	in.FlushGets(ctx).Destroy()
	if got := in.GetEpoch(); got != before+1 {
		t.Fatalf("GetEpoch after FlushGets = %d, want %d", got, before+1)
	}
}
