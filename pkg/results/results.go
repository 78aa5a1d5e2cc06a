// Package results implements the forward-iterable Results
// container: the value returned by Flush/FlushPuts/FlushGets/Sync/
// Histogram, holding one tagged record per operation slot that was
// sent.
package results

import (
	"sync"
	"time"

	"github.com/hpc-hxhim/hxhim-go/pkg/blob"
	"github.com/hpc-hxhim/hxhim-go/pkg/histogram"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

// Triple is one (subject, predicate, object) record, used both for a
// single GET result and for each record a GETOP streams back.
type Triple struct {
	Subject   *blob.Blob
	Predicate *blob.Blob
	Object    *blob.Blob
}

// Record is one result slot: the op kind tags which fields are
// meaningful.
type Record struct {
	Op          opcode.Op
	DatastoreID int
	Status      opcode.Status
	Err         error
	Duration    time.Duration

	// PUT/DELETE: the caller's subject/predicate, rebound from the
	// request slot the response answers.
	Subject   *blob.Blob
	Predicate *blob.Blob

	// GET: single triple.
	Triple Triple

	// GETOP: ordered batch of triples.
	GetOpRecords []Triple

	// HISTOGRAM.
	Histogram histogram.Snapshot
}

// Results is a forward-iterable sequence of Records. It owns its
// payload memory; Destroy releases it.
type Results struct {
	mu    sync.Mutex
	items []*Record
	pos   int
}

// New returns an empty Results.
func New() *Results {
	return &Results{pos: -1}
}

// Add appends a Record, taking ownership of it.
func (r *Results) Add(rec *Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, rec)
}

// Append moves all records from other into r, in order, leaving other
// empty. Used by Flush to merge per-destination response batches.
func (r *Results) Append(other *Results) {
	if other == nil {
		return
	}
	other.mu.Lock()
	items := other.items
	other.items = nil
	other.mu.Unlock()

	r.mu.Lock()
	r.items = append(r.items, items...)
	r.mu.Unlock()
}

// Len returns the number of records.
func (r *Results) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Rewind resets iteration to just before the first record.
func (r *Results) Rewind() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pos = -1
}

// Next advances the iterator; it returns false once exhausted.
func (r *Results) Next() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos+1 >= len(r.items) {
		return false
	}
	r.pos++
	return true
}

// Valid reports whether Curr is safe to call.
func (r *Results) Valid() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pos >= 0 && r.pos < len(r.items)
}

// Curr returns the record the iterator currently points at.
func (r *Results) Curr() *Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pos < 0 || r.pos >= len(r.items) {
		return nil
	}
	return r.items[r.pos]
}

// All returns a snapshot slice of every record, leaving the iterator
// untouched. Convenient for tests and for callers that don't want
// manual Next()/Curr() bookkeeping.
func (r *Results) All() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, len(r.items))
	copy(out, r.items)
	return out
}

// Destroy releases all records. A Results must not be used again
// after Destroy.
func (r *Results) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = nil
	r.pos = -1
}
