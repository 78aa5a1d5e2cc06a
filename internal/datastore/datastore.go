// Package datastore implements the local key-value engine behind one
// range server's datastore id: PUT/GET/GETOP(NEXT/PREV/FIRST/LAST)/
// DELETE/SYNC over the ordered (subject,predicate) key encoding from
// pkg/triplestore. DATASTORE selects the engine: in-memory (an
// unbounded map with a golang-lru/v2 cache in front of GETs) or a
// bbolt-backed engine used for both
// the `leveldb` and `rocksdb` selector values, since bbolt's Cursor
// gives the ordered iteration GETOP's NEXT/PREV/FIRST/LAST need
// without a cgo dependency.
package datastore

import (
	"context"

	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

// Record is one stored (subject,predicate)->object triple.
type Record struct {
	Subject, Predicate, Object []byte
	ObjectType                 uint8
}

// Datastore is one local key-value engine instance. Implementations
// must be safe for the single-goroutine, per-rank event loop; no
// concurrent-caller guarantee is made or needed since the server loop
// is single-threaded per rank.
type Datastore interface {
	// Put stores subject/predicate -> object, overwriting any existing
	// value.
	Put(ctx context.Context, subject, predicate, object []byte, objectType uint8) error
	// Get retrieves the object stored under subject/predicate. found is
	// false if no such key exists.
	Get(ctx context.Context, subject, predicate []byte) (object []byte, objectType uint8, found bool, err error)
	// GetOp performs a directional scan: EQ returns at most one
	// record; NEXT/PREV walk forward/backward
	// from (subject,predicate); FIRST/LAST return the extremes of the
	// whole keyspace. numRecs bounds how many records are returned.
	GetOp(ctx context.Context, subject, predicate []byte, kind opcode.GetOpKind, numRecs int) ([]Record, error)
	// Delete removes the key, if present. Deleting a missing key is not
	// an error (the response status reflects the result separately).
	Delete(ctx context.Context, subject, predicate []byte) error
	// Sync flushes to durable storage and returns once complete.
	Sync(ctx context.Context) error
	// Close releases engine resources.
	Close() error
}

// Opener constructs a Datastore for one (name, id) pair, given the
// DATASTORE selector string from config.
type Opener func(name string, id int) (Datastore, error)

// Open dispatches to the engine named by selector.
func Open(selector, name string, id int) (Datastore, error) {
	switch selector {
	case "in_memory":
		return NewMemory(), nil
	case "leveldb", "rocksdb":
		return OpenBolt(name, id)
	default:
		return nil, errUnknownSelector(selector)
	}
}
