// Package shuffle implements the hash+shuffle dispatch: for one
// queued op, compute its destination datastore id via the
// configured hash, split that id into a destination rank and a
// local datastore index, and hand the op to the packet builder for
// that destination.
package shuffle

import (
	"github.com/hpc-hxhim/hxhim-go/internal/hash"
	"github.com/hpc-hxhim/hxhim-go/internal/herr"
	"github.com/hpc-hxhim/hxhim-go/internal/packet"
	"github.com/hpc-hxhim/hxhim-go/internal/rangeserver"
)

// Destination is the resolved (rank, local datastore index) pair for
// one op, plus the global datastore id the hash produced.
type Destination struct {
	DatastoreID int
	Rank        int
	LocalIndex  int
}

// Shuffle computes subject/predicate's destination. total is the
// global datastore count.
func Shuffle(h hash.Func, subject, predicate []byte, total int, userArgs any, ratio rangeserver.Ratio, datastoresPerServer int) (Destination, error) {
	id, err := h(subject, predicate, total, userArgs)
	if err != nil {
		return Destination{}, err
	}
	if id < 0 || id >= total {
		return Destination{}, herr.New(herr.Argument, "shuffle.Shuffle", errIDOutOfRange)
	}

	rank, err := rangeserver.GetRank(id/datastoresPerServer, ratio)
	if err != nil {
		return Destination{}, err
	}

	return Destination{
		DatastoreID: id,
		Rank:        rank,
		LocalIndex:  id % datastoresPerServer,
	}, nil
}

// Dispatch computes slot's destination and adds it to the matching
// per-destination packet builder, processing the pending list
// head-to-tail so order within one destination is preserved.
func Dispatch(h hash.Func, subject, predicate []byte, total int, userArgs any, ratio rangeserver.Ratio, datastoresPerServer int, b *packet.Builder, slot any) (Destination, error) {
	dest, err := Shuffle(h, subject, predicate, total, userArgs, ratio, datastoresPerServer)
	if err != nil {
		return Destination{}, err
	}
	b.Add(dest.Rank, slot)
	return dest, nil
}
