// Package rangeserver implements the range-server rank arithmetic:
// deriving which ranks are range servers, and converting between a
// rank and a range-server id, given the client/server ratio that
// partitions the MPI world into blocks.
package rangeserver

import "github.com/hpc-hxhim/hxhim-go/internal/herr"

// Ratio is the (client_ratio, server_ratio) pair that partitions
// ranks into fixed-size blocks: within each block of
// max(C,S) ranks, the first S ranks are servers when C>=S, or every
// rank is a server when S>=C.
type Ratio struct {
	Client int
	Server int
}

func (r Ratio) blockSize() int {
	if r.Client > r.Server {
		return r.Client
	}
	return r.Server
}

// IsRangeServer reports whether rank is a range server under ratio.
func IsRangeServer(rank int, r Ratio) bool {
	if r.Client >= r.Server {
		return rank%r.Client < r.Server
	}
	return true
}

// GetRank maps a range-server id to the world rank that owns it.
func GetRank(id int, r Ratio) (int, error) {
	if id < 0 {
		return 0, herr.New(herr.Argument, "GetRank", errNegativeID)
	}
	if r.Client > r.Server {
		return (id/r.Server)*r.Client + (id % r.Server), nil
	}
	return id, nil
}

// GetID maps a world rank back to its range-server id. It returns an
// Argument error if rank is not a range server under r.
func GetID(rank int, r Ratio) (int, error) {
	if rank < 0 {
		return 0, herr.New(herr.Argument, "GetID", errNegativeRank)
	}
	if r.Client >= r.Server {
		if rank%r.Client < r.Server {
			return (rank/r.Client)*r.Server + (rank % r.Client), nil
		}
		return 0, herr.New(herr.Argument, "GetID", errNotRangeServer)
	}
	return rank, nil
}

// WorldSize-aware variants additionally reject ids/ranks outside the
// process's declared world.

// GetRankInWorld is GetRank with an upper bound on the resulting rank.
func GetRankInWorld(id int, r Ratio, worldSize int) (int, error) {
	rank, err := GetRank(id, r)
	if err != nil {
		return 0, err
	}
	if rank < 0 || rank >= worldSize {
		return 0, herr.New(herr.Argument, "GetRankInWorld", errOutOfWorld)
	}
	return rank, nil
}

// GetIDInWorld is GetID with an upper bound on the datastore count the
// caller expects to exist.
func GetIDInWorld(rank int, r Ratio, datastoreCount int) (int, error) {
	id, err := GetID(rank, r)
	if err != nil {
		return 0, err
	}
	if id < 0 || id >= datastoreCount {
		return 0, herr.New(herr.Argument, "GetIDInWorld", errOutOfWorld)
	}
	return id, nil
}
