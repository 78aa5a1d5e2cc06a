// Package pool implements fixed-size-block memory pools: one pool
// per configured region (keys, buffers, ops_cache, arrays, requests,
// responses, results, packed), each holding a bounded number of same-size byte
// regions. Acquire blocks on a condition variable when no region is
// free.
package pool

import (
	"sync"

	"github.com/hpc-hxhim/hxhim-go/internal/config"
	"github.com/hpc-hxhim/hxhim-go/internal/herr"
)

// Pool hands out fixed-size []byte regions from a bounded set,
// blocking Acquire callers until a region is Released when the set is
// exhausted.
type Pool struct {
	mu        sync.Mutex
	cond      *sync.Cond
	allocSize int
	free      [][]byte
	inUse     int
	regions   int
}

// New builds a Pool sized per cfg: cfg.Regions fixed-size
// cfg.AllocSize-byte buffers, all initially free.
func New(cfg config.PoolConfig) (*Pool, error) {
	if cfg.AllocSize <= 0 || cfg.Regions <= 0 {
		return nil, herr.New(herr.Config, "pool.New", errNonPositiveSize)
	}
	p := &Pool{
		allocSize: cfg.AllocSize,
		regions:   cfg.Regions,
		free:      make([][]byte, 0, cfg.Regions),
	}
	for i := 0; i < cfg.Regions; i++ {
		p.free = append(p.free, make([]byte, cfg.AllocSize))
	}
	p.cond = sync.NewCond(&p.mu)
	return p, nil
}

// Acquire returns one region, blocking until one is available if the
// pool is currently fully checked out.
func (p *Pool) Acquire() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.free) == 0 {
		p.cond.Wait()
	}
	n := len(p.free) - 1
	buf := p.free[n]
	p.free = p.free[:n]
	p.inUse++
	return buf[:0]
}

// Release returns buf to the pool and wakes one blocked Acquire, if
// any. buf's capacity must have come from this Pool (it is not
// validated; callers are the packetizer/transport layers that always
// round-trip what they Acquired).
func (p *Pool) Release(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, buf[:cap(buf)])
	p.inUse--
	p.cond.Signal()
}

// InUse reports how many regions are currently checked out, used by
// internal/adminhttp's pool-occupancy debug view.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inUse
}

// Regions reports the pool's fixed region count.
func (p *Pool) Regions() int {
	return p.regions
}

// AllocSize reports each region's fixed byte size.
func (p *Pool) AllocSize() int {
	return p.allocSize
}

// Set groups the named pools the configuration sizes: KEYS, BUFFERS,
// OPS_CACHE, ARRAYS, REQUESTS, RESPONSES, RESULTS, PACKED.
type Set struct {
	Keys      *Pool
	Buffers   *Pool
	OpsCache  *Pool
	Arrays    *Pool
	Requests  *Pool
	Responses *Pool
	Results   *Pool
	Packed    *Pool
}

// NewSet builds every named pool present in cfg.Pools, skipping any
// name the config omits; pool sizes are advisory, and unconfigured
// concerns fall back to the general allocator.
func NewSet(cfg map[string]config.PoolConfig) (*Set, error) {
	s := &Set{}
	assign := func(name string, dst **Pool) error {
		pc, ok := cfg[name]
		if !ok {
			return nil
		}
		p, err := New(pc)
		if err != nil {
			return err
		}
		*dst = p
		return nil
	}
	for name, dst := range map[string]**Pool{
		"keys":      &s.Keys,
		"buffers":   &s.Buffers,
		"ops_cache": &s.OpsCache,
		"arrays":    &s.Arrays,
		"requests":  &s.Requests,
		"responses": &s.Responses,
		"results":   &s.Results,
		"packed":    &s.Packed,
	} {
		if err := assign(name, dst); err != nil {
			return nil, err
		}
	}
	return s, nil
}
