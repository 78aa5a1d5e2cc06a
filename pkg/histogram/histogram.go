// Package histogram implements the per-(datastore, predicate-name)
// numeric histogram facility: a histogram accumulates raw
// samples until it has seen FirstN of them, then runs a bucket
// generator once and replays the accumulated samples into the
// resulting buckets. Every sample after that increments a bucket
// counter directly.
package histogram

import (
	"fmt"
	"sort"
	"sync"
)

// Generator produces ascending bucket lower-bounds from a set of
// samples. Stock generators are in generators.go; HISTOGRAM_BUCKET_GEN_METHOD
// may also name a user-supplied one.
type Generator func(samples []float64, extra any) ([]float64, error)

// Config configures one Histogram instance.
type Config struct {
	// Name identifies the predicate this histogram tracks.
	Name string
	// FirstN is the number of raw samples collected before buckets
	// are generated. 0 means "generate immediately from an empty
	// sample set" (used by fixed single-bucket configurations).
	FirstN int
	Gen    Generator
	Extra  any
}

// Histogram accumulates samples into Config.Gen-produced buckets.
type Histogram struct {
	mu      sync.Mutex
	cfg     Config
	samples []float64
	buckets []float64
	counts  []uint64
	size    uint64
}

// New creates a Histogram. An error is returned if cfg.Gen is nil.
func New(cfg Config) (*Histogram, error) {
	if cfg.Gen == nil {
		return nil, fmt.Errorf("histogram: bad bucket generator for %q", cfg.Name)
	}
	h := &Histogram{cfg: cfg}
	if cfg.FirstN == 0 {
		if err := h.generate(); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Add records a new sample.
func (h *Histogram) Add(value float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.buckets) == 0 && len(h.samples) < h.cfg.FirstN {
		h.samples = append(h.samples, value)
		h.size++
		if len(h.samples) == h.cfg.FirstN {
			return h.generateLocked()
		}
		return nil
	}

	h.size++
	return h.insert(value)
}

func (h *Histogram) generate() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.generateLocked()
}

func (h *Histogram) generateLocked() error {
	buckets, err := h.cfg.Gen(h.samples, h.cfg.Extra)
	if err != nil {
		return fmt.Errorf("histogram %q: generate buckets: %w", h.cfg.Name, err)
	}
	sort.Float64s(buckets)
	h.buckets = buckets
	h.counts = make([]uint64, len(buckets))
	for _, s := range h.samples {
		if err := h.insert(s); err != nil {
			return err
		}
	}
	return nil
}

// insert locates value's bucket via upper_bound-minus-one and
// increments it. Caller must hold h.mu.
func (h *Histogram) insert(value float64) error {
	if len(h.buckets) == 0 {
		return fmt.Errorf("histogram %q: no buckets to insert into", h.cfg.Name)
	}
	idx := sort.Search(len(h.buckets), func(i int) bool { return h.buckets[i] > value })
	if idx > 0 {
		idx--
	}
	h.counts[idx]++
	return nil
}

// Snapshot is a pointer-stable view of a Histogram's current state.
type Snapshot struct {
	Name    string
	Buckets []float64
	Counts  []uint64
	Size    uint64
}

// Get returns a snapshot of the histogram's current buckets/counts.
func (h *Histogram) Get() Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Snapshot{
		Name:    h.cfg.Name,
		Buckets: append([]float64(nil), h.buckets...),
		Counts:  append([]uint64(nil), h.counts...),
		Size:    h.size,
	}
}
