// Package histreg wires pkg/histogram into the range-server loop:
// one registry per datastore id, keyed by predicate name, lazily
// creating a histogram.Histogram the first time a name is seen and
// routing HISTOGRAM request dispatch and (when
// HISTOGRAM_TRACK_PREDICATES is set) per-PUT sample recording through
// it.
package histreg

import (
	"sync"

	"github.com/hpc-hxhim/hxhim-go/internal/config"
	"github.com/hpc-hxhim/hxhim-go/internal/herr"
	"github.com/hpc-hxhim/hxhim-go/pkg/blob"
	"github.com/hpc-hxhim/hxhim-go/pkg/histogram"
)

// Generator looks up a stock bucket generator by its
// HISTOGRAM_BUCKET_GEN_METHOD config name, or reports ok=false
// for an unrecognized name so the caller can fall back to a
// user-supplied one.
func Generator(method string) (histogram.Generator, bool) {
	switch method {
	case "FIXED", "FIXED_BUCKET_COUNT":
		return histogram.FixedBucketCount, true
	case "SQUARE_ROOT_CHOICE":
		return histogram.SquareRootChoice, true
	case "STURGES_FORMULA":
		return histogram.SturgesFormula, true
	case "RICE_RULE":
		return histogram.RiceRule, true
	case "SCOTTS_NORMAL_REFERENCE_RULE":
		return histogram.ScottsNormalReferenceRule, true
	case "UNIFORM_LOGN":
		return histogram.UniformLogN, true
	default:
		return nil, false
	}
}

// Registry holds one histogram.Histogram per datastore id per
// predicate name, all bootstrapped from the same Config (FirstN,
// bucket generator, extra args).
type Registry struct {
	mu    sync.Mutex
	cfg   config.Config
	gen   histogram.Generator
	stock map[int]map[string]*histogram.Histogram
}

// New builds a Registry whose histograms are all bootstrapped per
// cfg's HISTOGRAM_FIRST_N / HISTOGRAM_BUCKET_GEN_METHOD options. A
// custom gen overrides the config's method name when non-nil, for
// HISTOGRAM_BUCKET_GEN_METHOD naming a user-supplied generator that
// config alone can't express.
func New(cfg config.Config, custom histogram.Generator) (*Registry, error) {
	gen := custom
	if gen == nil {
		g, ok := Generator(cfg.HistogramBucketGenMethod)
		if !ok {
			return nil, herr.New(herr.Config, "histreg.New", errUnknownGenMethod(cfg.HistogramBucketGenMethod))
		}
		gen = g
	}
	return &Registry{
		cfg:   cfg,
		gen:   gen,
		stock: make(map[int]map[string]*histogram.Histogram),
	}, nil
}

// Get returns the Histogram for (datastoreID, name), creating it with
// the registry's configured FirstN/generator on first use.
func (r *Registry) Get(datastoreID int, name string) (*histogram.Histogram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byName, ok := r.stock[datastoreID]
	if !ok {
		byName = make(map[string]*histogram.Histogram)
		r.stock[datastoreID] = byName
	}
	h, ok := byName[name]
	if ok {
		return h, nil
	}

	h, err := histogram.New(histogram.Config{
		Name:   name,
		FirstN: r.cfg.HistogramFirstN,
		Gen:    r.gen,
	})
	if err != nil {
		return nil, herr.New(herr.Argument, "histreg.Registry.Get", err)
	}
	byName[name] = h
	return h, nil
}

// TrackPut records object as a sample for predicateName's histogram
// on datastoreID, when HISTOGRAM_TRACK_PREDICATES is enabled and
// object decodes as a float64. A non-numeric object is silently
// skipped: tracking is best-effort instrumentation, not a write-path
// requirement.
func (r *Registry) TrackPut(datastoreID int, predicateName string, object []byte, objectType blob.Type) error {
	if !r.cfg.HistogramTrackPredicates {
		return nil
	}
	value, ok := blob.ToFloat64(object, objectType)
	if !ok {
		return nil
	}
	h, err := r.Get(datastoreID, predicateName)
	if err != nil {
		return err
	}
	return h.Add(value)
}

// Names reports every predicate name with a live histogram on
// datastoreID, used by internal/adminhttp's debug view.
func (r *Registry) Names(datastoreID int) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	byName := r.stock[datastoreID]
	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	return names
}
