// Package adminhttp exposes the debug and metrics surface around one
// HXHIM instance: a gorilla/mux router with CORS, compression,
// recovery, and request logging middleware via gorilla/handlers, a
// Prometheus exposition endpoint, and an optional google/gops agent
// for live process inspection. All of it sits strictly outside the
// core PUT/GET pipeline.
package adminhttp

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/google/gops/agent"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hpc-hxhim/hxhim-go/pkg/log"
)

// DatastoreStat is one row of the /debug/datastores listing.
type DatastoreStat struct {
	ID     int    `json:"id"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	Engine string `json:"engine"`
}

// PoolStat is one row of the /debug/pools listing.
type PoolStat struct {
	Name      string `json:"name"`
	InUse     int    `json:"in_use"`
	Regions   int    `json:"regions"`
	AllocSize int    `json:"alloc_size"`
}

// HistogramSnapshot is one row of the /debug/histograms listing.
type HistogramSnapshot struct {
	DatastoreID int       `json:"datastore_id"`
	Name        string    `json:"name"`
	Buckets     []float64 `json:"buckets"`
	Counts      []uint64  `json:"counts"`
	Size        uint64    `json:"size"`
}

// Source supplies adminhttp's read-only snapshots of live instance
// state. The root hxhim package implements this against its own
// Instance; tests can supply a stub.
type Source interface {
	Datastores() []DatastoreStat
	Pools() []PoolStat
	Histograms() []HistogramSnapshot
}

// Server is the admin HTTP surface for one HXHIM instance.
type Server struct {
	src      Source
	router   *mux.Router
	http     *http.Server
	registry *prometheus.Registry

	opsTotal   *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	poolInUse  *prometheus.GaugeVec
}

// New builds the router and registers the Prometheus collectors.
// The gops agent only listens when explicitly requested, since it
// opens an unauthenticated debug socket.
func New(addr string, src Source, gopsEnabled bool) (*Server, error) {
	if gopsEnabled {
		if err := agent.Listen(agent.Options{}); err != nil {
			return nil, err
		}
	}

	s := &Server{
		src:      src,
		registry: prometheus.NewRegistry(),
	}

	s.opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "hxhim",
		Name:      "ops_total",
		Help:      "Total range-server operations handled, by op kind and status.",
	}, []string{"op", "status"})
	s.opDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "hxhim",
		Name:      "op_duration_seconds",
		Help:      "Range-server operation latency, by op kind.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
	s.poolInUse = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "hxhim",
		Name:      "pool_in_use",
		Help:      "Fixed-block pool regions currently checked out, by pool name.",
	}, []string{"pool"})
	s.registry.MustRegister(s.opsTotal, s.opDuration, s.poolInUse)

	router := mux.NewRouter()
	router.Use(handlers.CompressHandler)
	router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))
	router.Use(handlers.CORS(
		handlers.AllowedHeaders([]string{"Content-Type"}),
		handlers.AllowedMethods([]string{"GET"}),
		handlers.AllowedOrigins([]string{"*"}),
	))

	router.HandleFunc("/debug/datastores", s.handleDatastores).Methods(http.MethodGet)
	router.HandleFunc("/debug/pools", s.handlePools).Methods(http.MethodGet)
	router.HandleFunc("/debug/histograms", s.handleHistograms).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	logged := handlers.CustomLoggingHandler(io.Discard, router, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("adminhttp %s %s (%d, %dms)", params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})

	s.router = router
	s.http = &http.Server{
		Addr:         addr,
		Handler:      logged,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s, nil
}

// ObserveOp records one completed range-server operation for the
// /metrics endpoint.
func (s *Server) ObserveOp(op, status string, dur time.Duration) {
	s.opsTotal.WithLabelValues(op, status).Inc()
	s.opDuration.WithLabelValues(op).Observe(dur.Seconds())
}

// SetPoolInUse reports a pool's current checked-out region count.
func (s *Server) SetPoolInUse(pool string, n int) {
	s.poolInUse.WithLabelValues(pool).Set(float64(n))
}

// Serve listens on s.http.Addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = s.http.Shutdown(context.Background())
	}()
	if err := s.http.Serve(listener); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleDatastores(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, s.src.Datastores())
}

func (s *Server) handlePools(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, s.src.Pools())
}

func (s *Server) handleHistograms(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, s.src.Histograms())
}

func writeJSON(rw http.ResponseWriter, v any) {
	rw.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(rw).Encode(v)
}
