// Package hxhim implements the client/range-server Instance: one
// process's view of the triplestore, wiring the hash+shuffle
// dispatch, the per-op-kind pending caches, the packet builder, a
// transport backend, and (when this rank is a range server) the
// local datastore stack and event loop behind the small
// Put/Get/GetOp/Delete/Histogram/Flush/Sync API.
package hxhim

import (
	"time"

	"github.com/hpc-hxhim/hxhim-go/internal/config"
	"github.com/hpc-hxhim/hxhim-go/internal/datastore"
	"github.com/hpc-hxhim/hxhim-go/internal/transport"
	"github.com/hpc-hxhim/hxhim-go/pkg/histogram"
)

// Comm stands in for MPI_Comm: the process's rank and the declared
// size of the world it participates in. A Go process has no MPI
// binding of its own; the caller resolves rank/world-size however its
// deployment bootstraps (MPI via cgo, a job scheduler's environment
// variables, or a single Loopback process standing in for the whole
// world in tests) and hands the result in as a plain value.
type Comm struct {
	Rank      int
	WorldSize int
}

// Options configures one Instance. Config carries every recognized
// option; the remaining fields are deployment wiring
// Config has no opinion about: rank-to-address discovery, the
// transport instance itself, and test/override hooks.
type Options struct {
	Comm   Comm
	Config config.Config

	// Peers maps every range-server-eligible rank to its transport
	// address. GRPCTransport dials these directly; NATSTransport
	// ignores Peers in favor of TransportURL, since NATS addressing is
	// subject-based rather than connection-based. Populating this map
	// is the deployment-time equivalent of MPI's one-shot allgather
	// at startup; the allgather itself is an MPI-world concern
	// outside what a library transport owns.
	Peers map[int]string

	// TransportURL is the NATS server URL, used when Config.Transport
	// is "mpi" (backend P).
	TransportURL string

	// Transport overrides the backend selected from Config.Transport.
	// Tests and single-process deployments pass
	// transport.NewLoopbackTransport() here instead of standing up a
	// real NATS or gRPC endpoint.
	Transport transport.Transport

	// DatastoreOpener overrides datastore.Open, letting tests force an
	// in-memory engine regardless of Config.Datastore.
	DatastoreOpener datastore.Opener

	// HistogramGenerator overrides the HISTOGRAM_BUCKET_GEN_METHOD
	// config name with a user-supplied bucket generator.
	HistogramGenerator histogram.Generator

	// AdminAddr, if non-empty, starts the internal/adminhttp debug and
	// metrics surface listening on this address.
	AdminAddr string

	// GopsEnabled mirrors adminhttp.New's gopsEnabled flag: the
	// process-inspection agent only listens when explicitly requested.
	GopsEnabled bool

	// RegistryPath, if non-empty, opens an internal/registry SQLite
	// audit trail recording every local datastore's open/rename
	// history at this path.
	RegistryPath string

	// AsyncFlushInterval bounds how long a nonempty-but-under-watermark
	// PUT backlog waits before a forced background flush, when
	// Config.StartAsyncPutsAt enables the async worker.
	// Zero defaults to 5 seconds.
	AsyncFlushInterval time.Duration
}
