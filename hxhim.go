package hxhim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hpc-hxhim/hxhim-go/internal/adminhttp"
	"github.com/hpc-hxhim/hxhim-go/internal/asyncput"
	"github.com/hpc-hxhim/hxhim-go/internal/cache"
	"github.com/hpc-hxhim/hxhim-go/internal/config"
	"github.com/hpc-hxhim/hxhim-go/internal/datastore"
	"github.com/hpc-hxhim/hxhim-go/internal/hash"
	"github.com/hpc-hxhim/hxhim-go/internal/herr"
	"github.com/hpc-hxhim/hxhim-go/internal/histreg"
	"github.com/hpc-hxhim/hxhim-go/internal/pool"
	"github.com/hpc-hxhim/hxhim-go/internal/rangeserver"
	"github.com/hpc-hxhim/hxhim-go/internal/rangeserverloop"
	"github.com/hpc-hxhim/hxhim-go/internal/registry"
	"github.com/hpc-hxhim/hxhim-go/internal/transport"
	"github.com/hpc-hxhim/hxhim-go/pkg/log"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

// Instance is one rank's live view of the triplestore: its own cache
// queues, shuffle parameters, transport, and, if this rank is a
// range server, its local datastores and event loop.
type Instance struct {
	comm Comm
	cfg  config.Config

	ratio     rangeserver.Ratio
	total     int
	perServer int

	hashFn   hash.Func
	hashArgs any

	cache *cache.Cache
	pools *pool.Set

	transport   transport.Transport
	serverRanks []int

	isServer        bool
	baseDatastoreID int
	opener          datastore.Opener
	localDatastores []datastore.Datastore
	histReg         *histreg.Registry
	registry        *registry.Registry

	namesMu   sync.Mutex
	localName map[int]string

	asyncWorker *asyncput.Worker
	admin       *adminhttp.Server

	epoch    int64
	serveCtx context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// Open bootstraps an Instance for one rank: resolves the hash and
// topology, opens this rank's local datastores if it is a range
// server, connects the configured transport, and starts the
// background services (async-PUT worker, admin HTTP surface) before
// returning to the caller.
func Open(ctx context.Context, opts Options) (*Instance, error) {
	cfg := opts.Config
	ratio := rangeserver.Ratio{Client: cfg.ClientRatio, Server: cfg.ServerRatio}

	numServers := 0
	var serverRanks []int
	for r := 0; r < opts.Comm.WorldSize; r++ {
		if rangeserver.IsRangeServer(r, ratio) {
			numServers++
			serverRanks = append(serverRanks, r)
		}
	}
	total := cfg.DatastoresPerRangeServer * numServers

	hashFn, hashArgs, err := resolveHash(cfg, ratio, opts.Comm.Rank)
	if err != nil {
		return nil, err
	}

	in := &Instance{
		comm:        opts.Comm,
		cfg:         cfg,
		ratio:       ratio,
		total:       total,
		perServer:   cfg.DatastoresPerRangeServer,
		hashFn:      hashFn,
		hashArgs:    hashArgs,
		cache:       cache.New(),
		serverRanks: serverRanks,
		localName:   make(map[int]string),
	}

	if cfg.Pools != nil {
		pools, err := pool.NewSet(cfg.Pools)
		if err != nil {
			return nil, herr.New(herr.Config, "hxhim.Open", err)
		}
		in.pools = pools
	}

	in.isServer = rangeserver.IsRangeServer(opts.Comm.Rank, ratio)
	if in.isServer {
		if err := in.openLocalDatastores(ctx, opts); err != nil {
			return nil, err
		}
	}

	tp, err := resolveTransport(cfg, opts)
	if err != nil {
		return nil, err
	}
	in.transport = tp

	serveCtx, cancel := context.WithCancel(context.Background())
	in.serveCtx = serveCtx
	in.cancel = cancel

	if in.isServer {
		server := &rangeserverloop.Server{
			Rank:       opts.Comm.Rank,
			Datastores: in.localDatastores,
			Hash:       hashFn,
			Total:      total,
			PerServer:  in.perServer,
			HistReg:    in.histReg,
			MaxOps:     uint32(cfg.MaximumOpsPerSend),
		}
		if reg, ok := in.transport.(transport.Registerer); ok {
			reg.Register(opts.Comm.Rank, server.Handle)
		}
		in.wg.Add(1)
		go func() {
			defer in.wg.Done()
			if err := in.transport.Serve(serveCtx, opts.Comm.Rank, server.Handle); err != nil && serveCtx.Err() == nil {
				log.Errf("hxhim: transport.Serve exited: %v", err)
			}
		}()
	}

	if cfg.StartAsyncPutsAt > 0 {
		idle := opts.AsyncFlushInterval
		if idle <= 0 {
			idle = 5 * time.Second
		}
		worker, err := asyncput.New(asyncput.Config{
			Rank:                opts.Comm.Rank,
			Hash:                hashFn,
			HashArgs:            hashArgs,
			Ratio:               ratio,
			TotalDatastores:     total,
			DatastoresPerServer: in.perServer,
			MaxOpsPerSend:       cfg.MaximumOpsPerSend,
			Watermark:           cfg.StartAsyncPutsAt,
			FlushIdleAfter:      idle,
			Send:                in.transport.Send,
		}, &in.cache.Puts)
		if err != nil {
			return nil, err
		}
		if err := worker.Start(serveCtx); err != nil {
			return nil, err
		}
		in.asyncWorker = worker
	}

	if opts.AdminAddr != "" {
		admin, err := adminhttp.New(opts.AdminAddr, in, opts.GopsEnabled)
		if err != nil {
			return nil, herr.New(herr.Config, "hxhim.Open", err)
		}
		in.admin = admin
		in.wg.Add(1)
		go func() {
			defer in.wg.Done()
			if err := admin.Serve(serveCtx); err != nil {
				log.Errf("hxhim: adminhttp.Serve exited: %v", err)
			}
		}()
	}

	return in, nil
}

func (in *Instance) openLocalDatastores(ctx context.Context, opts Options) error {
	serverID, err := rangeserver.GetID(opts.Comm.Rank, in.ratio)
	if err != nil {
		return herr.New(herr.Config, "hxhim.Open", err)
	}
	in.baseDatastoreID = serverID * in.perServer

	opener := opts.DatastoreOpener
	if opener == nil {
		opener = func(name string, id int) (datastore.Datastore, error) {
			return datastore.Open(in.cfg.Datastore, name, id)
		}
	}
	in.opener = opener

	in.localDatastores = make([]datastore.Datastore, in.perServer)
	for i := 0; i < in.perServer; i++ {
		id := in.baseDatastoreID + i
		name := in.cfg.PersistPrefix
		path := fmt.Sprintf("%s-%d.%s", in.cfg.PersistPrefix, id, in.cfg.PersistPostfix)
		ds, err := opener(path, id)
		if err != nil {
			return herr.New(herr.Datastore, "hxhim.Open", err)
		}
		in.localDatastores[i] = ds
		in.localName[id] = name
	}

	histReg, err := histreg.New(in.cfg, opts.HistogramGenerator)
	if err != nil {
		return err
	}
	in.histReg = histReg

	if opts.RegistryPath != "" {
		reg, err := registry.Open(opts.RegistryPath)
		if err != nil {
			return herr.New(herr.Config, "hxhim.Open", err)
		}
		in.registry = reg
		for i := 0; i < in.perServer; i++ {
			id := in.baseDatastoreID + i
			path := fmt.Sprintf("%s-%d.%s", in.cfg.PersistPrefix, id, in.cfg.PersistPostfix)
			if err := reg.RecordOpen(ctx, id, in.cfg.PersistPrefix, path); err != nil {
				return herr.New(herr.Datastore, "hxhim.Open", err)
			}
		}
	}

	return nil
}

// resolveHash picks the configured hash function, filling in the
// userArgs a MY_RANK hash needs from this rank's own topology
// position.
func resolveHash(cfg config.Config, ratio rangeserver.Ratio, rank int) (hash.Func, any, error) {
	if cfg.HashExpr != "" {
		fn, err := hash.Expr(cfg.HashExpr)
		return fn, nil, err
	}
	fn, ok := hash.ByName(cfg.Hash)
	if !ok {
		return nil, nil, herr.New(herr.Config, "hxhim.resolveHash", fmt.Errorf("%w: %q", errUnknownHash, cfg.Hash))
	}
	if cfg.Hash == "MY_RANK" {
		if !rangeserver.IsRangeServer(rank, ratio) {
			return nil, nil, herr.New(herr.Config, "hxhim.resolveHash", errMyRankNotServer)
		}
		serverID, err := rangeserver.GetID(rank, ratio)
		if err != nil {
			return nil, nil, herr.New(herr.Config, "hxhim.resolveHash", err)
		}
		return fn, serverID * cfg.DatastoresPerRangeServer, nil
	}
	return fn, nil, nil
}

func resolveTransport(cfg config.Config, opts Options) (transport.Transport, error) {
	if opts.Transport != nil {
		return opts.Transport, nil
	}
	switch cfg.Transport {
	case "mpi":
		return transport.NewNATSTransport(opts.TransportURL)
	case "thallium":
		return transport.NewGRPCTransport(opts.Peers), nil
	default:
		return nil, herr.New(herr.Config, "hxhim.resolveTransport", fmt.Errorf("%w: %q", errUnknownTransport, cfg.Transport))
	}
}

// Close stops every background service this Instance started and
// releases the transport and local datastores.
func (in *Instance) Close() error {
	in.cancel()
	if in.asyncWorker != nil {
		in.asyncWorker.Stop()
	}
	in.wg.Wait()

	var firstErr error
	if in.transport != nil {
		if err := in.transport.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, ds := range in.localDatastores {
		if err := ds.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if in.registry != nil {
		if err := in.registry.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// GetMPI returns the Comm this Instance was opened with.
func (in *Instance) GetMPI() Comm { return in.comm }

// GetRangeServerCount reports how many ranks in the world are range
// servers under the configured client/server ratio.
func (in *Instance) GetRangeServerCount() int { return len(in.serverRanks) }

// GetDatastoreCount reports the total datastore count across the
// whole world (range servers × datastores-per-range-server).
func (in *Instance) GetDatastoreCount() int { return in.total }

// GetHash returns the configured hash function.
func (in *Instance) GetHash() hash.Func { return in.hashFn }

// GetEpoch returns a monotonic counter callers can use to detect
// whether new results are available. Each FlushPuts, FlushGets,
// FlushGetOps, FlushDeletes, FlushHistograms and Sync call advances it
// by one, so a Flush (which runs all five per-kind flushes) advances
// it by five.
func (in *Instance) GetEpoch() int64 { return in.epoch }

// HaveHistogram probes whether datastoreID has a histogram named name,
// without enqueuing or requiring a later Flush call.
func (in *Instance) HaveHistogram(ctx context.Context, datastoreID int, name string) bool {
	rec, err := in.sendHistogram(ctx, datastoreID, name)
	if err != nil {
		return false
	}
	return rec.Status == opcode.StatusSuccess
}
