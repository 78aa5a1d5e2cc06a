// hxhimd runs one HXHIM rank as a long-lived daemon: a range server,
// a client, or both, depending on where the rank falls under the
// configured client/server ratio. Rank and world size come from flags,
// since a Go process carries no MPI binding of its own.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/google/gops/agent"
	"github.com/spf13/cobra"

	hxhim "github.com/hpc-hxhim/hxhim-go"
	"github.com/hpc-hxhim/hxhim-go/internal/config"
	"github.com/hpc-hxhim/hxhim-go/pkg/log"
)

var (
	flagConfig   string
	flagRank     int
	flagWorld    int
	flagNATSURL  string
	flagPeers    []string
	flagAdmin    string
	flagGops     bool
	flagRegistry string
	flagLogLevel string
	flagLogDate  bool
)

func main() {
	root := &cobra.Command{
		Use:          "hxhimd",
		Short:        "Run one HXHIM rank (client, range server, or both)",
		RunE:         run,
		SilenceUsage: true,
	}
	root.Flags().StringVar(&flagConfig, "config", "", "path to an hxhim config.json; built-in defaults apply when empty")
	root.Flags().IntVar(&flagRank, "rank", 0, "this process's rank in the world")
	root.Flags().IntVar(&flagWorld, "world-size", 1, "total number of ranks in the world")
	root.Flags().StringVar(&flagNATSURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL, used when transport is 'mpi'")
	root.Flags().StringSliceVar(&flagPeers, "peer", nil, "rank=host:port address of a range-server rank, used when transport is 'thallium' (repeatable)")
	root.Flags().StringVar(&flagAdmin, "admin", "", "listen address for the debug/metrics HTTP surface (disabled when empty)")
	root.Flags().BoolVar(&flagGops, "gops", false, "listen via github.com/google/gops/agent (for debugging)")
	root.Flags().StringVar(&flagRegistry, "registry", "", "path to the sqlite datastore-name registry (disabled when empty)")
	root.Flags().StringVar(&flagLogLevel, "loglevel", "", "override the configured debug_level: [debug, info, notice, warn, err, crit]")
	root.Flags().BoolVar(&flagLogDate, "logdate", false, "add date and time to log messages")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Errf("hxhimd: %v", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log.SetLogDate(flagLogDate)

	cfg := config.Default()
	if flagConfig != "" {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
	}
	if flagLogLevel != "" {
		log.SetLogLevel(flagLogLevel)
	} else {
		log.SetLogLevel(cfg.DebugLevel)
	}

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			return fmt.Errorf("gops agent: %w", err)
		}
	}

	peers, err := parsePeers(flagPeers)
	if err != nil {
		return err
	}

	in, err := hxhim.Open(cmd.Context(), hxhim.Options{
		Comm:         hxhim.Comm{Rank: flagRank, WorldSize: flagWorld},
		Config:       cfg,
		Peers:        peers,
		TransportURL: flagNATSURL,
		AdminAddr:    flagAdmin,
		RegistryPath: flagRegistry,
	})
	if err != nil {
		return err
	}

	log.Infof("hxhimd: rank %d of %d up: %d range servers, %d datastores, transport %s",
		flagRank, flagWorld, in.GetRangeServerCount(), in.GetDatastoreCount(), cfg.Transport)

	<-cmd.Context().Done()
	log.Noticef("hxhimd: rank %d shutting down", flagRank)
	return in.Close()
}

// parsePeers turns repeated "rank=host:port" flags into the rank
// address map GRPCTransport dials.
func parsePeers(specs []string) (map[int]string, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	peers := make(map[int]string, len(specs))
	for _, s := range specs {
		rankStr, addr, ok := strings.Cut(s, "=")
		if !ok {
			return nil, fmt.Errorf("malformed --peer %q, want rank=host:port", s)
		}
		rank, err := strconv.Atoi(rankStr)
		if err != nil {
			return nil, fmt.Errorf("malformed --peer rank %q: %w", rankStr, err)
		}
		peers[rank] = addr
	}
	return peers, nil
}
