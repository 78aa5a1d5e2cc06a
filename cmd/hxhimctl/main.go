// hxhimctl is an ad hoc HXHIM client: it opens a client rank against
// a running deployment, performs one put/get/scan/del/hist/sync, and
// prints the results. The rank passed via --rank must be a client
// rank under the deployment's client/server ratio, since hxhimctl
// never serves.
package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	hxhim "github.com/hpc-hxhim/hxhim-go"
	"github.com/hpc-hxhim/hxhim-go/internal/config"
	"github.com/hpc-hxhim/hxhim-go/pkg/blob"
	"github.com/hpc-hxhim/hxhim-go/pkg/elen"
	"github.com/hpc-hxhim/hxhim-go/pkg/log"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
	"github.com/hpc-hxhim/hxhim-go/pkg/results"
)

var (
	flagConfig   string
	flagRank     int
	flagWorld    int
	flagNATSURL  string
	flagPeers    []string
	flagLogLevel string

	flagSubjType string
	flagPredType string
	flagObjType  string
	flagPerms    []string

	flagScanKind  string
	flagScanCount uint32

	flagElenPrecision int
)

func main() {
	root := &cobra.Command{
		Use:          "hxhimctl",
		Short:        "Ad hoc HXHIM client: put, get, scan, delete, histogram, sync",
		SilenceUsage: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to an hxhim config.json; built-in defaults apply when empty")
	pf.IntVar(&flagRank, "rank", 0, "rank to act as; must be a client rank under the deployment's ratio")
	pf.IntVar(&flagWorld, "world-size", 1, "total number of ranks in the world")
	pf.StringVar(&flagNATSURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL, used when transport is 'mpi'")
	pf.StringSliceVar(&flagPeers, "peer", nil, "rank=host:port address of a range-server rank, used when transport is 'thallium' (repeatable)")
	pf.StringVar(&flagLogLevel, "loglevel", "warn", "logging level: [debug, info, notice, warn, err, crit]")
	pf.StringVar(&flagSubjType, "subject-type", "str", "subject encoding: str, u64, i64, f64, elen")
	pf.StringVar(&flagPredType, "predicate-type", "str", "predicate encoding: str, u64, i64, f64, elen")
	pf.IntVar(&flagElenPrecision, "elen-precision", 10, "digits of precision for elen-encoded values")

	root.AddCommand(putCmd(), getCmd(), scanCmd(), delCmd(), histCmd(), syncCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		log.Errf("hxhimctl: %v", err)
		os.Exit(1)
	}
}

func putCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put <subject> <predicate> <object>",
		Short: "Store one triple",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, in *hxhim.Instance) error {
				subject, err := encodeValue(args[0], flagSubjType)
				if err != nil {
					return err
				}
				predicate, err := encodeValue(args[1], flagPredType)
				if err != nil {
					return err
				}
				object, err := encodeValue(args[2], flagObjType)
				if err != nil {
					return err
				}
				perms, err := parsePerms(flagPerms)
				if err != nil {
					return err
				}
				if err := in.Put(hxhim.PutItem{
					Subject: subject, Predicate: predicate, Object: object,
					Permutation: perms,
				}); err != nil {
					return err
				}
				res := in.FlushPuts(ctx)
				defer res.Destroy()
				printResults(res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&flagObjType, "object-type", "str", "object encoding: str, u64, i64, f64")
	cmd.Flags().StringSliceVar(&flagPerms, "permutations", nil, "additional key orderings to insert: sp, ps, so, os")
	return cmd
}

func getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <subject> <predicate>",
		Short: "Look up one triple by exact (subject, predicate)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, in *hxhim.Instance) error {
				subject, err := encodeValue(args[0], flagSubjType)
				if err != nil {
					return err
				}
				predicate, err := encodeValue(args[1], flagPredType)
				if err != nil {
					return err
				}
				if err := in.Get(hxhim.GetItem{
					Subject: subject, Predicate: predicate,
					ObjectType: typeTag(flagObjType),
				}); err != nil {
					return err
				}
				res := in.FlushGets(ctx)
				defer res.Destroy()
				printResults(res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&flagObjType, "object-type", "str", "how to print the returned object: str, u64, i64, f64")
	return cmd
}

func scanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan <subject> <predicate>",
		Short: "Ordered range scan from (subject, predicate)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, in *hxhim.Instance) error {
				subject, err := encodeValue(args[0], flagSubjType)
				if err != nil {
					return err
				}
				predicate, err := encodeValue(args[1], flagPredType)
				if err != nil {
					return err
				}
				kind, err := parseScanKind(flagScanKind)
				if err != nil {
					return err
				}
				if err := in.GetOp(hxhim.GetOpItem{
					Subject: subject, Predicate: predicate,
					ObjectType: typeTag(flagObjType),
					NumRecs:    flagScanCount,
					Kind:       kind,
				}); err != nil {
					return err
				}
				res := in.FlushGetOps(ctx)
				defer res.Destroy()
				printResults(res)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&flagScanKind, "op", "next", "traversal: eq, next, prev, first, last")
	cmd.Flags().Uint32Var(&flagScanCount, "count", 10, "maximum records to return")
	cmd.Flags().StringVar(&flagObjType, "object-type", "str", "how to print returned objects: str, u64, i64, f64")
	return cmd
}

func delCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "del <subject> <predicate>",
		Short: "Delete one triple by exact (subject, predicate)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, in *hxhim.Instance) error {
				subject, err := encodeValue(args[0], flagSubjType)
				if err != nil {
					return err
				}
				predicate, err := encodeValue(args[1], flagPredType)
				if err != nil {
					return err
				}
				if err := in.Delete(hxhim.DeleteItem{Subject: subject, Predicate: predicate}); err != nil {
					return err
				}
				res := in.FlushDeletes(ctx)
				defer res.Destroy()
				printResults(res)
				return nil
			})
		},
	}
}

func histCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hist <datastore-id> <name>",
		Short: "Fetch a named histogram from the datastore that owns it",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, in *hxhim.Instance) error {
				id, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("datastore id %q: %w", args[0], err)
				}
				if err := in.Histogram(hxhim.HistogramItem{DatastoreID: id, Name: args[1]}); err != nil {
					return err
				}
				res := in.FlushHistograms(ctx)
				defer res.Destroy()
				printResults(res)
				return nil
			})
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Ask every range server to flush its local datastores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withInstance(cmd, func(ctx context.Context, in *hxhim.Instance) error {
				res := in.Sync(ctx)
				defer res.Destroy()
				printResults(res)
				return nil
			})
		},
	}
}

// withInstance opens a client-side Instance for the duration of fn.
func withInstance(cmd *cobra.Command, fn func(context.Context, *hxhim.Instance) error) error {
	log.SetLogLevel(flagLogLevel)

	cfg := config.Default()
	if flagConfig != "" {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
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
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := in.Close(); cerr != nil {
			log.Errf("hxhimctl: close: %v", cerr)
		}
	}()

	return fn(cmd.Context(), in)
}

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

// encodeValue turns a command-line string into a typed blob. The
// "elen" encoding produces lexicographically ordered bytes so numeric
// predicates scan in numeric order.
func encodeValue(s, enc string) (*blob.Blob, error) {
	switch enc {
	case "str", "":
		return blob.New([]byte(s), blob.TypeByte), nil
	case "u64":
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("u64 %q: %w", s, err)
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, v)
		return blob.New(b, blob.TypeUint64), nil
	case "i64":
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("i64 %q: %w", s, err)
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, uint64(v))
		return blob.New(b, blob.TypeInt64), nil
	case "f64":
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("f64 %q: %w", s, err)
		}
		b := make([]byte, 8)
		binary.LittleEndian.PutUint64(b, math.Float64bits(v))
		return blob.New(b, blob.TypeDouble), nil
	case "elen":
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("elen %q: %w", s, err)
		}
		return blob.New([]byte(elen.EncodeFloat(v, flagElenPrecision)), blob.TypeByte), nil
	default:
		return nil, fmt.Errorf("unknown encoding %q", enc)
	}
}

func typeTag(enc string) blob.Type {
	switch enc {
	case "u64":
		return blob.TypeUint64
	case "i64":
		return blob.TypeInt64
	case "f64":
		return blob.TypeDouble
	default:
		return blob.TypeByte
	}
}

func parsePerms(specs []string) (opcode.Permutation, error) {
	var p opcode.Permutation
	for _, s := range specs {
		switch strings.ToLower(s) {
		case "sp":
			p |= opcode.PermSP
		case "ps":
			p |= opcode.PermPS
		case "so":
			p |= opcode.PermSO
		case "os":
			p |= opcode.PermOS
		default:
			return 0, fmt.Errorf("unknown permutation %q, want sp, ps, so, or os", s)
		}
	}
	return p, nil
}

func parseScanKind(s string) (opcode.GetOpKind, error) {
	switch strings.ToLower(s) {
	case "eq":
		return opcode.GetOpEQ, nil
	case "next":
		return opcode.GetOpNEXT, nil
	case "prev":
		return opcode.GetOpPREV, nil
	case "first":
		return opcode.GetOpFIRST, nil
	case "last":
		return opcode.GetOpLAST, nil
	default:
		return 0, fmt.Errorf("unknown scan op %q, want eq, next, prev, first, or last", s)
	}
}

// printResults walks res with the forward iterator and writes one line
// per record to stdout.
func printResults(res *results.Results) {
	for res.Rewind(); res.Valid(); res.Next() {
		rec := res.Curr()
		switch rec.Op {
		case opcode.GET:
			fmt.Printf("%s datastore=%d status=%s object=%s\n",
				rec.Op, rec.DatastoreID, rec.Status, renderBlob(rec.Triple.Object))
		case opcode.GETOP:
			fmt.Printf("%s datastore=%d status=%s records=%d\n",
				rec.Op, rec.DatastoreID, rec.Status, len(rec.GetOpRecords))
			for _, t := range rec.GetOpRecords {
				fmt.Printf("  subject=%s predicate=%s object=%s\n",
					renderBlob(t.Subject), renderBlob(t.Predicate), renderBlob(t.Object))
			}
		case opcode.HISTOGRAM:
			fmt.Printf("%s datastore=%d status=%s name=%q size=%d\n",
				rec.Op, rec.DatastoreID, rec.Status, rec.Histogram.Name, rec.Histogram.Size)
			for i := range rec.Histogram.Buckets {
				fmt.Printf("  bucket=%g count=%d\n", rec.Histogram.Buckets[i], rec.Histogram.Counts[i])
			}
		default:
			if rec.Err != nil {
				fmt.Printf("%s datastore=%d status=%s err=%v\n", rec.Op, rec.DatastoreID, rec.Status, rec.Err)
				continue
			}
			fmt.Printf("%s datastore=%d status=%s\n", rec.Op, rec.DatastoreID, rec.Status)
		}
	}
}

// renderBlob prints a blob's bytes per its type tag, falling back to
// a quoted string for opaque bytes.
func renderBlob(b *blob.Blob) string {
	if b == nil || b.Len() == 0 {
		return "<nil>"
	}
	if v, ok := blob.ToFloat64(b.Data, b.Type); ok && b.Type != blob.TypeByte {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.Quote(string(b.Data))
}
