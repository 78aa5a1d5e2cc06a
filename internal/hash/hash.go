// Package hash implements the routing hash capability: a function
// (subject, predicate, userArgs) -> datastore id. The core
// treats it as opaque; this package supplies the stock set plus an
// expr-lang-backed custom hash so HASH can name a user expression
// instead of a compiled-in function.
package hash

import (
	"fmt"
	"hash/fnv"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/hpc-hxhim/hxhim-go/internal/herr"
)

// Func computes a destination datastore id from a triple's key bytes.
// userArgs is opaque, passed through for hashes that need it (e.g. the
// caller's base datastore id for MY_RANK, or a fixed datastore id for
// RANK); an Expr-built Func ignores it.
type Func func(subject, predicate []byte, totalDatastores int, userArgs any) (int, error)

// Identity always routes to datastore 0. Useful for single-datastore
// deployments and tests.
func Identity(_, _ []byte, _ int, _ any) (int, error) {
	return 0, nil
}

// SumModDatastores sums the FNV-1a hash of subject||predicate modulo
// the total datastore count (the SUM_MOD_DATASTORES stock hash).
func SumModDatastores(subject, predicate []byte, total int, _ any) (int, error) {
	if total <= 0 {
		return 0, herr.New(herr.Argument, "hash.SumModDatastores", fmt.Errorf("non-positive datastore count"))
	}
	h := fnv.New64a()
	h.Write(subject)
	h.Write(predicate)
	return int(h.Sum64() % uint64(total)), nil
}

// MyRank always routes to the caller's own rank's first datastore;
// userArgs must be the calling rank's base datastore id (an int).
func MyRank(_, _ []byte, total int, userArgs any) (int, error) {
	id, ok := userArgs.(int)
	if !ok {
		return 0, herr.New(herr.Argument, "hash.MyRank", fmt.Errorf("userArgs must carry the caller's base datastore id"))
	}
	if id < 0 || id >= total {
		return 0, herr.New(herr.Argument, "hash.MyRank", fmt.Errorf("base datastore id %d out of range [0,%d)", id, total))
	}
	return id, nil
}

// Rank routes unconditionally to a fixed datastore id supplied as
// userArgs (the RANK stock hash, used to pin all traffic to one
// server for testing or administrative operations).
func Rank(_, _ []byte, total int, userArgs any) (int, error) {
	id, ok := userArgs.(int)
	if !ok {
		return 0, herr.New(herr.Argument, "hash.Rank", fmt.Errorf("userArgs must carry the target datastore id"))
	}
	if id < 0 || id >= total {
		return 0, herr.New(herr.Argument, "hash.Rank", fmt.Errorf("datastore id %d out of range [0,%d)", id, total))
	}
	return id, nil
}

// ByName looks up a stock hash by its HASH config name.
func ByName(name string) (Func, bool) {
	switch name {
	case "SUM_MOD_DATASTORES":
		return SumModDatastores, true
	case "MY_RANK":
		return MyRank, true
	case "RANK":
		return Rank, true
	case "IDENTITY":
		return Identity, true
	default:
		return nil, false
	}
}

// Expr compiles a HASH config expression into a Func. The expression
// is evaluated with `SubjectLen`, `PredicateLen`, and `Total` bound,
// and must produce an int, so deployments can route without
// recompiling.
func Expr(source string) (Func, error) {
	program, err := expr.Compile(source, expr.Env(exprEnv{}))
	if err != nil {
		return nil, herr.New(herr.Config, "hash.Expr", fmt.Errorf("compile %q: %w", source, err))
	}
	return exprFunc(program), nil
}

type exprEnv struct {
	SubjectLen   int
	PredicateLen int
	Total        int
}

func exprFunc(program *vm.Program) Func {
	return func(subject, predicate []byte, total int, _ any) (int, error) {
		out, err := expr.Run(program, exprEnv{
			SubjectLen:   len(subject),
			PredicateLen: len(predicate),
			Total:        total,
		})
		if err != nil {
			return 0, herr.New(herr.Argument, "hash.Expr", fmt.Errorf("evaluate: %w", err))
		}
		id, ok := out.(int)
		if !ok {
			return 0, herr.New(herr.Argument, "hash.Expr", fmt.Errorf("expression produced non-int %T", out))
		}
		if id < 0 || id >= total {
			return 0, herr.New(herr.Argument, "hash.Expr", fmt.Errorf("id %d out of range [0,%d)", id, total))
		}
		return id, nil
	}
}
