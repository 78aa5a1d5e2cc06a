package registry

import (
	"context"
	"time"

	"github.com/hpc-hxhim/hxhim-go/pkg/log"
)

type ctxKey string

const beginKey ctxKey = "begin"

// hooks satisfies sqlhooks.Hooks so every query against the registry
// database is timed and logged at debug level.
type hooks struct{}

func (h *hooks) Before(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	log.Debugf("registry query %s %q", query, args)
	return context.WithValue(ctx, beginKey, time.Now()), nil
}

func (h *hooks) After(ctx context.Context, query string, args ...interface{}) (context.Context, error) {
	if begin, ok := ctx.Value(beginKey).(time.Time); ok {
		log.Debugf("registry query took %s", time.Since(begin))
	}
	return ctx, nil
}
