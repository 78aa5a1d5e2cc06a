package datastore

import (
	"fmt"

	"github.com/hpc-hxhim/hxhim-go/internal/herr"
)

func errUnknownSelector(selector string) error {
	return herr.New(herr.Config, "datastore.Open", fmt.Errorf("unknown DATASTORE selector %q", selector))
}

var errInvalidGetOpKind = fmt.Errorf("invalid GETOP kind")
