package rangeserverloop

import "fmt"

var (
	errIDRange         = fmt.Errorf("rangeserverloop: hashed datastore id out of range")
	errNoSuchDatastore = fmt.Errorf("rangeserverloop: hashed local index does not name an owned datastore")
	errUnknownOp       = fmt.Errorf("rangeserverloop: unknown op")
)
