package registry

import "fmt"

var errNoSuchDatastore = fmt.Errorf("registry: no name recorded for datastore id")
