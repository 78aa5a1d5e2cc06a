package pool

import "fmt"

var errNonPositiveSize = fmt.Errorf("pool: alloc_size and regions must be positive")
