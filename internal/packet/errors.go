package packet

import "errors"

var errNonPositiveMaxOps = errors.New("max ops per send must be positive")
