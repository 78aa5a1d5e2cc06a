package shuffle

import "errors"

var errIDOutOfRange = errors.New("hash produced a datastore id out of range")
