package rangeserver

import "errors"

var (
	errNegativeID     = errors.New("range-server id must be non-negative")
	errNegativeRank   = errors.New("rank must be non-negative")
	errNotRangeServer = errors.New("rank is not a range server under this ratio")
	errOutOfWorld     = errors.New("result outside the declared world bounds")
)
