package hxhim

import "errors"

var (
	errUnknownHash      = errors.New("hxhim: unrecognized hash name")
	errUnknownTransport = errors.New("hxhim: unrecognized transport name")
	errMyRankNotServer  = errors.New("hxhim: HASH=MY_RANK requires this rank to be a range server")
)
