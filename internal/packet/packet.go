// Package packet implements the packetizer: it groups
// same-op-kind, same-destination pending ops into bounded
// packets, closing and opening a fresh one whenever a packet would
// exceed max_ops_per_send.
package packet

import (
	"github.com/hpc-hxhim/hxhim-go/internal/herr"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

// Packet is a bounded, same-op-kind, same-destination batch. Slots
// is op-kind-specific and left as `any` here; callers type-assert
// against the wire package's per-op slot types when building the
// final wire.Message.
type Packet struct {
	Src, Dst int
	Op       opcode.Op
	Slots    []any
}

// Builder accumulates Packets per destination for one op kind,
// flushing (emitting) whichever packet is full.
type Builder struct {
	src      int
	op       opcode.Op
	maxOps   int
	open     map[int]*Packet
	complete []*Packet
}

// NewBuilder creates a Builder. maxOps must be positive.
func NewBuilder(src int, op opcode.Op, maxOps int) (*Builder, error) {
	if maxOps <= 0 {
		return nil, herr.New(herr.Config, "packet.NewBuilder", errNonPositiveMaxOps)
	}
	return &Builder{
		src:    src,
		op:     op,
		maxOps: maxOps,
		open:   make(map[int]*Packet),
	}, nil
}

// Add appends slot to dst's open packet, opening one if needed, and
// closes (moves to the completed list) any packet that reaches
// maxOps. Add itself never fails: it transparently rotates to a
// fresh packet so the caller's single op is never dropped.
func (b *Builder) Add(dst int, slot any) {
	p, ok := b.open[dst]
	if !ok {
		p = &Packet{Src: b.src, Dst: dst, Op: b.op}
		b.open[dst] = p
	}
	p.Slots = append(p.Slots, slot)
	if len(p.Slots) >= b.maxOps {
		b.complete = append(b.complete, p)
		delete(b.open, dst)
	}
}

// Flush closes every still-open packet (even if under capacity) and
// returns every completed packet built so far, in the order they were
// closed. Called on an explicit Flush or before shutdown.
func (b *Builder) Flush() []*Packet {
	for dst, p := range b.open {
		if len(p.Slots) > 0 {
			b.complete = append(b.complete, p)
		}
		delete(b.open, dst)
	}
	out := b.complete
	b.complete = nil
	return out
}

// Pending reports whether any packet (open or completed-but-unsent)
// still holds slots.
func (b *Builder) Pending() bool {
	if len(b.complete) > 0 {
		return true
	}
	for _, p := range b.open {
		if len(p.Slots) > 0 {
			return true
		}
	}
	return false
}
