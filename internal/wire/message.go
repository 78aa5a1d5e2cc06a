// Package wire implements the framed message format: a fixed header
// (direction, op, src, dst, count) followed by
// count op-specific records, little-endian throughout. Blobs use
// pkg/blob's "by value" and "by reference" wire forms.
package wire

import (
	"github.com/hpc-hxhim/hxhim-go/pkg/blob"
	"github.com/hpc-hxhim/hxhim-go/pkg/histogram"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

// Header is the fixed 14-byte preamble every message begins with.
type Header struct {
	Direction opcode.Direction
	Op        opcode.Op
	Src       int32
	Dst       int32
	Count     uint32
}

// PutRequestSlot is one PUT request record.
type PutRequestSlot struct {
	Subject     *blob.Blob
	Predicate   *blob.Blob
	Object      *blob.Blob
	Permutation opcode.Permutation
}

// PutResponseSlot is one PUT response record: status plus echoed
// subject/predicate references the client rebinds to its originals.
type PutResponseSlot struct {
	Status    opcode.Status
	Subject   *blob.Blob
	Predicate *blob.Blob
}

// GetRequestSlot is one GET request record.
type GetRequestSlot struct {
	Subject    *blob.Blob
	Predicate  *blob.Blob
	ObjectType blob.Type
}

// GetResponseSlot is one GET response record.
type GetResponseSlot struct {
	Status    opcode.Status
	Object    *blob.Blob
	Subject   *blob.Blob
	Predicate *blob.Blob
}

// GetOpRequestSlot is one GETOP request record.
type GetOpRequestSlot struct {
	Subject    *blob.Blob
	Predicate  *blob.Blob
	ObjectType blob.Type
	NumRecs    uint32
	Kind       opcode.GetOpKind
}

// GetOpResponseSlot is one GETOP response record: up to NumRecs
// (subject,predicate,object) triples in traversal order.
type GetOpResponseSlot struct {
	Status     opcode.Status
	NumRecs    uint32
	Subjects   []*blob.Blob
	Predicates []*blob.Blob
	Objects    []*blob.Blob
}

// DeleteRequestSlot is one DELETE request record.
type DeleteRequestSlot struct {
	Subject   *blob.Blob
	Predicate *blob.Blob
}

// DeleteResponseSlot is one DELETE response record.
type DeleteResponseSlot struct {
	Status    opcode.Status
	Subject   *blob.Blob
	Predicate *blob.Blob
}

// HistogramRequestSlot names the histogram being requested, on the
// datastore id the caller asked about.
type HistogramRequestSlot struct {
	DatastoreID int32
	Name        string
}

// HistogramResponseSlot carries the histogram snapshot.
type HistogramResponseSlot struct {
	Status    opcode.Status
	Histogram histogram.Snapshot
}

// SyncRequestSlot and SyncResponseSlot carry no op-specific fields;
// SYNC exists to force a flush and get back one status per datastore.
type SyncRequestSlot struct{}

type SyncResponseSlot struct {
	Status opcode.Status
}

// Message is an in-memory unpacked request or response packet. Only
// the field matching Header.Op/Header.Direction is populated.
type Message struct {
	Header Header

	PutReq  []PutRequestSlot
	PutResp []PutResponseSlot

	GetReq  []GetRequestSlot
	GetResp []GetResponseSlot

	GetOpReq  []GetOpRequestSlot
	GetOpResp []GetOpResponseSlot

	DeleteReq  []DeleteRequestSlot
	DeleteResp []DeleteResponseSlot

	HistReq  []HistogramRequestSlot
	HistResp []HistogramResponseSlot

	SyncReq  []SyncRequestSlot
	SyncResp []SyncResponseSlot
}
