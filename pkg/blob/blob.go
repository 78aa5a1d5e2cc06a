// Package blob implements the Blob type: an owned-or-referenced
// byte buffer tagged with a data type, plus its two wire pack forms
// (by value and by reference).
//
// Go has no raw pointers worth echoing back to a client, so the "by
// reference" form carries an opaque handle instead of a pointer bit
// pattern, and clients rebind each echoed reference to the request
// slot it answers by position. The wire layout
// (ptr_bits:u64 ∥ len:u64 ∥ type:u8) is unchanged; only what fills
// ptr_bits differs.
package blob

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Type tags the kind of value a Blob's bytes represent.
type Type uint8

const (
	TypeByte Type = iota
	TypePointer
	TypeInt32
	TypeInt64
	TypeUint32
	TypeUint64
	TypeFloat
	TypeDouble
)

func (t Type) String() string {
	switch t {
	case TypeByte:
		return "byte"
	case TypePointer:
		return "pointer"
	case TypeInt32:
		return "int32"
	case TypeInt64:
		return "int64"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Blob is an owned-or-referenced byte buffer with a type tag.
// Invariant: len(Data) == 0 implies the blob carries no payload.
// Owned marks whether this Blob is responsible for its Data (vs.
// echoing a caller-supplied buffer back by reference).
type Blob struct {
	Data  []byte
	Type  Type
	Owned bool

	// handle is populated on blobs produced by UnpackRef: it is the
	// opaque bit pattern the reference form carried, not a real
	// address.
	handle uint64
}

// New wraps data as an owned Blob.
func New(data []byte, t Type) *Blob {
	return &Blob{Data: data, Type: t, Owned: true}
}

// NewRef wraps data as a non-owned Blob carrying a caller-assigned
// opaque handle, used when a server must echo a client-supplied
// subject/predicate back unchanged.
func NewRef(data []byte, t Type, handle uint64) *Blob {
	return &Blob{Data: data, Type: t, Owned: false, handle: handle}
}

// Handle returns the opaque reference handle this Blob was unpacked
// with (zero if it was never assigned one).
func (b *Blob) Handle() uint64 { return b.handle }

// Len returns the number of payload bytes.
func (b *Blob) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}

// PackValue writes the "by value" wire form: len:u64 ∥ bytes ∥ type:u8.
func PackValue(w io.Writer, b *Blob) error {
	var lenBuf [8]byte
	n := uint64(0)
	t := Type(TypeByte)
	var data []byte
	if b != nil {
		n = uint64(len(b.Data))
		t = b.Type
		data = b.Data
	}
	binary.LittleEndian.PutUint64(lenBuf[:], n)
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("blob: pack length: %w", err)
	}
	if n > 0 {
		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("blob: pack payload: %w", err)
		}
	}
	if _, err := w.Write([]byte{byte(t)}); err != nil {
		return fmt.Errorf("blob: pack type: %w", err)
	}
	return nil
}

// UnpackValue reads the "by value" wire form produced by PackValue.
func UnpackValue(r io.Reader) (*Blob, error) {
	var lenBuf [8]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("blob: truncated length: %w", err)
	}
	n := binary.LittleEndian.Uint64(lenBuf[:])
	var data []byte
	if n > 0 {
		data = make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("blob: truncated payload: %w", err)
		}
	}
	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return nil, fmt.Errorf("blob: truncated type tag: %w", err)
	}
	return New(data, Type(typeBuf[0])), nil
}

// PackRef writes the "by reference" wire form: handle:u64 ∥ len:u64 ∥
// type:u8, carrying no payload bytes. The server uses this to echo a
// client-supplied subject/predicate address back unchanged.
func PackRef(w io.Writer, b *Blob) error {
	var buf [17]byte
	n := uint64(0)
	t := Type(TypeByte)
	h := uint64(0)
	if b != nil {
		n = uint64(len(b.Data))
		t = b.Type
		h = b.handle
	}
	binary.LittleEndian.PutUint64(buf[0:8], h)
	binary.LittleEndian.PutUint64(buf[8:16], n)
	buf[16] = byte(t)
	if _, err := w.Write(buf[:]); err != nil {
		return fmt.Errorf("blob: pack reference: %w", err)
	}
	return nil
}

// UnpackRef reads the "by reference" wire form produced by PackRef.
// The returned Blob has no payload; callers rebind it to the value
// they sent in the matching request slot.
func UnpackRef(r io.Reader) (*Blob, error) {
	var buf [17]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, fmt.Errorf("blob: truncated reference: %w", err)
	}
	h := binary.LittleEndian.Uint64(buf[0:8])
	n := binary.LittleEndian.Uint64(buf[8:16])
	t := Type(buf[16])
	_ = n // length is informational only; a reference form carries no payload
	return &Blob{Type: t, Owned: false, handle: h}, nil
}

// ToFloat64 decodes data as the numeric type t names, for callers
// (histogram sample tracking, ELEN-keyed permutations) that need a
// triple's object as a plain float64 regardless of its wire width.
// ok is false for TypeByte/TypePointer or a short buffer: those carry
// no interpretable number.
func ToFloat64(data []byte, t Type) (float64, bool) {
	switch t {
	case TypeInt32:
		if len(data) < 4 {
			return 0, false
		}
		return float64(int32(binary.LittleEndian.Uint32(data))), true
	case TypeUint32:
		if len(data) < 4 {
			return 0, false
		}
		return float64(binary.LittleEndian.Uint32(data)), true
	case TypeInt64:
		if len(data) < 8 {
			return 0, false
		}
		return float64(int64(binary.LittleEndian.Uint64(data))), true
	case TypeUint64:
		if len(data) < 8 {
			return 0, false
		}
		return float64(binary.LittleEndian.Uint64(data)), true
	case TypeFloat:
		if len(data) < 4 {
			return 0, false
		}
		bits := binary.LittleEndian.Uint32(data)
		return float64(math.Float32frombits(bits)), true
	case TypeDouble:
		if len(data) < 8 {
			return 0, false
		}
		bits := binary.LittleEndian.Uint64(data)
		return math.Float64frombits(bits), true
	default:
		return 0, false
	}
}
