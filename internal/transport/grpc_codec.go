package transport

import "fmt"

// rawBytesCodec lets a gRPC call exchange []byte payloads directly,
// without a compiled .proto message type: a remote procedure that
// takes a byte-string and returns a byte-string needs nothing more
// than pass-through framing.
type rawBytesCodec struct{}

func (rawBytesCodec) Name() string { return "raw" }

func (rawBytesCodec) Marshal(v any) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("transport: raw codec cannot marshal %T", v)
	}
	return *b, nil
}

func (rawBytesCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("transport: raw codec cannot unmarshal into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}
