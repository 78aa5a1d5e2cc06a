package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/hpc-hxhim/hxhim-go/internal/herr"
	"github.com/hpc-hxhim/hxhim-go/pkg/blob"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

const headerSize = 1 + 1 + 4 + 4 + 4

func writeHeader(w io.Writer, h Header) error {
	var buf [headerSize]byte
	buf[0] = byte(h.Direction)
	buf[1] = byte(h.Op)
	binary.LittleEndian.PutUint32(buf[2:6], uint32(h.Src))
	binary.LittleEndian.PutUint32(buf[6:10], uint32(h.Dst))
	binary.LittleEndian.PutUint32(buf[10:14], h.Count)
	_, err := w.Write(buf[:])
	return err
}

func readHeader(r io.Reader) (Header, error) {
	var buf [headerSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, herr.New(herr.Codec, "wire.readHeader", fmt.Errorf("truncated header: %w", err))
	}
	return Header{
		Direction: opcode.Direction(buf[0]),
		Op:        opcode.Op(buf[1]),
		Src:       int32(binary.LittleEndian.Uint32(buf[2:6])),
		Dst:       int32(binary.LittleEndian.Uint32(buf[6:10])),
		Count:     binary.LittleEndian.Uint32(buf[10:14]),
	}, nil
}

func writeStatus(w io.Writer, s opcode.Status) error {
	_, err := w.Write([]byte{byte(s)})
	return err
}

func readStatus(r io.Reader) (opcode.Status, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, fmt.Errorf("truncated status: %w", err)
	}
	return opcode.Status(b[0]), nil
}

func writeString(w io.Writer, s string) error {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", fmt.Errorf("truncated string length: %w", err)
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("truncated string payload: %w", err)
	}
	return string(buf), nil
}

// Pack serializes m into wire form. It is total on a Message whose
// populated slice matches Header.Op/Header.Direction and whose
// Header.Count equals that slice's length.
func Pack(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeHeader(&buf, m.Header); err != nil {
		return nil, herr.New(herr.Codec, "wire.Pack", err)
	}

	pack := func(n int, fn func(i int) error) error {
		if n != int(m.Header.Count) {
			return fmt.Errorf("slot count %d does not match header count %d", n, m.Header.Count)
		}
		for i := 0; i < n; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}
		return nil
	}

	var err error
	switch {
	case m.Header.Op == opcode.PUT && m.Header.Direction == opcode.REQUEST:
		err = pack(len(m.PutReq), func(i int) error { return packPutRequest(&buf, m.PutReq[i]) })
	case m.Header.Op == opcode.PUT && m.Header.Direction == opcode.RESPONSE:
		err = pack(len(m.PutResp), func(i int) error { return packPutResponse(&buf, m.PutResp[i]) })
	case m.Header.Op == opcode.GET && m.Header.Direction == opcode.REQUEST:
		err = pack(len(m.GetReq), func(i int) error { return packGetRequest(&buf, m.GetReq[i]) })
	case m.Header.Op == opcode.GET && m.Header.Direction == opcode.RESPONSE:
		err = pack(len(m.GetResp), func(i int) error { return packGetResponse(&buf, m.GetResp[i]) })
	case m.Header.Op == opcode.GETOP && m.Header.Direction == opcode.REQUEST:
		err = pack(len(m.GetOpReq), func(i int) error { return packGetOpRequest(&buf, m.GetOpReq[i]) })
	case m.Header.Op == opcode.GETOP && m.Header.Direction == opcode.RESPONSE:
		err = pack(len(m.GetOpResp), func(i int) error { return packGetOpResponse(&buf, m.GetOpResp[i]) })
	case m.Header.Op == opcode.DELETE && m.Header.Direction == opcode.REQUEST:
		err = pack(len(m.DeleteReq), func(i int) error { return packDeleteRequest(&buf, m.DeleteReq[i]) })
	case m.Header.Op == opcode.DELETE && m.Header.Direction == opcode.RESPONSE:
		err = pack(len(m.DeleteResp), func(i int) error { return packDeleteResponse(&buf, m.DeleteResp[i]) })
	case m.Header.Op == opcode.HISTOGRAM && m.Header.Direction == opcode.REQUEST:
		err = pack(len(m.HistReq), func(i int) error { return packHistogramRequest(&buf, m.HistReq[i]) })
	case m.Header.Op == opcode.HISTOGRAM && m.Header.Direction == opcode.RESPONSE:
		err = pack(len(m.HistResp), func(i int) error { return packHistogramResponse(&buf, m.HistResp[i]) })
	case m.Header.Op == opcode.SYNC && m.Header.Direction == opcode.REQUEST:
		err = pack(len(m.SyncReq), func(i int) error { return nil })
	case m.Header.Op == opcode.SYNC && m.Header.Direction == opcode.RESPONSE:
		err = pack(len(m.SyncResp), func(i int) error { return writeStatus(&buf, m.SyncResp[i].Status) })
	default:
		err = fmt.Errorf("unknown op %d or direction %d", m.Header.Op, m.Header.Direction)
	}
	if err != nil {
		return nil, herr.New(herr.Codec, "wire.Pack", err)
	}
	return buf.Bytes(), nil
}

// Unpack parses data into a Message, rejecting truncation, unknown
// op/direction, or a header count exceeding maxCount.
func Unpack(data []byte, maxCount uint32) (*Message, error) {
	r := bytes.NewReader(data)
	h, err := readHeader(r)
	if err != nil {
		return nil, err
	}
	if h.Count > maxCount {
		return nil, herr.New(herr.Codec, "wire.Unpack", fmt.Errorf("count %d exceeds max %d", h.Count, maxCount))
	}

	m := &Message{Header: h}
	n := int(h.Count)

	var unpackErr error
	switch {
	case h.Op == opcode.PUT && h.Direction == opcode.REQUEST:
		m.PutReq, unpackErr = unpackN(n, func() (PutRequestSlot, error) { return unpackPutRequest(r) })
	case h.Op == opcode.PUT && h.Direction == opcode.RESPONSE:
		m.PutResp, unpackErr = unpackN(n, func() (PutResponseSlot, error) { return unpackPutResponse(r) })
	case h.Op == opcode.GET && h.Direction == opcode.REQUEST:
		m.GetReq, unpackErr = unpackN(n, func() (GetRequestSlot, error) { return unpackGetRequest(r) })
	case h.Op == opcode.GET && h.Direction == opcode.RESPONSE:
		m.GetResp, unpackErr = unpackN(n, func() (GetResponseSlot, error) { return unpackGetResponse(r) })
	case h.Op == opcode.GETOP && h.Direction == opcode.REQUEST:
		m.GetOpReq, unpackErr = unpackN(n, func() (GetOpRequestSlot, error) { return unpackGetOpRequest(r) })
	case h.Op == opcode.GETOP && h.Direction == opcode.RESPONSE:
		m.GetOpResp, unpackErr = unpackN(n, func() (GetOpResponseSlot, error) { return unpackGetOpResponse(r) })
	case h.Op == opcode.DELETE && h.Direction == opcode.REQUEST:
		m.DeleteReq, unpackErr = unpackN(n, func() (DeleteRequestSlot, error) { return unpackDeleteRequest(r) })
	case h.Op == opcode.DELETE && h.Direction == opcode.RESPONSE:
		m.DeleteResp, unpackErr = unpackN(n, func() (DeleteResponseSlot, error) { return unpackDeleteResponse(r) })
	case h.Op == opcode.HISTOGRAM && h.Direction == opcode.REQUEST:
		m.HistReq, unpackErr = unpackN(n, func() (HistogramRequestSlot, error) { return unpackHistogramRequest(r) })
	case h.Op == opcode.HISTOGRAM && h.Direction == opcode.RESPONSE:
		m.HistResp, unpackErr = unpackN(n, func() (HistogramResponseSlot, error) { return unpackHistogramResponse(r) })
	case h.Op == opcode.SYNC && h.Direction == opcode.REQUEST:
		m.SyncReq, unpackErr = unpackN(n, func() (SyncRequestSlot, error) { return SyncRequestSlot{}, nil })
	case h.Op == opcode.SYNC && h.Direction == opcode.RESPONSE:
		m.SyncResp, unpackErr = unpackN(n, func() (SyncResponseSlot, error) {
			s, err := readStatus(r)
			return SyncResponseSlot{Status: s}, err
		})
	default:
		unpackErr = fmt.Errorf("unknown op %d or direction %d", h.Op, h.Direction)
	}
	if unpackErr != nil {
		return nil, herr.New(herr.Codec, "wire.Unpack", unpackErr)
	}
	return m, nil
}

func unpackN[T any](n int, fn func() (T, error)) ([]T, error) {
	out := make([]T, n)
	for i := 0; i < n; i++ {
		v, err := fn()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func packPutRequest(w io.Writer, s PutRequestSlot) error {
	if err := blob.PackValue(w, s.Subject); err != nil {
		return err
	}
	if err := blob.PackValue(w, s.Predicate); err != nil {
		return err
	}
	if err := blob.PackValue(w, s.Object); err != nil {
		return err
	}
	_, err := w.Write([]byte{byte(s.Permutation)})
	return err
}

func unpackPutRequest(r io.Reader) (PutRequestSlot, error) {
	var s PutRequestSlot
	var err error
	if s.Subject, err = blob.UnpackValue(r); err != nil {
		return s, err
	}
	if s.Predicate, err = blob.UnpackValue(r); err != nil {
		return s, err
	}
	if s.Object, err = blob.UnpackValue(r); err != nil {
		return s, err
	}
	var pb [1]byte
	if _, err := io.ReadFull(r, pb[:]); err != nil {
		return s, fmt.Errorf("truncated permutation flags: %w", err)
	}
	s.Permutation = opcode.Permutation(pb[0])
	return s, nil
}

func packPutResponse(w io.Writer, s PutResponseSlot) error {
	if err := writeStatus(w, s.Status); err != nil {
		return err
	}
	if err := blob.PackRef(w, s.Subject); err != nil {
		return err
	}
	return blob.PackRef(w, s.Predicate)
}

func unpackPutResponse(r io.Reader) (PutResponseSlot, error) {
	var s PutResponseSlot
	var err error
	if s.Status, err = readStatus(r); err != nil {
		return s, err
	}
	if s.Subject, err = blob.UnpackRef(r); err != nil {
		return s, err
	}
	s.Predicate, err = blob.UnpackRef(r)
	return s, err
}

func packGetRequest(w io.Writer, s GetRequestSlot) error {
	if err := blob.PackValue(w, s.Subject); err != nil {
		return err
	}
	if err := blob.PackValue(w, s.Predicate); err != nil {
		return err
	}
	_, err := w.Write([]byte{byte(s.ObjectType)})
	return err
}

func unpackGetRequest(r io.Reader) (GetRequestSlot, error) {
	var s GetRequestSlot
	var err error
	if s.Subject, err = blob.UnpackValue(r); err != nil {
		return s, err
	}
	if s.Predicate, err = blob.UnpackValue(r); err != nil {
		return s, err
	}
	var tb [1]byte
	if _, err := io.ReadFull(r, tb[:]); err != nil {
		return s, fmt.Errorf("truncated object type: %w", err)
	}
	s.ObjectType = blob.Type(tb[0])
	return s, nil
}

func packGetResponse(w io.Writer, s GetResponseSlot) error {
	if err := writeStatus(w, s.Status); err != nil {
		return err
	}
	if err := blob.PackValue(w, s.Object); err != nil {
		return err
	}
	if err := blob.PackRef(w, s.Subject); err != nil {
		return err
	}
	return blob.PackRef(w, s.Predicate)
}

func unpackGetResponse(r io.Reader) (GetResponseSlot, error) {
	var s GetResponseSlot
	var err error
	if s.Status, err = readStatus(r); err != nil {
		return s, err
	}
	if s.Object, err = blob.UnpackValue(r); err != nil {
		return s, err
	}
	if s.Subject, err = blob.UnpackRef(r); err != nil {
		return s, err
	}
	s.Predicate, err = blob.UnpackRef(r)
	return s, err
}

func packGetOpRequest(w io.Writer, s GetOpRequestSlot) error {
	if err := blob.PackValue(w, s.Subject); err != nil {
		return err
	}
	if err := blob.PackValue(w, s.Predicate); err != nil {
		return err
	}
	var hdr [6]byte
	hdr[0] = byte(s.ObjectType)
	binary.LittleEndian.PutUint32(hdr[1:5], s.NumRecs)
	hdr[5] = byte(s.Kind)
	_, err := w.Write(hdr[:])
	return err
}

func unpackGetOpRequest(r io.Reader) (GetOpRequestSlot, error) {
	var s GetOpRequestSlot
	var err error
	if s.Subject, err = blob.UnpackValue(r); err != nil {
		return s, err
	}
	if s.Predicate, err = blob.UnpackValue(r); err != nil {
		return s, err
	}
	var hdr [6]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return s, fmt.Errorf("truncated getop header: %w", err)
	}
	s.ObjectType = blob.Type(hdr[0])
	s.NumRecs = binary.LittleEndian.Uint32(hdr[1:5])
	s.Kind = opcode.GetOpKind(hdr[5])
	return s, nil
}

func packGetOpResponse(w io.Writer, s GetOpResponseSlot) error {
	if err := writeStatus(w, s.Status); err != nil {
		return err
	}
	var nb [4]byte
	binary.LittleEndian.PutUint32(nb[:], s.NumRecs)
	if _, err := w.Write(nb[:]); err != nil {
		return err
	}
	for i := 0; i < int(s.NumRecs); i++ {
		if err := blob.PackValue(w, s.Subjects[i]); err != nil {
			return err
		}
		if err := blob.PackValue(w, s.Predicates[i]); err != nil {
			return err
		}
		if err := blob.PackValue(w, s.Objects[i]); err != nil {
			return err
		}
	}
	return nil
}

func unpackGetOpResponse(r io.Reader) (GetOpResponseSlot, error) {
	var s GetOpResponseSlot
	var err error
	if s.Status, err = readStatus(r); err != nil {
		return s, err
	}
	var nb [4]byte
	if _, err := io.ReadFull(r, nb[:]); err != nil {
		return s, fmt.Errorf("truncated getop num_recs: %w", err)
	}
	s.NumRecs = binary.LittleEndian.Uint32(nb[:])
	s.Subjects = make([]*blob.Blob, s.NumRecs)
	s.Predicates = make([]*blob.Blob, s.NumRecs)
	s.Objects = make([]*blob.Blob, s.NumRecs)
	for i := 0; i < int(s.NumRecs); i++ {
		if s.Subjects[i], err = blob.UnpackValue(r); err != nil {
			return s, err
		}
		if s.Predicates[i], err = blob.UnpackValue(r); err != nil {
			return s, err
		}
		if s.Objects[i], err = blob.UnpackValue(r); err != nil {
			return s, err
		}
	}
	return s, nil
}

func packDeleteRequest(w io.Writer, s DeleteRequestSlot) error {
	if err := blob.PackValue(w, s.Subject); err != nil {
		return err
	}
	return blob.PackValue(w, s.Predicate)
}

func unpackDeleteRequest(r io.Reader) (DeleteRequestSlot, error) {
	var s DeleteRequestSlot
	var err error
	if s.Subject, err = blob.UnpackValue(r); err != nil {
		return s, err
	}
	s.Predicate, err = blob.UnpackValue(r)
	return s, err
}

func packDeleteResponse(w io.Writer, s DeleteResponseSlot) error {
	if err := writeStatus(w, s.Status); err != nil {
		return err
	}
	if err := blob.PackRef(w, s.Subject); err != nil {
		return err
	}
	return blob.PackRef(w, s.Predicate)
}

func unpackDeleteResponse(r io.Reader) (DeleteResponseSlot, error) {
	var s DeleteResponseSlot
	var err error
	if s.Status, err = readStatus(r); err != nil {
		return s, err
	}
	if s.Subject, err = blob.UnpackRef(r); err != nil {
		return s, err
	}
	s.Predicate, err = blob.UnpackRef(r)
	return s, err
}

func packHistogramRequest(w io.Writer, s HistogramRequestSlot) error {
	var idb [4]byte
	binary.LittleEndian.PutUint32(idb[:], uint32(s.DatastoreID))
	if _, err := w.Write(idb[:]); err != nil {
		return err
	}
	return writeString(w, s.Name)
}

func unpackHistogramRequest(r io.Reader) (HistogramRequestSlot, error) {
	var s HistogramRequestSlot
	var idb [4]byte
	if _, err := io.ReadFull(r, idb[:]); err != nil {
		return s, fmt.Errorf("truncated histogram datastore id: %w", err)
	}
	s.DatastoreID = int32(binary.LittleEndian.Uint32(idb[:]))
	name, err := readString(r)
	s.Name = name
	return s, err
}

func packHistogramResponse(w io.Writer, s HistogramResponseSlot) error {
	if err := writeStatus(w, s.Status); err != nil {
		return err
	}
	if err := writeString(w, s.Histogram.Name); err != nil {
		return err
	}
	var nb [4]byte
	binary.LittleEndian.PutUint32(nb[:], uint32(len(s.Histogram.Buckets)))
	if _, err := w.Write(nb[:]); err != nil {
		return err
	}
	for i := range s.Histogram.Buckets {
		var fb [8]byte
		binary.LittleEndian.PutUint64(fb[:], math.Float64bits(s.Histogram.Buckets[i]))
		if _, err := w.Write(fb[:]); err != nil {
			return err
		}
		var cb [8]byte
		binary.LittleEndian.PutUint64(cb[:], s.Histogram.Counts[i])
		if _, err := w.Write(cb[:]); err != nil {
			return err
		}
	}
	var szb [8]byte
	binary.LittleEndian.PutUint64(szb[:], s.Histogram.Size)
	_, err := w.Write(szb[:])
	return err
}

func unpackHistogramResponse(r io.Reader) (HistogramResponseSlot, error) {
	var s HistogramResponseSlot
	var err error
	if s.Status, err = readStatus(r); err != nil {
		return s, err
	}
	if s.Histogram.Name, err = readString(r); err != nil {
		return s, err
	}
	var nb [4]byte
	if _, err := io.ReadFull(r, nb[:]); err != nil {
		return s, fmt.Errorf("truncated bucket count: %w", err)
	}
	n := binary.LittleEndian.Uint32(nb[:])
	s.Histogram.Buckets = make([]float64, n)
	s.Histogram.Counts = make([]uint64, n)
	for i := 0; i < int(n); i++ {
		var fb [8]byte
		if _, err := io.ReadFull(r, fb[:]); err != nil {
			return s, fmt.Errorf("truncated bucket: %w", err)
		}
		s.Histogram.Buckets[i] = math.Float64frombits(binary.LittleEndian.Uint64(fb[:]))
		var cb [8]byte
		if _, err := io.ReadFull(r, cb[:]); err != nil {
			return s, fmt.Errorf("truncated count: %w", err)
		}
		s.Histogram.Counts[i] = binary.LittleEndian.Uint64(cb[:])
	}
	var szb [8]byte
	if _, err := io.ReadFull(r, szb[:]); err != nil {
		return s, fmt.Errorf("truncated size: %w", err)
	}
	s.Histogram.Size = binary.LittleEndian.Uint64(szb[:])
	return s, nil
}
