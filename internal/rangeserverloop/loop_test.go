package rangeserverloop

import (
	"context"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpc-hxhim/hxhim-go/internal/config"
	"github.com/hpc-hxhim/hxhim-go/internal/datastore"
	"github.com/hpc-hxhim/hxhim-go/internal/hash"
	"github.com/hpc-hxhim/hxhim-go/internal/histreg"
	"github.com/hpc-hxhim/hxhim-go/internal/wire"
	"github.com/hpc-hxhim/hxhim-go/pkg/blob"
	"github.com/hpc-hxhim/hxhim-go/pkg/histogram"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

func doubleBlob(v float64) *blob.Blob {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(v))
	return blob.New(buf, blob.TypeDouble)
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.HistogramFirstN = 0
	cfg.HistogramTrackPredicates = true
	reg, err := histreg.New(cfg, histogram.FixedBucketCount)
	require.NoError(t, err)
	return &Server{
		Rank:       0,
		Datastores: []datastore.Datastore{datastore.NewMemory()},
		Hash:       hash.Identity,
		Total:      1,
		PerServer:  1,
		HistReg:    reg,
		MaxOps:     1024,
	}
}

func TestHandlePutThenGet(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	putReq := &wire.Message{
		Header: wire.Header{Direction: opcode.REQUEST, Op: opcode.PUT, Src: 1, Dst: 0, Count: 1},
		PutReq: []wire.PutRequestSlot{{
			Subject:   blob.New([]byte("s"), blob.TypeByte),
			Predicate: blob.New([]byte("p"), blob.TypeByte),
			Object:    doubleBlob(6.0),
		}},
	}
	packed, err := wire.Pack(putReq)
	require.NoError(t, err)

	respPacked, err := s.Handle(ctx, packed)
	require.NoError(t, err)
	resp, err := wire.Unpack(respPacked, 1024)
	require.NoError(t, err)
	require.Len(t, resp.PutResp, 1)
	require.Equal(t, opcode.StatusSuccess, resp.PutResp[0].Status)

	getReq := &wire.Message{
		Header: wire.Header{Direction: opcode.REQUEST, Op: opcode.GET, Src: 1, Dst: 0, Count: 1},
		GetReq: []wire.GetRequestSlot{{
			Subject:   blob.New([]byte("s"), blob.TypeByte),
			Predicate: blob.New([]byte("p"), blob.TypeByte),
		}},
	}
	packed, err = wire.Pack(getReq)
	require.NoError(t, err)
	respPacked, err = s.Handle(ctx, packed)
	require.NoError(t, err)
	resp, err = wire.Unpack(respPacked, 1024)
	require.NoError(t, err)
	require.Len(t, resp.GetResp, 1)
	require.Equal(t, opcode.StatusSuccess, resp.GetResp[0].Status)
	gotBits := binary.LittleEndian.Uint64(resp.GetResp[0].Object.Data)
	require.InDelta(t, 6.0, math.Float64frombits(gotBits), 1e-9)
}

func TestHandleGetMissing(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	getReq := &wire.Message{
		Header: wire.Header{Direction: opcode.REQUEST, Op: opcode.GET, Src: 1, Dst: 0, Count: 1},
		GetReq: []wire.GetRequestSlot{{
			Subject:   blob.New([]byte("nope"), blob.TypeByte),
			Predicate: blob.New([]byte("nope"), blob.TypeByte),
		}},
	}
	packed, err := wire.Pack(getReq)
	require.NoError(t, err)
	respPacked, err := s.Handle(ctx, packed)
	require.NoError(t, err)
	resp, err := wire.Unpack(respPacked, 1024)
	require.NoError(t, err)
	require.Equal(t, opcode.StatusError, resp.GetResp[0].Status)
}

func TestHandleGetOpInvalidStillConsumesSlot(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	req := &wire.Message{
		Header: wire.Header{Direction: opcode.REQUEST, Op: opcode.GETOP, Src: 1, Dst: 0, Count: 1},
		GetOpReq: []wire.GetOpRequestSlot{{
			Subject:   blob.New([]byte("s"), blob.TypeByte),
			Predicate: blob.New([]byte("p"), blob.TypeByte),
			NumRecs:   1,
			Kind:      opcode.GetOpINVALID,
		}},
	}
	packed, err := wire.Pack(req)
	require.NoError(t, err)
	respPacked, err := s.Handle(ctx, packed)
	require.NoError(t, err)
	resp, err := wire.Unpack(respPacked, 1024)
	require.NoError(t, err)
	require.Len(t, resp.GetOpResp, 1)
	require.Equal(t, opcode.StatusError, resp.GetOpResp[0].Status)
	require.Zero(t, resp.GetOpResp[0].NumRecs)
}

func TestHandleGetOpFirstOrder(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		pred := doubleBlob(float64(i))
		putReq := &wire.Message{
			Header: wire.Header{Direction: opcode.REQUEST, Op: opcode.PUT, Src: 1, Dst: 0, Count: 1},
			PutReq: []wire.PutRequestSlot{{
				Subject:   blob.New([]byte("0"), blob.TypeByte),
				Predicate: blob.New(pred.Data, blob.TypeDouble),
				Object:    doubleBlob(float64(-i)),
			}},
		}
		packed, err := wire.Pack(putReq)
		require.NoError(t, err)
		_, err = s.Handle(ctx, packed)
		require.NoError(t, err)
	}

	req := &wire.Message{
		Header: wire.Header{Direction: opcode.REQUEST, Op: opcode.GETOP, Src: 1, Dst: 0, Count: 1},
		GetOpReq: []wire.GetOpRequestSlot{{
			Subject:   blob.New([]byte(""), blob.TypeByte),
			Predicate: blob.New([]byte(""), blob.TypeByte),
			NumRecs:   10,
			Kind:      opcode.GetOpFIRST,
		}},
	}
	packed, err := wire.Pack(req)
	require.NoError(t, err)
	respPacked, err := s.Handle(ctx, packed)
	require.NoError(t, err)
	resp, err := wire.Unpack(respPacked, 1024)
	require.NoError(t, err)
	require.EqualValues(t, 10, resp.GetOpResp[0].NumRecs)
}

func TestHandleHistogram(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		putReq := &wire.Message{
			Header: wire.Header{Direction: opcode.REQUEST, Op: opcode.PUT, Src: 1, Dst: 0, Count: 1},
			PutReq: []wire.PutRequestSlot{{
				Subject:   blob.New([]byte("0"), blob.TypeByte),
				Predicate: blob.New([]byte("p"), blob.TypeByte),
				Object:    doubleBlob(float64(i)),
			}},
		}
		packed, err := wire.Pack(putReq)
		require.NoError(t, err)
		_, err = s.Handle(ctx, packed)
		require.NoError(t, err)
	}

	histReq := &wire.Message{
		Header: wire.Header{Direction: opcode.REQUEST, Op: opcode.HISTOGRAM, Src: 1, Dst: 0, Count: 1},
		HistReq: []wire.HistogramRequestSlot{{DatastoreID: 0, Name: "p"}},
	}
	packed, err := wire.Pack(histReq)
	require.NoError(t, err)
	respPacked, err := s.Handle(ctx, packed)
	require.NoError(t, err)
	resp, err := wire.Unpack(respPacked, 1024)
	require.NoError(t, err)
	require.Equal(t, opcode.StatusSuccess, resp.HistResp[0].Status)
	require.EqualValues(t, 10, resp.HistResp[0].Histogram.Size)
	require.Len(t, resp.HistResp[0].Histogram.Buckets, 1)
}

func TestHandleSync(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	req := &wire.Message{
		Header:  wire.Header{Direction: opcode.REQUEST, Op: opcode.SYNC, Src: 1, Dst: 0, Count: 0},
		SyncReq: nil,
	}
	packed, err := wire.Pack(req)
	require.NoError(t, err)
	respPacked, err := s.Handle(ctx, packed)
	require.NoError(t, err)
	resp, err := wire.Unpack(respPacked, 1024)
	require.NoError(t, err)
	require.Len(t, resp.SyncResp, 1)
	require.Equal(t, opcode.StatusSuccess, resp.SyncResp[0].Status)
}
