// Package rangeserverloop implements the range-server event loop:
// unpack a request packet, dispatch each slot to the owning local
// datastore, pack a response preserving slot order, and hand it back
// to the transport. One Server instance runs per rank and is
// single-threaded; Handle is safe to call from a transport's own
// goroutine per inbound request because each call only touches the
// Datastores it owns, but the Server does not itself fan requests
// out across goroutines.
package rangeserverloop

import (
	"context"

	"github.com/hpc-hxhim/hxhim-go/internal/datastore"
	"github.com/hpc-hxhim/hxhim-go/internal/hash"
	"github.com/hpc-hxhim/hxhim-go/internal/herr"
	"github.com/hpc-hxhim/hxhim-go/internal/histreg"
	"github.com/hpc-hxhim/hxhim-go/internal/wire"
	"github.com/hpc-hxhim/hxhim-go/pkg/blob"
	"github.com/hpc-hxhim/hxhim-go/pkg/histogram"
	"github.com/hpc-hxhim/hxhim-go/pkg/log"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
)

// Server dispatches unpacked requests to the Datastores it owns. The
// same Hash function and Total/PerServer counts the client-side
// shuffle uses let Server recompute, for each slot, which of its
// local Datastores owns it.
type Server struct {
	Rank       int
	Datastores []datastore.Datastore
	Hash       hash.Func
	Total      int
	PerServer  int
	HistReg    *histreg.Registry
	MaxOps     uint32
}

// localIndex returns the Datastores index owning (subject,predicate).
func (s *Server) localIndex(subject, predicate []byte) (int, int, error) {
	id, err := s.Hash(subject, predicate, s.Total, nil)
	if err != nil {
		return 0, 0, err
	}
	if id < 0 || id >= s.Total {
		return 0, 0, herr.New(herr.Argument, "rangeserverloop.localIndex", errIDRange)
	}
	local := id % s.PerServer
	if local < 0 || local >= len(s.Datastores) {
		return 0, 0, herr.New(herr.Argument, "rangeserverloop.localIndex", errNoSuchDatastore)
	}
	return local, id, nil
}

// Handle is the transport.Handler entry point: unpack packed as a
// request, dispatch every slot, pack and return the response.
func (s *Server) Handle(ctx context.Context, packed []byte) ([]byte, error) {
	req, err := wire.Unpack(packed, s.MaxOps)
	if err != nil {
		return nil, err
	}

	resp := &wire.Message{Header: wire.Header{
		Direction: opcode.RESPONSE,
		Op:        req.Header.Op,
		Src:       req.Header.Dst,
		Dst:       req.Header.Src,
	}}

	switch req.Header.Op {
	case opcode.PUT:
		resp.PutResp = s.handlePuts(ctx, req.PutReq)
		resp.Header.Count = uint32(len(resp.PutResp))
	case opcode.GET:
		resp.GetResp = s.handleGets(ctx, req.GetReq)
		resp.Header.Count = uint32(len(resp.GetResp))
	case opcode.GETOP:
		resp.GetOpResp = s.handleGetOps(ctx, req.GetOpReq)
		resp.Header.Count = uint32(len(resp.GetOpResp))
	case opcode.DELETE:
		resp.DeleteResp = s.handleDeletes(ctx, req.DeleteReq)
		resp.Header.Count = uint32(len(resp.DeleteResp))
	case opcode.HISTOGRAM:
		resp.HistResp = s.handleHistograms(req.HistReq)
		resp.Header.Count = uint32(len(resp.HistResp))
	case opcode.SYNC:
		// One SYNC result per local datastore, independent of how many
		// (typically zero-payload) SYNC slots the client sent.
		resp.SyncResp = s.handleSync(ctx)
		resp.Header.Count = uint32(len(resp.SyncResp))
	default:
		return nil, herr.New(herr.Codec, "rangeserverloop.Handle", errUnknownOp)
	}

	return wire.Pack(resp)
}

func (s *Server) handlePuts(ctx context.Context, slots []wire.PutRequestSlot) []wire.PutResponseSlot {
	out := make([]wire.PutResponseSlot, len(slots))
	for i, slot := range slots {
		local, id, err := s.localIndex(slot.Subject.Data, slot.Predicate.Data)
		status := opcode.StatusSuccess
		if err == nil {
			err = s.Datastores[local].Put(ctx, slot.Subject.Data, slot.Predicate.Data, slot.Object.Data, uint8(slot.Object.Type))
		}
		if err != nil {
			status = opcode.StatusError
			log.Debugf("rangeserverloop: PUT failed: %v", err)
		} else if s.HistReg != nil {
			if terr := s.HistReg.TrackPut(id, string(slot.Predicate.Data), slot.Object.Data, slot.Object.Type); terr != nil {
				log.Debugf("rangeserverloop: histogram tracking failed: %v", terr)
			}
		}
		out[i] = wire.PutResponseSlot{
			Status:    status,
			Subject:   blob.NewRef(nil, slot.Subject.Type, 0),
			Predicate: blob.NewRef(nil, slot.Predicate.Type, 0),
		}
	}
	return out
}

func (s *Server) handleGets(ctx context.Context, slots []wire.GetRequestSlot) []wire.GetResponseSlot {
	out := make([]wire.GetResponseSlot, len(slots))
	for i, slot := range slots {
		local, _, err := s.localIndex(slot.Subject.Data, slot.Predicate.Data)
		var object []byte
		var objectType uint8
		var found bool
		if err == nil {
			object, objectType, found, err = s.Datastores[local].Get(ctx, slot.Subject.Data, slot.Predicate.Data)
		}
		status := opcode.StatusSuccess
		if err != nil || !found {
			status = opcode.StatusError
			if err != nil {
				log.Debugf("rangeserverloop: GET failed: %v", err)
			}
		}
		out[i] = wire.GetResponseSlot{
			Status:    status,
			Object:    blob.New(object, blob.Type(objectType)),
			Subject:   blob.NewRef(nil, slot.Subject.Type, 0),
			Predicate: blob.NewRef(nil, slot.Predicate.Type, 0),
		}
	}
	return out
}

func (s *Server) handleGetOps(ctx context.Context, slots []wire.GetOpRequestSlot) []wire.GetOpResponseSlot {
	out := make([]wire.GetOpResponseSlot, len(slots))
	for i, slot := range slots {
		status := opcode.StatusSuccess
		var recs []datastore.Record

		if slot.Kind == opcode.GetOpINVALID {
			// An invalid kind is still dispatched and consumed, not
			// rejected at enqueue time; it always resolves to
			// StatusError.
			status = opcode.StatusError
		} else {
			local, _, err := s.localIndex(slot.Subject.Data, slot.Predicate.Data)
			if err == nil {
				recs, err = s.Datastores[local].GetOp(ctx, slot.Subject.Data, slot.Predicate.Data, slot.Kind, int(slot.NumRecs))
			}
			if err != nil {
				status = opcode.StatusError
				log.Debugf("rangeserverloop: GETOP failed: %v", err)
			}
		}

		subjects := make([]*blob.Blob, len(recs))
		predicates := make([]*blob.Blob, len(recs))
		objects := make([]*blob.Blob, len(recs))
		for j, r := range recs {
			subjects[j] = blob.New(r.Subject, blob.TypeByte)
			predicates[j] = blob.New(r.Predicate, blob.TypeByte)
			objects[j] = blob.New(r.Object, blob.Type(r.ObjectType))
		}
		out[i] = wire.GetOpResponseSlot{
			Status:     status,
			NumRecs:    uint32(len(recs)),
			Subjects:   subjects,
			Predicates: predicates,
			Objects:    objects,
		}
	}
	return out
}

func (s *Server) handleDeletes(ctx context.Context, slots []wire.DeleteRequestSlot) []wire.DeleteResponseSlot {
	out := make([]wire.DeleteResponseSlot, len(slots))
	for i, slot := range slots {
		local, _, err := s.localIndex(slot.Subject.Data, slot.Predicate.Data)
		if err == nil {
			err = s.Datastores[local].Delete(ctx, slot.Subject.Data, slot.Predicate.Data)
		}
		status := opcode.StatusSuccess
		if err != nil {
			status = opcode.StatusError
			log.Debugf("rangeserverloop: DELETE failed: %v", err)
		}
		out[i] = wire.DeleteResponseSlot{
			Status:    status,
			Subject:   blob.NewRef(nil, slot.Subject.Type, 0),
			Predicate: blob.NewRef(nil, slot.Predicate.Type, 0),
		}
	}
	return out
}

func (s *Server) handleHistograms(slots []wire.HistogramRequestSlot) []wire.HistogramResponseSlot {
	out := make([]wire.HistogramResponseSlot, len(slots))
	for i, slot := range slots {
		status := opcode.StatusSuccess
		var snap histogram.Snapshot
		if s.HistReg == nil {
			status = opcode.StatusError
		} else if h, err := s.HistReg.Get(int(slot.DatastoreID), slot.Name); err != nil {
			status = opcode.StatusError
			log.Debugf("rangeserverloop: HISTOGRAM failed: %v", err)
		} else {
			snap = h.Get()
		}
		out[i] = wire.HistogramResponseSlot{Status: status, Histogram: snap}
	}
	return out
}

func (s *Server) handleSync(ctx context.Context) []wire.SyncResponseSlot {
	out := make([]wire.SyncResponseSlot, 0, len(s.Datastores))
	for _, ds := range s.Datastores {
		status := opcode.StatusSuccess
		if err := ds.Sync(ctx); err != nil {
			status = opcode.StatusError
			log.Debugf("rangeserverloop: SYNC failed: %v", err)
		}
		out = append(out, wire.SyncResponseSlot{Status: status})
	}
	return out
}
