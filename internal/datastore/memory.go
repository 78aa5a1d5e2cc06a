package datastore

import (
	"bytes"
	"context"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/hpc-hxhim/hxhim-go/internal/herr"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
	"github.com/hpc-hxhim/hxhim-go/pkg/triplestore"
)

const memoryGetCacheSize = 4096

// Memory is the `in_memory` DATASTORE engine: an ordered in-process
// key/record map, with a bounded LRU in front of it to absorb
// repeated GETs for hot keys without re-decoding the stored record.
type Memory struct {
	mu      sync.RWMutex
	keys    [][]byte // sorted ascending by encoded key
	records map[string]Record

	getCache *lru.Cache[string, Record]
}

// NewMemory returns an empty Memory datastore.
func NewMemory() *Memory {
	c, _ := lru.New[string, Record](memoryGetCacheSize)
	return &Memory{
		records:  make(map[string]Record),
		getCache: c,
	}
}

func (m *Memory) insertKeyLocked(enc []byte) {
	i := sort.Search(len(m.keys), func(i int) bool { return bytes.Compare(m.keys[i], enc) >= 0 })
	if i < len(m.keys) && bytes.Equal(m.keys[i], enc) {
		return
	}
	m.keys = append(m.keys, nil)
	copy(m.keys[i+1:], m.keys[i:])
	m.keys[i] = enc
}

func (m *Memory) removeKeyLocked(enc []byte) {
	i := sort.Search(len(m.keys), func(i int) bool { return bytes.Compare(m.keys[i], enc) >= 0 })
	if i < len(m.keys) && bytes.Equal(m.keys[i], enc) {
		m.keys = append(m.keys[:i], m.keys[i+1:]...)
	}
}

// Put implements Datastore.
func (m *Memory) Put(_ context.Context, subject, predicate, object []byte, objectType uint8) error {
	enc, err := triplestore.Encode(subject, predicate)
	if err != nil {
		return herr.New(herr.Argument, "Memory.Put", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := string(enc)
	if _, exists := m.records[key]; !exists {
		m.insertKeyLocked(enc)
	}
	rec := Record{Subject: subject, Predicate: predicate, Object: object, ObjectType: objectType}
	m.records[key] = rec
	m.getCache.Add(key, rec)
	return nil
}

// Get implements Datastore.
func (m *Memory) Get(_ context.Context, subject, predicate []byte) ([]byte, uint8, bool, error) {
	enc, err := triplestore.Encode(subject, predicate)
	if err != nil {
		return nil, 0, false, herr.New(herr.Argument, "Memory.Get", err)
	}
	key := string(enc)

	if rec, ok := m.getCache.Get(key); ok {
		return rec.Object, rec.ObjectType, true, nil
	}

	m.mu.RLock()
	rec, ok := m.records[key]
	m.mu.RUnlock()
	if !ok {
		return nil, 0, false, nil
	}
	m.getCache.Add(key, rec)
	return rec.Object, rec.ObjectType, true, nil
}

// Delete implements Datastore.
func (m *Memory) Delete(_ context.Context, subject, predicate []byte) error {
	enc, err := triplestore.Encode(subject, predicate)
	if err != nil {
		return herr.New(herr.Argument, "Memory.Delete", err)
	}
	key := string(enc)
	m.mu.Lock()
	delete(m.records, key)
	m.removeKeyLocked(enc)
	m.mu.Unlock()
	m.getCache.Remove(key)
	return nil
}

// GetOp implements Datastore's directional scan.
func (m *Memory) GetOp(_ context.Context, subject, predicate []byte, kind opcode.GetOpKind, numRecs int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.keys) == 0 {
		return nil, nil
	}

	var start int
	var step int
	switch kind {
	case opcode.GetOpFIRST:
		start, step = 0, 1
	case opcode.GetOpLAST:
		start, step = len(m.keys)-1, -1
	case opcode.GetOpEQ, opcode.GetOpNEXT, opcode.GetOpPREV:
		enc, err := triplestore.Encode(subject, predicate)
		if err != nil {
			return nil, herr.New(herr.Argument, "Memory.GetOp", err)
		}
		idx := sort.Search(len(m.keys), func(i int) bool { return bytes.Compare(m.keys[i], enc) >= 0 })
		switch kind {
		case opcode.GetOpEQ:
			if idx >= len(m.keys) || !bytes.Equal(m.keys[idx], enc) {
				return nil, nil
			}
			start, step, numRecs = idx, 1, 1
		case opcode.GetOpNEXT:
			start, step = idx, 1
		case opcode.GetOpPREV:
			if idx < len(m.keys) && bytes.Equal(m.keys[idx], enc) {
				start = idx
			} else {
				start = idx - 1
			}
			step = -1
		}
	default:
		// GetOpINVALID and any unrecognized kind: still consumes one
		// slot but resolves to a failure at the caller.
		return nil, herr.New(herr.Argument, "Memory.GetOp", errInvalidGetOpKind)
	}

	var out []Record
	for i := start; i >= 0 && i < len(m.keys) && len(out) < numRecs; i += step {
		rec := m.records[string(m.keys[i])]
		out = append(out, rec)
	}
	return out, nil
}

// Sync is a no-op for the in-memory engine; there is nothing to flush.
func (m *Memory) Sync(_ context.Context) error { return nil }

// Close releases the datastore's memory.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = nil
	m.records = nil
	m.getCache.Purge()
	return nil
}
