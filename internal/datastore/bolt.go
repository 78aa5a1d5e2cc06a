package datastore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"

	"github.com/hpc-hxhim/hxhim-go/internal/herr"
	"github.com/hpc-hxhim/hxhim-go/pkg/opcode"
	"github.com/hpc-hxhim/hxhim-go/pkg/triplestore"
)

var triplesBucket = []byte("triples")

// Bolt is the `leveldb`/`rocksdb` DATASTORE engine: a bbolt B+tree
// keyed by triplestore.Encode(subject,predicate), giving the ordered
// cursor GETOP's NEXT/PREV/FIRST/LAST scans need without a cgo
// dependency on a real LevelDB/RocksDB binding (see DESIGN.md).
type Bolt struct {
	db   *bolt.DB
	path string
}

// OpenBolt opens (creating if needed) the bbolt file
// datastore-<id>.db backing one datastore id inside directory name,
// creating the directory if needed. The directory path is the
// caller's concern (hxhim's Open builds it from the persist prefix,
// the id and the persist postfix); OpenBolt just needs a directory and
// an id.
func OpenBolt(name string, id int) (*Bolt, error) {
	if err := os.MkdirAll(name, 0o755); err != nil {
		return nil, herr.New(herr.Config, "datastore.OpenBolt", err)
	}
	path := filepath.Join(name, fmt.Sprintf("datastore-%d.db", id))
	db, err := bolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, herr.New(herr.Config, "datastore.OpenBolt", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(triplesBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, herr.New(herr.Config, "datastore.OpenBolt", err)
	}
	return &Bolt{db: db, path: path}, nil
}

func encodeValue(object []byte, objectType uint8) []byte {
	v := make([]byte, 1+len(object))
	v[0] = objectType
	copy(v[1:], object)
	return v
}

func decodeValue(v []byte) (object []byte, objectType uint8) {
	if len(v) == 0 {
		return nil, 0
	}
	objectType = v[0]
	if len(v) > 1 {
		object = append([]byte(nil), v[1:]...)
	}
	return object, objectType
}

// Put implements Datastore.
func (b *Bolt) Put(_ context.Context, subject, predicate, object []byte, objectType uint8) error {
	key, err := triplestore.Encode(subject, predicate)
	if err != nil {
		return herr.New(herr.Argument, "Bolt.Put", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(triplesBucket).Put(key, encodeValue(object, objectType))
	})
	if err != nil {
		return herr.New(herr.Datastore, "Bolt.Put", err)
	}
	return nil
}

// Get implements Datastore.
func (b *Bolt) Get(_ context.Context, subject, predicate []byte) ([]byte, uint8, bool, error) {
	key, err := triplestore.Encode(subject, predicate)
	if err != nil {
		return nil, 0, false, herr.New(herr.Argument, "Bolt.Get", err)
	}
	var object []byte
	var objectType uint8
	var found bool
	err = b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(triplesBucket).Get(key)
		if v == nil {
			return nil
		}
		found = true
		object, objectType = decodeValue(v)
		return nil
	})
	if err != nil {
		return nil, 0, false, herr.New(herr.Datastore, "Bolt.Get", err)
	}
	return object, objectType, found, nil
}

// Delete implements Datastore.
func (b *Bolt) Delete(_ context.Context, subject, predicate []byte) error {
	key, err := triplestore.Encode(subject, predicate)
	if err != nil {
		return herr.New(herr.Argument, "Bolt.Delete", err)
	}
	err = b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(triplesBucket).Delete(key)
	})
	if err != nil {
		return herr.New(herr.Datastore, "Bolt.Delete", err)
	}
	return nil
}

// GetOp implements Datastore's directional scan, using bbolt's Cursor
// directly over the (subject,predicate)-ordered keyspace.
func (b *Bolt) GetOp(_ context.Context, subject, predicate []byte, kind opcode.GetOpKind, numRecs int) ([]Record, error) {
	var out []Record
	err := b.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(triplesBucket).Cursor()

		emit := func(k, v []byte) error {
			s, p, err := triplestore.Decode(k)
			if err != nil {
				return err
			}
			object, objectType := decodeValue(v)
			out = append(out, Record{
				Subject:    append([]byte(nil), s...),
				Predicate:  append([]byte(nil), p...),
				Object:     object,
				ObjectType: objectType,
			})
			return nil
		}

		switch kind {
		case opcode.GetOpFIRST:
			for k, v := c.First(); k != nil && len(out) < numRecs; k, v = c.Next() {
				if err := emit(k, v); err != nil {
					return err
				}
			}
		case opcode.GetOpLAST:
			for k, v := c.Last(); k != nil && len(out) < numRecs; k, v = c.Prev() {
				if err := emit(k, v); err != nil {
					return err
				}
			}
		case opcode.GetOpEQ, opcode.GetOpNEXT, opcode.GetOpPREV:
			key, err := triplestore.Encode(subject, predicate)
			if err != nil {
				return err
			}
			k, v := c.Seek(key)
			switch kind {
			case opcode.GetOpEQ:
				if k != nil && bytesEqual(k, key) {
					return emit(k, v)
				}
				return nil
			case opcode.GetOpNEXT:
				for ; k != nil && len(out) < numRecs; k, v = c.Next() {
					if err := emit(k, v); err != nil {
						return err
					}
				}
			case opcode.GetOpPREV:
				if k == nil || !bytesEqual(k, key) {
					k, v = c.Prev()
				}
				for ; k != nil && len(out) < numRecs; k, v = c.Prev() {
					if err := emit(k, v); err != nil {
						return err
					}
				}
			}
		default:
			return errInvalidGetOpKind
		}
		return nil
	})
	if err != nil {
		if err == errInvalidGetOpKind {
			return nil, herr.New(herr.Argument, "Bolt.GetOp", err)
		}
		return nil, herr.New(herr.Datastore, "Bolt.GetOp", err)
	}
	return out, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Sync implements Datastore: bbolt fsyncs on every committed
// transaction, so Sync only needs to force a no-op write transaction
// to guarantee everything prior has been flushed to disk.
func (b *Bolt) Sync(_ context.Context) error {
	err := b.db.Update(func(tx *bolt.Tx) error { return nil })
	if err != nil {
		return herr.New(herr.Datastore, "Bolt.Sync", err)
	}
	return nil
}

// Close implements Datastore.
func (b *Bolt) Close() error {
	if err := b.db.Close(); err != nil {
		return herr.New(herr.Datastore, "Bolt.Close", err)
	}
	return nil
}
