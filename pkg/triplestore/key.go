// Package triplestore encodes (subject, predicate) pairs into the
// single totally-ordered byte key used by datastore engines, so that a
// lexicographic scan over keys is a scan over (subject, predicate)
// order: subject and predicate bytes are written first so primary
// ordering is unaffected, then
// their lengths are appended as fixed-width big-endian integers so
// length never interferes with the lexicographic comparison of the
// variable-length prefix.
package triplestore

import (
	"encoding/binary"
	"fmt"
)

// lenFieldSize is the width of each encoded length field: lengths
// are pointer-sized big-endian, which on every platform this module
// targets is 8 bytes.
const lenFieldSize = 8

// KeyLen returns the encoded key length for the given subject/predicate
// lengths, without allocating.
func KeyLen(subjectLen, predicateLen int) int {
	return subjectLen + predicateLen + 2*lenFieldSize
}

// Encode combines subject and predicate into a single ordered key:
// subject ∥ predicate ∥ be_u64(len(subject)) ∥ be_u64(len(predicate)).
func Encode(subject, predicate []byte) ([]byte, error) {
	if len(subject) == 0 || len(predicate) == 0 {
		return nil, fmt.Errorf("triplestore: subject and predicate must be non-empty")
	}
	key := make([]byte, 0, KeyLen(len(subject), len(predicate)))
	key = append(key, subject...)
	key = append(key, predicate...)
	var lenBuf [lenFieldSize]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(subject)))
	key = append(key, lenBuf[:]...)
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(predicate)))
	key = append(key, lenBuf[:]...)
	return key, nil
}

// Decode splits a key produced by Encode back into its subject and
// predicate. The returned slices alias key's backing array.
func Decode(key []byte) (subject, predicate []byte, err error) {
	if len(key) < 2*lenFieldSize {
		return nil, nil, fmt.Errorf("triplestore: key too short (%d bytes)", len(key))
	}
	subjectLen := binary.BigEndian.Uint64(key[len(key)-2*lenFieldSize : len(key)-lenFieldSize])
	predicateLen := binary.BigEndian.Uint64(key[len(key)-lenFieldSize:])
	if int(subjectLen+predicateLen+2*lenFieldSize) != len(key) {
		return nil, nil, fmt.Errorf("triplestore: key length fields (%d,%d) inconsistent with key size %d", subjectLen, predicateLen, len(key))
	}
	subject = key[:subjectLen]
	predicate = key[subjectLen : subjectLen+predicateLen]
	return subject, predicate, nil
}
