package index

import (
	"bytes"
	"sort"

	"github.com/rishavbhowmik/xdb/kvtuple"
	"github.com/rishavbhowmik/xdb/xdberr"
)

// uniqueIndex backs UniqueBTreeIndex and UniqueHashIndex: each live key
// binds to exactly one value. The two variants behave identically in
// storage; they differ from each other only in the vocabulary callers use,
// matching the four named index types of the specification.
type uniqueIndex struct {
	values map[string][]byte
}

func newUniqueIndex() *uniqueIndex {
	return &uniqueIndex{values: map[string][]byte{}}
}

// Get returns key's value, if bound.
func (u *uniqueIndex) Get(key []byte) ([]byte, bool) {
	v, ok := u.values[string(key)]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Exists reports whether key is bound to value.
func (u *uniqueIndex) Exists(key, value []byte) bool {
	v, ok := u.values[string(key)]
	return ok && bytes.Equal(v, value)
}

// Set binds key to value. If overwrite is false and key is already bound,
// it fails with ErrKeyOccupied and leaves the index unchanged.
func (u *uniqueIndex) Set(key, value []byte, overwrite bool) ([]byte, error) {
	value = normalizeValue(value)
	k := string(key)
	if _, occupied := u.values[k]; occupied && !overwrite {
		return nil, xdberr.New(xdberr.Happens, "set: key occupied", ErrKeyOccupied)
	}
	u.values[k] = append([]byte{}, value...)
	b, _ := kvtuple.Encode(kvtuple.KindInsert, key, value)
	return b, nil
}

// Delete unbinds key, failing with ErrKeyNotFound if absent.
func (u *uniqueIndex) Delete(key []byte) ([]byte, error) {
	k := string(key)
	if _, ok := u.values[k]; !ok {
		return nil, xdberr.New(xdberr.Happens, "delete: key not found", ErrKeyNotFound)
	}
	delete(u.values, k)
	b, _ := kvtuple.Encode(kvtuple.KindDelete, key, nil)
	return b, nil
}

// ToBytes emits encode(INSERT, key, value) for every bound key, sorted
// ascending by key.
func (u *uniqueIndex) ToBytes() []byte {
	keys := make([]string, 0, len(u.values))
	for k := range u.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []byte
	for _, k := range keys {
		b, _ := kvtuple.Encode(kvtuple.KindInsert, []byte(k), u.values[k])
		out = append(out, b...)
	}
	return out
}

// FromBytes replays a tuple stream into u, which must be empty. An INSERT
// acts as Set(key, value, overwrite=true) during replay, since the log is a
// linearization of already-accepted mutations. A unique index's own log
// never contains REMOVE; encountering one is malformed.
func (u *uniqueIndex) FromBytes(b []byte) error {
	tuples, err := kvtuple.DecodeAll(b)
	if err != nil {
		plog.Errorf("from_bytes: malformed stream: %s", err)
		return xdberr.New(xdberr.Critical, "from_bytes malformed stream", ErrMalformedLogRecord)
	}
	for _, t := range tuples {
		switch t.Kind {
		case kvtuple.KindInsert:
			u.values[string(t.Key)] = append([]byte{}, t.Value...)
		case kvtuple.KindDelete:
			delete(u.values, string(t.Key))
		default:
			return xdberr.New(xdberr.Critical, "from_bytes unexpected REMOVE for unique index", ErrMalformedLogRecord)
		}
	}
	return nil
}

// UniqueBTreeIndex binds each key to one value, named for parity with the
// ordered multi-value BTreeIndex; uniqueness makes value ordering moot.
type UniqueBTreeIndex struct{ *uniqueIndex }

// NewUniqueBTreeIndex returns an empty UniqueBTreeIndex.
func NewUniqueBTreeIndex() *UniqueBTreeIndex {
	return &UniqueBTreeIndex{uniqueIndex: newUniqueIndex()}
}

// UniqueBTreeIndexFromBytes reconstructs a UniqueBTreeIndex by replaying a
// tuple stream.
func UniqueBTreeIndexFromBytes(b []byte) (*UniqueBTreeIndex, error) {
	idx := NewUniqueBTreeIndex()
	if err := idx.FromBytes(b); err != nil {
		return nil, err
	}
	return idx, nil
}

// UniqueHashIndex binds each key to one value, named for parity with
// HashIndex.
type UniqueHashIndex struct{ *uniqueIndex }

// NewUniqueHashIndex returns an empty UniqueHashIndex.
func NewUniqueHashIndex() *UniqueHashIndex {
	return &UniqueHashIndex{uniqueIndex: newUniqueIndex()}
}

// UniqueHashIndexFromBytes reconstructs a UniqueHashIndex by replaying a
// tuple stream.
func UniqueHashIndexFromBytes(b []byte) (*UniqueHashIndex, error) {
	idx := NewUniqueHashIndex()
	if err := idx.FromBytes(b); err != nil {
		return nil, err
	}
	return idx, nil
}
