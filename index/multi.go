// Package index implements the four index variants that sit atop the
// KV-Tuple log: BTreeIndex and HashIndex hold a set of values per key;
// UniqueBTreeIndex and UniqueHashIndex bind each key to a single value.
// None of the four persist directly — each mutation returns the exact
// bytes a caller appends to a durable log, and an index is reconstructed
// by replaying that log with from_bytes.
package index

import (
	"bytes"
	"sort"

	"github.com/rishavbhowmik/xdb/kvtuple"
	"github.com/rishavbhowmik/xdb/xdberr"
	"github.com/rishavbhowmik/xdb/xdblog"
)

var plog = xdblog.NewPackageLogger("index")

// multiIndex backs BTreeIndex and HashIndex. ordered only affects the value
// order within a key's set; to_bytes always emits keys in sorted order so
// serialization is reproducible even for the hash variant, where the
// specification only requires each pair appear once.
type multiIndex struct {
	ordered bool
	values  map[string][][]byte
}

func newMultiIndex(ordered bool) *multiIndex {
	return &multiIndex{ordered: ordered, values: map[string][][]byte{}}
}

func (m *multiIndex) sortValues(vals [][]byte) {
	if !m.ordered {
		return
	}
	sort.Slice(vals, func(i, j int) bool { return bytes.Compare(vals[i], vals[j]) < 0 })
}

// Get returns every value bound to key, empty if absent.
func (m *multiIndex) Get(key []byte) [][]byte {
	vals, ok := m.values[string(key)]
	if !ok {
		return [][]byte{}
	}
	out := make([][]byte, len(vals))
	copy(out, vals)
	return out
}

// Exists reports whether (key, value) is currently in the index.
func (m *multiIndex) Exists(key, value []byte) bool {
	for _, v := range m.values[string(key)] {
		if bytes.Equal(v, value) {
			return true
		}
	}
	return false
}

// normalizeValue maps a nil value to an empty, non-nil slice. A caller may
// legitimately pass nil to mean "no value bytes"; kvtuple.Encode requires a
// non-nil value for INSERT/REMOVE and a zero-length value is otherwise
// indistinguishable from nil, so every encode call normalizes first rather
// than letting Encode's error go unchecked.
func normalizeValue(value []byte) []byte {
	if value == nil {
		return []byte{}
	}
	return value
}

func (m *multiIndex) insertValue(key, value []byte) {
	k := string(key)
	for _, v := range m.values[k] {
		if bytes.Equal(v, value) {
			return
		}
	}
	vals := append(m.values[k], append([]byte{}, value...))
	m.sortValues(vals)
	m.values[k] = vals
}

// Insert ensures (key, value) is in the set and returns the bytes to
// append to the log. Inserting an already-present pair is idempotent.
func (m *multiIndex) Insert(key, value []byte) []byte {
	value = normalizeValue(value)
	m.insertValue(key, value)
	b, _ := kvtuple.Encode(kvtuple.KindInsert, key, value)
	return b
}

func (m *multiIndex) removeValue(key, value []byte) bool {
	k := string(key)
	vals, ok := m.values[k]
	if !ok {
		return false
	}
	idx := -1
	for i, v := range vals {
		if bytes.Equal(v, value) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}
	vals = append(vals[:idx:idx], vals[idx+1:]...)
	if len(vals) == 0 {
		delete(m.values, k)
	} else {
		m.values[k] = vals
	}
	return true
}

// Remove drops value from key's set. If the set becomes empty the key is
// erased and the returned bytes are a full-key DELETE; otherwise they are
// a REMOVE naming just that value.
func (m *multiIndex) Remove(key, value []byte) ([]byte, error) {
	value = normalizeValue(value)
	k := string(key)
	vals, ok := m.values[k]
	if !ok {
		return nil, xdberr.New(xdberr.Happens, "remove: key not found", ErrKeyNotFound)
	}
	found := false
	for _, v := range vals {
		if bytes.Equal(v, value) {
			found = true
			break
		}
	}
	if !found {
		return nil, xdberr.New(xdberr.Happens, "remove: value not found", ErrValueNotFound)
	}
	m.removeValue(key, value)
	if _, stillPresent := m.values[k]; !stillPresent {
		b, _ := kvtuple.Encode(kvtuple.KindDelete, key, nil)
		return b, nil
	}
	b, _ := kvtuple.Encode(kvtuple.KindRemove, key, value)
	return b, nil
}

// Delete removes key entirely, failing with ErrKeyNotFound if absent.
func (m *multiIndex) Delete(key []byte) ([]byte, error) {
	k := string(key)
	if _, ok := m.values[k]; !ok {
		return nil, xdberr.New(xdberr.Happens, "delete: key not found", ErrKeyNotFound)
	}
	delete(m.values, k)
	b, _ := kvtuple.Encode(kvtuple.KindDelete, key, nil)
	return b, nil
}

// ToBytes emits encode(INSERT, key, value) for every live pair, keys sorted
// ascending and, within a key, values sorted ascending.
func (m *multiIndex) ToBytes() []byte {
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []byte
	for _, k := range keys {
		vals := append([][]byte{}, m.values[k]...)
		sort.Slice(vals, func(i, j int) bool { return bytes.Compare(vals[i], vals[j]) < 0 })
		for _, v := range vals {
			b, _ := kvtuple.Encode(kvtuple.KindInsert, []byte(k), v)
			out = append(out, b...)
		}
	}
	return out
}

// FromBytes replays a tuple stream into m, which must be empty.
func (m *multiIndex) FromBytes(b []byte) error {
	tuples, err := kvtuple.DecodeAll(b)
	if err != nil {
		plog.Errorf("from_bytes: malformed stream: %s", err)
		return xdberr.New(xdberr.Critical, "from_bytes malformed stream", ErrMalformedLogRecord)
	}
	for _, t := range tuples {
		switch t.Kind {
		case kvtuple.KindInsert:
			m.insertValue(t.Key, t.Value)
		case kvtuple.KindRemove:
			// A REMOVE for an absent pair is a silent no-op during replay:
			// a later DELETE in the log may already subsume it.
			m.removeValue(t.Key, t.Value)
		case kvtuple.KindDelete:
			delete(m.values, string(t.Key))
		default:
			return xdberr.New(xdberr.Critical, "from_bytes unrecognized tuple kind", ErrMalformedLogRecord)
		}
	}
	return nil
}

// BTreeIndex is the ordered multi-value index: Get returns values in
// ascending byte order.
type BTreeIndex struct{ *multiIndex }

// NewBTreeIndex returns an empty BTreeIndex.
func NewBTreeIndex() *BTreeIndex {
	return &BTreeIndex{multiIndex: newMultiIndex(true)}
}

// BTreeIndexFromBytes reconstructs a BTreeIndex by replaying a tuple stream.
func BTreeIndexFromBytes(b []byte) (*BTreeIndex, error) {
	idx := NewBTreeIndex()
	if err := idx.FromBytes(b); err != nil {
		return nil, err
	}
	return idx, nil
}

// HashIndex is the unordered multi-value index: Get's order is unspecified.
type HashIndex struct{ *multiIndex }

// NewHashIndex returns an empty HashIndex.
func NewHashIndex() *HashIndex {
	return &HashIndex{multiIndex: newMultiIndex(false)}
}

// HashIndexFromBytes reconstructs a HashIndex by replaying a tuple stream.
func HashIndexFromBytes(b []byte) (*HashIndex, error) {
	idx := NewHashIndex()
	if err := idx.FromBytes(b); err != nil {
		return nil, err
	}
	return idx, nil
}
