// Package kvtuple implements the KV-Tuple codec: the atomic unit of the
// index replay log. A tuple is one of DELETE, INSERT, or REMOVE, encoded as
// a 1 byte op tag followed by little-endian length-prefixed key/value
// fields. The codec is the sole wire protocol the core exposes beyond
// in-memory calls, so every integer field is byte-exact to enable
// cross-language interop.
package kvtuple

import (
	"encoding/binary"
	"errors"

	"github.com/rishavbhowmik/xdb/xdberr"
	"github.com/rishavbhowmik/xdb/xdblog"
)

var plog = xdblog.NewPackageLogger("kvtuple")

// ErrInvalidOp is returned when a tuple's op byte is not one of
// KindDelete, KindInsert, or KindRemove.
var ErrInvalidOp = errors.New("kvtuple: invalid op byte")

// ErrShortRead is returned when a cursor runs out of bytes before a field
// it expects to find is fully read.
var ErrShortRead = errors.New("kvtuple: short read")

// ErrValueRequired is returned by Encode when op is Insert or Remove and
// value is nil.
var ErrValueRequired = errors.New("kvtuple: insert/remove require a value")

// ErrValueForbidden is returned by Encode when op is Delete and value is
// non-nil.
var ErrValueForbidden = errors.New("kvtuple: delete forbids a value")

// Kind is the tuple's op tag.
type Kind byte

const (
	KindDelete Kind = 0
	KindInsert Kind = 1
	KindRemove Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindDelete:
		return "DELETE"
	case KindInsert:
		return "INSERT"
	case KindRemove:
		return "REMOVE"
	default:
		return "UNKNOWN"
	}
}

func (k Kind) valid() bool {
	return k == KindDelete || k == KindInsert || k == KindRemove
}

// Tuple is one KV-Tuple record. Value is nil for a Delete tuple and always
// present (possibly zero length) for Insert and Remove, which is
// unrepresentable as a malformed state once constructed via Encode/Decode.
type Tuple struct {
	Kind  Kind
	Key   []byte
	Value []byte
}

const (
	opSize  = 1
	lenSize = 4
)

// Encode deterministically serializes a tuple. Insert and Remove require a
// non-nil value; Delete forbids one.
func Encode(kind Kind, key, value []byte) ([]byte, error) {
	switch kind {
	case KindDelete:
		if value != nil {
			return nil, xdberr.New(xdberr.Unexpected, "encode delete with value", ErrValueForbidden)
		}
	case KindInsert, KindRemove:
		if value == nil {
			return nil, xdberr.New(xdberr.Unexpected, "encode insert/remove without value", ErrValueRequired)
		}
	default:
		return nil, xdberr.New(xdberr.Unexpected, "encode invalid op", ErrInvalidOp)
	}

	size := opSize + lenSize + len(key)
	if kind != KindDelete {
		size += lenSize + len(value)
	}
	buf := make([]byte, size)
	buf[0] = byte(kind)
	binary.LittleEndian.PutUint32(buf[opSize:opSize+lenSize], uint32(len(key)))
	offset := opSize + lenSize
	copy(buf[offset:offset+len(key)], key)
	offset += len(key)
	if kind != KindDelete {
		binary.LittleEndian.PutUint32(buf[offset:offset+lenSize], uint32(len(value)))
		offset += lenSize
		copy(buf[offset:offset+len(value)], value)
	}
	return buf, nil
}

// Cursor is a read position over a byte slice shared by DecodeOne calls so
// a caller can decode a stream tuple by tuple without re-slicing.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor wraps b for sequential tuple decoding.
func NewCursor(b []byte) *Cursor {
	return &Cursor{buf: b}
}

// Remaining reports how many bytes are left to read.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.pos
}

func (c *Cursor) take(n int) ([]byte, error) {
	if c.Remaining() < n {
		return nil, xdberr.New(xdberr.Critical, "cursor ran out of bytes", ErrShortRead)
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// DecodeOne reads one record from the cursor and advances it. It fails with
// ErrInvalidOp if the op byte is not recognized, and with ErrShortRead if
// the cursor runs out of bytes mid-record.
func DecodeOne(c *Cursor) (Tuple, error) {
	opB, err := c.take(opSize)
	if err != nil {
		return Tuple{}, err
	}
	kind := Kind(opB[0])
	if !kind.valid() {
		plog.Warningf("decode: invalid op byte %d", opB[0])
		return Tuple{}, xdberr.New(xdberr.Unexpected, "decode invalid op", ErrInvalidOp)
	}

	keyLenB, err := c.take(lenSize)
	if err != nil {
		return Tuple{}, err
	}
	keyLen := binary.LittleEndian.Uint32(keyLenB)
	key, err := c.take(int(keyLen))
	if err != nil {
		return Tuple{}, err
	}
	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	if kind == KindDelete {
		return Tuple{Kind: kind, Key: keyCopy}, nil
	}

	valLenB, err := c.take(lenSize)
	if err != nil {
		return Tuple{}, err
	}
	valLen := binary.LittleEndian.Uint32(valLenB)
	val, err := c.take(int(valLen))
	if err != nil {
		return Tuple{}, err
	}
	valCopy := make([]byte, len(val))
	copy(valCopy, val)

	return Tuple{Kind: kind, Key: keyCopy, Value: valCopy}, nil
}

// DecodeAll repeatedly calls DecodeOne until the input is exhausted. The
// input must end exactly on a tuple boundary.
func DecodeAll(b []byte) ([]Tuple, error) {
	c := NewCursor(b)
	var tuples []Tuple
	for c.Remaining() > 0 {
		t, err := DecodeOne(c)
		if err != nil {
			return nil, err
		}
		tuples = append(tuples, t)
	}
	return tuples, nil
}
