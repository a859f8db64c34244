package kvtuple

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInsertRoundTrip is end-to-end scenario 1 from the specification.
func TestInsertRoundTrip(t *testing.T) {
	key := []byte{0x10, 0x20, 0x30, 0x40}
	value := []byte{0x15, 0x25, 0x35, 0x45, 0x55, 0x65}
	want := []byte{
		0x01, 0x04, 0x00, 0x00, 0x00, 0x10, 0x20, 0x30, 0x40,
		0x06, 0x00, 0x00, 0x00, 0x15, 0x25, 0x35, 0x45, 0x55, 0x65,
	}

	got, err := Encode(KindInsert, key, value)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	decoded, err := DecodeOne(NewCursor(got))
	require.NoError(t, err)
	assert.Equal(t, KindInsert, decoded.Kind)
	assert.Equal(t, key, decoded.Key)
	assert.Equal(t, value, decoded.Value)
}

func TestDeleteHasNoValue(t *testing.T) {
	b, err := Encode(KindDelete, []byte("k"), nil)
	require.NoError(t, err)

	tup, err := DecodeOne(NewCursor(b))
	require.NoError(t, err)
	assert.Equal(t, KindDelete, tup.Kind)
	assert.Nil(t, tup.Value)
}

func TestEncodeRejectsMismatchedValue(t *testing.T) {
	t.Run("delete with value", func(t *testing.T) {
		_, err := Encode(KindDelete, []byte("k"), []byte("v"))
		assert.ErrorIs(t, err, ErrValueForbidden)
	})
	t.Run("insert without value", func(t *testing.T) {
		_, err := Encode(KindInsert, []byte("k"), nil)
		assert.ErrorIs(t, err, ErrValueRequired)
	})
	t.Run("remove without value", func(t *testing.T) {
		_, err := Encode(KindRemove, []byte("k"), nil)
		assert.ErrorIs(t, err, ErrValueRequired)
	})
}

func TestDecodeInvalidOp(t *testing.T) {
	b := []byte{3, 0, 0, 0, 0}
	_, err := DecodeOne(NewCursor(b))
	assert.ErrorIs(t, err, ErrInvalidOp)
}

func TestDecodeShortRead(t *testing.T) {
	cases := [][]byte{
		{},
		{1},
		{1, 4, 0, 0},
		{1, 1, 0, 0, 0, 'k'},
		{1, 1, 0, 0, 0, 'k', 2, 0, 0},
	}
	for i, b := range cases {
		_, err := DecodeOne(NewCursor(b))
		assert.ErrorIsf(t, err, ErrShortRead, "case %d", i)
	}
}

func TestDecodeAll(t *testing.T) {
	b1, _ := Encode(KindInsert, []byte("k1"), []byte("v1"))
	b2, _ := Encode(KindDelete, []byte("k2"), nil)
	b3, _ := Encode(KindRemove, []byte("k3"), []byte("v3"))
	stream := append(append(b1, b2...), b3...)

	tuples, err := DecodeAll(stream)
	require.NoError(t, err)
	require.Len(t, tuples, 3)
	assert.Equal(t, KindInsert, tuples[0].Kind)
	assert.Equal(t, KindDelete, tuples[1].Kind)
	assert.Equal(t, KindRemove, tuples[2].Kind)
}

// TestRoundTripLaw runs a fixed table of small tuples through
// decode_one(encode(t)) == t and re-encoding.
func TestRoundTripLaw(t *testing.T) {
	cases := []Tuple{
		{Kind: KindInsert, Key: []byte{}, Value: []byte{}},
		{Kind: KindInsert, Key: []byte("k"), Value: []byte("v")},
		{Kind: KindDelete, Key: []byte("only-key")},
		{Kind: KindRemove, Key: []byte("k"), Value: []byte{1, 2, 3}},
	}
	for _, c := range cases {
		encoded, err := Encode(c.Kind, c.Key, c.Value)
		require.NoError(t, err)
		decoded, err := DecodeOne(NewCursor(encoded))
		require.NoError(t, err)
		assert.Equal(t, c.Kind, decoded.Kind)
		assert.Equal(t, c.Key, decoded.Key)
		if c.Kind == KindDelete {
			assert.Nil(t, decoded.Value)
		} else {
			assert.Equal(t, c.Value, decoded.Value)
		}

		reencoded, err := Encode(decoded.Kind, decoded.Key, decoded.Value)
		require.NoError(t, err)
		assert.Equal(t, encoded, reencoded)
	}
}
