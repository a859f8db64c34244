package logchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rishavbhowmik/xdb/pagestore"
)

// newChainStore returns a PageStore with page_len=13: width=1 (13<=255) so
// capacity=12, and the chain's data chunk size is capacity-4=8 bytes. This
// is the page_len whose arithmetic actually produces the chunk size used by
// the worked chain example (8 data bytes per page).
func newChainStore(t *testing.T) *pagestore.PageStore {
	t.Helper()
	ps, err := pagestore.OpenNew(13, pagestore.Options{})
	require.NoError(t, err)
	t.Cleanup(func() { ps.Close() })
	return ps
}

// TestCreateChainsTwoPages is the log chain create/append end-to-end
// scenario from the specification.
func TestCreateChainsTwoPages(t *testing.T) {
	store := newChainStore(t)
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	first, last, err := Create(store, data)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), first)
	assert.Equal(t, uint64(1), last)

	page0, err := store.ReadPage(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x00, 0x00, 0x00, 1, 2, 3, 4, 5, 6, 7, 8}, page0)

	page1, err := store.ReadPage(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 9, 10, 11, 12, 13, 14, 15, 16}, page1)

	newLast, err := Append(store, first, []byte{17, 18, 19, 20})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), newLast)

	page2, err := store.ReadPage(2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFF, 0xFF, 0xFF, 17, 18, 19, 20}, page2)

	rewrittenPage1, err := store.ReadPage(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x02, 0x00, 0x00, 0x00, 9, 10, 11, 12, 13, 14, 15, 16}, rewrittenPage1)

	_, _, full, err := Read(store, first)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, data...), 17, 18, 19, 20), full)
}

// TestCreateEmptyDataYieldsSingleEmptyTail matches create's rule for empty data.
func TestCreateEmptyDataYieldsSingleEmptyTail(t *testing.T) {
	store := newChainStore(t)
	first, last, err := Create(store, nil)
	require.NoError(t, err)
	assert.Equal(t, first, last)

	_, _, data, err := Read(store, first)
	require.NoError(t, err)
	assert.Equal(t, []byte{}, data)
}

// TestReadAfterCreate is LC-2.
func TestReadAfterCreate(t *testing.T) {
	store := newChainStore(t)
	data := []byte("the quick brown fox jumps over the lazy dog")
	first, _, err := Create(store, data)
	require.NoError(t, err)

	gotFirst, _, got, err := Read(store, first)
	require.NoError(t, err)
	assert.Equal(t, first, gotFirst)
	assert.Equal(t, data, got)
}

// TestAppendConcatenation is LC-3.
func TestAppendConcatenation(t *testing.T) {
	store := newChainStore(t)
	data := []byte("short")
	first, _, err := Create(store, data)
	require.NoError(t, err)

	more := []byte(" and then some more data that spills across pages")
	_, err = Append(store, first, more)
	require.NoError(t, err)

	_, _, got, err := Read(store, first)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, data...), more...), got)
}

// TestChainTerminatesWithinPageCount is LC-1.
func TestChainTerminatesWithinPageCount(t *testing.T) {
	store := newChainStore(t)
	data := make([]byte, 500)
	for i := range data {
		data[i] = byte(i)
	}
	first, last, err := Create(store, data)
	require.NoError(t, err)

	steps := 0
	idx := first
	for {
		page, err := store.ReadPage(idx)
		require.NoError(t, err)
		next := decodeNextPtr(page[:nextPtrSize])
		steps++
		require.LessOrEqual(t, steps, int(store.PageCount()))
		if next == tailSentinel {
			assert.Equal(t, last, idx)
			break
		}
		idx = next
	}
}

// TestAppendUsesCachedTailHint verifies a caller may pass a known tail index
// instead of the chain head to skip traversal.
func TestAppendUsesCachedTailHint(t *testing.T) {
	store := newChainStore(t)
	first, last, err := Create(store, []byte{1, 2, 3})
	require.NoError(t, err)

	newLast, err := Append(store, last, []byte{4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, last, newLast)

	_, _, got, err := Read(store, first)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6}, got)
}

// TestDeleteFreesCurrentPageNotSuccessor guards against the source's
// delete_log off-by-one: each step must free the page it just traversed,
// not its successor.
func TestDeleteFreesCurrentPageNotSuccessor(t *testing.T) {
	store := newChainStore(t)
	data := make([]byte, 100)
	first, last, err := Create(store, data)
	require.NoError(t, err)
	require.NotEqual(t, first, last)

	gotFirst, gotLast, err := Delete(store, first, false)
	require.NoError(t, err)
	assert.Equal(t, first, gotFirst)
	assert.Equal(t, last, gotLast)

	for idx := first; idx <= last; idx++ {
		size, err := store.ReadPageSize(idx)
		require.NoError(t, err)
		assert.Zerof(t, size, "page %d should be free after delete", idx)
	}
	// Freed pages are immediately reusable, ascending, starting from first.
	assert.Equal(t, []uint64{first, first + 1}, store.Allocate(2))
}

func TestDeleteHard(t *testing.T) {
	store := newChainStore(t)
	first, _, err := Create(store, []byte("secret data"))
	require.NoError(t, err)

	_, _, err = Delete(store, first, true)
	require.NoError(t, err)

	size, err := store.ReadPageSize(first)
	require.NoError(t, err)
	assert.Zero(t, size)
}
