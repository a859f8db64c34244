// Package logchain overlays a PageStore with a singly-linked chain of pages
// that together form a logically unbounded append-only byte stream. A chain
// is identified by the page index of its first page; each page's payload
// begins with a 4-byte little-endian next_ptr pointer, 0xFFFFFFFF marking
// the tail, followed by that page's slice of the chain's data.
package logchain

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/rishavbhowmik/xdb/xdberr"
	"github.com/rishavbhowmik/xdb/xdblog"
)

var plog = xdblog.NewPackageLogger("logchain")

const (
	nextPtrSize   = 4
	tailSentinel  = 0xFFFFFFFF
)

// ErrChainCorrupt is returned when a next_ptr points outside the store's
// page count, or a page's payload is too short to hold a next_ptr.
var ErrChainCorrupt = errors.New("logchain: chain corrupt")

// Store is the subset of pagestore.PageStore a chain is layered on. It lets
// tests substitute a fake without importing pagestore.
type Store interface {
	Allocate(n int) []uint64
	WritePage(idx uint64, payload []byte, forceZeroSize bool) error
	ReadPage(idx uint64) ([]byte, error)
	DeletePage(idx uint64, hard bool) error
	Capacity() uint64
	PageCount() uint64
}

func chunkSize(store Store) int {
	c := int(store.Capacity()) - nextPtrSize
	if c < 0 {
		c = 0
	}
	return c
}

// chunkData splits data into pieces of at most size bytes. An empty data
// yields a single empty chunk, matching create's "empty data yields a
// single tail page whose data portion is empty" rule.
func chunkData(data []byte, size int) [][]byte {
	if len(data) == 0 {
		return [][]byte{{}}
	}
	var chunks [][]byte
	for len(data) > 0 {
		n := size
		if n > len(data) || n == 0 {
			n = len(data)
		}
		chunks = append(chunks, data[:n])
		data = data[n:]
		if size == 0 {
			break
		}
	}
	return chunks
}

func encodeNextPtr(ptr uint64) []byte {
	b := make([]byte, nextPtrSize)
	binary.LittleEndian.PutUint32(b, uint32(ptr))
	return b
}

func decodeNextPtr(b []byte) uint64 {
	return uint64(binary.LittleEndian.Uint32(b))
}

func buildPayload(next uint64, chunk []byte) []byte {
	payload := make([]byte, nextPtrSize+len(chunk))
	copy(payload[:nextPtrSize], encodeNextPtr(next))
	copy(payload[nextPtrSize:], chunk)
	return payload
}

// rewriteTailPage replaces a chain page's payload in place. PageStore
// rejects a non-empty write into a page it still considers live, so the
// page is freed with a soft delete immediately before the rewrite lands.
func rewriteTailPage(store Store, idx uint64, payload []byte) error {
	if err := store.DeletePage(idx, false); err != nil {
		return err
	}
	return store.WritePage(idx, payload, false)
}

// Create splits data into chunks of size capacity-4, allocates
// max(1, ceil(len/chunk)) pages, and writes them linked in ascending
// allocation order, returning the first and last page index of the chain.
func Create(store Store, data []byte) (first uint64, last uint64, err error) {
	chunks := chunkData(data, chunkSize(store))
	idxs := store.Allocate(len(chunks))
	for i, idx := range idxs {
		next := uint64(tailSentinel)
		if i < len(idxs)-1 {
			next = idxs[i+1]
		}
		if err := store.WritePage(idx, buildPayload(next, chunks[i]), false); err != nil {
			return 0, 0, err
		}
	}
	return idxs[0], idxs[len(idxs)-1], nil
}

// findTail walks the chain from fromIdx (either the chain head or a cached
// last-known tail) until it reaches the page whose next_ptr is the
// sentinel, returning that page's index and raw payload.
func findTail(store Store, fromIdx uint64) (idx uint64, payload []byte, err error) {
	idx = fromIdx
	for {
		payload, err = store.ReadPage(idx)
		if err != nil {
			return 0, nil, err
		}
		if len(payload) < nextPtrSize {
			plog.Errorf("chain page %d payload too short for a next_ptr", idx)
			return 0, nil, xdberr.New(xdberr.Critical, fmt.Sprintf("chain page %d truncated", idx), ErrChainCorrupt)
		}
		next := decodeNextPtr(payload[:nextPtrSize])
		if next == tailSentinel {
			return idx, payload, nil
		}
		if next >= store.PageCount() {
			plog.Errorf("chain page %d next_ptr %d out of range (page_count %d)", idx, next, store.PageCount())
			return 0, nil, xdberr.New(xdberr.Critical, fmt.Sprintf("chain page %d next_ptr out of range", idx), ErrChainCorrupt)
		}
		idx = next
	}
}

// Append traverses from fromIdx to the tail, fills the tail's remaining
// capacity with the prefix of data, and chains on newly allocated pages for
// any remainder. fromIdx may be the chain's first page or a cached
// last-known tail index, letting the caller skip the traversal.
func Append(store Store, fromIdx uint64, data []byte) (newLast uint64, err error) {
	tailIdx, tailPayload, err := findTail(store, fromIdx)
	if err != nil {
		return 0, err
	}
	tailData := tailPayload[nextPtrSize:]
	size := chunkSize(store)
	void := size - len(tailData)
	if void < 0 {
		void = 0
	}
	fill := void
	if fill > len(data) {
		fill = len(data)
	}

	extendedTailData := append(append([]byte{}, tailData...), data[:fill]...)
	remaining := data[fill:]

	if len(remaining) == 0 {
		if err := rewriteTailPage(store, tailIdx, buildPayload(tailSentinel, extendedTailData)); err != nil {
			return 0, err
		}
		return tailIdx, nil
	}

	chunks := chunkData(remaining, size)
	idxs := store.Allocate(len(chunks))
	for i, idx := range idxs {
		next := uint64(tailSentinel)
		if i < len(idxs)-1 {
			next = idxs[i+1]
		}
		if err := store.WritePage(idx, buildPayload(next, chunks[i]), false); err != nil {
			return 0, err
		}
	}
	// The former tail is rewritten last, pointing at the first new page.
	if err := rewriteTailPage(store, tailIdx, buildPayload(idxs[0], extendedTailData)); err != nil {
		return 0, err
	}
	return idxs[len(idxs)-1], nil
}

// Read concatenates all chunk payloads along the chain starting at
// firstIdx, returning the chain's first index, its current tail index, and
// the full chain data.
func Read(store Store, firstIdx uint64) (first uint64, last uint64, data []byte, err error) {
	idx := firstIdx
	data = []byte{}
	for {
		payload, err := store.ReadPage(idx)
		if err != nil {
			return 0, 0, nil, err
		}
		if len(payload) < nextPtrSize {
			plog.Errorf("chain page %d payload too short for a next_ptr", idx)
			return 0, 0, nil, xdberr.New(xdberr.Critical, fmt.Sprintf("chain page %d truncated", idx), ErrChainCorrupt)
		}
		next := decodeNextPtr(payload[:nextPtrSize])
		data = append(data, payload[nextPtrSize:]...)
		if next == tailSentinel {
			return firstIdx, idx, data, nil
		}
		if next >= store.PageCount() {
			plog.Errorf("chain page %d next_ptr %d out of range (page_count %d)", idx, next, store.PageCount())
			return 0, 0, nil, xdberr.New(xdberr.Critical, fmt.Sprintf("chain page %d next_ptr out of range", idx), ErrChainCorrupt)
		}
		idx = next
	}
}

// Delete walks the chain from firstIdx, deleting each page in traversal
// order with the given hard flag. Each page is read before it is deleted,
// so the current page (not its successor) is always the one freed.
func Delete(store Store, firstIdx uint64, hard bool) (first uint64, last uint64, err error) {
	idx := firstIdx
	last = firstIdx
	for {
		payload, err := store.ReadPage(idx)
		if err != nil {
			return 0, 0, err
		}
		if len(payload) < nextPtrSize {
			plog.Errorf("chain page %d payload too short for a next_ptr", idx)
			return 0, 0, xdberr.New(xdberr.Critical, fmt.Sprintf("chain page %d truncated", idx), ErrChainCorrupt)
		}
		next := decodeNextPtr(payload[:nextPtrSize])
		if err := store.DeletePage(idx, hard); err != nil {
			return 0, 0, err
		}
		last = idx
		if next == tailSentinel {
			return firstIdx, last, nil
		}
		if next >= store.PageCount() {
			plog.Errorf("chain page %d next_ptr %d out of range (page_count %d)", idx, next, store.PageCount())
			return 0, 0, xdberr.New(xdberr.Critical, fmt.Sprintf("chain page %d next_ptr out of range", idx), ErrChainCorrupt)
		}
		idx = next
	}
}
