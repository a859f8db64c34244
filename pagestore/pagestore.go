// Package pagestore maps a single file (or an in-memory buffer) to an
// indexed array of fixed-length pages holding variable-length payloads. It
// is the leaf storage layer logchain and the index layer are built on.
//
// Page layout, little-endian throughout:
//
//	payload_size  1/2/4/8 bytes   width is the smallest of {1,2,4,8} whose
//	                              max value is >= page_len
//	payload       payload_size bytes
//	trailing      page_len - width - payload_size bytes, left untouched
//
// A page is free iff its recorded payload_size is 0. page_count is one plus
// the largest page index ever written and only ever grows.
package pagestore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rishavbhowmik/xdb/pagestore/internal/cache"
	"github.com/rishavbhowmik/xdb/xdberr"
	"github.com/rishavbhowmik/xdb/xdblog"
)

var plog = xdblog.NewPackageLogger("pagestore")

const headerLen = 8

// Sentinel errors. Each is wrapped in an *xdberr.Error with the kind the
// specification's error-handling design assigns it before it reaches a
// caller; errors.Is still matches against these directly.
var (
	ErrPageIndexOutOfRange = errors.New("pagestore: page index out of range")
	ErrPayloadTooLarge      = errors.New("pagestore: payload exceeds page capacity")
	ErrOverwriteNonFree     = errors.New("pagestore: write would overwrite a live page")
	ErrPageLenTooSmall      = errors.New("pagestore: page_len must be at least 2")
	ErrMalformedHeader      = errors.New("pagestore: malformed page store header")
)

// pageCache is the caching interface satisfied by pagestore/internal/cache's
// PageCache and its no-op counterpart.
type pageCache interface {
	Get(idx uint64) ([]byte, bool)
	Add(idx uint64, payload []byte)
	Remove(idx uint64)
}

// Options configures Open{New,Existing}. Path empty selects an in-memory
// store. CacheSize <= 0 disables the read cache.
type Options struct {
	Path      string
	CacheSize int
}

// PageStore is a paged, single-file store of variable-length payloads in
// fixed-length slots, with free-slot reuse.
type PageStore struct {
	// mu serializes access per the single-writer model of the
	// specification: many readers or one writer, never both. Callers take it
	// through BeginRead/EndRead/BeginWrite/EndWrite; the store's own methods
	// do not lock it.
	mu sync.RWMutex

	store storage
	cache pageCache

	pageLen   uint64
	width     int
	capacity  uint64
	pageCount uint64
	freeSet   map[uint64]struct{}
}

// OpenNew creates a fresh store at opts.Path (or in memory if empty) with
// the given constant page length and writes its header. It fails if the
// path already exists.
func OpenNew(pageLen uint64, opts Options) (*PageStore, error) {
	if pageLen < 2 {
		return nil, xdberr.New(xdberr.Unexpected, "open_new page_len too small", ErrPageLenTooSmall)
	}
	s, err := openStorage(opts.Path, true)
	if err != nil {
		return nil, xdberr.New(xdberr.Critical, "open_new failed to open storage", err)
	}
	header := make([]byte, headerLen)
	binary.LittleEndian.PutUint64(header, pageLen)
	if _, err := s.WriteAt(header, 0); err != nil {
		s.Close()
		return nil, xdberr.New(xdberr.Critical, "open_new failed to write header", err)
	}
	return &PageStore{
		store:     s,
		cache:     newCache(opts.CacheSize),
		pageLen:   pageLen,
		width:     sizeWidth(pageLen),
		capacity:  pageLen - uint64(sizeWidth(pageLen)),
		pageCount: 0,
		freeSet:   map[uint64]struct{}{},
	}, nil
}

// OpenExisting opens a store previously created by OpenNew, reconstructing
// page_count and the free set by sweeping size prefixes until EOF.
func OpenExisting(opts Options) (*PageStore, error) {
	s, err := openStorage(opts.Path, false)
	if err != nil {
		return nil, xdberr.New(xdberr.Critical, "open_existing failed to open storage", err)
	}
	header := make([]byte, headerLen)
	if _, err := s.ReadAt(header, 0); err != nil {
		s.Close()
		return nil, xdberr.New(xdberr.Critical, "open_existing failed to read header", ErrMalformedHeader)
	}
	pageLen := binary.LittleEndian.Uint64(header)
	if pageLen < 2 {
		s.Close()
		return nil, xdberr.New(xdberr.Critical, "open_existing malformed page_len", ErrMalformedHeader)
	}
	ps := &PageStore{
		store:    s,
		cache:    newCache(opts.CacheSize),
		pageLen:  pageLen,
		width:    sizeWidth(pageLen),
		capacity: pageLen - uint64(sizeWidth(pageLen)),
		freeSet:  map[uint64]struct{}{},
	}
	if err := ps.recover(); err != nil {
		s.Close()
		return nil, err
	}
	return ps, nil
}

func openStorage(path string, create bool) (storage, error) {
	if path == "" {
		return newMemoryStorage(), nil
	}
	return newFileStorage(path, create)
}

func newCache(size int) pageCache {
	if size <= 0 {
		return cache.NewNop()
	}
	return cache.New(size)
}

// recover sweeps page size prefixes from index 0 until a read fails (EOF),
// populating page_count and free_set. This is PS-2.
func (ps *PageStore) recover() error {
	for idx := uint64(0); ; idx++ {
		sizeBuf := make([]byte, ps.width)
		if _, err := ps.store.ReadAt(sizeBuf, ps.pageOffset(idx)); err != nil {
			ps.pageCount = idx
			return nil
		}
		size := decodeSize(sizeBuf, ps.width)
		if size == 0 {
			ps.freeSet[idx] = struct{}{}
		}
	}
}

func (ps *PageStore) pageOffset(idx uint64) int64 {
	return int64(headerLen + idx*ps.pageLen)
}

// Capacity is the number of payload bytes a page can hold.
func (ps *PageStore) Capacity() uint64 { return ps.capacity }

// PageLen is the constant slot size this store was created with.
func (ps *PageStore) PageLen() uint64 { return ps.pageLen }

// PageCount is one plus the largest page index ever written.
func (ps *PageStore) PageCount() uint64 {
	return ps.pageCount
}

// BeginRead/EndRead/BeginWrite/EndWrite implement the recommended
// concurrency pattern of an exclusive mutex guarding a PageStore shared by
// multiple LogChains (specification §5), mirroring the teacher pager's
// fileLock.
func (ps *PageStore) BeginRead()  { ps.mu.RLock() }
func (ps *PageStore) EndRead()    { ps.mu.RUnlock() }
func (ps *PageStore) BeginWrite() { ps.mu.Lock() }
func (ps *PageStore) EndWrite()   { ps.mu.Unlock() }

// Allocate returns n ascending page indices, preferring free pages in
// ascending order before extending beyond page_count. It does not mutate
// page_count or free_set; reallocating before any intervening write returns
// the same prefix (PS-3).
func (ps *PageStore) Allocate(n int) []uint64 {
	if n <= 0 {
		return []uint64{}
	}
	free := make([]uint64, 0, len(ps.freeSet))
	for idx := range ps.freeSet {
		free = append(free, idx)
	}
	sort.Slice(free, func(i, j int) bool { return free[i] < free[j] })

	out := make([]uint64, 0, n)
	for _, idx := range free {
		if len(out) == n {
			break
		}
		out = append(out, idx)
	}
	next := ps.pageCount
	for len(out) < n {
		out = append(out, next)
		next++
	}
	return out
}

// WritePage durably stores payload at idx. An empty payload (or
// forceZeroSize) is delete-equivalent and always permitted; writing a
// non-empty payload into an already-live page is rejected (ErrOverwriteNonFree).
func (ps *PageStore) WritePage(idx uint64, payload []byte, forceZeroSize bool) error {
	if idx > ps.pageCount {
		plog.Warningf("write_page: index %d out of range (page_count %d)", idx, ps.pageCount)
		return xdberr.New(xdberr.Warning, fmt.Sprintf("write_page index %d out of range", idx), ErrPageIndexOutOfRange)
	}
	if uint64(len(payload)) > ps.capacity {
		return xdberr.New(xdberr.Unexpected, fmt.Sprintf("write_page index %d payload too large", idx), ErrPayloadTooLarge)
	}
	isDeleteEquivalent := len(payload) == 0 || forceZeroSize
	if !isDeleteEquivalent && idx < ps.pageCount {
		if _, free := ps.freeSet[idx]; !free {
			return xdberr.New(xdberr.Unexpected, fmt.Sprintf("write_page index %d is live", idx), ErrOverwriteNonFree)
		}
	}

	storedSize := uint64(len(payload))
	if forceZeroSize {
		storedSize = 0
	}
	buf := make([]byte, int(ps.width)+len(payload))
	copy(buf[0:ps.width], encodeSize(storedSize, ps.width))
	copy(buf[ps.width:], payload)

	if _, err := ps.store.WriteAt(buf, ps.pageOffset(idx)); err != nil {
		plog.Errorf("write_page: io error at index %d: %s", idx, err)
		return xdberr.New(xdberr.Critical, fmt.Sprintf("write_page index %d io failure", idx), err)
	}
	if idx == ps.pageCount {
		// Extend the backing storage so trailing bytes of a brand new page
		// read back as zero instead of EOF.
		if err := ps.store.Truncate(ps.pageOffset(idx) + int64(ps.pageLen)); err != nil {
			plog.Errorf("write_page: truncate failed at index %d: %s", idx, err)
			return xdberr.New(xdberr.Critical, fmt.Sprintf("write_page index %d truncate failure", idx), err)
		}
		ps.pageCount++
	}
	if storedSize == 0 {
		ps.freeSet[idx] = struct{}{}
	} else {
		delete(ps.freeSet, idx)
	}
	ps.cache.Remove(idx)
	return nil
}

// ReadPage returns the full payload at idx.
func (ps *PageStore) ReadPage(idx uint64) ([]byte, error) {
	return ps.ReadPageRange(idx, 0, -1)
}

// ReadPageRange returns payload[start:min(end, payload_size)], or an empty
// slice if start is at or beyond payload_size. end < 0 means "to the end of
// the payload".
func (ps *PageStore) ReadPageRange(idx uint64, start int, end int) ([]byte, error) {
	if idx >= ps.pageCount {
		plog.Warningf("read_page: index %d out of range (page_count %d)", idx, ps.pageCount)
		return nil, xdberr.New(xdberr.Warning, fmt.Sprintf("read_page index %d out of range", idx), ErrPageIndexOutOfRange)
	}
	payload, err := ps.loadPayload(idx)
	if err != nil {
		return nil, err
	}
	size := len(payload)
	if start < 0 {
		start = 0
	}
	if start >= size {
		return []byte{}, nil
	}
	if end < 0 || end > size {
		end = size
	}
	if end <= start {
		return []byte{}, nil
	}
	out := make([]byte, end-start)
	copy(out, payload[start:end])
	return out, nil
}

// ReadPageSize returns the recorded payload_size at idx.
func (ps *PageStore) ReadPageSize(idx uint64) (uint64, error) {
	if idx >= ps.pageCount {
		plog.Warningf("read_page_size: index %d out of range (page_count %d)", idx, ps.pageCount)
		return 0, xdberr.New(xdberr.Warning, fmt.Sprintf("read_page_size index %d out of range", idx), ErrPageIndexOutOfRange)
	}
	if cached, ok := ps.cache.Get(idx); ok {
		return uint64(len(cached)), nil
	}
	sizeBuf := make([]byte, ps.width)
	if _, err := ps.store.ReadAt(sizeBuf, ps.pageOffset(idx)); err != nil {
		plog.Errorf("read_page_size: io error at index %d: %s", idx, err)
		return 0, xdberr.New(xdberr.Critical, fmt.Sprintf("read_page_size index %d io failure", idx), err)
	}
	return decodeSize(sizeBuf, ps.width), nil
}

// DeletePage frees idx. If hard, the full payload region is also overwritten
// with zeros; otherwise stale trailing bytes may remain until reused.
func (ps *PageStore) DeletePage(idx uint64, hard bool) error {
	if idx >= ps.pageCount {
		plog.Warningf("delete_page: index %d out of range (page_count %d)", idx, ps.pageCount)
		return xdberr.New(xdberr.Warning, fmt.Sprintf("delete_page index %d out of range", idx), ErrPageIndexOutOfRange)
	}
	if hard {
		return ps.WritePage(idx, make([]byte, ps.capacity), true)
	}
	return ps.WritePage(idx, []byte{}, false)
}

// Close releases the underlying storage (and, for a file backed store, the
// advisory cross-process lock).
func (ps *PageStore) Close() error {
	return ps.store.Close()
}

func (ps *PageStore) loadPayload(idx uint64) ([]byte, error) {
	if cached, ok := ps.cache.Get(idx); ok {
		return cached, nil
	}
	sizeBuf := make([]byte, ps.width)
	if _, err := ps.store.ReadAt(sizeBuf, ps.pageOffset(idx)); err != nil {
		plog.Errorf("read_page: io error reading size at index %d: %s", idx, err)
		return nil, xdberr.New(xdberr.Critical, fmt.Sprintf("read_page index %d io failure", idx), err)
	}
	size := decodeSize(sizeBuf, ps.width)
	payload := make([]byte, size)
	if size > 0 {
		if _, err := ps.store.ReadAt(payload, ps.pageOffset(idx)+int64(ps.width)); err != nil {
			plog.Errorf("read_page: io error reading payload at index %d: %s", idx, err)
			return nil, xdberr.New(xdberr.Critical, fmt.Sprintf("read_page index %d io failure", idx), err)
		}
	}
	ps.cache.Add(idx, payload)
	return payload, nil
}

// sizeWidth is the smallest of {1,2,4,8} whose max value is >= pageLen.
func sizeWidth(pageLen uint64) int {
	switch {
	case pageLen <= 0xFF:
		return 1
	case pageLen <= 0xFFFF:
		return 2
	case pageLen <= 0xFFFFFFFF:
		return 4
	default:
		return 8
	}
}

func encodeSize(size uint64, width int) []byte {
	b := make([]byte, width)
	switch width {
	case 1:
		b[0] = byte(size)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(size))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(size))
	case 8:
		binary.LittleEndian.PutUint64(b, size)
	}
	return b
}

func decodeSize(b []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	case 8:
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}
