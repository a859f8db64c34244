// storage provides an interface for accessing the filesystem. This allows
// the page store to run on an in memory buffer if desired, the same split
// the teacher pager package draws between its fileStorage and memoryStorage.
package pagestore

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

type storage interface {
	io.ReaderAt
	io.WriterAt
	// Truncate grows the backing storage to at least size bytes.
	Truncate(size int64) error
	// Close releases any OS resources the storage holds.
	Close() error
}

// memoryStorage is an in-memory storage backend. It never takes the
// advisory file lock since there is no file to share across processes.
type memoryStorage struct {
	buf []byte
}

func newMemoryStorage() storage {
	return &memoryStorage{}
}

func (m *memoryStorage) WriteAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if len(m.buf) < end {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[off:end], p)
	return len(p), nil
}

func (m *memoryStorage) ReadAt(p []byte, off int64) (int, error) {
	end := int(off) + len(p)
	if len(m.buf) < end {
		return 0, io.ErrUnexpectedEOF
	}
	copy(p, m.buf[off:end])
	return len(p), nil
}

func (m *memoryStorage) Truncate(size int64) error {
	if int64(len(m.buf)) >= size {
		return nil
	}
	grown := make([]byte, size)
	copy(grown, m.buf)
	m.buf = grown
	return nil
}

func (m *memoryStorage) Close() error {
	return nil
}

// fileStorage is a file backed storage. It holds an advisory, cross-process
// exclusive lock on the file for its lifetime, enforcing the single-writer
// model of the specification one layer below the in-process RWMutex.
type fileStorage struct {
	file *os.File
}

func newFileStorage(path string, create bool) (storage, error) {
	flags := os.O_RDWR
	if create {
		flags |= os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, fmt.Errorf("open page store file: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return nil, fmt.Errorf("lock page store file: %w", err)
	}
	return &fileStorage{file: f}, nil
}

func (fs *fileStorage) WriteAt(p []byte, off int64) (int, error) {
	return fs.file.WriteAt(p, off)
}

func (fs *fileStorage) ReadAt(p []byte, off int64) (int, error) {
	return fs.file.ReadAt(p, off)
}

func (fs *fileStorage) Truncate(size int64) error {
	info, err := fs.file.Stat()
	if err != nil {
		return err
	}
	if info.Size() >= size {
		return nil
	}
	return fs.file.Truncate(size)
}

func (fs *fileStorage) Close() error {
	unix.Flock(int(fs.file.Fd()), unix.LOCK_UN)
	return fs.file.Close()
}
