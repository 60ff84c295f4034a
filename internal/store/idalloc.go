package store

import (
	"os"
	"strconv"
	"strings"

	"github.com/ha1tch/rserv/internal/apierr"
)

// allocateID acquires the per-entity lock, reads the current value
// (default 1 if the allocator file is absent), writes value+1, releases
// the lock, and returns value. The caller must already hold no lock on
// this entity — allocateID acquires and releases its own.
//
// On I/O error allocateID fails with a StorageError and never returns a
// value it has also written to disk; gaps after a crash between
// allocation and document creation are acceptable.
func (s *Store) allocateID(entity string) (int64, error) {
	lock, err := s.layout.lockEntity(entity)
	if err != nil {
		return 0, err
	}
	defer lock.unlock()

	path := s.layout.nextIDPath(entity)
	current, err := readNextID(path)
	if err != nil {
		return 0, err
	}

	if err := writeNextID(path, current+1); err != nil {
		return 0, err
	}
	return current, nil
}

// peekNextID reports the allocator's current value without advancing it.
func (s *Store) peekNextID(entity string) (int64, error) {
	return readNextID(s.layout.nextIDPath(entity))
}

func readNextID(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 1, nil
		}
		return 0, apierr.Wrap(apierr.KindStorage, "read id allocator", err)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return 1, nil
	}
	v, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, apierr.Wrap(apierr.KindStorage, "corrupt id allocator", err)
	}
	return v, nil
}

func writeNextID(path string, value int64) error {
	return writeRawAtomic(path, []byte(strconv.FormatInt(value, 10)))
}
