package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/ha1tch/rserv/internal/apierr"
)

// layout resolves the on-disk paths for a schema:
//
//	data/<schema>/<entity>/<id>.json
//	data/<schema>/<entity>/_next_id.txt
//	data/<schema>/<entity>/.lock
//	schema/<schema>/<entity>.json
type layout struct {
	dataRoot   string
	schemaRoot string
	schemaName string
}

func newLayout(dataRoot, schemaRoot, schemaName string) *layout {
	return &layout{dataRoot: dataRoot, schemaRoot: schemaRoot, schemaName: schemaName}
}

func (l *layout) entityDir(entity string) string {
	return filepath.Join(l.dataRoot, l.schemaName, entity)
}

func (l *layout) documentPath(entity string, id int64) string {
	return filepath.Join(l.entityDir(entity), fmt.Sprintf("%d.json", id))
}

func (l *layout) nextIDPath(entity string) string {
	return filepath.Join(l.entityDir(entity), "_next_id.txt")
}

func (l *layout) lockPath(entity string) string {
	return filepath.Join(l.entityDir(entity), ".lock")
}

func (l *layout) schemaFilePath(entity string) string {
	return filepath.Join(l.schemaRoot, l.schemaName, entity+".json")
}

func (l *layout) graphIndexPath() string {
	return filepath.Join(l.dataRoot, l.schemaName, "graph.index")
}

// ensureEntityDir creates the entity directory (and its lock file) on first
// write; an entity directory comes into existence implicitly, the first
// time a document is written to it.
func (l *layout) ensureEntityDir(entity string) error {
	dir := l.entityDir(entity)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return apierr.Wrap(apierr.KindStorage, "create entity directory", err)
	}
	lockFile := l.lockPath(entity)
	if _, err := os.OpenFile(lockFile, os.O_CREATE|os.O_RDONLY, 0o644); err != nil {
		return apierr.Wrap(apierr.KindStorage, "create lock file", err)
	}
	return nil
}

// entityLock is an exclusive advisory lock on an entity's .lock file,
// guarding read-modify-write of the allocator and document files. It MUST
// be released on every exit path, including panics recovered upstream —
// callers use `defer lock.unlock()`.
type entityLock struct {
	f *os.File
}

// lockEntity acquires an exclusive lock on entity's lock file, blocking
// until it is available. It must never be called while another lock is
// already held by the same goroutine.
func (l *layout) lockEntity(entity string) (*entityLock, error) {
	if err := l.ensureEntityDir(entity); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(l.lockPath(entity), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, apierr.Wrap(apierr.KindStorage, "open lock file", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		f.Close()
		return nil, apierr.Wrap(apierr.KindStorage, "acquire lock", err)
	}
	return &entityLock{f: f}, nil
}

func (el *entityLock) unlock() {
	if el == nil || el.f == nil {
		return
	}
	_ = syscall.Flock(int(el.f.Fd()), syscall.LOCK_UN)
	_ = el.f.Close()
}

// writeFileAtomic serialises v to JSON and writes it to path via a sibling
// temp file, fsync, then atomic rename.
func writeFileAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return apierr.Wrap(apierr.KindStorage, "marshal document", err)
	}
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return apierr.Wrap(apierr.KindStorage, "create temp file", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// Best-effort cleanup: if rename succeeded this is a no-op (file
		// gone); if it failed the stray temp file is removed.
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apierr.Wrap(apierr.KindStorage, "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apierr.Wrap(apierr.KindStorage, "fsync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return apierr.Wrap(apierr.KindStorage, "close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return apierr.Wrap(apierr.KindStorage, "rename into place", err)
	}
	return nil
}

// writeRawAtomic atomically writes raw bytes (used for the plain-text ID
// allocator file, which is not JSON).
func writeRawAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return apierr.Wrap(apierr.KindStorage, "create temp file", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apierr.Wrap(apierr.KindStorage, "write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apierr.Wrap(apierr.KindStorage, "fsync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		return apierr.Wrap(apierr.KindStorage, "close temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return apierr.Wrap(apierr.KindStorage, "rename into place", err)
	}
	return nil
}

// readDocumentFile reads and unmarshals a document file. Reads are
// non-locking; the atomic rename in writeFileAtomic guarantees a reader
// either sees the whole old file or the whole new one, never a partial
// write.
func readDocumentFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apierr.NotFound("document")
		}
		return nil, apierr.Wrap(apierr.KindStorage, "read document", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, apierr.Wrap(apierr.KindStorage, "corrupt document JSON", err)
	}
	return doc, nil
}

func documentExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// removeFile deletes a document file, treating an already-absent file as
// NotFound rather than success, so callers get a consistent error kind.
func removeFile(path string) error {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return apierr.NotFound("document")
		}
		return apierr.Wrap(apierr.KindStorage, "remove document", err)
	}
	return nil
}
