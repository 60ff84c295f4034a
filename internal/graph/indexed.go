package graph

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/ha1tch/rserv/internal/apierr"
)

// IndexedIndex is the persisted edge-index mode: the same bidirectional
// adjacency as MemoryIndex, additionally flushed to an on-disk store
// after every write and rebuildable from a checksum-verified manifest at
// boot. It uses an embedded badger database as the append-mostly,
// crash-safe backing store. Only outbound adjacency is persisted, one
// badger key per source node under the `out:` prefix; inbound adjacency
// and the type index are rebuilt in memory from it at open, and the
// property-value index lives in memory only.
type IndexedIndex struct {
	mem *MemoryIndex // mirrors current state for fast reads; badger is durability, not the hot path

	db  *badger.DB
	log zerolog.Logger

	mu        sync.Mutex
	propIndex map[string]map[string][]NodeRef // "Type.field" -> stringified value -> nodes
}

const manifestKey = "_manifest_checksum"

// OpenIndexed opens (or creates) the badger database at dir and loads any
// persisted adjacency into memory. If the stored checksum is missing or
// does not match the recomputed content checksum, the caller must invoke
// RebuildFromScan to rebuild from a full document scan.
func OpenIndexed(dir string, log zerolog.Logger) (*IndexedIndex, bool, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, false, apierr.Wrap(apierr.KindStorage, "open graph index", err)
	}

	idx := &IndexedIndex{
		mem:       NewMemoryIndex(),
		db:        db,
		log:       log,
		propIndex: make(map[string]map[string][]NodeRef),
	}

	valid, err := idx.loadAndVerify()
	if err != nil {
		db.Close()
		return nil, false, err
	}
	return idx, valid, nil
}

// loadAndVerify reads every persisted adjacency entry into the in-memory
// mirror and compares the stored manifest checksum against one recomputed
// from the loaded content.
func (idx *IndexedIndex) loadAndVerify() (bool, error) {
	var storedChecksum []byte
	hasher := sha256.New()

	err := idx.db.View(func(txn *badger.Txn) error {
		if item, err := txn.Get([]byte(manifestKey)); err == nil {
			storedChecksum, _ = item.ValueCopy(nil)
		}

		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("out:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			hasher.Write(key)
			hasher.Write(val)

			node, refs, err := decodeOutEntry(key, val)
			if err != nil {
				continue // corrupt entry: treated as checksum mismatch below
			}
			idx.mem.SetOutbound(node, refs)
		}
		return nil
	})
	if err != nil {
		return false, apierr.Wrap(apierr.KindStorage, "load graph index", err)
	}

	sum := hasher.Sum(nil)
	if storedChecksum == nil || !bytesEqual(storedChecksum, sum) {
		return false, nil
	}
	return true, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func outKey(node NodeRef) []byte {
	return []byte(fmt.Sprintf("out:%s:%d", node.Entity, node.ID))
}

type outEntry struct {
	Refs []Ref `json:"refs"`
}

func decodeOutEntry(key, val []byte) (NodeRef, []Ref, error) {
	parts := strings.SplitN(string(key), ":", 3)
	if len(parts) != 3 {
		return NodeRef{}, nil, fmt.Errorf("malformed key")
	}
	id, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return NodeRef{}, nil, err
	}
	var entry outEntry
	if err := json.Unmarshal(val, &entry); err != nil {
		return NodeRef{}, nil, err
	}
	return NodeRef{Entity: parts[1], ID: id}, entry.Refs, nil
}

// RebuildFromScan discards any persisted content and rebuilds from the
// (entity, node, refs) triples yielded by scan. cmd/sulpherd calls it at
// start-up, with a scan that runs the document store's BootScan, when
// OpenIndexed reports the persisted content as not valid.
func (idx *IndexedIndex) RebuildFromScan(scan func(yield func(node NodeRef, refs []Ref) error) error) error {
	idx.mem = NewMemoryIndex()
	if err := idx.db.DropAll(); err != nil {
		return apierr.Wrap(apierr.KindStorage, "clear graph index", err)
	}

	err := scan(func(node NodeRef, refs []Ref) error {
		return idx.SetOutbound(node, refs)
	})
	if err != nil {
		return err
	}
	return idx.flushManifest()
}

func (idx *IndexedIndex) flushManifest() error {
	hasher := sha256.New()
	err := idx.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte("out:")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			hasher.Write(key)
			hasher.Write(val)
		}
		return nil
	})
	if err != nil {
		return apierr.Wrap(apierr.KindStorage, "compute graph index checksum", err)
	}
	sum := hasher.Sum(nil)
	return idx.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(manifestKey), sum)
	})
}

func (idx *IndexedIndex) SetOutbound(node NodeRef, refs []Ref) error {
	if err := idx.mem.SetOutbound(node, refs); err != nil {
		return err
	}
	return idx.persist(node, refs)
}

// persist flushes node's new outbound entry after every write.
func (idx *IndexedIndex) persist(node NodeRef, refs []Ref) error {
	data, err := json.Marshal(outEntry{Refs: refs})
	if err != nil {
		return apierr.Wrap(apierr.KindStorage, "encode graph index entry", err)
	}
	err = idx.db.Update(func(txn *badger.Txn) error {
		if len(refs) == 0 {
			return txn.Delete(outKey(node))
		}
		return txn.Set(outKey(node), data)
	})
	if err != nil {
		return apierr.Wrap(apierr.KindStorage, "flush graph index", err)
	}
	return idx.flushManifest()
}

func (idx *IndexedIndex) Remove(node NodeRef) error {
	if err := idx.mem.Remove(node); err != nil {
		return err
	}
	if err := idx.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(outKey(node))
	}); err != nil {
		return apierr.Wrap(apierr.KindStorage, "remove from graph index", err)
	}
	return idx.flushManifest()
}

func (idx *IndexedIndex) Outbound(node NodeRef) []Adjacency     { return idx.mem.Outbound(node) }
func (idx *IndexedIndex) Inbound(node NodeRef) []Adjacency      { return idx.mem.Inbound(node) }
func (idx *IndexedIndex) NodesByType(typeName string) []NodeRef { return idx.mem.NodesByType(typeName) }
func (idx *IndexedIndex) AllNodes() []NodeRef                   { return idx.mem.AllNodes() }
func (idx *IndexedIndex) Stats() (int64, int64)                 { return idx.mem.Stats() }

// IndexPropertyValue records a (type, field, value) -> node mapping in the
// in-memory properties_by_type_field_value index, read back through
// LookupProperty. The Sulpher planner does not consult this index: seed
// candidates are always found by scanning nodes of the element's type.
func (idx *IndexedIndex) IndexPropertyValue(typeName, field string, value any, node NodeRef) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	key := typeName + "." + field
	byValue := idx.propIndex[key]
	if byValue == nil {
		byValue = make(map[string][]NodeRef)
		idx.propIndex[key] = byValue
	}
	vs := stringifyPropValue(value)
	byValue[vs] = append(byValue[vs], node)
}

// LookupProperty returns nodes previously recorded for (type, field, value).
func (idx *IndexedIndex) LookupProperty(typeName, field string, value any) ([]NodeRef, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	byValue, ok := idx.propIndex[typeName+"."+field]
	if !ok {
		return nil, false
	}
	nodes, ok := byValue[stringifyPropValue(value)]
	return nodes, ok
}

func stringifyPropValue(v any) string {
	switch x := v.(type) {
	case string:
		return "s:" + x
	case float64:
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], uint64(int64(x)))
		return "n:" + string(buf[:])
	case int64:
		return fmt.Sprintf("n:%d", x)
	case bool:
		return fmt.Sprintf("b:%v", x)
	default:
		data, _ := json.Marshal(v)
		return "j:" + string(data)
	}
}

func (idx *IndexedIndex) Close() error {
	return idx.db.Close()
}
