package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ha1tch/rserv/internal/apierr"
	"github.com/ha1tch/rserv/internal/cache"
	"github.com/ha1tch/rserv/internal/graph"
)

// Options configures a Store's on-disk layout, validation, caching and
// cascade-delete behaviour.
type Options struct {
	DataRoot        string
	SchemaRoot      string
	SchemaName      string
	PatchNull       PatchNullPolicy
	CascadingDelete bool
	DefaultPageSize int
	CacheTTL        time.Duration
	Log             zerolog.Logger
}

// Store is the document store handle: entity-directory CRUD, schema
// validation, edge-index maintenance and cascade deletion.
type Store struct {
	opts   Options
	layout *layout
	schema *SchemaRegistry
	edges  graph.Index
	cache  cache.Cache
	log    zerolog.Logger
}

// New opens a Store, loading schemas and wiring the given edge index and
// read-through cache (both may be nil: edges nil disables graph
// maintenance entirely — useful for schema-only tests; cache nil disables
// read-through caching).
func New(opts Options, edges graph.Index, readCache cache.Cache) (*Store, error) {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.PatchNull == "" {
		opts.PatchNull = PatchNullStore
	}

	schema, err := NewSchemaRegistry(opts.SchemaRoot, opts.SchemaName)
	if err != nil {
		return nil, err
	}

	s := &Store{
		opts:   opts,
		layout: newLayout(opts.DataRoot, opts.SchemaRoot, opts.SchemaName),
		schema: schema,
		edges:  edges,
		cache:  readCache,
		log:    opts.Log,
	}
	return s, nil
}

// Schema exposes the store's schema registry.
func (s *Store) Schema() *SchemaRegistry { return s.schema }

func (s *Store) validator() *validator {
	return &validator{
		schema: s.schema,
		exists: s.documentExistsFn,
		scan:   s.scanEntity,
	}
}

func (s *Store) documentExistsFn(entity string, id int64) bool {
	return documentExists(s.layout.documentPath(entity, id))
}

// entities lists every entity directory currently present under
// data/<schema>/, used by BootScan.
func (s *Store) entities() ([]string, error) {
	dir := filepath.Join(s.opts.DataRoot, s.opts.SchemaName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apierr.Wrap(apierr.KindStorage, "list entities", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// scanEntity loads every document currently stored for entity. Used by
// unique-constraint checks, boot scans, and list/search.
func (s *Store) scanEntity(entity string) ([]Document, error) {
	dir := s.layout.entityDir(entity)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apierr.Wrap(apierr.KindStorage, "scan entity", err)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		doc, err := readDocumentFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue // skip unreadable/corrupt files during a scan
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// BootScan populates the edge index from every document currently on disk
// by scanning it once in full. It is also the rebuild path an
// IndexedIndex invokes when its checksum doesn't verify.
func (s *Store) BootScan(ctx context.Context) error {
	if s.edges == nil {
		return nil
	}
	entities, err := s.entities()
	if err != nil {
		return err
	}
	for _, entity := range entities {
		docs, err := s.scanEntity(entity)
		if err != nil {
			return err
		}
		for _, doc := range docs {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			refs := s.toGraphRefs(entity, doc)
			node := graph.NodeRef{Entity: entity, ID: doc.ID()}
			if err := s.edges.SetOutbound(node, refs); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Store) toGraphRefs(entity string, doc Document) []graph.Ref {
	triples := s.schema.ReferencesOf(entity, doc)
	refs := make([]graph.Ref, 0, len(triples))
	for _, t := range triples {
		refs = append(refs, graph.Ref{
			Field:  t.Field,
			Target: graph.NodeRef{Entity: t.TargetEntity, ID: t.TargetID},
		})
	}
	return refs
}

func (s *Store) cacheKey(entity string, id int64) string {
	return entity + "/" + strconv.FormatInt(id, 10)
}

// invalidateDoc drops a single document's entry from the read cache on
// write. The async query result cache, which has no per-key precision to
// exploit, is invalidated as a whole by the HTTP write handlers calling
// jobs.Manager.InvalidateAll.
func (s *Store) invalidateDoc(entity string, id int64) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(context.Background(), s.cacheKey(entity, id))
}

// getCached looks up a document in the read-through cache, decoding it on
// a hit. A decode failure is treated as a miss so a corrupt cache entry
// never surfaces as a read error to the caller.
func (s *Store) getCached(ctx context.Context, entity string, id int64) (Document, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, ok := s.cache.Get(ctx, s.cacheKey(entity, id))
	if !ok {
		return nil, false
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, false
	}
	return doc, true
}

// putCached stores doc in the read-through cache under the configured TTL.
// Encode failures and cache-backend errors are swallowed: the cache is a
// performance optimisation, never a correctness dependency.
func (s *Store) putCached(ctx context.Context, entity string, id int64, doc Document) {
	if s.cache == nil {
		return
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}
	_ = s.cache.Set(ctx, s.cacheKey(entity, id), raw, s.opts.CacheTTL)
}
