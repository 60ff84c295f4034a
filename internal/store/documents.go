package store

import (
	"context"
	"sort"
	"strings"

	"github.com/ha1tch/rserv/internal/apierr"
	"github.com/ha1tch/rserv/internal/graph"
)

// Create allocates an id, validates body, writes the document, updates the
// edge index for any REF fields, and invalidates caches.
func (s *Store) Create(ctx context.Context, entity string, body Document) (Document, error) {
	if !ValidEntityName(entity) {
		return nil, apierr.New(apierr.KindValidation, "invalid entity name")
	}

	lock, err := s.layout.lockEntity(entity)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	id, err := s.allocateIDLocked(entity)
	if err != nil {
		return nil, err
	}

	doc := body.Clone()
	doc["id"] = id

	validated, err := s.validator().Validate(entity, doc, ModeCreate, id)
	if err != nil {
		return nil, err
	}

	if err := writeFileAtomic(s.layout.documentPath(entity, id), validated); err != nil {
		return nil, err
	}

	s.updateEdgesAndInvalidate(entity, validated)
	return validated, nil
}

// allocateIDLocked is allocateID's body, callable while the caller already
// holds the entity lock (Create needs allocate+validate+write as one
// critical section so a concurrent Create can't allocate the same id).
func (s *Store) allocateIDLocked(entity string) (int64, error) {
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

// Save creates a document with a caller-supplied id, failing with Conflict
// if the id already exists.
func (s *Store) Save(ctx context.Context, entity string, id int64, body Document) (Document, error) {
	if !ValidEntityName(entity) {
		return nil, apierr.New(apierr.KindValidation, "invalid entity name")
	}

	lock, err := s.layout.lockEntity(entity)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	path := s.layout.documentPath(entity, id)
	if documentExists(path) {
		return nil, apierr.New(apierr.KindConflict, "document already exists").WithStatus(409)
	}

	doc := body.Clone()
	doc["id"] = id

	validated, err := s.validator().Validate(entity, doc, ModeCreate, id)
	if err != nil {
		return nil, err
	}

	if err := s.layout.ensureEntityDir(entity); err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, validated); err != nil {
		return nil, err
	}

	// Keep the allocator ahead of any manually-saved id so future Create
	// calls never collide with it.
	if err := s.bumpAllocatorPast(entity, id); err != nil {
		return nil, err
	}

	s.updateEdgesAndInvalidate(entity, validated)
	return validated, nil
}

func (s *Store) bumpAllocatorPast(entity string, id int64) error {
	next, err := readNextID(s.layout.nextIDPath(entity))
	if err != nil {
		return err
	}
	if id >= next {
		return writeNextID(s.layout.nextIDPath(entity), id+1)
	}
	return nil
}

// Get returns the document, or NotFound.
func (s *Store) Get(ctx context.Context, entity string, id int64) (Document, error) {
	if cached, ok := s.getCached(ctx, entity, id); ok {
		return cached, nil
	}
	doc, err := readDocumentFile(s.layout.documentPath(entity, id))
	if err != nil {
		return nil, err
	}
	s.putCached(ctx, entity, id, doc)
	return doc, nil
}

// Replace validates and rewrites the whole document, recomputing edges.
func (s *Store) Replace(ctx context.Context, entity string, id int64, body Document) (Document, error) {
	lock, err := s.layout.lockEntity(entity)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	path := s.layout.documentPath(entity, id)
	if !documentExists(path) {
		return nil, apierr.NotFound("document")
	}

	doc := body.Clone()
	doc["id"] = id

	validated, err := s.validator().Validate(entity, doc, ModeReplace, id)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, validated); err != nil {
		return nil, err
	}

	s.updateEdgesAndInvalidate(entity, validated)
	return validated, nil
}

// Patch merges partial into the stored document per PatchNullPolicy,
// validates the merged document, and recomputes edges for affected fields.
func (s *Store) Patch(ctx context.Context, entity string, id int64, partial Document) (Document, error) {
	lock, err := s.layout.lockEntity(entity)
	if err != nil {
		return nil, err
	}
	defer lock.unlock()

	path := s.layout.documentPath(entity, id)
	current, err := readDocumentFile(path)
	if err != nil {
		return nil, err
	}

	merged := current.Clone()
	for field, val := range partial {
		if val == nil {
			if s.opts.PatchNull == PatchNullDelete {
				delete(merged, field)
			} else {
				merged[field] = nil
			}
			continue
		}
		merged[field] = val
	}
	merged["id"] = id

	validated, err := s.validator().Validate(entity, merged, ModePatch, id)
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(path, validated); err != nil {
		return nil, err
	}

	s.updateEdgesAndInvalidate(entity, validated)
	return validated, nil
}

// Delete removes a document, optionally cascading to every document that
// references it. Non-cascade delete of a document that is still
// referenced fails with IntegrityError.
func (s *Store) Delete(ctx context.Context, entity string, id int64, cascade bool) error {
	if cascade && s.opts.CascadingDelete {
		seen := make(map[graph.NodeRef]bool)
		return s.cascadeDelete(ctx, entity, id, seen)
	}

	if err := s.checkNoIncomingReferences(entity, id); err != nil {
		return err
	}
	return s.deleteOne(entity, id)
}

// checkNoIncomingReferences enforces the non-cascade delete guard:
// deleting a document that would orphan a foreign-key reference fails
// with IntegrityError.
func (s *Store) checkNoIncomingReferences(entity string, id int64) error {
	if s.edges == nil {
		return nil
	}
	inbound := s.edges.Inbound(graph.NodeRef{Entity: entity, ID: id})
	if len(inbound) > 0 {
		return apierr.New(apierr.KindIntegrity, "document is still referenced; use cascade delete").WithStatus(409)
	}
	return nil
}

// cascadeDelete recursively resolves referrers via schema.ReferrersOf and
// deletes matching documents before deleting the target, guarding against
// cycles with seen.
func (s *Store) cascadeDelete(ctx context.Context, entity string, id int64, seen map[graph.NodeRef]bool) error {
	node := graph.NodeRef{Entity: entity, ID: id}
	if seen[node] {
		return nil
	}
	seen[node] = true

	for _, referrer := range s.schema.ReferrersOf(entity) {
		referringDocs, err := s.scanEntity(referrer.Entity)
		if err != nil {
			return err
		}
		for _, d := range referringDocs {
			if referencesTarget(d, referrer.Field, id) {
				if err := s.cascadeDelete(ctx, referrer.Entity, d.ID(), seen); err != nil {
					return err
				}
			}
		}
	}

	return s.deleteOne(entity, id)
}

func referencesTarget(doc Document, field string, targetID int64) bool {
	val, ok := doc[field]
	if !ok {
		return false
	}
	for _, id := range refIDs(val) {
		if id == targetID {
			return true
		}
	}
	return false
}

func (s *Store) deleteOne(entity string, id int64) error {
	lock, err := s.layout.lockEntity(entity)
	if err != nil {
		return err
	}
	defer lock.unlock()

	path := s.layout.documentPath(entity, id)
	if !documentExists(path) {
		return apierr.NotFound("document")
	}
	if err := removeFile(path); err != nil {
		return err
	}

	if s.edges != nil {
		_ = s.edges.Remove(graph.NodeRef{Entity: entity, ID: id})
	}
	s.invalidateDoc(entity, id)
	return nil
}

// updateEdgesAndInvalidate recomputes the edge index entry for doc and
// drops any cached copy — the shared tail of create/save/replace/patch.
func (s *Store) updateEdgesAndInvalidate(entity string, doc Document) {
	if s.edges != nil {
		refs := s.toGraphRefs(entity, doc)
		_ = s.edges.SetOutbound(graph.NodeRef{Entity: entity, ID: doc.ID()}, refs)
	}
	s.invalidateDoc(entity, doc.ID())
}

// List returns a page of entity's documents, sorted per sorts
// (`list?page=&per_page=&sort=field:asc,...`).
func (s *Store) List(ctx context.Context, entity string, page Page, sorts []SortSpec) ([]Document, int, error) {
	docs, err := s.scanEntity(entity)
	if err != nil {
		return nil, 0, err
	}

	sortDocuments(docs, sorts)

	page = page.Clamp(s.opts.DefaultPageSize)
	total := len(docs)
	start := (page.Page - 1) * page.PerPage
	if start >= total {
		return []Document{}, total, nil
	}
	end := start + page.PerPage
	if end > total {
		end = total
	}
	return docs[start:end], total, nil
}

func sortDocuments(docs []Document, sorts []SortSpec) {
	if len(sorts) == 0 {
		sort.Slice(docs, func(i, j int) bool { return docs[i].ID() < docs[j].ID() })
		return
	}
	sort.SliceStable(docs, func(i, j int) bool {
		for _, s := range sorts {
			cmp := compareFieldValues(docs[i][s.Field], docs[j][s.Field])
			if cmp == 0 {
				continue
			}
			if s.Desc {
				return cmp > 0
			}
			return cmp < 0
		}
		return false
	})
}

func compareFieldValues(a, b any) int {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, _ := a.(string)
	bs, _ := b.(string)
	return strings.Compare(as, bs)
}

// Search performs a simple substring match over field's string value
// across entity's documents (`/search?query=&field=`). This is a plain
// in-core fallback with no external full-text indexer collaborator.
func (s *Store) Search(ctx context.Context, entity, field, query string, page Page) ([]Document, int, error) {
	docs, err := s.scanEntity(entity)
	if err != nil {
		return nil, 0, err
	}

	var matched []Document
	lowerQuery := strings.ToLower(query)
	for _, d := range docs {
		if field != "" {
			if s, ok := d[field].(string); ok && strings.Contains(strings.ToLower(s), lowerQuery) {
				matched = append(matched, d)
			}
			continue
		}
		for _, v := range d {
			if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), lowerQuery) {
				matched = append(matched, d)
				break
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID() < matched[j].ID() })
	page = page.Clamp(s.opts.DefaultPageSize)
	total := len(matched)
	start := (page.Page - 1) * page.PerPage
	if start >= total {
		return []Document{}, total, nil
	}
	end := start + page.PerPage
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
