package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ha1tch/rserv/internal/apierr"
)

// FieldType is the tagged-variant discriminator for a field descriptor,
// modeled as one flat struct with a type tag rather than a type hierarchy.
type FieldType string

const (
	FieldString   FieldType = "string"
	FieldInteger  FieldType = "integer"
	FieldFloat    FieldType = "float"
	FieldBoolean  FieldType = "boolean"
	FieldDatetime FieldType = "datetime"
	FieldRef      FieldType = "REF"
	FieldList     FieldType = "list"
	FieldMapping  FieldType = "mapping"
)

// FieldDescriptor is one entity field's schema entry.
type FieldDescriptor struct {
	Type         FieldType `json:"type"`
	Required     bool      `json:"required,omitempty"`
	MaxLength    *int      `json:"max_length,omitempty"`
	Min          *float64  `json:"min,omitempty"`
	Max          *float64  `json:"max,omitempty"`
	Regex        string    `json:"regex,omitempty"`
	PrimaryKey   bool      `json:"primary_key,omitempty"`
	ForeignKey   string    `json:"foreign_key,omitempty"` // "<entity>.<field>" shorthand
	Entity       string    `json:"entity,omitempty"`      // REF target entity
	Field        string    `json:"field,omitempty"`       // REF target field (default "id")
	Unique       bool      `json:"unique,omitempty"`

	compiledRegex *regexp.Regexp
}

// EntitySchema is the field-name -> descriptor map loaded from
// schema/<schema>/<entity>.json.
type EntitySchema map[string]*FieldDescriptor

// refTarget resolves where a REF (or foreign_key) field points, defaulting
// the key field to "id".
func (fd *FieldDescriptor) refTarget() (entity, field string, ok bool) {
	if fd.Type == FieldRef && fd.Entity != "" {
		f := fd.Field
		if f == "" {
			f = "id"
		}
		return fd.Entity, f, true
	}
	if fd.ForeignKey != "" {
		parts := strings.SplitN(fd.ForeignKey, ".", 2)
		if len(parts) == 2 {
			return parts[0], parts[1], true
		}
		return parts[0], "id", true
	}
	return "", "", false
}

// Referrer is one (source_entity, source_field) pair that references a
// given target entity, as computed statically from schemas, used for
// cascade delete.
type Referrer struct {
	Entity string
	Field  string
}

// SchemaRegistry loads and serves per-entity schemas. It is safe for
// concurrent read access; reload is an explicit, infrequent operation
// guarded by a write lock.
type SchemaRegistry struct {
	mu         sync.RWMutex
	schemaRoot string
	schemaName string
	entities   map[string]EntitySchema
}

// NewSchemaRegistry loads every schema/<schemaName>/<entity>.json file
// present at start-up.
func NewSchemaRegistry(schemaRoot, schemaName string) (*SchemaRegistry, error) {
	r := &SchemaRegistry{
		schemaRoot: schemaRoot,
		schemaName: schemaName,
		entities:   make(map[string]EntitySchema),
	}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *SchemaRegistry) reload() error {
	dir := filepath.Join(r.schemaRoot, r.schemaName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // no schemas declared yet: entities are schema-less
		}
		return apierr.Wrap(apierr.KindStorage, "read schema directory", err)
	}

	loaded := make(map[string]EntitySchema, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		entity := strings.TrimSuffix(e.Name(), ".json")
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return apierr.Wrap(apierr.KindStorage, "read schema file", err)
		}
		var schema EntitySchema
		if err := json.Unmarshal(data, &schema); err != nil {
			return apierr.Wrap(apierr.KindStorage, "parse schema "+entity, err)
		}
		for field, fd := range schema {
			if fd.Regex != "" {
				re, err := regexp.Compile(fd.Regex)
				if err != nil {
					return apierr.Newf(apierr.KindValidation, "field %s: invalid regex: %v", field, err)
				}
				fd.compiledRegex = re
			}
		}
		loaded[entity] = schema
	}

	r.mu.Lock()
	r.entities = loaded
	r.mu.Unlock()
	return nil
}

// Get returns the schema for entity, or nil if no schema is declared
// (unschematized entities accept any document shape).
func (r *SchemaRegistry) Get(entity string) EntitySchema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[entity]
}

// Entities lists every entity name with a declared schema.
func (r *SchemaRegistry) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entities))
	for name := range r.entities {
		names = append(names, name)
	}
	return names
}

// Put registers (or replaces) an entity's schema in memory — used by tests
// to install a schema without writing a schema file.
func (r *SchemaRegistry) Put(entity string, schema EntitySchema) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entities == nil {
		r.entities = make(map[string]EntitySchema)
	}
	r.entities[entity] = schema
}

// ReferenceTriple is one (field, target entity, target id) reference found
// in a document.
type ReferenceTriple struct {
	Field        string
	TargetEntity string
	TargetID     int64
}

// ReferencesOf yields every REF-field reference present in doc.
func (r *SchemaRegistry) ReferencesOf(entity string, doc Document) []ReferenceTriple {
	schema := r.Get(entity)
	if schema == nil {
		return nil
	}
	var out []ReferenceTriple
	for field, fd := range schema {
		target, _, ok := fd.refTarget()
		if !ok {
			continue
		}
		val, present := doc[field]
		if !present || val == nil {
			continue
		}
		for _, id := range refIDs(val) {
			out = append(out, ReferenceTriple{Field: field, TargetEntity: target, TargetID: id})
		}
	}
	return out
}

// refIDs normalises a REF field's value — `{"id": n}`, a list of such, or
// the extended `{"type":"REF","entity":"...","id":n}` shape — into a list
// of target IDs.
func refIDs(val any) []int64 {
	switch v := val.(type) {
	case map[string]any:
		if id, ok := extractRefID(v); ok {
			return []int64{id}
		}
	case []any:
		var ids []int64
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if id, ok := extractRefID(m); ok {
					ids = append(ids, id)
				}
			}
		}
		return ids
	}
	return nil
}

func extractRefID(m map[string]any) (int64, bool) {
	switch id := m["id"].(type) {
	case float64:
		return int64(id), true
	case int64:
		return id, true
	case int:
		return int64(id), true
	}
	return 0, false
}

// NormalizeRefValue rewrites a REF field value into the canonical
// `{"id": n}` (or list thereof) shape, accepting both documented input
// forms.
func NormalizeRefValue(val any) any {
	switch v := val.(type) {
	case map[string]any:
		if id, ok := extractRefID(v); ok {
			return map[string]any{"id": id}
		}
		return val
	case []any:
		out := make([]any, 0, len(v))
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if id, ok := extractRefID(m); ok {
					out = append(out, map[string]any{"id": id})
					continue
				}
			}
			out = append(out, item)
		}
		return out
	default:
		return val
	}
}

// ReferrersOf returns every (entity, field) pair whose schema declares a
// REF/foreign_key field pointing at targetEntity — the static fan-in used
// by cascade delete.
func (r *SchemaRegistry) ReferrersOf(targetEntity string) []Referrer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Referrer
	for entity, schema := range r.entities {
		for field, fd := range schema {
			target, _, ok := fd.refTarget()
			if ok && target == targetEntity {
				out = append(out, Referrer{Entity: entity, Field: field})
			}
		}
	}
	return out
}

func fmtFieldErr(field, msg string) apierr.FieldError {
	return apierr.FieldError{Field: field, Message: msg}
}
