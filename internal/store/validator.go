package store

import (
	"strings"

	"github.com/ha1tch/rserv/internal/apierr"
)

// existsFunc checks whether entity/id currently exists — injected so the
// validator doesn't need the full Store (Store.validator supplies
// Store.documentExistsFn).
type existsFunc func(entity string, id int64) bool

// scanFunc iterates every document currently stored in entity, used for
// `unique` constraint enforcement, which is checked by a linear scan at
// write time.
type scanFunc func(entity string) ([]Document, error)

// validator validates a document against its entity's schema for a given
// write mode.
type validator struct {
	schema *SchemaRegistry
	exists existsFunc
	scan   scanFunc
}

// Validate normalises and validates doc against entity's schema for the
// given mode, returning the normalised document or a ValidationError /
// IntegrityError with field-level details.
func (v *validator) Validate(entity string, doc Document, mode WriteMode, selfID int64) (Document, error) {
	schema := v.schema.Get(entity)
	if schema == nil {
		return doc, nil // unschematized entity: accept as-is
	}

	out := doc.Clone()
	var details []apierr.FieldError
	integrity := false

	for field, fd := range schema {
		val, present := out[field]

		if mode != ModePatch && fd.Required && (!present || val == nil) {
			details = append(details, fmtFieldErr(field, "required field missing"))
			continue
		}
		if mode == ModePatch && !present {
			continue // patch only checks provided fields
		}
		if !present || val == nil {
			continue
		}

		if fd.Type == FieldRef {
			out[field] = NormalizeRefValue(val)
			val = out[field]
		}

		if errs := checkType(field, fd, val); len(errs) > 0 {
			details = append(details, errs...)
			continue
		}

		if fd.Type == FieldRef {
			if err := v.checkRefTargets(field, fd, val); err != nil {
				details = append(details, *err)
				integrity = true
			}
		}

		if fd.Unique {
			if err := v.checkUnique(entity, field, val, selfID); err != nil {
				details = append(details, *err)
				integrity = true
			}
		}
	}

	if len(details) > 0 {
		kind := apierr.KindValidation
		if integrity {
			kind = apierr.KindIntegrity
		}
		return nil, apierr.New(kind, "document failed schema validation").WithDetails(details...)
	}
	return out, nil
}

func checkType(field string, fd *FieldDescriptor, val any) []apierr.FieldError {
	var errs []apierr.FieldError
	switch fd.Type {
	case FieldString, FieldDatetime:
		s, ok := val.(string)
		if !ok {
			return []apierr.FieldError{fmtFieldErr(field, "expected string")}
		}
		if fd.MaxLength != nil && len(s) > *fd.MaxLength {
			errs = append(errs, fmtFieldErr(field, "exceeds max_length"))
		}
		if fd.compiledRegex != nil && !fd.compiledRegex.MatchString(s) {
			errs = append(errs, fmtFieldErr(field, "does not match regex"))
		}
	case FieldInteger:
		n, ok := asFloat(val)
		if !ok || n != float64(int64(n)) {
			return []apierr.FieldError{fmtFieldErr(field, "expected integer")}
		}
		errs = append(errs, checkRange(field, fd, n)...)
	case FieldFloat:
		n, ok := asFloat(val)
		if !ok {
			return []apierr.FieldError{fmtFieldErr(field, "expected float")}
		}
		errs = append(errs, checkRange(field, fd, n)...)
	case FieldBoolean:
		if _, ok := val.(bool); !ok {
			errs = append(errs, fmtFieldErr(field, "expected boolean"))
		}
	case FieldList:
		if _, ok := val.([]any); !ok {
			errs = append(errs, fmtFieldErr(field, "expected list"))
		}
	case FieldMapping:
		if _, ok := val.(map[string]any); !ok {
			errs = append(errs, fmtFieldErr(field, "expected mapping"))
		}
	case FieldRef:
		if _, ok := val.(map[string]any); ok {
			return nil
		}
		if list, ok := val.([]any); ok {
			for _, item := range list {
				if _, ok := item.(map[string]any); !ok {
					errs = append(errs, fmtFieldErr(field, "expected reference value(s)"))
					break
				}
			}
			return errs
		}
		errs = append(errs, fmtFieldErr(field, "expected reference value(s)"))
	}
	return errs
}

func checkRange(field string, fd *FieldDescriptor, n float64) []apierr.FieldError {
	var errs []apierr.FieldError
	if fd.Min != nil && n < *fd.Min {
		errs = append(errs, fmtFieldErr(field, "below min"))
	}
	if fd.Max != nil && n > *fd.Max {
		errs = append(errs, fmtFieldErr(field, "above max"))
	}
	return errs
}

func asFloat(val any) (float64, bool) {
	switch v := val.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// checkRefTargets enforces that a REF field's target exists at the time
// of write.
func (v *validator) checkRefTargets(field string, fd *FieldDescriptor, val any) *apierr.FieldError {
	target, _, _ := fd.refTarget()
	for _, id := range refIDs(val) {
		if !v.exists(target, id) {
			fe := fmtFieldErr(field, "foreign key target does not exist")
			return &fe
		}
	}
	return nil
}

// checkUnique performs the linear scan required by `unique: true`,
// skipping the document being updated (selfID).
func (v *validator) checkUnique(entity, field string, val any, selfID int64) *apierr.FieldError {
	docs, err := v.scan(entity)
	if err != nil {
		fe := fmtFieldErr(field, "uniqueness check failed: "+err.Error())
		return &fe
	}
	for _, d := range docs {
		if d.ID() == selfID {
			continue
		}
		if valuesEqual(d[field], val) {
			fe := fmtFieldErr(field, "value is not unique")
			return &fe
		}
	}
	return nil
}

func valuesEqual(a, b any) bool {
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as == bs
	}
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if aok && bok {
		return af == bf
	}
	return a == b
}

// normalizeLabel upper-cases a field name into an edge label: field
// `friends` -> `FRIENDS`, field `foo_bar` -> `FOO_BAR`.
func normalizeLabel(field string) string {
	return strings.ToUpper(field)
}
