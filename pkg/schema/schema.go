// Package schema implements the evolving per-collection field catalog:
// a mapping from field name to Field{name, data type, array element type,
// nested schema}, inferred from inserted documents and persisted
// periodically by the collection (spec §4.2).
package schema

import (
	"fmt"
	"hash/fnv"
	"sort"

	"github.com/calvinalkan/docengine/pkg/document"
)

// DataType enumerates the field types a Schema can record.
type DataType int

const (
	TypeStringExact DataType = iota
	TypeStringText
	TypeInteger
	TypeFloating
	TypeDecimal
	TypeBoolean
	TypeTimestamp
	TypeUUID
	TypeArray
	TypeObject
	TypeNullToken
)

// elemTypeUnset marks Field.ElemType as "no element has been observed yet"
// (e.g. an empty or all-null array), distinct from the zero DataType value
// TypeStringExact, which is a legitimate inferred element type.
const elemTypeUnset DataType = -1

func (t DataType) String() string {
	switch t {
	case TypeStringExact:
		return "string-exact"
	case TypeStringText:
		return "string-text"
	case TypeInteger:
		return "integer"
	case TypeFloating:
		return "floating"
	case TypeDecimal:
		return "decimal"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamp"
	case TypeUUID:
		return "unique-identifier"
	case TypeArray:
		return "array"
	case TypeObject:
		return "object"
	case TypeNullToken:
		return "null-token"
	default:
		return fmt.Sprintf("datatype(%d)", int(t))
	}
}

// Field describes one entry in a Schema's field catalog.
type Field struct {
	Name string
	Type DataType

	// ElemType is meaningful only when Type == TypeArray and the array's
	// elements are scalars of a single type.
	ElemType DataType

	// Nested holds the sub-schema for object fields, and for arrays whose
	// elements are objects.
	Nested *Schema
}

// Schema is a collection's field catalog. The zero Schema is not valid;
// use New or NewDefault.
type Schema struct {
	// CollectionName names the owning collection; empty for nested schemas.
	CollectionName string

	fields map[string]*Field
	order  []string // first-observed order, for Fields and Encode
}

// standardFields are always present with fixed, immutable types (§3).
var standardFields = []Field{
	{Name: document.FieldID, Type: TypeUUID},
	{Name: document.FieldCreated, Type: TypeTimestamp},
	{Name: document.FieldModified, Type: TypeTimestamp},
}

// New constructs an empty nested schema (no standard fields — used for
// object/array-of-object sub-schemas, which do not carry the top-level
// document's reserved fields).
func New() *Schema {
	return &Schema{fields: map[string]*Field{}}
}

// NewDefault constructs a collection-root schema containing only the three
// standard fields (§4.2 "create-default").
func NewDefault(collectionName string) *Schema {
	s := &Schema{CollectionName: collectionName, fields: map[string]*Field{}}
	for _, f := range standardFields {
		f := f
		s.fields[f.Name] = &f
		s.order = append(s.order, f.Name)
	}
	return s
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (*Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// Fields returns the catalog in first-observed order.
func (s *Schema) Fields() []*Field {
	out := make([]*Field, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.fields[name])
	}
	return out
}

func (s *Schema) setField(f *Field) {
	if _, exists := s.fields[f.Name]; !exists {
		s.order = append(s.order, f.Name)
	}
	s.fields[f.Name] = f
}

func isStandardField(name string) bool {
	return name == document.FieldID || name == document.FieldCreated || name == document.FieldModified
}

// ErrTypeConflict is returned by MergeInferred when an observed value's
// type contradicts a field's previously recorded type.
type ErrTypeConflict struct {
	Field    string
	Observed DataType
	Recorded DataType
}

func (e *ErrTypeConflict) Error() string {
	return fmt.Sprintf("schema: field %q observed as %s, conflicts with recorded type %s", e.Field, e.Observed, e.Recorded)
}

// MergeInferred merges the fields of a document's value tree into the
// schema, adding any missing fields with an inferred type and rejecting
// (via *ErrTypeConflict) any field whose observed type contradicts a
// previously recorded type (§4.2, property 10).
func (s *Schema) MergeInferred(doc *document.Document) error {
	root := doc.Root()
	for _, key := range root.MapKeys() {
		if isStandardField(key) {
			continue // standard fields are immutable, never re-inferred
		}
		v, _ := root.MapGet(key)
		if err := s.mergeField(key, v); err != nil {
			return err
		}
	}
	return nil
}

func (s *Schema) mergeField(name string, v document.Value) error {
	if v.Kind() == document.KindNull {
		// A null leaf never establishes or contradicts a type; if the
		// field is wholly unknown it is recorded as null-token until a
		// non-null observation arrives.
		if _, exists := s.fields[name]; !exists {
			s.setField(&Field{Name: name, Type: TypeNullToken})
		}
		return nil
	}

	existing, exists := s.fields[name]
	if !exists {
		f, err := s.inferField(name, v)
		if err != nil {
			return err
		}
		s.setField(f)
		return nil
	}

	// A field first observed as null-token is upgraded on first non-null
	// observation, rather than treated as a conflict.
	if existing.Type == TypeNullToken {
		f, err := s.inferField(name, v)
		if err != nil {
			return err
		}
		s.setField(f)
		return nil
	}

	return s.reconcileField(existing, v)
}

func (s *Schema) inferField(name string, v document.Value) (*Field, error) {
	switch v.Kind() {
	case document.KindBool:
		return &Field{Name: name, Type: TypeBoolean}, nil
	case document.KindInt:
		return &Field{Name: name, Type: TypeInteger}, nil
	case document.KindFloat:
		return &Field{Name: name, Type: TypeFloating}, nil
	case document.KindDecimal:
		return &Field{Name: name, Type: TypeDecimal}, nil
	case document.KindString:
		return &Field{Name: name, Type: TypeStringText}, nil
	case document.KindTimestamp:
		return &Field{Name: name, Type: TypeTimestamp}, nil
	case document.KindUUID:
		return &Field{Name: name, Type: TypeUUID}, nil
	case document.KindArray:
		return s.inferArrayField(name, v)
	case document.KindMap:
		nested := New()
		if err := nested.mergeMapFields(v); err != nil {
			return nil, err
		}
		return &Field{Name: name, Type: TypeObject, Nested: nested}, nil
	default:
		return nil, fmt.Errorf("schema: cannot infer type for field %q", name)
	}
}

func (s *Schema) inferArrayField(name string, v document.Value) (*Field, error) {
	items, _ := v.Array()
	f := &Field{Name: name, Type: TypeArray, ElemType: elemTypeUnset}
	elemSeen := false
	for _, item := range items {
		if item.Kind() == document.KindNull {
			continue
		}
		if item.Kind() == document.KindMap {
			if f.Nested == nil {
				if elemSeen {
					return nil, &ErrTypeConflict{Field: name, Observed: TypeObject, Recorded: f.ElemType}
				}
				f.Nested = New()
				f.ElemType = TypeObject
			}
			if err := f.Nested.mergeMapFields(item); err != nil {
				return nil, err
			}
			continue
		}
		elemField, err := s.inferField(name, item)
		if err != nil {
			return nil, err
		}
		if f.Nested != nil {
			return nil, &ErrTypeConflict{Field: name, Observed: elemField.Type, Recorded: TypeObject}
		}
		if !elemSeen {
			f.ElemType = elemField.Type
			elemSeen = true
		} else if f.ElemType != elemField.Type {
			return nil, &ErrTypeConflict{Field: name, Observed: elemField.Type, Recorded: f.ElemType}
		}
	}
	return f, nil
}

func (s *Schema) reconcileField(existing *Field, v document.Value) error {
	switch v.Kind() {
	case document.KindMap:
		if existing.Type != TypeObject {
			return &ErrTypeConflict{Field: existing.Name, Observed: TypeObject, Recorded: existing.Type}
		}
		return existing.Nested.mergeMapFields(v)
	case document.KindArray:
		observed, err := s.inferArrayField(existing.Name, v)
		if err != nil {
			return err
		}
		if existing.Type != TypeArray {
			return &ErrTypeConflict{Field: existing.Name, Observed: TypeArray, Recorded: existing.Type}
		}
		if existing.Nested != nil {
			if observed.Nested == nil {
				return nil // array was empty or all-null; nothing new to merge
			}
			return existing.Nested.mergeFieldsFrom(observed.Nested)
		}
		if observed.ElemType == elemTypeUnset {
			return nil // array was empty or all-null; nothing new to merge
		}
		if existing.ElemType == elemTypeUnset {
			existing.ElemType = observed.ElemType
			return nil
		}
		if existing.ElemType != observed.ElemType {
			return &ErrTypeConflict{Field: existing.Name, Observed: observed.ElemType, Recorded: existing.ElemType}
		}
		return nil
	default:
		observed, err := s.inferField(existing.Name, v)
		if err != nil {
			return err
		}
		if observed.Type != existing.Type {
			return &ErrTypeConflict{Field: existing.Name, Observed: observed.Type, Recorded: existing.Type}
		}
		return nil
	}
}

// mergeMapFields merges the fields of a raw mapping value (used for nested
// object schemas, which have no document-level standard fields to skip).
func (s *Schema) mergeMapFields(v document.Value) error {
	for _, key := range v.MapKeys() {
		item, _ := v.MapGet(key)
		if err := s.mergeField(key, item); err != nil {
			return err
		}
	}
	return nil
}

// mergeFieldsFrom merges every field of another schema into s, as if each
// had been observed via mergeField; used when reconciling array-of-object
// element schemas.
func (s *Schema) mergeFieldsFrom(other *Schema) error {
	for _, f := range other.Fields() {
		existing, exists := s.fields[f.Name]
		if !exists {
			s.setField(f)
			continue
		}
		if existing.Type == TypeNullToken {
			s.setField(f)
			continue
		}
		if existing.Type != f.Type {
			return &ErrTypeConflict{Field: f.Name, Observed: f.Type, Recorded: existing.Type}
		}
		if existing.Type == TypeObject {
			if err := existing.Nested.mergeFieldsFrom(f.Nested); err != nil {
				return err
			}
		}
	}
	return nil
}

// Equal reports content equality by canonical bytes (§4.2 "equal").
func (s *Schema) Equal(other *Schema) bool {
	if s == nil || other == nil {
		return s == other
	}
	a, err := s.CanonicalBytes()
	if err != nil {
		return false
	}
	b, err := other.CanonicalBytes()
	if err != nil {
		return false
	}
	return string(a) == string(b)
}

// Fingerprint returns an FNV-32a hash of the schema's canonical bytes,
// grounded on the teacher's SQLSchema.fingerprint (order-independent:
// canonical bytes always list fields sorted by name).
func (s *Schema) Fingerprint() (uint32, error) {
	b, err := s.CanonicalBytes()
	if err != nil {
		return 0, err
	}
	h := fnv.New32a()
	_, _ = h.Write(b)
	return h.Sum32(), nil
}

// CanonicalBytes renders a deterministic, order-independent byte encoding
// of the schema, sorting fields by name at every level.
func (s *Schema) CanonicalBytes() ([]byte, error) {
	var buf []byte
	names := make([]string, 0, len(s.fields))
	for name := range s.fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		f := s.fields[name]
		buf = append(buf, []byte(f.Name)...)
		buf = append(buf, 0)
		buf = append(buf, byte(f.Type))
		buf = append(buf, byte(f.ElemType))
		if f.Nested != nil {
			nb, err := f.Nested.CanonicalBytes()
			if err != nil {
				return nil, err
			}
			buf = append(buf, nb...)
		}
		buf = append(buf, 0xFF)
	}
	return buf, nil
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	clone := &Schema{CollectionName: s.CollectionName, fields: map[string]*Field{}}
	for _, name := range s.order {
		f := *s.fields[name]
		if f.Nested != nil {
			f.Nested = f.Nested.Clone()
		}
		clone.fields[name] = &f
		clone.order = append(clone.order, name)
	}
	return clone
}
