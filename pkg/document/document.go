package document

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reserved top-level field names, assigned and managed by the store.
const (
	FieldID       = "_id"
	FieldCreated  = "_createdTimestamp"
	FieldModified = "_modifiedTimestamp"
)

// Document is a schema-flexible record: a mapping value carrying the three
// reserved standard fields plus any number of caller-defined fields. The
// zero Document is not valid; use New.
type Document struct {
	root Value
}

// New constructs an empty document with the standard fields unassigned;
// callers typically populate fields immediately via Set and rely on
// DocumentStore.insert to assign _id/_createdTimestamp/_modifiedTimestamp.
func New() *Document {
	return &Document{root: NewMap()}
}

// FromValue wraps an existing mapping Value as a Document, validating the
// standard fields per their invariants (§4.1: _id non-empty if present,
// timestamp fields must be timestamps if present).
func FromValue(v Value) (*Document, error) {
	if v.Kind() != KindMap {
		return nil, wrap(fmt.Errorf("%w: document root must be an object", ErrInvalidArgument))
	}
	d := &Document{root: v}
	if err := d.validateStandardFields(); err != nil {
		return nil, err
	}
	return d, nil
}

// FromJSON parses JSON bytes into a Document. Numbers decode as Float
// unless they are integral and fit in int64, in which case they decode as
// Int. There is no JSON representation for Decimal or UUID leaves; callers
// needing those types construct the Document programmatically.
func FromJSON(data []byte) (*Document, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, wrap(fmt.Errorf("%w: %v", ErrInvalidArgument, err))
	}
	v, err := fromAny(raw)
	if err != nil {
		return nil, err
	}
	return FromValue(v)
}

func fromAny(raw any) (Value, error) {
	switch t := raw.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case float64:
		if t == float64(int64(t)) {
			return Int(int64(t)), nil
		}
		return Float(t), nil
	case string:
		return String(t), nil
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			v, err := fromAny(item)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return Array(items...), nil
	case map[string]any:
		m := NewMap()
		for k, item := range t {
			v, err := fromAny(item)
			if err != nil {
				return Value{}, err
			}
			m = m.MapSet(k, v)
		}
		return m, nil
	default:
		return Value{}, wrap(fmt.Errorf("%w: unsupported JSON value %T", ErrInvalidArgument, raw))
	}
}

// Root returns the document's underlying mapping value.
func (d *Document) Root() Value { return d.root }

// Get returns the value at a top-level field, or (Null, false) if absent.
func (d *Document) Get(field string) (Value, bool) {
	return d.root.MapGet(field)
}

// Set assigns a value to a top-level field, enforcing the invariants of
// §4.1: _id must be a non-empty identifier value; the timestamp standard
// fields must be Timestamp values; any other field must hold a value drawn
// from the allowed kinds (which every Value already is by construction).
func (d *Document) Set(field string, v Value) error {
	switch field {
	case FieldID:
		id, ok := v.UUID()
		if !ok || id == uuid.Nil {
			return wrap(fmt.Errorf("%w: _id must be a non-empty identifier", ErrInvalidField), withField(field))
		}
	case FieldCreated, FieldModified:
		if _, ok := v.Time(); !ok {
			return wrap(fmt.Errorf("%w: %s must be a timestamp", ErrInvalidField, field), withField(field))
		}
	}
	d.root = d.root.MapSet(field, v)
	return nil
}

// ID returns the document's identifier, or uuid.Nil if unset.
func (d *Document) ID() uuid.UUID {
	v, ok := d.Get(FieldID)
	if !ok {
		return uuid.Nil
	}
	id, _ := v.UUID()
	return id
}

// CreatedTimestamp returns the document's creation time, zero if unset.
func (d *Document) CreatedTimestamp() time.Time {
	v, ok := d.Get(FieldCreated)
	if !ok {
		return time.Time{}
	}
	t, _ := v.Time()
	return t
}

// ModifiedTimestamp returns the document's last-modified time, zero if unset.
func (d *Document) ModifiedTimestamp() time.Time {
	v, ok := d.Get(FieldModified)
	if !ok {
		return time.Time{}
	}
	t, _ := v.Time()
	return t
}

// validateStandardFields checks the standard-field invariants on an
// already-constructed root value (used by FromValue, not by Set, since Set
// validates per-assignment).
func (d *Document) validateStandardFields() error {
	if v, ok := d.Get(FieldID); ok {
		id, isUUID := v.UUID()
		if !isUUID || id == uuid.Nil {
			return wrap(fmt.Errorf("%w: _id must be a non-empty identifier", ErrInvalidField), withField(FieldID))
		}
	}
	for _, field := range []string{FieldCreated, FieldModified} {
		if v, ok := d.Get(field); ok {
			if _, isTime := v.Time(); !isTime {
				return wrap(fmt.Errorf("%w: %s must be a timestamp", ErrInvalidField, field), withField(field))
			}
		}
	}
	return nil
}

// NormalizeDatesToUTC rewrites every timestamp reachable from the root,
// through maps and arrays, to UTC, in place. Idempotent: applying it twice
// produces the same result as applying it once (property 3).
func (d *Document) NormalizeDatesToUTC() {
	d.root = d.root.walkTimestamps(func(t time.Time) time.Time { return t.UTC() })
}

// Equal reports deep equality between two documents, defined as equality of
// their canonical byte forms under the "none" codec (property 4: canonical
// bytes are deterministic given deep equality, so this is equivalent to,
// and cheaper than, comparing CanonicalBytes output).
func (d *Document) Equal(other *Document) bool {
	if d == nil || other == nil {
		return d == other
	}
	return deepEqual(d.root, other.root)
}

// SelectFields returns a new Document containing only the named top-level
// fields (plus the standard fields, always retained) — used to implement
// the REST surface's `select=a,b,c` projection (§6).
func (d *Document) SelectFields(fields []string) *Document {
	out := New()
	keep := make(map[string]bool, len(fields)+3)
	for _, f := range fields {
		keep[f] = true
	}
	keep[FieldID] = true
	keep[FieldCreated] = true
	keep[FieldModified] = true

	for _, k := range d.root.MapKeys() {
		if keep[k] {
			v, _ := d.root.MapGet(k)
			out.root = out.root.MapSet(k, v)
		}
	}
	return out
}

// ContentHash returns a content hash of the document's canonical byte form
// under the "none" codec, suitable for cheap change detection (distinct
// from Schema.fingerprint, which hashes a field catalog, not a document).
func (d *Document) ContentHash() (uint64, error) {
	b, err := d.CanonicalBytes(CodecNone)
	if err != nil {
		return 0, err
	}
	return fnv1a64(b), nil
}

func fnv1a64(data []byte) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for _, b := range data {
		h ^= uint64(b)
		h *= prime64
	}
	return h
}

// ToJSON renders the document as JSON, for the REST surface. Decimal and
// UUID leaves render as strings since JSON has no native representation.
func (d *Document) ToJSON() ([]byte, error) {
	return json.Marshal(toAny(d.root))
}

func toAny(v Value) any {
	switch v.Kind() {
	case KindNull:
		return nil
	case KindBool:
		b, _ := v.Bool()
		return b
	case KindInt:
		i, _ := v.Int()
		return i
	case KindFloat:
		f, _ := v.Float()
		return f
	case KindDecimal:
		dec, _ := v.Decimal()
		return dec.RatString()
	case KindString:
		s, _ := v.String()
		return s
	case KindTimestamp:
		t, _ := v.Time()
		return t.UTC().Format(time.RFC3339Nano)
	case KindUUID:
		id, _ := v.UUID()
		return id.String()
	case KindArray:
		arr, _ := v.Array()
		out := make([]any, len(arr))
		for i, item := range arr {
			out[i] = toAny(item)
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.mapVal))
		for _, k := range v.MapKeys() {
			item, _ := v.MapGet(k)
			out[k] = toAny(item)
		}
		return out
	default:
		return nil
	}
}
