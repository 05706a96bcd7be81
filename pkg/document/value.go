// Package document implements the dynamic record type stored by a
// collection: a recursive tree of null, boolean, numeric, decimal, string,
// timestamp and identifier leaves, arrays and mappings, plus the three
// reserved top-level fields every document carries.
package document

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the variant held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindDecimal
	KindString
	KindTimestamp
	KindUUID
	KindArray
	KindMap
)

// String renders the kind's canonical name, matching the data-type
// vocabulary of the field catalog (see pkg/schema).
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null-token"
	case KindBool:
		return "boolean"
	case KindInt:
		return "integer"
	case KindFloat:
		return "floating"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindTimestamp:
		return "timestamp"
	case KindUUID:
		return "unique-identifier"
	case KindArray:
		return "array"
	case KindMap:
		return "object"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Value is a single node in a document's value tree. Exactly one of the
// typed fields is meaningful, selected by Kind. Zero value is KindNull.
type Value struct {
	kind Kind

	boolVal   bool
	intVal    int64
	floatVal  float64
	decimal   *big.Rat
	strVal    string
	timeVal   time.Time
	uuidVal   uuid.UUID
	arrayVal  []Value
	mapVal    map[string]Value
	mapOrder  []string // field order reported by MapKeys; canonical bytes sort keys instead
}

func Null() Value                  { return Value{kind: KindNull} }
func Bool(v bool) Value            { return Value{kind: KindBool, boolVal: v} }
func Int(v int64) Value            { return Value{kind: KindInt, intVal: v} }
func Float(v float64) Value        { return Value{kind: KindFloat, floatVal: v} }
func String(v string) Value        { return Value{kind: KindString, strVal: v} }
func Timestamp(v time.Time) Value  { return Value{kind: KindTimestamp, timeVal: v} }
func ID(v uuid.UUID) Value         { return Value{kind: KindUUID, uuidVal: v} }

// Decimal constructs a decimal value from its exact string representation
// (e.g. "19.99"). Returns an error if s is not a valid decimal literal.
func Decimal(s string) (Value, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return Value{}, fmt.Errorf("document: invalid decimal literal %q", s)
	}
	return Value{kind: KindDecimal, decimal: r}, nil
}

// Array constructs an ordered sequence value.
func Array(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: KindArray, arrayVal: cp}
}

// Map constructs a mapping value. Its field order (as reported by MapKeys)
// is m's keys sorted by name.
func Map(m map[string]Value) Value {
	order := make([]string, 0, len(m))
	for k := range m {
		order = append(order, k)
	}
	sort.Strings(order)
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, mapVal: cp, mapOrder: order}
}

// NewMap constructs an empty mapping value. Keys added with MapSet are
// reported by MapKeys in insertion order; canonical byte encoding sorts
// keys regardless of that order.
func NewMap() Value {
	return Value{kind: KindMap, mapVal: map[string]Value{}, mapOrder: nil}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)           { return v.boolVal, v.kind == KindBool }
func (v Value) Int() (int64, bool)           { return v.intVal, v.kind == KindInt }
func (v Value) Float() (float64, bool)       { return v.floatVal, v.kind == KindFloat }
func (v Value) Decimal() (*big.Rat, bool)    { return v.decimal, v.kind == KindDecimal }
func (v Value) String() (string, bool)       { return v.strVal, v.kind == KindString }
func (v Value) Time() (time.Time, bool)      { return v.timeVal, v.kind == KindTimestamp }
func (v Value) UUID() (uuid.UUID, bool)      { return v.uuidVal, v.kind == KindUUID }
func (v Value) Array() ([]Value, bool)       { return v.arrayVal, v.kind == KindArray }

// MapKeys returns field names of a mapping value in canonical order
// (insertion order if set via Set, else sorted).
func (v Value) MapKeys() []string {
	if v.kind != KindMap {
		return nil
	}
	if v.mapOrder != nil {
		return append([]string(nil), v.mapOrder...)
	}
	keys := make([]string, 0, len(v.mapVal))
	for k := range v.mapVal {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MapGet looks up a field in a mapping value.
func (v Value) MapGet(key string) (Value, bool) {
	if v.kind != KindMap {
		return Value{}, false
	}
	val, ok := v.mapVal[key]
	return val, ok
}

// MapSet returns a new mapping value with key set to val, appending key to
// the field order if it was not already present.
func (v Value) MapSet(key string, val Value) Value {
	if v.kind != KindMap {
		v = NewMap()
	}
	newMap := make(map[string]Value, len(v.mapVal)+1)
	for k, existing := range v.mapVal {
		newMap[k] = existing
	}
	_, existed := v.mapVal[key]
	newMap[key] = val

	order := v.mapOrder
	if !existed {
		order = append(append([]string(nil), order...), key)
	}
	return Value{kind: KindMap, mapVal: newMap, mapOrder: order}
}

// walkTimestamps visits every Timestamp leaf reachable from v through maps
// and arrays, calling fn on each and replacing it with fn's return value.
func (v Value) walkTimestamps(fn func(time.Time) time.Time) Value {
	switch v.kind {
	case KindTimestamp:
		v.timeVal = fn(v.timeVal)
		return v
	case KindArray:
		out := make([]Value, len(v.arrayVal))
		for i, item := range v.arrayVal {
			out[i] = item.walkTimestamps(fn)
		}
		v.arrayVal = out
		return v
	case KindMap:
		out := make(map[string]Value, len(v.mapVal))
		for k, item := range v.mapVal {
			out[k] = item.walkTimestamps(fn)
		}
		v.mapVal = out
		return v
	default:
		return v
	}
}

// deepEqual compares two values for structural equality. Timestamps compare
// by instant (UTC-normalized time.Time.Equal), not by wall-clock
// representation; decimals compare by rational value.
func deepEqual(a, b Value) bool {
	if a.kind != b.kind {
		return false
	}
	switch a.kind {
	case KindNull:
		return true
	case KindBool:
		return a.boolVal == b.boolVal
	case KindInt:
		return a.intVal == b.intVal
	case KindFloat:
		return a.floatVal == b.floatVal
	case KindDecimal:
		if a.decimal == nil || b.decimal == nil {
			return a.decimal == b.decimal
		}
		return a.decimal.Cmp(b.decimal) == 0
	case KindString:
		return a.strVal == b.strVal
	case KindTimestamp:
		return a.timeVal.Equal(b.timeVal)
	case KindUUID:
		return a.uuidVal == b.uuidVal
	case KindArray:
		if len(a.arrayVal) != len(b.arrayVal) {
			return false
		}
		for i := range a.arrayVal {
			if !deepEqual(a.arrayVal[i], b.arrayVal[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(a.mapVal) != len(b.mapVal) {
			return false
		}
		for k, av := range a.mapVal {
			bv, ok := b.mapVal[k]
			if !ok || !deepEqual(av, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
