package index

import (
	"strings"
	"unicode"

	"github.com/calvinalkan/docengine/pkg/document"
)

// flattenDocument walks every field of doc except the reserved _id (which is
// the index's primary key, not an indexed field) and emits one leaf per
// scalar or null value reached, following the dotted-path rules of §4.6:
// arrays contribute one leaf per element at the same path, objects recurse
// with the key appended to the path, everything else is a leaf as-is.
func flattenDocument(doc *document.Document) []leaf {
	var out []leaf
	root := doc.Root()
	for _, key := range root.MapKeys() {
		if key == document.FieldID {
			continue
		}
		v, _ := root.MapGet(key)
		out = flattenValue(key, v, out)
	}
	return out
}

func flattenValue(path string, v document.Value, out []leaf) []leaf {
	switch v.Kind() {
	case document.KindArray:
		items, _ := v.Array()
		for _, item := range items {
			out = flattenValue(path, item, out)
		}
		return out
	case document.KindMap:
		for _, key := range v.MapKeys() {
			child, _ := v.MapGet(key)
			out = flattenValue(path+"."+key, child, out)
		}
		return out
	default:
		return append(out, leaf{Path: path, Value: toLeafValue(v)})
	}
}

func toLeafValue(v document.Value) docLeafValue {
	switch v.Kind() {
	case document.KindNull:
		return docLeafValue{Kind: leafNull}
	case document.KindBool:
		b, _ := v.Bool()
		return docLeafValue{Kind: leafBool, Bool: b}
	case document.KindInt:
		i, _ := v.Int()
		return docLeafValue{Kind: leafInt, Int: i}
	case document.KindFloat:
		f, _ := v.Float()
		return docLeafValue{Kind: leafFloat, Float: f}
	case document.KindDecimal:
		dec, _ := v.Decimal()
		f, _ := dec.Float64()
		return docLeafValue{Kind: leafDecimal, Float: f, Str: dec.RatString()}
	case document.KindString:
		s, _ := v.String()
		return docLeafValue{Kind: leafString, Str: s}
	case document.KindTimestamp:
		t, _ := v.Time()
		return docLeafValue{Kind: leafTimestamp, Millis: t.UTC().UnixMilli()}
	case document.KindUUID:
		id, _ := v.UUID()
		return docLeafValue{Kind: leafUUID, UUIDStr: id.String()}
	default:
		return docLeafValue{Kind: leafNull}
	}
}

// tokenize lowercases s and splits it on runs of non-alphanumeric
// characters, the same simple full-text tokenizer scheme a hand-rolled
// query grammar can support without an external analyzer library.
func tokenize(s string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return tokens
}
