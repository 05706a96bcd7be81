package httpapi

import (
	"fmt"
	"strings"

	"github.com/calvinalkan/docengine/pkg/document"
)

// patchOp is one {op, path, value} entry from a PATCH body (§6). path is
// dot-separated ("Author.Name"); op is "set" (alias "replace") or "remove"
// (alias "delete"), and "remove" sets the field to null rather than
// deleting the key.
type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// applyPatch applies ops to doc in order, rejecting attempts to touch a
// reserved field and any op it doesn't recognize.
func applyPatch(doc *document.Document, ops []patchOp) error {
	for _, op := range ops {
		segments := strings.Split(op.Path, ".")
		if len(segments) == 0 || segments[0] == "" {
			return fmt.Errorf("httpapi: empty patch path")
		}
		if isReservedField(segments[0]) {
			return fmt.Errorf("httpapi: patch path %q touches a reserved field", op.Path)
		}

		switch op.Op {
		case "set", "replace":
			v, err := valueFromAny(op.Value)
			if err != nil {
				return fmt.Errorf("httpapi: patch %q: %w", op.Path, err)
			}
			if err := setPath(doc, segments, v); err != nil {
				return err
			}
		case "remove", "delete":
			if err := removePath(doc, segments); err != nil {
				return err
			}
		default:
			return fmt.Errorf("httpapi: unknown patch op %q", op.Op)
		}
	}
	return nil
}

func isReservedField(field string) bool {
	return field == document.FieldID || field == document.FieldCreated || field == document.FieldModified
}

func setPath(doc *document.Document, segments []string, v document.Value) error {
	top := segments[0]
	if len(segments) == 1 {
		return doc.Set(top, v)
	}
	root, _ := doc.Get(top)
	if root.Kind() != document.KindMap && !root.IsNull() {
		return fmt.Errorf("httpapi: cannot descend into non-object field %q", top)
	}
	if root.IsNull() {
		root = document.NewMap()
	}
	updated, err := setNested(root, segments[1:], v)
	if err != nil {
		return err
	}
	return doc.Set(top, updated)
}

func setNested(parent document.Value, segments []string, v document.Value) (document.Value, error) {
	if len(segments) == 1 {
		return parent.MapSet(segments[0], v), nil
	}
	child, ok := parent.MapGet(segments[0])
	if !ok || child.IsNull() {
		child = document.NewMap()
	}
	if child.Kind() != document.KindMap {
		return document.Value{}, fmt.Errorf("httpapi: cannot descend into non-object field %q", segments[0])
	}
	updatedChild, err := setNested(child, segments[1:], v)
	if err != nil {
		return document.Value{}, err
	}
	return parent.MapSet(segments[0], updatedChild), nil
}

func removePath(doc *document.Document, segments []string) error {
	return setPath(doc, segments, document.Null())
}

// valueFromAny converts a decoded JSON value (string/float64/bool/nil/
// map/slice) into a document.Value, matching document.FromJSON's number
// handling (integral float64 -> Int, else Float).
func valueFromAny(raw any) (document.Value, error) {
	switch t := raw.(type) {
	case nil:
		return document.Null(), nil
	case bool:
		return document.Bool(t), nil
	case float64:
		if t == float64(int64(t)) {
			return document.Int(int64(t)), nil
		}
		return document.Float(t), nil
	case string:
		return document.String(t), nil
	case []any:
		items := make([]document.Value, 0, len(t))
		for _, item := range t {
			v, err := valueFromAny(item)
			if err != nil {
				return document.Value{}, err
			}
			items = append(items, v)
		}
		return document.Array(items...), nil
	case map[string]any:
		m := make(map[string]document.Value, len(t))
		for k, item := range t {
			v, err := valueFromAny(item)
			if err != nil {
				return document.Value{}, err
			}
			m[k] = v
		}
		return document.Map(m), nil
	default:
		return document.Value{}, fmt.Errorf("httpapi: unsupported patch value type %T", raw)
	}
}
