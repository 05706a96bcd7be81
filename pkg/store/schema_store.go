package store

import (
	"context"

	"github.com/calvinalkan/docengine/internal/storage"
	"github.com/calvinalkan/docengine/pkg/schema"
)

// ReservedSchemaSubDatabase is the sub-database name SchemaStore persists
// into; reserved, and disallowed as a collection name (§6).
const ReservedSchemaSubDatabase = "__schema"

// SchemaStore persists and reads Schemas in the reserved __schema
// sub-database, keyed by collection name (§4.5). Writes route through the
// StorageEngine like any other write.
type SchemaStore struct {
	engine *storage.Engine
}

// NewSchemaStore constructs a SchemaStore bound to engine's __schema sub-database.
func NewSchemaStore(engine *storage.Engine) *SchemaStore {
	return &SchemaStore{engine: engine}
}

// GetAll returns every persisted schema.
func (s *SchemaStore) GetAll(ctx context.Context) ([]*schema.Schema, error) {
	cur, err := s.engine.Scan(ReservedSchemaSubDatabase)
	if err != nil {
		return nil, wrap(err, ReservedSchemaSubDatabase, "")
	}
	var out []*schema.Schema
	for {
		kv, ok := cur.Next()
		if !ok {
			break
		}
		sch, err := schema.Decode(kv.Value)
		if err != nil {
			return nil, wrap(err, ReservedSchemaSubDatabase, string(kv.Key))
		}
		out = append(out, sch)
	}
	return out, nil
}

// Get returns the persisted schema for name, or (nil, false) if none.
func (s *SchemaStore) Get(ctx context.Context, name string) (*schema.Schema, bool, error) {
	raw, found, err := s.engine.Get(ReservedSchemaSubDatabase, []byte(name))
	if err != nil {
		return nil, false, wrap(err, ReservedSchemaSubDatabase, name)
	}
	if !found {
		return nil, false, nil
	}
	sch, err := schema.Decode(raw)
	if err != nil {
		return nil, false, wrap(err, ReservedSchemaSubDatabase, name)
	}
	return sch, true, nil
}

// Insert persists a new schema entry keyed by its collection name.
func (s *SchemaStore) Insert(ctx context.Context, sch *schema.Schema) error {
	raw, err := schema.Encode(sch)
	if err != nil {
		return wrap(err, ReservedSchemaSubDatabase, sch.CollectionName)
	}
	if _, err := s.engine.Insert(ctx, ReservedSchemaSubDatabase, []storage.KV{{Key: []byte(sch.CollectionName), Value: raw}}); err != nil {
		return wrap(err, ReservedSchemaSubDatabase, sch.CollectionName)
	}
	return nil
}

// Update overwrites an existing schema entry.
func (s *SchemaStore) Update(ctx context.Context, sch *schema.Schema) error {
	raw, err := schema.Encode(sch)
	if err != nil {
		return wrap(err, ReservedSchemaSubDatabase, sch.CollectionName)
	}
	if _, err := s.engine.Update(ctx, ReservedSchemaSubDatabase, []storage.KV{{Key: []byte(sch.CollectionName), Value: raw}}); err != nil {
		return wrap(err, ReservedSchemaSubDatabase, sch.CollectionName)
	}
	return nil
}

// Delete removes the schema entry for name.
func (s *SchemaStore) Delete(ctx context.Context, name string) error {
	if _, err := s.engine.Delete(ctx, ReservedSchemaSubDatabase, [][]byte{[]byte(name)}); err != nil {
		return wrap(err, ReservedSchemaSubDatabase, name)
	}
	return nil
}
