package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/calvinalkan/docengine/internal/storage"
	"github.com/calvinalkan/docengine/pkg/document"
)

// getMultiBatchSize bounds how many keys DocumentStore.GetMulti asks the
// engine for at once, mirroring the teacher's own bias toward small,
// short-lived batch reads (pkg/mddb/query.go GetByPrefix caps at 50).
const getMultiBatchSize = 256

// Clock is injected for testability of created/modified timestamps.
type Clock func() time.Time

// DocumentStore is the thin, stateless per-collection view over a
// StorageEngine sub-database named exactly after the collection (§4.4).
// It holds only a name and a borrowed engine handle — it owns no state of
// its own, per §3 Ownership.
type DocumentStore struct {
	engine *storage.Engine
	name   string
	codec  document.Codec
	clock  Clock
}

// New constructs a DocumentStore bound to the sub-database named name.
func New(engine *storage.Engine, name string, codec document.Codec) *DocumentStore {
	return &DocumentStore{engine: engine, name: name, codec: codec, clock: time.Now}
}

// WithClock overrides the store's clock, for deterministic tests.
func (s *DocumentStore) WithClock(clock Clock) *DocumentStore {
	s.clock = clock
	return s
}

func idKey(id uuid.UUID) []byte {
	b := id
	return b[:]
}

// Insert assigns _id (if absent), stamps _createdTimestamp and
// _modifiedTimestamp, normalizes dates, serializes to canonical bytes and
// submits an insert op (§4.4 "On insert").
func (s *DocumentStore) Insert(ctx context.Context, doc *document.Document) (uuid.UUID, error) {
	id := doc.ID()
	if id == uuid.Nil {
		id = document.NewID()
		if err := doc.Set(document.FieldID, document.ID(id)); err != nil {
			return uuid.Nil, wrap(err, s.name, "")
		}
	}

	now := s.clock().UTC()
	if err := doc.Set(document.FieldCreated, document.Timestamp(now)); err != nil {
		return uuid.Nil, wrap(err, s.name, id.String())
	}
	if err := doc.Set(document.FieldModified, document.Timestamp(now)); err != nil {
		return uuid.Nil, wrap(err, s.name, id.String())
	}
	doc.NormalizeDatesToUTC()

	bytes, err := doc.CanonicalBytes(s.codec)
	if err != nil {
		return uuid.Nil, wrap(err, s.name, id.String())
	}

	if _, err := s.engine.Insert(ctx, s.name, []storage.KV{{Key: idKey(id), Value: bytes}}); err != nil {
		return uuid.Nil, wrap(err, s.name, id.String())
	}
	return id, nil
}

// Get returns the document stored under id, or (nil, false) if absent —
// this is a legitimate miss, not an error (§7 not-found).
func (s *DocumentStore) Get(ctx context.Context, id uuid.UUID) (*document.Document, bool, error) {
	raw, found, err := s.engine.Get(s.name, idKey(id))
	if err != nil {
		return nil, false, wrap(err, s.name, id.String())
	}
	if !found {
		return nil, false, nil
	}
	doc, err := document.FromCanonicalBytes(raw)
	if err != nil {
		return nil, false, wrap(err, s.name, id.String())
	}
	return doc, true, nil
}

// GetMulti fetches each id in order, omitting misses (§4.4 "get(list-of-
// ids) preserves request order, omits misses"), batching requests to the
// engine to keep any single round-trip short.
func (s *DocumentStore) GetMulti(ctx context.Context, ids []uuid.UUID) ([]*document.Document, error) {
	found := make(map[uuid.UUID][]byte, len(ids))

	for start := 0; start < len(ids); start += getMultiBatchSize {
		end := start + getMultiBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		keys := make([][]byte, len(batch))
		for i, id := range batch {
			keys[i] = idKey(id)
		}
		kvs, err := s.engine.MultiGet(s.name, keys)
		if err != nil {
			return nil, wrap(err, s.name, "")
		}
		for _, kv := range kvs {
			id, err := uuid.FromBytes(kv.Key)
			if err != nil {
				return nil, wrap(fmt.Errorf("store: corrupt key in %s: %w", s.name, err), s.name, "")
			}
			found[id] = kv.Value
		}
	}

	out := make([]*document.Document, 0, len(ids))
	for _, id := range ids {
		raw, ok := found[id]
		if !ok {
			continue
		}
		doc, err := document.FromCanonicalBytes(raw)
		if err != nil {
			return nil, wrap(err, s.name, id.String())
		}
		out = append(out, doc)
	}
	return out, nil
}

// Cursor lazily, restartably iterates every document currently stored.
type Cursor struct {
	inner *storage.Cursor
}

// Next advances the cursor, decoding the next stored document.
func (c *Cursor) Next() (*document.Document, bool, error) {
	kv, ok := c.inner.Next()
	if !ok {
		return nil, false, nil
	}
	doc, err := document.FromCanonicalBytes(kv.Value)
	if err != nil {
		return nil, false, err
	}
	return doc, true, nil
}

// GetAll returns a lazy, restartable cursor over every stored document
// (§4.4 "get-all").
func (s *DocumentStore) GetAll(ctx context.Context) (*Cursor, error) {
	inner, err := s.engine.Scan(s.name)
	if err != nil {
		return nil, wrap(err, s.name, "")
	}
	return &Cursor{inner: inner}, nil
}

// Update reads the existing document by id; if absent, returns 0 without
// submitting any write. Otherwise it preserves _createdTimestamp, stamps a
// fresh _modifiedTimestamp, normalizes, serializes and submits an update
// op, returning the affected count (0 or 1) (§4.4 "On update").
func (s *DocumentStore) Update(ctx context.Context, doc *document.Document) (int, error) {
	id := doc.ID()
	if id == uuid.Nil {
		return 0, wrap(fmt.Errorf("%w: update requires a non-empty _id", ErrInvalidArgument), s.name, "")
	}

	existing, found, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, nil
	}

	if err := doc.Set(document.FieldCreated, document.Timestamp(existing.CreatedTimestamp())); err != nil {
		return 0, wrap(err, s.name, id.String())
	}
	if err := doc.Set(document.FieldModified, document.Timestamp(s.clock().UTC())); err != nil {
		return 0, wrap(err, s.name, id.String())
	}
	doc.NormalizeDatesToUTC()

	raw, err := doc.CanonicalBytes(s.codec)
	if err != nil {
		return 0, wrap(err, s.name, id.String())
	}

	n, err := s.engine.Update(ctx, s.name, []storage.KV{{Key: idKey(id), Value: raw}})
	if err != nil {
		return 0, wrap(err, s.name, id.String())
	}
	return n, nil
}

// Delete removes the document stored under id, returning 1 if it was
// present, 0 otherwise (not an error).
func (s *DocumentStore) Delete(ctx context.Context, id uuid.UUID) (int, error) {
	n, err := s.engine.Delete(ctx, s.name, [][]byte{idKey(id)})
	if err != nil {
		return 0, wrap(err, s.name, id.String())
	}
	return n, nil
}

// DeleteMulti removes each id that is present, returning the count removed.
func (s *DocumentStore) DeleteMulti(ctx context.Context, ids []uuid.UUID) (int, error) {
	keys := make([][]byte, len(ids))
	for i, id := range ids {
		keys[i] = idKey(id)
	}
	n, err := s.engine.Delete(ctx, s.name, keys)
	if err != nil {
		return 0, wrap(err, s.name, "")
	}
	return n, nil
}

// Exists reports whether id is currently present.
func (s *DocumentStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	ok, err := s.engine.Exists(s.name, idKey(id))
	if err != nil {
		return false, wrap(err, s.name, id.String())
	}
	return ok, nil
}

// Drop removes the sub-database and all its contents.
func (s *DocumentStore) Drop(ctx context.Context) error {
	if err := s.engine.DropSubDatabase(ctx, s.name); err != nil {
		return wrap(err, s.name, "")
	}
	return nil
}

// Truncate empties all entries but keeps the sub-database.
func (s *DocumentStore) Truncate(ctx context.Context) error {
	if err := s.engine.TruncateSubDatabase(ctx, s.name); err != nil {
		return wrap(err, s.name, "")
	}
	return nil
}
