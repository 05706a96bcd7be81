// Package collection implements DocumentCollection (§4.7): the façade that
// wires one collection's DocumentStore, SchemaStore, and Index together,
// maintaining the schema's inferred field catalog as documents are written
// and persisting it periodically rather than on every single write.
package collection

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/calvinalkan/docengine/pkg/document"
	"github.com/calvinalkan/docengine/pkg/index"
	"github.com/calvinalkan/docengine/pkg/schema"
	"github.com/calvinalkan/docengine/pkg/store"
)

// defaultSchemaPersistInterval is how often a dirtied schema is flushed to
// the SchemaStore, absent an explicit Options.SchemaPersistInterval (§6).
const defaultSchemaPersistInterval = 1 * time.Second

// Options configures New.
type Options struct {
	IndexConfig           index.Config
	SchemaPersistInterval time.Duration
	Logger                logr.Logger
}

func (o *Options) setDefaults() {
	if o.SchemaPersistInterval <= 0 {
		o.SchemaPersistInterval = defaultSchemaPersistInterval
	}
	if o.Logger.GetSink() == nil {
		o.Logger = logr.Discard()
	}
}

// DocumentCollection is a named collection of documents: the public surface
// Database hands out (§4.7). One instance owns one DocumentStore, one
// Index, and the in-memory Schema they share.
type DocumentCollection struct {
	name string
	docs *store.DocumentStore
	idx  *index.Index

	schemas *store.SchemaStore

	mu          sync.RWMutex
	sch         *schema.Schema
	schemaDirty bool

	logger logr.Logger

	dropped atomic.Bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// stopTimer signals the periodic schema-persistence goroutine to exit and
// waits for it, safe to call more than once (Drop and Close both call it).
func (c *DocumentCollection) stopTimer() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	<-c.doneCh
}

// New constructs a DocumentCollection: loading its persisted schema (or
// creating a default one), opening its Index directory, and starting the
// periodic schema-persistence timer (§4.7 "On collection open").
func New(ctx context.Context, docs *store.DocumentStore, schemas *store.SchemaStore, indexDir, name string, opts Options) (*DocumentCollection, error) {
	opts.setDefaults()

	sch, found, err := schemas.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		sch = schema.NewDefault(name)
		if err := schemas.Insert(ctx, sch); err != nil {
			return nil, err
		}
	}

	idx, err := index.Open(ctx, indexDir, name, opts.IndexConfig, opts.Logger)
	if err != nil {
		return nil, err
	}

	c := &DocumentCollection{
		name:    name,
		docs:    docs,
		idx:     idx,
		schemas: schemas,
		sch:     sch,
		logger:  opts.Logger.WithValues("collection", name),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}

	go c.runPersistTimer(opts.SchemaPersistInterval)

	return c, nil
}

// Name returns the collection's name.
func (c *DocumentCollection) Name() string { return c.name }

// Schema returns a snapshot of the collection's current field catalog.
func (c *DocumentCollection) Schema() *schema.Schema {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sch.Clone()
}

// Insert assigns (or validates) doc's _id, merges its fields into the
// schema, indexes it, then persists it to the document store — in that
// order (§4.7 "On insert"): refuse if dropped; on an _id collision fail
// ErrDuplicateID before touching the schema; fail schema-conflict before
// indexing; index synchronously; then store. If the store write fails
// after the document was indexed, Insert best-effort compensates by
// deleting the index entry, logging if even that fails.
func (c *DocumentCollection) Insert(ctx context.Context, doc *document.Document) (uuid.UUID, error) {
	if c.dropped.Load() {
		return uuid.Nil, ErrCollectionDropped
	}

	id := doc.ID()
	if id == uuid.Nil {
		id = document.NewID()
		if err := doc.Set(document.FieldID, document.ID(id)); err != nil {
			return uuid.Nil, err
		}
	} else {
		exists, err := c.docs.Exists(ctx, id)
		if err != nil {
			return uuid.Nil, err
		}
		if exists {
			return uuid.Nil, ErrDuplicateID
		}
	}

	if err := c.mergeSchema(doc); err != nil {
		return uuid.Nil, err
	}
	doc.NormalizeDatesToUTC()

	if err := c.idx.Insert(ctx, id, doc); err != nil {
		return uuid.Nil, err
	}

	insertedID, err := c.docs.Insert(ctx, doc)
	if err != nil {
		if delErr := c.idx.Delete(ctx, id); delErr != nil {
			c.logger.Error(delErr, "compensating index delete failed after store insert error", "doc_id", id.String())
		}
		return uuid.Nil, err
	}
	return insertedID, nil
}

// Get returns the document stored under id.
func (c *DocumentCollection) Get(ctx context.Context, id uuid.UUID) (*document.Document, bool, error) {
	if c.dropped.Load() {
		return nil, false, ErrCollectionDropped
	}
	return c.docs.Get(ctx, id)
}

// GetMulti returns the documents stored under ids, preserving order and
// omitting misses.
func (c *DocumentCollection) GetMulti(ctx context.Context, ids []uuid.UUID) ([]*document.Document, error) {
	if c.dropped.Load() {
		return nil, ErrCollectionDropped
	}
	return c.docs.GetMulti(ctx, ids)
}

// Update merges doc's fields into the schema and re-indexes it
// synchronously before persisting the change to the document store
// (§4.7 "On update"), returning the affected count (0 if doc's _id is not
// currently present).
func (c *DocumentCollection) Update(ctx context.Context, doc *document.Document) (int, error) {
	if c.dropped.Load() {
		return 0, ErrCollectionDropped
	}
	if doc.ID() == uuid.Nil {
		return 0, ErrInvalidArgument
	}
	exists, err := c.docs.Exists(ctx, doc.ID())
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	if err := c.mergeSchema(doc); err != nil {
		return 0, err
	}
	doc.NormalizeDatesToUTC()

	if err := c.idx.Update(ctx, doc.ID(), doc); err != nil {
		return 0, err
	}

	n, err := c.docs.Update(ctx, doc)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Delete removes the document stored under id, from both the store and the
// index.
func (c *DocumentCollection) Delete(ctx context.Context, id uuid.UUID) (int, error) {
	if c.dropped.Load() {
		return 0, ErrCollectionDropped
	}
	n, err := c.docs.Delete(ctx, id)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if err := c.idx.Delete(ctx, id); err != nil {
		return n, err
	}
	return n, nil
}

// Search runs criteria against the collection's index.
func (c *DocumentCollection) Search(criteria index.Criteria) (*index.SearchResult, error) {
	if c.dropped.Load() {
		return nil, ErrCollectionDropped
	}
	return c.idx.Search(criteria)
}

// Count returns how many live documents match query.
func (c *DocumentCollection) Count(query string) (int, error) {
	if c.dropped.Load() {
		return 0, ErrCollectionDropped
	}
	return c.idx.Count(query)
}

// Truncate empties both the document store and the index, and resets the
// schema to its default (§4.7 "On truncate").
func (c *DocumentCollection) Truncate(ctx context.Context) error {
	if c.dropped.Load() {
		return ErrCollectionDropped
	}
	if err := c.docs.Truncate(ctx); err != nil {
		return err
	}
	if err := c.idx.Truncate(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.sch = schema.NewDefault(c.name)
	c.schemaDirty = false
	c.mu.Unlock()

	return c.schemas.Update(ctx, c.Schema())
}

// Drop tears down the collection entirely: its document store, its index,
// and its schema entry (§4.7 "On drop"). After Drop returns, every further
// operation on c fails with ErrCollectionDropped.
func (c *DocumentCollection) Drop(ctx context.Context) error {
	if c.dropped.Swap(true) {
		return ErrCollectionDropped
	}

	c.stopTimer()

	if err := c.docs.Drop(ctx); err != nil {
		return err
	}
	if err := c.idx.Drop(ctx); err != nil {
		return err
	}
	return c.schemas.Delete(ctx, c.name)
}

// Close stops the periodic schema-persistence timer (flushing one last
// time if dirty) and closes the index.
func (c *DocumentCollection) Close(ctx context.Context) error {
	c.stopTimer()

	c.mu.Lock()
	dirty := c.schemaDirty
	sch := c.sch.Clone()
	c.schemaDirty = false
	c.mu.Unlock()

	if dirty {
		if err := c.schemas.Update(ctx, sch); err != nil {
			return err
		}
	}
	return c.idx.Close()
}

// Reindex rebuilds the index from the document store's current contents —
// an explicit opt-in operation (never run implicitly at startup), useful
// after a query-grammar or indexing-rule change.
func (c *DocumentCollection) Reindex(ctx context.Context) error {
	if c.dropped.Load() {
		return ErrCollectionDropped
	}
	if err := c.idx.Truncate(ctx); err != nil {
		return err
	}

	cur, err := c.docs.GetAll(ctx)
	if err != nil {
		return err
	}
	for {
		doc, ok, err := cur.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := c.idx.Insert(ctx, doc.ID(), doc); err != nil {
			return err
		}
	}
	return nil
}

func (c *DocumentCollection) mergeSchema(doc *document.Document) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	before, err := c.sch.Fingerprint()
	if err != nil {
		return err
	}
	if err := c.sch.MergeInferred(doc); err != nil {
		return err
	}
	after, err := c.sch.Fingerprint()
	if err != nil {
		return err
	}
	if after != before {
		c.schemaDirty = true
	}
	return nil
}

// runPersistTimer flushes the schema to the SchemaStore every interval if
// it has changed since the last flush (§4.7: schema persistence is
// periodic, not synchronous with every insert/update).
func (c *DocumentCollection) runPersistTimer(interval time.Duration) {
	defer close(c.doneCh)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.mu.Lock()
			dirty := c.schemaDirty
			sch := c.sch.Clone()
			c.schemaDirty = false
			c.mu.Unlock()

			if !dirty {
				continue
			}
			if err := c.schemas.Update(context.Background(), sch); err != nil {
				c.logger.Error(err, "failed to persist schema")
				c.mu.Lock()
				c.schemaDirty = true
				c.mu.Unlock()
			}
		}
	}
}
