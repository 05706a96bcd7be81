// Package database implements Database (§4.8): the top-level registry that
// bootstraps the StorageEngine and SchemaStore, loads every persisted
// Schema into a DocumentCollection at startup, and hands out collections
// by name thereafter.
package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-logr/logr"

	"github.com/calvinalkan/docengine/internal/storage"
	"github.com/calvinalkan/docengine/pkg/collection"
	"github.com/calvinalkan/docengine/pkg/document"
	"github.com/calvinalkan/docengine/pkg/index"
	"github.com/calvinalkan/docengine/pkg/store"
)

// Options configures Open.
type Options struct {
	// DataPath is the directory Database roots itself in; "db" and "index"
	// subdirectories are created under it (§6 on-disk layout).
	DataPath string

	StorageOptions   storage.Options
	CollectionOptions collection.Options
	DocumentCodec    document.Codec

	Logger logr.Logger
}

func (o *Options) setDefaults() {
	if o.Logger.GetSink() == nil {
		o.Logger = logr.Discard()
	}
	o.StorageOptions.Logger = o.Logger
	o.CollectionOptions.Logger = o.Logger
}

// Database is the registry of DocumentCollections for one data directory
// (§4.8). It exclusively owns the StorageEngine; collections hold a
// shared reference to it.
type Database struct {
	dataPath  string
	indexRoot string

	engine  *storage.Engine
	schemas *store.SchemaStore

	opts Options

	mu          sync.Mutex
	collections map[string]*collection.DocumentCollection

	closed atomic.Bool
}

// Open ensures opts.DataPath exists, opens the StorageEngine rooted there,
// opens the SchemaStore, and instantiates a DocumentCollection for every
// persisted Schema (§4.8 constructor).
func Open(ctx context.Context, opts Options) (*Database, error) {
	if opts.DataPath == "" {
		return nil, fmt.Errorf("database: DataPath is required")
	}
	opts.setDefaults()

	dbDir := filepath.Join(opts.DataPath, "db")
	indexRoot := filepath.Join(opts.DataPath, "index")
	if err := os.MkdirAll(dbDir, 0o750); err != nil {
		return nil, fmt.Errorf("database: creating %s: %w", dbDir, err)
	}
	if err := os.MkdirAll(indexRoot, 0o750); err != nil {
		return nil, fmt.Errorf("database: creating %s: %w", indexRoot, err)
	}

	storageOpts := opts.StorageOptions
	storageOpts.Dir = dbDir
	engine, err := storage.Open(ctx, storageOpts)
	if err != nil {
		return nil, err
	}

	schemas := store.NewSchemaStore(engine)

	d := &Database{
		dataPath:    opts.DataPath,
		indexRoot:   indexRoot,
		engine:      engine,
		schemas:     schemas,
		opts:        opts,
		collections: map[string]*collection.DocumentCollection{},
	}

	existing, err := schemas.GetAll(ctx)
	if err != nil {
		_ = engine.Close()
		return nil, err
	}
	for _, sch := range existing {
		docs := store.New(engine, sch.CollectionName, opts.DocumentCodec)
		c, err := collection.New(ctx, docs, schemas, filepath.Join(indexRoot, sch.CollectionName), sch.CollectionName, opts.CollectionOptions)
		if err != nil {
			_ = engine.Close()
			return nil, err
		}
		d.collections[sch.CollectionName] = c
	}

	return d, nil
}

// Lookup returns the named collection, creating it (with a default Schema)
// if it does not yet exist (§4.8 "lookup by name").
func (d *Database) Lookup(ctx context.Context, name string) (*collection.DocumentCollection, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if c, ok := d.collections[name]; ok {
		return c, nil
	}

	docs := store.New(d.engine, name, d.opts.DocumentCodec)
	c, err := collection.New(ctx, docs, d.schemas, filepath.Join(d.indexRoot, name), name, d.opts.CollectionOptions)
	if err != nil {
		return nil, err
	}
	d.collections[name] = c
	return c, nil
}

// Contains reports whether name has a registered collection.
func (d *Database) Contains(name string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.collections[name]
	return ok
}

// Drop removes name from the registry and tears down its collection
// (§4.8 "drop(name)").
func (d *Database) Drop(ctx context.Context, name string) error {
	if d.closed.Load() {
		return ErrClosed
	}

	d.mu.Lock()
	c, ok := d.collections[name]
	if ok {
		delete(d.collections, name)
	}
	d.mu.Unlock()

	if !ok {
		return nil
	}
	return c.Drop(ctx)
}

// Close disposes every collection (which closes their Indexes) and then
// closes the StorageEngine (§4.8 "close").
func (d *Database) Close(ctx context.Context) error {
	if d.closed.Swap(true) {
		return nil
	}

	d.mu.Lock()
	collections := d.collections
	d.collections = map[string]*collection.DocumentCollection{}
	d.mu.Unlock()

	var firstErr error
	for _, c := range collections {
		if err := c.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := d.engine.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// IndexConfig returns the Config that Lookup-created collections use for
// their Index, for callers that want to inspect or reuse it.
func (d *Database) IndexConfig() index.Config {
	return d.opts.CollectionOptions.IndexConfig
}
