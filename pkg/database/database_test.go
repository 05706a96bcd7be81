package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docengine/pkg/collection"
	"github.com/calvinalkan/docengine/pkg/document"
	"github.com/calvinalkan/docengine/pkg/index"
)

func newTestDatabase(t *testing.T) *Database {
	t.Helper()
	ctx := context.Background()

	db, err := Open(ctx, Options{
		DataPath: t.TempDir(),
		CollectionOptions: collection.Options{
			SchemaPersistInterval: 20 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(ctx) })
	return db
}

func TestDatabase_LookupCreatesCollectionImplicitly(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	assert.False(t, db.Contains("books"))

	c, err := db.Lookup(ctx, "books")
	require.NoError(t, err)
	assert.Equal(t, "books", c.Name())
	assert.True(t, db.Contains("books"))

	again, err := db.Lookup(ctx, "books")
	require.NoError(t, err)
	assert.Same(t, c, again)
}

func TestDatabase_DropRemovesFromRegistry(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	c, err := db.Lookup(ctx, "books")
	require.NoError(t, err)

	d := document.New()
	require.NoError(t, d.Set("Title", document.String("Gone")))
	_, err = c.Insert(ctx, d)
	require.NoError(t, err)

	require.NoError(t, db.Drop(ctx, "books"))
	assert.False(t, db.Contains("books"))

	_, err = c.Insert(ctx, document.New())
	assert.ErrorIs(t, err, collection.ErrCollectionDropped)
}

func TestDatabase_ReopenLoadsPersistedSchemas(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	db, err := Open(ctx, Options{
		DataPath: root,
		CollectionOptions: collection.Options{
			SchemaPersistInterval: 5 * time.Millisecond,
		},
	})
	require.NoError(t, err)

	c, err := db.Lookup(ctx, "books")
	require.NoError(t, err)

	d := document.New()
	require.NoError(t, d.Set("Title", document.String("Dune")))
	_, err = c.Insert(ctx, d)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, hasTitle := c.Schema().Field("Title")
		return hasTitle
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, db.Close(ctx))

	reopened, err := Open(ctx, Options{DataPath: root})
	require.NoError(t, err)
	defer reopened.Close(ctx)

	assert.True(t, reopened.Contains("books"))
	reopenedCollection, err := reopened.Lookup(ctx, "books")
	require.NoError(t, err)
	_, hasTitle := reopenedCollection.Schema().Field("Title")
	assert.True(t, hasTitle)
}

func TestDatabase_CloseClosesAllCollectionsAndIsIdempotent(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	_, err := db.Lookup(ctx, "books")
	require.NoError(t, err)
	_, err = db.Lookup(ctx, "movies")
	require.NoError(t, err)

	require.NoError(t, db.Close(ctx))
	require.NoError(t, db.Close(ctx))

	_, err = db.Lookup(ctx, "music")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDatabase_SearchAfterLookup(t *testing.T) {
	db := newTestDatabase(t)
	ctx := context.Background()

	c, err := db.Lookup(ctx, "books")
	require.NoError(t, err)

	d := document.New()
	require.NoError(t, d.Set("Title", document.String("Dune")))
	id, err := c.Insert(ctx, d)
	require.NoError(t, err)

	res, err := c.Search(index.Criteria{Query: "Title:Dune"})
	require.NoError(t, err)
	assert.Contains(t, res.Items, id)
}
