package collection

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docengine/internal/storage"
	"github.com/calvinalkan/docengine/pkg/document"
	"github.com/calvinalkan/docengine/pkg/index"
	"github.com/calvinalkan/docengine/pkg/schema"
	"github.com/calvinalkan/docengine/pkg/store"
)

func newTestCollection(t *testing.T, name string) *DocumentCollection {
	t.Helper()
	ctx := context.Background()
	root := t.TempDir()

	engine, err := storage.Open(ctx, storage.Options{Dir: filepath.Join(root, "db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	docs := store.New(engine, name, document.CodecNone)
	schemas := store.NewSchemaStore(engine)

	c, err := New(ctx, docs, schemas, filepath.Join(root, "index", name), name, Options{
		SchemaPersistInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(ctx) })
	return c
}

func TestDocumentCollection_InsertInfersSchemaAndIndexes(t *testing.T) {
	c := newTestCollection(t, "books")
	ctx := context.Background()

	d := document.New()
	require.NoError(t, d.Set("Title", document.String("Dune")))
	require.NoError(t, d.Set("Rating", document.Int(9)))

	id, err := c.Insert(ctx, d)
	require.NoError(t, err)

	got, found, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, id, got.ID())

	sch := c.Schema()
	_, hasTitle := sch.Field("Title")
	assert.True(t, hasTitle)

	res, err := c.Search(index.Criteria{Query: "Title:Dune"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, res.Items)
}

func TestDocumentCollection_UpdateReindexes(t *testing.T) {
	c := newTestCollection(t, "books")
	ctx := context.Background()

	d := document.New()
	require.NoError(t, d.Set("Title", document.String("Draft")))
	id, err := c.Insert(ctx, d)
	require.NoError(t, err)

	update := document.New()
	require.NoError(t, update.Set(document.FieldID, document.ID(id)))
	require.NoError(t, update.Set("Title", document.String("Final")))
	n, err := c.Update(ctx, update)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	res, err := c.Search(index.Criteria{Query: "Title:Final"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, res.Items)

	res, err = c.Search(index.Criteria{Query: "Title:Draft"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestDocumentCollection_DeleteRemovesFromStoreAndIndex(t *testing.T) {
	c := newTestCollection(t, "books")
	ctx := context.Background()

	d := document.New()
	require.NoError(t, d.Set("Title", document.String("Gone")))
	id, err := c.Insert(ctx, d)
	require.NoError(t, err)

	n, err := c.Delete(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, found, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, found)

	count, err := c.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestDocumentCollection_SchemaConflictRejectsInsert(t *testing.T) {
	c := newTestCollection(t, "books")
	ctx := context.Background()

	d1 := document.New()
	require.NoError(t, d1.Set("Rating", document.Int(9)))
	_, err := c.Insert(ctx, d1)
	require.NoError(t, err)

	d2 := document.New()
	require.NoError(t, d2.Set("Rating", document.String("nine")))
	_, err = c.Insert(ctx, d2)
	require.Error(t, err)
	var conflict *schema.ErrTypeConflict
	assert.ErrorAs(t, err, &conflict)
}

func TestDocumentCollection_SchemaPersistsPeriodically(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	engine, err := storage.Open(ctx, storage.Options{Dir: filepath.Join(root, "db")})
	require.NoError(t, err)
	defer engine.Close()

	docs := store.New(engine, "books", document.CodecNone)
	schemas := store.NewSchemaStore(engine)

	c, err := New(ctx, docs, schemas, filepath.Join(root, "index", "books"), "books", Options{
		SchemaPersistInterval: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	defer c.Close(ctx)

	d := document.New()
	require.NoError(t, d.Set("Title", document.String("Persisted")))
	_, err = c.Insert(ctx, d)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		persisted, found, err := schemas.Get(ctx, "books")
		if err != nil || !found {
			return false
		}
		_, ok := persisted.Field("Title")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestDocumentCollection_TruncateResetsSchemaAndData(t *testing.T) {
	c := newTestCollection(t, "books")
	ctx := context.Background()

	d := document.New()
	require.NoError(t, d.Set("Title", document.String("X")))
	_, err := c.Insert(ctx, d)
	require.NoError(t, err)

	require.NoError(t, c.Truncate(ctx))

	count, err := c.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	_, hasTitle := c.Schema().Field("Title")
	assert.False(t, hasTitle)
}

func TestDocumentCollection_InsertDuplicateIDFails(t *testing.T) {
	c := newTestCollection(t, "books")
	ctx := context.Background()

	d := document.New()
	require.NoError(t, d.Set("Title", document.String("Original")))
	id, err := c.Insert(ctx, d)
	require.NoError(t, err)

	dup := document.New()
	require.NoError(t, dup.Set(document.FieldID, document.ID(id)))
	require.NoError(t, dup.Set("Title", document.String("Collides")))
	_, err = c.Insert(ctx, dup)
	require.ErrorIs(t, err, ErrDuplicateID)

	got, found, err := c.Get(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	title, _ := got.Get("Title")
	s, _ := title.String()
	assert.Equal(t, "Original", s)
}

func TestDocumentCollection_OperationsFailAfterDrop(t *testing.T) {
	c := newTestCollection(t, "books")
	ctx := context.Background()

	d := document.New()
	require.NoError(t, d.Set("Title", document.String("Gone Soon")))
	id, err := c.Insert(ctx, d)
	require.NoError(t, err)

	require.NoError(t, c.Drop(ctx))

	_, err = c.Insert(ctx, document.New())
	assert.ErrorIs(t, err, ErrCollectionDropped)

	_, _, err = c.Get(ctx, id)
	assert.ErrorIs(t, err, ErrCollectionDropped)

	_, err = c.Search(index.Criteria{Query: "Title:Gone"})
	assert.ErrorIs(t, err, ErrCollectionDropped)
}

func TestDocumentCollection_ReindexRebuildsFromStore(t *testing.T) {
	c := newTestCollection(t, "books")
	ctx := context.Background()

	d := document.New()
	require.NoError(t, d.Set("Title", document.String("Rebuild Me")))
	id, err := c.Insert(ctx, d)
	require.NoError(t, err)

	res, err := c.Search(index.Criteria{Query: "Title:Rebuild"})
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{id}, res.Items)

	require.NoError(t, c.Reindex(ctx))

	res, err = c.Search(index.Criteria{Query: "Title:Rebuild"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, res.Items)
}
