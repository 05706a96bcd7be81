package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docengine/pkg/document"
	"github.com/calvinalkan/docengine/pkg/schema"
)

func TestSchemaStore_InsertGetUpdateDelete(t *testing.T) {
	engine := openTestEngine(t)
	schemas := NewSchemaStore(engine)
	ctx := context.Background()

	s := schema.NewDefault("books")
	require.NoError(t, schemas.Insert(ctx, s))

	got, found, err := schemas.Get(ctx, "books")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, s.Equal(got))

	d := document.New()
	require.NoError(t, d.Set(document.FieldID, document.ID(document.NewID())))
	require.NoError(t, d.Set("Title", document.String("x")))
	require.NoError(t, got.MergeInferred(d))
	require.NoError(t, schemas.Update(ctx, got))

	updated, found, err := schemas.Get(ctx, "books")
	require.NoError(t, err)
	require.True(t, found)
	_, hasTitle := updated.Field("Title")
	assert.True(t, hasTitle)

	require.NoError(t, schemas.Delete(ctx, "books"))
	_, found, err = schemas.Get(ctx, "books")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSchemaStore_GetAll(t *testing.T) {
	engine := openTestEngine(t)
	schemas := NewSchemaStore(engine)
	ctx := context.Background()

	require.NoError(t, schemas.Insert(ctx, schema.NewDefault("books")))
	require.NoError(t, schemas.Insert(ctx, schema.NewDefault("authors")))

	all, err := schemas.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}
