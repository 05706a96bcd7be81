package index

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docengine/pkg/document"
)

func newTestIndex(t *testing.T, cfg Config) *Index {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "books")
	idx, err := Open(context.Background(), dir, "books", cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func bookDoc(t *testing.T, title, author string, rating int64) (*document.Document, uuid.UUID) {
	t.Helper()
	id := document.NewID()
	d := document.New()
	require.NoError(t, d.Set(document.FieldID, document.ID(id)))
	require.NoError(t, d.Set("Title", document.String(title)))
	if author == "" {
		require.NoError(t, d.Set("Author", document.Null()))
	} else {
		require.NoError(t, d.Set("Author", document.String(author)))
	}
	require.NoError(t, d.Set("Rating", document.Int(rating)))
	return d, id
}

func TestIndex_InsertAndSearchByField(t *testing.T) {
	idx := newTestIndex(t, Config{})
	ctx := context.Background()

	d1, id1 := bookDoc(t, "The Hobbit", "Tolkien", 9)
	d2, id2 := bookDoc(t, "Dune", "Herbert", 9)
	require.NoError(t, idx.Insert(ctx, id1, d1))
	require.NoError(t, idx.Insert(ctx, id2, d2))

	res, err := idx.Search(Criteria{Query: "Rating:9"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalHits)
	assert.ElementsMatch(t, []uuid.UUID{id1, id2}, res.Items)

	res, err = idx.Search(Criteria{Query: "Author:Tolkien"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id1}, res.Items)
}

func TestIndex_NullSentinelMatchesNullField(t *testing.T) {
	idx := newTestIndex(t, Config{})
	ctx := context.Background()

	d, id := bookDoc(t, "Untitled", "", 5)
	require.NoError(t, idx.Insert(ctx, id, d))

	res, err := idx.Search(Criteria{Query: "Author:_null_"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, res.Items)
}

func TestIndex_FullTextTokenizedSearch(t *testing.T) {
	idx := newTestIndex(t, Config{})
	ctx := context.Background()

	d, id := bookDoc(t, "The Lord of the Rings", "Tolkien", 10)
	require.NoError(t, idx.Insert(ctx, id, d))

	res, err := idx.Search(Criteria{Query: "rings"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, res.Items)

	res, err = idx.Search(Criteria{Query: "rings AND dragons"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)
}

func TestIndex_RangeQuery(t *testing.T) {
	idx := newTestIndex(t, Config{})
	ctx := context.Background()

	low, lowID := bookDoc(t, "Meh", "A", 2)
	mid, midID := bookDoc(t, "Ok", "B", 5)
	high, highID := bookDoc(t, "Great", "C", 9)
	require.NoError(t, idx.Insert(ctx, lowID, low))
	require.NoError(t, idx.Insert(ctx, midID, mid))
	require.NoError(t, idx.Insert(ctx, highID, high))

	res, err := idx.Search(Criteria{Query: "Rating:[4 TO 9]"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{midID, highID}, res.Items)
}

func TestIndex_SortByFieldAscendingAndDescending(t *testing.T) {
	idx := newTestIndex(t, Config{})
	ctx := context.Background()

	a, idA := bookDoc(t, "A", "X", 3)
	b, idB := bookDoc(t, "B", "X", 1)
	c, idC := bookDoc(t, "C", "X", 2)
	require.NoError(t, idx.Insert(ctx, idA, a))
	require.NoError(t, idx.Insert(ctx, idB, b))
	require.NoError(t, idx.Insert(ctx, idC, c))

	res, err := idx.Search(Criteria{Query: "", SortByField: "Rating"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{idB, idC, idA}, res.Items)

	res, err = idx.Search(Criteria{Query: "", SortByField: "-Rating"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{idA, idC, idB}, res.Items)
}

func TestIndex_UpdateReplacesFields(t *testing.T) {
	idx := newTestIndex(t, Config{})
	ctx := context.Background()

	d, id := bookDoc(t, "Draft", "Nobody", 1)
	require.NoError(t, idx.Insert(ctx, id, d))

	updated, _ := bookDoc(t, "Final", "Somebody", 1)
	require.NoError(t, updated.Set(document.FieldID, document.ID(id)))
	require.NoError(t, idx.Update(ctx, id, updated))

	res, err := idx.Search(Criteria{Query: "Author:Nobody"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	res, err = idx.Search(Criteria{Query: "Author:Somebody"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, res.Items)
}

func TestIndex_DeleteRemovesFromPostingsAndDocValues(t *testing.T) {
	idx := newTestIndex(t, Config{})
	ctx := context.Background()

	d, id := bookDoc(t, "Gone", "Ghost", 1)
	require.NoError(t, idx.Insert(ctx, id, d))
	require.NoError(t, idx.Delete(ctx, id))

	res, err := idx.Search(Criteria{Query: "Author:Ghost"})
	require.NoError(t, err)
	assert.Empty(t, res.Items)

	count, err := idx.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIndex_PaginationAndTopN(t *testing.T) {
	idx := newTestIndex(t, Config{})
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		d, id := bookDoc(t, "Book", "Author", int64(i))
		require.NoError(t, idx.Insert(ctx, id, d))
	}

	res, err := idx.Search(Criteria{Query: "", SortByField: "Rating", ItemsPerPage: 3, PageNumber: 2})
	require.NoError(t, err)
	assert.Equal(t, 7, res.TotalHits)
	assert.Equal(t, 3, res.PageCount)
	assert.Len(t, res.Items, 3)
}

func TestIndex_FacetRollup(t *testing.T) {
	idx := newTestIndex(t, Config{AutoFacetEnabled: true})
	ctx := context.Background()

	for _, author := range []string{"Tolkien", "Tolkien", "Herbert"} {
		d, id := bookDoc(t, "Book", author, 5)
		require.NoError(t, idx.Insert(ctx, id, d))
	}

	res, err := idx.Search(Criteria{Query: "", SelectCategories: []string{"Author"}, TopNCategories: 5})
	require.NoError(t, err)

	want := []*Category{
		{
			Name:  "Author",
			Count: 3,
			Values: []*Category{
				{Name: "Tolkien", Count: 2},
				{Name: "Herbert", Count: 1},
			},
		},
	}
	if diff := cmp.Diff(want, res.Categories); diff != "" {
		t.Fatalf("facet rollup mismatch (-want +got):\n%s", diff)
	}
}

func TestIndex_HighlightMarksMatchedTokens(t *testing.T) {
	idx := newTestIndex(t, Config{})
	ctx := context.Background()

	d, id := bookDoc(t, "The Lord of the Rings", "Tolkien", 10)
	require.NoError(t, idx.Insert(ctx, id, d))

	res, err := idx.Search(Criteria{Query: "rings", IncludeHighlight: true})
	require.NoError(t, err)
	require.Contains(t, res.Highlights, id)
	assert.Contains(t, res.Highlights[id][0], "**Rings**")
}

func TestIndex_ReopenRebuildsFromPersistedRecords(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "books")
	ctx := context.Background()

	idx, err := Open(ctx, dir, "books", Config{AutoFacetEnabled: true}, testLogger())
	require.NoError(t, err)
	d, id := bookDoc(t, "Persisted", "Tolkien", 8)
	require.NoError(t, idx.Insert(ctx, id, d))
	require.NoError(t, idx.Close())

	reopened, err := Open(ctx, dir, "books", Config{AutoFacetEnabled: true}, testLogger())
	require.NoError(t, err)
	defer reopened.Close()

	res, err := reopened.Search(Criteria{Query: "Author:Tolkien"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{id}, res.Items)
}

func TestIndex_TruncateEmptiesButKeepsOpen(t *testing.T) {
	idx := newTestIndex(t, Config{})
	ctx := context.Background()

	d, id := bookDoc(t, "Temp", "Author", 1)
	require.NoError(t, idx.Insert(ctx, id, d))
	require.NoError(t, idx.Truncate(ctx))

	count, err := idx.Count("")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	d2, id2 := bookDoc(t, "New", "Author", 2)
	require.NoError(t, idx.Insert(ctx, id2, d2))
	count, err = idx.Count("")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
