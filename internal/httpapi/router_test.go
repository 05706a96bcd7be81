package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/docengine/pkg/collection"
	"github.com/calvinalkan/docengine/pkg/database"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx := context.Background()
	db, err := database.Open(ctx, database.Options{
		DataPath: t.TempDir(),
		CollectionOptions: collection.Options{
			SchemaPersistInterval: 20 * time.Millisecond,
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(ctx) })
	return New(db, logr.Discard())
}

func TestServer_InsertAndGet(t *testing.T) {
	s := newTestServer(t)

	body := `{"Title":"Dune","Rating":9}`
	req := httptest.NewRequest(http.MethodPost, "/db/books", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var inserted map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inserted))
	id, ok := inserted["_id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)

	req = httptest.NewRequest(http.MethodGet, "/db/books/"+id, nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	doc, ok := got["document"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Dune", doc["Title"])
}

func TestServer_GetMissingReturns404(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/db/books/00000000-0000-0000-0000-000000000000", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_SearchReturnsInsertedDocument(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/db/books", bytes.NewBufferString(`{"Title":"Dune"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/db/books?where=Title:Dune", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	docs, ok := got["documents"].([]any)
	require.True(t, ok)
	require.Len(t, docs, 1)
}

func TestServer_PatchUpdatesField(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/db/books", bytes.NewBufferString(`{"Title":"Draft"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	var inserted map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inserted))
	id := inserted["_id"].(string)

	patchBody := `[{"op":"set","path":"Title","value":"Final"}]`
	req = httptest.NewRequest(http.MethodPatch, "/db/books/"+id, bytes.NewBufferString(patchBody))
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/db/books/"+id, nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	doc := got["document"].(map[string]any)
	assert.Equal(t, "Final", doc["Title"])
}

func TestServer_DeleteThenDropCollection(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/db/books", bytes.NewBufferString(`{"Title":"Gone"}`))
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	var inserted map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &inserted))
	id := inserted["_id"].(string)

	req = httptest.NewRequest(http.MethodDelete, "/db/books/"+id, nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/db/books?drop=true", nil)
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var dropped map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dropped))
	assert.Equal(t, true, dropped["isDropped"])
}

func TestServer_DropWithoutQueryParamFails(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodDelete, "/db/books", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CountReturnsMatches(t *testing.T) {
	s := newTestServer(t)

	for _, title := range []string{"Dune", "Dune Messiah", "Foundation"} {
		req := httptest.NewRequest(http.MethodPost, "/db/books", bytes.NewBufferString(`{"Title":"`+title+`"}`))
		rec := httptest.NewRecorder()
		s.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/db/books/count?where=Title:Dune", nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var got map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, float64(2), got["count"])
}
