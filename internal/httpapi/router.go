package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/calvinalkan/docengine/pkg/collection"
	"github.com/calvinalkan/docengine/pkg/database"
	"github.com/calvinalkan/docengine/pkg/document"
	"github.com/calvinalkan/docengine/pkg/index"
	"github.com/calvinalkan/docengine/pkg/schema"
)

// Server wires a Database to the REST surface (§6). It owns no resources
// itself; Close is the caller's job via the Database it was built from.
type Server struct {
	db     *database.Database
	logger logr.Logger
	router chi.Router
}

// New builds a Server whose router is ready to be passed to http.Serve.
func New(db *database.Database, logger logr.Logger) *Server {
	s := &Server{db: db, logger: logger}
	s.router = s.buildRouter()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.router.ServeHTTP(w, r) }

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	r.Get("/db/_schemas", s.handleListSchemas)
	r.Get("/db/_schemas/{collection}", s.handleGetSchema)

	r.Post("/db/{collection}", s.handleInsert)
	r.Get("/db/{collection}/count", s.handleCount)
	r.Get("/db/{collection}", s.handleSearch)
	r.Delete("/db/{collection}", s.handleDropOrNothing)
	r.Get("/db/{collection}/{id}", s.handleGet)
	r.Put("/db/{collection}/{id}", s.handlePut)
	r.Patch("/db/{collection}/{id}", s.handlePatch)
	r.Delete("/db/{collection}/{id}", s.handleDelete)

	return r
}

func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	name := chi.URLParam(r, "collection")

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, name, started, err)
		return
	}
	doc, err := document.FromJSON(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, name, started, err)
		return
	}

	c, err := s.db.Lookup(r.Context(), name)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}

	id, err := c.Insert(r.Context(), doc)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}

	writeJSON(w, http.StatusCreated, name, started, map[string]any{
		"_id": id,
	})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	name := chi.URLParam(r, "collection")
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, name, started, err)
		return
	}

	c, err := s.db.Lookup(r.Context(), name)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}

	doc, found, err := c.Get(r.Context(), id)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, name, started, errNotFound)
		return
	}

	if selectParam := r.URL.Query().Get("select"); selectParam != "" {
		doc = doc.SelectFields(strings.Split(selectParam, ","))
	}

	payload, err := docToAny(doc)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}
	writeJSON(w, http.StatusOK, name, started, map[string]any{"document": payload})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	name := chi.URLParam(r, "collection")
	q := r.URL.Query()

	criteria := index.Criteria{
		Query:            q.Get("where"),
		SortByField:      q.Get("orderBy"),
		TopN:             atoiOr(q.Get("topN"), 0),
		ItemsPerPage:     atoiOr(q.Get("documentsPerPage"), 0),
		PageNumber:       atoiOr(q.Get("pageNumber"), 0),
		IncludeHighlight: q.Get("highlight") == "true",
		TopNCategories:   atoiOr(q.Get("topNCategories"), 0),
	}
	if sel := q.Get("selectCategories"); sel != "" {
		criteria.SelectCategories = strings.Split(sel, ",")
	}

	c, err := s.db.Lookup(r.Context(), name)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}

	result, err := c.Search(criteria)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}

	docs, err := c.GetMulti(r.Context(), result.Items)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}
	if selectParam := q.Get("select"); selectParam != "" {
		fields := strings.Split(selectParam, ",")
		for i, d := range docs {
			docs[i] = d.SelectFields(fields)
		}
	}

	payloads := make([]any, 0, len(docs))
	for _, d := range docs {
		p, err := docToAny(d)
		if err != nil {
			writeErrorFor(w, started, name, err)
			return
		}
		payloads = append(payloads, p)
	}

	writeJSON(w, http.StatusOK, name, started, map[string]any{
		"documents":  payloads,
		"categories": result.Categories,
		"itemCount":  result.ItemCount,
		"totalHits":  result.TotalHits,
		"pageCount":  result.PageCount,
		"pageNumber": result.PageNumber,
	})
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	name := chi.URLParam(r, "collection")
	where := r.URL.Query().Get("where")

	c, err := s.db.Lookup(r.Context(), name)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}

	count, err := c.Count(where)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}
	writeJSON(w, http.StatusOK, name, started, map[string]any{"where": where, "count": count})
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	name := chi.URLParam(r, "collection")
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, name, started, err)
		return
	}

	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, name, started, err)
		return
	}
	doc, err := document.FromJSON(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, name, started, err)
		return
	}
	if err := doc.Set(document.FieldID, document.ID(id)); err != nil {
		writeError(w, http.StatusBadRequest, name, started, err)
		return
	}

	c, err := s.db.Lookup(r.Context(), name)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}

	affected, err := c.Update(r.Context(), doc)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}
	writeJSON(w, http.StatusOK, name, started, map[string]any{"affectedCount": affected})
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	name := chi.URLParam(r, "collection")
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, name, started, err)
		return
	}

	var ops []patchOp
	if err := decodeJSON(r, &ops); err != nil {
		writeError(w, http.StatusBadRequest, name, started, err)
		return
	}

	c, err := s.db.Lookup(r.Context(), name)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}

	doc, found, err := c.Get(r.Context(), id)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, name, started, errNotFound)
		return
	}

	if err := applyPatch(doc, ops); err != nil {
		writeError(w, http.StatusBadRequest, name, started, err)
		return
	}

	affected, err := c.Update(r.Context(), doc)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}
	writeJSON(w, http.StatusOK, name, started, map[string]any{"affectedCount": affected})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	name := chi.URLParam(r, "collection")
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, name, started, err)
		return
	}

	c, err := s.db.Lookup(r.Context(), name)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}

	affected, err := c.Delete(r.Context(), id)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}
	writeJSON(w, http.StatusOK, name, started, map[string]any{"affectedCount": affected})
}

// handleDropOrNothing implements "DELETE /db/{collection}?drop=true"
// (§6): dropping the entire collection, distinct from DELETE on a
// specific {id}.
func (s *Server) handleDropOrNothing(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	name := chi.URLParam(r, "collection")
	if r.URL.Query().Get("drop") != "true" {
		writeError(w, http.StatusBadRequest, name, started, errDropRequired)
		return
	}

	if err := s.db.Drop(r.Context(), name); err != nil {
		writeErrorFor(w, started, name, err)
		return
	}
	writeJSON(w, http.StatusOK, name, started, map[string]any{"isDropped": true})
}

func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	writeJSON(w, http.StatusOK, "_schemas", started, map[string]any{
		"note": "enumerate via /db/_schemas/{collection}; listing all requires a collection name",
	})
}

func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	name := chi.URLParam(r, "collection")

	c, err := s.db.Lookup(r.Context(), name)
	if err != nil {
		writeErrorFor(w, started, name, err)
		return
	}
	writeJSON(w, http.StatusOK, name, started, map[string]any{"schema": schemaToAny(c.Schema())})
}

// schemaToAny renders a Schema's field catalog as a JSON-friendly value;
// Schema itself carries unexported storage, so this walks Fields().
func schemaToAny(sch *schema.Schema) map[string]any {
	fields := make([]map[string]any, 0, len(sch.Fields()))
	for _, f := range sch.Fields() {
		entry := map[string]any{
			"name": f.Name,
			"type": f.Type.String(),
		}
		if f.Type == schema.TypeArray {
			entry["elementType"] = f.ElemType.String()
		}
		if f.Nested != nil {
			entry["nested"] = schemaToAny(f.Nested)
		}
		fields = append(fields, entry)
	}
	return map[string]any{
		"collection": sch.CollectionName,
		"fields":     fields,
	}
}

func writeErrorFor(w http.ResponseWriter, started time.Time, name string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, collection.ErrCollectionDropped):
		status = http.StatusGone
	case errors.Is(err, collection.ErrDuplicateID):
		status = http.StatusConflict
	case errors.Is(err, collection.ErrInvalidArgument):
		status = http.StatusBadRequest
	}
	writeError(w, status, name, started, err)
}

func atoiOr(s string, fallback int) int {
	if s == "" {
		return fallback
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

func docToAny(doc *document.Document) (any, error) {
	raw, err := doc.ToJSON()
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}
