package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/calvinalkan/docengine/internal/storage"
	"github.com/calvinalkan/docengine/pkg/document"
)

const (
	dropRemoveRetries = 3
	dropRemoveDelay   = 500 * time.Millisecond
)

const (
	recordsSubDatabase = "records"
	facetRecordsSubDatabase = "records"
	allFieldsPath = "_all"
)

// Index is the per-collection inverted index, stored fields, doc-values and
// facet sidecar (§4.6). It owns two StorageEngine instances: one rooted at
// its own directory for the flattened per-document field leaves (which
// double as stored fields for highlighting and as the source every other
// in-memory structure is rebuilt from on Open), and one rooted at its
// facets/ sub-directory for the category sidecar.
type Index struct {
	dir  string
	name string
	cfg  Config

	engine       *storage.Engine
	facetsEngine *storage.Engine

	mu sync.RWMutex

	// postings maps "path\x00term" to the set of live document ids carrying
	// that term at that path.
	postings map[string]map[uuid.UUID]struct{}

	// fieldDocs maps a dotted path to every live document id that has any
	// value there at all, used for range queries.
	fieldDocs map[string]map[uuid.UUID]struct{}

	// docValues maps a document id to its per-path sortable projection.
	docValues map[uuid.UUID]map[string]docValue

	// stored holds each live document's flattened leaves, used to render
	// highlights and to rebuild postings/docValues/facets on reopen.
	stored map[uuid.UUID][]leaf

	facets map[string]*Category // facet root name -> rollup tree

	live map[uuid.UUID]struct{}
}

// Open opens or creates the index rooted at dir (one directory per
// collection, per §6's on-disk layout), rebuilding every in-memory
// structure by replaying the persisted stored-leaf records.
func Open(ctx context.Context, dir, name string, cfg Config, logger logr.Logger) (*Index, error) {
	cfg.setDefaults()

	engine, err := storage.Open(ctx, storage.Options{Dir: dir, Logger: logger})
	if err != nil {
		return nil, wrap(err, name, "")
	}
	facetsEngine, err := storage.Open(ctx, storage.Options{Dir: filepath.Join(dir, "facets"), Logger: logger})
	if err != nil {
		_ = engine.Close()
		return nil, wrap(err, name, "")
	}

	idx := &Index{
		dir:          dir,
		name:         name,
		cfg:          cfg,
		engine:       engine,
		facetsEngine: facetsEngine,
		postings:     map[string]map[uuid.UUID]struct{}{},
		fieldDocs:    map[string]map[uuid.UUID]struct{}{},
		docValues:    map[uuid.UUID]map[string]docValue{},
		stored:       map[uuid.UUID][]leaf{},
		facets:       map[string]*Category{},
		live:         map[uuid.UUID]struct{}{},
	}

	if err := idx.rebuild(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return idx, nil
}

// rebuild replays every persisted stored-leaf record into the in-memory
// postings, doc-values and facet structures; used at Open and nowhere else,
// the same way a segment's own replay is the sole path for recovering its
// key index.
func (idx *Index) rebuild() error {
	cur, err := idx.engine.Scan(recordsSubDatabase)
	if err != nil {
		return wrap(err, idx.name, "")
	}
	for {
		kv, ok := cur.Next()
		if !ok {
			break
		}
		id, err := uuid.FromBytes(kv.Key)
		if err != nil {
			return wrap(fmt.Errorf("index: corrupt record key: %w", err), idx.name, "")
		}
		leaves, err := decodeLeaves(kv.Value)
		if err != nil {
			return wrap(err, idx.name, id.String())
		}
		idx.addToMemory(id, leaves)
	}
	return nil
}

// Close releases both engines.
func (idx *Index) Close() error {
	var firstErr error
	if err := idx.engine.Close(); err != nil {
		firstErr = err
	}
	if err := idx.facetsEngine.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Drop closes the index, then permanently removes its on-disk directory and
// the nested facets/ sidecar directory, retrying each removal up to 3 times
// with a 500ms pause between attempts before failing hard (§4.6 "drop closes
// then removes both directories with bounded retries").
func (idx *Index) Drop(ctx context.Context) error {
	idx.mu.Lock()
	idx.resetMemoryLocked()
	idx.mu.Unlock()

	if err := idx.Close(); err != nil {
		return wrap(err, idx.name, "")
	}

	facetsDir := filepath.Join(idx.dir, "facets")
	if err := removeAllWithRetry(facetsDir); err != nil {
		return wrap(err, idx.name, "")
	}
	if err := removeAllWithRetry(idx.dir); err != nil {
		return wrap(err, idx.name, "")
	}
	return nil
}

// removeAllWithRetry removes dir, retrying on failure since a concurrent
// reader or a slow filesystem can transiently hold the directory open.
func removeAllWithRetry(dir string) error {
	var lastErr error
	for attempt := 0; attempt < dropRemoveRetries; attempt++ {
		if err := os.RemoveAll(dir); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt < dropRemoveRetries-1 {
			time.Sleep(dropRemoveDelay)
		}
	}
	return lastErr
}

// Truncate empties the index but keeps it open for further writes.
func (idx *Index) Truncate(ctx context.Context) error {
	if err := idx.engine.TruncateSubDatabase(ctx, recordsSubDatabase); err != nil {
		return wrap(err, idx.name, "")
	}
	if err := idx.facetsEngine.TruncateSubDatabase(ctx, facetRecordsSubDatabase); err != nil {
		return wrap(err, idx.name, "")
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.resetMemoryLocked()
	return nil
}

func (idx *Index) resetMemoryLocked() {
	idx.postings = map[string]map[uuid.UUID]struct{}{}
	idx.fieldDocs = map[string]map[uuid.UUID]struct{}{}
	idx.docValues = map[uuid.UUID]map[string]docValue{}
	idx.stored = map[uuid.UUID][]leaf{}
	idx.facets = map[string]*Category{}
	idx.live = map[uuid.UUID]struct{}{}
}

// Insert adds doc's flattened fields to the index under id.
func (idx *Index) Insert(ctx context.Context, id uuid.UUID, doc *document.Document) error {
	leaves := flattenDocument(doc)
	raw := encodeLeaves(leaves)

	if _, err := idx.engine.Insert(ctx, recordsSubDatabase, []storage.KV{{Key: idKey(id), Value: raw}}); err != nil {
		return wrap(err, idx.name, id.String())
	}
	if idx.cfg.AutoFacetEnabled {
		if _, err := idx.facetsEngine.Insert(ctx, facetRecordsSubDatabase, []storage.KV{{Key: idKey(id), Value: raw}}); err != nil {
			return wrap(err, idx.name, id.String())
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.addToMemory(id, leaves)
	return nil
}

// Update replaces id's indexed fields with doc's current fields (§4.6:
// functionally a delete followed by an insert).
func (idx *Index) Update(ctx context.Context, id uuid.UUID, doc *document.Document) error {
	leaves := flattenDocument(doc)
	raw := encodeLeaves(leaves)

	if _, err := idx.engine.Update(ctx, recordsSubDatabase, []storage.KV{{Key: idKey(id), Value: raw}}); err != nil {
		return wrap(err, idx.name, id.String())
	}
	if idx.cfg.AutoFacetEnabled {
		if _, err := idx.facetsEngine.Update(ctx, facetRecordsSubDatabase, []storage.KV{{Key: idKey(id), Value: raw}}); err != nil {
			return wrap(err, idx.name, id.String())
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeFromMemoryLocked(id)
	idx.addToMemory(id, leaves)
	return nil
}

// Delete removes id from the index.
func (idx *Index) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := idx.engine.Delete(ctx, recordsSubDatabase, [][]byte{idKey(id)}); err != nil {
		return wrap(err, idx.name, id.String())
	}
	if idx.cfg.AutoFacetEnabled {
		if _, err := idx.facetsEngine.Delete(ctx, facetRecordsSubDatabase, [][]byte{idKey(id)}); err != nil {
			return wrap(err, idx.name, id.String())
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.removeFromMemoryLocked(id)
	return nil
}

func idKey(id uuid.UUID) []byte {
	b := id
	return b[:]
}

// addToMemory must be called with idx.mu held for writing.
func (idx *Index) addToMemory(id uuid.UUID, leaves []leaf) {
	idx.live[id] = struct{}{}
	idx.stored[id] = leaves

	values := map[string]docValue{}
	for _, lf := range leaves {
		idx.addFieldDoc(lf.Path, id)
		terms := idx.termsFor(lf)
		for _, term := range terms {
			idx.addPosting(lf.Path, term, id)
			idx.addPosting(allFieldsPath, term, id)
		}
		if dv, ok := toDocValue(lf.Value); ok {
			values[lf.Path] = dv
		}
		if idx.cfg.AutoFacetEnabled {
			idx.addFacet(lf.Path, lf.Value)
		}
	}
	idx.docValues[id] = values
}

func (idx *Index) removeFromMemoryLocked(id uuid.UUID) {
	leaves, ok := idx.stored[id]
	if !ok {
		delete(idx.live, id)
		return
	}
	for _, lf := range leaves {
		if docs, ok := idx.fieldDocs[lf.Path]; ok {
			delete(docs, id)
			if len(docs) == 0 {
				delete(idx.fieldDocs, lf.Path)
			}
		}
		for _, term := range idx.termsFor(lf) {
			idx.removePosting(lf.Path, term, id)
			idx.removePosting(allFieldsPath, term, id)
		}
		if idx.cfg.AutoFacetEnabled {
			idx.removeFacet(lf.Path, lf.Value)
		}
	}
	delete(idx.stored, id)
	delete(idx.docValues, id)
	delete(idx.live, id)
}

func (idx *Index) addFieldDoc(path string, id uuid.UUID) {
	docs, ok := idx.fieldDocs[path]
	if !ok {
		docs = map[uuid.UUID]struct{}{}
		idx.fieldDocs[path] = docs
	}
	docs[id] = struct{}{}
}

func postingKey(path, term string) string { return path + "\x00" + term }

func (idx *Index) addPosting(path, term string, id uuid.UUID) {
	key := postingKey(path, term)
	docs, ok := idx.postings[key]
	if !ok {
		docs = map[uuid.UUID]struct{}{}
		idx.postings[key] = docs
	}
	docs[id] = struct{}{}
}

func (idx *Index) removePosting(path, term string, id uuid.UUID) {
	key := postingKey(path, term)
	if docs, ok := idx.postings[key]; ok {
		delete(docs, id)
		if len(docs) == 0 {
			delete(idx.postings, key)
		}
	}
}

func (idx *Index) addFacet(path string, v docLeafValue) {
	root := facetRoot(path)
	displayValue, ok := facetDisplayValue(v)
	if !ok {
		return
	}
	cat, ok := idx.facets[root]
	if !ok {
		cat = &Category{Name: root}
		idx.facets[root] = cat
	}
	cat.Count++
	for _, child := range cat.Values {
		if child.Name == displayValue {
			child.Count++
			return
		}
	}
	cat.Values = append(cat.Values, &Category{Name: displayValue, Count: 1})
}

func (idx *Index) removeFacet(path string, v docLeafValue) {
	root := facetRoot(path)
	displayValue, ok := facetDisplayValue(v)
	if !ok {
		return
	}
	cat, ok := idx.facets[root]
	if !ok {
		return
	}
	cat.Count--
	for i, child := range cat.Values {
		if child.Name == displayValue {
			child.Count--
			if child.Count <= 0 {
				cat.Values = append(cat.Values[:i], cat.Values[i+1:]...)
			}
			break
		}
	}
	if cat.Count <= 0 {
		delete(idx.facets, root)
	}
}

func facetRoot(path string) string {
	if i := indexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// termsFor returns the set of postings terms a leaf contributes, per the
// per-kind indexing rules of §4.6: text is tokenized, everything else
// indexes as one exact term (numbers/timestamps as a canonical decimal
// string, booleans as "true"/"false", identifiers verbatim, null as the
// configured sentinel token).
func (idx *Index) termsFor(lf leaf) []string {
	switch lf.Value.Kind {
	case leafString:
		return tokenize(lf.Value.Str)
	case leafBool:
		if lf.Value.Bool {
			return []string{"true"}
		}
		return []string{"false"}
	case leafInt:
		return []string{strconv.FormatInt(lf.Value.Int, 10)}
	case leafFloat:
		return []string{strconv.FormatFloat(lf.Value.Float, 'g', -1, 64)}
	case leafDecimal:
		return []string{lf.Value.Str}
	case leafTimestamp:
		return []string{strconv.FormatInt(lf.Value.Millis, 10)}
	case leafUUID:
		return []string{lf.Value.UUIDStr}
	case leafNull:
		return []string{idx.cfg.NullSentinelToken}
	default:
		return nil
	}
}

func toDocValue(v docLeafValue) (docValue, bool) {
	switch v.Kind {
	case leafInt:
		return docValue{kind: leafInt, num: float64(v.Int)}, true
	case leafFloat:
		return docValue{kind: leafFloat, num: v.Float}, true
	case leafDecimal:
		return docValue{kind: leafDecimal, num: v.Float}, true
	case leafTimestamp:
		return docValue{kind: leafTimestamp, num: float64(v.Millis)}, true
	case leafBool:
		n := 0.0
		if v.Bool {
			n = 1
		}
		return docValue{kind: leafBool, num: n}, true
	case leafString:
		return docValue{kind: leafString, str: v.Str}, true
	case leafUUID:
		return docValue{kind: leafUUID, str: v.UUIDStr}, true
	default:
		return docValue{}, false
	}
}

func facetDisplayValue(v docLeafValue) (string, bool) {
	switch v.Kind {
	case leafString:
		return v.Str, true
	case leafBool:
		if v.Bool {
			return "true", true
		}
		return "false", true
	case leafInt:
		return strconv.FormatInt(v.Int, 10), true
	case leafUUID:
		return v.UUIDStr, true
	default:
		return "", false
	}
}

func sortCategoriesByCountDesc(cats []*Category) {
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Count > cats[j].Count })
}
