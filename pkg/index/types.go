package index

import "github.com/google/uuid"

// defaults for Criteria fields a caller leaves unset (§4.6).
const (
	defaultTopN            = 1000
	defaultItemsPerPage     = 25
	defaultTopNCategories   = 10
	defaultNullSentinel     = "_null_"
)

// Config holds the collection-wide settings the index needs at Open: the
// token substituted for null leaves, and whether facets are populated
// automatically on every indexed field (§6 configuration). Doc-values are
// always kept for every scalar leaf; AutoDocValuesEnabled is carried but
// not consulted.
type Config struct {
	NullSentinelToken   string
	AutoFacetEnabled    bool
	AutoDocValuesEnabled bool
}

func (c *Config) setDefaults() {
	if c.NullSentinelToken == "" {
		c.NullSentinelToken = defaultNullSentinel
	}
}

// Criteria describes one search request (§4.6 "search(criteria)").
type Criteria struct {
	// Query is parsed by the embedded query-string grammar (query_language.go).
	// An empty query matches every live document.
	Query string

	// SortByField orders results by a field's doc-value ascending; prefix
	// with "-" for descending. Empty means descending-relevance order.
	SortByField string

	// TopN caps how many ranked hits are considered at all, before paging.
	TopN int

	ItemsPerPage int
	PageNumber   int // 1-based

	IncludeHighlight bool

	// SelectCategories names facet roots to roll up in the result.
	SelectCategories []string
	TopNCategories   int
}

func (c Criteria) withDefaults() Criteria {
	if c.TopN <= 0 {
		c.TopN = defaultTopN
	}
	if c.ItemsPerPage <= 0 {
		c.ItemsPerPage = defaultItemsPerPage
	}
	if c.PageNumber <= 0 {
		c.PageNumber = 1
	}
	if c.TopNCategories <= 0 {
		c.TopNCategories = defaultTopNCategories
	}
	return c
}

// Category is one node of a facet roll-up: a field value and how many live
// documents carry it, optionally with its own children (§4.6 facets).
type Category struct {
	Name   string
	Count  int
	Values []*Category
}

// SearchResult is the response to Search: a page of document ids (never
// documents themselves — the caller re-fetches from DocumentStore) plus
// paging metadata and any requested facet roll-ups.
type SearchResult struct {
	TopN             int
	ItemsPerPage     int
	PageNumber       int
	PageCount        int
	ItemCount        int
	TotalHits        int
	IncludeHighlight bool

	Items       []uuid.UUID
	Highlights  map[uuid.UUID][]string
	Categories  []*Category
}

// leaf is one flattened, indexable field: a dotted path plus a scalar or
// null value (arrays contribute one leaf per element at the same path;
// objects contribute one leaf per nested scalar at their dotted path).
type leaf struct {
	Path  string
	Value docLeafValue
}

// docLeafValue is the subset of document.Value kinds that reach the index:
// every Value is scalar or null by the time flatten is done with it.
type docLeafValue struct {
	Kind    leafKind
	Str     string
	Int     int64
	Float   float64
	Bool    bool
	Millis  int64 // timestamp, as Unix milliseconds UTC
	UUIDStr string
}

type leafKind int

const (
	leafNull leafKind = iota
	leafBool
	leafInt
	leafFloat
	leafDecimal
	leafString
	leafTimestamp
	leafUUID
)

// docValue is the sortable, comparable projection of a leaf kept for
// SortByField ordering and range queries.
type docValue struct {
	kind leafKind
	num  float64 // valid for int/float/decimal/timestamp/bool(0/1)
	str  string  // valid for string/uuid
}
