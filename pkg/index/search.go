package index

import (
	"bytes"
	"sort"

	"github.com/google/uuid"
)

// Search runs criteria.Query against the index and returns a page of
// matching document ids plus, when requested, facet roll-ups and naive
// highlights (§4.6 "search(criteria)").
func (idx *Index) Search(criteria Criteria) (*SearchResult, error) {
	criteria = criteria.withDefaults()

	ast, err := parseQuery(criteria.Query)
	if err != nil {
		return nil, wrap(err, idx.name, "")
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matched := ast.eval(idx)
	ranked := idx.rank(ast, matched, criteria.SortByField)

	totalHits := len(ranked)
	if criteria.TopN < len(ranked) {
		ranked = ranked[:criteria.TopN]
	}

	start := (criteria.PageNumber - 1) * criteria.ItemsPerPage
	end := start + criteria.ItemsPerPage
	if start > len(ranked) {
		start = len(ranked)
	}
	if end > len(ranked) {
		end = len(ranked)
	}
	page := ranked[start:end]

	pageCount := 0
	if criteria.ItemsPerPage > 0 && len(ranked) > 0 {
		pageCount = (len(ranked) + criteria.ItemsPerPage - 1) / criteria.ItemsPerPage
	}

	result := &SearchResult{
		TopN:             criteria.TopN,
		ItemsPerPage:     criteria.ItemsPerPage,
		PageNumber:       criteria.PageNumber,
		PageCount:        pageCount,
		ItemCount:        len(page),
		TotalHits:        totalHits,
		IncludeHighlight: criteria.IncludeHighlight,
		Items:            page,
	}

	if criteria.IncludeHighlight {
		result.Highlights = idx.highlightAll(ast, page)
	}

	if len(criteria.SelectCategories) > 0 {
		result.Categories = idx.rollupCategories(criteria.SelectCategories, criteria.TopNCategories)
	}

	return result, nil
}

// Count returns how many live documents match criteria.Query without
// materializing or paginating the hit list.
func (idx *Index) Count(query string) (int, error) {
	ast, err := parseQuery(query)
	if err != nil {
		return 0, wrap(err, idx.name, "")
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(ast.eval(idx)), nil
}

// rank orders matched document ids: by descending relevance (number of
// distinct query terms a document matches) when no sort field is given, or
// by a field's doc-value otherwise; ties always break by ascending _id.
func (idx *Index) rank(ast expr, matched map[uuid.UUID]struct{}, sortByField string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(matched))
	for id := range matched {
		ids = append(ids, id)
	}

	if sortByField == "" {
		scores := idx.scoreByTermOverlap(ast, ids)
		sort.Slice(ids, func(i, j int) bool {
			if scores[ids[i]] != scores[ids[j]] {
				return scores[ids[i]] > scores[ids[j]]
			}
			return bytes.Compare(ids[i][:], ids[j][:]) < 0
		})
		return ids
	}

	desc := false
	field := sortByField
	if len(field) > 0 && field[0] == '-' {
		desc = true
		field = field[1:]
	}
	sort.Slice(ids, func(i, j int) bool {
		a, aok := idx.docValues[ids[i]][field]
		b, bok := idx.docValues[ids[j]][field]
		if !aok || !bok {
			return bytes.Compare(ids[i][:], ids[j][:]) < 0
		}
		less := compareDocValue(a, b)
		if less == 0 {
			return bytes.Compare(ids[i][:], ids[j][:]) < 0
		}
		if desc {
			return less > 0
		}
		return less < 0
	})
	return ids
}

func compareDocValue(a, b docValue) int {
	if a.kind == leafString || a.kind == leafUUID {
		switch {
		case a.str < b.str:
			return -1
		case a.str > b.str:
			return 1
		default:
			return 0
		}
	}
	switch {
	case a.num < b.num:
		return -1
	case a.num > b.num:
		return 1
	default:
		return 0
	}
}

// scoreByTermOverlap counts, for each candidate id, how many distinct term
// expressions in ast (ignoring ranges and negations, which don't
// contribute a notion of "more relevant") its postings satisfy. This is a
// deliberately simple substitute for a real TF-IDF ranking function, since
// nothing in the reference pack implements full-text relevance scoring.
func (idx *Index) scoreByTermOverlap(ast expr, ids []uuid.UUID) map[uuid.UUID]int {
	terms := collectTermExprs(ast)
	scores := make(map[uuid.UUID]int, len(ids))
	for _, id := range ids {
		scores[id] = 0
	}
	for _, t := range terms {
		docs := t.eval(idx)
		for id := range docs {
			if _, ok := scores[id]; ok {
				scores[id]++
			}
		}
	}
	return scores
}

func collectTermExprs(e expr) []termExpr {
	switch t := e.(type) {
	case termExpr:
		return []termExpr{t}
	case andExpr:
		return append(collectTermExprs(t.left), collectTermExprs(t.right)...)
	case orExpr:
		return append(collectTermExprs(t.left), collectTermExprs(t.right)...)
	default:
		return nil
	}
}

// rollupCategories returns the requested facet roots' rollup trees, each
// capped to its topN most frequent values, sorted by descending count.
func (idx *Index) rollupCategories(roots []string, topN int) []*Category {
	out := make([]*Category, 0, len(roots))
	for _, root := range roots {
		cat, ok := idx.facets[root]
		if !ok {
			continue
		}
		clone := &Category{Name: cat.Name, Count: cat.Count, Values: append([]*Category(nil), cat.Values...)}
		sortCategoriesByCountDesc(clone.Values)
		if len(clone.Values) > topN {
			clone.Values = clone.Values[:topN]
		}
		out = append(out, clone)
	}
	return out
}
