package index

import (
	"strings"

	"github.com/google/uuid"
)

// highlightAll builds a naive per-document highlight list for each id in
// ids: the stored text fields whose tokens overlap the query's term set,
// rendered as "path: value" so a caller can show which fields matched
// without needing a phrase-offset highlighter library (none exists in the
// reference pack).
func (idx *Index) highlightAll(ast expr, ids []uuid.UUID) map[uuid.UUID][]string {
	wanted := map[string]struct{}{}
	for _, t := range collectTermExprs(ast) {
		for _, tok := range tokenize(t.term) {
			wanted[tok] = struct{}{}
		}
	}
	if len(wanted) == 0 {
		return nil
	}

	out := make(map[uuid.UUID][]string, len(ids))
	for _, id := range ids {
		var snippets []string
		for _, lf := range idx.stored[id] {
			if lf.Value.Kind != leafString {
				continue
			}
			for _, tok := range tokenize(lf.Value.Str) {
				if _, ok := wanted[tok]; ok {
					snippets = append(snippets, lf.Path+": "+highlightSnippet(lf.Value.Str, wanted))
					break
				}
			}
		}
		if snippets != nil {
			out[id] = snippets
		}
	}
	return out
}

// highlightSnippet wraps every matching token in s with ** markers,
// case-insensitively, preserving the original casing of the source text.
func highlightSnippet(s string, wanted map[string]struct{}) string {
	var b strings.Builder
	var word strings.Builder
	flush := func() {
		if word.Len() == 0 {
			return
		}
		token := strings.ToLower(word.String())
		if _, ok := wanted[token]; ok {
			b.WriteString("**")
			b.WriteString(word.String())
			b.WriteString("**")
		} else {
			b.WriteString(word.String())
		}
		word.Reset()
	}
	for _, r := range s {
		if isWordRune(r) {
			word.WriteRune(r)
		} else {
			flush()
			b.WriteRune(r)
		}
	}
	flush()
	return b.String()
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}
