// Package index implements the per-collection inverted index, stored
// fields, doc-values and facet sidecar described in spec §4.6: insert,
// update, delete, search, count, truncate, drop and close, plus a small
// embedded query-string grammar (field:value, phrases, boolean
// connectives, ranges) since no query-parser or full-text library exists
// anywhere in the retrieved reference pack.
//
// The index persists through a second internal/storage.Engine instance
// rooted at <data-path>/index/<collection-name>/, and a third nested
// instance rooted at its facets/ sub-directory for the category sidecar,
// reusing the same durable mmap-backed abstraction DocumentStore uses
// rather than inventing a second persistence mechanism. In-memory
// postings, doc-values and facet rollups are rebuilt deterministically
// from the persisted per-document flattened field leaves on Open, the
// same way the underlying segment log rebuilds its own key index by
// replay.
package index
