// Package httpapi implements the REST surface consumed from above the
// core (§6): a thin chi-based translation of HTTP requests into
// pkg/database / pkg/collection calls, producing the envelope shapes §6
// enumerates.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// writeJSON marshals fields with the standard envelope fields merged in
// (§6: every response carries from/timestamp/elapsed alongside its own
// payload fields at the top level, not nested under a "payload" key).
func writeJSON(w http.ResponseWriter, status int, from string, started time.Time, fields map[string]any) {
	out := map[string]any{
		"from":      from,
		"timestamp": time.Now().UTC(),
		"elapsed":   time.Since(started).Seconds() * 1000,
	}
	for k, v := range fields {
		out[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

func writeError(w http.ResponseWriter, status int, from string, started time.Time, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"from":      from,
		"timestamp": time.Now().UTC(),
		"elapsed":   time.Since(started).Seconds() * 1000,
		"error":     err.Error(),
	})
}
