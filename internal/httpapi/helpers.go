package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

var (
	errNotFound     = errors.New("not-found")
	errDropRequired = errors.New("DELETE on a collection requires ?drop=true")
)

func readBody(r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(io.LimitReader(r.Body, 16<<20))
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 16<<20)).Decode(v)
}
