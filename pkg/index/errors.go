package index

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidArgument covers a malformed query string or an out-of-range
	// pagination request.
	ErrInvalidArgument = errors.New("index: invalid argument")
)

// Error is the uniform error type returned by pkg/index APIs, carrying the
// collection name and, where relevant, the offending document id.
type Error struct {
	Collection string
	DocID      string
	Err        error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	var suffix string
	switch {
	case e.Collection != "" && e.DocID != "":
		suffix = fmt.Sprintf(" (collection=%s doc_id=%s)", e.Collection, e.DocID)
	case e.Collection != "":
		suffix = fmt.Sprintf(" (collection=%s)", e.Collection)
	}
	return cause + suffix
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func wrap(err error, collection, docID string) error {
	if err == nil {
		return nil
	}
	return &Error{Collection: collection, DocID: docID, Err: err}
}
