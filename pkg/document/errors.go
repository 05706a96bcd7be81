package document

import (
	"errors"
	"strings"
)

// Sentinel errors returned by document operations. Use errors.Is to test
// for these; use errors.As against *Error to recover the field/id context.
var (
	ErrInvalidArgument = errors.New("document: invalid argument")
	ErrInvalidField    = errors.New("document: invalid field value")
)

// Error is the uniform error type returned by pkg/document APIs. It
// attaches the document id (when known) and the offending field path to an
// underlying sentinel or wrapped error.
type Error struct {
	ID    string
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	suffix := e.suffix()
	switch {
	case suffix == "":
		return cause
	case cause == "":
		return suffix
	default:
		return cause + " " + suffix
	}
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) suffix() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, "field="+e.Field)
	}
	if e.ID != "" {
		parts = append(parts, "doc_id="+e.ID)
	}
	if len(parts) == 0 {
		return ""
	}
	return "(" + strings.Join(parts, " ") + ")"
}

type errOpt func(*Error)

func withField(field string) errOpt { return func(e *Error) { e.Field = field } }
func withDocID(id string) errOpt    { return func(e *Error) { e.ID = id } }

func wrap(err error, opts ...errOpt) error {
	if err == nil {
		return nil
	}
	existing := &Error{}
	isDirect := errors.As(err, &existing)
	if isDirect && len(opts) == 0 {
		return existing
	}
	e := &Error{Err: err}
	if isDirect {
		e.ID = existing.ID
		e.Field = existing.Field
		e.Err = existing.Err
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
