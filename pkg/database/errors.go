package database

import "errors"

// ErrClosed is returned by every Database operation once Close has run.
var ErrClosed = errors.New("database: closed")
