package collection

import "errors"

var (
	// ErrCollectionDropped is returned by every operation once Drop has
	// completed (§4.7 "After drop, any further operation ... fails with
	// *collection-dropped*").
	ErrCollectionDropped = errors.New("collection: dropped")

	// ErrDuplicateID is returned by Insert when the caller supplies an _id
	// that already exists in the collection (§4.7 "on collision fail
	// *duplicate-id*").
	ErrDuplicateID = errors.New("collection: duplicate id")

	// ErrInvalidArgument is returned by Update when doc has no _id.
	ErrInvalidArgument = errors.New("collection: invalid argument")
)
