package store

import "errors"

// Store errors. internal/types re-exports these so callers can keep using
// types.ErrStoreClosed / types.ErrStoreKeyInvalid with errors.Is.
var (
	ErrStoreClosed     = errors.New("exclusion store is closed")
	ErrStoreKeyInvalid = errors.New("store key must not be empty")
)
