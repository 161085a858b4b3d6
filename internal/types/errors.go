// Package types provides shared types, interfaces, and errors for the application.
package types

import (
	"errors"

	"github.com/Rorqualx/darkpattern-remover/internal/store"
)

// Sentinel errors for consistent error handling across the application.
// These errors can be checked with errors.Is() for type-safe error handling.
var (
	// Browser pool errors
	ErrBrowserPoolClosed  = errors.New("browser pool is closed")
	ErrBrowserPoolTimeout = errors.New("timeout waiting for browser from pool")
	ErrBrowserUnhealthy   = errors.New("browser is unhealthy")

	// Store errors
	ErrStoreClosed     = store.ErrStoreClosed
	ErrStoreKeyInvalid = store.ErrStoreKeyInvalid

	// Cleaning errors
	ErrNavigationFailed = errors.New("page navigation failed")
	ErrHTMLTooLarge     = errors.New("html document exceeds size limit")
	ErrHTMLParse        = errors.New("html document could not be parsed")

	// Request errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrInvalidURL     = errors.New("invalid URL")
	ErrURLRequired    = errors.New("url is required")
	ErrHTMLRequired   = errors.New("html is required")

	// Context errors
	ErrContextCanceled = errors.New("operation canceled")
)

// CleanError describes a failed page or document clean.
// It implements the error interface and supports error unwrapping.
type CleanError struct {
	Stage   string // "acquire", "navigate", "scan", "render"
	URL     string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *CleanError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *CleanError) Unwrap() error {
	return e.Err
}

// NewNavigationError creates an error for a page that failed to load.
func NewNavigationError(url string, err error) *CleanError {
	return &CleanError{
		Stage:   "navigate",
		URL:     url,
		Message: "Failed to load page: " + err.Error(),
		Err:     errors.Join(ErrNavigationFailed, err),
	}
}

// PoolError provides detailed information about browser pool failures.
type PoolError struct {
	Operation string // The operation that failed
	Message   string // Human-readable error message
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *PoolError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *PoolError) Unwrap() error {
	return e.Err
}

// NewPoolAcquireError creates an error for pool acquire failures.
func NewPoolAcquireError(reason string, err error) *PoolError {
	return &PoolError{
		Operation: "acquire",
		Message:   "Failed to acquire browser from pool: " + reason,
		Err:       err,
	}
}
