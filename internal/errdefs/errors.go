// Package errdefs defines the error taxonomy shared by the catalog, the
// vector store, the coordinator and the reconciliation job.
package errdefs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound indicates the id is absent from the store that was queried.
	ErrNotFound = errors.New("not found")

	// ErrDocumentNotFound indicates the id is absent from both stores.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrAlreadyExists indicates a create collided with an existing id.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStoreUnavailable indicates a backing store is unreachable, busy or
	// did not answer before its deadline. Callers may retry.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrEmbedding indicates the text could not be vectorized.
	ErrEmbedding = errors.New("embedding failed")

	// ErrIntegrityViolation indicates the two stores disagree in a way
	// reconciliation cannot resolve on its own.
	ErrIntegrityViolation = errors.New("integrity violation")

	// ErrRunInProgress indicates a reconciliation run is already active.
	ErrRunInProgress = errors.New("reconciliation in progress")
)

// Store names used in StoreError.
const (
	StoreMetadata = "metadata"
	StoreVector   = "vector"
	StoreEmbedder = "embedder"
)

// StoreError carries the context of a failed store operation.
//
// The underlying error can be accessed via errors.Unwrap.
type StoreError struct {
	Store      string
	Op         string
	ID         string
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	msg := e.Store + " " + e.Op
	if e.Collection != "" {
		msg += " collection=" + e.Collection
	}
	if e.ID != "" {
		msg += " id=" + e.ID
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error { return e.Err }

// Wrap returns a *StoreError for err, or nil when err is nil.
func Wrap(store, op, collection, id string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Store: store, Op: op, ID: id, Collection: collection, Err: err}
}

// Unavailable marks err as transient so retry loops pick it up.
func Unavailable(err error) error {
	if err == nil || errors.Is(err, ErrStoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
}

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

// HTTPStatus maps err to the status code an API handler should answer with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrRunInProgress), errors.Is(err, ErrIntegrityViolation):
		return http.StatusConflict
	case errors.Is(err, ErrStoreUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
