package flipbook

import (
	"errors"
	"fmt"

	"flipbook-app/internal/store"
)

var (
	ErrNotFound        = store.ErrNotFound
	ErrForbidden       = errors.New("flipbook: not the owner")
	ErrPendingNotFound = errors.New("flipbook: no pending result")
	ErrInvalidPage     = errors.New("flipbook: invalid page")
	ErrInvalidKind     = errors.New("flipbook: unknown kind")
)

// PersistenceError means a conversion succeeded but could not be saved. The
// converted leaves are kept under PendingID so saving can be retried without
// converting again.
type PersistenceError struct {
	PendingID string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("flipbook: saving result %s: %v", e.PendingID, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
