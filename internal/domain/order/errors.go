package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors shared by all Store implementations.
var (
	ErrNotInitialized = errors.New("order store is not initialized")
	ErrDuplicateRef   = errors.New("order reference already exists")
)

// DuplicateRefError is returned by CreateOrder when the reference is taken.
// Err holds the backend error that detected the conflict, if any.
type DuplicateRefError struct {
	Ref string
	Err error
}

func (e *DuplicateRefError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order %s already exists: %v", e.Ref, e.Err)
	}
	return fmt.Sprintf("order %s already exists", e.Ref)
}

func (e *DuplicateRefError) Unwrap() error { return e.Err }

// Is reports a match against ErrDuplicateRef.
func (e *DuplicateRefError) Is(target error) bool { return target == ErrDuplicateRef }
