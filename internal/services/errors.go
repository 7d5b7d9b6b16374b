package services

import (
	"errors"
	"fmt"

	"github.com/gitshopapp/storefront/internal/db"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrDependency = errors.New("dependency failure")
	ErrSignature  = errors.New("invalid signature")
)

// storeError maps store sentinels onto the service taxonomy. Anything else is
// a failed primary dependency.
func storeError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, db.ErrOrderNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, db.ErrInvalidStatusTransition):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	default:
		return fmt.Errorf("%w: %w", ErrDependency, err)
	}
}
