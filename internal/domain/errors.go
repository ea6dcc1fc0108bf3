package domain

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound no snapshot is stored under the requested (fund, date) key.
	ErrNotFound = errors.New("snapshot not found")
	// ErrInvalidInput malformed records or mismatched snapshots. Never retried.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCollection the disclosure source was unreachable or unparsable.
	ErrCollection = errors.New("collection failed")
)

// CollectionError wraps a failure of the disclosure collector.
type CollectionError struct {
	FundID string
	// Retryable is true for transport and server-side failures.
	Retryable bool
	Err       error
}

// NewCollectionError wraps err for the given fund.
func NewCollectionError(fundID string, retryable bool, err error) *CollectionError {
	return &CollectionError{FundID: fundID, Retryable: retryable, Err: err}
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect holdings for fund %s: %v", e.FundID, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrCollection) hold for every CollectionError.
func (e *CollectionError) Is(target error) bool { return target == ErrCollection }

// IsRetryable reports whether err is a collection failure worth retrying.
func IsRetryable(err error) bool {
	var ce *CollectionError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}
