package queues

import (
	"errors"
	"fmt"
)

// Business error taxonomy. Controllers map these onto HTTP statuses; the
// repository and service never wrap one business error inside another.
var (
	// ErrNotFound means the item or queue does not exist.
	ErrNotFound = errors.New("queue entry not found")

	// ErrForbidden means the admission policy denied the caller. It is
	// deliberately uniform: a scope violation and an ownership violation
	// produce the same error so denials never reveal cross-department data.
	ErrForbidden = errors.New("not allowed to act on this queue entry")

	// ErrBusy means the per-item lock could not be acquired within the
	// configured wait. Callers are expected to retry.
	ErrBusy = errors.New("queue entry is being modified, retry shortly")

	// ErrQueueInactive means enrollment was attempted on a closed queue.
	ErrQueueInactive = errors.New("queue is not accepting new entries")
)

// InvalidTransitionError reports an attempted move outside the legal table.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// NewInvalidTransitionError builds the error naming both states involved
func NewInvalidTransitionError(from, to Status) error {
	return &InvalidTransitionError{From: from, To: to}
}

// IsInvalidTransition reports whether err is a transition-table violation
func IsInvalidTransition(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}

// ValidationError reports malformed input such as an unknown state literal.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
