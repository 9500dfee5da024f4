package domain

import "fmt"

// ValidationError reports a request rejected before any store
// interaction took place.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// NotFoundError reports an operation referencing an unknown card. The
// surrounding transaction aborts without applying anything.
type NotFoundError struct {
	ID string
}

func (e NotFoundError) Error() string {
	return "card not found: " + e.ID
}

// ConflictError reports a serialization conflict in the store. Nothing
// was applied; the operation may be retried.
type ConflictError struct {
	Err error
}

func (e ConflictError) Error() string {
	return "transaction conflict: " + e.Err.Error()
}

func (e ConflictError) Unwrap() error {
	return e.Err
}
