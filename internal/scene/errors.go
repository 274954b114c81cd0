package scene

import (
	"errors"
	"fmt"
)

var (
	// ErrSceneNotFound is returned when a scene id does not exist.
	ErrSceneNotFound = errors.New("scene not found")

	// ErrBugNotFound is returned when a bug id does not exist.
	ErrBugNotFound = errors.New("bug not found")

	// ErrImmutableID is returned when a patch tries to change an id.
	ErrImmutableID = errors.New("id cannot be changed")
)

// ValidationError reports input that was rejected before anything was
// persisted. Field names the offending input.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// PersistenceError reports a gateway failure. The store's view is left at
// its last known good value when one is returned. Committed is set when the
// write itself landed and only the follow-up read failed.
type PersistenceError struct {
	Op        string
	Err       error
	Committed bool
}

func (e *PersistenceError) Error() string {
	if e.Committed {
		return fmt.Sprintf("%s saved but reload failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsPersistence reports whether err is a *PersistenceError.
func IsPersistence(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// IsCommitted reports whether err is a *PersistenceError whose write landed.
func IsCommitted(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe) && pe.Committed
}
