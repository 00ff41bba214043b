package cache

import (
	"errors"
	"fmt"
)

// NotFoundError is returned when an operation requires an entity that does
// not exist durably. Store failures are wrapped and propagated as-is and
// never turn into a NotFoundError.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
