package cache

// Field is a tri-state optional for partial updates: unset (leave the stored
// value unchanged), cleared (explicitly write NULL), or set to a value. A
// plain pointer cannot carry the unset/cleared distinction.
type Field[T any] struct {
	state fieldState
	value T
}

type fieldState uint8

const (
	fieldUnset fieldState = iota
	fieldCleared
	fieldSet
)

// Set returns a Field carrying v.
func Set[T any](v T) Field[T] {
	return Field[T]{state: fieldSet, value: v}
}

// Clear returns a Field that explicitly clears the stored value.
func Clear[T any]() Field[T] {
	return Field[T]{state: fieldCleared}
}

// Unset returns a Field that leaves the stored value unchanged. The zero
// value of Field behaves the same.
func Unset[T any]() Field[T] {
	return Field[T]{}
}

// Supplied reports whether the caller provided the field at all, either as a
// value or as an explicit clear.
func (f Field[T]) Supplied() bool {
	return f.state != fieldUnset
}

// Ptr returns the supplied value as a pointer, nil for a cleared field.
// Only meaningful when Supplied is true.
func (f Field[T]) Ptr() *T {
	if f.state != fieldSet {
		return nil
	}
	v := f.value
	return &v
}
