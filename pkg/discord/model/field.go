package model

// Field is an optional value carried by a partial payload.
//
// Set reports whether the payload carried the field at all. A set field may still hold the
// zero value, which means the remote side cleared it.
type Field[T any] struct {
	Value T
	Set   bool
}

// Some returns a set field holding v.
func Some[T any](v T) Field[T] {
	return Field[T]{Value: v, Set: true}
}

// Apply writes the value into dst when the field is set.
func (f Field[T]) Apply(dst *T) {
	if f.Set {
		*dst = f.Value
	}
}

// Get returns the value and whether it was set.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.Set
}
