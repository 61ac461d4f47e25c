package van

type fieldState uint8

const (
	fieldAbsent fieldState = iota
	fieldSet
	fieldNull
)

// Field is an optional request value that distinguishes "not supplied" from
// "explicitly cleared". The zero value is absent.
type Field[T any] struct {
	value T
	state fieldState
}

// Set returns a field carrying v.
func Set[T any](v T) Field[T] {
	return Field[T]{value: v, state: fieldSet}
}

// Null returns a field that is sent as JSON null.
func Null[T any]() Field[T] {
	return Field[T]{state: fieldNull}
}

// IsAbsent reports whether the field was never supplied.
func (f Field[T]) IsAbsent() bool { return f.state == fieldAbsent }

// IsNull reports whether the field was explicitly cleared.
func (f Field[T]) IsNull() bool { return f.state == fieldNull }

// Get returns the value and whether it was set.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.state == fieldSet
}

// OrElse returns the value when set and def otherwise.
func (f Field[T]) OrElse(def T) T {
	if f.state == fieldSet {
		return f.value
	}
	return def
}

// put writes the field into body under key unless it is absent.
func (f Field[T]) put(body map[string]any, key string) {
	switch f.state {
	case fieldSet:
		body[key] = f.value
	case fieldNull:
		body[key] = nil
	}
}
