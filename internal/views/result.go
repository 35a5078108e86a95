// Package views turns cached query results into display-ready values. Every
// function here is pure: no I/O, and absent or failed input yields a
// placeholder instead of a panic.
package views

// Result is a query outcome as seen by a projection.
type Result[T any] struct {
	Value   *T
	Loading bool
	// Stale marks a value shown while a refresh is pending or after invalidation.
	Stale bool
	Err   error
}

// Loaded wraps a settled value.
func Loaded[T any](v T) Result[T] {
	return Result[T]{Value: &v}
}

// Pending is a result still waiting on its first fetch.
func Pending[T any]() Result[T] {
	return Result[T]{Loading: true}
}

// Failed wraps a read error.
func Failed[T any](err error) Result[T] {
	return Result[T]{Err: err}
}

// From builds a result from a (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		return Failed[T](err)
	}
	return Loaded(v)
}

// State is the display state of a projection.
type State string

const (
	StateLoading State = "loading"
	StateError   State = "error"
	StateEmpty   State = "empty"
	StateReady   State = "ready"
)

func stateOf[T any](r Result[T]) State {
	switch {
	case r.Value != nil:
		return StateReady
	case r.Err != nil:
		return StateError
	case r.Loading:
		return StateLoading
	default:
		return StateEmpty
	}
}
