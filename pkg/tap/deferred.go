package tap

// Deferred is a single-assignment placeholder for a value produced by a queued
// job. It is either pending or resolved; reading a pending Deferred fails with
// ErrUnresolved rather than returning a zero value.
//
// A Deferred needs no locking: it is resolved by one job and read by a later
// job of the same queue, and the queue never runs two jobs at once.
type Deferred[T any] struct {
	value    T
	resolved bool
}

// NewDeferred returns a pending Deferred.
func NewDeferred[T any]() *Deferred[T] {
	return &Deferred[T]{}
}

// ResolvedValue returns a Deferred that already holds v.
func ResolvedValue[T any](v T) *Deferred[T] {
	return &Deferred[T]{value: v, resolved: true}
}

// Resolve assigns the value. Calling it more than once re-assigns, which is a
// caller error.
func (d *Deferred[T]) Resolve(v T) {
	d.value = v
	d.resolved = true
}

// Resolved reports whether Resolve has been called.
func (d *Deferred[T]) Resolved() bool {
	return d.resolved
}

// Value returns the resolved value, or ErrUnresolved.
func (d *Deferred[T]) Value() (T, error) {
	if !d.resolved {
		var zero T
		return zero, ErrUnresolved
	}
	return d.value, nil
}

// MustValue is like Value but panics with ErrUnresolved.
func (d *Deferred[T]) MustValue() T {
	v, err := d.Value()
	if err != nil {
		panic(err)
	}
	return v
}

func (d *Deferred[T]) anyValue() (any, error) {
	return d.Value()
}

// deferredValue is implemented by every *Deferred[T].
type deferredValue interface {
	anyValue() (any, error)
}
