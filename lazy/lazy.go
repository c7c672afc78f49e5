// Package lazy provides an explicit three-state memo cell for values that
// are computed at most once per cache epoch.
package lazy

type state int

const (
	notLoaded state = iota
	loaded
	failed
)

// Cell caches the result of a single computation, including its failure.
// A failed computation is not retried until Clear is called, so staleness
// rules stay visible to callers. Cell is not safe for concurrent use; an
// owner that shares its handle across goroutines must synchronize.
type Cell[T any] struct {
	state state
	value T
	err   error
}

// Load returns the cached value, or runs fn and caches its result.
func (c *Cell[T]) Load(fn func() (T, error)) (T, error) {
	switch c.state {
	case loaded:
		return c.value, nil
	case failed:
		var zero T
		return zero, c.err
	}
	v, err := fn()
	if err != nil {
		var zero T
		c.state, c.err = failed, err
		return zero, err
	}
	c.state, c.value = loaded, v
	return v, nil
}

// Loaded reports whether a value has been computed successfully.
func (c *Cell[T]) Loaded() bool { return c.state == loaded }

// Clear resets the cell so the next Load recomputes.
func (c *Cell[T]) Clear() { *c = Cell[T]{} }
