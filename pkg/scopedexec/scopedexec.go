// Package scopedexec provides a value that carries a deferred closure and
// runs it exactly once when the scope that created it is left, regardless
// of exit path. Unlike a bare defer statement, the closure is a value the
// controller can pass around and release early rather than leaving it
// bound to one stack frame.
package scopedexec

import "sync"

// Guard runs its closure exactly once, on the first call to Release.
// The zero value is not usable; construct one with New.
type Guard struct {
	once sync.Once
	fn   func()
}

// New returns a Guard that will invoke fn on its first Release call.
// Typical use is `defer scopedexec.New(fn).Release()` at the top of a
// function, or passing the Guard to a helper that arms it conditionally.
func New(fn func()) *Guard {
	return &Guard{fn: fn}
}

// Release runs the guarded closure if it has not already run. Calling it
// more than once, from any goroutine, is safe and a no-op after the
// first.
func (g *Guard) Release() {
	g.once.Do(g.fn)
}
