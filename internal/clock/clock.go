// Package clock provides an injectable, monotonic time source so the
// swarm coordinator, yield allocator, and pricing combiner can be tested
// deterministically without real sleeps.
package clock

import "time"

// Clock is the external collaborator described in spec.md §6.
type Clock interface {
	Now() time.Time
	Sleep(d time.Duration)
	After(d time.Duration) <-chan time.Time
}

// Real wraps the stdlib time package.
type Real struct{}

func New() Clock { return Real{} }

func (Real) Now() time.Time                         { return time.Now() }
func (Real) Sleep(d time.Duration)                  { time.Sleep(d) }
func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }
