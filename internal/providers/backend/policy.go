package backend

import "fmt"

// DispatchMode selects how fan-out jobs are issued against one adapter.
type DispatchMode string

const (
	// Sequential issues one job at a time in catalog order.
	Sequential DispatchMode = "sequential"
	// Concurrent issues up to MaxInFlight jobs at once.
	Concurrent DispatchMode = "concurrent"
)

// MaxInFlight is the hard cap on simultaneous jobs against any backend.
const MaxInFlight = 3

// Policy is the dispatch policy an adapter advertises.
type Policy struct {
	Mode        DispatchMode
	MaxInFlight int
}

// SequentialPolicy returns the one-at-a-time policy.
func SequentialPolicy() Policy {
	return Policy{Mode: Sequential, MaxInFlight: 1}
}

// ConcurrentPolicy returns a concurrent policy clamped to [1, MaxInFlight].
func ConcurrentPolicy(limit int) Policy {
	return Policy{Mode: Concurrent, MaxInFlight: limit}.normalized()
}

// Limit returns the effective number of jobs that may run at once.
func (p Policy) Limit() int {
	return p.normalized().MaxInFlight
}

func (p Policy) normalized() Policy {
	if p.Mode != Concurrent {
		return Policy{Mode: Sequential, MaxInFlight: 1}
	}
	switch {
	case p.MaxInFlight < 1:
		p.MaxInFlight = 1
	case p.MaxInFlight > MaxInFlight:
		p.MaxInFlight = MaxInFlight
	}
	return p
}

func (p Policy) String() string {
	p = p.normalized()
	if p.Mode == Sequential {
		return string(Sequential)
	}
	return fmt.Sprintf("%s(%d)", p.Mode, p.MaxInFlight)
}
