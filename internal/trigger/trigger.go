// Package trigger provides the liveness predicates satellites poll.
package trigger

import "sync"

// Trigger reports whether the main process is still considered alive.
// Implementations must be side-effect free and safe for concurrent use.
type Trigger interface {
	Alive() bool
}

// Func adapts a plain function to Trigger.
type Func func() bool

func (f Func) Alive() bool { return f() }

// Done is alive until Fire is called, then dead forever.
// The zero value is not usable; create one with NewDone.
type Done struct {
	ch   chan struct{}
	once sync.Once
}

func NewDone() *Done { return &Done{ch: make(chan struct{})} }

func (d *Done) Alive() bool {
	select {
	case <-d.ch:
		return false
	default:
		return true
	}
}

// Fire moves the trigger to its terminal state. Extra calls are no-ops.
func (d *Done) Fire() { d.once.Do(func() { close(d.ch) }) }

// Fired is closed once the trigger goes false.
func (d *Done) Fired() <-chan struct{} { return d.ch }
