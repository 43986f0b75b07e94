package sequencer

import (
	"runtime"
	"sync/atomic"
)

// Seqlock publishes snapshots of a payload struct from a single writer to any
// number of readers without locks. The writer bumps the version to odd,
// mutates the payload, and bumps it to even again; readers retry until they
// see the same even version on both sides of their copy. Reads are wait-free
// for the writer and never block it; a reader may retry unboundedly under a
// write storm, which is acceptable because writes are rare relative to
// reads.
//
// Only one goroutine may write a given Seqlock; concurrent writers need
// external serialization.
type Seqlock[T any] struct {
	version atomic.Uint32
	payload T
}

// Write publishes a new payload version. update is called with the payload
// while the version is odd.
func (l *Seqlock[T]) Write(update func(*T)) {
	l.version.Add(1) // odd: write in progress
	update(&l.payload)
	l.version.Add(1) // even: stable
}

// Set publishes the given value as the new payload.
func (l *Seqlock[T]) Set(value T) {
	l.Write(func(p *T) { *p = value })
}

// Read returns a consistent copy of the payload, retrying while a write is
// in progress.
func (l *Seqlock[T]) Read() T {
	for {
		v1 := l.version.Load()
		if v1&1 != 0 {
			runtime.Gosched()
			continue
		}
		data := l.payload
		if l.version.Load() == v1 {
			return data
		}
	}
}

// Version returns the current version counter; odd means a write is in
// progress.
func (l *Seqlock[T]) Version() uint32 {
	return l.version.Load()
}
