package sequencer

import (
	"sync/atomic"

	"github.com/luddite478/fortuned"
)

type (
	// Resource is audio prepared by the preloader for one column at one step.
	// The preloader owns it until it is marked ready; from the step boundary
	// it was prepared for, the render path may begin consuming it, and while
	// the consuming flag is set the preloader must not reclaim or overwrite
	// its buffer. That flag pair is the single synchronization point between
	// the two threads.
	Resource struct {
		TargetStep int
		Slot       int
		Volume     float32
		Pitch      float32
		// PCM is the prepared audio. When PrePitched is set, the pitch ratio
		// has already been applied (cache hit) and the render path plays it
		// at unity.
		PCM        fortuned.AudioBuffer
		PrePitched bool

		// headBytes is what the preloader charged against its memory
		// budget for this buffer; zero when the audio is shared with the
		// bank or the pitch cache.
		headBytes int64

		ready     atomic.Bool
		consuming atomic.Bool
	}

	// ArmedResources is the fixed-size registry of the per-column armed
	// resource slots, indexed by column rather than linked by pointers, so
	// that neither side holds a reference into the other's structures.
	ArmedResources struct {
		slots [fortuned.MaxCols]atomic.Pointer[Resource]
	}
)

// SetReady publishes the resource for consumption. Must be the last call the
// preloader makes on it before arming.
func (r *Resource) SetReady() { r.ready.Store(true) }

// Ready reports whether the resource is fully prepared.
func (r *Resource) Ready() bool { return r.ready.Load() }

// BeginConsume marks the resource as in use by the render path.
func (r *Resource) BeginConsume() { r.consuming.Store(true) }

// TryConsume claims the resource for the render path, re-checking readiness
// after the claim. The preloader revokes readiness before reclaiming, so
// between the two at least one side backs off: either the reclaimer sees the
// consuming flag and leaves the buffer alone, or this sees the revocation
// and reports false.
func (r *Resource) TryConsume() bool {
	r.consuming.Store(true)
	if r.ready.Load() {
		return true
	}
	r.consuming.Store(false)
	return false
}

// EndConsume releases the resource back to the preloader once the render
// path no longer touches its buffer.
func (r *Resource) EndConsume() { r.consuming.Store(false) }

// Consuming reports whether the render path is using the resource.
func (r *Resource) Consuming() bool { return r.consuming.Load() }

// Arm installs the resource for the column and returns the displaced one, if
// any. The caller may reclaim the displaced resource's buffer only when its
// consuming flag is clear.
func (a *ArmedResources) Arm(col int, r *Resource) *Resource {
	if col < 0 || col >= fortuned.MaxCols {
		return nil
	}
	return a.slots[col].Swap(r)
}

// Peek returns the currently armed resource for the column without taking
// ownership.
func (a *ArmedResources) Peek(col int) *Resource {
	if col < 0 || col >= fortuned.MaxCols {
		return nil
	}
	return a.slots[col].Load()
}

// Clear disarms every column, returning the displaced resources for the
// preloader to reclaim.
func (a *ArmedResources) Clear() []*Resource {
	var displaced []*Resource
	for i := range a.slots {
		if old := a.slots[i].Swap(nil); old != nil {
			displaced = append(displaced, old)
		}
	}
	return displaced
}
