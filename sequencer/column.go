package sequencer

import (
	"math"

	"github.com/luddite478/fortuned"
)

// Volume smoothing defaults and bounds. The rise time is kept shorter than
// the fall time: triggers must feel immediate, while releases need a longer
// tail to stay click-free.
const (
	DefaultRiseTimeMs = 6.0
	DefaultFallTimeMs = 12.0
	MinSmoothingMs    = 1.0
	MaxSmoothingMs    = 100.0

	// volumeThreshold is the distance from the target at which the smoothed
	// volume snaps to it exactly, so idle nodes stop computing.
	volumeThreshold = 0.0001
)

type (
	// columnNode is one side of a column's A/B pair: a buffer, a read
	// position and a smoothed volume. Exactly one node of a pair renders a
	// freshly triggered cell at any time; the other is either idle, being
	// prepared, or fading out the previous cell.
	columnNode struct {
		id      uint64
		slot    int
		pcm     fortuned.AudioBuffer
		res     *Resource // non-nil when pcm came from the preloader
		pos     float64   // fractional read position, in frames
		pitch   float32   // read-speed ratio; 1 when pcm is pre-pitched
		active  bool
		current float32 // smoothed volume
		target  float32
	}

	// columnUnit is the playback engine of one column: the A/B node pair and
	// the smoothing coefficients shared by both nodes.
	columnUnit struct {
		column     int
		nodes      [2]columnNode
		activeNode int // 0=A, 1=B, -1=none
		riseCoeff  float32
		fallCoeff  float32
	}
)

func makeColumnUnit(column int) columnUnit {
	return columnUnit{
		column:     column,
		activeNode: -1,
		riseCoeff:  smoothingCoeff(DefaultRiseTimeMs),
		fallCoeff:  smoothingCoeff(DefaultFallTimeMs),
	}
}

// smoothingCoeff converts a time constant in milliseconds into a one-pole
// coefficient at the engine rate.
func smoothingCoeff(ms float32) float32 {
	if ms < MinSmoothingMs {
		ms = MinSmoothingMs
	}
	if ms > MaxSmoothingMs {
		ms = MaxSmoothingMs
	}
	frames := float64(ms) * fortuned.SampleRate / 1000
	return float32(1 - math.Exp(-1/frames))
}

func (c *columnUnit) setSmoothingTimes(riseMs, fallMs float32) {
	if riseMs > 0 {
		c.riseCoeff = smoothingCoeff(riseMs)
	}
	if fallMs > 0 {
		c.fallCoeff = smoothingCoeff(fallMs)
	}
}

// trigger prepares the inactive node with the new resource and flips the
// active designation; the previously active node fades out instead of being
// cut. A nil pcm (sample unavailable) still flips, rendering silence.
func (c *columnUnit) trigger(id uint64, slot int, volume, pitch float32, pcm fortuned.AudioBuffer, prePitched bool, res *Resource) {
	next := 0
	if c.activeNode == 0 {
		next = 1
	}
	if c.activeNode >= 0 {
		c.nodes[c.activeNode].target = 0
	}
	n := &c.nodes[next]
	n.releaseResource()
	readPitch := pitch
	if prePitched {
		readPitch = 1
	}
	*n = columnNode{
		id:      id,
		slot:    slot,
		pcm:     pcm,
		res:     res,
		pitch:   readPitch,
		active:  true,
		current: 0,
		target:  volume,
	}
	c.activeNode = next
}

// release fades the whole pair out; once both nodes are silent the pair
// returns to the none state.
func (c *columnUnit) release() {
	for i := range c.nodes {
		c.nodes[i].target = 0
	}
}

// stop hard-resets the pair to the none state, dropping resources. Only used
// on full teardown, never while audio is running.
func (c *columnUnit) stop() {
	for i := range c.nodes {
		c.nodes[i].releaseResource()
		c.nodes[i] = columnNode{}
	}
	c.activeNode = -1
}

func (n *columnNode) releaseResource() {
	if n.res != nil {
		n.res.EndConsume()
		n.res = nil
	}
}

// render mixes the pair into dst (interleaved stereo, len 2*frames) and
// returns true if anything audible was produced. Both nodes render: the
// active one and any node still fading out.
func (c *columnUnit) render(dst []float32, frames int) bool {
	audible := false
	for i := range c.nodes {
		if c.nodes[i].render(dst, frames, c.riseCoeff, c.fallCoeff) {
			audible = true
		}
	}
	if c.activeNode >= 0 && !c.nodes[c.activeNode].active {
		// active node finished its fade-out with no replacement: the pair is
		// idle again
		other := 1 - c.activeNode
		if !c.nodes[other].active {
			c.activeNode = -1
		}
	}
	return audible
}

func (n *columnNode) render(dst []float32, frames int, riseCoeff, fallCoeff float32) bool {
	if !n.active {
		return false
	}
	if n.current == 0 && n.target == 0 {
		n.deactivate()
		return false
	}
	if len(n.pcm) == 0 {
		// a node without audio participates in no smoothing; it goes idle as
		// soon as it is released
		if n.target == 0 {
			n.deactivate()
		}
		return false
	}
	end := float64(len(n.pcm))
	for i := 0; i < frames; i++ {
		if n.current != n.target {
			coeff := riseCoeff
			if n.target < n.current {
				coeff = fallCoeff
			}
			n.current += (n.target - n.current) * coeff
			if diff := n.current - n.target; diff < volumeThreshold && diff > -volumeThreshold {
				n.current = n.target
			}
		}
		if n.pos >= end {
			// sample exhausted; nothing more to mix but keep the node until
			// released so re-triggers behave
			break
		}
		l, r := n.sampleAt(n.pos)
		dst[i*2] += l * n.current
		dst[i*2+1] += r * n.current
		n.pos += float64(n.pitch)
	}
	if n.current == 0 && n.target == 0 {
		n.deactivate()
		return false
	}
	return true
}

// sampleAt reads the buffer at a fractional position with linear
// interpolation; integer positions (unity pitch) hit the fast path.
func (n *columnNode) sampleAt(pos float64) (float32, float32) {
	idx := int(pos)
	if idx >= len(n.pcm)-1 {
		s := n.pcm[len(n.pcm)-1]
		return s[0], s[1]
	}
	frac := float32(pos - float64(idx))
	if frac == 0 {
		s := n.pcm[idx]
		return s[0], s[1]
	}
	a, b := n.pcm[idx], n.pcm[idx+1]
	return a[0] + (b[0]-a[0])*frac, a[1] + (b[1]-a[1])*frac
}

func (n *columnNode) deactivate() {
	n.releaseResource()
	n.active = false
	n.pcm = nil
}
