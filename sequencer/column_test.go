package sequencer

import (
	"testing"

	"github.com/luddite478/fortuned"
)

func constantBuffer(frames int, value float32) fortuned.AudioBuffer {
	buf := make(fortuned.AudioBuffer, frames)
	buf.Fill([2]float32{value, value})
	return buf
}

func renderFrames(c *columnUnit, frames int) []float32 {
	dst := make([]float32, frames*2)
	c.render(dst, frames)
	return dst
}

func TestColumnSilentWhenIdle(t *testing.T) {
	c := makeColumnUnit(0)
	dst := renderFrames(&c, 64)
	for i, v := range dst {
		if v != 0 {
			t.Fatalf("idle column produced %v at %d", v, i)
		}
	}
}

func TestColumnTriggerRampsUp(t *testing.T) {
	c := makeColumnUnit(0)
	c.trigger(1, 0, 1, 1, constantBuffer(fortuned.SampleRate, 1), false, nil)
	dst := renderFrames(&c, 64)
	if dst[0] >= dst[126] {
		t.Errorf("volume did not rise: first %v, later %v", dst[0], dst[126])
	}
	// with a 6 ms rise time the volume converges well within 100 ms
	renderFrames(&c, fortuned.SampleRate/10)
	dst = renderFrames(&c, 4)
	if dst[0] != 1 {
		t.Errorf("volume did not converge to target: %v", dst[0])
	}
}

func TestColumnReleaseFadesOut(t *testing.T) {
	c := makeColumnUnit(0)
	c.trigger(1, 0, 1, 1, constantBuffer(fortuned.SampleRate, 1), false, nil)
	renderFrames(&c, fortuned.SampleRate/10)
	c.release()
	first := renderFrames(&c, 4)
	renderFrames(&c, fortuned.SampleRate/5)
	last := renderFrames(&c, 4)
	if first[0] <= last[0] {
		t.Errorf("volume did not fall: %v then %v", first[0], last[0])
	}
	if last[0] != 0 {
		t.Errorf("release did not converge to silence: %v", last[0])
	}
	if c.activeNode != -1 {
		t.Errorf("pair did not return to idle after fade out")
	}
}

func TestColumnRetriggerCrossfades(t *testing.T) {
	c := makeColumnUnit(0)
	c.trigger(1, 0, 1, 1, constantBuffer(fortuned.SampleRate, 1), false, nil)
	renderFrames(&c, fortuned.SampleRate/10)
	firstNode := c.activeNode
	c.trigger(2, 1, 1, 1, constantBuffer(fortuned.SampleRate, 1), false, nil)
	if c.activeNode == firstNode {
		t.Errorf("retrigger did not flip to the other node")
	}
	// right after the flip both nodes are audible: the new one rising, the
	// old one falling
	dst := renderFrames(&c, 4)
	if dst[0] <= 0 || dst[0] >= 1.2 {
		t.Errorf("crossfade sample out of range: %v", dst[0])
	}
	renderFrames(&c, fortuned.SampleRate/5)
	if c.nodes[firstNode].active {
		t.Errorf("old node still active after its fade out")
	}
}

func TestColumnPitchChangesReadSpeed(t *testing.T) {
	// a short ramp; at double speed the buffer is exhausted in half the time
	src := make(fortuned.AudioBuffer, 100)
	for i := range src {
		src[i] = [2]float32{1, 1}
	}
	c := makeColumnUnit(0)
	c.trigger(1, 0, 1, 2, src, false, nil)
	renderFrames(&c, fortuned.SampleRate/10)
	if got := c.nodes[c.activeNode].pos; got < 99 {
		t.Errorf("position after exhausting at 2x: %v", got)
	}
	// pre-pitched audio reads at unity regardless of the cell pitch
	c2 := makeColumnUnit(0)
	c2.trigger(1, 0, 1, 2, src, true, nil)
	if got := c2.nodes[c2.activeNode].pitch; got != 1 {
		t.Errorf("pre-pitched node reads at %v, expected 1", got)
	}
}

func TestColumnReleasesResourceWhenDone(t *testing.T) {
	res := &Resource{}
	res.SetReady()
	res.BeginConsume()
	c := makeColumnUnit(0)
	c.trigger(1, 0, 1, 1, constantBuffer(1000, 1), false, res)
	c.release()
	renderFrames(&c, fortuned.SampleRate/5)
	if res.Consuming() {
		t.Errorf("resource still marked consuming after the node went idle")
	}
}

func TestSmoothingCoeffClamps(t *testing.T) {
	low := smoothingCoeff(0)
	if got := smoothingCoeff(MinSmoothingMs); got != low {
		t.Errorf("coeff below the minimum not clamped: %v vs %v", low, got)
	}
	high := smoothingCoeff(1000)
	if got := smoothingCoeff(MaxSmoothingMs); got != high {
		t.Errorf("coeff above the maximum not clamped: %v vs %v", high, got)
	}
	if !(smoothingCoeff(6) > smoothingCoeff(12)) {
		t.Errorf("shorter time should give a larger coefficient")
	}
}
