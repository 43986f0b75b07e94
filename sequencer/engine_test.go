package sequencer

import (
	"testing"

	"github.com/luddite478/fortuned"
)

func TestEngineStartClose(t *testing.T) {
	e := NewEngine()
	e.Start()
	e.Close()
	// closing twice is harmless
	e.Close()
}

func TestEngineEndToEnd(t *testing.T) {
	e := NewEngine()
	e.Start()
	defer e.Close()

	path := writeTestWav(t, 2000)
	if err := e.Model.LoadSample(0, path, true); err != nil {
		t.Fatalf("LoadSample failed: %v", err)
	}
	e.Model.SetCell(0, 0, 0, 1, 1, true)
	e.Model.PlayFrom(0)

	buf := make(fortuned.AudioBuffer, 1024)
	audible := false
	for i := 0; i < 8 && !audible; i++ {
		e.Player.Process(buf)
		for _, frame := range buf {
			if frame[0] != 0 {
				audible = true
				break
			}
		}
	}
	if !audible {
		t.Errorf("no audio produced from a triggered cell")
	}
	e.Model.Stop()
}
