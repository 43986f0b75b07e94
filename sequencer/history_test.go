package sequencer

import (
	"testing"

	"github.com/luddite478/fortuned"
)

func tableSnapshotWithMarker(slot int) snapshot {
	s := snapshot{
		table:    fortuned.NewTable(),
		bank:     fortuned.NewSampleBank(),
		playback: fortuned.NewPlaybackState(fortuned.DefaultSectionSteps),
	}
	s.table.SetCell(0, 0, slot, 1, 1)
	return s
}

func marker(s snapshot) int {
	return s.table.Cell(0, 0).SampleSlot
}

func TestHistoryUndoRedo(t *testing.T) {
	h := newHistory(tableSnapshotWithMarker(0))
	if h.CanUndo() || h.CanRedo() {
		t.Fatalf("fresh history: CanUndo=%v CanRedo=%v", h.CanUndo(), h.CanRedo())
	}
	h.Push(tableSnapshotWithMarker(1))
	h.Push(tableSnapshotWithMarker(2))
	if !h.CanUndo() || h.CanRedo() {
		t.Fatalf("after pushes: CanUndo=%v CanRedo=%v", h.CanUndo(), h.CanRedo())
	}
	s, ok := h.Undo()
	if !ok || marker(s) != 1 {
		t.Fatalf("first undo: ok=%v marker=%d", ok, marker(s))
	}
	s, ok = h.Undo()
	if !ok || marker(s) != 0 {
		t.Fatalf("second undo: ok=%v marker=%d", ok, marker(s))
	}
	if _, ok := h.Undo(); ok {
		t.Errorf("undo past the baseline succeeded")
	}
	s, ok = h.Redo()
	if !ok || marker(s) != 1 {
		t.Fatalf("redo: ok=%v marker=%d", ok, marker(s))
	}
	s, ok = h.Redo()
	if !ok || marker(s) != 2 {
		t.Fatalf("second redo: ok=%v marker=%d", ok, marker(s))
	}
	if _, ok := h.Redo(); ok {
		t.Errorf("redo past the newest state succeeded")
	}
}

func TestHistoryPushTruncatesRedoTail(t *testing.T) {
	h := newHistory(tableSnapshotWithMarker(0))
	h.Push(tableSnapshotWithMarker(1))
	h.Push(tableSnapshotWithMarker(2))
	h.Undo()
	h.Push(tableSnapshotWithMarker(9))
	if h.CanRedo() {
		t.Errorf("redo tail survived a push")
	}
	s, ok := h.Undo()
	if !ok || marker(s) != 1 {
		t.Errorf("undo after truncating push: ok=%v marker=%d", ok, marker(s))
	}
	s, ok = h.Redo()
	if !ok || marker(s) != 9 {
		t.Errorf("redo reaches the new branch: ok=%v marker=%d", ok, marker(s))
	}
}

func TestHistoryCapacity(t *testing.T) {
	h := newHistory(tableSnapshotWithMarker(0))
	for i := 1; i <= historyCapacity+10; i++ {
		h.Push(tableSnapshotWithMarker(i % fortuned.MaxSampleSlots))
	}
	if got := h.Count(); got != historyCapacity {
		t.Fatalf("Count() = %d, expected %d", got, historyCapacity)
	}
	// undo all the way down; the oldest states fell off
	steps := 0
	for h.CanUndo() {
		h.Undo()
		steps++
	}
	if steps != historyCapacity-1 {
		t.Errorf("could undo %d times, expected %d", steps, historyCapacity-1)
	}
}

func TestHistorySnapshotsAreIndependent(t *testing.T) {
	h := newHistory(tableSnapshotWithMarker(0))
	current := tableSnapshotWithMarker(1)
	h.Push(snapshot{table: current.table.Copy(), bank: current.bank.Copy(), playback: current.playback.Copy()})
	current.table.SetCell(0, 0, 5, 1, 1)
	s, ok := h.Undo()
	if !ok || marker(s) != 0 {
		t.Fatalf("undo: ok=%v marker=%d", ok, marker(s))
	}
	s, ok = h.Redo()
	if !ok || marker(s) != 1 {
		t.Errorf("stored snapshot changed after the push: marker=%d", marker(s))
	}
}
