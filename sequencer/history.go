package sequencer

import "github.com/luddite478/fortuned"

// historyCapacity bounds the number of retained snapshots; when the history
// is full the oldest snapshot is dropped.
const historyCapacity = 100

type (
	// snapshot is one undoable state of the whole editor: the grid, the bank
	// and the persistent transport preferences, captured together so that
	// undo restores a consistent trio.
	snapshot struct {
		table    fortuned.Table
		bank     fortuned.SampleBank
		playback fortuned.PlaybackState
	}

	// history is a cursor over a bounded list of snapshots. The entry at the
	// cursor always mirrors the current state, so a fresh history starts
	// with one baseline entry and CanUndo means cursor > 0.
	history struct {
		entries []snapshot
		cursor  int
	}
)

func newHistory(baseline snapshot) *history {
	return &history{entries: []snapshot{baseline}}
}

// Push records a new current state, discarding any redo tail.
func (h *history) Push(s snapshot) {
	h.entries = append(h.entries[:h.cursor+1], s)
	if len(h.entries) > historyCapacity {
		copy(h.entries, h.entries[1:])
		h.entries = h.entries[:len(h.entries)-1]
	} else {
		h.cursor++
	}
}

// Undo steps the cursor back and returns the snapshot to restore.
func (h *history) Undo() (snapshot, bool) {
	if h.cursor == 0 {
		return snapshot{}, false
	}
	h.cursor--
	return h.entries[h.cursor], true
}

// Redo steps the cursor forward and returns the snapshot to restore.
func (h *history) Redo() (snapshot, bool) {
	if h.cursor >= len(h.entries)-1 {
		return snapshot{}, false
	}
	h.cursor++
	return h.entries[h.cursor], true
}

func (h *history) CanUndo() bool { return h.cursor > 0 }
func (h *history) CanRedo() bool { return h.cursor < len(h.entries)-1 }
func (h *history) Count() int    { return len(h.entries) }
func (h *history) Cursor() int   { return h.cursor }
