package sequencer

import (
	"runtime"
	"testing"
	"time"

	"github.com/luddite478/fortuned"
	"github.com/luddite478/fortuned/pitch"
)

func newTestModel() (*Model, *Broker) {
	broker := NewBroker()
	return NewModel(broker, pitch.NewCache(0, nil)), broker
}

func tableCell(m *Model, step, col int) fortuned.Cell {
	snap := m.TableSnapshot()
	return snap.Table.Cell(step, col)
}

func TestModelPublishesTableEdits(t *testing.T) {
	m, _ := newTestModel()
	m.SetCell(3, 1, 5, 0.5, 1, true)
	snap := m.TableSnapshot()
	if cell := snap.Table.Cell(3, 1); cell.SampleSlot != 5 {
		t.Errorf("published table misses the edit: %+v", cell)
	}
	if snap.TotalSteps != fortuned.DefaultSectionSteps || snap.NumSections != 1 {
		t.Errorf("published totals: %d steps, %d sections", snap.TotalSteps, snap.NumSections)
	}
}

func TestModelSendsCopiesToEngine(t *testing.T) {
	m, broker := newTestModel()
	m.SetCell(0, 0, 3, 1, 1, true)
	var gotPlayer, gotPreloader bool
drain:
	for {
		select {
		case msg := <-broker.ToPlayer:
			if table, ok := msg.(*fortuned.Table); ok {
				if table.Cell(0, 0).SampleSlot != 3 {
					t.Errorf("player copy misses the edit")
				}
				if &table.Cells[0] == &m.table.Cells[0] {
					t.Errorf("player shares rows with the model")
				}
				gotPlayer = true
			}
		case msg := <-broker.ToPreloader:
			if table, ok := msg.Data.(*fortuned.Table); ok && table.Cell(0, 0).SampleSlot == 3 {
				gotPreloader = true
			}
		default:
			break drain
		}
	}
	if !gotPlayer || !gotPreloader {
		t.Errorf("copies sent: player=%v preloader=%v", gotPlayer, gotPreloader)
	}
}

func TestModelUndoRedo(t *testing.T) {
	m, _ := newTestModel()
	if u := m.UndoRedoSnapshot(); u.CanUndo || u.CanRedo {
		t.Fatalf("fresh model: %+v", u)
	}
	m.SetCell(0, 0, 1, 1, 1, true)
	m.SetCell(0, 0, 2, 1, 1, true)
	if u := m.UndoRedoSnapshot(); !u.CanUndo || u.CanRedo || u.Count != 3 {
		t.Fatalf("after two edits: %+v", u)
	}
	m.Undo()
	if cell := tableCell(m, 0, 0); cell.SampleSlot != 1 {
		t.Errorf("after undo: %+v", cell)
	}
	m.Undo()
	if cell := tableCell(m, 0, 0); cell.SampleSlot != fortuned.EmptySlot {
		t.Errorf("after second undo: %+v", cell)
	}
	m.Redo()
	m.Redo()
	if cell := tableCell(m, 0, 0); cell.SampleSlot != 2 {
		t.Errorf("after redoing everything: %+v", cell)
	}
	// undoing restores the whole composite state bit for bit
	m.Undo()
	m.Redo()
	if cell := tableCell(m, 0, 0); cell.SampleSlot != 2 {
		t.Errorf("undo/redo cycle drifted: %+v", cell)
	}
}

func TestModelUndoCoversBankAndPreferences(t *testing.T) {
	m, _ := newTestModel()
	m.SetSampleVolume(3, 0.5, true)
	m.SetBPM(200, true)
	m.Undo() // BPM back to default
	if got := m.PlaybackSnapshot().BPM; got != fortuned.DefaultBPM {
		t.Errorf("BPM after undo: %d", got)
	}
	m.Undo() // sample volume back to default
	if got := m.SampleBankSnapshot().Slots[3].Settings.Volume; got == 0.5 {
		t.Errorf("sample volume survived undo: %v", got)
	}
	m.Redo()
	if got := m.SampleBankSnapshot().Slots[3].Settings.Volume; got != 0.5 {
		t.Errorf("sample volume after redo: %v", got)
	}
}

func TestModelUndoRedoDoesNotRecordItself(t *testing.T) {
	m, _ := newTestModel()
	m.SetCell(0, 0, 1, 1, 1, true)
	before := m.UndoRedoSnapshot().Count
	m.Undo()
	m.Redo()
	if got := m.UndoRedoSnapshot().Count; got != before {
		t.Errorf("undo/redo changed the history from %d to %d entries", before, got)
	}
}

func TestModelUnrecordedEditsUndoAsOneStep(t *testing.T) {
	m, _ := newTestModel()
	m.SetCell(0, 0, 1, 1, 1, false)
	m.SetCell(1, 0, 2, 1, 1, false)
	m.SetCell(2, 0, 3, 1, 1, true)
	if u := m.UndoRedoSnapshot(); u.Count != 2 {
		t.Fatalf("batch of three edits recorded %d snapshots", u.Count-1)
	}
	m.Undo()
	table := m.TableSnapshot().Table
	for step := 0; step < 3; step++ {
		if cell := table.Cell(step, 0); cell.SampleSlot != fortuned.EmptySlot {
			t.Errorf("step %d survived undoing the batch: %+v", step, cell)
		}
	}
}

func TestModelSetBPMClamps(t *testing.T) {
	m, _ := newTestModel()
	m.SetBPM(10000, true)
	if got := m.PlaybackSnapshot().BPM; got != fortuned.MaxBPM {
		t.Errorf("BPM published as %d, expected %d", got, fortuned.MaxBPM)
	}
	m.SetBPM(0, true)
	if got := m.PlaybackSnapshot().BPM; got != fortuned.MinBPM {
		t.Errorf("BPM published as %d, expected %d", got, fortuned.MinBPM)
	}
}

func TestModelLoadSample(t *testing.T) {
	m, _ := newTestModel()
	path := writeTestWav(t, 500)
	if err := m.LoadSample(4, path, true); err != nil {
		t.Fatalf("LoadSample failed: %v", err)
	}
	slot := m.SampleBankSnapshot().Slots[4]
	if !slot.Loaded || slot.DisplayName != "sample" {
		t.Errorf("published slot: %+v", slot)
	}
	if got := len(m.bank.Sample(4).PCM); got != 500 {
		t.Errorf("decoded %d frames, expected 500", got)
	}
}

func TestModelLoadSampleFailureAlerts(t *testing.T) {
	m, _ := newTestModel()
	if err := m.LoadSample(4, "/nonexistent/sample.wav", true); err == nil {
		t.Fatalf("loading a missing file did not fail")
	}
	if _, ok := m.NextAlert(); !ok {
		t.Errorf("no alert after a failed load")
	}
	if m.SampleBankSnapshot().Slots[4].Loaded {
		t.Errorf("failed load still marked the slot loaded")
	}
}

func TestModelProjectRoundTrip(t *testing.T) {
	m, _ := newTestModel()
	m.SetCell(2, 3, 1, 0.5, 1, true)
	m.SetBPM(150, true)
	m.SetMode(fortuned.SongMode, true)
	m.SetMasterVolume(0.8)
	project := m.SaveProject()

	m2, _ := newTestModel()
	if err := m2.LoadProject(&project); err != nil {
		t.Fatalf("LoadProject failed: %v", err)
	}
	if cell := tableCell(m2, 2, 3); cell.SampleSlot != 1 {
		t.Errorf("cell did not survive the round trip: %+v", cell)
	}
	p := m2.PlaybackSnapshot()
	if p.BPM != 150 || p.Mode != fortuned.SongMode || p.MasterVolume != 0.8 {
		t.Errorf("preferences did not survive the round trip: %+v", p)
	}
}

func TestModelRunCollectsEngineAlerts(t *testing.T) {
	m, broker := newTestModel()
	go m.Run()
	defer func() {
		TrySend(broker.CloseModel, struct{}{})
		TimeoutReceive(broker.FinishedModel, closeTimeout)
	}()
	broker.ToModel <- MsgToModel{Data: &Alert{Name: "Preload", Priority: Warning, Message: "decoding kick.wav: no such file"}}
	queued := make(chan Alert)
	go func() {
		for {
			if a, ok := m.NextAlert(); ok {
				queued <- a
				return
			}
			runtime.Gosched()
		}
	}()
	select {
	case a := <-queued:
		if a.Name != "Preload" || a.Priority != Warning || a.Duration == 0 {
			t.Errorf("queued alert: %+v", a)
		}
	case <-time.After(closeTimeout):
		t.Fatalf("alert never reached the model")
	}
}

func TestModelRunMirrorsTransport(t *testing.T) {
	m, broker := newTestModel()
	go m.Run()
	defer func() {
		TrySend(broker.CloseModel, struct{}{})
		TimeoutReceive(broker.FinishedModel, closeTimeout)
	}()
	broker.ToModel <- MsgToModel{HasTransport: true, Playing: true, Step: 7, Section: 0, SectionLoop: 2}
	mirrored := make(chan struct{})
	go func() {
		for m.PlaybackSnapshot().Step != 7 {
			runtime.Gosched()
		}
		close(mirrored)
	}()
	select {
	case <-mirrored:
	case <-time.After(closeTimeout):
		t.Fatalf("transport never mirrored")
	}
	p := m.PlaybackSnapshot()
	if !p.Playing || p.Step != 7 || p.SectionLoop != 2 {
		t.Errorf("mirrored transport: %+v", p)
	}
}
