package sequencer

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/luddite478/fortuned"
	"github.com/luddite478/fortuned/codec"
	"github.com/luddite478/fortuned/pitch"
)

// Model is the editor-facing facade of the engine. All edits go through it:
// it owns the authoritative table, bank and transport preferences, records
// undo snapshots, hands fresh copies to the player and the preloader, and
// publishes read-only state through seqlocks so observers never block the
// engine.
//
// Methods are safe to call from any goroutine. The mutex also serializes
// seqlock writes, keeping the single-writer discipline the seqlocks need.
type Model struct {
	broker   *Broker
	cache    *pitch.Cache
	registry codec.Registry

	mu       sync.Mutex
	table    fortuned.Table
	bank     fortuned.SampleBank
	playback fortuned.PlaybackState
	master   float32

	recording bool

	hist     *history
	applying bool

	alerts []Alert

	tableLock    Seqlock[TableSnapshot]
	playbackLock Seqlock[PlaybackSnapshot]
	bankLock     Seqlock[SampleBankSnapshot]
	undoLock     Seqlock[UndoRedoSnapshot]
}

func NewModel(broker *Broker, cache *pitch.Cache) *Model {
	m := &Model{
		broker: broker,
		cache:  cache,
		table:  fortuned.NewTable(),
		bank:   fortuned.NewSampleBank(),
		master: 1,
	}
	m.playback = fortuned.NewPlaybackState(m.table.TotalSteps())
	m.hist = newHistory(m.snapshot())
	m.publishTable()
	m.publishBank()
	m.publishPlayback()
	m.publishUndo()
	return m
}

// Run mirrors the player's transport reports into the playback seqlock and
// collects alerts from the engine goroutines. It exits when CloseModel is
// signaled and closes FinishedModel on the way out.
func (m *Model) Run() {
	defer close(m.broker.FinishedModel)
	for {
		select {
		case <-m.broker.CloseModel:
			return
		case msg := <-m.broker.ToModel:
			if a, ok := msg.Data.(*Alert); ok {
				m.addAlert(*a)
			}
			if !msg.HasTransport {
				continue
			}
			m.mu.Lock()
			m.playback.Playing = msg.Playing
			m.playback.Step = msg.Step
			m.playback.Section = msg.Section
			m.playback.SectionLoop = msg.SectionLoop
			m.playbackLock.Write(func(s *PlaybackSnapshot) {
				s.Playing = msg.Playing
				s.Step = msg.Step
				s.Section = msg.Section
				s.SectionLoop = msg.SectionLoop
				s.PeakLevels = msg.PeakLevels
			})
			m.mu.Unlock()
		}
	}
}

// Snapshot accessors. Reads are lock-free and safe from any goroutine.

func (m *Model) TableSnapshot() TableSnapshot           { return m.tableLock.Read() }
func (m *Model) PlaybackSnapshot() PlaybackSnapshot     { return m.playbackLock.Read() }
func (m *Model) SampleBankSnapshot() SampleBankSnapshot { return m.bankLock.Read() }
func (m *Model) UndoRedoSnapshot() UndoRedoSnapshot     { return m.undoLock.Read() }

// NextAlert pops the oldest pending alert, if any.
func (m *Model) NextAlert() (Alert, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.alerts) == 0 {
		return Alert{}, false
	}
	a := m.alerts[0]
	m.alerts = m.alerts[1:]
	return a, true
}

// Table edits
//
// The record argument controls whether the edit pushes an undo snapshot;
// batch operations pass false for all but the last call so the whole batch
// undoes as one step.

func (m *Model) SetCell(step, col, slot int, volume, pitch float32, record bool) {
	m.editTable(record, func() { m.table.SetCell(step, col, slot, volume, pitch) })
}

func (m *Model) SetCellSettings(step, col int, volume, pitch float32, record bool) {
	m.editTable(record, func() { m.table.SetCellSettings(step, col, volume, pitch) })
}

func (m *Model) SetCellSampleSlot(step, col, slot int, record bool) {
	m.editTable(record, func() { m.table.SetCellSampleSlot(step, col, slot) })
}

func (m *Model) ClearCell(step, col int, record bool) {
	m.editTable(record, func() { m.table.ClearCell(step, col) })
}

func (m *Model) InsertStep(section, atStep int, record bool) {
	m.editTable(record, func() { m.table.InsertStep(section, atStep) })
}

func (m *Model) DeleteStep(section, atStep int, record bool) {
	m.editTable(record, func() { m.table.DeleteStep(section, atStep) })
}

func (m *Model) AppendSection(steps, copyFrom int, record bool) {
	m.editTable(record, func() { m.table.AppendSection(steps, copyFrom) })
}

func (m *Model) DeleteSection(section int, record bool) {
	m.editTable(record, func() { m.table.DeleteSection(section) })
}

func (m *Model) SetSectionStepCount(section, steps int, record bool) {
	m.editTable(record, func() { m.table.SetSectionStepCount(section, steps) })
}

func (m *Model) ReorderSection(from, to int, record bool) {
	m.editTable(record, func() { m.table.ReorderSection(from, to) })
}

func (m *Model) SetLayerLen(section, layer, length int, record bool) {
	m.editTable(record, func() { m.table.SetLayerLen(section, layer, length) })
}

// Sample bank edits

// LoadSample decodes the file and loads it into the slot, replacing whatever
// the slot held. Preprocessed buffers of the old audio are dropped.
func (m *Model) LoadSample(slot int, path string, record bool) error {
	pcm, err := m.registry.DecodeAll(path)
	if err != nil {
		m.addAlert(Alert{Name: "LoadSample", Priority: Error,
			Message: fmt.Sprintf("loading %v: %v", filepath.Base(path), err)})
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.bank.Load(slot, path) {
		return fmt.Errorf("no such sample slot: %d", slot)
	}
	m.bank.SetPCM(slot, pcm)
	m.bank.SetDisplayName(slot, strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	m.cache.ClearSlot(slot)
	m.bankEdited(record)
	return nil
}

func (m *Model) UnloadSample(slot int, record bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.bank.IsLoaded(slot) {
		return
	}
	m.bank.Unload(slot)
	m.cache.ClearSlot(slot)
	m.bankEdited(record)
}

func (m *Model) SetSampleVolume(slot int, volume float32, record bool) {
	m.editBank(record, func() { m.bank.SetVolume(slot, volume) })
}

// SetSamplePitch changes the slot's default pitch. The preprocessed buffers
// for other ratios stay cached; they are keyed by ratio, not by the default.
func (m *Model) SetSamplePitch(slot int, pitch float32, record bool) {
	m.editBank(record, func() { m.bank.SetPitch(slot, pitch) })
}

func (m *Model) SetSampleName(slot int, name string, record bool) {
	m.editBank(record, func() { m.bank.SetDisplayName(slot, name) })
}

// PreviewNoteOn plays the slot outside the grid, for auditioning.
func (m *Model) PreviewNoteOn(slot int) {
	TrySend(m.broker.ToPlayer, any(NoteOnMsg{Slot: slot}))
}

func (m *Model) PreviewNoteOff() {
	TrySend(m.broker.ToPlayer, any(NoteOffMsg{}))
}

// PreprocessPitch generates the shifted buffer for (slot, ratio) and blocks
// until it is cached or fails.
func (m *Model) PreprocessPitch(slot int, ratio float32) error {
	src, err := m.pitchSource(slot)
	if err != nil {
		return err
	}
	if err := m.cache.PreprocessSync(slot, ratio, src); err != nil {
		m.addAlert(Alert{Name: "Preprocess", Priority: Warning, Message: err.Error()})
		return err
	}
	return nil
}

// StartPitchPreprocess is the non-blocking version of PreprocessPitch;
// completion is observable through the cache.
func (m *Model) StartPitchPreprocess(slot int, ratio float32) {
	src, err := m.pitchSource(slot)
	if err != nil {
		return
	}
	m.cache.StartAsync(slot, ratio, src)
}

func (m *Model) pitchSource(slot int) (pitch.SourceFunc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.bank.IsLoaded(slot) {
		return nil, fmt.Errorf("no sample loaded in slot %d", slot)
	}
	pcm := m.bank.Sample(slot).PCM
	if len(pcm) == 0 {
		return nil, fmt.Errorf("slot %d has no audio", slot)
	}
	return func() ([][2]float32, error) { return pcm, nil }, nil
}

// Transport

func (m *Model) Play() { m.PlayFrom(-1) }

// PlayFrom starts the transport at the given step; a negative step starts at
// the region start.
func (m *Model) PlayFrom(step int) {
	TrySend(m.broker.ToPlayer, any(StartPlayMsg{Step: step}))
}

func (m *Model) Stop() {
	TrySend(m.broker.ToPlayer, any(IsPlayingMsg{false}))
}

func (m *Model) TogglePlaying() {
	if m.PlaybackSnapshot().Playing {
		m.Stop()
	} else {
		m.Play()
	}
}

func (m *Model) SetBPM(bpm int, record bool) {
	m.editPlayback(record, func() { m.playback.BPM = fortuned.ClampBPM(bpm) })
	TrySend(m.broker.ToPlayer, any(BPMMsg{bpm}))
}

func (m *Model) SetMode(mode fortuned.PlaybackMode, record bool) {
	m.editPlayback(record, func() { m.playback.Mode = mode })
	TrySend(m.broker.ToPlayer, any(ModeMsg{Mode: mode}))
}

func (m *Model) SetRegion(start, end int, record bool) {
	m.mu.Lock()
	if start < 0 || end > m.table.TotalSteps() || start >= end {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()
	m.editPlayback(record, func() {
		m.playback.RegionStart = start
		m.playback.RegionEnd = end
	})
	TrySend(m.broker.ToPlayer, any(RegionMsg{Start: start, End: end}))
}

func (m *Model) SetSectionLoops(section, loops int, record bool) {
	if section < 0 || section >= fortuned.MaxSections {
		return
	}
	m.editPlayback(record, func() { m.playback.SectionLoops[section] = fortuned.ClampSectionLoops(loops) })
	TrySend(m.broker.ToPlayer, any(SectionLoopsMsg{Section: section, Loops: loops}))
}

func (m *Model) SwitchSection(section int) {
	TrySend(m.broker.ToPlayer, any(SwitchSectionMsg{Section: section}))
}

func (m *Model) SetMasterVolume(volume float32) {
	if volume < 0 || volume > 1 {
		return
	}
	m.mu.Lock()
	m.master = volume
	m.playbackLock.Write(func(s *PlaybackSnapshot) { s.MasterVolume = volume })
	m.mu.Unlock()
	TrySend(m.broker.ToPlayer, any(MasterVolumeMsg{volume}))
}

func (m *Model) SetSmoothingTimes(riseMs, fallMs float32) {
	TrySend(m.broker.ToPlayer, any(SmoothingTimesMsg{RiseMs: riseMs, FallMs: fallMs}))
}

// Recording

// StartRecording opens the file and starts tapping the player's output into
// it. Recording whatever plays, including silence, is intentional.
func (m *Model) StartRecording(path string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recording {
		return
	}
	m.recording = true
	m.playbackLock.Write(func(s *PlaybackSnapshot) { s.Recording = true })
	TrySend(m.broker.ToWriter, MsgToWriter{OpenPath: path})
	TrySend(m.broker.ToPlayer, any(RecordMsg{true}))
}

func (m *Model) StopRecording() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return
	}
	m.recording = false
	m.playbackLock.Write(func(s *PlaybackSnapshot) { s.Recording = false })
	TrySend(m.broker.ToPlayer, any(RecordMsg{false}))
	TrySend(m.broker.ToWriter, MsgToWriter{Stop: true})
}

// Undo and redo

func (m *Model) Undo() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.hist.Undo(); ok {
		m.apply(s)
	}
}

func (m *Model) Redo() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.hist.Redo(); ok {
		m.apply(s)
	}
}

// apply restores a snapshot in a fixed order so that cells never point at
// bank slots from a different era than the grid: table first, then bank,
// then transport preferences. The applying flag keeps the restoration from
// recording itself.
func (m *Model) apply(s snapshot) {
	m.applying = true
	m.table = s.table.Copy()
	m.bank = s.bank.Copy()
	m.playback.BPM = s.playback.BPM
	m.playback.Mode = s.playback.Mode
	m.playback.RegionStart = s.playback.RegionStart
	m.playback.RegionEnd = s.playback.RegionEnd
	m.playback.SectionLoops = s.playback.SectionLoops
	m.applying = false

	m.syncTable()
	m.syncBank()
	TrySend(m.broker.ToPlayer, any(BPMMsg{m.playback.BPM}))
	TrySend(m.broker.ToPlayer, any(ModeMsg{Mode: m.playback.Mode}))
	TrySend(m.broker.ToPlayer, any(RegionMsg{Start: m.playback.RegionStart, End: m.playback.RegionEnd}))
	for i := 0; i < fortuned.MaxSections; i++ {
		TrySend(m.broker.ToPlayer, any(SectionLoopsMsg{Section: i, Loops: m.playback.SectionLoops[i]}))
	}
	m.publishTable()
	m.publishBank()
	m.publishPlayback()
	m.publishUndo()
}

// Project load and save

// LoadProject replaces the whole editor state with the project, decoding
// every referenced sample. Undecodable samples keep their slot but stay
// silent until reloaded. The load itself is undoable as a single action.
func (m *Model) LoadProject(p *fortuned.Project) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.table = p.Table.Copy()
	m.bank = p.Samples.Copy()
	for i := range m.bank.Samples {
		smp := &m.bank.Samples[i]
		if !smp.Loaded || smp.FilePath == "" {
			continue
		}
		pcm, err := m.registry.DecodeAll(smp.FilePath)
		if err != nil {
			m.addAlertLocked(Alert{Name: "LoadProject", Priority: Warning,
				Message: fmt.Sprintf("loading %v: %v", filepath.Base(smp.FilePath), err)})
			continue
		}
		smp.PCM = pcm
	}
	m.playback.BPM = fortuned.ClampBPM(p.BPM)
	m.playback.Mode = p.Mode
	m.playback.RegionStart = 0
	m.playback.RegionEnd = m.table.TotalSteps()
	for i, loops := range p.SectionLoops {
		m.playback.SectionLoops[i] = fortuned.ClampSectionLoops(loops)
	}
	m.master = p.MasterVolume
	m.cache.Clear()
	m.hist.Push(m.snapshot())
	m.syncAll()
	return nil
}

// SaveProject captures the current state as a serializable project.
func (m *Model) SaveProject() fortuned.Project {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := fortuned.NewProject()
	p.BPM = m.playback.BPM
	p.Mode = m.playback.Mode
	p.MasterVolume = m.master
	p.SectionLoops = m.playback.SectionLoops
	p.Table = m.table.Copy()
	p.Samples = m.bank.Copy()
	return p
}

// Internal plumbing

func (m *Model) editTable(record bool, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f()
	if record && !m.applying {
		m.hist.Push(m.snapshot())
	}
	m.syncTable()
	m.publishTable()
	m.publishUndo()
}

func (m *Model) editBank(record bool, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f()
	m.bankEdited(record)
}

// bankEdited records and distributes a bank change; the caller holds the
// mutex.
func (m *Model) bankEdited(record bool) {
	if record && !m.applying {
		m.hist.Push(m.snapshot())
	}
	m.syncBank()
	m.publishBank()
	m.publishUndo()
}

func (m *Model) editPlayback(record bool, f func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f()
	if record && !m.applying {
		m.hist.Push(m.snapshot())
	}
	m.publishPlayback()
	m.publishUndo()
}

func (m *Model) syncAll() {
	m.syncTable()
	m.syncBank()
	TrySend(m.broker.ToPlayer, any(BPMMsg{m.playback.BPM}))
	TrySend(m.broker.ToPlayer, any(ModeMsg{Mode: m.playback.Mode}))
	TrySend(m.broker.ToPlayer, any(RegionMsg{Start: m.playback.RegionStart, End: m.playback.RegionEnd}))
	TrySend(m.broker.ToPlayer, any(MasterVolumeMsg{m.master}))
	for i := 0; i < fortuned.MaxSections; i++ {
		TrySend(m.broker.ToPlayer, any(SectionLoopsMsg{Section: i, Loops: m.playback.SectionLoops[i]}))
	}
	m.publishTable()
	m.publishBank()
	m.publishPlayback()
	m.publishUndo()
}

// syncTable hands fresh table copies to the player and the preloader. Each
// gets its own copy; they run on different goroutines.
func (m *Model) syncTable() {
	forPlayer := m.table.Copy()
	forPreloader := m.table.Copy()
	TrySend(m.broker.ToPlayer, any(&forPlayer))
	TrySend(m.broker.ToPreloader, MsgToPreloader{Data: &forPreloader})
}

func (m *Model) syncBank() {
	forPlayer := m.bank.Copy()
	forPreloader := m.bank.Copy()
	TrySend(m.broker.ToPlayer, any(&forPlayer))
	TrySend(m.broker.ToPreloader, MsgToPreloader{Data: &forPreloader})
}

func (m *Model) snapshot() snapshot {
	return snapshot{
		table:    m.table.Copy(),
		bank:     m.bank.Copy(),
		playback: m.playback.Copy(),
	}
}

func (m *Model) publishTable() {
	m.tableLock.Set(makeTableSnapshot(&m.table))
}

func (m *Model) publishBank() {
	m.bankLock.Set(makeBankSnapshot(&m.bank))
}

func (m *Model) publishPlayback() {
	p := m.playback
	master := m.master
	recording := m.recording
	m.playbackLock.Write(func(s *PlaybackSnapshot) {
		s.BPM = p.BPM
		s.RegionStart = p.RegionStart
		s.RegionEnd = p.RegionEnd
		s.Mode = p.Mode
		s.SectionLoops = p.SectionLoops
		s.MasterVolume = master
		s.Recording = recording
	})
}

func (m *Model) publishUndo() {
	m.undoLock.Set(UndoRedoSnapshot{
		Count:   m.hist.Count(),
		Cursor:  m.hist.Cursor(),
		CanUndo: m.hist.CanUndo(),
		CanRedo: m.hist.CanRedo(),
	})
}

func (m *Model) addAlert(a Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addAlertLocked(a)
}

func (m *Model) addAlertLocked(a Alert) {
	if a.Duration == 0 {
		a.Duration = defaultAlertDuration
	}
	m.alerts = append(m.alerts, a)
}
