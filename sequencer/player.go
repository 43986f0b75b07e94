package sequencer

import (
	"github.com/viterin/vek/vek32"

	"github.com/luddite478/fortuned"
)

// maxChunkFrames sizes the mix buffers up front, so rendering does not
// allocate. Audio backends request far less per callback.
const maxChunkFrames = 8192

// Player is the audio-thread side of the engine. It renders the columns into
// the output buffer, advances the step clock, consumes resources armed by
// the preloader, and reports transport state back to the model through the
// broker. Process is the only entry point and everything here runs on the
// goroutine of the audio backend; the player owns private copies of the
// table and the bank and applies fresh ones only at step boundaries while
// playing.
type Player struct {
	broker *Broker
	armed  *ArmedResources

	table fortuned.Table
	bank  fortuned.SampleBank
	state fortuned.PlaybackState

	masterVolume float32
	recording    bool

	samplesSinceStep int
	triggerPending   bool
	pendingTable     *fortuned.Table
	pendingBank      *fortuned.SampleBank
	pendingSection   int // staged jump target, -1 when none

	columns [fortuned.MaxCols]columnUnit
	preview columnUnit
	nextID  uint64

	bus     []float32
	scratch []float32
	peaks   [fortuned.MaxCols]float32
}

func NewPlayer(broker *Broker, armed *ArmedResources) *Player {
	table := fortuned.NewTable()
	p := &Player{
		broker:         broker,
		armed:          armed,
		bank:           fortuned.NewSampleBank(),
		state:          fortuned.NewPlaybackState(table.TotalSteps()),
		masterVolume:   1,
		pendingSection: -1,
		preview:        makeColumnUnit(-1),
	}
	p.table = table
	for i := range p.columns {
		p.columns[i] = makeColumnUnit(i)
	}
	p.bus = make([]float32, maxChunkFrames*2)
	p.scratch = make([]float32, maxChunkFrames*2)
	return p
}

// Process renders the next chunk of audio into buf. It is called by the
// audio backend whenever it needs more audio.
func (p *Player) Process(buf fortuned.AudioBuffer) {
	p.processMessages()
	for i := range p.peaks {
		p.peaks[i] = 0
	}
	rendered := 0
	for rendered < len(buf) {
		frames := len(buf) - rendered
		if p.state.Playing {
			if p.triggerPending {
				p.triggerStep(p.state.Step)
				p.triggerPending = false
				p.requestPrepare(p.peekNext(p.state.Step))
			}
			if left := fortuned.SamplesPerStep(p.state.BPM) - p.samplesSinceStep; left < frames {
				frames = left
			}
		}
		if frames <= 0 {
			frames = 1
		}
		p.renderChunk(buf[rendered : rendered+frames])
		rendered += frames
		if p.state.Playing {
			p.samplesSinceStep += frames
			if p.samplesSinceStep >= fortuned.SamplesPerStep(p.state.BPM) {
				p.advanceStep()
			}
		}
	}
	if p.recording {
		p.tapRecording(buf)
	}
	TrySend(p.broker.ToModel, MsgToModel{
		HasTransport: true,
		Playing:      p.state.Playing,
		Step:         p.state.Step,
		Section:      p.state.Section,
		SectionLoop:  p.state.SectionLoop,
		PeakLevels:   p.peaks,
	})
}

// processMessages applies everything the model (and MIDI) sent since the
// last chunk. Table and bank copies are held back to the next step boundary
// while the transport runs, so edits never shift the grid mid-step.
func (p *Player) processMessages() {
loop:
	for {
		select {
		case msg := <-p.broker.ToPlayer:
			switch m := msg.(type) {
			case *fortuned.Table:
				if p.state.Playing {
					p.pendingTable = m
				} else {
					p.applyTable(m)
				}
			case *fortuned.SampleBank:
				if p.state.Playing {
					p.pendingBank = m
				} else {
					p.bank = *m
				}
			case StartPlayMsg:
				p.startPlaying(m.Step)
			case IsPlayingMsg:
				if m.bool {
					p.startPlaying(p.state.Step)
				} else {
					p.stopPlaying()
				}
			case BPMMsg:
				p.state.BPM = fortuned.ClampBPM(m.int)
			case RegionMsg:
				p.setRegion(m.Start, m.End)
			case ModeMsg:
				p.state.Mode = m.Mode
			case SectionLoopsMsg:
				if m.Section >= 0 && m.Section < fortuned.MaxSections {
					p.state.SectionLoops[m.Section] = fortuned.ClampSectionLoops(m.Loops)
				}
			case SwitchSectionMsg:
				p.switchSection(m.Section)
			case MasterVolumeMsg:
				if m.float32 >= 0 && m.float32 <= 1 {
					p.masterVolume = m.float32
				}
			case SmoothingTimesMsg:
				for i := range p.columns {
					p.columns[i].setSmoothingTimes(m.RiseMs, m.FallMs)
				}
				p.preview.setSmoothingTimes(m.RiseMs, m.FallMs)
			case RecordMsg:
				p.recording = m.bool
			case NoteOnMsg:
				p.previewNoteOn(m.Slot)
			case NoteOffMsg:
				p.preview.release()
			}
		default:
			break loop
		}
	}
}

func (p *Player) applyTable(t *fortuned.Table) {
	p.table = *t
	total := p.table.TotalSteps()
	if p.state.RegionEnd > total || p.state.RegionEnd == 0 {
		p.state.RegionEnd = total
	}
	if p.state.RegionStart >= total {
		p.state.RegionStart = 0
	}
	if p.state.Step >= total {
		p.state.Step = p.state.RegionStart
	}
	p.state.Section = p.table.SectionAtStep(p.state.Step)
}

func (p *Player) startPlaying(step int) {
	total := p.table.TotalSteps()
	if step < 0 || step >= total {
		step = p.state.RegionStart
	}
	p.state.Step = step
	p.state.Section = p.table.SectionAtStep(step)
	p.state.SectionLoop = 0
	p.state.Playing = true
	p.samplesSinceStep = 0
	p.triggerPending = true
	p.pendingSection = -1
	p.requestPrepare(step)
}

func (p *Player) stopPlaying() {
	if !p.state.Playing {
		return
	}
	p.state.Playing = false
	p.samplesSinceStep = 0
	p.triggerPending = false
	for i := range p.columns {
		p.columns[i].release()
	}
	TrySend(p.broker.ToPreloader, MsgToPreloader{Cancel: true})
}

func (p *Player) setRegion(start, end int) {
	total := p.table.TotalSteps()
	if start < 0 || end > total || start >= end {
		return
	}
	p.state.RegionStart = start
	p.state.RegionEnd = end
}

// switchSection stages a jump to the start of the given section. While
// playing the jump lands on the next step boundary; stopped, it moves the
// cursor immediately.
func (p *Player) switchSection(section int) {
	sec, ok := p.table.Section(section)
	if !ok {
		return
	}
	if p.state.Playing {
		p.pendingSection = section
		return
	}
	p.state.Step = sec.StartStep
	p.state.Section = section
	p.state.SectionLoop = 0
}

// advanceStep moves the transport across a step boundary: staged table and
// bank copies land first, then the next position is computed against the
// fresh grid.
func (p *Player) advanceStep() {
	p.samplesSinceStep -= fortuned.SamplesPerStep(p.state.BPM)
	if p.samplesSinceStep < 0 {
		p.samplesSinceStep = 0
	}
	if p.pendingTable != nil {
		p.applyTable(p.pendingTable)
		p.pendingTable = nil
	}
	if p.pendingBank != nil {
		p.bank = *p.pendingBank
		p.pendingBank = nil
	}
	if p.pendingSection >= 0 {
		if sec, ok := p.table.Section(p.pendingSection); ok {
			p.state.Step = sec.StartStep
			p.state.Section = p.pendingSection
			p.state.SectionLoop = 0
			p.pendingSection = -1
			p.triggerPending = true
			return
		}
		p.pendingSection = -1
	}
	p.nextPosition()
	p.triggerPending = true
}

// nextPosition advances Step, Section and SectionLoop by one step according
// to the playback mode.
func (p *Player) nextPosition() {
	switch p.state.Mode {
	case fortuned.SongMode:
		sec, ok := p.table.Section(p.state.Section)
		if !ok {
			p.state.Section = p.table.SectionAtStep(p.state.Step)
			sec, _ = p.table.Section(p.state.Section)
		}
		next := p.state.Step + 1
		if next < sec.StartStep+sec.NumSteps {
			p.state.Step = next
			return
		}
		p.state.SectionLoop++
		if p.state.SectionLoop < p.state.SectionLoops[p.state.Section] {
			p.state.Step = sec.StartStep
			return
		}
		p.state.SectionLoop = 0
		p.state.Section++
		if p.state.Section >= p.table.NumSections() {
			p.state.Section = 0
		}
		if sec, ok := p.table.Section(p.state.Section); ok {
			p.state.Step = sec.StartStep
		} else {
			p.state.Step = 0
		}
	default: // loop mode
		next := p.state.Step + 1
		end := p.state.RegionEnd
		if end <= 0 || end > p.table.TotalSteps() {
			end = p.table.TotalSteps()
		}
		if next >= end {
			next = p.state.RegionStart
			p.state.SectionLoop++
		}
		p.state.Step = next
		p.state.Section = p.table.SectionAtStep(next)
	}
}

// peekNext predicts the step that will follow the given one, without
// touching the loop counters. The prediction can be wrong across a section
// change with staged edits in flight; the render path falls back to resident
// audio when the preloader guessed wrong.
func (p *Player) peekNext(step int) int {
	switch p.state.Mode {
	case fortuned.SongMode:
		sec, ok := p.table.Section(p.table.SectionAtStep(step))
		if ok && step+1 < sec.StartStep+sec.NumSteps {
			return step + 1
		}
		if ok && p.state.SectionLoop+1 < p.state.SectionLoops[p.table.SectionAtStep(step)] {
			return sec.StartStep
		}
		nextSec := p.table.SectionAtStep(step) + 1
		if nextSec >= p.table.NumSections() {
			nextSec = 0
		}
		if sec, ok := p.table.Section(nextSec); ok {
			return sec.StartStep
		}
		return 0
	default:
		next := step + 1
		end := p.state.RegionEnd
		if end <= 0 || end > p.table.TotalSteps() {
			end = p.table.TotalSteps()
		}
		if next >= end {
			return p.state.RegionStart
		}
		return next
	}
}

func (p *Player) requestPrepare(step int) {
	TrySend(p.broker.ToPreloader, MsgToPreloader{HasPrepare: true, PrepareStep: step})
}

// triggerStep fires every non-empty cell of the step's row, preferring
// preloaded resources and falling back to the resident bank audio.
func (p *Player) triggerStep(step int) {
	for col := 0; col < fortuned.MaxCols; col++ {
		cell := p.table.Cell(step, col)
		if cell.SampleSlot == fortuned.EmptySlot {
			continue
		}
		if !p.bank.IsLoaded(cell.SampleSlot) {
			continue
		}
		volume, pitch := resolveCellSettings(&p.bank, cell)
		p.nextID++
		if res := p.armed.Peek(col); res != nil && res.Ready() &&
			res.TargetStep == step && res.Slot == cell.SampleSlot && res.Pitch == pitch &&
			res.TryConsume() {
			p.columns[col].trigger(p.nextID, cell.SampleSlot, volume, pitch, res.PCM, res.PrePitched, res)
			continue
		}
		pcm := p.bank.Sample(cell.SampleSlot).PCM
		p.columns[col].trigger(p.nextID, cell.SampleSlot, volume, pitch, pcm, false, nil)
	}
}

func (p *Player) previewNoteOn(slot int) {
	if !p.bank.IsLoaded(slot) {
		return
	}
	settings := p.bank.Settings(slot)
	pitch := settings.Pitch
	if pitch < fortuned.MinPitch || pitch > fortuned.MaxPitch {
		pitch = 1
	}
	p.nextID++
	p.preview.trigger(p.nextID, slot, settings.Volume, pitch, p.bank.Sample(slot).PCM, false, nil)
}

// renderChunk mixes all columns and the preview voice into buf, applying the
// master volume and tracking per-column peak levels.
func (p *Player) renderChunk(buf fortuned.AudioBuffer) {
	frames := len(buf)
	n := frames * 2
	if cap(p.bus) < n {
		// only reachable when a backend asks for more than maxChunkFrames
		p.bus = make([]float32, n)
		p.scratch = make([]float32, n)
	}
	bus := p.bus[:n]
	scratch := p.scratch[:n]
	for i := range bus {
		bus[i] = 0
	}
	for c := range p.columns {
		for i := range scratch {
			scratch[i] = 0
		}
		if p.columns[c].render(scratch, frames) {
			vek32.Add_Inplace(bus, scratch)
			vek32.Abs_Inplace(scratch)
			if peak := vek32.Max(scratch); peak > p.peaks[c] {
				p.peaks[c] = peak
			}
		}
	}
	for i := range scratch {
		scratch[i] = 0
	}
	if p.preview.render(scratch, frames) {
		vek32.Add_Inplace(bus, scratch)
	}
	if p.masterVolume != 1 {
		vek32.MulNumber_Inplace(bus, p.masterVolume)
	}
	for i := 0; i < frames; i++ {
		buf[i][0] = bus[i*2]
		buf[i][1] = bus[i*2+1]
	}
}

// tapRecording copies the rendered chunk into a pooled buffer and hands it
// to the writer goroutine. The writer returns the buffer to the pool.
func (p *Player) tapRecording(buf fortuned.AudioBuffer) {
	chunk := p.broker.GetAudioBuffer()
	*chunk = append(*chunk, buf...)
	if !TrySend(p.broker.ToWriter, MsgToWriter{Chunk: chunk}) {
		p.broker.PutAudioBuffer(chunk)
	}
}
