package sequencer

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/luddite478/fortuned"
	"github.com/luddite478/fortuned/codec"
	"github.com/luddite478/fortuned/pitch"
)

const (
	// preloadHeadFrames is how much audio the preloader decodes ahead of a
	// trigger when a sample is not resident: 1.5 seconds at the engine rate.
	preloadHeadFrames = fortuned.SampleRate * 3 / 2
	// preloadFloorFrames is the minimum head size; heads shorter than this
	// are not worth arming over the resident fallback.
	preloadFloorFrames = 12000
	// preloadMaxTotalBytes caps the combined size of all decoded heads the
	// preloader holds at once.
	preloadMaxTotalBytes = 100 << 20

	bytesPerPreloadFrame = 8 // one stereo float32 frame
)

// Preloader prepares per-column resources one step ahead of the transport on
// its own goroutine, keeping decode and pitch-shift work off the audio
// thread. It holds its own copies of the table and the bank, updated through
// broker messages, and publishes finished work by arming resources in the
// shared registry.
type Preloader struct {
	broker   *Broker
	armed    *ArmedResources
	cache    *pitch.Cache
	registry codec.Registry

	table      fortuned.Table
	bank       fortuned.SampleBank
	headFrames int64
	maxBytes   int64
	headBytes  int64
	free       []*Resource
}

func NewPreloader(broker *Broker, armed *ArmedResources, cache *pitch.Cache) *Preloader {
	headFrames := int64(preloadHeadFrames)
	if headFrames < preloadFloorFrames {
		headFrames = preloadFloorFrames
	}
	return &Preloader{
		broker:     broker,
		armed:      armed,
		cache:      cache,
		table:      fortuned.NewTable(),
		bank:       fortuned.NewSampleBank(),
		headFrames: headFrames,
		maxBytes:   preloadMaxTotalBytes,
	}
}

// Run is the preloader goroutine. It exits when ClosePreloader is signaled
// and closes FinishedPreloader on the way out.
func (p *Preloader) Run() {
	defer close(p.broker.FinishedPreloader)
	for {
		select {
		case <-p.broker.ClosePreloader:
			p.reclaim(p.armed.Clear()...)
			return
		case msg := <-p.broker.ToPreloader:
			p.handleMsg(msg)
		}
	}
}

func (p *Preloader) handleMsg(msg MsgToPreloader) {
	switch m := msg.Data.(type) {
	case *fortuned.Table:
		p.table = *m
	case *fortuned.SampleBank:
		p.bank = *m
	}
	if msg.Cancel {
		p.drainPrepares()
		p.reclaim(p.armed.Clear()...)
		return
	}
	if msg.HasPrepare {
		p.prepare(msg.PrepareStep)
	}
}

// drainPrepares throws away queued prepare requests after a Cancel, keeping
// data updates that may be interleaved with them.
func (p *Preloader) drainPrepares() {
	for {
		select {
		case msg := <-p.broker.ToPreloader:
			switch m := msg.Data.(type) {
			case *fortuned.Table:
				p.table = *m
			case *fortuned.SampleBank:
				p.bank = *m
			}
		default:
			return
		}
	}
}

// prepare builds and arms one resource per non-empty cell of the step's row.
func (p *Preloader) prepare(step int) {
	for col := 0; col < fortuned.MaxCols; col++ {
		cell := p.table.Cell(step, col)
		if cell.SampleSlot == fortuned.EmptySlot || !p.bank.IsLoaded(cell.SampleSlot) {
			continue
		}
		volume, ratio := resolveCellSettings(&p.bank, cell)
		res := p.newResource()
		res.TargetStep = step
		res.Slot = cell.SampleSlot
		res.Volume = volume
		res.Pitch = ratio
		p.fillResource(res, cell.SampleSlot, ratio)
		if len(res.PCM) == 0 {
			p.free = append(p.free, res)
			continue
		}
		res.SetReady()
		if displaced := p.armed.Arm(col, res); displaced != nil {
			p.reclaim(displaced)
		}
	}
}

// fillResource picks the best available audio for the slot at the given
// ratio: a preprocessed buffer when the cache has one, otherwise the
// unshifted audio, kicking off a background shift for next time. Unshifted
// audio comes from the resident bank or, failing that, from a head decode of
// the source file.
func (p *Preloader) fillResource(res *Resource, slot int, ratio float32) {
	if ratio != 1 {
		if pcm, ok := p.cache.Lookup(slot, ratio); ok {
			res.PCM = pcm
			res.PrePitched = true
			return
		}
		p.cache.StartAsync(slot, ratio, p.sourceFor(slot))
	}
	if pcm := p.bank.Sample(slot).PCM; len(pcm) > 0 {
		res.PCM = pcm
		return
	}
	path := p.bank.Sample(slot).FilePath
	if path == "" {
		return
	}
	frames := p.headFrames
	if budget := (p.maxBytes - p.headBytes) / bytesPerPreloadFrame; budget < frames {
		if budget < preloadFloorFrames {
			return
		}
		frames = budget
	}
	head, err := p.registry.DecodeHead(path, frames)
	if err != nil {
		p.alert(Alert{Name: "Preload", Priority: Warning,
			Message: fmt.Sprintf("decoding %v: %v", filepath.Base(path), err)})
		return
	}
	res.PCM = head
	res.headBytes = int64(len(head)) * bytesPerPreloadFrame
	p.headBytes += res.headBytes
}

// alert reports a failure to the model; the column falls back to resident
// audio or silence either way.
func (p *Preloader) alert(a Alert) {
	TrySend(p.broker.ToModel, MsgToModel{Data: &a})
}

// sourceFor returns the SourceFunc the pitch cache uses to load the
// unshifted audio of a slot.
func (p *Preloader) sourceFor(slot int) pitch.SourceFunc {
	if pcm := p.bank.Sample(slot).PCM; len(pcm) > 0 {
		return func() ([][2]float32, error) { return pcm, nil }
	}
	path := p.bank.Sample(slot).FilePath
	return func() ([][2]float32, error) {
		if path == "" {
			return nil, errors.New("sample has no audio")
		}
		return p.registry.DecodeAll(path)
	}
}

// newResource reuses a reclaimed Resource when one is available.
func (p *Preloader) newResource() *Resource {
	if n := len(p.free); n > 0 {
		res := p.free[n-1]
		p.free = p.free[:n-1]
		return res
	}
	return &Resource{}
}

// reclaim returns displaced resources to the freelist. A resource the render
// path is still consuming is left to the garbage collector instead; its
// struct must not be reused while the audio thread reads it. Readiness is
// revoked before the consuming check, the counterpart of TryConsume.
func (p *Preloader) reclaim(resources ...*Resource) {
	for _, res := range resources {
		if res == nil {
			continue
		}
		p.headBytes -= res.headBytes
		res.ready.Store(false)
		if res.Consuming() {
			continue
		}
		res.TargetStep = 0
		res.Slot = 0
		res.Volume = 0
		res.Pitch = 0
		res.PCM = nil
		res.PrePitched = false
		res.headBytes = 0
		p.free = append(p.free, res)
	}
}

// resolveCellSettings applies the inherit rules and clamping shared by the
// preloader and the player.
func resolveCellSettings(bank *fortuned.SampleBank, cell fortuned.Cell) (volume, pitch float32) {
	settings := bank.Settings(cell.SampleSlot)
	volume = cell.Volume
	if volume == fortuned.Inherit {
		volume = settings.Volume
	}
	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}
	pitch = cell.Pitch
	if pitch == fortuned.Inherit {
		pitch = settings.Pitch
	}
	if pitch < fortuned.MinPitch {
		pitch = fortuned.MinPitch
	} else if pitch > fortuned.MaxPitch {
		pitch = fortuned.MaxPitch
	}
	return volume, pitch
}
