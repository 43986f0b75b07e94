package sequencer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/luddite478/fortuned"
	"github.com/luddite478/fortuned/pitch"
)

func newTestPreloader() (*Preloader, *ArmedResources, *pitch.Cache) {
	broker := NewBroker()
	armed := &ArmedResources{}
	cache := pitch.NewCache(0, nil)
	return NewPreloader(broker, armed, cache), armed, cache
}

func writeTestWav(t *testing.T, frames int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sample.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("could not create %v: %v", path, err)
	}
	enc := wav.NewEncoder(f, fortuned.SampleRate, 16, fortuned.Channels, 1)
	data := make([]int, frames*2)
	for i := range data {
		data[i] = 1000
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: fortuned.Channels, SampleRate: fortuned.SampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("could not write wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("could not close encoder: %v", err)
	}
	f.Close()
	return path
}

func TestPrepareArmsResources(t *testing.T) {
	p, armed, _ := newTestPreloader()
	loadTestSample(&p.bank, 4, 1000, 0.5)
	p.table.SetCell(3, 1, 4, 0.8, 1)

	p.prepare(3)
	res := armed.Peek(1)
	if res == nil {
		t.Fatalf("no resource armed")
	}
	if !res.Ready() {
		t.Errorf("armed resource not ready")
	}
	if res.TargetStep != 3 || res.Slot != 4 || res.Volume != 0.8 || res.Pitch != 1 {
		t.Errorf("resource fields: %+v", res)
	}
	if res.PrePitched {
		t.Errorf("unity pitch resource marked pre-pitched")
	}
	if &res.PCM[0] != &p.bank.Sample(4).PCM[0] {
		t.Errorf("resource does not share the resident audio")
	}
	if armed.Peek(0) != nil {
		t.Errorf("resource armed for an empty column")
	}
}

func TestPrepareUsesCachedShift(t *testing.T) {
	p, armed, cache := newTestPreloader()
	loadTestSample(&p.bank, 4, 1000, 0.5)
	p.table.SetCell(0, 0, 4, 1, 2)
	pcm := p.bank.Sample(4).PCM
	if err := cache.PreprocessSync(4, 2, func() ([][2]float32, error) { return pcm, nil }); err != nil {
		t.Fatalf("PreprocessSync failed: %v", err)
	}

	p.prepare(0)
	res := armed.Peek(0)
	if res == nil {
		t.Fatalf("no resource armed")
	}
	if !res.PrePitched {
		t.Errorf("cached shift not used")
	}
	if len(res.PCM) != 500 {
		t.Errorf("resource has %d frames, expected the 500 shifted ones", len(res.PCM))
	}
}

func TestPrepareKicksOffBackgroundShift(t *testing.T) {
	p, armed, cache := newTestPreloader()
	loadTestSample(&p.bank, 4, 1000, 0.5)
	p.table.SetCell(0, 0, 4, 1, 2)

	p.prepare(0)
	res := armed.Peek(0)
	if res == nil {
		t.Fatalf("no resource armed")
	}
	if res.PrePitched {
		t.Errorf("first prepare cannot already be pre-pitched")
	}
	if res.Pitch != 2 {
		t.Errorf("resource pitch %v, expected 2", res.Pitch)
	}
	// join the background job, then the next prepare hits the cache
	pcm := p.bank.Sample(4).PCM
	if err := cache.PreprocessSync(4, 2, func() ([][2]float32, error) { return pcm, nil }); err != nil {
		t.Fatalf("background shift failed: %v", err)
	}
	p.prepare(0)
	if res := armed.Peek(0); !res.PrePitched {
		t.Errorf("second prepare did not use the cached shift")
	}
}

func TestDisplacedResourceReclaimed(t *testing.T) {
	p, armed, _ := newTestPreloader()
	loadTestSample(&p.bank, 4, 1000, 0.5)
	p.table.SetCell(0, 0, 4, 1, 1)
	p.table.SetCell(1, 0, 4, 1, 1)

	p.prepare(0)
	first := armed.Peek(0)
	p.prepare(1)
	if armed.Peek(0) == first {
		t.Fatalf("second prepare did not displace the first resource")
	}
	if len(p.free) != 1 || p.free[0] != first {
		t.Errorf("displaced resource not reclaimed")
	}
	if first.PCM != nil || first.Ready() {
		t.Errorf("reclaimed resource not reset")
	}
}

func TestConsumedResourceNotReclaimed(t *testing.T) {
	p, armed, _ := newTestPreloader()
	loadTestSample(&p.bank, 4, 1000, 0.5)
	p.table.SetCell(0, 0, 4, 1, 1)
	p.table.SetCell(1, 0, 4, 1, 1)

	p.prepare(0)
	first := armed.Peek(0)
	first.BeginConsume()
	p.prepare(1)
	if len(p.free) != 0 {
		t.Errorf("resource in use was reclaimed")
	}
	if first.Slot != 4 || first.PCM == nil {
		t.Errorf("resource in use was reset: %+v", first)
	}
	if first.Ready() {
		t.Errorf("displaced resource still marked ready")
	}
}

func TestTryConsumeBacksOffWhenRevoked(t *testing.T) {
	res := &Resource{Slot: 4, PCM: make(fortuned.AudioBuffer, 10)}
	res.SetReady()
	if !res.TryConsume() {
		t.Fatalf("ready resource refused")
	}
	res.EndConsume()
	res.ready.Store(false) // reclaim revokes before checking the consumer
	if res.TryConsume() {
		t.Fatalf("revoked resource accepted")
	}
	if res.Consuming() {
		t.Errorf("failed claim left the consuming flag set")
	}
}

func TestCancelClearsArmed(t *testing.T) {
	p, armed, _ := newTestPreloader()
	loadTestSample(&p.bank, 4, 1000, 0.5)
	p.table.SetCell(0, 0, 4, 1, 1)
	p.prepare(0)
	p.handleMsg(MsgToPreloader{Cancel: true})
	if armed.Peek(0) != nil {
		t.Errorf("armed resource survived a cancel")
	}
}

func TestPrepareDecodesHeadFromFile(t *testing.T) {
	p, armed, _ := newTestPreloader()
	path := writeTestWav(t, 2000)
	p.bank.Load(4, path) // no resident PCM, must decode
	p.table.SetCell(0, 0, 4, 1, 1)

	p.prepare(0)
	res := armed.Peek(0)
	if res == nil {
		t.Fatalf("no resource armed")
	}
	if len(res.PCM) != 2000 {
		t.Errorf("decoded head has %d frames, expected 2000", len(res.PCM))
	}
}

func TestDecodedHeadsObserveMemoryCeiling(t *testing.T) {
	p, armed, _ := newTestPreloader()
	path := writeTestWav(t, 30000)
	p.bank.Load(4, path)
	p.bank.Load(5, path)
	p.table.SetCell(0, 0, 4, 1, 1)
	p.table.SetCell(0, 1, 5, 1, 1)
	p.maxBytes = 40000 * bytesPerPreloadFrame

	p.prepare(0)
	first := armed.Peek(0)
	if first == nil || len(first.PCM) != 30000 {
		t.Fatalf("first head: %+v", first)
	}
	if p.headBytes != 30000*bytesPerPreloadFrame {
		t.Errorf("charged %d bytes, expected %d", p.headBytes, 30000*bytesPerPreloadFrame)
	}
	// 10000 frames of budget left, under the floor, so no second head
	if second := armed.Peek(1); second != nil {
		t.Errorf("second head armed over the ceiling: %d frames", len(second.PCM))
	}

	p.reclaim(armed.Clear()...)
	if p.headBytes != 0 {
		t.Errorf("%d bytes still charged after reclaiming everything", p.headBytes)
	}
}

func TestPrepareDecodeFailureAlertsModel(t *testing.T) {
	p, armed, _ := newTestPreloader()
	p.bank.Load(4, filepath.Join(t.TempDir(), "missing.wav"))
	p.table.SetCell(0, 0, 4, 1, 1)

	p.prepare(0)
	if res := armed.Peek(0); res != nil {
		t.Errorf("resource armed despite the failed decode: %+v", res)
	}
	select {
	case msg := <-p.broker.ToModel:
		a, ok := msg.Data.(*Alert)
		if !ok {
			t.Fatalf("message to model carries %T", msg.Data)
		}
		if a.Name != "Preload" || a.Priority != Warning {
			t.Errorf("alert: %+v", a)
		}
	default:
		t.Fatalf("failed decode reported nothing to the model")
	}
}

func TestDataMessagesUpdateCopies(t *testing.T) {
	p, armed, _ := newTestPreloader()
	table := fortuned.NewTable()
	table.SetCell(0, 0, 4, 1, 1)
	bank := fortuned.NewSampleBank()
	bank.Load(4, "x.wav")
	pcm := make(fortuned.AudioBuffer, 100)
	bank.SetPCM(4, pcm)

	p.handleMsg(MsgToPreloader{Data: &table})
	p.handleMsg(MsgToPreloader{Data: &bank})
	p.handleMsg(MsgToPreloader{HasPrepare: true, PrepareStep: 0})
	if armed.Peek(0) == nil {
		t.Errorf("prepare did not see the updated table and bank")
	}
}
