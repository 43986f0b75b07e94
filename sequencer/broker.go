package sequencer

import (
	"sync"
	"time"

	"github.com/luddite478/fortuned"
)

type (
	// Broker is the centralized message hub of the engine. It is used to
	// communicate between the player (audio thread), the model (editor
	// thread), the preloader and the disk writer. Communication is
	// many-to-one, one channel per recipient. Additionally, the broker has a
	// sync.Pool for *fortuned.AudioBuffers, from which the player can borrow
	// buffers to pass audio around without allocating on every chunk.
	//
	// For closing goroutines, the broker has two channels per goroutine:
	// CloseXXX and FinishedXXX. The CloseXXX channel has a capacity of 1, so
	// one can always send struct{}{} to it without blocking; if it is
	// already full, someone else has requested the closure and dropping the
	// message is fine. FinishedXXX is closed (never sent to) by the goroutine
	// when it has cleaned up, so "<-FinishedXXX" waits for it, combined with
	// a timeout to avoid deadlocks:
	//    select {
	//      case <-FinishedXXX:
	//      case <-time.After(3 * time.Second):
	//    }
	Broker struct {
		ToPlayer    chan any
		ToModel     chan MsgToModel
		ToPreloader chan MsgToPreloader
		ToWriter    chan MsgToWriter

		ClosePreloader chan struct{}
		CloseWriter    chan struct{}
		CloseModel     chan struct{}

		FinishedPreloader chan struct{}
		FinishedWriter    chan struct{}
		FinishedModel     chan struct{}

		bufferPool sync.Pool
	}

	// MsgToModel carries the player's frequently changing transport state to
	// the model unboxed, to avoid allocations on the audio thread. Anything
	// infrequent travels boxed in Data; pointer types cast to any do not
	// allocate.
	MsgToModel struct {
		HasTransport bool
		Playing      bool
		Step         int
		Section      int
		SectionLoop  int
		PeakLevels   [fortuned.MaxCols]float32

		Data any
	}

	// MsgToPreloader asks the preloader to prepare resources for a step, to
	// abandon whatever it queued, or hands it fresh copies of the table or
	// bank (boxed in Data as *fortuned.Table / *fortuned.SampleBank).
	MsgToPreloader struct {
		HasPrepare  bool
		PrepareStep int
		Cancel      bool

		Data any
	}

	// MsgToWriter drives the recording writer: open a new file, append a
	// chunk (borrowed from the broker pool, returned by the writer), or
	// finish the file.
	MsgToWriter struct {
		OpenPath string
		Stop     bool
		Chunk    *fortuned.AudioBuffer
	}
)

// Messages sent to the player. All of them are applied on the audio thread
// between render chunks; table and bank copies are additionally held back to
// the next step boundary while playing.
type (
	StartPlayMsg      struct{ Step int }
	IsPlayingMsg      struct{ bool }
	BPMMsg            struct{ int }
	RegionMsg         struct{ Start, End int }
	ModeMsg           struct{ Mode fortuned.PlaybackMode }
	SectionLoopsMsg   struct{ Section, Loops int }
	SwitchSectionMsg  struct{ Section int }
	MasterVolumeMsg   struct{ float32 }
	SmoothingTimesMsg struct{ RiseMs, FallMs float32 }
	RecordMsg         struct{ bool }
	NoteOnMsg         struct{ Slot int }
	NoteOffMsg        struct{}
)

const brokerChanSize = 1024

func NewBroker() *Broker {
	return &Broker{
		ToPlayer:          make(chan any, brokerChanSize),
		ToModel:           make(chan MsgToModel, brokerChanSize),
		ToPreloader:       make(chan MsgToPreloader, 256),
		ToWriter:          make(chan MsgToWriter, 256),
		ClosePreloader:    make(chan struct{}, 1),
		CloseWriter:       make(chan struct{}, 1),
		CloseModel:        make(chan struct{}, 1),
		FinishedPreloader: make(chan struct{}),
		FinishedWriter:    make(chan struct{}),
		FinishedModel:     make(chan struct{}),
		bufferPool:        sync.Pool{New: func() any { return &fortuned.AudioBuffer{} }},
	}
}

// GetAudioBuffer returns an empty audio buffer from the pool. After use it
// should be returned with PutAudioBuffer.
func (b *Broker) GetAudioBuffer() *fortuned.AudioBuffer {
	return b.bufferPool.Get().(*fortuned.AudioBuffer)
}

// PutAudioBuffer returns a buffer to the pool, resetting its length but
// keeping its capacity.
func (b *Broker) PutAudioBuffer(buf *fortuned.AudioBuffer) {
	if len(*buf) > 0 {
		*buf = (*buf)[:0]
	}
	b.bufferPool.Put(buf)
}

// TrySend sends a value to a channel if it is not full. It is guaranteed to
// be non-blocking. Returns true if the value was sent.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive blocks until a value is received or the timeout elapses; ok
// is false on timeout or when the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}
