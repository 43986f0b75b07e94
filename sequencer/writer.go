package sequencer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/luddite478/fortuned"
)

// Writer is the recording goroutine: it owns the output file and its wav
// encoder, so the audio thread never touches the disk. Chunks arrive as
// pooled buffers from the player's recording tap and are returned to the
// pool after encoding.
type Writer struct {
	broker *Broker

	file *os.File
	enc  *wav.Encoder
	ints []int
}

func NewWriter(broker *Broker) *Writer {
	return &Writer{broker: broker}
}

// Run is the writer goroutine. It exits when CloseWriter is signaled,
// finalizing any open file, and closes FinishedWriter on the way out.
func (w *Writer) Run() {
	defer close(w.broker.FinishedWriter)
	for {
		select {
		case <-w.broker.CloseWriter:
			w.drain()
			w.finish()
			return
		case msg := <-w.broker.ToWriter:
			w.handleMsg(msg)
		}
	}
}

func (w *Writer) handleMsg(msg MsgToWriter) {
	if msg.OpenPath != "" {
		w.open(msg.OpenPath)
	}
	if msg.Chunk != nil {
		w.write(*msg.Chunk)
		w.broker.PutAudioBuffer(msg.Chunk)
	}
	if msg.Stop {
		w.finish()
	}
}

// drain handles everything already queued, so chunks sent before the close
// request still land in the file.
func (w *Writer) drain() {
	for {
		select {
		case msg := <-w.broker.ToWriter:
			w.handleMsg(msg)
		default:
			return
		}
	}
}

func (w *Writer) open(path string) {
	w.finish()
	f, err := os.Create(path)
	if err != nil {
		w.alert(Alert{Name: "Recording", Priority: Error,
			Message: fmt.Sprintf("creating %v: %v", filepath.Base(path), err)})
		return
	}
	w.file = f
	w.enc = wav.NewEncoder(f, fortuned.SampleRate, 16, fortuned.Channels, 1)
}

func (w *Writer) write(chunk fortuned.AudioBuffer) {
	if w.enc == nil {
		return
	}
	n := len(chunk) * 2
	if cap(w.ints) < n {
		w.ints = make([]int, n)
	}
	ints := w.ints[:n]
	for i, frame := range chunk {
		ints[i*2] = clampInt16(frame[0])
		ints[i*2+1] = clampInt16(frame[1])
	}
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: fortuned.Channels, SampleRate: fortuned.SampleRate},
		Data:           ints,
		SourceBitDepth: 16,
	}
	if err := w.enc.Write(buf); err != nil {
		w.alert(Alert{Name: "Recording", Priority: Error,
			Message: fmt.Sprintf("encoding: %v", err)})
		w.finish()
	}
}

func (w *Writer) finish() {
	if w.enc != nil {
		if err := w.enc.Close(); err != nil {
			w.alert(Alert{Name: "Recording", Priority: Error,
				Message: fmt.Sprintf("finalizing: %v", err)})
		}
		w.enc = nil
	}
	if w.file != nil {
		if err := w.file.Close(); err != nil {
			w.alert(Alert{Name: "Recording", Priority: Error,
				Message: fmt.Sprintf("closing: %v", err)})
		}
		w.file = nil
	}
}

func (w *Writer) alert(a Alert) {
	TrySend(w.broker.ToModel, MsgToModel{Data: &a})
}

func clampInt16(v float32) int {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	return int(v * 32767)
}
