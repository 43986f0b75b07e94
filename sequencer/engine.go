// Package sequencer is the real-time engine: the player rendering the grid
// on the audio thread, the model serializing edits and undo, the preloader
// preparing sample audio ahead of the transport, and the writer recording
// the output to disk, all communicating through the broker.
package sequencer

import (
	"time"

	"github.com/luddite478/fortuned/pitch"
)

// Engine owns the parts of a running sequencer and their goroutines. The
// Player is handed to an audio backend; everything else runs on goroutines
// started by Start.
type Engine struct {
	Broker *Broker
	Model  *Model
	Player *Player
	Cache  *pitch.Cache

	armed     *ArmedResources
	preloader *Preloader
	writer    *Writer
	started   bool
}

const closeTimeout = 3 * time.Second

// NewEngine builds a stopped engine with an empty project.
func NewEngine() *Engine {
	broker := NewBroker()
	armed := &ArmedResources{}
	cache := pitch.NewCache(0, nil)
	return &Engine{
		Broker:    broker,
		Model:     NewModel(broker, cache),
		Player:    NewPlayer(broker, armed),
		Cache:     cache,
		armed:     armed,
		preloader: NewPreloader(broker, armed, cache),
		writer:    NewWriter(broker),
	}
}

// Start launches the model, preloader and writer goroutines. The player does
// not get one here; the audio backend drives it by calling Process.
func (e *Engine) Start() {
	if e.started {
		return
	}
	e.started = true
	go e.Model.Run()
	go e.preloader.Run()
	go e.writer.Run()
}

// Close asks every goroutine to finish and waits for them, bounded by a
// timeout per goroutine so a stuck one cannot hang the shutdown.
func (e *Engine) Close() {
	if !e.started {
		return
	}
	e.started = false
	TrySend(e.Broker.CloseModel, struct{}{})
	TrySend(e.Broker.ClosePreloader, struct{}{})
	TrySend(e.Broker.CloseWriter, struct{}{})
	TimeoutReceive(e.Broker.FinishedModel, closeTimeout)
	TimeoutReceive(e.Broker.FinishedPreloader, closeTimeout)
	TimeoutReceive(e.Broker.FinishedWriter, closeTimeout)
}
