// Package oto implements the audio output of the engine on top of the oto
// library.
package oto

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ebitengine/oto/v3"

	"github.com/luddite478/fortuned"
)

type (
	// Context wraps an oto context for playing audio in the engine format.
	Context struct {
		context *oto.Context
	}

	// Output is one opened playback stream. The oto player pulls samples
	// through Read on its own goroutine, so the processor's Process runs
	// there.
	Output struct {
		player    *oto.Player
		processor fortuned.AudioProcessor
		frameBuf  fortuned.AudioBuffer
	}
)

const bytesPerFrame = 4 * fortuned.Channels // float32 LE

// NewContext opens the audio device at the engine rate and format, waiting
// until it is ready.
func NewContext() (*Context, error) {
	context, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   fortuned.SampleRate,
		ChannelCount: fortuned.Channels,
		Format:       oto.FormatFloat32LE,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Context{context: context}, nil
}

// Play starts playing audio from the processor, until the returned output is
// closed.
func (c *Context) Play(processor fortuned.AudioProcessor) (fortuned.AudioOutput, error) {
	output := &Output{processor: processor}
	output.player = c.context.NewPlayer(output)
	output.player.Play()
	return output, nil
}

// Close does nothing; oto contexts cannot be closed once created, so the
// method only satisfies the interface.
func (c *Context) Close() error { return nil }

// Read renders audio from the processor into the byte buffer oto hands us.
func (o *Output) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	if cap(o.frameBuf) < frames {
		o.frameBuf = make(fortuned.AudioBuffer, frames)
	}
	buf := o.frameBuf[:frames]
	buf.Fill([2]float32{})
	o.processor.Process(buf)
	for i, frame := range buf {
		binary.LittleEndian.PutUint32(p[i*8:], math.Float32bits(frame[0]))
		binary.LittleEndian.PutUint32(p[i*8+4:], math.Float32bits(frame[1]))
	}
	return frames * bytesPerFrame, nil
}

func (o *Output) Close() error {
	if err := o.player.Close(); err != nil {
		return fmt.Errorf("cannot close oto player: %w", err)
	}
	return nil
}
