package fortuned

// Fixed audio format of the engine. Samples are decoded/converted to this
// format when they are loaded; nothing on the playback path ever deals with
// another rate or channel count.
const (
	SampleRate = 48000
	Channels   = 2
)

type (
	// AudioBuffer is a buffer of stereo audio samples of variable length. Each
	// sample is [2]float32, first the left then the right channel.
	AudioBuffer [][2]float32

	// AudioProcessor renders audio into the buffer given to it, filling it
	// completely. It is implemented by sequencer.Player and called by the
	// audio backend from its output callback.
	AudioProcessor interface {
		Process(buffer AudioBuffer)
	}

	// AudioOutput is an opened audio device, pulling samples from an
	// AudioProcessor until closed.
	AudioOutput interface {
		Close() error
	}

	// AudioContext represents the audio drivers/devices used for playing
	// audio.
	AudioContext interface {
		Play(processor AudioProcessor) (AudioOutput, error)
		Close() error
	}
)

// Fill sets every sample in the buffer to the given value.
func (buf AudioBuffer) Fill(value [2]float32) {
	for i := range buf {
		buf[i] = value
	}
}
