package fortuned

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// Wav converts the buffer into a valid WAV file. pcm16 = true converts the
// samples to 16-bit signed integers; pcm16 = false keeps them as 32-bit
// floats.
func (buf AudioBuffer) Wav(pcm16 bool) ([]byte, error) {
	b := new(bytes.Buffer)
	wavHeader(len(buf)*2, pcm16, b)
	err := buf.rawToBuffer(pcm16, b)
	if err != nil {
		return nil, fmt.Errorf("Wav failed: %v", err)
	}
	return b.Bytes(), nil
}

// Raw converts the buffer into raw interleaved audio data, without any
// header.
func (buf AudioBuffer) Raw(pcm16 bool) ([]byte, error) {
	b := new(bytes.Buffer)
	err := buf.rawToBuffer(pcm16, b)
	if err != nil {
		return nil, fmt.Errorf("Raw failed: %v", err)
	}
	return b.Bytes(), nil
}

func (buf AudioBuffer) rawToBuffer(pcm16 bool, b *bytes.Buffer) error {
	var err error
	if pcm16 {
		int16data := make([]int16, len(buf)*2)
		for i, v := range buf {
			int16data[i*2] = int16(clamp(int(v[0]*math.MaxInt16), math.MinInt16, math.MaxInt16))
			int16data[i*2+1] = int16(clamp(int(v[1]*math.MaxInt16), math.MinInt16, math.MaxInt16))
		}
		err = binary.Write(b, binary.LittleEndian, int16data)
	} else {
		err = binary.Write(b, binary.LittleEndian, buf)
	}
	if err != nil {
		return fmt.Errorf("could not binary write data to binary buffer: %v", err)
	}
	return nil
}

// wavHeader writes a wave header for either float32 or int16 .wav file into
// the bytes.buffer. It needs to know the length of the buffer in single
// samples (L + R), so for stereo sound the length is framecount * 2. pcm16 =
// true gives a header for int16 audio and pcm16 = false for float32 audio.
// Assumes the engine sample rate.
func wavHeader(bufferLength int, pcm16 bool, buf *bytes.Buffer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	numChannels := Channels
	sampleRate := SampleRate
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = 1 // PCM
		factChunk = false
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	buf.Write([]byte("RIFF"))
	binary.Write(buf, binary.LittleEndian, uint32(chunkSize))
	buf.Write([]byte("WAVE"))
	buf.Write([]byte("fmt "))
	binary.Write(buf, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(buf, binary.LittleEndian, uint16(waveFormat))
	binary.Write(buf, binary.LittleEndian, uint16(numChannels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(buf, binary.LittleEndian, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(buf, binary.LittleEndian, uint16(8*bytesPerSample))                      // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(buf, binary.LittleEndian, uint16(0)) // size of extension
	}
	if factChunk {
		buf.Write([]byte("fact"))
		binary.Write(buf, binary.LittleEndian, uint32(4))              // fact chunk size
		binary.Write(buf, binary.LittleEndian, uint32(bufferLength/2)) // sample length, in frames
	}
	buf.Write([]byte("data"))
	binary.Write(buf, binary.LittleEndian, uint32(bytesPerSample*bufferLength))
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
