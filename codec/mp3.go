package codec

import (
	"fmt"
	"io"
	"os"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// mp3Decoder adapts hajimehoshi/go-mp3, which always yields 16-bit stereo
// little-endian samples.
type mp3Decoder struct {
	file *os.File
	dec  *mp3.Decoder
	rem  []byte // partial frame bytes from the previous read
}

const mp3BytesPerFrame = 4 // 2 channels x int16

func newMP3Decoder(path string) (*mp3Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	d, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mp3 decode %s: %w", path, err)
	}
	return &mp3Decoder{file: f, dec: d}, nil
}

func (m *mp3Decoder) ReadFrames(dst [][2]float32) (int, error) {
	want := len(dst)*mp3BytesPerFrame - len(m.rem)
	buf := make([]byte, len(m.rem), len(m.rem)+want)
	copy(buf, m.rem)
	m.rem = m.rem[:0]
	for len(buf) < cap(buf) {
		n, err := m.dec.Read(buf[len(buf):cap(buf)])
		buf = buf[:len(buf)+n]
		if err != nil {
			if isEOF(err) {
				frames := m.decodeInto(dst, buf)
				return frames, io.EOF
			}
			return 0, fmt.Errorf("mp3 decode: %w", err)
		}
	}
	return m.decodeInto(dst, buf), nil
}

func (m *mp3Decoder) decodeInto(dst [][2]float32, buf []byte) int {
	frames := len(buf) / mp3BytesPerFrame
	if frames > len(dst) {
		frames = len(dst)
	}
	for i := 0; i < frames; i++ {
		base := i * mp3BytesPerFrame
		l := int16(uint16(buf[base]) | uint16(buf[base+1])<<8)
		r := int16(uint16(buf[base+2]) | uint16(buf[base+3])<<8)
		dst[i] = [2]float32{float32(l) / 32768, float32(r) / 32768}
	}
	m.rem = append(m.rem, buf[frames*mp3BytesPerFrame:]...)
	return frames
}

func (m *mp3Decoder) Seek(frame int64) error {
	if _, err := m.dec.Seek(frame*mp3BytesPerFrame, io.SeekStart); err != nil {
		return fmt.Errorf("mp3 seek: %w", err)
	}
	m.rem = m.rem[:0]
	return nil
}

func (m *mp3Decoder) Length() int64 {
	if l := m.dec.Length(); l > 0 {
		return l / mp3BytesPerFrame
	}
	return -1
}

func (m *mp3Decoder) Close() error { return m.file.Close() }
