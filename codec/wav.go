package codec

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavDecoder adapts go-audio/wav to the Decoder interface. Mono files are
// duplicated to both channels; higher channel counts are folded down to the
// first two.
type wavDecoder struct {
	file    *os.File
	dec     *wav.Decoder
	buf     *audio.IntBuffer
	scale   float32
	chans   int
	pos     int64
	length  int64
	pending []int // undecoded ints left over from the previous chunk
}

const wavChunkFrames = 4096

func newWavDecoder(path string) (*wavDecoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("%s is not a valid wav file", path)
	}
	chans := int(d.NumChans)
	if chans < 1 {
		f.Close()
		return nil, fmt.Errorf("%s has no channels", path)
	}
	// PCMLen is only known once the decoder has found the data chunk
	if err := d.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s has no PCM data: %w", path, err)
	}
	bits := int(d.BitDepth)
	if bits == 0 {
		bits = 16
	}
	length := int64(-1)
	if d.PCMLen() > 0 {
		length = d.PCMLen() / int64(chans*(bits/8))
	}
	w := &wavDecoder{
		file:   f,
		dec:    d,
		chans:  chans,
		scale:  1 / float32(int64(1)<<(bits-1)),
		length: length,
		buf: &audio.IntBuffer{
			Format: &audio.Format{NumChannels: chans, SampleRate: int(d.SampleRate)},
			Data:   make([]int, wavChunkFrames*chans),
		},
	}
	return w, nil
}

func (w *wavDecoder) ReadFrames(dst [][2]float32) (int, error) {
	total := 0
	for total < len(dst) {
		if len(w.pending) >= w.chans {
			n := w.takePending(dst[total:])
			total += n
			continue
		}
		read, err := w.dec.PCMBuffer(w.buf)
		if read > 0 {
			w.pending = append(w.pending, w.buf.Data[:read]...)
			continue
		}
		if err != nil && !isEOF(err) {
			return total, fmt.Errorf("wav decode: %w", err)
		}
		return total, io.EOF
	}
	return total, nil
}

func (w *wavDecoder) takePending(dst [][2]float32) int {
	frames := len(w.pending) / w.chans
	if frames > len(dst) {
		frames = len(dst)
	}
	for i := 0; i < frames; i++ {
		base := i * w.chans
		l := float32(w.pending[base]) * w.scale
		r := l
		if w.chans > 1 {
			r = float32(w.pending[base+1]) * w.scale
		}
		dst[i] = [2]float32{l, r}
	}
	w.pending = w.pending[frames*w.chans:]
	w.pos += int64(frames)
	return frames
}

func (w *wavDecoder) Seek(frame int64) error {
	if frame < 0 {
		return errors.New("cannot seek before start")
	}
	if frame < w.pos {
		// wav decoding is forward-only, so rewinding reopens the stream
		if _, err := w.file.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("wav seek: %w", err)
		}
		w.dec = wav.NewDecoder(w.file)
		if !w.dec.IsValidFile() {
			return errors.New("wav seek: file no longer valid")
		}
		w.pos = 0
		w.pending = w.pending[:0]
	}
	skip := make([][2]float32, 512)
	for w.pos < frame {
		want := frame - w.pos
		if want > int64(len(skip)) {
			want = int64(len(skip))
		}
		if _, err := w.ReadFrames(skip[:want]); err != nil {
			if isEOF(err) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (w *wavDecoder) Length() int64 { return w.length }

func (w *wavDecoder) Close() error { return w.file.Close() }

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
