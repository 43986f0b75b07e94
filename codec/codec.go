// Package codec decodes sample files into the fixed engine format: stereo
// float32 frames. Only the container/sample formats are handled here; rate
// conversion is out of scope and files are assumed to be at the engine rate.
package codec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

type (
	// Decoder reads frames of stereo float32 audio from an opened sample
	// file. Decoders are not safe for concurrent use.
	Decoder interface {
		// ReadFrames fills dst with up to len(dst) frames and returns the
		// number of frames read. io.EOF is returned (possibly with n > 0)
		// when the stream ends.
		ReadFrames(dst [][2]float32) (int, error)
		// Seek moves the read position to the given frame. Only rewinding
		// and forward seeks need to be efficient.
		Seek(frame int64) error
		// Length returns the total number of frames, or -1 if unknown.
		Length() int64
		Close() error
	}

	// Registry opens sample files, dispatching on the file extension.
	Registry struct{}
)

// ErrUnsupportedFormat is returned for file types no decoder handles.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Open opens the file with the decoder matching its extension.
func (Registry) Open(path string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return newWavDecoder(path)
	case ".mp3":
		return newMP3Decoder(path)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

// DecodeAll decodes the whole file into memory.
func (r Registry) DecodeAll(path string) ([][2]float32, error) {
	return r.DecodeHead(path, -1)
}

// DecodeHead decodes at most maxFrames frames from the start of the file into
// memory; maxFrames < 0 decodes everything.
func (r Registry) DecodeHead(path string, maxFrames int64) ([][2]float32, error) {
	dec, err := r.Open(path)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return readAll(dec, maxFrames)
}

func readAll(dec Decoder, maxFrames int64) ([][2]float32, error) {
	var out [][2]float32
	if l := dec.Length(); l > 0 {
		if maxFrames >= 0 && l > maxFrames {
			l = maxFrames
		}
		out = make([][2]float32, 0, l)
	}
	buf := make([][2]float32, 4096)
	for maxFrames < 0 || int64(len(out)) < maxFrames {
		want := int64(len(buf))
		if maxFrames >= 0 && maxFrames-int64(len(out)) < want {
			want = maxFrames - int64(len(out))
		}
		n, err := dec.ReadFrames(buf[:want])
		out = append(out, buf[:n]...)
		if err != nil {
			if isEOF(err) {
				break
			}
			return nil, err
		}
		if n == 0 {
			break
		}
	}
	return out, nil
}
