package fortuned

type (
	// SampleSettings are the per-slot default volume and pitch, used whenever
	// a cell inherits its settings.
	SampleSettings struct {
		Volume float32 `yaml:"volume"`
		Pitch  float32 `yaml:"pitch"`
	}

	// Sample is one slot of the sample bank. PCM holds the decoded audio in
	// the engine format; once loaded it is treated as immutable, so copies of
	// the bank may share it.
	Sample struct {
		Loaded      bool           `yaml:"loaded"`
		ID          string         `yaml:"id,omitempty"`
		FilePath    string         `yaml:"path,omitempty"`
		DisplayName string         `yaml:"name,omitempty"`
		Settings    SampleSettings `yaml:"settings"`

		PCM AudioBuffer `yaml:"-"`
	}

	// SampleBank is the fixed array of sample slots (A-Z). Like Table, it is
	// pure data with bounds-validated accessors; decoding the audio for a
	// slot is the codec layer's job.
	SampleBank struct {
		Samples [MaxSampleSlots]Sample `yaml:",flow"`
	}
)

// MaxSampleSlots is the number of sample slots in the bank, one per letter
// A-Z.
const MaxSampleSlots = 26

// DefaultSampleSettings is what every slot starts with: unity volume, unity
// pitch.
func DefaultSampleSettings() SampleSettings {
	return SampleSettings{Volume: 1, Pitch: 1}
}

// NewSampleBank returns a bank of empty slots with default settings.
func NewSampleBank() SampleBank {
	var b SampleBank
	for i := range b.Samples {
		b.Samples[i].Settings = DefaultSampleSettings()
	}
	return b
}

// Copy returns a deep copy of the bank. The PCM buffers are shared between
// the copies; they are immutable once a slot is loaded.
func (b *SampleBank) Copy() SampleBank {
	return SampleBank{Samples: b.Samples}
}

// Load marks the slot as loaded from the given path. It records metadata
// only; the caller is responsible for decoding the file into PCM via SetPCM.
// Returns false on an invalid slot or empty path.
func (b *SampleBank) Load(slot int, path string) bool {
	return b.LoadWithID(slot, path, "")
}

// LoadWithID is Load with a stable external identifier for the sample.
func (b *SampleBank) LoadWithID(slot int, path, id string) bool {
	if slot < 0 || slot >= MaxSampleSlots || path == "" {
		return false
	}
	b.Samples[slot] = Sample{
		Loaded:   true,
		ID:       id,
		FilePath: path,
		Settings: DefaultSampleSettings(),
	}
	return true
}

// Unload resets the slot to empty.
func (b *SampleBank) Unload(slot int) {
	if slot < 0 || slot >= MaxSampleSlots {
		return
	}
	b.Samples[slot] = Sample{Settings: DefaultSampleSettings()}
}

// IsLoaded reports whether the slot has a sample.
func (b *SampleBank) IsLoaded(slot int) bool {
	return slot >= 0 && slot < MaxSampleSlots && b.Samples[slot].Loaded
}

// Sample returns the slot contents, or a zero Sample for invalid slots.
func (b *SampleBank) Sample(slot int) Sample {
	if slot < 0 || slot >= MaxSampleSlots {
		return Sample{Settings: DefaultSampleSettings()}
	}
	return b.Samples[slot]
}

// Settings returns the default volume/pitch for the slot.
func (b *SampleBank) Settings(slot int) SampleSettings {
	return b.Sample(slot).Settings
}

// SetPCM attaches decoded audio to a loaded slot. The buffer must not be
// mutated afterwards.
func (b *SampleBank) SetPCM(slot int, pcm AudioBuffer) {
	if slot < 0 || slot >= MaxSampleSlots || !b.Samples[slot].Loaded {
		return
	}
	b.Samples[slot].PCM = pcm
}

// SetVolume sets the slot default volume; out-of-range values no-op.
func (b *SampleBank) SetVolume(slot int, volume float32) {
	if slot < 0 || slot >= MaxSampleSlots || volume < 0 || volume > 1 {
		return
	}
	b.Samples[slot].Settings.Volume = volume
}

// SetPitch sets the slot default pitch ratio; out-of-range values no-op.
func (b *SampleBank) SetPitch(slot int, pitch float32) {
	if slot < 0 || slot >= MaxSampleSlots || pitch < MinPitch || pitch > MaxPitch {
		return
	}
	b.Samples[slot].Settings.Pitch = pitch
}

// SetSettings sets both defaults at once.
func (b *SampleBank) SetSettings(slot int, volume, pitch float32) {
	b.SetVolume(slot, volume)
	b.SetPitch(slot, pitch)
}

// SetDisplayName sets the editor-facing name of the slot.
func (b *SampleBank) SetDisplayName(slot int, name string) {
	if slot < 0 || slot >= MaxSampleSlots {
		return
	}
	b.Samples[slot].DisplayName = name
}

// LoadedCount returns the number of loaded slots.
func (b *SampleBank) LoadedCount() int {
	n := 0
	for i := range b.Samples {
		if b.Samples[i].Loaded {
			n++
		}
	}
	return n
}
