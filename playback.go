package fortuned

type (
	// PlaybackMode selects how the transport advances through the table.
	PlaybackMode int

	// PlaybackState is the transport state of the engine. It is owned and
	// mutated by the player; everyone else sees it through published
	// snapshots.
	PlaybackState struct {
		Playing     bool         `yaml:"-"`
		Step        int          `yaml:"-"`
		BPM         int          `yaml:"bpm"`
		RegionStart int          `yaml:"regionStart"`
		RegionEnd   int          `yaml:"regionEnd"` // exclusive
		Mode        PlaybackMode `yaml:"mode"`
		Section     int          `yaml:"-"`
		SectionLoop int          `yaml:"-"`

		// SectionLoops is how many times each section repeats in song mode.
		SectionLoops [MaxSections]int `yaml:"sectionLoops,flow"`
	}
)

const (
	// LoopMode loops the playback region regardless of sections.
	LoopMode PlaybackMode = iota
	// SongMode advances through the sections in order, honoring each
	// section's loop count.
	SongMode
)

const (
	MinBPM     = 1
	MaxBPM     = 300
	DefaultBPM = 120

	DefaultSectionLoops = 4
	MinSectionLoops     = 1
	MaxSectionLoops     = 1024

	// StepsPerBeat fixes the step grid to sixteenth notes.
	StepsPerBeat = 4
)

// NewPlaybackState returns a stopped transport with default BPM and section
// loop counts, region spanning the given table.
func NewPlaybackState(totalSteps int) PlaybackState {
	s := PlaybackState{
		BPM:       DefaultBPM,
		RegionEnd: totalSteps,
		Mode:      LoopMode,
	}
	for i := range s.SectionLoops {
		s.SectionLoops[i] = DefaultSectionLoops
	}
	return s
}

// Copy returns a copy of the state. PlaybackState contains no reference
// types, so this is a plain value copy; the method exists for symmetry with
// Table.Copy and SampleBank.Copy in snapshots.
func (s *PlaybackState) Copy() PlaybackState {
	return *s
}

// ClampBPM clamps the given BPM into the legal range.
func ClampBPM(bpm int) int {
	if bpm < MinBPM {
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}

// ClampSectionLoops clamps a section loop count into the legal range.
func ClampSectionLoops(loops int) int {
	if loops < MinSectionLoops {
		return MinSectionLoops
	}
	if loops > MaxSectionLoops {
		return MaxSectionLoops
	}
	return loops
}

// SamplesPerStep returns the length of one step in frames at the given BPM.
func SamplesPerStep(bpm int) int {
	return SampleRate * 60 / (ClampBPM(bpm) * StepsPerBeat)
}
