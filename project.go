package fortuned

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Project is everything the engine persists: the table, the sample bank
// metadata and the playback preferences. Projects are saved as yaml; the
// sample audio itself is re-decoded from the slot file paths on load.
type Project struct {
	BPM          int              `yaml:"bpm"`
	Mode         PlaybackMode     `yaml:"mode"`
	MasterVolume float32          `yaml:"masterVolume"`
	SectionLoops [MaxSections]int `yaml:"sectionLoops,flow"`
	Table        Table            `yaml:"table"`
	Samples      SampleBank       `yaml:"samples"`
}

// NewProject returns an empty default project.
func NewProject() Project {
	p := Project{
		BPM:          DefaultBPM,
		MasterVolume: 1,
		Table:        NewTable(),
		Samples:      NewSampleBank(),
	}
	for i := range p.SectionLoops {
		p.SectionLoops[i] = DefaultSectionLoops
	}
	return p
}

// Validate checks the project invariants: BPM range, section partitioning and
// loop counts.
func (p *Project) Validate() error {
	if p.BPM < MinBPM || p.BPM > MaxBPM {
		return fmt.Errorf("bpm %d out of range [%d, %d]", p.BPM, MinBPM, MaxBPM)
	}
	if len(p.Table.Sections) == 0 {
		return errors.New("project has no sections")
	}
	start := 0
	for i, s := range p.Table.Sections {
		if s.StartStep != start {
			return fmt.Errorf("section %d starts at %d, expected %d", i, s.StartStep, start)
		}
		if s.NumSteps < 1 {
			return fmt.Errorf("section %d has %d steps", i, s.NumSteps)
		}
		start += s.NumSteps
	}
	if start != p.Table.TotalSteps() {
		return fmt.Errorf("sections cover %d steps, table has %d", start, p.Table.TotalSteps())
	}
	return nil
}

// UnmarshalProject parses a project from yaml bytes and validates it.
func UnmarshalProject(data []byte) (Project, error) {
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Project{}, fmt.Errorf("could not unmarshal project: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Project{}, fmt.Errorf("invalid project: %w", err)
	}
	return p, nil
}

// Marshal serializes the project as yaml.
func (p *Project) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("could not marshal project: %w", err)
	}
	return out, nil
}
