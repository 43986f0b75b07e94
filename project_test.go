package fortuned_test

import (
	"testing"

	"github.com/luddite478/fortuned"
)

func TestProjectRoundTrip(t *testing.T) {
	p := fortuned.NewProject()
	p.BPM = 140
	p.Mode = fortuned.SongMode
	p.MasterVolume = 0.7
	p.SectionLoops[0] = 2
	p.Table.SetCell(3, 1, 4, 0.5, 2)
	p.Table.AppendSection(8, -1)
	p.SectionLoops[1] = 8
	p.Samples.LoadWithID(4, "kick.wav", "id-4")
	p.Samples.SetSettings(4, 0.9, 0.5)

	data, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	got, err := fortuned.UnmarshalProject(data)
	if err != nil {
		t.Fatalf("UnmarshalProject failed: %v", err)
	}
	if got.BPM != 140 || got.Mode != fortuned.SongMode || got.MasterVolume != 0.7 {
		t.Errorf("transport preferences did not round trip: %+v", got)
	}
	if got.SectionLoops[0] != 2 || got.SectionLoops[1] != 8 {
		t.Errorf("section loops did not round trip: %v", got.SectionLoops[:2])
	}
	if cell := got.Table.Cell(3, 1); cell.SampleSlot != 4 || cell.Volume != 0.5 || cell.Pitch != 2 {
		t.Errorf("cell did not round trip: %+v", cell)
	}
	if got.Table.NumSections() != 2 {
		t.Errorf("sections did not round trip: %d", got.Table.NumSections())
	}
	smp := got.Samples.Sample(4)
	if !smp.Loaded || smp.FilePath != "kick.wav" || smp.ID != "id-4" {
		t.Errorf("sample slot did not round trip: %+v", smp)
	}
	if smp.Settings.Volume != 0.9 || smp.Settings.Pitch != 0.5 {
		t.Errorf("sample settings did not round trip: %+v", smp.Settings)
	}
	if len(smp.PCM) != 0 {
		t.Errorf("PCM leaked into the serialized project")
	}
}

func TestUnmarshalProjectRejectsInvalid(t *testing.T) {
	for _, c := range []struct {
		name string
		edit func(p *fortuned.Project)
	}{
		{"bpm out of range", func(p *fortuned.Project) { p.BPM = 1000 }},
		{"no sections", func(p *fortuned.Project) { p.Table.Sections = nil }},
		{"gap between sections", func(p *fortuned.Project) { p.Table.Sections[1].StartStep++ }},
		{"sections do not cover table", func(p *fortuned.Project) { p.Table.Sections[1].NumSteps-- }},
	} {
		p := fortuned.NewProject()
		p.Table.AppendSection(8, -1)
		c.edit(&p)
		data, err := p.Marshal()
		if err != nil {
			t.Fatalf("%v: Marshal failed: %v", c.name, err)
		}
		if _, err := fortuned.UnmarshalProject(data); err == nil {
			t.Errorf("%v: invalid project was accepted", c.name)
		}
	}
}
