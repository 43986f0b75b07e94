package sequencer

import "github.com/luddite478/fortuned"

type (
	// TableSnapshot is the read-only view of the table published to external
	// observers through a seqlock.
	TableSnapshot struct {
		Table       fortuned.Table
		TotalSteps  int
		NumSections int
	}

	// PlaybackSnapshot is the read-only view of the transport and mixer
	// state.
	PlaybackSnapshot struct {
		Playing      bool
		Step         int
		BPM          int
		RegionStart  int
		RegionEnd    int
		Mode         fortuned.PlaybackMode
		Section      int
		SectionLoop  int
		SectionLoops [fortuned.MaxSections]int
		MasterVolume float32
		PeakLevels   [fortuned.MaxCols]float32
		Recording    bool
	}

	// SampleSlotInfo describes one slot of the bank without exposing its PCM.
	SampleSlotInfo struct {
		Loaded      bool
		ID          string
		FilePath    string
		DisplayName string
		Settings    fortuned.SampleSettings
	}

	// SampleBankSnapshot is the read-only view of the sample bank.
	SampleBankSnapshot struct {
		Slots       [fortuned.MaxSampleSlots]SampleSlotInfo
		LoadedCount int
	}

	// UndoRedoSnapshot is the read-only view of the undo history.
	UndoRedoSnapshot struct {
		Count   int
		Cursor  int
		CanUndo bool
		CanRedo bool
	}
)

func makeTableSnapshot(t *fortuned.Table) TableSnapshot {
	return TableSnapshot{
		Table:       t.Copy(),
		TotalSteps:  t.TotalSteps(),
		NumSections: t.NumSections(),
	}
}

func makeBankSnapshot(b *fortuned.SampleBank) SampleBankSnapshot {
	var s SampleBankSnapshot
	for i := range b.Samples {
		smp := &b.Samples[i]
		s.Slots[i] = SampleSlotInfo{
			Loaded:      smp.Loaded,
			ID:          smp.ID,
			FilePath:    smp.FilePath,
			DisplayName: smp.DisplayName,
			Settings:    smp.Settings,
		}
		if smp.Loaded {
			s.LoadedCount++
		}
	}
	return s
}
