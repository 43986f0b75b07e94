package fortuned

type (
	// Cell is a single trigger in the sequencer grid, identified by its (step,
	// column) position in a Table. A cell either triggers a sample slot or is
	// empty; its volume and pitch can override the slot defaults or inherit
	// them.
	Cell struct {
		SampleSlot int     `yaml:"slot"`
		Volume     float32 `yaml:"volume"`
		Pitch      float32 `yaml:"pitch"`
	}

	// Section is a contiguous run of steps in the table. Sections are ordered
	// by StartStep and partition the whole step range without gaps or
	// overlaps.
	Section struct {
		StartStep int `yaml:"start"`
		NumSteps  int `yaml:"steps"`
	}

	// Layer is a per-section grouping of columns. Len is the number of
	// columns assigned to the layer; it is editor-facing data only and has no
	// effect on playback.
	Layer struct {
		Len int `yaml:"len"`
	}

	// Table owns the grid of cells, the section list and the per-section
	// layers. It is pure data: all mutators validate their indices and no-op
	// on anything out of range, and nothing in Table is safe for concurrent
	// mutation. The playback engine always works on its own Copy.
	Table struct {
		Cells    [][]Cell  `yaml:",flow"`
		Sections []Section `yaml:",flow"`
		Layers   [][]Layer `yaml:",flow"`
	}
)

const (
	MaxSteps            = 2048
	MaxCols             = 16
	MaxSections         = 64
	DefaultSectionSteps = 16
	MaxLayersPerSection = 4
	MaxColsPerLayer     = 4
)

// EmptySlot marks a cell that triggers nothing.
const EmptySlot = -1

// Inherit marks a cell volume or pitch that falls back to the sample slot
// default.
const Inherit float32 = -1

// Pitch ratio bounds; 1.0 is unity.
const (
	MinPitch float32 = 1.0 / 32.0
	MaxPitch float32 = 32.0
)

// EmptyCell returns a cell that triggers nothing and inherits all settings.
func EmptyCell() Cell {
	return Cell{SampleSlot: EmptySlot, Volume: Inherit, Pitch: Inherit}
}

// NewTable returns a table with a single section of DefaultSectionSteps blank
// steps.
func NewTable() Table {
	var t Table
	t.Sections = []Section{{StartStep: 0, NumSteps: DefaultSectionSteps}}
	t.Cells = blankRows(DefaultSectionSteps)
	t.Layers = [][]Layer{defaultLayers()}
	return t
}

func blankRows(n int) [][]Cell {
	rows := make([][]Cell, n)
	for i := range rows {
		rows[i] = blankRow()
	}
	return rows
}

func blankRow() []Cell {
	row := make([]Cell, MaxCols)
	for c := range row {
		row[c] = EmptyCell()
	}
	return row
}

func defaultLayers() []Layer {
	layers := make([]Layer, MaxLayersPerSection)
	for i := range layers {
		layers[i] = Layer{Len: MaxColsPerLayer}
	}
	return layers
}

// Copy returns a deep copy of the table.
func (t *Table) Copy() Table {
	cells := make([][]Cell, len(t.Cells))
	for i, row := range t.Cells {
		newRow := make([]Cell, len(row))
		copy(newRow, row)
		cells[i] = newRow
	}
	sections := make([]Section, len(t.Sections))
	copy(sections, t.Sections)
	layers := make([][]Layer, len(t.Layers))
	for i, l := range t.Layers {
		newL := make([]Layer, len(l))
		copy(newL, l)
		layers[i] = newL
	}
	return Table{Cells: cells, Sections: sections, Layers: layers}
}

// TotalSteps returns the number of steps covered by all sections.
func (t *Table) TotalSteps() int {
	return len(t.Cells)
}

// NumSections returns the number of sections in the table.
func (t *Table) NumSections() int {
	return len(t.Sections)
}

// Cell returns the cell at (step, col), or an empty cell if the indices are
// out of range.
func (t *Table) Cell(step, col int) Cell {
	if step < 0 || step >= len(t.Cells) || col < 0 || col >= MaxCols {
		return EmptyCell()
	}
	return t.Cells[step][col]
}

// Section returns the section at the given index; ok is false if the index is
// out of range.
func (t *Table) Section(index int) (Section, bool) {
	if index < 0 || index >= len(t.Sections) {
		return Section{}, false
	}
	return t.Sections[index], true
}

// SectionAtStep returns the index of the section owning the given step, or -1
// if the step is out of range.
func (t *Table) SectionAtStep(step int) int {
	if step < 0 || step >= t.TotalSteps() {
		return -1
	}
	for i, s := range t.Sections {
		if step >= s.StartStep && step < s.StartStep+s.NumSteps {
			return i
		}
	}
	return -1
}

// LayerLen returns the column count of the given layer, or 0 if the indices
// are out of range.
func (t *Table) LayerLen(section, layer int) int {
	if section < 0 || section >= len(t.Layers) || layer < 0 || layer >= len(t.Layers[section]) {
		return 0
	}
	return t.Layers[section][layer].Len
}

func validVolume(v float32) bool {
	return v == Inherit || (v >= 0 && v <= 1)
}

func validPitch(p float32) bool {
	return p == Inherit || (p >= MinPitch && p <= MaxPitch)
}

func validSlot(slot int) bool {
	return slot == EmptySlot || (slot >= 0 && slot < MaxSampleSlots)
}

// SetCell writes the full cell at (step, col). Out-of-range indices or values
// make the call a no-op.
func (t *Table) SetCell(step, col, slot int, volume, pitch float32) {
	if step < 0 || step >= len(t.Cells) || col < 0 || col >= MaxCols {
		return
	}
	if !validSlot(slot) || !validVolume(volume) || !validPitch(pitch) {
		return
	}
	t.Cells[step][col] = Cell{SampleSlot: slot, Volume: volume, Pitch: pitch}
}

// SetCellSettings writes only the volume/pitch of the cell, keeping its slot.
func (t *Table) SetCellSettings(step, col int, volume, pitch float32) {
	if step < 0 || step >= len(t.Cells) || col < 0 || col >= MaxCols {
		return
	}
	if !validVolume(volume) || !validPitch(pitch) {
		return
	}
	t.Cells[step][col].Volume = volume
	t.Cells[step][col].Pitch = pitch
}

// SetCellSampleSlot writes only the sample slot of the cell, keeping its
// settings.
func (t *Table) SetCellSampleSlot(step, col, slot int) {
	if step < 0 || step >= len(t.Cells) || col < 0 || col >= MaxCols || !validSlot(slot) {
		return
	}
	t.Cells[step][col].SampleSlot = slot
}

// ClearCell resets the cell at (step, col) to empty.
func (t *Table) ClearCell(step, col int) {
	if step < 0 || step >= len(t.Cells) || col < 0 || col >= MaxCols {
		return
	}
	t.Cells[step][col] = EmptyCell()
}

// InsertStep inserts one blank step at the given global step index inside the
// given section, shifting all cells at steps >= atStep forward and
// re-indexing the sections that follow.
func (t *Table) InsertStep(section, atStep int) {
	if section < 0 || section >= len(t.Sections) || t.TotalSteps() >= MaxSteps {
		return
	}
	s := t.Sections[section]
	if atStep < s.StartStep || atStep > s.StartStep+s.NumSteps {
		return
	}
	t.Cells = append(t.Cells, nil)
	copy(t.Cells[atStep+1:], t.Cells[atStep:])
	t.Cells[atStep] = blankRow()
	t.Sections[section].NumSteps++
	for i := section + 1; i < len(t.Sections); i++ {
		t.Sections[i].StartStep++
	}
}

// DeleteStep removes the step at the given global index from the given
// section; the exact inverse of InsertStep. A section never shrinks below one
// step.
func (t *Table) DeleteStep(section, atStep int) {
	if section < 0 || section >= len(t.Sections) {
		return
	}
	s := t.Sections[section]
	if s.NumSteps <= 1 || atStep < s.StartStep || atStep >= s.StartStep+s.NumSteps {
		return
	}
	t.Cells = append(t.Cells[:atStep], t.Cells[atStep+1:]...)
	t.Sections[section].NumSteps--
	for i := section + 1; i < len(t.Sections); i++ {
		t.Sections[i].StartStep--
	}
}

// AppendSection adds a new section of the given step count at the end of the
// table. When copyFrom is a valid section index, the new section's cells and
// layers are cloned from it (truncated or padded with blanks as needed);
// copyFrom -1 gives a blank section.
func (t *Table) AppendSection(steps, copyFrom int) {
	if steps < 1 || len(t.Sections) >= MaxSections || t.TotalSteps()+steps > MaxSteps {
		return
	}
	if copyFrom != -1 && (copyFrom < 0 || copyFrom >= len(t.Sections)) {
		return
	}
	start := t.TotalSteps()
	rows := blankRows(steps)
	layers := defaultLayers()
	if copyFrom >= 0 {
		src := t.Sections[copyFrom]
		for i := 0; i < steps && i < src.NumSteps; i++ {
			copy(rows[i], t.Cells[src.StartStep+i])
		}
		copy(layers, t.Layers[copyFrom])
	}
	t.Cells = append(t.Cells, rows...)
	t.Sections = append(t.Sections, Section{StartStep: start, NumSteps: steps})
	t.Layers = append(t.Layers, layers)
}

// DeleteSection removes the section and its cells, re-indexing the sections
// that follow. The last remaining section cannot be deleted.
func (t *Table) DeleteSection(section int) {
	if section < 0 || section >= len(t.Sections) || len(t.Sections) <= 1 {
		return
	}
	s := t.Sections[section]
	t.Cells = append(t.Cells[:s.StartStep], t.Cells[s.StartStep+s.NumSteps:]...)
	t.Sections = append(t.Sections[:section], t.Sections[section+1:]...)
	t.Layers = append(t.Layers[:section], t.Layers[section+1:]...)
	for i := section; i < len(t.Sections); i++ {
		t.Sections[i].StartStep -= s.NumSteps
	}
}

// SetSectionStepCount grows or shrinks the section to the given step count,
// inserting blank steps at its end or deleting steps from its end.
func (t *Table) SetSectionStepCount(section, steps int) {
	if section < 0 || section >= len(t.Sections) || steps < 1 {
		return
	}
	s := t.Sections[section]
	delta := steps - s.NumSteps
	if delta == 0 || t.TotalSteps()+delta > MaxSteps {
		return
	}
	end := s.StartStep + s.NumSteps
	if delta > 0 {
		t.Cells = append(t.Cells, make([][]Cell, delta)...)
		copy(t.Cells[end+delta:], t.Cells[end:])
		for i := 0; i < delta; i++ {
			t.Cells[end+i] = blankRow()
		}
	} else {
		t.Cells = append(t.Cells[:end+delta], t.Cells[end:]...)
	}
	t.Sections[section].NumSteps = steps
	for i := section + 1; i < len(t.Sections); i++ {
		t.Sections[i].StartStep += delta
	}
}

// ReorderSection moves the section at index from to index to, carrying its
// cell block and layers with it and relabeling all start steps contiguously.
// The total step count is preserved.
func (t *Table) ReorderSection(from, to int) {
	if from < 0 || from >= len(t.Sections) || to < 0 || to >= len(t.Sections) || from == to {
		return
	}
	src := t.Sections[from]
	block := make([][]Cell, src.NumSteps)
	copy(block, t.Cells[src.StartStep:src.StartStep+src.NumSteps])
	layers := t.Layers[from]

	cells := append(t.Cells[:src.StartStep:src.StartStep], t.Cells[src.StartStep+src.NumSteps:]...)
	sections := append(t.Sections[:from:from], t.Sections[from+1:]...)
	allLayers := append(t.Layers[:from:from], t.Layers[from+1:]...)

	// start step of the destination slot after removal
	insertStep := 0
	for i := 0; i < to; i++ {
		insertStep += sections[i].NumSteps
	}
	cells = append(cells[:insertStep], append(block, cells[insertStep:]...)...)
	sections = append(sections[:to], append([]Section{src}, sections[to:]...)...)
	allLayers = append(allLayers[:to], append([][]Layer{layers}, allLayers[to:]...)...)

	start := 0
	for i := range sections {
		sections[i].StartStep = start
		start += sections[i].NumSteps
	}
	t.Cells, t.Sections, t.Layers = cells, sections, allLayers
}

// SetLayerLen sets the column count of the given layer, clamped to the layer
// capacity. Invalid indices no-op.
func (t *Table) SetLayerLen(section, layer, length int) {
	if section < 0 || section >= len(t.Layers) || layer < 0 || layer >= len(t.Layers[section]) {
		return
	}
	if length < 1 || length > MaxColsPerLayer {
		return
	}
	t.Layers[section][layer].Len = length
}
