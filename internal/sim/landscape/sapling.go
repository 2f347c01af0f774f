package landscape

const (
	SaplingBrowsed uint8 = 1 << iota
	SaplingSprout
)

// Sapling is one cohort in a sapling cell slot. A slot is occupied iff
// Height > 0.
type Sapling struct {
	SpeciesIndex int
	Age          int
	Height       float64
	StressYears  uint8
	Flags        uint8
}

func (s Sapling) Occupied() bool { return s.Height > 0 }
func (s Sapling) Browsed() bool  { return s.Flags&SaplingBrowsed != 0 }
func (s Sapling) Sprout() bool   { return s.Flags&SaplingSprout != 0 }

// SaplingCell is the fixed-capacity cohort slot array of one light cell.
type SaplingCell struct {
	Slots [SaplingSlots]Sapling
}

// Add places a cohort into the first free slot and returns it, or nil when
// the cell is full or height is not positive.
func (c *SaplingCell) Add(height float64, age, speciesIndex int) *Sapling {
	if height <= 0 {
		return nil
	}
	for i := range c.Slots {
		if !c.Slots[i].Occupied() {
			c.Slots[i] = Sapling{SpeciesIndex: speciesIndex, Age: age, Height: height}
			return &c.Slots[i]
		}
	}
	return nil
}

func (c *SaplingCell) Occupied() int {
	n := 0
	for i := range c.Slots {
		if c.Slots[i].Occupied() {
			n++
		}
	}
	return n
}

func (c *SaplingCell) Clear() {
	c.Slots = [SaplingSlots]Sapling{}
}
