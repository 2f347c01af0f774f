package landscape

import "forestcore.io/internal/sim/geo"

// ResourceUnit is one RUSize x RUSize cell of the landscape and owns the
// entities located in it.
type ResourceUnit struct {
	index    int
	id       int
	gridCell geo.Cell
	corner   geo.Cell
	box      geo.Rect

	trees    []*Tree
	soil     Soil
	snag     Snag
	water    WaterCycle
	saplings []SaplingCell
	stats    StandStatistics
}

// Index is the position in the landscape's unit list. It is only stable
// within one run.
func (ru *ResourceUnit) Index() int { return ru.index }

// ID is the external unit identifier, -1 for units outside the project area.
func (ru *ResourceUnit) ID() int { return ru.id }

// GridCell is the unit's cell on the resource unit grid.
func (ru *ResourceUnit) GridCell() geo.Cell { return ru.gridCell }

// CornerOffset is the light cell of the unit's lower-left corner.
func (ru *ResourceUnit) CornerOffset() geo.Cell { return ru.corner }

func (ru *ResourceUnit) BoundingBox() geo.Rect       { return ru.box }
func (ru *ResourceUnit) Trees() []*Tree              { return ru.trees }
func (ru *ResourceUnit) Soil() *Soil                 { return &ru.soil }
func (ru *ResourceUnit) Snag() *Snag                 { return &ru.snag }
func (ru *ResourceUnit) Water() *WaterCycle          { return &ru.water }
func (ru *ResourceUnit) Statistics() StandStatistics { return ru.stats }

// NewTree appends a tree to the unit's list and returns it.
func (ru *ResourceUnit) NewTree() *Tree {
	t := &Tree{ru: ru}
	ru.trees = append(ru.trees, t)
	return t
}

func (ru *ResourceUnit) ClearTrees() {
	ru.trees = nil
}

// CleanTreeList drops dead trees, keeping the order of the survivors.
func (ru *ResourceUnit) CleanTreeList() int {
	kept := ru.trees[:0]
	for _, t := range ru.trees {
		if !t.dead {
			kept = append(kept, t)
		}
	}
	removed := len(ru.trees) - len(kept)
	for i := len(kept); i < len(ru.trees); i++ {
		ru.trees[i] = nil
	}
	ru.trees = kept
	return removed
}

// LiveTrees counts trees not marked dead.
func (ru *ResourceUnit) LiveTrees() int {
	n := 0
	for _, t := range ru.trees {
		if !t.dead {
			n++
		}
	}
	return n
}

func (ru *ResourceUnit) containsLocal(local geo.Cell) bool {
	return local.X >= 0 && local.Y >= 0 && local.X < CellsPerRU && local.Y < CellsPerRU
}

// SaplingCell returns the sapling cell at the given absolute light cell. With
// create set, the unit's cell block is allocated on first use; otherwise nil
// is returned while nothing was allocated.
func (ru *ResourceUnit) SaplingCell(c geo.Cell, create bool) *SaplingCell {
	local := c.Sub(ru.corner)
	if !ru.containsLocal(local) {
		return nil
	}
	if ru.saplings == nil {
		if !create {
			return nil
		}
		ru.saplings = make([]SaplingCell, CellsPerRU*CellsPerRU)
	}
	return &ru.saplings[local.Y*CellsPerRU+local.X]
}

// EachSaplingCell visits allocated sapling cells in row-major order.
func (ru *ResourceUnit) EachSaplingCell(fn func(c geo.Cell, sc *SaplingCell)) {
	for i := range ru.saplings {
		local := geo.Cell{X: i % CellsPerRU, Y: i / CellsPerRU}
		fn(ru.corner.Add(local), &ru.saplings[i])
	}
}

func (ru *ResourceUnit) ClearSaplings() {
	ru.saplings = nil
}

// StandStatistics aggregates the live trees and saplings of one unit.
// Area-based values are per hectare.
type StandStatistics struct {
	Count                int
	AverageDbh           float64
	AverageHeight        float64
	BasalArea            float64
	LeafAreaIndex        float64
	Biomass              float64
	NPPReserve           float64
	SaplingCohorts       int
	SaplingAverageHeight float64
}

// RecreateStandStatistics recomputes the statistics from the live entities.
func (ru *ResourceUnit) RecreateStandStatistics() {
	var s StandStatistics
	var sumDbh, sumHeight, leafArea float64
	for _, t := range ru.trees {
		if t.dead {
			continue
		}
		s.Count++
		sumDbh += t.Dbh
		sumHeight += t.Height
		leafArea += t.LeafArea
		s.BasalArea += t.BasalArea()
		s.Biomass += t.Biomass()
		s.NPPReserve += t.NPPReserve
	}
	if s.Count > 0 {
		s.AverageDbh = sumDbh / float64(s.Count)
		s.AverageHeight = sumHeight / float64(s.Count)
	}
	areaHa := ru.box.Width() * ru.box.Height() / 10000
	if areaHa > 0 {
		s.BasalArea /= areaHa
		s.Biomass /= areaHa
		s.NPPReserve /= areaHa
		s.LeafAreaIndex = leafArea / (areaHa * 10000)
	}

	var sumSapHeight float64
	for i := range ru.saplings {
		for _, sap := range ru.saplings[i].Slots {
			if sap.Occupied() {
				s.SaplingCohorts++
				sumSapHeight += sap.Height
			}
		}
	}
	if s.SaplingCohorts > 0 {
		s.SaplingAverageHeight = sumSapHeight / float64(s.SaplingCohorts)
	}
	ru.stats = s
}
