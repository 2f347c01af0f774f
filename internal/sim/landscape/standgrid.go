package landscape

import (
	"fmt"
	"math"

	"forestcore.io/internal/sim/geo"
	"forestcore.io/internal/sim/mathx"
)

// NoStand marks stand grid cells outside any stand.
const NoStand = -1

// Sampler returns a raster value at a world coordinate; negative values mean
// no data.
type Sampler interface {
	ValueAt(world geo.Point) float64
}

// StandGrid maps cells of the model extent to stand identifiers. Its cell
// size is a multiple of LightCellSize.
type StandGrid struct {
	grid  *Grid[int]
	ratio int
}

func NewStandGrid(extent geo.Rect, cellSize float64) (*StandGrid, error) {
	ratio := int(math.Round(cellSize / LightCellSize))
	if ratio < 1 || math.Abs(float64(ratio)*LightCellSize-cellSize) > 1e-9 {
		return nil, fmt.Errorf("stand grid: cell size %g is not a multiple of %g", cellSize, LightCellSize)
	}
	g := &StandGrid{grid: NewGrid[int](extent, cellSize), ratio: ratio}
	g.grid.Fill(NoStand)
	return g, nil
}

// StandGridFromSampler samples s at the world coordinate of each cell centre.
func StandGridFromSampler(l *Landscape, s Sampler, cellSize float64) (*StandGrid, error) {
	g, err := NewStandGrid(l.extent, cellSize)
	if err != nil {
		return nil, err
	}
	for i := 0; i < g.grid.Len(); i++ {
		c := g.grid.CellOf(i)
		v := s.ValueAt(l.mapper.ModelToWorld(g.grid.CellCenter(c)))
		if v >= 0 && !math.IsNaN(v) {
			g.grid.Set(c, int(v))
		}
	}
	return g, nil
}

func (g *StandGrid) Grid() *Grid[int] { return g.grid }

func (g *StandGrid) Set(c geo.Cell, standID int) bool { return g.grid.Set(c, standID) }

// StandAt returns the stand at model coordinate p, NoStand outside.
func (g *StandGrid) StandAt(p geo.Point) int {
	c := g.grid.CellAt(p)
	if !g.grid.Valid(c) {
		return NoStand
	}
	return g.grid.At(c)
}

// StandAtLightCell returns the stand containing light cell c.
func (g *StandGrid) StandAtLightCell(c geo.Cell) int {
	sc := geo.Cell{X: mathx.FloorDiv(c.X, g.ratio), Y: mathx.FloorDiv(c.Y, g.ratio)}
	if !g.grid.Valid(sc) {
		return NoStand
	}
	return g.grid.At(sc)
}

func (g *StandGrid) Contains(standID int) bool {
	for _, v := range g.grid.Values() {
		if v == standID {
			return true
		}
	}
	return false
}

// LightCells visits the light cells of a stand in row-major order of the
// stand grid.
func (g *StandGrid) LightCells(standID int, fn func(c geo.Cell)) {
	for i, v := range g.grid.Values() {
		if v != standID {
			continue
		}
		sc := g.grid.CellOf(i)
		base := geo.Cell{X: sc.X * g.ratio, Y: sc.Y * g.ratio}
		for dy := 0; dy < g.ratio; dy++ {
			for dx := 0; dx < g.ratio; dx++ {
				fn(base.Add(geo.Cell{X: dx, Y: dy}))
			}
		}
	}
}

// Trees returns the live trees standing in the stand.
func (g *StandGrid) Trees(l *Landscape, standID int) []*Tree {
	var out []*Tree
	l.EachTree(func(t *Tree) {
		if g.StandAtLightCell(t.Position) == standID {
			out = append(out, t)
		}
	})
	return out
}

// SaplingCells visits the sapling cells of a stand. Without create, cells of
// units that never held saplings are skipped.
func (g *StandGrid) SaplingCells(l *Landscape, standID int, create bool, fn func(c geo.Cell, sc *SaplingCell, ru *ResourceUnit)) {
	g.LightCells(standID, func(c geo.Cell) {
		sc, ru := l.SaplingCell(c, create)
		if sc != nil {
			fn(c, sc, ru)
		}
	})
}
