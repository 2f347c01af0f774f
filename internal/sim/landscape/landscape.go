package landscape

import (
	"fmt"

	"forestcore.io/internal/sim/geo"
	"forestcore.io/internal/sim/mathx"
)

// Config describes the geometry and species of a landscape.
type Config struct {
	// Origin is the world coordinate of the model's lower-left corner.
	Origin geo.Point
	// Width and Height of the modelled extent in metres; multiples of RUSize.
	Width, Height float64

	Species             []SpeciesParams
	RegenerationEnabled bool

	// UnitID reports the identifier of the unit at a resource unit grid
	// cell. ok=false leaves the cell without a unit. A nil UnitID creates a
	// unit on every cell, identified by its position in the list.
	UnitID func(c geo.Cell) (id int, ok bool)
}

// HeightCell is one cell of the dominant height grid.
type HeightCell struct {
	Height float64
	Count  int
}

type Landscape struct {
	mapper geo.Mapper
	extent geo.Rect

	unitGrid *Grid[*ResourceUnit]
	units    []*ResourceUnit
	light    *Grid[float64]
	heights  *Grid[HeightCell]
	species  *SpeciesSet

	regeneration bool
}

func New(cfg Config) (*Landscape, error) {
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("landscape: invalid extent %gx%g", cfg.Width, cfg.Height)
	}
	if !mathx.IsMultiple(cfg.Width, RUSize, 1e-6) || !mathx.IsMultiple(cfg.Height, RUSize, 1e-6) {
		return nil, fmt.Errorf("landscape: extent %gx%g is not a multiple of the resource unit size %g", cfg.Width, cfg.Height, RUSize)
	}
	if !cfg.Origin.Finite() {
		return nil, fmt.Errorf("landscape: origin %v is not finite", cfg.Origin)
	}
	species, err := NewSpeciesSet(cfg.Species)
	if err != nil {
		return nil, fmt.Errorf("landscape: %w", err)
	}

	extent := geo.NewRect(0, 0, cfg.Width, cfg.Height)
	l := &Landscape{
		mapper:       geo.Mapper{Origin: cfg.Origin},
		extent:       extent,
		unitGrid:     NewGrid[*ResourceUnit](extent, RUSize),
		light:        NewGrid[float64](extent, LightCellSize),
		heights:      NewGrid[HeightCell](extent, HeightCellSize),
		species:      species,
		regeneration: cfg.RegenerationEnabled,
	}
	l.light.Fill(1)

	for iy := 0; iy < l.unitGrid.SizeY(); iy++ {
		for ix := 0; ix < l.unitGrid.SizeX(); ix++ {
			c := geo.Cell{X: ix, Y: iy}
			id := len(l.units)
			if cfg.UnitID != nil {
				var ok bool
				if id, ok = cfg.UnitID(c); !ok {
					continue
				}
			}
			ru := &ResourceUnit{
				index:    len(l.units),
				id:       id,
				gridCell: c,
				corner:   geo.Cell{X: ix * CellsPerRU, Y: iy * CellsPerRU},
				box:      l.unitGrid.CellRect(c),
			}
			l.units = append(l.units, ru)
			l.unitGrid.Set(c, ru)
		}
	}
	return l, nil
}

func (l *Landscape) Mapper() geo.Mapper                  { return l.mapper }
func (l *Landscape) Extent() geo.Rect                    { return l.extent }
func (l *Landscape) UnitGrid() *Grid[*ResourceUnit]      { return l.unitGrid }
func (l *Landscape) Units() []*ResourceUnit              { return l.units }
func (l *Landscape) Species() *SpeciesSet                { return l.species }
func (l *Landscape) LightGrid() *Grid[float64]           { return l.light }
func (l *Landscape) HeightGrid() *Grid[HeightCell]       { return l.heights }
func (l *Landscape) RegenerationEnabled() bool           { return l.regeneration }
func (l *Landscape) SetRegenerationEnabled(enabled bool) { l.regeneration = enabled }

// UnitAt returns the unit containing the model coordinate p, or nil.
func (l *Landscape) UnitAt(p geo.Point) *ResourceUnit {
	return l.unitGrid.At(l.unitGrid.CellAt(p))
}

// UnitAtLightCell returns the unit containing light cell c, or nil.
func (l *Landscape) UnitAtLightCell(c geo.Cell) *ResourceUnit {
	return l.unitGrid.At(geo.Cell{X: mathx.FloorDiv(c.X, CellsPerRU), Y: mathx.FloorDiv(c.Y, CellsPerRU)})
}

func (l *Landscape) LightCellAt(p geo.Point) geo.Cell     { return l.light.CellAt(p) }
func (l *Landscape) LightCellCenter(c geo.Cell) geo.Point { return l.light.CellCenter(c) }

// EachTree visits live trees in unit order, then list order.
func (l *Landscape) EachTree(fn func(t *Tree)) {
	for _, ru := range l.units {
		for _, t := range ru.trees {
			if !t.dead {
				fn(t)
			}
		}
	}
}

func (l *Landscape) TreeCount() int {
	n := 0
	for _, ru := range l.units {
		n += ru.LiveTrees()
	}
	return n
}

// CleanTreeLists removes dead trees from every unit and returns how many
// were dropped.
func (l *Landscape) CleanTreeLists() int {
	n := 0
	for _, ru := range l.units {
		n += ru.CleanTreeList()
	}
	return n
}

// SaplingCell returns the sapling cell at light cell c and its unit. See
// ResourceUnit.SaplingCell for create.
func (l *Landscape) SaplingCell(c geo.Cell, create bool) (*SaplingCell, *ResourceUnit) {
	ru := l.UnitAtLightCell(c)
	if ru == nil {
		return nil, nil
	}
	return ru.SaplingCell(c, create), ru
}

// EachSaplingCell visits all allocated sapling cells in unit order.
func (l *Landscape) EachSaplingCell(fn func(c geo.Cell, sc *SaplingCell, ru *ResourceUnit)) {
	for _, ru := range l.units {
		ru.EachSaplingCell(func(c geo.Cell, sc *SaplingCell) { fn(c, sc, ru) })
	}
}

// RecreateStatistics recomputes the stand statistics of every unit.
func (l *Landscape) RecreateStatistics() {
	for _, ru := range l.units {
		ru.RecreateStandStatistics()
	}
}
