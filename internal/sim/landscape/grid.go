package landscape

import (
	"math"

	"forestcore.io/internal/sim/geo"
)

// Grid is a dense row-major raster over a metric rectangle. Cell (0,0) is the
// lower-left cell.
type Grid[T any] struct {
	rect     geo.Rect
	cellSize float64
	nx, ny   int
	data     []T
}

func NewGrid[T any](rect geo.Rect, cellSize float64) *Grid[T] {
	nx := int(math.Round(rect.Width() / cellSize))
	ny := int(math.Round(rect.Height() / cellSize))
	if nx < 0 {
		nx = 0
	}
	if ny < 0 {
		ny = 0
	}
	return &Grid[T]{
		rect:     rect,
		cellSize: cellSize,
		nx:       nx,
		ny:       ny,
		data:     make([]T, nx*ny),
	}
}

func (g *Grid[T]) SizeX() int           { return g.nx }
func (g *Grid[T]) SizeY() int           { return g.ny }
func (g *Grid[T]) Len() int             { return len(g.data) }
func (g *Grid[T]) CellSize() float64    { return g.cellSize }
func (g *Grid[T]) Rect() geo.Rect       { return g.rect }
func (g *Grid[T]) Values() []T          { return g.data }
func (g *Grid[T]) Index(c geo.Cell) int { return c.Y*g.nx + c.X }

func (g *Grid[T]) Valid(c geo.Cell) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < g.nx && c.Y < g.ny
}

func (g *Grid[T]) CellOf(i int) geo.Cell {
	return geo.Cell{X: i % g.nx, Y: i / g.nx}
}

// CellAt returns the cell containing p. The result may be outside the grid.
func (g *Grid[T]) CellAt(p geo.Point) geo.Cell {
	return geo.CellAt(p.Sub(g.rect.Min), g.cellSize)
}

func (g *Grid[T]) CellCenter(c geo.Cell) geo.Point {
	return geo.CellCenter(c, g.cellSize).Add(g.rect.Min)
}

func (g *Grid[T]) CellRect(c geo.Cell) geo.Rect {
	min := geo.Point{X: float64(c.X) * g.cellSize, Y: float64(c.Y) * g.cellSize}.Add(g.rect.Min)
	return geo.Rect{Min: min, Max: min.Add(geo.Point{X: g.cellSize, Y: g.cellSize})}
}

// At returns the zero value for cells outside the grid.
func (g *Grid[T]) At(c geo.Cell) T {
	if !g.Valid(c) {
		var zero T
		return zero
	}
	return g.data[g.Index(c)]
}

func (g *Grid[T]) Ptr(c geo.Cell) *T {
	if !g.Valid(c) {
		return nil
	}
	return &g.data[g.Index(c)]
}

func (g *Grid[T]) Set(c geo.Cell, v T) bool {
	if !g.Valid(c) {
		return false
	}
	g.data[g.Index(c)] = v
	return true
}

func (g *Grid[T]) Fill(v T) {
	for i := range g.data {
		g.data[i] = v
	}
}
