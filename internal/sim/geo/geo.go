// Package geo converts between world coordinates (the projected metric
// coordinates of input rasters) and model coordinates (metres relative to
// the lower-left corner of the simulated extent).
package geo

import (
	"fmt"
	"math"

	"forestcore.io/internal/sim/mathx"
)

type Point struct {
	X, Y float64
}

func (p Point) Add(o Point) Point { return Point{X: p.X + o.X, Y: p.Y + o.Y} }
func (p Point) Sub(o Point) Point { return Point{X: p.X - o.X, Y: p.Y - o.Y} }

func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

func (p Point) String() string { return fmt.Sprintf("(%g, %g)", p.X, p.Y) }

// Cell is an integer grid index.
type Cell struct {
	X, Y int
}

func (c Cell) Add(o Cell) Cell { return Cell{X: c.X + o.X, Y: c.Y + o.Y} }
func (c Cell) Sub(o Cell) Cell { return Cell{X: c.X - o.X, Y: c.Y - o.Y} }

// Rect is a half-open metric rectangle [Min, Max).
type Rect struct {
	Min, Max Point
}

func NewRect(x, y, w, h float64) Rect {
	return Rect{Min: Point{X: x, Y: y}, Max: Point{X: x + w, Y: y + h}}
}

func (r Rect) Width() float64  { return r.Max.X - r.Min.X }
func (r Rect) Height() float64 { return r.Max.Y - r.Min.Y }

func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X < r.Max.X && p.Y >= r.Min.Y && p.Y < r.Max.Y
}

func (r Rect) Center() Point {
	return Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Mapper translates between world and model coordinates. Model (0,0) sits at
// Origin in world coordinates.
type Mapper struct {
	Origin Point
}

func NewMapper(originX, originY float64) Mapper {
	return Mapper{Origin: Point{X: originX, Y: originY}}
}

func (m Mapper) WorldToModel(p Point) Point { return p.Sub(m.Origin) }
func (m Mapper) ModelToWorld(p Point) Point { return p.Add(m.Origin) }

// CellAt returns the index of the cell of the given size containing p.
func CellAt(p Point, cellSize float64) Cell {
	return Cell{X: mathx.FloorIndex(p.X, cellSize), Y: mathx.FloorIndex(p.Y, cellSize)}
}

// CellCenter returns the metric center of cell c.
func CellCenter(c Cell, cellSize float64) Point {
	return Point{X: (float64(c.X) + 0.5) * cellSize, Y: (float64(c.Y) + 0.5) * cellSize}
}
