package geo

import (
	"math"
	"testing"
)

func TestMapperRoundTrip(t *testing.T) {
	m := NewMapper(4_500_100, 230_400)
	world := Point{X: 4_500_250.5, Y: 230_499}
	model := m.WorldToModel(world)
	if model != (Point{X: 150.5, Y: 99}) {
		t.Fatalf("WorldToModel=%v", model)
	}
	if back := m.ModelToWorld(model); back != world {
		t.Fatalf("ModelToWorld=%v want %v", back, world)
	}
}

func TestCellAtAndCenter(t *testing.T) {
	if c := CellAt(Point{X: 3.9, Y: 0}, 2); c != (Cell{X: 1, Y: 0}) {
		t.Fatalf("CellAt=%v", c)
	}
	if c := CellAt(Point{X: -0.1, Y: -2}, 2); c != (Cell{X: -1, Y: -1}) {
		t.Fatalf("CellAt negative=%v", c)
	}
	if p := CellCenter(Cell{X: 1, Y: 2}, 100); p != (Point{X: 150, Y: 250}) {
		t.Fatalf("CellCenter=%v", p)
	}
}

func TestRectContainsIsHalfOpen(t *testing.T) {
	r := NewRect(0, 0, 300, 200)
	if !r.Contains(Point{X: 0, Y: 0}) {
		t.Fatalf("min corner should be inside")
	}
	if r.Contains(Point{X: 300, Y: 10}) || r.Contains(Point{X: 10, Y: 200}) {
		t.Fatalf("max edge should be outside")
	}
}

func TestPointFinite(t *testing.T) {
	if !(Point{X: 1, Y: 2}).Finite() {
		t.Fatalf("finite point reported non-finite")
	}
	if (Point{X: math.NaN()}).Finite() || (Point{Y: math.Inf(1)}).Finite() {
		t.Fatalf("non-finite point reported finite")
	}
}
