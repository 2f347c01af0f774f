package landscape

import (
	"math"

	"forestcore.io/internal/sim/geo"
)

// Tree is an individual tree. Position is the absolute light cell of the
// stem.
type Tree struct {
	ID       int
	Species  *Species
	Position geo.Cell
	Age      int

	Height   float64 // m
	Dbh      float64 // cm
	LeafArea float64 // m2
	Opacity  float64

	FoliageMass    float64 // kg
	WoodyMass      float64
	FineRootMass   float64
	CoarseRootMass float64
	NPPReserve     float64
	StressIndex    float64

	stamp *Stamp
	ru    *ResourceUnit
	dead  bool
}

func (t *Tree) Stamp() *Stamp               { return t.stamp }
func (t *Tree) ResourceUnit() *ResourceUnit { return t.ru }
func (t *Tree) IsDead() bool                { return t.dead }

// Remove marks the tree dead. It stays in its unit's list until
// CleanTreeLists runs.
func (t *Tree) Remove() { t.dead = true }

// SetupStamp derives the light stamp from species and dimensions.
func (t *Tree) SetupStamp() {
	if t.Species == nil {
		t.stamp = nil
		return
	}
	t.stamp = t.Species.Stamp(t.Dbh, t.Height)
}

// BasalArea in m2.
func (t *Tree) BasalArea() float64 {
	r := t.Dbh / 200
	return math.Pi * r * r
}

func (t *Tree) Biomass() float64 {
	return t.FoliageMass + t.WoodyMass + t.FineRootMass + t.CoarseRootMass
}
