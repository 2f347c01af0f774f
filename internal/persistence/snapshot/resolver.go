package snapshot

import (
	"fmt"
	"math"

	"forestcore.io/internal/persistence/raster"
	"forestcore.io/internal/sim/landscape"
	"forestcore.io/internal/sim/mathx"
)

// offsetTolerance absorbs decimal round-off of raster header coordinates.
const offsetTolerance = 1e-6

// UnitResolver maps resource unit indices stored in a snapshot to the units
// of the current landscape.
type UnitResolver struct {
	units    map[int]*landscape.ResourceUnit
	identity bool
}

// NewIdentityResolver assumes the snapshot was written by a landscape with
// the same unit indexing.
func NewIdentityResolver(l *landscape.Landscape) *UnitResolver {
	r := &UnitResolver{units: make(map[int]*landscape.ResourceUnit, len(l.Units())), identity: true}
	for _, ru := range l.Units() {
		r.units[ru.Index()] = ru
	}
	return r
}

// NewRasterResolver samples the alignment raster g at the centre of every
// current unit. name identifies the raster in errors.
func NewRasterResolver(l *landscape.Landscape, g *raster.Grid, name string) (*UnitResolver, error) {
	mapper := l.Mapper()
	if math.Abs(g.CellSize-landscape.RUSize) > offsetTolerance {
		return nil, fmt.Errorf("alignment raster %s: cell size %g does not match the resource unit size %g", name, g.CellSize, landscape.RUSize)
	}
	to := mapper.WorldToModel(g.Origin)
	if !mathx.IsMultiple(to.X, landscape.RUSize, offsetTolerance) || !mathx.IsMultiple(to.Y, landscape.RUSize, offsetTolerance) {
		return nil, &OffsetError{Raster: name, RasterOrigin: g.Origin, ProjectOrigin: mapper.Origin, UnitSize: landscape.RUSize}
	}

	r := &UnitResolver{units: make(map[int]*landscape.ResourceUnit, len(l.Units()))}
	for _, ru := range l.Units() {
		if ru.Index() < 0 {
			continue
		}
		v := g.ValueAt(mapper.ModelToWorld(ru.BoundingBox().Center()))
		if v >= 0 {
			r.units[int(v)] = ru
		}
	}
	return r, nil
}

func (r *UnitResolver) Resolve(index int) (*landscape.ResourceUnit, bool) {
	ru, ok := r.units[index]
	return ru, ok
}

func (r *UnitResolver) Len() int       { return len(r.units) }
func (r *UnitResolver) Identity() bool { return r.identity }
