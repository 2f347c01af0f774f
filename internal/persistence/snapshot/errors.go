package snapshot

import (
	"errors"
	"fmt"

	"forestcore.io/internal/sim/geo"
)

// ErrUnknownSpecies is returned when a stored tree or sapling references a
// species the landscape does not know.
var ErrUnknownSpecies = errors.New("unknown species")

// OffsetError reports an alignment raster whose origin cannot be reconciled
// with the current resource unit grid.
type OffsetError struct {
	Raster        string
	RasterOrigin  geo.Point
	ProjectOrigin geo.Point
	UnitSize      float64
}

func (e *OffsetError) Error() string {
	return fmt.Sprintf("alignment raster %s: origin %v and project origin %v differ by %v, which is not a multiple of the resource unit size %g m",
		e.Raster, e.RasterOrigin, e.ProjectOrigin, e.RasterOrigin.Sub(e.ProjectOrigin), e.UnitSize)
}
