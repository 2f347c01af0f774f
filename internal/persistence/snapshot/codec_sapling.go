package snapshot

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"forestcore.io/internal/sim/geo"
	"forestcore.io/internal/sim/landscape"
)

var saplingTable = Table{
	Name: "saplings",
	Columns: []Column{
		{Name: "RUindex", Type: Integer},
		{Name: "species", Type: Text},
		{Name: "posx", Type: Integer},
		{Name: "posy", Type: Integer},
		{Name: "age", Type: Integer},
		{Name: "height", Type: Real},
		{Name: "stress_years", Type: Integer},
	},
}

// SaplingRow is a row of the saplings table. PosX/PosY are the light cell
// offset inside the resource unit.
type SaplingRow struct {
	RUIndex     int64   `db:"ruindex"`
	Species     string  `db:"species"`
	PosX        int64   `db:"posx"`
	PosY        int64   `db:"posy"`
	Age         int64   `db:"age"`
	Height      float64 `db:"height"`
	StressYears int64   `db:"stress_years"`
}

// saplingCodec stores occupied cohort slots. It is inert while regeneration
// is disabled.
type saplingCodec struct{}

func (saplingCodec) Table() Table       { return saplingTable }
func (saplingCodec) progressEvery() int { return 10000 }

func (saplingCodec) Save(l *landscape.Landscape, emit func(args ...any) error) error {
	if !l.RegenerationEnabled() {
		return nil
	}
	var err error
	l.EachSaplingCell(func(c geo.Cell, sc *landscape.SaplingCell, ru *landscape.ResourceUnit) {
		if err != nil {
			return
		}
		local := c.Sub(ru.CornerOffset())
		for _, s := range sc.Slots {
			if !s.Occupied() {
				continue
			}
			sp, ok := l.Species().ByIndex(s.SpeciesIndex)
			if !ok {
				err = fmt.Errorf("sapling at %v: no species with index %d", c, s.SpeciesIndex)
				return
			}
			if err = emit(ru.Index(), sp.ID, local.X, local.Y, s.Age, s.Height, int(s.StressYears)); err != nil {
				return
			}
		}
	})
	return err
}

func (saplingCodec) Load(ctx context.Context, rows *sqlx.Rows, env *loadEnv) error {
	l := env.landscape
	if !l.RegenerationEnabled() {
		return nil
	}
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var r SaplingRow
		if err := rows.StructScan(&r); err != nil {
			return err
		}
		ru, ok := env.resolver.Resolve(int(r.RUIndex))
		if !ok {
			env.counter.skip()
			continue
		}
		sp, ok := l.Species().ByID(r.Species)
		if !ok {
			return fmt.Errorf("sapling in unit %d: %w %q", r.RUIndex, ErrUnknownSpecies, r.Species)
		}
		if r.Height <= 0 {
			env.counter.skip()
			continue
		}
		sc := ru.SaplingCell(ru.CornerOffset().Add(unitOffset(r.PosX, r.PosY)), true)
		sap := sc.Add(r.Height, int(r.Age), sp.Index)
		if sap == nil {
			env.counter.reject()
			continue
		}
		sap.StressYears = uint8(r.StressYears)
		env.counter.row()
	}
	return rows.Err()
}
