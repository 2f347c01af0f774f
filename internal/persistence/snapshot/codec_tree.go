package snapshot

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"forestcore.io/internal/sim/geo"
	"forestcore.io/internal/sim/landscape"
	"forestcore.io/internal/sim/mathx"
)

// treeValueColumns are shared by the full and the stand tree tables.
var treeValueColumns = concatColumns(
	[]Column{{Name: "species", Type: Text}, {Name: "age", Type: Integer}},
	realColumns("height", "dbh", "leafArea", "opacity", "foliageMass", "woodyMass",
		"fineRootMass", "coarseRootMass", "NPPReserve", "stressIndex"),
)

var treeTable = Table{
	Name: "trees",
	Columns: concatColumns(
		[]Column{
			{Name: "ID", Type: Integer},
			{Name: "RUindex", Type: Integer},
			{Name: "posX", Type: Integer},
			{Name: "posY", Type: Integer},
		},
		treeValueColumns,
	),
}

// TreeValues are the persisted tree attributes besides identity and position.
type TreeValues struct {
	Species        string  `db:"species"`
	Age            int64   `db:"age"`
	Height         float64 `db:"height"`
	Dbh            float64 `db:"dbh"`
	LeafArea       float64 `db:"leafarea"`
	Opacity        float64 `db:"opacity"`
	FoliageMass    float64 `db:"foliagemass"`
	WoodyMass      float64 `db:"woodymass"`
	FineRootMass   float64 `db:"finerootmass"`
	CoarseRootMass float64 `db:"coarserootmass"`
	NPPReserve     float64 `db:"nppreserve"`
	StressIndex    float64 `db:"stressindex"`
}

// TreeRow is a row of the trees table. PosX/PosY are the light cell offset
// inside the resource unit.
type TreeRow struct {
	ID      int64 `db:"id"`
	RUIndex int64 `db:"ruindex"`
	PosX    int64 `db:"posx"`
	PosY    int64 `db:"posy"`
	TreeValues
}

func treeValuesOf(t *landscape.Tree) TreeValues {
	return TreeValues{
		Species:        t.Species.ID,
		Age:            int64(t.Age),
		Height:         t.Height,
		Dbh:            t.Dbh,
		LeafArea:       t.LeafArea,
		Opacity:        t.Opacity,
		FoliageMass:    t.FoliageMass,
		WoodyMass:      t.WoodyMass,
		FineRootMass:   t.FineRootMass,
		CoarseRootMass: t.CoarseRootMass,
		NPPReserve:     t.NPPReserve,
		StressIndex:    t.StressIndex,
	}
}

func (v TreeValues) args() []any {
	return []any{v.Species, v.Age, v.Height, v.Dbh, v.LeafArea, v.Opacity, v.FoliageMass,
		v.WoodyMass, v.FineRootMass, v.CoarseRootMass, v.NPPReserve, v.StressIndex}
}

// apply copies the values onto t and re-derives its stamp.
func (v TreeValues) apply(t *landscape.Tree, sp *landscape.Species) {
	t.Species = sp
	t.Age = int(v.Age)
	t.Height = v.Height
	t.Dbh = v.Dbh
	t.LeafArea = v.LeafArea
	t.Opacity = v.Opacity
	t.FoliageMass = v.FoliageMass
	t.WoodyMass = v.WoodyMass
	t.FineRootMass = v.FineRootMass
	t.CoarseRootMass = v.CoarseRootMass
	t.NPPReserve = v.NPPReserve
	t.StressIndex = v.StressIndex
	t.SetupStamp()
}

type treeCodec struct{}

func (treeCodec) Table() Table       { return treeTable }
func (treeCodec) progressEvery() int { return 10000 }

func (treeCodec) Save(l *landscape.Landscape, emit func(args ...any) error) error {
	for _, ru := range l.Units() {
		for _, t := range ru.Trees() {
			if t.IsDead() {
				continue
			}
			if t.Species == nil {
				return fmt.Errorf("tree %d: no species", t.ID)
			}
			local := t.Position.Sub(ru.CornerOffset())
			args := append([]any{t.ID, ru.Index(), local.X, local.Y}, treeValuesOf(t).args()...)
			if err := emit(args...); err != nil {
				return err
			}
		}
	}
	return nil
}

func (treeCodec) Load(ctx context.Context, rows *sqlx.Rows, env *loadEnv) error {
	l := env.landscape
	for _, ru := range l.Units() {
		ru.ClearTrees()
	}
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var r TreeRow
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
			return fmt.Errorf("tree %d: %w %q", r.ID, ErrUnknownSpecies, r.Species)
		}
		t := ru.NewTree()
		t.ID = int(r.ID)
		t.Position = ru.CornerOffset().Add(unitOffset(r.PosX, r.PosY))
		r.TreeValues.apply(t, sp)
		env.counter.row()
	}
	return rows.Err()
}

// unitOffset normalizes a stored position to a light cell offset inside a
// resource unit.
func unitOffset(x, y int64) geo.Cell {
	return geo.Cell{X: mathx.Mod(int(x), landscape.CellsPerRU), Y: mathx.Mod(int(y), landscape.CellsPerRU)}
}
