package snapshot

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"forestcore.io/internal/sim/geo"
	"forestcore.io/internal/sim/landscape"
)

var standTreeTable = Table{
	Name: "trees_stand",
	Columns: concatColumns(
		[]Column{
			{Name: "standID", Type: Integer},
			{Name: "ID", Type: Integer},
			{Name: "posX", Type: Real},
			{Name: "posY", Type: Real},
		},
		treeValueColumns,
	),
}

var standSaplingTable = Table{
	Name: "saplings_stand",
	Columns: []Column{
		{Name: "standID", Type: Integer},
		{Name: "posx", Type: Real},
		{Name: "posy", Type: Real},
		{Name: "species_index", Type: Integer},
		{Name: "age", Type: Integer},
		{Name: "height", Type: Real},
		{Name: "stress_years", Type: Integer},
		{Name: "flags", Type: Integer},
	},
}

// StandTreeRow is a row of trees_stand. PosX/PosY are world coordinates of
// the centre of the tree's light cell, so stands survive a relocation of the
// project origin.
type StandTreeRow struct {
	StandID int64   `db:"standid"`
	ID      int64   `db:"id"`
	PosX    float64 `db:"posx"`
	PosY    float64 `db:"posy"`
	TreeValues
}

// StandSaplingRow is a row of saplings_stand in world coordinates.
type StandSaplingRow struct {
	StandID      int64   `db:"standid"`
	PosX         float64 `db:"posx"`
	PosY         float64 `db:"posy"`
	SpeciesIndex int64   `db:"species_index"`
	Age          int64   `db:"age"`
	Height       float64 `db:"height"`
	StressYears  int64   `db:"stress_years"`
	Flags        int64   `db:"flags"`
}

// standStore opens the stand store at location once and keeps it open for
// later stand operations.
func (s *Snapshotter) standStore(ctx context.Context, location string) (*Store, error) {
	if st, ok := s.standStores[location]; ok {
		return st, nil
	}
	st, err := OpenStore(ctx, location, OpenWrite)
	if err != nil {
		return nil, err
	}
	for _, t := range []Table{standTreeTable, standSaplingTable} {
		if err := st.ensureTable(ctx, t); err != nil {
			_ = st.Close()
			return nil, err
		}
	}
	s.standStores[location] = st
	return st, nil
}

// SaveStandSnapshot replaces the stored trees and saplings of standID with
// the live ones. Rows of other stands are left alone.
func (s *Snapshotter) SaveStandSnapshot(ctx context.Context, standID int, grid *landscape.StandGrid, location string) (err error) {
	op := s.begin("stand_save", location, &standID)
	defer func() { err = op.finish(err) }()

	if grid == nil {
		return fmt.Errorf("stand snapshot: no stand grid")
	}
	store, err := s.standStore(ctx, location)
	if err != nil {
		return fmt.Errorf("stand snapshot: open store %s: %w", location, err)
	}

	l := s.landscape
	mapper := l.Mapper()
	trees := op.counter(standTreeTable.Name, "write", s.every(treeCodec{}))
	saplings := op.counter(standSaplingTable.Name, "write", s.every(saplingCodec{}))
	err = store.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, t := range []Table{standTreeTable, standSaplingTable} {
			if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM "+t.Name+" WHERE standID = ?"), standID); err != nil {
				return fmt.Errorf("%s: %w", t.Name, err)
			}
		}

		_, err := store.insertRows(ctx, tx, standTreeTable, func(emit func(args ...any) error) error {
			for _, t := range grid.Trees(l, standID) {
				p := mapper.ModelToWorld(l.LightCellCenter(t.Position))
				args := append([]any{standID, t.ID, p.X, p.Y}, treeValuesOf(t).args()...)
				if err := emit(args...); err != nil {
					return err
				}
				trees.row()
			}
			return nil
		})
		if err != nil || !l.RegenerationEnabled() {
			return err
		}

		_, err = store.insertRows(ctx, tx, standSaplingTable, func(emit func(args ...any) error) error {
			var err error
			grid.SaplingCells(l, standID, false, func(c geo.Cell, sc *landscape.SaplingCell, _ *landscape.ResourceUnit) {
				if err != nil {
					return
				}
				p := mapper.ModelToWorld(l.LightCellCenter(c))
				for _, sap := range sc.Slots {
					if !sap.Occupied() {
						continue
					}
					if err = emit(standID, p.X, p.Y, sap.SpeciesIndex, sap.Age, sap.Height, int(sap.StressYears), int(sap.Flags)); err != nil {
						return
					}
					saplings.row()
				}
			})
			return err
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("stand snapshot: %w", err)
	}
	trees.done()
	saplings.done()
	op.wrote(location)
	return nil
}

// LoadStandSnapshot replaces the live trees and saplings of standID with the
// stored ones. Soil and snag pools are not touched.
func (s *Snapshotter) LoadStandSnapshot(ctx context.Context, standID int, grid *landscape.StandGrid, location string) (err error) {
	op := s.begin("stand_load", location, &standID)
	defer func() { err = op.finish(err) }()

	if grid == nil {
		return fmt.Errorf("stand snapshot: no stand grid")
	}
	store, err := s.standStore(ctx, location)
	if err != nil {
		return fmt.Errorf("stand snapshot: open store %s: %w", location, err)
	}

	l := s.landscape
	var touched []*landscape.ResourceUnit
	seen := make(map[*landscape.ResourceUnit]bool)
	touch := func(ru *landscape.ResourceUnit) {
		if !seen[ru] {
			seen[ru] = true
			touched = append(touched, ru)
		}
	}

	removedTrees := 0
	for _, t := range grid.Trees(l, standID) {
		t.Remove()
		touch(t.ResourceUnit())
		removedTrees++
	}
	removedSaplings := 0
	grid.SaplingCells(l, standID, false, func(_ geo.Cell, sc *landscape.SaplingCell, ru *landscape.ResourceUnit) {
		if n := sc.Occupied(); n > 0 {
			removedSaplings += n
			touch(ru)
		}
		sc.Clear()
	})
	l.CleanTreeLists()

	trees := op.counter(standTreeTable.Name, "read", s.every(treeCodec{}))
	if err := s.loadStandTrees(ctx, store, standID, trees, touch); err != nil {
		return fmt.Errorf("stand snapshot: %w", err)
	}
	trees.done()

	if l.RegenerationEnabled() {
		saplings := op.counter(standSaplingTable.Name, "read", s.every(saplingCodec{}))
		if err := s.loadStandSaplings(ctx, store, standID, saplings, touch); err != nil {
			return fmt.Errorf("stand snapshot: %w", err)
		}
		saplings.done()
	}

	for _, ru := range touched {
		ru.RecreateStandStatistics()
	}
	op.log.Info("stand replaced", "removed_trees", removedTrees, "removed_saplings", removedSaplings, "units", len(touched))
	return nil
}

func (s *Snapshotter) loadStandTrees(ctx context.Context, store *Store, standID int, counter *tableCounter, touch func(*landscape.ResourceUnit)) error {
	rows, err := store.query(ctx, standTreeTable, "standID = ?", standID)
	if err != nil {
		return err
	}
	defer rows.Close()

	l := s.landscape
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var r StandTreeRow
		if err := rows.StructScan(&r); err != nil {
			return fmt.Errorf("%s: %w", standTreeTable.Name, err)
		}
		p := l.Mapper().WorldToModel(geo.Point{X: r.PosX, Y: r.PosY})
		if !l.Extent().Contains(p) {
			counter.skip()
			continue
		}
		ru := l.UnitAt(p)
		if ru == nil {
			counter.skip()
			continue
		}
		sp, ok := l.Species().ByID(r.Species)
		if !ok {
			return fmt.Errorf("%s: tree %d: %w %q", standTreeTable.Name, r.ID, ErrUnknownSpecies, r.Species)
		}
		t := ru.NewTree()
		t.ID = int(r.ID)
		t.Position = l.LightCellAt(p)
		r.TreeValues.apply(t, sp)
		touch(ru)
		counter.row()
	}
	return rows.Err()
}

func (s *Snapshotter) loadStandSaplings(ctx context.Context, store *Store, standID int, counter *tableCounter, touch func(*landscape.ResourceUnit)) error {
	rows, err := store.query(ctx, standSaplingTable, "standID = ?", standID)
	if err != nil {
		return err
	}
	defer rows.Close()

	l := s.landscape
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var r StandSaplingRow
		if err := rows.StructScan(&r); err != nil {
			return fmt.Errorf("%s: %w", standSaplingTable.Name, err)
		}
		p := l.Mapper().WorldToModel(geo.Point{X: r.PosX, Y: r.PosY})
		if !l.Extent().Contains(p) {
			counter.skip()
			continue
		}
		if r.Height <= 0 {
			counter.skip()
			continue
		}
		sc, ru := l.SaplingCell(l.LightCellAt(p), true)
		if sc == nil {
			counter.skip()
			continue
		}
		sp, ok := l.Species().ByIndex(int(r.SpeciesIndex))
		if !ok {
			return fmt.Errorf("%s: %w index %d", standSaplingTable.Name, ErrUnknownSpecies, r.SpeciesIndex)
		}
		sap := sc.Add(r.Height, int(r.Age), sp.Index)
		if sap == nil {
			counter.reject()
			continue
		}
		sap.StressYears = uint8(r.StressYears)
		sap.Flags = uint8(r.Flags)
		touch(ru)
		counter.row()
	}
	return rows.Err()
}
