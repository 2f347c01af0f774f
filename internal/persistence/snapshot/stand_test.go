package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"forestcore.io/internal/sim/geo"
	"forestcore.io/internal/sim/landscape"
)

// twoStands assigns the western third of the landscape to stand 1 and the
// rest to stand 2.
func twoStands(t *testing.T, l *landscape.Landscape) *landscape.StandGrid {
	t.Helper()
	g, err := landscape.NewStandGrid(l.Extent(), 10)
	if err != nil {
		t.Fatalf("stand grid: %v", err)
	}
	sg := g.Grid()
	for i := range sg.Values() {
		c := sg.CellOf(i)
		if sg.CellCenter(c).X < 100 {
			sg.Set(c, 1)
		} else {
			sg.Set(c, 2)
		}
	}
	return g
}

func standTrees(l *landscape.Landscape, g *landscape.StandGrid, id int) []treeState {
	var out []treeState
	for _, tr := range g.Trees(l, id) {
		out = append(out, treeState{ID: tr.ID, Local: tr.Position, Values: treeValuesOf(tr)})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func standSaplings(l *landscape.Landscape, g *landscape.StandGrid, id int) []saplingState {
	var out []saplingState
	g.SaplingCells(l, id, false, func(c geo.Cell, sc *landscape.SaplingCell, _ *landscape.ResourceUnit) {
		for i, s := range sc.Slots {
			if s.Occupied() {
				out = append(out, saplingState{Local: c, Slot: i, Sap: s})
			}
		}
	})
	return out
}

func dumpStandTrees(t *testing.T, s *Snapshotter, loc string) []StandTreeRow {
	t.Helper()
	store, err := s.standStore(context.Background(), loc)
	if err != nil {
		t.Fatalf("stand store: %v", err)
	}
	var rows []StandTreeRow
	if err := store.DB().Select(&rows, standTreeTable.selectSQL("")+" ORDER BY standID, ID"); err != nil {
		t.Fatalf("select: %v", err)
	}
	return rows
}

func TestStandSnapshotSaveIsIdempotent(t *testing.T) {
	l := newLandscape(t, 1000, 2000, testSpecies)
	populate(t, l)
	grid := twoStands(t, l)
	s := newSnapshotter(t, l)
	loc := filepath.Join(t.TempDir(), "stands.sqlite")
	ctx := context.Background()

	for _, id := range []int{1, 2} {
		if err := s.SaveStandSnapshot(ctx, id, grid, loc); err != nil {
			t.Fatalf("save stand %d: %v", id, err)
		}
	}
	first := dumpStandTrees(t, s, loc)
	if len(first) != 18 {
		t.Fatalf("stored trees=%d want 18", len(first))
	}
	if err := s.SaveStandSnapshot(ctx, 1, grid, loc); err != nil {
		t.Fatalf("save again: %v", err)
	}
	if diff := cmp.Diff(first, dumpStandTrees(t, s, loc)); diff != "" {
		t.Fatalf("re-save changed the store:\n%s", diff)
	}

	// stored positions are world coordinates of light cell centres
	want := l.Mapper().ModelToWorld(l.LightCellCenter(l.Units()[0].Trees()[0].Position))
	if got := (geo.Point{X: first[0].PosX, Y: first[0].PosY}); got != want {
		t.Fatalf("first tree at %v want %v", got, want)
	}
}

func TestStandSnapshotLoadReplacesOnlyThatStand(t *testing.T) {
	l := newLandscape(t, 1000, 2000, testSpecies)
	populate(t, l)
	l.Units()[0].SaplingCell(geo.Cell{X: 5, Y: 5}, false).Slots[0].Flags = landscape.SaplingBrowsed | landscape.SaplingSprout
	grid := twoStands(t, l)
	s := newSnapshotter(t, l)
	loc := filepath.Join(t.TempDir(), "stands.sqlite")
	ctx := context.Background()

	if err := s.SaveStandSnapshot(ctx, 1, grid, loc); err != nil {
		t.Fatalf("save: %v", err)
	}
	savedTrees := standTrees(l, grid, 1)
	savedSaplings := standSaplings(l, grid, 1)
	if len(savedTrees) == 0 || len(savedSaplings) == 0 {
		t.Fatalf("fixture has no stand 1 content")
	}

	// disturb both stands after saving
	for _, tr := range grid.Trees(l, 1) {
		tr.Remove()
	}
	l.CleanTreeLists()
	sp, _ := l.Species().ByID("abal")
	for _, pos := range []geo.Cell{{X: 20, Y: 20}, {X: 120, Y: 20}} {
		ru := l.UnitAtLightCell(pos)
		tr := ru.NewTree()
		tr.ID = 9000 + pos.X
		tr.Species = sp
		tr.Position = pos
		tr.Dbh, tr.Height = 12, 9
		tr.SetupStamp()
	}
	sc, _ := l.SaplingCell(geo.Cell{X: 7, Y: 7}, true)
	sc.Add(0.8, 2, 0)
	l.Units()[0].Soil().SOM.C = 123.5
	l.Units()[0].Snag().NumberOfSnags[2] = 77
	otherTrees := standTrees(l, grid, 2)
	otherSaplings := standSaplings(l, grid, 2)
	soil := *l.Units()[0].Soil()
	snag := *l.Units()[0].Snag()

	if err := s.LoadStandSnapshot(ctx, 1, grid, loc); err != nil {
		t.Fatalf("load: %v", err)
	}
	if diff := cmp.Diff(savedTrees, standTrees(l, grid, 1)); diff != "" {
		t.Fatalf("stand 1 trees (-saved +loaded):\n%s", diff)
	}
	if diff := cmp.Diff(savedSaplings, standSaplings(l, grid, 1)); diff != "" {
		t.Fatalf("stand 1 saplings (-saved +loaded):\n%s", diff)
	}
	if diff := cmp.Diff(otherTrees, standTrees(l, grid, 2)); diff != "" {
		t.Fatalf("stand 2 trees changed:\n%s", diff)
	}
	if diff := cmp.Diff(otherSaplings, standSaplings(l, grid, 2)); diff != "" {
		t.Fatalf("stand 2 saplings changed:\n%s", diff)
	}
	if *l.Units()[0].Soil() != soil {
		t.Fatalf("soil must not be touched by a stand load")
	}
	if diff := cmp.Diff(snag, *l.Units()[0].Snag()); diff != "" {
		t.Fatalf("snag changed by a stand load:\n%s", diff)
	}
	if got := l.Units()[0].Statistics().Count; got != l.Units()[0].LiveTrees() {
		t.Fatalf("statistics count=%d live=%d", got, l.Units()[0].LiveTrees())
	}
}

func TestStandSnapshotFollowsWorldCoordinates(t *testing.T) {
	src := newLandscape(t, 1000, 2000, testSpecies)
	populate(t, src)
	loc := filepath.Join(t.TempDir(), "stands.sqlite")
	ctx := context.Background()
	if err := newSnapshotter(t, src).SaveStandSnapshot(ctx, 2, twoStands(t, src), loc); err != nil {
		t.Fatalf("save: %v", err)
	}
	want := map[int]geo.Point{}
	for _, tr := range twoStands(t, src).Trees(src, 2) {
		want[tr.ID] = src.Mapper().ModelToWorld(src.LightCellCenter(tr.Position))
	}

	// the second project starts 100 m further east, so units of the first
	// column of the source fall outside of it
	rec := &recorder{}
	dst := newLandscape(t, 1100, 2000, testSpecies)
	grid := twoStands(t, dst)
	grid.Grid().Fill(2)
	if err := newSnapshotter(t, dst, WithObserver(rec)).LoadStandSnapshot(ctx, 2, grid, loc); err != nil {
		t.Fatalf("load: %v", err)
	}
	n := 0
	dst.EachTree(func(tr *landscape.Tree) {
		n++
		got := dst.Mapper().ModelToWorld(dst.LightCellCenter(tr.Position))
		if got != want[tr.ID] {
			t.Fatalf("tree %d at %v want %v", tr.ID, got, want[tr.ID])
		}
	})
	if n != len(want) {
		t.Fatalf("loaded %d trees want %d", n, len(want))
	}
	if e, _ := rec.last(EventTableDone, "trees_stand"); e.Skipped != 0 {
		t.Fatalf("skipped=%d", e.Skipped)
	}
}

func TestStandSnapshotUnknownSpeciesIsFatal(t *testing.T) {
	src := newLandscape(t, 0, 0, testSpecies)
	populate(t, src)
	loc := filepath.Join(t.TempDir(), "stands.sqlite")
	ctx := context.Background()
	if err := newSnapshotter(t, src).SaveStandSnapshot(ctx, 1, twoStands(t, src), loc); err != nil {
		t.Fatalf("save: %v", err)
	}
	dst := newLandscape(t, 0, 0, testSpecies[:1])
	err := newSnapshotter(t, dst).LoadStandSnapshot(ctx, 1, twoStands(t, dst), loc)
	if !errors.Is(err, ErrUnknownSpecies) {
		t.Fatalf("expected ErrUnknownSpecies, got %v", err)
	}
}

func TestStandSnapshotRequiresGrid(t *testing.T) {
	l := newLandscape(t, 0, 0, testSpecies)
	s := newSnapshotter(t, l)
	loc := filepath.Join(t.TempDir(), "stands.sqlite")
	if err := s.SaveStandSnapshot(context.Background(), 1, nil, loc); err == nil {
		t.Fatalf("expected error without stand grid")
	}
	if err := s.LoadStandSnapshot(context.Background(), 1, nil, loc); err == nil {
		t.Fatalf("expected error without stand grid")
	}
}
