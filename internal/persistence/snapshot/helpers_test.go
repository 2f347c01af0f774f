package snapshot

import (
	"sort"
	"testing"

	"forestcore.io/internal/sim/geo"
	"forestcore.io/internal/sim/landscape"
)

var testSpecies = []landscape.SpeciesParams{
	{ID: "piab", Name: "Picea abies"},
	{ID: "fasy", Name: "Fagus sylvatica", CrownFactor: 1.2},
	{ID: "abal", Name: "Abies alba"},
}

func newLandscape(t *testing.T, originX, originY float64, species []landscape.SpeciesParams) *landscape.Landscape {
	t.Helper()
	l, err := landscape.New(landscape.Config{
		Origin:              geo.Point{X: originX, Y: originY},
		Width:               300,
		Height:              200,
		Species:             species,
		RegenerationEnabled: true,
	})
	if err != nil {
		t.Fatalf("landscape: %v", err)
	}
	return l
}

// populate fills every unit with distinguishable trees, pools and saplings.
func populate(t *testing.T, l *landscape.Landscape) {
	t.Helper()
	all := l.Species().All()
	for _, ru := range l.Units() {
		i := ru.Index()
		for k := 0; k < 3; k++ {
			tr := ru.NewTree()
			tr.ID = i*10 + k
			tr.Species = all[(i+k)%len(all)]
			tr.Position = ru.CornerOffset().Add(geo.Cell{X: i + 1, Y: 2*k + 3})
			tr.Age = 20 + i + k
			tr.Height = 8 + float64(i) + 0.5*float64(k)
			tr.Dbh = 10 + float64(i) + 7*float64(k)
			tr.LeafArea = 30 + float64(k)
			tr.Opacity = 0.4 + 0.1*float64(k)
			tr.FoliageMass = 11.5 + float64(i)
			tr.WoodyMass = 210.25 + float64(k)
			tr.FineRootMass = 3.125
			tr.CoarseRootMass = 40 + float64(i)
			tr.NPPReserve = 5.5 + float64(k)
			tr.StressIndex = 0.01 * float64(k)
			tr.SetupStamp()
		}

		st := soilState{}
		for j, f := range soilFields {
			*f.ptr(&st) = float64(i*100+j) + 0.25
		}
		*ru.Soil() = st.soil
		*ru.Water() = st.water

		snag := ru.Snag()
		for j, f := range snagFields {
			*f.ptr(snag) = float64(i*1000+j) + 0.5
		}
		snag.BranchCounter = i % landscape.OtherWoodPools

		sc := ru.SaplingCell(ru.CornerOffset().Add(geo.Cell{X: 5, Y: 5}), true)
		sc.Add(0.5+float64(i), 3, 0).StressYears = 1
		sc.Add(1.25, 6, 2)
		edge := ru.SaplingCell(ru.CornerOffset().Add(geo.Cell{X: 49, Y: 0}), true)
		edge.Add(2.5, 9, 1).StressYears = 4
	}
}

type treeState struct {
	ID     int
	Local  geo.Cell
	Values TreeValues
}

type saplingState struct {
	Local geo.Cell
	Slot  int
	Sap   landscape.Sapling
}

type unitState struct {
	Trees    []treeState
	Soil     landscape.Soil
	Water    landscape.WaterCycle
	Snag     landscape.Snag
	Saplings []saplingState
}

func captureUnit(ru *landscape.ResourceUnit) unitState {
	u := unitState{Soil: *ru.Soil(), Water: *ru.Water(), Snag: *ru.Snag()}
	for _, tr := range ru.Trees() {
		if tr.IsDead() {
			continue
		}
		u.Trees = append(u.Trees, treeState{ID: tr.ID, Local: tr.Position.Sub(ru.CornerOffset()), Values: treeValuesOf(tr)})
	}
	sort.Slice(u.Trees, func(a, b int) bool { return u.Trees[a].ID < u.Trees[b].ID })
	ru.EachSaplingCell(func(c geo.Cell, sc *landscape.SaplingCell) {
		for i, s := range sc.Slots {
			if s.Occupied() {
				u.Saplings = append(u.Saplings, saplingState{Local: c.Sub(ru.CornerOffset()), Slot: i, Sap: s})
			}
		}
	})
	return u
}

func captureAll(l *landscape.Landscape) []unitState {
	out := make([]unitState, len(l.Units()))
	for i, ru := range l.Units() {
		out[i] = captureUnit(ru)
	}
	return out
}

type recorder struct {
	events []Event
}

func (r *recorder) Observe(e Event) { r.events = append(r.events, e) }

func (r *recorder) last(kind EventKind, table string) (Event, bool) {
	for i := len(r.events) - 1; i >= 0; i-- {
		if e := r.events[i]; e.Kind == kind && e.Table == table {
			return e, true
		}
	}
	return Event{}, false
}

func newSnapshotter(t *testing.T, l *landscape.Landscape, opts ...Option) *Snapshotter {
	t.Helper()
	s, err := New(l, opts...)
	if err != nil {
		t.Fatalf("snapshotter: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
