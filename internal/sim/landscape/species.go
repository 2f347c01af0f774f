package landscape

import (
	"fmt"
	"math"
	"strings"

	"forestcore.io/internal/sim/mathx"
)

const (
	dbhClassWidth = 2.0 // cm
	dbhClasses    = 100
	hdClassWidth  = 10.0
	hdClassMin    = 35.0
	hdClasses     = 16
)

// SpeciesParams configures one species of a SpeciesSet.
type SpeciesParams struct {
	ID          string
	Name        string
	CrownFactor float64
}

type Species struct {
	ID          string
	Index       int
	Name        string
	CrownFactor float64

	stamps map[stampKey]*Stamp
}

type stampKey struct {
	dbh, hd int
}

// Stamp returns the light stamp for a tree of the given dimensions. Stamps are
// cached per (dbh class, h/d class), so equal inputs yield the same *Stamp.
func (s *Species) Stamp(dbh, height float64) *Stamp {
	key := stampKey{dbh: dbhClass(dbh), hd: hdClass(dbh, height)}
	if st, ok := s.stamps[key]; ok {
		return st
	}
	if s.stamps == nil {
		s.stamps = make(map[stampKey]*Stamp)
	}
	st := newStamp(key, s.CrownFactor)
	s.stamps[key] = st
	return st
}

func dbhClass(dbh float64) int {
	if dbh <= 0 {
		return 0
	}
	return mathx.ClampInt(int(dbh/dbhClassWidth), 0, dbhClasses-1)
}

func hdClass(dbh, height float64) int {
	if dbh <= 0 {
		return 0
	}
	hd := height * 100 / dbh
	return mathx.ClampInt(int((hd-hdClassMin)/hdClassWidth), 0, hdClasses-1)
}

// Stamp is a square kernel of shading weights centred on a tree's light cell.
type Stamp struct {
	DbhClass int
	HDClass  int
	Radius   int

	weights []float64
}

func newStamp(key stampKey, crownFactor float64) *Stamp {
	if crownFactor <= 0 {
		crownFactor = 1
	}
	dbhMid := (float64(key.dbh) + 0.5) * dbhClassWidth
	// slender trees carry narrower crowns
	crown := crownFactor * (0.7 + 0.1*dbhMid) * (1.2 - 0.02*float64(key.hd))
	radius := int(math.Ceil(crown/LightCellSize)) - 1
	if radius < 0 {
		radius = 0
	}
	size := 2*radius + 1
	st := &Stamp{DbhClass: key.dbh, HDClass: key.hd, Radius: radius, weights: make([]float64, size*size)}
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			d := math.Hypot(float64(dx), float64(dy)) * LightCellSize
			w := 1 - d/(crown+LightCellSize)
			if w < 0 {
				w = 0
			}
			st.weights[(dy+radius)*size+dx+radius] = w
		}
	}
	return st
}

func (s *Stamp) Size() int { return 2*s.Radius + 1 }

// Weight returns the shading weight at offset (dx,dy) from the centre cell.
func (s *Stamp) Weight(dx, dy int) float64 {
	if mathx.AbsInt(dx) > s.Radius || mathx.AbsInt(dy) > s.Radius {
		return 0
	}
	return s.weights[(dy+s.Radius)*s.Size()+dx+s.Radius]
}

// SpeciesSet is the ordered set of species known to a landscape.
type SpeciesSet struct {
	list []*Species
	byID map[string]*Species
}

func NewSpeciesSet(params []SpeciesParams) (*SpeciesSet, error) {
	ss := &SpeciesSet{byID: make(map[string]*Species, len(params))}
	for _, p := range params {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return nil, fmt.Errorf("species %d: empty id", len(ss.list))
		}
		if _, dup := ss.byID[id]; dup {
			return nil, fmt.Errorf("species %q: duplicate id", id)
		}
		sp := &Species{ID: id, Index: len(ss.list), Name: p.Name, CrownFactor: p.CrownFactor}
		if sp.CrownFactor <= 0 {
			sp.CrownFactor = 1
		}
		ss.list = append(ss.list, sp)
		ss.byID[id] = sp
	}
	return ss, nil
}

func (ss *SpeciesSet) Len() int        { return len(ss.list) }
func (ss *SpeciesSet) All() []*Species { return ss.list }

func (ss *SpeciesSet) ByID(id string) (*Species, bool) {
	sp, ok := ss.byID[id]
	return sp, ok
}

func (ss *SpeciesSet) ByIndex(i int) (*Species, bool) {
	if i < 0 || i >= len(ss.list) {
		return nil, false
	}
	return ss.list[i], true
}
