package snapshot

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"forestcore.io/internal/sim/landscape"
)

type snagField struct {
	name string
	ptr  func(s *landscape.Snag) *float64
}

// snagFields lists the real-valued snag columns. Per-class columns are
// generated from the DiameterClass enumeration, one block per statistic.
var snagFields = func() []snagField {
	f := []snagField{{"climateFactor", func(s *landscape.Snag) *float64 { return &s.ClimateFactor }}}
	for c := landscape.DiameterClass(0); c < landscape.NumDiameterClasses; c++ {
		f = append(f,
			snagField{fmt.Sprintf("SWD%dC", c+1), func(s *landscape.Snag) *float64 { return &s.SWD[c].C }},
			snagField{fmt.Sprintf("SWD%dN", c+1), func(s *landscape.Snag) *float64 { return &s.SWD[c].N }},
		)
	}
	f = append(f,
		snagField{"totalSWDC", func(s *landscape.Snag) *float64 { return &s.TotalSWD.C }},
		snagField{"totalSWDN", func(s *landscape.Snag) *float64 { return &s.TotalSWD.N }},
	)
	perClass := []struct {
		prefix string
		values func(s *landscape.Snag) *landscape.ClassValues
	}{
		{"NSnags", func(s *landscape.Snag) *landscape.ClassValues { return &s.NumberOfSnags }},
		{"dbh", func(s *landscape.Snag) *landscape.ClassValues { return &s.AvgDbh }},
		{"height", func(s *landscape.Snag) *landscape.ClassValues { return &s.AvgHeight }},
		{"volume", func(s *landscape.Snag) *landscape.ClassValues { return &s.AvgVolume }},
		{"tsd", func(s *landscape.Snag) *landscape.ClassValues { return &s.TimeSinceDeath }},
		{"ksw", func(s *landscape.Snag) *landscape.ClassValues { return &s.KSW }},
		{"halflife", func(s *landscape.Snag) *landscape.ClassValues { return &s.HalfLife }},
	}
	for _, p := range perClass {
		for c := landscape.DiameterClass(0); c < landscape.NumDiameterClasses; c++ {
			f = append(f, snagField{fmt.Sprintf("%s%d", p.prefix, c+1), func(s *landscape.Snag) *float64 { return &p.values(s)[c] }})
		}
	}
	for i := 0; i < landscape.OtherWoodPools; i++ {
		f = append(f,
			snagField{fmt.Sprintf("branch%dC", i+1), func(s *landscape.Snag) *float64 { return &s.OtherWood[i].C }},
			snagField{fmt.Sprintf("branch%dN", i+1), func(s *landscape.Snag) *float64 { return &s.OtherWood[i].N }},
		)
	}
	return f
}()

var snagTable = func() Table {
	cols := []Column{{Name: "RUIndex", Type: Integer}}
	for _, f := range snagFields {
		cols = append(cols, Column{Name: f.name, Type: Real})
	}
	cols = append(cols, Column{Name: "branchIndex", Type: Integer})
	return Table{Name: "snag", Columns: cols}
}()

type snagCodec struct{}

func (snagCodec) Table() Table       { return snagTable }
func (snagCodec) progressEvery() int { return 1000 }

func (snagCodec) Save(l *landscape.Landscape, emit func(args ...any) error) error {
	for _, ru := range l.Units() {
		snag := ru.Snag()
		args := make([]any, 0, 2+len(snagFields))
		args = append(args, ru.Index())
		for _, f := range snagFields {
			args = append(args, *f.ptr(snag))
		}
		args = append(args, snag.BranchCounter)
		if err := emit(args...); err != nil {
			return err
		}
	}
	return nil
}

func (snagCodec) Load(ctx context.Context, rows *sqlx.Rows, env *loadEnv) error {
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var index, branch int64
		var snag landscape.Snag
		dest := make([]any, 0, 2+len(snagFields))
		dest = append(dest, &index)
		for _, f := range snagFields {
			dest = append(dest, f.ptr(&snag))
		}
		dest = append(dest, &branch)
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		ru, ok := env.resolver.Resolve(int(index))
		if !ok {
			env.counter.skip()
			continue
		}
		snag.BranchCounter = int(branch)
		*ru.Snag() = snag
		env.counter.row()
	}
	return rows.Err()
}
