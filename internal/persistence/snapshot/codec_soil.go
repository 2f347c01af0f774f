package snapshot

import (
	"context"

	"github.com/jmoiron/sqlx"

	"forestcore.io/internal/sim/landscape"
)

type soilState struct {
	soil  landscape.Soil
	water landscape.WaterCycle
}

type soilField struct {
	name string
	ptr  func(s *soilState) *float64
}

var soilFields = []soilField{
	{"kyl", func(s *soilState) *float64 { return &s.soil.Kyl }},
	{"kyr", func(s *soilState) *float64 { return &s.soil.Kyr }},
	{"inLabC", func(s *soilState) *float64 { return &s.soil.InputLab.C }},
	{"inLabN", func(s *soilState) *float64 { return &s.soil.InputLab.N }},
	{"inLabP", func(s *soilState) *float64 { return &s.soil.InputLab.Parameter }},
	{"inRefC", func(s *soilState) *float64 { return &s.soil.InputRef.C }},
	{"inRefN", func(s *soilState) *float64 { return &s.soil.InputRef.N }},
	{"inRefP", func(s *soilState) *float64 { return &s.soil.InputRef.Parameter }},
	{"YLC", func(s *soilState) *float64 { return &s.soil.YL.C }},
	{"YLN", func(s *soilState) *float64 { return &s.soil.YL.N }},
	{"YLP", func(s *soilState) *float64 { return &s.soil.YL.Parameter }},
	{"YRC", func(s *soilState) *float64 { return &s.soil.YR.C }},
	{"YRN", func(s *soilState) *float64 { return &s.soil.YR.N }},
	{"YRP", func(s *soilState) *float64 { return &s.soil.YR.Parameter }},
	{"SOMC", func(s *soilState) *float64 { return &s.soil.SOM.C }},
	{"SOMN", func(s *soilState) *float64 { return &s.soil.SOM.N }},
	{"WaterContent", func(s *soilState) *float64 { return &s.water.Content }},
	{"SnowPack", func(s *soilState) *float64 { return &s.water.SnowPack }},
}

var soilTable = func() Table {
	cols := []Column{{Name: "RUindex", Type: Integer}}
	for _, f := range soilFields {
		cols = append(cols, Column{Name: f.name, Type: Real})
	}
	return Table{Name: "soil", Columns: cols}
}()

type soilCodec struct{}

func (soilCodec) Table() Table       { return soilTable }
func (soilCodec) progressEvery() int { return 1000 }

func (soilCodec) Save(l *landscape.Landscape, emit func(args ...any) error) error {
	for _, ru := range l.Units() {
		st := soilState{soil: *ru.Soil(), water: *ru.Water()}
		args := make([]any, 0, 1+len(soilFields))
		args = append(args, ru.Index())
		for _, f := range soilFields {
			args = append(args, *f.ptr(&st))
		}
		if err := emit(args...); err != nil {
			return err
		}
	}
	return nil
}

func (soilCodec) Load(ctx context.Context, rows *sqlx.Rows, env *loadEnv) error {
	for rows.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var index int64
		var st soilState
		dest := make([]any, 0, 1+len(soilFields))
		dest = append(dest, &index)
		for _, f := range soilFields {
			dest = append(dest, f.ptr(&st))
		}
		if err := rows.Scan(dest...); err != nil {
			return err
		}
		ru, ok := env.resolver.Resolve(int(index))
		if !ok {
			env.counter.skip()
			continue
		}
		*ru.Soil() = st.soil
		*ru.Water() = st.water
		env.counter.row()
	}
	return rows.Err()
}
