package snapshot

import (
	"context"

	"github.com/jmoiron/sqlx"

	"forestcore.io/internal/sim/landscape"
)

// codec persists one entity collection of the landscape in one table.
type codec interface {
	Table() Table
	// Save emits one row per entity in Table column order.
	Save(l *landscape.Landscape, emit func(args ...any) error) error
	// Load restores the entities from rows selected with Table().selectSQL.
	Load(ctx context.Context, rows *sqlx.Rows, env *loadEnv) error
	// progressEvery is the row interval of progress reports.
	progressEvery() int
}

type loadEnv struct {
	landscape *landscape.Landscape
	resolver  *UnitResolver
	counter   *tableCounter
}

// fullCodecs returns the codecs of a full snapshot in load order.
func fullCodecs() []codec {
	return []codec{treeCodec{}, soilCodec{}, snagCodec{}, saplingCodec{}}
}

func realColumns(names ...string) []Column {
	out := make([]Column, len(names))
	for i, n := range names {
		out[i] = Column{Name: n, Type: Real}
	}
	return out
}

func concatColumns(parts ...[]Column) []Column {
	var out []Column
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
