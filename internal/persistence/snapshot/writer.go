package snapshot

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"

	"forestcore.io/internal/persistence/raster"
	"forestcore.io/internal/sim/landscape"
)

// CreateSnapshot writes the full landscape state to the store at location,
// replacing the snapshot tables, and writes the alignment raster.
func (s *Snapshotter) CreateSnapshot(ctx context.Context, location string) (err error) {
	op := s.begin("create", location, nil)
	defer func() { err = op.finish(err) }()

	store, err := OpenStore(ctx, location, OpenWrite)
	if err != nil {
		return fmt.Errorf("snapshot: open store %s: %w", location, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	for _, c := range fullCodecs() {
		if err := s.saveTable(ctx, store, c, op); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}

	op.wrote(location)

	path := s.RasterPath(location)
	if path == "" {
		op.log.Warn("no alignment raster location; the snapshot can only be loaded with identical geometry")
		return nil
	}
	g, err := s.AlignmentRaster()
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}
	if err := raster.Write(s.fs, path, g); err != nil {
		return fmt.Errorf("snapshot: write alignment raster: %w", err)
	}
	op.wrote(path)
	op.log.Info("alignment raster written", "path", path, "cols", g.NCols, "rows", g.NRows)
	return nil
}

func (s *Snapshotter) saveTable(ctx context.Context, store *Store, c codec, op *operation) error {
	t := c.Table()
	counter := op.counter(t.Name, "write", s.every(c))
	err := store.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := store.recreateTable(ctx, tx, t); err != nil {
			return err
		}
		_, err := store.insertRows(ctx, tx, t, func(emit func(args ...any) error) error {
			return c.Save(s.landscape, func(args ...any) error {
				if err := emit(args...); err != nil {
					return err
				}
				counter.row()
				return nil
			})
		})
		return err
	})
	if err != nil {
		return err
	}
	counter.done()
	return nil
}

// AlignmentRaster builds the raster of the current resource unit grid in
// world coordinates. Cells without a unit hold -1.
func (s *Snapshotter) AlignmentRaster() (*raster.Grid, error) {
	l := s.landscape
	ug := l.UnitGrid()
	origin := l.Mapper().ModelToWorld(ug.Rect().Min)
	g := raster.New(ug.SizeX(), ug.SizeY(), origin, landscape.RUSize, raster.NoValue)
	for i, ru := range ug.Values() {
		if ru == nil {
			continue
		}
		v, err := s.rasterValueOf(ru)
		if err != nil {
			return nil, err
		}
		c := ug.CellOf(i)
		g.Set(c.X, c.Y, v)
	}
	return g, nil
}

func (s *Snapshotter) rasterValueOf(ru *landscape.ResourceUnit) (float64, error) {
	if s.rasterValue == nil {
		return float64(ru.Index()), nil
	}
	out, err := expr.Run(s.rasterValue, rasterEnv(ru, s.landscape))
	if err != nil {
		return 0, fmt.Errorf("raster value for unit %d: %w", ru.Index(), err)
	}
	switch v := out.(type) {
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case float64:
		return v, nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("raster value for unit %d: unsupported result type %T", ru.Index(), out)
	}
}
