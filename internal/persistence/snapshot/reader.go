package snapshot

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"

	"forestcore.io/internal/persistence/raster"
)

// LoadSnapshot restores the full landscape state from the store at
// location. Trees are replaced, soil and snag pools overwritten and saplings
// added; afterwards the light pattern and all stand statistics are rebuilt.
func (s *Snapshotter) LoadSnapshot(ctx context.Context, location string) (err error) {
	op := s.begin("load", location, nil)
	defer func() { err = op.finish(err) }()

	store, err := OpenStore(ctx, location, OpenRead)
	if err != nil {
		return fmt.Errorf("snapshot: open store %s: %w", location, err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	resolver, err := s.resolverFor(location, op)
	if err != nil {
		return fmt.Errorf("snapshot: %w", err)
	}

	env := &loadEnv{landscape: s.landscape, resolver: resolver}
	for _, c := range fullCodecs() {
		if err := s.loadTable(ctx, store, c, env, op); err != nil {
			return fmt.Errorf("snapshot: %w", err)
		}
	}

	s.landscape.ApplyLightPattern()
	s.landscape.RecreateStatistics()
	op.log.Info("light pattern and stand statistics recomputed", "trees", s.landscape.TreeCount())
	return nil
}

// resolverFor builds the unit resolver from the alignment raster, falling
// back to identity mapping when the raster is missing or unreadable.
func (s *Snapshotter) resolverFor(location string, op *operation) (*UnitResolver, error) {
	path := s.RasterPath(location)
	if path == "" {
		op.log.Info("no alignment raster location, assuming identical unit indexing")
		op.emit(Event{Kind: EventFallback, Message: "no alignment raster location"})
		return NewIdentityResolver(s.landscape), nil
	}
	g, err := raster.Read(s.fs, path)
	if err != nil {
		op.log.Info("alignment raster unavailable, assuming identical unit indexing", "path", path, "error", err)
		op.emit(Event{Kind: EventFallback, Message: err.Error()})
		return NewIdentityResolver(s.landscape), nil
	}
	r, err := NewRasterResolver(s.landscape, g, path)
	if err != nil {
		return nil, err
	}
	op.log.Info("alignment raster loaded", "path", path, "mapped_units", r.Len())
	return r, nil
}

func (s *Snapshotter) loadTable(ctx context.Context, store *Store, c codec, env *loadEnv, op *operation) error {
	t := c.Table()
	rows, err := store.query(ctx, t, "")
	if err != nil {
		return err
	}
	defer rows.Close()

	env.counter = op.counter(t.Name, "read", s.every(c))
	if err := c.Load(ctx, rows, env); err != nil {
		return fmt.Errorf("%s: %w", t.Name, err)
	}
	env.counter.done()
	return nil
}
