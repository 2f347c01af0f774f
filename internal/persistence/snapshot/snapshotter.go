// Package snapshot saves the mutable state of a landscape to a relational
// store and restores it, possibly into a landscape whose resource unit grid
// is shifted against the one that wrote the snapshot.
//
// A full snapshot consists of the tables trees, soil, snag and saplings plus
// an ESRI ASCII alignment raster next to the store that records the
// resource unit index of every grid cell. A stand snapshot covers the trees
// and saplings of one stand in the tables trees_stand and saplings_stand.
package snapshot

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"forestcore.io/internal/sim/landscape"
)

// DefaultRasterValue writes the resource unit index into the alignment
// raster. Stores are only reloadable with rasters holding unit indices.
const DefaultRasterValue = "index"

// Snapshotter runs snapshot operations against one landscape. It is not safe
// for concurrent use.
type Snapshotter struct {
	landscape *landscape.Landscape
	fs        afero.Fs
	log       hclog.Logger
	observer  Observer

	rasterPath  string
	rasterExpr  string
	rasterValue *vm.Program

	// progressEvery overrides the per-table progress interval when > 0.
	progressEvery int

	standStores map[string]*Store
}

type Option func(*Snapshotter)

func WithLogger(log hclog.Logger) Option {
	return func(s *Snapshotter) { s.log = log }
}

// WithFs sets the filesystem used for alignment rasters.
func WithFs(fs afero.Fs) Option {
	return func(s *Snapshotter) { s.fs = fs }
}

func WithObserver(o Observer) Option {
	return func(s *Snapshotter) { s.observer = o }
}

// WithRasterPath pins the alignment raster location instead of deriving it
// from the store location. Required to get a raster for postgres stores.
func WithRasterPath(path string) Option {
	return func(s *Snapshotter) { s.rasterPath = path }
}

// WithRasterValue sets the expression evaluated per resource unit to fill
// the alignment raster. The environment provides index, id, x and y (world
// coordinates of the unit centre).
func WithRasterValue(expression string) Option {
	return func(s *Snapshotter) { s.rasterExpr = expression }
}

// WithProgressEvery reports progress every n rows for every table instead
// of the table defaults.
func WithProgressEvery(n int) Option {
	return func(s *Snapshotter) { s.progressEvery = n }
}

func New(l *landscape.Landscape, opts ...Option) (*Snapshotter, error) {
	s := &Snapshotter{
		landscape:   l,
		fs:          afero.NewOsFs(),
		log:         hclog.NewNullLogger(),
		rasterExpr:  DefaultRasterValue,
		standStores: make(map[string]*Store),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("snapshot")

	if e := strings.TrimSpace(s.rasterExpr); e != "" && e != DefaultRasterValue {
		prog, err := expr.Compile(e, expr.Env(rasterEnv(nil, l)))
		if err != nil {
			return nil, fmt.Errorf("raster value expression %q: %w", e, err)
		}
		s.rasterValue = prog
		s.log.Warn("alignment raster uses a custom value expression; stores written with it cannot be remapped on load", "expression", e)
	}
	return s, nil
}

func (s *Snapshotter) Landscape() *landscape.Landscape { return s.landscape }

// RasterPath returns the alignment raster location belonging to a store
// location, or "" when there is none.
func (s *Snapshotter) RasterPath(location string) string {
	if s.rasterPath != "" {
		return s.rasterPath
	}
	if DialectFor(location) == Postgres {
		return ""
	}
	dir, base := filepath.Split(location)
	return filepath.Join(dir, strings.TrimSuffix(base, filepath.Ext(base))+".asc")
}

func (s *Snapshotter) every(c codec) int {
	if s.progressEvery > 0 {
		return s.progressEvery
	}
	return c.progressEvery()
}

// Close closes the stand stores kept open between stand operations.
func (s *Snapshotter) Close() error {
	var result *multierror.Error
	for loc, st := range s.standStores {
		if err := st.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", loc, err))
		}
		delete(s.standStores, loc)
	}
	return result.ErrorOrNil()
}

func rasterEnv(ru *landscape.ResourceUnit, l *landscape.Landscape) map[string]any {
	env := map[string]any{"index": 0, "id": 0, "x": 0.0, "y": 0.0}
	if ru != nil {
		c := l.Mapper().ModelToWorld(ru.BoundingBox().Center())
		env["index"] = ru.Index()
		env["id"] = ru.ID()
		env["x"] = c.X
		env["y"] = c.Y
	}
	return env
}
