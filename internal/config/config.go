// Package config loads the YAML configuration of the snapshot tooling.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"forestcore.io/internal/logging"
	"forestcore.io/internal/persistence/raster"
	"forestcore.io/internal/sim/geo"
	"forestcore.io/internal/sim/landscape"
)

//go:embed schema.json
var schemaSource string

var schema = jsonschema.MustCompileString("config.schema.json", schemaSource)

type Config struct {
	World    World          `yaml:"world"`
	Species  []Species      `yaml:"species"`
	Stands   Stands         `yaml:"stands"`
	Snapshot Snapshot       `yaml:"snapshot"`
	Archive  Archive        `yaml:"archive"`
	Mirror   Mirror         `yaml:"mirror"`
	Journal  Journal        `yaml:"journal"`
	Logging  logging.Config `yaml:"logging"`
	Metrics  Metrics        `yaml:"metrics"`
	Server   Server         `yaml:"server"`
}

type Point struct {
	X float64 `yaml:"x"`
	Y float64 `yaml:"y"`
}

type World struct {
	Origin Point   `yaml:"origin"`
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
	// UnitRaster is an optional ESRI grid of resource unit ids; cells with
	// negative or no-data values carry no unit.
	UnitRaster   string `yaml:"unit_raster"`
	Regeneration *bool  `yaml:"regeneration"`
}

type Species struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	CrownFactor float64 `yaml:"crown_factor"`
}

type Stands struct {
	Raster   string  `yaml:"raster"`
	CellSize float64 `yaml:"cell_size"`
	Store    string  `yaml:"store"`
}

type Snapshot struct {
	Dir           string `yaml:"dir"`
	RasterValue   string `yaml:"raster_value"`
	RasterPath    string `yaml:"raster_path"`
	ProgressEvery int    `yaml:"progress_every"`
}

type Archive struct {
	Dir string `yaml:"dir"`
}

type Mirror struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	PathStyle       bool   `yaml:"path_style"`
	Prefix          string `yaml:"prefix"`
	Workers         int    `yaml:"workers"`
	QueueCapacity   int    `yaml:"queue_capacity"`
	EnqueueWaitMs   int    `yaml:"enqueue_wait_ms"`
}

type Journal struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

type Metrics struct {
	Enabled bool `yaml:"enabled"`
}

type Server struct {
	Addr        string `yaml:"addr"`
	AllowRemote bool   `yaml:"allow_remote"`
}

// Load reads and validates the configuration at path. Relative paths inside
// the file are resolved against its directory.
func Load(fs afero.Fs, path string) (Config, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return Config{}, err
	}
	c, err := Parse(raw)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	c.resolvePaths(filepath.Dir(path))
	return c, nil
}

// Parse validates raw YAML against the schema, decodes it and applies
// defaults.
func Parse(raw []byte) (Config, error) {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	// the validator expects JSON value types
	b, err := json.Marshal(doc)
	if err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	var normalized any
	if err := json.Unmarshal(b, &normalized); err != nil {
		return Config{}, err
	}
	if err := schema.Validate(normalized); err != nil {
		return Config{}, fmt.Errorf("schema: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return Config{}, fmt.Errorf("yaml: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) applyDefaults() {
	if c.World.Regeneration == nil {
		on := true
		c.World.Regeneration = &on
	}
	if c.Stands.CellSize == 0 {
		c.Stands.CellSize = 10
	}
	if c.Snapshot.Dir == "" {
		c.Snapshot.Dir = "./data/snapshots"
	}
	if c.Snapshot.RasterValue == "" {
		c.Snapshot.RasterValue = "index"
	}
	if c.Stands.Store == "" {
		c.Stands.Store = filepath.Join(c.Snapshot.Dir, "stands.sqlite")
	}
	if c.Archive.Dir == "" {
		c.Archive.Dir = "./data/archives"
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = "./data/journal"
	}
	if c.Mirror.Region == "" {
		c.Mirror.Region = "us-east-1"
	}
	if c.Mirror.Workers == 0 {
		c.Mirror.Workers = 2
	}
	if c.Mirror.QueueCapacity == 0 {
		c.Mirror.QueueCapacity = 256
	}
	if c.Mirror.EnqueueWaitMs == 0 {
		c.Mirror.EnqueueWaitMs = 25
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8080"
	}
}

// Validate checks constraints the schema cannot express.
func (c Config) Validate() error {
	var result *multierror.Error
	for _, v := range []struct {
		name  string
		value float64
	}{{"world.width", c.World.Width}, {"world.height", c.World.Height}} {
		if math.Abs(math.Remainder(v.value, landscape.RUSize)) > 1e-6 {
			result = multierror.Append(result, fmt.Errorf("%s %g is not a multiple of %g", v.name, v.value, landscape.RUSize))
		}
	}
	if math.Abs(math.Remainder(c.Stands.CellSize, landscape.LightCellSize)) > 1e-9 {
		result = multierror.Append(result, fmt.Errorf("stands.cell_size %g is not a multiple of %g", c.Stands.CellSize, landscape.LightCellSize))
	}
	seen := make(map[string]bool, len(c.Species))
	for _, sp := range c.Species {
		if seen[sp.ID] {
			result = multierror.Append(result, fmt.Errorf("species %q listed twice", sp.ID))
		}
		seen[sp.ID] = true
	}
	if c.Mirror.Enabled && strings.TrimSpace(c.Mirror.Bucket) == "" {
		result = multierror.Append(result, fmt.Errorf("mirror.bucket is required when the mirror is enabled"))
	}
	return result.ErrorOrNil()
}

func (c *Config) resolvePaths(base string) {
	for _, p := range []*string{
		&c.World.UnitRaster, &c.Stands.Raster, &c.Stands.Store,
		&c.Snapshot.Dir, &c.Snapshot.RasterPath, &c.Archive.Dir, &c.Journal.Dir,
	} {
		if *p != "" && !filepath.IsAbs(*p) && !strings.Contains(*p, "://") {
			*p = filepath.Join(base, *p)
		}
	}
}

// SpeciesParams converts the species list for the landscape.
func (c Config) SpeciesParams() []landscape.SpeciesParams {
	out := make([]landscape.SpeciesParams, len(c.Species))
	for i, sp := range c.Species {
		out[i] = landscape.SpeciesParams{ID: sp.ID, Name: sp.Name, CrownFactor: sp.CrownFactor}
	}
	return out
}

// Landscape builds the landscape described by the world and species
// sections.
func (c Config) Landscape(fs afero.Fs) (*landscape.Landscape, error) {
	lc := landscape.Config{
		Origin:              geo.Point{X: c.World.Origin.X, Y: c.World.Origin.Y},
		Width:               c.World.Width,
		Height:              c.World.Height,
		Species:             c.SpeciesParams(),
		RegenerationEnabled: c.World.Regeneration == nil || *c.World.Regeneration,
	}
	if c.World.UnitRaster != "" {
		g, err := raster.Read(fs, c.World.UnitRaster)
		if err != nil {
			return nil, fmt.Errorf("unit raster: %w", err)
		}
		mapper := geo.Mapper{Origin: lc.Origin}
		lc.UnitID = func(cell geo.Cell) (int, bool) {
			v := g.ValueAt(mapper.ModelToWorld(geo.CellCenter(cell, landscape.RUSize)))
			if v < 0 {
				return 0, false
			}
			return int(v), true
		}
	}
	return landscape.New(lc)
}

// StandGrid reads the stand raster for l. It returns nil without a
// configured raster.
func (c Config) StandGrid(fs afero.Fs, l *landscape.Landscape) (*landscape.StandGrid, error) {
	if c.Stands.Raster == "" {
		return nil, nil
	}
	g, err := raster.Read(fs, c.Stands.Raster)
	if err != nil {
		return nil, fmt.Errorf("stand raster: %w", err)
	}
	return landscape.StandGridFromSampler(l, g, c.Stands.CellSize)
}

// SnapshotPath is the store location for a snapshot name. Names containing
// a path separator or a URL scheme are used as given.
func (c Config) SnapshotPath(name string) string {
	if strings.Contains(name, "://") || strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	if filepath.Ext(name) == "" {
		name += ".sqlite"
	}
	return filepath.Join(c.Snapshot.Dir, name)
}
