package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"forestcore.io/internal/config"
	"forestcore.io/internal/logging"
	"forestcore.io/internal/persistence/journal"
	"forestcore.io/internal/persistence/s3mirror"
	"forestcore.io/internal/persistence/snapshot"
	"forestcore.io/internal/sim/landscape"
)

// env is the wiring shared by the offline commands and the server.
type env struct {
	cfg       config.Config
	fs        afero.Fs
	log       hclog.Logger
	landscape *landscape.Landscape
	stands    *landscape.StandGrid
	snap      *snapshot.Snapshotter
	journal   *journal.Journal
	mirror    *s3mirror.Mirror
}

// observerHook builds an extra observer once the environment's config and
// logger are known.
type observerHook func(e *env) snapshot.Observer

func openEnv(ctx context.Context, configPath string, hooks ...observerHook) (*env, error) {
	fs := afero.NewOsFs()
	cfg, err := config.Load(fs, configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	e := &env{cfg: cfg, fs: fs, log: logging.New("forestsnap", cfg.Logging, os.Stderr)}

	if e.landscape, err = cfg.Landscape(fs); err != nil {
		return nil, err
	}
	if e.stands, err = cfg.StandGrid(fs, e.landscape); err != nil {
		return nil, err
	}

	var observers []snapshot.Observer
	for _, h := range hooks {
		observers = append(observers, h(e))
	}
	if cfg.Journal.Enabled {
		e.journal = journal.New(cfg.Journal.Dir, e.log)
		observers = append(observers, e.journal)
	}
	if cfg.Mirror.Enabled {
		up, err := s3mirror.NewS3Uploader(ctx, s3mirror.S3Config{
			Bucket:          cfg.Mirror.Bucket,
			Region:          cfg.Mirror.Region,
			Endpoint:        cfg.Mirror.Endpoint,
			AccessKeyID:     cfg.Mirror.AccessKeyID,
			SecretAccessKey: cfg.Mirror.SecretAccessKey,
			PathStyle:       cfg.Mirror.PathStyle,
		})
		if err != nil {
			_ = e.Close()
			return nil, fmt.Errorf("mirror: %w", err)
		}
		e.mirror = s3mirror.New(up, s3mirror.Options{
			DataDir:       e.dataDir(),
			Prefix:        cfg.Mirror.Prefix,
			Workers:       cfg.Mirror.Workers,
			QueueCapacity: cfg.Mirror.QueueCapacity,
			EnqueueWait:   time.Duration(cfg.Mirror.EnqueueWaitMs) * time.Millisecond,
			Logger:        e.log,
		})
		observers = append(observers, e.mirror)
	}

	opts := []snapshot.Option{
		snapshot.WithLogger(e.log),
		snapshot.WithFs(fs),
		snapshot.WithObserver(snapshot.MultiObserver(observers...)),
		snapshot.WithRasterValue(cfg.Snapshot.RasterValue),
		snapshot.WithProgressEvery(cfg.Snapshot.ProgressEvery),
	}
	if cfg.Snapshot.RasterPath != "" {
		opts = append(opts, snapshot.WithRasterPath(cfg.Snapshot.RasterPath))
	}
	if e.snap, err = snapshot.New(e.landscape, opts...); err != nil {
		_ = e.Close()
		return nil, err
	}
	e.log.Debug("environment ready", "units", len(e.landscape.Units()), "species", e.landscape.Species().Len(), "stands", e.stands != nil)
	return e, nil
}

// dataDir is the common root of snapshots and archives used for object keys.
func (e *env) dataDir() string {
	return filepath.Dir(e.cfg.Snapshot.Dir)
}

func (e *env) Close() error {
	var result *multierror.Error
	if e.snap != nil {
		if err := e.snap.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if e.mirror != nil {
		e.mirror.Close()
	}
	if e.journal != nil {
		if err := e.journal.Close(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

func mustEnv(ctx context.Context, configPath string, hooks ...observerHook) *env {
	e, err := openEnv(ctx, configPath, hooks...)
	if err != nil {
		fatal("setup", err)
	}
	return e
}

func closeEnv(e *env) {
	if err := e.Close(); err != nil {
		fmt.Fprintln(os.Stderr, "close:", err)
	}
}
