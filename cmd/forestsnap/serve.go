package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"

	"forestcore.io/internal/persistence/snapshot"
	"forestcore.io/internal/transport/admin"
	"forestcore.io/internal/transport/progress"
)

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "forestsnap.yaml", "project config")
	addr := fs.String("addr", "", "http listen address (default from config)")
	initial := fs.String("snapshot", "", "snapshot to load before serving (optional)")
	timeout := fs.Duration("timeout", 10*time.Minute, "limit for one snapshot operation (0 = none)")
	_ = fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()

	var hub *progress.Hub
	e := mustEnv(ctx, *configPath, func(e *env) snapshot.Observer {
		hub = progress.NewHub(e.log, e.cfg.Server.AllowRemote)
		return hub
	})
	defer closeEnv(e)

	if *initial != "" {
		if err := e.snap.LoadSnapshot(ctx, e.cfg.SnapshotPath(*initial)); err != nil {
			fatal("load", err)
		}
		e.log.Info("initial snapshot loaded", "snapshot", *initial, "trees", e.landscape.TreeCount())
	}

	srvAdmin := admin.New(admin.Options{
		Snapshotter:  e.snap,
		Stands:       e.stands,
		StandStore:   e.cfg.Stands.Store,
		SnapshotPath: e.cfg.SnapshotPath,
		Hub:          hub,
		Mirror:       e.mirror,
		Logger:       e.log,
		AllowRemote:  e.cfg.Server.AllowRemote,
		Metrics:      e.cfg.Metrics.Enabled,
		Timeout:      *timeout,
	})

	listen := firstNonEmpty(*addr, e.cfg.Server.Addr)
	srv := &http.Server{
		Addr:              listen,
		Handler:           srvAdmin.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          e.log.StandardLogger(&hclog.StandardLoggerOptions{InferLevels: true}),
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	e.log.Info("listening", "addr", listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		e.log.Error("listen", "error", err)
		closeEnv(e)
		os.Exit(1)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
