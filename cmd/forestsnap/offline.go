package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"forestcore.io/internal/persistence/archive"
	"forestcore.io/internal/persistence/journal"
	"forestcore.io/internal/persistence/raster"
	"forestcore.io/internal/persistence/snapshot"
)

type rasterInfo struct {
	Path     string  `json:"path"`
	Cols     int     `json:"cols"`
	Rows     int     `json:"rows"`
	CellSize float64 `json:"cell_size"`
	MinX     float64 `json:"min_x"`
	MinY     float64 `json:"min_y"`
}

type inspectResult struct {
	Store  string         `json:"store"`
	Tables map[string]int `json:"tables"`
	Raster *rasterInfo    `json:"raster,omitempty"`
}

func inspectCmd(args []string) {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	store := fs.String("store", "", "snapshot store path or postgres url")
	_ = fs.Parse(args)
	if strings.TrimSpace(*store) == "" {
		fmt.Fprintln(os.Stderr, "missing -store")
		os.Exit(2)
	}

	ctx := context.Background()
	tables, err := tableCounts(ctx, *store)
	if err != nil {
		fatal("inspect", err)
	}
	res := inspectResult{Store: *store, Tables: tables}
	if snapshot.DialectFor(*store) == snapshot.SQLite {
		p := strings.TrimSuffix(*store, filepath.Ext(*store)) + ".asc"
		if g, err := raster.Read(afero.NewOsFs(), p); err == nil {
			res.Raster = &rasterInfo{Path: p, Cols: g.NCols, Rows: g.NRows, CellSize: g.CellSize, MinX: g.Origin.X, MinY: g.Origin.Y}
		} else if !errors.Is(err, os.ErrNotExist) {
			fatal("raster", err)
		}
	}
	printJSON(res)
}

// tableCounts returns the row count of every table in the store.
func tableCounts(ctx context.Context, location string) (map[string]int, error) {
	st, err := snapshot.OpenStore(ctx, location, snapshot.OpenRead)
	if err != nil {
		return nil, err
	}
	defer st.Close()
	names, err := st.Tables(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(names))
	for _, n := range names {
		c, err := st.Count(ctx, n)
		if err != nil {
			return nil, err
		}
		out[n] = c
	}
	return out, nil
}

func relocateCmd(args []string) {
	fs := flag.NewFlagSet("relocate", flag.ExitOnError)
	configPath := fs.String("config", "forestsnap.yaml", "project config")
	from := fs.String("from", "", "source snapshot store")
	to := fs.String("to", "", "target snapshot name or path")
	_ = fs.Parse(args)
	if *from == "" || *to == "" {
		fmt.Fprintln(os.Stderr, "missing -from or -to")
		os.Exit(2)
	}

	ctx, cancel := signalContext()
	defer cancel()
	e := mustEnv(ctx, *configPath)
	defer closeEnv(e)

	if err := e.snap.LoadSnapshot(ctx, *from); err != nil {
		fatal("load", err)
	}
	out := e.cfg.SnapshotPath(*to)
	if err := e.snap.CreateSnapshot(ctx, out); err != nil {
		fatal("save", err)
	}
	printJSON(map[string]any{"from": *from, "to": out, "trees": e.landscape.TreeCount()})
}

func standSaveCmd(args []string) {
	fs := flag.NewFlagSet("stand-save", flag.ExitOnError)
	configPath := fs.String("config", "forestsnap.yaml", "project config")
	from := fs.String("snapshot", "", "snapshot holding the landscape state")
	standID := fs.Int("stand", -1, "stand id")
	store := fs.String("store", "", "stand store (default from config)")
	_ = fs.Parse(args)
	if *from == "" || *standID < 0 {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -stand")
		os.Exit(2)
	}

	ctx, cancel := signalContext()
	defer cancel()
	e := mustEnv(ctx, *configPath)
	defer closeEnv(e)
	if e.stands == nil {
		fatal("stand-save", errors.New("no stand raster configured"))
	}

	if err := e.snap.LoadSnapshot(ctx, e.cfg.SnapshotPath(*from)); err != nil {
		fatal("load", err)
	}
	loc := firstNonEmpty(*store, e.cfg.Stands.Store)
	if err := e.snap.SaveStandSnapshot(ctx, *standID, e.stands, loc); err != nil {
		fatal("stand-save", err)
	}
	printJSON(map[string]any{"stand": *standID, "store": loc, "trees": len(e.stands.Trees(e.landscape, *standID))})
}

func standLoadCmd(args []string) {
	fs := flag.NewFlagSet("stand-load", flag.ExitOnError)
	configPath := fs.String("config", "forestsnap.yaml", "project config")
	from := fs.String("snapshot", "", "snapshot holding the landscape state")
	standID := fs.Int("stand", -1, "stand id")
	store := fs.String("store", "", "stand store (default from config)")
	out := fs.String("out", "", "snapshot to write the result to (default: overwrite -snapshot)")
	_ = fs.Parse(args)
	if *from == "" || *standID < 0 {
		fmt.Fprintln(os.Stderr, "missing -snapshot or -stand")
		os.Exit(2)
	}

	ctx, cancel := signalContext()
	defer cancel()
	e := mustEnv(ctx, *configPath)
	defer closeEnv(e)
	if e.stands == nil {
		fatal("stand-load", errors.New("no stand raster configured"))
	}

	src := e.cfg.SnapshotPath(*from)
	if err := e.snap.LoadSnapshot(ctx, src); err != nil {
		fatal("load", err)
	}
	loc := firstNonEmpty(*store, e.cfg.Stands.Store)
	if err := e.snap.LoadStandSnapshot(ctx, *standID, e.stands, loc); err != nil {
		fatal("stand-load", err)
	}
	dst := src
	if *out != "" {
		dst = e.cfg.SnapshotPath(*out)
	}
	if err := e.snap.CreateSnapshot(ctx, dst); err != nil {
		fatal("save", err)
	}
	printJSON(map[string]any{"stand": *standID, "store": loc, "snapshot": dst, "trees": e.landscape.TreeCount()})
}

func archiveCmd(args []string) {
	fs := flag.NewFlagSet("archive", flag.ExitOnError)
	configPath := fs.String("config", "forestsnap.yaml", "project config")
	name := fs.String("snapshot", "", "snapshot to archive")
	list := fs.Bool("list", false, "list archives instead")
	_ = fs.Parse(args)

	ctx, cancel := signalContext()
	defer cancel()
	e := mustEnv(ctx, *configPath)
	defer closeEnv(e)

	if *list {
		entries, err := archive.List(e.fs, e.cfg.Archive.Dir)
		if err != nil {
			fatal("list", err)
		}
		printJSON(entries)
		return
	}
	if *name == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	loc := e.cfg.SnapshotPath(*name)
	if snapshot.DialectFor(loc) != snapshot.SQLite {
		fatal("archive", errors.New("only sqlite stores can be archived"))
	}
	tables, err := tableCounts(ctx, loc)
	if err != nil {
		fatal("archive", err)
	}
	entry, err := archive.Archive(e.fs, e.cfg.Archive.Dir, loc, e.snap.RasterPath(loc), tables)
	if err != nil {
		fatal("archive", err)
	}
	if e.mirror != nil {
		e.mirror.Enqueue(filepath.Join(entry.Dir, entry.Meta.Store))
		if entry.Meta.Raster != "" {
			e.mirror.Enqueue(filepath.Join(entry.Dir, entry.Meta.Raster))
		}
	}
	printJSON(entry)
}

func restoreCmd(args []string) {
	fs := flag.NewFlagSet("restore", flag.ExitOnError)
	configPath := fs.String("config", "forestsnap.yaml", "project config")
	dir := fs.String("archive", "", "archive directory")
	to := fs.String("to", "", "target snapshot name or path (default: archived name)")
	force := fs.Bool("force", false, "overwrite an existing store")
	_ = fs.Parse(args)
	if *dir == "" {
		fmt.Fprintln(os.Stderr, "missing -archive")
		os.Exit(2)
	}

	ctx, cancel := signalContext()
	defer cancel()
	e := mustEnv(ctx, *configPath)
	defer closeEnv(e)

	meta, err := archive.ReadMeta(e.fs, *dir)
	if err != nil {
		fatal("restore", err)
	}
	dst := e.cfg.SnapshotPath(firstNonEmpty(*to, meta.Name))
	if _, err := archive.Restore(e.fs, *dir, dst, *force); err != nil {
		fatal("restore", err)
	}
	printJSON(map[string]any{"archive": meta.ID, "store": dst})
}

func journalCmd(args []string) {
	fs := flag.NewFlagSet("journal", flag.ExitOnError)
	configPath := fs.String("config", "forestsnap.yaml", "project config")
	dir := fs.String("dir", "", "journal directory (default from config)")
	_ = fs.Parse(args)

	d := *dir
	if d == "" {
		ctx, cancel := signalContext()
		defer cancel()
		e := mustEnv(ctx, *configPath)
		d = e.cfg.Journal.Dir
		closeEnv(e)
	}
	files, err := journal.Files(d)
	if err != nil {
		fatal("journal", err)
	}
	var events []snapshot.Event
	for _, f := range files {
		evs, err := journal.ReadFile(f)
		if err != nil {
			fatal("journal", err)
		}
		events = append(events, evs...)
	}
	printJSON(events)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
