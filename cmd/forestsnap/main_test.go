package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"forestcore.io/internal/persistence/journal"
	"forestcore.io/internal/persistence/snapshot"
)

func TestAdminURL(t *testing.T) {
	cases := []struct {
		name  string
		load  bool
		stand int
		want  string
	}{
		{"spring", false, -1, "http://h:1/admin/v1/snapshot?name=spring"},
		{"spring", true, -1, "http://h:1/admin/v1/snapshot/load?name=spring"},
		{"", false, 4, "http://h:1/admin/v1/stand/save?stand=4"},
		{"ignored", true, 0, "http://h:1/admin/v1/stand/load?stand=0"},
	}
	for _, c := range cases {
		got, err := adminURL(" http://h:1/ ", c.name, c.load, c.stand)
		if err != nil {
			t.Fatalf("%+v: %v", c, err)
		}
		if got != c.want {
			t.Fatalf("%+v: got %q want %q", c, got, c.want)
		}
	}
	if _, err := adminURL("http://h:1", "", false, -1); err == nil {
		t.Fatalf("expected error without name or stand")
	}
}

func TestFirstNonEmpty(t *testing.T) {
	if got := firstNonEmpty("", "  ", "b", "c"); got != "b" {
		t.Fatalf("got %q", got)
	}
	if got := firstNonEmpty(); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestEnvSnapshotWritesJournal(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "forestsnap.yaml")
	cfg := `
world: {width: 200, height: 100}
species: [{id: piab}]
snapshot: {dir: snaps}
archive: {dir: archives}
journal: {enabled: true, dir: journal}
logging: {level: error}
`
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ctx := context.Background()
	e, err := openEnv(ctx, cfgPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	loc := e.cfg.SnapshotPath("empty")
	if loc != filepath.Join(dir, "snaps", "empty.sqlite") {
		t.Fatalf("location=%q", loc)
	}
	if err := e.snap.CreateSnapshot(ctx, loc); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	tables, err := tableCounts(ctx, loc)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if n, ok := tables["trees"]; !ok || n != 0 {
		t.Fatalf("tables=%v", tables)
	}

	files, err := journal.Files(filepath.Join(dir, "journal"))
	if err != nil || len(files) != 1 {
		t.Fatalf("journal files=%v err=%v", files, err)
	}
	events, err := journal.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(events) == 0 || events[len(events)-1].Kind != snapshot.EventFinished {
		t.Fatalf("events=%+v", events)
	}
	if events[0].Location != loc {
		t.Fatalf("location=%q", events[0].Location)
	}
}
