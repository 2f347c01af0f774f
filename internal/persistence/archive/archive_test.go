package archive

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
)

func TestArchiveAndRestore(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := bytes.Repeat([]byte("sqlite page "), 4096)
	raster := []byte("ncols 3\nnrows 2\nxllcorner 0\nyllcorner 0\ncellsize 100\nNODATA_value -1\n3 4 5\n0 1 2\n")
	if err := afero.WriteFile(fs, "/data/snapshots/run1.sqlite", store, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := afero.WriteFile(fs, "/data/snapshots/run1.asc", raster, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tables := map[string]int{"trees": 18, "soil": 6}
	e, err := Archive(fs, "/data/archives", "/data/snapshots/run1.sqlite", "/data/snapshots/run1.asc", tables)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(e.Dir, "/data/archives/run1_") {
		t.Fatalf("dir=%q", e.Dir)
	}
	if e.Meta.Bytes != int64(len(store)+len(raster)) || e.Meta.CompressedBytes >= e.Meta.Bytes {
		t.Fatalf("bytes=%d compressed=%d", e.Meta.Bytes, e.Meta.CompressedBytes)
	}

	list, err := List(fs, "/data/archives")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("archives=%d", len(list))
	}
	if diff := cmp.Diff(e.Meta, list[0].Meta); diff != "" {
		t.Fatalf("meta:\n%s", diff)
	}

	meta, err := Restore(fs, e.Dir, "/restore/run1-copy.sqlite", false)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if diff := cmp.Diff(tables, meta.Tables); diff != "" {
		t.Fatalf("tables:\n%s", diff)
	}
	got, _ := afero.ReadFile(fs, "/restore/run1-copy.sqlite")
	if !bytes.Equal(got, store) {
		t.Fatalf("restored store differs")
	}
	got, _ = afero.ReadFile(fs, "/restore/run1-copy.asc")
	if !bytes.Equal(got, raster) {
		t.Fatalf("restored raster differs")
	}

	if _, err := Restore(fs, e.Dir, "/restore/run1-copy.sqlite", false); err == nil {
		t.Fatalf("expected refusal to overwrite")
	}
	if _, err := Restore(fs, e.Dir, "/restore/run1-copy.sqlite", true); err != nil {
		t.Fatalf("restore with overwrite: %v", err)
	}
}

func TestArchiveWithoutRaster(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "/s/a.sqlite", []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	e, err := Archive(fs, "/arch", "/s/a.sqlite", "/s/a.asc", nil)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if e.Meta.Raster != "" {
		t.Fatalf("raster=%q", e.Meta.Raster)
	}
	if _, err := Restore(fs, e.Dir, "/r/a.sqlite", false); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if ok, _ := afero.Exists(fs, "/r/a.asc"); ok {
		t.Fatalf("no raster expected")
	}
}

func TestArchiveMissingStore(t *testing.T) {
	if _, err := Archive(afero.NewMemMapFs(), "/arch", "/nope.sqlite", "", nil); err == nil {
		t.Fatalf("expected error")
	}
	list, err := List(afero.NewMemMapFs(), "/arch")
	if err != nil || len(list) != 0 {
		t.Fatalf("list=%v err=%v", list, err)
	}
}
