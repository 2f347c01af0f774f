package raster

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"forestcore.io/internal/sim/geo"
)

func TestWriteReadRoundTrip(t *testing.T) {
	fs := afero.NewMemMapFs()
	g := New(3, 2, geo.Point{X: 4_500_000, Y: 230_000}, 100, -1)
	g.Set(0, 0, 0)
	g.Set(1, 0, 1)
	g.Set(2, 1, 5)

	if err := Write(fs, "/snap/run.asc", g); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Read(fs, "/snap/run.asc")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(g, got); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeWritesNorthRowFirst(t *testing.T) {
	g := New(2, 2, geo.Point{}, 10, -1)
	g.Set(0, 1, 7) // north-west
	var sb strings.Builder
	if err := g.Encode(&sb); err != nil {
		t.Fatalf("encode: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if lines[6] != "7 -1" || lines[7] != "-1 -1" {
		t.Fatalf("unexpected rows %q", lines[6:])
	}
}

func TestValueAt(t *testing.T) {
	src := `NCOLS 2
NROWS 2
XLLCORNER 100
YLLCORNER 200
CELLSIZE 100
NODATA_VALUE -9999
3 -9999
1 2
`
	g, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	cases := []struct {
		p    geo.Point
		want float64
	}{
		{geo.Point{X: 150, Y: 250}, 1},
		{geo.Point{X: 250, Y: 250}, 2},
		{geo.Point{X: 150, Y: 350}, 3},
		{geo.Point{X: 250, Y: 350}, NoValue},
		{geo.Point{X: 99, Y: 250}, NoValue},
		{geo.Point{X: 150, Y: 400}, NoValue},
	}
	for _, c := range cases {
		if got := g.ValueAt(c.p); got != c.want {
			t.Fatalf("ValueAt(%v)=%v want %v", c.p, got, c.want)
		}
	}
}

func TestParseCenterOrigin(t *testing.T) {
	g, err := Parse(strings.NewReader("ncols 1\nnrows 1\nxllcenter 50\nyllcenter 50\ncellsize 100\n4\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if g.Origin != (geo.Point{}) {
		t.Fatalf("origin=%v", g.Origin)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	for name, src := range map[string]string{
		"missing header": "ncols 1\nnrows 1\ncellsize 1\n0\n",
		"short data":     "ncols 2\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n0\n",
		"long data":      "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\n0 1\n",
		"unknown key":    "ncols 1\nnrows 1\nxllcorner 0\nyllcorner 0\ncellsize 1\nfoo 3\n0\n",
	} {
		if _, err := Parse(strings.NewReader(src)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read(afero.NewMemMapFs(), "/nope.asc"); err == nil {
		t.Fatalf("expected error")
	}
}
