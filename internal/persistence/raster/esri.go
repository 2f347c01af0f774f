// Package raster reads and writes ESRI ASCII grids.
package raster

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"

	"forestcore.io/internal/sim/geo"
)

// NoValue is returned by ValueAt for coordinates outside the grid or on
// no-data cells.
const NoValue = -1.0

// Grid is an ESRI ASCII grid. Values are stored row-major with row 0 being
// the northernmost row, as in the file.
type Grid struct {
	NCols, NRows int
	// Origin is the world coordinate of the lower-left corner.
	Origin   geo.Point
	CellSize float64
	NoData   float64
	Values   []float64
}

func New(ncols, nrows int, origin geo.Point, cellSize, noData float64) *Grid {
	g := &Grid{
		NCols:    ncols,
		NRows:    nrows,
		Origin:   origin,
		CellSize: cellSize,
		NoData:   noData,
		Values:   make([]float64, ncols*nrows),
	}
	for i := range g.Values {
		g.Values[i] = noData
	}
	return g
}

func (g *Grid) Extent() geo.Rect {
	return geo.NewRect(g.Origin.X, g.Origin.Y, float64(g.NCols)*g.CellSize, float64(g.NRows)*g.CellSize)
}

func (g *Grid) index(col, rowFromBottom int) (int, bool) {
	if col < 0 || rowFromBottom < 0 || col >= g.NCols || rowFromBottom >= g.NRows {
		return 0, false
	}
	return (g.NRows-1-rowFromBottom)*g.NCols + col, true
}

// Set stores v at (col, row) with row counted from the south edge.
func (g *Grid) Set(col, rowFromBottom int, v float64) bool {
	i, ok := g.index(col, rowFromBottom)
	if ok {
		g.Values[i] = v
	}
	return ok
}

func (g *Grid) At(col, rowFromBottom int) float64 {
	i, ok := g.index(col, rowFromBottom)
	if !ok {
		return g.NoData
	}
	return g.Values[i]
}

// ValueAt samples the grid at a world coordinate.
func (g *Grid) ValueAt(p geo.Point) float64 {
	c := geo.CellAt(p.Sub(g.Origin), g.CellSize)
	i, ok := g.index(c.X, c.Y)
	if !ok {
		return NoValue
	}
	v := g.Values[i]
	if v == g.NoData || math.IsNaN(v) {
		return NoValue
	}
	return v
}

func Read(fs afero.Fs, path string) (*Grid, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	g, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return g, nil
}

// Parse reads a grid. Header keys are case-insensitive; *llcenter origins are
// converted to corners.
func Parse(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sc.Split(bufio.ScanWords)

	g := &Grid{NoData: -9999}
	var centerX, centerY bool
	seen := map[string]bool{}
	var pending string
	for sc.Scan() {
		tok := sc.Text()
		if _, err := strconv.ParseFloat(tok, 64); err == nil {
			pending = tok
			break
		}
		key := strings.ToLower(tok)
		if !sc.Scan() {
			return nil, fmt.Errorf("header %s: missing value", tok)
		}
		val, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("header %s: %w", tok, err)
		}
		switch key {
		case "ncols":
			g.NCols = int(val)
		case "nrows":
			g.NRows = int(val)
		case "xllcorner":
			g.Origin.X = val
		case "xllcenter":
			g.Origin.X, centerX = val, true
		case "yllcorner":
			g.Origin.Y = val
		case "yllcenter":
			g.Origin.Y, centerY = val, true
		case "cellsize":
			g.CellSize = val
		case "nodata_value":
			g.NoData = val
		default:
			return nil, fmt.Errorf("unknown header key %q", tok)
		}
		seen[strings.TrimSuffix(strings.TrimSuffix(key, "corner"), "center")] = true
	}
	for _, k := range []string{"ncols", "nrows", "xll", "yll", "cellsize"} {
		if !seen[k] {
			return nil, fmt.Errorf("missing header %s", k)
		}
	}
	if g.NCols <= 0 || g.NRows <= 0 || g.CellSize <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d cellsize %g", g.NCols, g.NRows, g.CellSize)
	}
	if centerX {
		g.Origin.X -= g.CellSize / 2
	}
	if centerY {
		g.Origin.Y -= g.CellSize / 2
	}

	g.Values = make([]float64, 0, g.NCols*g.NRows)
	add := func(tok string) error {
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return fmt.Errorf("cell %d: %w", len(g.Values), err)
		}
		g.Values = append(g.Values, v)
		return nil
	}
	if pending != "" {
		if err := add(pending); err != nil {
			return nil, err
		}
	}
	for sc.Scan() {
		if len(g.Values) == g.NCols*g.NRows {
			return nil, errors.New("more cells than ncols*nrows")
		}
		if err := add(sc.Text()); err != nil {
			return nil, err
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if len(g.Values) != g.NCols*g.NRows {
		return nil, fmt.Errorf("got %d cells, want %d", len(g.Values), g.NCols*g.NRows)
	}
	return g, nil
}

func Write(fs afero.Fs, path string, g *Grid) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := fs.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	if err := g.Encode(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func (g *Grid) Encode(w io.Writer) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", g.NCols, g.NRows)
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", formatValue(g.Origin.X), formatValue(g.Origin.Y))
	fmt.Fprintf(bw, "cellsize %s\nNODATA_value %s\n", formatValue(g.CellSize), formatValue(g.NoData))
	for row := 0; row < g.NRows; row++ {
		for col := 0; col < g.NCols; col++ {
			if col > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(formatValue(g.Values[row*g.NCols+col]))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
