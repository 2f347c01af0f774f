// Package archive keeps zstd-compressed copies of snapshot stores and their
// alignment rasters, each in its own directory with a meta.json.
package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
)

const metaFile = "meta.json"

type Meta struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Source    string `json:"source"`
	Store     string `json:"store"`
	Raster    string `json:"raster,omitempty"`
	CreatedAt string `json:"created_at"`
	// Bytes and CompressedBytes cover store and raster together.
	Bytes           int64          `json:"bytes"`
	CompressedBytes int64          `json:"compressed_bytes"`
	Tables          map[string]int `json:"tables,omitempty"`
}

// Entry is an archive directory and its metadata.
type Entry struct {
	Dir  string
	Meta Meta
}

// Archive compresses the store at storePath and, when it exists, the
// alignment raster at rasterPath into a new directory below root. tables
// records row counts for listing.
func Archive(fs afero.Fs, root, storePath, rasterPath string, tables map[string]int) (Entry, error) {
	if _, err := fs.Stat(storePath); err != nil {
		return Entry{}, err
	}
	now := time.Now().UTC()
	id := uuid.NewString()
	name := strings.TrimSuffix(filepath.Base(storePath), filepath.Ext(storePath))
	dir := filepath.Join(root, fmt.Sprintf("%s_%s_%s", name, now.Format("20060102T150405Z"), id[:8]))
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return Entry{}, err
	}

	meta := Meta{
		ID:        id,
		Name:      name,
		Source:    storePath,
		Store:     filepath.Base(storePath) + ".zst",
		CreatedAt: now.Format(time.RFC3339Nano),
		Tables:    tables,
	}
	in, out, err := compressFile(fs, storePath, filepath.Join(dir, meta.Store))
	if err != nil {
		return Entry{}, fmt.Errorf("archive store: %w", err)
	}
	meta.Bytes, meta.CompressedBytes = in, out

	if rasterPath != "" {
		if _, err := fs.Stat(rasterPath); err == nil {
			meta.Raster = filepath.Base(rasterPath) + ".zst"
			in, out, err := compressFile(fs, rasterPath, filepath.Join(dir, meta.Raster))
			if err != nil {
				return Entry{}, fmt.Errorf("archive raster: %w", err)
			}
			meta.Bytes += in
			meta.CompressedBytes += out
		}
	}

	b, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return Entry{}, err
	}
	if err := afero.WriteFile(fs, filepath.Join(dir, metaFile), b, 0o644); err != nil {
		return Entry{}, err
	}
	return Entry{Dir: dir, Meta: meta}, nil
}

// Restore decompresses the archive in dir to storePath. The raster, if
// archived, is written next to it with the store's base name and an .asc
// extension. Existing files are only replaced with overwrite.
func Restore(fs afero.Fs, dir, storePath string, overwrite bool) (Meta, error) {
	meta, err := ReadMeta(fs, dir)
	if err != nil {
		return Meta{}, err
	}
	targets := [][2]string{{meta.Store, storePath}}
	if meta.Raster != "" {
		raster := strings.TrimSuffix(storePath, filepath.Ext(storePath)) + ".asc"
		targets = append(targets, [2]string{meta.Raster, raster})
	}
	if !overwrite {
		for _, t := range targets {
			if _, err := fs.Stat(t[1]); err == nil {
				return Meta{}, fmt.Errorf("restore: %s exists", t[1])
			}
		}
	}
	for _, t := range targets {
		if err := fs.MkdirAll(filepath.Dir(t[1]), 0o755); err != nil {
			return Meta{}, err
		}
		if err := decompressFile(fs, filepath.Join(dir, t[0]), t[1]); err != nil {
			return Meta{}, fmt.Errorf("restore %s: %w", t[0], err)
		}
	}
	return meta, nil
}

func ReadMeta(fs afero.Fs, dir string) (Meta, error) {
	var meta Meta
	b, err := afero.ReadFile(fs, filepath.Join(dir, metaFile))
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(b, &meta); err != nil {
		return meta, fmt.Errorf("%s: %w", metaFile, err)
	}
	if meta.Store == "" {
		return meta, fmt.Errorf("%s: no store entry", metaFile)
	}
	return meta, nil
}

// List returns the archives below root, oldest first. Directories without
// readable metadata are ignored.
func List(fs afero.Fs, root string) ([]Entry, error) {
	infos, err := afero.ReadDir(fs, root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []Entry
	for _, fi := range infos {
		if !fi.IsDir() {
			continue
		}
		dir := filepath.Join(root, fi.Name())
		meta, err := ReadMeta(fs, dir)
		if err != nil {
			continue
		}
		out = append(out, Entry{Dir: dir, Meta: meta})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Meta.CreatedAt != out[j].Meta.CreatedAt {
			return out[i].Meta.CreatedAt < out[j].Meta.CreatedAt
		}
		return out[i].Dir < out[j].Dir
	})
	return out, nil
}

func compressFile(fs afero.Fs, src, dst string) (in, out int64, err error) {
	r, err := fs.Open(src)
	if err != nil {
		return 0, 0, err
	}
	defer r.Close()

	f, err := fs.Create(dst)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return 0, 0, err
	}
	if in, err = io.Copy(enc, r); err != nil {
		_ = enc.Close()
		return 0, 0, err
	}
	if err := enc.Close(); err != nil {
		return 0, 0, err
	}
	if err := f.Sync(); err != nil {
		return 0, 0, err
	}
	st, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}
	return in, st.Size(), f.Close()
}

func decompressFile(fs afero.Fs, src, dst string) error {
	r, err := fs.Open(src)
	if err != nil {
		return err
	}
	defer r.Close()
	dec, err := zstd.NewReader(r)
	if err != nil {
		return err
	}
	defer dec.Close()

	tmp := dst + ".tmp"
	f, err := fs.Create(tmp)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, dec); err != nil {
		_ = f.Close()
		_ = fs.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return err
	}
	return fs.Rename(tmp, dst)
}
