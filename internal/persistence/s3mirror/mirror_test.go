package s3mirror

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"forestcore.io/internal/persistence/snapshot"
)

type fakeUploader struct {
	mu       sync.Mutex
	keys     []string
	failures map[string]int
}

func (f *fakeUploader) PutFile(_ context.Context, key, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failures[key] > 0 {
		f.failures[key]--
		return errors.New("transient")
	}
	f.keys = append(f.keys, key)
	return nil
}

func (f *fakeUploader) uploaded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.keys...)
	sort.Strings(out)
	return out
}

func writeFiles(t *testing.T, dir string, names ...string) []string {
	t.Helper()
	var out []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(p, []byte(n), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		out = append(out, p)
	}
	return out
}

func TestMirrorUploadsFinishedSnapshotFiles(t *testing.T) {
	dir := t.TempDir()
	files := writeFiles(t, dir, "snapshots/run1.sqlite", "snapshots/run1.asc")
	up := &fakeUploader{failures: map[string]int{"forest/snapshots/run1.asc": 2}}
	m := New(up, Options{DataDir: dir, Prefix: "/forest/", Workers: 2})
	m.backoff = func(int) time.Duration { return 0 }

	m.Observe(snapshot.Event{Kind: snapshot.EventTableDone, Table: "trees"})
	m.Observe(snapshot.Event{Kind: snapshot.EventFinished, Files: files})
	m.Close()

	want := []string{"forest/snapshots/run1.asc", "forest/snapshots/run1.sqlite"}
	if diff := cmp.Diff(want, up.uploaded()); diff != "" {
		t.Fatalf("uploaded keys:\n%s", diff)
	}
	st := m.Stats()
	if st.EnqueuedTotal != 2 || st.UploadSuccessTotal != 2 || st.UploadFailTotal != 0 || st.LastSuccessUnix == 0 {
		t.Fatalf("stats=%+v", st)
	}
}

func TestMirrorGivesUpAfterRetries(t *testing.T) {
	dir := t.TempDir()
	files := writeFiles(t, dir, "a.sqlite")
	up := &fakeUploader{failures: map[string]int{"a.sqlite": 10}}
	m := New(up, Options{DataDir: dir})
	m.backoff = func(int) time.Duration { return 0 }
	m.Enqueue(files[0])
	m.Close()

	st := m.Stats()
	if st.UploadFailTotal != 1 || st.UploadSuccessTotal != 0 || st.LastErrorUnix == 0 {
		t.Fatalf("stats=%+v", st)
	}
	if up.failures["a.sqlite"] != 6 {
		t.Fatalf("attempts=%d want 4", 10-up.failures["a.sqlite"])
	}
}

func TestMirrorSkipsFilesOutsideDataDir(t *testing.T) {
	base := t.TempDir()
	outside := writeFiles(t, t.TempDir(), "x.sqlite")
	up := &fakeUploader{}
	m := New(up, Options{DataDir: base})
	m.Enqueue(outside[0])
	m.Enqueue(filepath.Join(base, "missing.sqlite"))
	m.Close()
	if got := up.uploaded(); len(got) != 0 {
		t.Fatalf("uploaded %v", got)
	}
}

func TestMirrorDropsAfterClose(t *testing.T) {
	dir := t.TempDir()
	files := writeFiles(t, dir, "late.sqlite")
	up := &fakeUploader{}
	m := New(up, Options{DataDir: dir})
	m.Close()
	m.Close()
	m.Enqueue(files[0])
	m.Observe(snapshot.Event{Kind: snapshot.EventFinished, Files: files})
	if got := m.Stats().DroppedTotal; got != 2 {
		t.Fatalf("dropped=%d want 2", got)
	}
	if got := up.uploaded(); len(got) != 0 {
		t.Fatalf("uploaded %v", got)
	}
}

func TestNilMirrorIsInert(t *testing.T) {
	var m *Mirror
	m.Enqueue("x")
	m.Close()
	if m.Stats() != (Stats{}) {
		t.Fatalf("expected zero stats")
	}
}

func TestNewS3UploaderRequiresBucket(t *testing.T) {
	if _, err := NewS3Uploader(context.Background(), S3Config{}); err == nil {
		t.Fatalf("expected error without bucket")
	}
	u, err := NewS3Uploader(context.Background(), S3Config{
		Bucket: "forest", Endpoint: "http://127.0.0.1:9000", AccessKeyID: "k", SecretAccessKey: "s", PathStyle: true,
	})
	if err != nil || u.bucket != "forest" {
		t.Fatalf("uploader=%v err=%v", u, err)
	}
}
