package admin

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"forestcore.io/internal/persistence/snapshot"
	"forestcore.io/internal/sim/geo"
	"forestcore.io/internal/sim/landscape"
	"forestcore.io/internal/transport/progress"
)

func newTestServer(t *testing.T) (*Server, *landscape.Landscape, string) {
	t.Helper()
	l, err := landscape.New(landscape.Config{
		Width:               200,
		Height:              100,
		Species:             []landscape.SpeciesParams{{ID: "piab"}, {ID: "fasy"}},
		RegenerationEnabled: true,
	})
	if err != nil {
		t.Fatalf("landscape: %v", err)
	}
	sp, _ := l.Species().ByID("fasy")
	for i, ru := range l.Units() {
		tr := ru.NewTree()
		tr.ID = i + 1
		tr.Species = sp
		tr.Position = ru.CornerOffset().Add(geo.Cell{X: 10, Y: 10})
		tr.Dbh, tr.Height, tr.LeafArea, tr.Opacity = 25, 20, 40, 0.6
		tr.SetupStamp()
	}
	stands, err := landscape.NewStandGrid(l.Extent(), 20)
	if err != nil {
		t.Fatalf("stand grid: %v", err)
	}
	stands.Grid().Fill(3)

	dir := t.TempDir()
	hub := progress.NewHub(nil, false)
	snap, err := snapshot.New(l, snapshot.WithObserver(hub))
	if err != nil {
		t.Fatalf("snapshotter: %v", err)
	}
	t.Cleanup(func() { _ = snap.Close() })
	s := New(Options{
		Snapshotter:  snap,
		Stands:       stands,
		StandStore:   filepath.Join(dir, "stands.sqlite"),
		SnapshotPath: func(name string) string { return filepath.Join(dir, name+".sqlite") },
		Hub:          hub,
		Metrics:      true,
	})
	return s, l, dir
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	req.RemoteAddr = "127.0.0.1:50000"
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, req)
	var body map[string]any
	if strings.HasPrefix(rw.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rw.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode %s: %v", target, err)
		}
	}
	return rw, body
}

func TestSnapshotEndpoints(t *testing.T) {
	s, l, _ := newTestServer(t)
	h := s.Handler()

	if rw, body := do(t, h, http.MethodPost, "/admin/v1/snapshot?name=run1"); rw.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("create: %d %v", rw.Code, body)
	}
	for _, ru := range l.Units() {
		ru.ClearTrees()
	}
	if rw, body := do(t, h, http.MethodPost, "/admin/v1/snapshot/load?name=run1"); rw.Code != http.StatusOK {
		t.Fatalf("load: %d %v", rw.Code, body)
	}
	if n := l.TreeCount(); n != 2 {
		t.Fatalf("trees=%d want 2", n)
	}

	_, state := do(t, h, http.MethodGet, "/admin/v1/state")
	if state["trees"] != float64(2) || state["busy"] != false {
		t.Fatalf("state=%v", state)
	}
	last, _ := state["last_operation"].(map[string]any)
	if last["operation"] != "load" || last["ok"] != true {
		t.Fatalf("last operation=%v", last)
	}
}

func TestStandEndpoints(t *testing.T) {
	s, l, _ := newTestServer(t)
	h := s.Handler()

	if rw, body := do(t, h, http.MethodPost, "/admin/v1/stand/save?stand=3"); rw.Code != http.StatusOK {
		t.Fatalf("stand save: %d %v", rw.Code, body)
	}
	l.Units()[0].ClearTrees()
	if rw, body := do(t, h, http.MethodPost, "/admin/v1/stand/load?stand=3"); rw.Code != http.StatusOK {
		t.Fatalf("stand load: %d %v", rw.Code, body)
	}
	if n := l.TreeCount(); n != 2 {
		t.Fatalf("trees=%d want 2", n)
	}
	if rw, _ := do(t, h, http.MethodPost, "/admin/v1/stand/save?stand=9"); rw.Code != http.StatusNotFound {
		t.Fatalf("unknown stand status=%d", rw.Code)
	}
	if rw, _ := do(t, h, http.MethodPost, "/admin/v1/stand/save?stand=x"); rw.Code != http.StatusBadRequest {
		t.Fatalf("bad stand status=%d", rw.Code)
	}
}

func TestRequestErrors(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()

	if rw, _ := do(t, h, http.MethodPost, "/admin/v1/snapshot/load?name=missing"); rw.Code != http.StatusNotFound {
		t.Fatalf("missing store status=%d", rw.Code)
	}
	if rw, _ := do(t, h, http.MethodGet, "/admin/v1/snapshot?name=run1"); rw.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET status=%d", rw.Code)
	}
	for _, name := range []string{"../x", "/tmp/abs.sqlite", "sub/run1", `c:\run1`, "postgres://h/db"} {
		if rw, _ := do(t, h, http.MethodPost, "/admin/v1/snapshot?name="+url.QueryEscape(name)); rw.Code != http.StatusBadRequest {
			t.Fatalf("name %q status=%d", name, rw.Code)
		}
	}

	s.mu.Lock()
	rw, body := do(t, h, http.MethodPost, "/admin/v1/snapshot?name=run1")
	s.mu.Unlock()
	if rw.Code != http.StatusConflict || body["ok"] != false {
		t.Fatalf("busy: %d %v", rw.Code, body)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("remote status=%d", rec.Code)
	}
}

func TestStateReportsCountsOfLastOperation(t *testing.T) {
	s, l, _ := newTestServer(t)
	h := s.Handler()

	// Changes outside an operation are not visible until the next one ends.
	l.Units()[0].ClearTrees()
	s.running.Store(true)
	_, state := do(t, h, http.MethodGet, "/admin/v1/state")
	s.running.Store(false)
	if state["busy"] != true || state["trees"] != float64(2) || state["units"] != float64(2) {
		t.Fatalf("state=%v", state)
	}

	do(t, h, http.MethodPost, "/admin/v1/snapshot?name=run1")
	_, state = do(t, h, http.MethodGet, "/admin/v1/state")
	if state["busy"] != false || state["trees"] != float64(1) {
		t.Fatalf("state=%v", state)
	}
}

// Run with -race: state polls must not read tree lists a load is rewriting.
func TestStatePollsDuringLoads(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()
	if rw, body := do(t, h, http.MethodPost, "/admin/v1/snapshot?name=run1"); rw.Code != http.StatusOK {
		t.Fatalf("create: %d %v", rw.Code, body)
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	var bad sync.Map
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				req := httptest.NewRequest(http.MethodGet, "/admin/v1/state", nil)
				req.RemoteAddr = "127.0.0.1:50000"
				rw := httptest.NewRecorder()
				h.ServeHTTP(rw, req)
				if rw.Code != http.StatusOK {
					bad.Store(rw.Code, true)
				}
			}
		}()
	}
	for i := 0; i < 20; i++ {
		rw, body := do(t, h, http.MethodPost, "/admin/v1/snapshot/load?name=run1")
		if rw.Code != http.StatusOK {
			close(stop)
			wg.Wait()
			t.Fatalf("load %d: %d %v", i, rw.Code, body)
		}
	}
	close(stop)
	wg.Wait()
	bad.Range(func(k, _ any) bool {
		t.Fatalf("state status=%v", k)
		return false
	})
}

func TestMetricsEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t)
	h := s.Handler()
	do(t, h, http.MethodPost, "/admin/v1/snapshot?name=run1")
	rw, _ := do(t, h, http.MethodGet, "/metrics")
	if rw.Code != http.StatusOK || !strings.Contains(rw.Body.String(), "forest_snapshot_operation_duration_seconds") {
		t.Fatalf("metrics: %d", rw.Code)
	}
}
