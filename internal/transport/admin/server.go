// Package admin serves the local HTTP endpoints that trigger snapshot
// operations on a running landscape.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forestcore.io/internal/persistence/s3mirror"
	"forestcore.io/internal/persistence/snapshot"
	"forestcore.io/internal/sim/landscape"
	"forestcore.io/internal/transport/progress"
)

type Options struct {
	Snapshotter *snapshot.Snapshotter
	// Stands is required for the stand endpoints.
	Stands     *landscape.StandGrid
	StandStore string
	// SnapshotPath maps a snapshot name from the request to a store location.
	SnapshotPath func(name string) string
	Hub          *progress.Hub
	Mirror       *s3mirror.Mirror
	Logger       hclog.Logger
	AllowRemote  bool
	Metrics      bool
	// Timeout bounds one snapshot operation; 0 means no limit.
	Timeout time.Duration
}

// Server runs at most one snapshot operation at a time; concurrent requests
// get 409.
type Server struct {
	opts    Options
	log     hclog.Logger
	mu      sync.Mutex
	running atomic.Bool

	stateMu sync.Mutex
	last    *opResult
	counts  liveCounts
}

// liveCounts is read from the landscape while s.mu is held, so state
// requests never touch the live collections.
type liveCounts struct {
	Units        int
	Trees        int
	Species      int
	Regeneration bool
}

type opResult struct {
	Operation string    `json:"operation"`
	Location  string    `json:"location"`
	StandID   *int      `json:"stand_id,omitempty"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Elapsed   string    `json:"elapsed"`
	Finished  time.Time `json:"finished"`
}

func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = hclog.NewNullLogger()
	}
	s := &Server{opts: opts, log: opts.Logger.Named("admin")}
	s.refreshCounts()
	return s
}

func (s *Server) refreshCounts() {
	l := s.opts.Snapshotter.Landscape()
	c := liveCounts{
		Units:        len(l.Units()),
		Trees:        l.TreeCount(),
		Species:      l.Species().Len(),
		Regeneration: l.RegenerationEnabled(),
	}
	s.stateMu.Lock()
	s.counts = c
	s.stateMu.Unlock()
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	if s.opts.Metrics {
		mux.Handle("/metrics", promhttp.Handler())
	}
	mux.HandleFunc("/admin/v1/state", s.local(s.handleState))
	mux.HandleFunc("/admin/v1/snapshot", s.local(s.post(s.handleCreate)))
	mux.HandleFunc("/admin/v1/snapshot/load", s.local(s.post(s.handleLoad)))
	mux.HandleFunc("/admin/v1/stand/save", s.local(s.post(s.handleStandSave)))
	mux.HandleFunc("/admin/v1/stand/load", s.local(s.post(s.handleStandLoad)))
	if s.opts.Hub != nil {
		mux.HandleFunc("/admin/v1/progress/ws", s.opts.Hub.Handler())
	}
	return mux
}

func (s *Server) local(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.opts.AllowRemote && !progress.IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		next(rw, r)
	}
}

func (s *Server) post(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		next(rw, r)
	}
}

func (s *Server) handleState(rw http.ResponseWriter, r *http.Request) {
	l := s.opts.Snapshotter.Landscape()
	ext := l.Extent()
	resp := map[string]any{
		"origin": l.Mapper().Origin,
		"width":  ext.Width(),
		"height": ext.Height(),
		"busy":   s.running.Load(),
	}
	s.stateMu.Lock()
	resp["units"] = s.counts.Units
	resp["trees"] = s.counts.Trees
	resp["species"] = s.counts.Species
	resp["regeneration"] = s.counts.Regeneration
	if s.last != nil {
		resp["last_operation"] = *s.last
	}
	s.stateMu.Unlock()
	if s.opts.Mirror != nil {
		resp["mirror"] = s.opts.Mirror.Stats()
	}
	if s.opts.Hub != nil {
		resp["progress_clients"] = s.opts.Hub.Clients()
	}
	writeJSON(rw, http.StatusOK, resp)
}

func (s *Server) handleCreate(rw http.ResponseWriter, r *http.Request) {
	loc, ok := s.location(rw, r)
	if !ok {
		return
	}
	s.run(rw, r, "create", loc, nil, func(ctx context.Context) error {
		return s.opts.Snapshotter.CreateSnapshot(ctx, loc)
	})
}

func (s *Server) handleLoad(rw http.ResponseWriter, r *http.Request) {
	loc, ok := s.location(rw, r)
	if !ok {
		return
	}
	s.run(rw, r, "load", loc, nil, func(ctx context.Context) error {
		return s.opts.Snapshotter.LoadSnapshot(ctx, loc)
	})
}

func (s *Server) handleStandSave(rw http.ResponseWriter, r *http.Request) {
	id, ok := s.standID(rw, r)
	if !ok {
		return
	}
	s.run(rw, r, "stand_save", s.opts.StandStore, &id, func(ctx context.Context) error {
		return s.opts.Snapshotter.SaveStandSnapshot(ctx, id, s.opts.Stands, s.opts.StandStore)
	})
}

func (s *Server) handleStandLoad(rw http.ResponseWriter, r *http.Request) {
	id, ok := s.standID(rw, r)
	if !ok {
		return
	}
	s.run(rw, r, "stand_load", s.opts.StandStore, &id, func(ctx context.Context) error {
		return s.opts.Snapshotter.LoadStandSnapshot(ctx, id, s.opts.Stands, s.opts.StandStore)
	})
}

func (s *Server) location(rw http.ResponseWriter, r *http.Request) (string, bool) {
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	// Requests name snapshots inside the snapshot directory only.
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\:`) {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing or invalid name"})
		return "", false
	}
	if s.opts.SnapshotPath != nil {
		name = s.opts.SnapshotPath(name)
	}
	return name, true
}

func (s *Server) standID(rw http.ResponseWriter, r *http.Request) (int, bool) {
	if s.opts.Stands == nil || s.opts.StandStore == "" {
		writeJSON(rw, http.StatusNotImplemented, map[string]any{"ok": false, "error": "no stand grid configured"})
		return 0, false
	}
	id, err := strconv.Atoi(r.URL.Query().Get("stand"))
	if err != nil || id < 0 {
		writeJSON(rw, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing or invalid stand"})
		return 0, false
	}
	if !s.opts.Stands.Contains(id) {
		writeJSON(rw, http.StatusNotFound, map[string]any{"ok": false, "error": "unknown stand"})
		return 0, false
	}
	return id, true
}

func (s *Server) run(rw http.ResponseWriter, r *http.Request, name, location string, standID *int, fn func(ctx context.Context) error) {
	if !s.mu.TryLock() {
		writeJSON(rw, http.StatusConflict, map[string]any{"ok": false, "error": "another snapshot operation is running"})
		return
	}
	defer s.mu.Unlock()
	s.running.Store(true)
	defer s.running.Store(false)

	ctx := r.Context()
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	res := opResult{
		Operation: name,
		Location:  location,
		StandID:   standID,
		OK:        err == nil,
		Elapsed:   time.Since(start).String(),
		Finished:  time.Now().UTC(),
	}
	if err != nil {
		res.Error = err.Error()
		s.log.Warn("snapshot operation failed", "operation", name, "location", location, "error", err)
	}
	s.refreshCounts()
	s.stateMu.Lock()
	s.last = &res
	s.stateMu.Unlock()
	writeJSON(rw, statusFor(err), res)
}

func statusFor(err error) int {
	var offErr *snapshot.OffsetError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.As(err, &offErr), errors.Is(err, snapshot.ErrUnknownSpecies):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
