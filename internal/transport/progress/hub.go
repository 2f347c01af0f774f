// Package progress streams snapshot operation events to websocket clients.
package progress

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"forestcore.io/internal/persistence/snapshot"
)

// backlogSize events are replayed to clients when they connect.
const backlogSize = 64

type client struct {
	id  uint64
	out chan []byte
}

// Hub fans snapshot events out to connected clients. Slow clients lose
// events instead of blocking the snapshot operation.
type Hub struct {
	log         hclog.Logger
	allowRemote bool
	upgrader    websocket.Upgrader

	mu      sync.Mutex
	clients map[*client]struct{}
	backlog [][]byte

	nextID  atomic.Uint64
	dropped atomic.Uint64
}

func NewHub(log hclog.Logger, allowRemote bool) *Hub {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Hub{
		log:         log.Named("progress"),
		allowRemote: allowRemote,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
}

func (h *Hub) Observe(e snapshot.Event) {
	b, err := json.Marshal(e)
	if err != nil {
		h.log.Warn("encode event", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.backlog = append(h.backlog, b)
	if len(h.backlog) > backlogSize {
		h.backlog = h.backlog[len(h.backlog)-backlogSize:]
	}
	for c := range h.clients {
		select {
		case c.out <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

func (h *Hub) register() *client {
	c := &client{id: h.nextID.Add(1), out: make(chan []byte, 256)}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, b := range h.backlog {
		c.out <- b
	}
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, c)
}

func (h *Hub) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !h.allowRemote && !IsLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := h.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		c := h.register()
		defer h.unregister(c)
		log := h.log.With("client", c.id, "remote", r.RemoteAddr)
		log.Debug("progress client connected")

		done := make(chan struct{})
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-done:
					writeErr <- nil
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Clients only listen; reading detects the close.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		close(done)
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case err := <-writeErr:
			if err != nil {
				log.Debug("progress client write failed", "error", err)
			}
		case <-time.After(500 * time.Millisecond):
		}
		log.Debug("progress client disconnected")
	}
}

func IsLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
