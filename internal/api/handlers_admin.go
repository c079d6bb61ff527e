package api

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/logging"
)

var logStreamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Admin tooling connects from arbitrary origins (CLI, internal
	// dashboards); this is a read-only diagnostic feed, not a mutating API.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleLogStream upgrades to a websocket and pushes every log entry as it
// is recorded, replaying the recent buffer first so a freshly-opened client
// has context. Filters on "level" and "project_id" query parameters.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	conn, err := logStreamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	levelFilter := r.URL.Query().Get("level")
	projectFilter := r.URL.Query().Get("project_id")

	for _, entry := range s.log.GetRecent(200, levelFilter, projectFilter) {
		if conn.WriteJSON(entry) != nil {
			return
		}
	}

	entries := make(chan logging.Entry, 256)
	s.log.AddHandler(func(entry logging.Entry) {
		if levelFilter != "" && entry.Level != levelFilter {
			return
		}
		if projectFilter != "" {
			if pid, _ := entry.Metadata["project_id"].(string); pid != projectFilter {
				return
			}
		}
		select {
		case entries <- entry:
		default:
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case entry := <-entries:
			if conn.WriteJSON(entry) != nil {
				return
			}
		case <-done:
			return
		case <-r.Context().Done():
			return
		}
	}
}
