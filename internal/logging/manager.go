// Package logging provides the ring-buffered, optionally database-backed
// log manager used across the orchestrator. It deliberately uses the
// standard log package rather than a structured logging library.
package logging

import (
	"container/ring"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"
)

const (
	// MaxBufferSize is the maximum number of log entries kept in memory.
	MaxBufferSize = 10000

	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Entry is a single structured log record.
type Entry struct {
	ID        string                 `json:"id"`
	Timestamp time.Time              `json:"timestamp"`
	Level     string                 `json:"level"`
	Source    string                 `json:"source"`
	Message   string                 `json:"message"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Manager buffers log entries in a ring, optionally persists them, and
// fans them out to registered handlers (used for the admin websocket tail).
type Manager struct {
	mu       sync.RWMutex
	buffer   *ring.Ring
	db       *sql.DB
	handlers []func(Entry)
}

// NewManager creates a logging manager. db may be nil, in which case
// entries live only in the in-memory ring.
func NewManager(db *sql.DB) *Manager {
	m := &Manager{
		buffer: ring.New(MaxBufferSize),
		db:     db,
	}
	if err := m.initSchema(); err != nil {
		log.Printf("Warning: failed to initialize logging schema: %v", err)
	}
	return m
}

func rebindQuery(query string) string {
	n := 1
	var out strings.Builder
	for _, ch := range query {
		if ch == '?' {
			fmt.Fprintf(&out, "$%d", n)
			n++
		} else {
			out.WriteRune(ch)
		}
	}
	return out.String()
}

func (m *Manager) initSchema() error {
	if m.db == nil {
		return nil
	}
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS logs (
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMP NOT NULL,
			level TEXT NOT NULL,
			source TEXT NOT NULL,
			message TEXT NOT NULL,
			metadata_json TEXT,
			project_id TEXT,
			saga_id TEXT
		)
	`)
	if err != nil {
		return fmt.Errorf("creating logs table: %w", err)
	}
	for _, idx := range []string{
		"CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level)",
		"CREATE INDEX IF NOT EXISTS idx_logs_project_id ON logs(project_id)",
	} {
		if _, err := m.db.Exec(idx); err != nil {
			log.Printf("Warning: failed to create log index: %v", err)
		}
	}
	return nil
}

// Log records an entry, notifies handlers, and persists asynchronously.
// Callers must never pass secret material (credential values, tokens) in
// message or metadata — gateways and the vault are responsible for
// redacting before logging.
func (m *Manager) Log(level, source, message string, metadata map[string]interface{}) {
	entry := Entry{
		ID:        fmt.Sprintf("log-%d", time.Now().UnixNano()),
		Timestamp: time.Now(),
		Level:     level,
		Source:    source,
		Message:   message,
		Metadata:  metadata,
	}

	m.mu.Lock()
	m.buffer.Value = entry
	m.buffer = m.buffer.Next()
	handlers := append([]func(Entry){}, m.handlers...)
	m.mu.Unlock()

	for _, h := range handlers {
		go h(entry)
	}
	go m.persist(entry)
}

func (m *Manager) persist(entry Entry) {
	if m.db == nil {
		return
	}
	var metadataJSON *string
	if len(entry.Metadata) > 0 {
		if data, err := json.Marshal(entry.Metadata); err == nil {
			s := string(data)
			metadataJSON = &s
		}
	}
	var projectID, sagaID *string
	if entry.Metadata != nil {
		if v, ok := entry.Metadata["project_id"].(string); ok && v != "" {
			projectID = &v
		}
		if v, ok := entry.Metadata["saga_id"].(string); ok && v != "" {
			sagaID = &v
		}
	}
	_, err := m.db.Exec(rebindQuery(`
		INSERT INTO logs (id, timestamp, level, source, message, metadata_json, project_id, saga_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), entry.ID, entry.Timestamp, entry.Level, entry.Source, entry.Message, metadataJSON, projectID, sagaID)
	if err != nil {
		log.Printf("failed to persist log entry: %v", err)
	}
}

// GetRecent returns up to limit entries from the in-memory ring, newest first.
func (m *Manager) GetRecent(limit int, levelFilter, projectID string) []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > MaxBufferSize {
		limit = 100
	}

	out := make([]Entry, 0, limit)
	m.buffer.Do(func(v interface{}) {
		if len(out) >= limit || v == nil {
			return
		}
		entry, ok := v.(Entry)
		if !ok {
			return
		}
		if levelFilter != "" && entry.Level != levelFilter {
			return
		}
		if projectID != "" {
			if pid, _ := entry.Metadata["project_id"].(string); pid != projectID {
				return
			}
		}
		out = append(out, entry)
	})

	for i := 0; i < len(out)/2; i++ {
		out[i], out[len(out)-1-i] = out[len(out)-1-i], out[i]
	}
	return out
}

// AddHandler registers a callback invoked for every new entry. Used by the
// admin websocket log tail.
func (m *Manager) AddHandler(h func(Entry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, h)
}

func (m *Manager) Debug(source, msg string, meta map[string]interface{}) { m.Log(LevelDebug, source, msg, meta) }
func (m *Manager) Info(source, msg string, meta map[string]interface{})  { m.Log(LevelInfo, source, msg, meta) }
func (m *Manager) Warn(source, msg string, meta map[string]interface{})  { m.Log(LevelWarn, source, msg, meta) }
func (m *Manager) Error(source, msg string, meta map[string]interface{}) { m.Log(LevelError, source, msg, meta) }
