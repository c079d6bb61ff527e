package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/logging"
)

func newAdminTestServer() (*Server, *httptest.Server) {
	s := newTestServer()
	s.log = logging.NewManager(nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/admin/logs/stream", s.handleLogStream)
	srv := httptest.NewServer(mux)
	return s, srv
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func TestHandleLogStream_ReplaysRecentBufferOnConnect(t *testing.T) {
	s, srv := newAdminTestServer()
	defer srv.Close()

	s.log.Info("test-source", "hello before connect", nil)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL)+"/api/v1/admin/logs/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	var entry logging.Entry
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&entry))
	require.Equal(t, "hello before connect", entry.Message)
}

func TestHandleLogStream_PushesLiveEntries(t *testing.T) {
	s, srv := newAdminTestServer()
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL)+"/api/v1/admin/logs/stream", nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the handler a moment to register its fan-out handler before the
	// next log call, since AddHandler runs after the (empty) replay loop.
	time.Sleep(50 * time.Millisecond)
	s.log.Warn("live-source", "live entry", nil)

	var entry logging.Entry
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&entry))
	require.Equal(t, "live entry", entry.Message)
	require.Equal(t, logging.LevelWarn, entry.Level)
}

func TestHandleLogStream_FiltersByLevel(t *testing.T) {
	s, srv := newAdminTestServer()
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv.URL)+"/api/v1/admin/logs/stream?level=error", nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	s.log.Info("src", "should be filtered out", nil)
	s.log.Error("src", "should pass through", nil)

	var entry logging.Entry
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&entry))
	require.Equal(t, "should pass through", entry.Message)
}
