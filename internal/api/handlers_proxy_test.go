package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/assistantproxy"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/cache"
	orcherrors "github.com/jordanhubbard/codeopen-orchestrator/internal/errors"
	"github.com/jordanhubbard/codeopen-orchestrator/pkg/models"
)

type proxyFakeStore struct {
	projects map[string]*models.Project
}

func newProxyFakeStore(projects ...*models.Project) *proxyFakeStore {
	s := &proxyFakeStore{projects: make(map[string]*models.Project)}
	for _, p := range projects {
		s.projects[p.ProjectID] = p
	}
	return s
}

func (s *proxyFakeStore) Create(ctx context.Context, p *models.Project) error { return nil }
func (s *proxyFakeStore) GetByID(ctx context.Context, projectID string) (*models.Project, error) {
	p, ok := s.projects[projectID]
	if !ok {
		return nil, orcherrors.NotFound("project not found")
	}
	return p, nil
}
func (s *proxyFakeStore) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	return nil, orcherrors.NotFound("project not found")
}
func (s *proxyFakeStore) List(ctx context.Context) ([]*models.Project, error) { return nil, nil }
func (s *proxyFakeStore) Update(ctx context.Context, projectID string, partial map[string]interface{}) error {
	return nil
}
func (s *proxyFakeStore) UpdateStatus(ctx context.Context, projectID string, status models.ProjectStatus, detail string) error {
	return nil
}
func (s *proxyFakeStore) Delete(ctx context.Context, projectID string) error { return nil }
func (s *proxyFakeStore) GenerateUniqueSlug(ctx context.Context, humanName string) (string, error) {
	return "", nil
}

// newProxyTestServer wires a Server whose assistant proxy talks to
// downstream, bypassing FQDN resolution the way assistantproxy's own test
// suite does: the prepared client cache is seeded directly for the running
// project so resolveURL is never consulted.
func newProxyTestServer(fs *proxyFakeStore, downstream *httptest.Server, projectID string) *Server {
	clients := cache.NewClientCache()
	clients.Set(projectID, &cache.Client{BaseURL: downstream.URL, HTTP: downstream.Client()})

	s := newTestServer()
	s.proxy = &assistantproxy.Proxy{
		Store:   fs,
		FQDNs:   cache.NewInMemory(time.Minute),
		Clients: clients,
	}
	return s
}

func runningProject(id string) *models.Project {
	return &models.Project{ProjectID: id, Slug: id, Status: models.StatusRunning}
}

func TestHandleListSessions_ReturnsDownstreamSessions(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session", r.URL.Path)
		w.Write([]byte(`[{"id":"s1","title":"first"}]`))
	}))
	defer downstream.Close()

	fs := newProxyFakeStore(runningProject("p1"))
	s := newProxyTestServer(fs, downstream, "p1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/sessions", nil)
	w := httptest.NewRecorder()
	s.handleListSessions(w, req, "p1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"title":"first"`)
}

func TestHandleListSessions_NotRunningProjectReturnsServiceUnavailable(t *testing.T) {
	fs := newProxyFakeStore(&models.Project{ProjectID: "p1", Status: models.StatusStopped})
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("downstream should not be contacted")
	}))
	defer downstream.Close()
	s := newProxyTestServer(fs, downstream, "p1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/sessions", nil)
	w := httptest.NewRecorder()
	s.handleListSessions(w, req, "p1")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleListMessages_ReturnsDownstreamMessages(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session/s1/message", r.URL.Path)
		w.Write([]byte(`[{"id":"m1","role":"user","parts":[{"type":"text","text":"hi"}]}]`))
	}))
	defer downstream.Close()

	fs := newProxyFakeStore(runningProject("p1"))
	s := newProxyTestServer(fs, downstream, "p1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/sessions/s1/message", nil)
	w := httptest.NewRecorder()
	s.handleListMessages(w, req, "p1", "s1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"role":"user"`)
}

func TestHandleSendMessage_PostsPartsAndReturnsCreated(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/session/s1/message", r.URL.Path)
		w.Write([]byte(`{"id":"m2","role":"assistant","parts":[{"type":"text","text":"ok"}]}`))
	}))
	defer downstream.Close()

	fs := newProxyFakeStore(runningProject("p1"))
	s := newProxyTestServer(fs, downstream, "p1")

	body := strings.NewReader(`{"parts":[{"type":"text","text":"hello"}]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/p1/sessions/s1/message", body)
	w := httptest.NewRecorder()
	s.handleSendMessage(w, req, "p1", "s1")

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"m2"`)
}

func TestHandleSendMessage_InvalidJSONRejected(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("downstream should not be contacted")
	}))
	defer downstream.Close()

	fs := newProxyFakeStore(runningProject("p1"))
	s := newProxyTestServer(fs, downstream, "p1")

	body := strings.NewReader(`not json`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/p1/sessions/s1/message", body)
	w := httptest.NewRecorder()
	s.handleSendMessage(w, req, "p1", "s1")

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListOrReadFiles_ListsDirectoryByDefault(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/file", r.URL.Path)
		assert.Equal(t, "path=src", r.URL.RawQuery)
		w.Write([]byte(`[{"path":"src/main.go","is_dir":false}]`))
	}))
	defer downstream.Close()

	fs := newProxyFakeStore(runningProject("p1"))
	s := newProxyTestServer(fs, downstream, "p1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/files?path=src", nil)
	w := httptest.NewRecorder()
	s.handleListOrReadFiles(w, req, "p1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "main.go")
}

func TestHandleListOrReadFiles_ReadsFileContentWhenRequested(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/file/content", r.URL.Path)
		w.Write([]byte(`{"content":"package main"}`))
	}))
	defer downstream.Close()

	fs := newProxyFakeStore(runningProject("p1"))
	s := newProxyTestServer(fs, downstream, "p1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/files?path=main.go&content=1", nil)
	w := httptest.NewRecorder()
	s.handleListOrReadFiles(w, req, "p1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"content":"package main"}`, w.Body.String())
}

func TestHandleFindInFiles_PassesQueryThrough(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/find", r.URL.Path)
		assert.Equal(t, "q=TODO", r.URL.RawQuery)
		w.Write([]byte(`[{"path":"main.go","is_dir":false}]`))
	}))
	defer downstream.Close()

	fs := newProxyFakeStore(runningProject("p1"))
	s := newProxyTestServer(fs, downstream, "p1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/find?q=TODO", nil)
	w := httptest.NewRecorder()
	s.handleFindInFiles(w, req, "p1")

	require.Equal(t, http.StatusOK, w.Code)
}

func TestHandleGetAppInfo_ReturnsDownstreamInfo(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/app", r.URL.Path)
		w.Write([]byte(`{"version":"1.2.3","status":"ok"}`))
	}))
	defer downstream.Close()

	fs := newProxyFakeStore(runningProject("p1"))
	s := newProxyTestServer(fs, downstream, "p1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/app", nil)
	w := httptest.NewRecorder()
	s.handleGetAppInfo(w, req, "p1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "1.2.3")
}

func TestHandleGetEventStreamURL_WorksEvenWhenNotRunning(t *testing.T) {
	fs := newProxyFakeStore(&models.Project{ProjectID: "p1", Slug: "p1", FQDNURL: "app.example.com", Status: models.StatusStopped})
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("downstream should not be contacted")
	}))
	defer downstream.Close()
	s := newProxyTestServer(fs, downstream, "p1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/events/url", nil)
	w := httptest.NewRecorder()
	s.handleGetEventStreamURL(w, req, "p1")

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://app.example.com/event")
}

func TestHandleSubscribeEvents_StreamsSSEFrames(t *testing.T) {
	downstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/event", r.URL.Path)
		flusher := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("data: {\"type\":\"status\"}\n\n"))
		flusher.Flush()
	}))
	defer downstream.Close()

	fs := newProxyFakeStore(runningProject("p1"))
	s := newProxyTestServer(fs, downstream, "p1")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/projects/p1/events", nil)
	w := httptest.NewRecorder()
	s.handleSubscribeEvents(w, req, "p1")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `"type":"status"`)
}

func TestMarshalSSE_FramesEventAsDataLine(t *testing.T) {
	body, err := marshalSSE(assistantproxy.Event{Type: "status", Properties: map[string]interface{}{"ok": true}})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "data: "))
	assert.True(t, strings.HasSuffix(string(body), "\n\n"))
}
