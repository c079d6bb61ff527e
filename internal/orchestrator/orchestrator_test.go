package orchestrator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/database"
	orcherrors "github.com/jordanhubbard/codeopen-orchestrator/internal/errors"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/keymanager"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/logging"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/messagebus"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/platform"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/vault"
	"github.com/jordanhubbard/codeopen-orchestrator/pkg/models"
)

// fakeStore is a minimal in-memory store.Store, mirroring the one used in
// the assistantproxy package's tests.
type fakeStore struct {
	projects map[string]*models.Project
	updates  []map[string]interface{}
	statuses []models.ProjectStatus
}

func newFakeStore(projects ...*models.Project) *fakeStore {
	s := &fakeStore{projects: make(map[string]*models.Project)}
	for _, p := range projects {
		s.projects[p.ProjectID] = p
	}
	return s
}

func (s *fakeStore) Create(ctx context.Context, p *models.Project) error { return nil }
func (s *fakeStore) GetByID(ctx context.Context, projectID string) (*models.Project, error) {
	p, ok := s.projects[projectID]
	if !ok {
		return nil, orcherrors.NotFound("project not found")
	}
	return p, nil
}
func (s *fakeStore) GetBySlug(ctx context.Context, slug string) (*models.Project, error) {
	return nil, orcherrors.NotFound("project not found")
}
func (s *fakeStore) List(ctx context.Context) ([]*models.Project, error) {
	out := make([]*models.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	return out, nil
}
func (s *fakeStore) Update(ctx context.Context, projectID string, partial map[string]interface{}) error {
	s.updates = append(s.updates, partial)
	if providerID, ok := partial["llm_provider_id"].(string); ok {
		if p, ok := s.projects[projectID]; ok {
			p.LLMProviderID = providerID
		}
	}
	return nil
}
func (s *fakeStore) UpdateStatus(ctx context.Context, projectID string, status models.ProjectStatus, detail string) error {
	s.statuses = append(s.statuses, status)
	if p, ok := s.projects[projectID]; ok {
		p.Status = status
		p.StatusDetail = detail
	}
	return nil
}
func (s *fakeStore) Delete(ctx context.Context, projectID string) error {
	delete(s.projects, projectID)
	return nil
}
func (s *fakeStore) GenerateUniqueSlug(ctx context.Context, humanName string) (string, error) {
	return humanName, nil
}

func newTestVault(t *testing.T) *vault.Vault {
	t.Helper()
	km := keymanager.New(t.TempDir() + "/vault.json")
	require.NoError(t, km.Unlock("test-password"))
	return vault.New(km, nil)
}

func TestStartProject_MarksRunningOnSuccess(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer srv.Close()

	proj := &models.Project{ProjectID: "p1", PlatformAppUUID: "app-1", Status: models.StatusStopped}
	s := newFakeStore(proj)
	o := New(Deps{
		Platform: platform.New(srv.URL, "tok"),
		Store:    s,
		Locker:   database.NewInMemoryLocker(),
		Log:      logging.NewManager(nil),
	})

	require.NoError(t, o.StartProject(context.Background(), "p1"))
	assert.Contains(t, gotPath, "app-1/start")
	assert.Equal(t, models.StatusRunning, s.projects["p1"].Status)
}

func TestStartProject_PlatformFailureMarksError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	proj := &models.Project{ProjectID: "p1", PlatformAppUUID: "app-1", Status: models.StatusStopped}
	s := newFakeStore(proj)
	o := New(Deps{
		Platform: platform.New(srv.URL, "tok"),
		Store:    s,
		Locker:   database.NewInMemoryLocker(),
		Log:      logging.NewManager(nil),
	})

	err := o.StartProject(context.Background(), "p1")
	require.Error(t, err)
	assert.Equal(t, models.StatusError, s.projects["p1"].Status)
	assert.NotEmpty(t, s.projects["p1"].StatusDetail)
}

func TestStopProject_MarksStopped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	proj := &models.Project{ProjectID: "p1", PlatformAppUUID: "app-1", Status: models.StatusRunning}
	s := newFakeStore(proj)
	o := New(Deps{
		Platform: platform.New(srv.URL, "tok"),
		Store:    s,
		Locker:   database.NewInMemoryLocker(),
		Log:      logging.NewManager(nil),
	})

	require.NoError(t, o.StopProject(context.Background(), "p1"))
	assert.Equal(t, models.StatusStopped, s.projects["p1"].Status)
}

func TestGetLogs_DefaultsLineCountWhenNonPositive(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`"some logs"`))
	}))
	defer srv.Close()

	proj := &models.Project{ProjectID: "p1", PlatformAppUUID: "app-1"}
	o := New(Deps{Platform: platform.New(srv.URL, "tok"), Store: newFakeStore(proj)})

	logs, err := o.GetLogs(context.Background(), "p1", 0)
	require.NoError(t, err)
	assert.Equal(t, "some logs", logs)
	assert.Contains(t, gotQuery, "lines=100")
}

func TestGetLogs_UnknownProjectPropagatesNotFound(t *testing.T) {
	o := New(Deps{Store: newFakeStore()})
	_, err := o.GetLogs(context.Background(), "missing", 10)
	require.Error(t, err)
	assert.True(t, orcherrors.Is(err, orcherrors.KindNotFound))
}

func TestListProjects_ReturnsEveryStoredProject(t *testing.T) {
	o := New(Deps{Store: newFakeStore(
		&models.Project{ProjectID: "p1"},
		&models.Project{ProjectID: "p2"},
	)})

	projects, err := o.ListProjects(context.Background())
	require.NoError(t, err)
	assert.Len(t, projects, 2)
}

func TestGetProjectWithStatus_DegradesToUnknownOnPlatformFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	proj := &models.Project{ProjectID: "p1", PlatformAppUUID: "app-1", Status: models.StatusRunning}
	o := New(Deps{Platform: platform.New(srv.URL, "tok"), Store: newFakeStore(proj)})

	out, err := o.GetProjectWithStatus(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "unknown", out.ContainerStatus)
}

func TestGetProjectWithStatus_ReflectsLivePlatformStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"uuid":"app-1","status":"running"}`))
	}))
	defer srv.Close()

	proj := &models.Project{ProjectID: "p1", PlatformAppUUID: "app-1"}
	o := New(Deps{Platform: platform.New(srv.URL, "tok"), Store: newFakeStore(proj)})

	out, err := o.GetProjectWithStatus(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "running", out.ContainerStatus)
}

func TestUpdateCredentials_RestartsOnlyWhenRunning(t *testing.T) {
	var restarted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/applications/app-1/restart" {
			restarted = true
		}
	}))
	defer srv.Close()

	proj := &models.Project{ProjectID: "p1", PlatformAppUUID: "app-1", Status: models.StatusRunning}
	s := newFakeStore(proj)
	v := newTestVault(t)
	require.NoError(t, v.RegisterProvider("openai", "openai", `{"api_key":"sk-test"}`, nil, true))

	o := New(Deps{
		Platform: platform.New(srv.URL, "tok"),
		Store:    s,
		Vault:    v,
		Locker:   database.NewInMemoryLocker(),
	})

	require.NoError(t, o.UpdateCredentials(context.Background(), "p1", "openai"))
	assert.True(t, restarted)
	assert.Equal(t, "openai", s.projects["p1"].LLMProviderID)
}

func TestUpdateCredentials_StoppedProjectNotRestarted(t *testing.T) {
	var restarted bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/applications/app-1/restart" {
			restarted = true
		}
	}))
	defer srv.Close()

	proj := &models.Project{ProjectID: "p1", PlatformAppUUID: "app-1", Status: models.StatusStopped}
	s := newFakeStore(proj)
	v := newTestVault(t)
	require.NoError(t, v.RegisterProvider("openai", "openai", `{"api_key":"sk-test"}`, nil, true))

	o := New(Deps{
		Platform: platform.New(srv.URL, "tok"),
		Store:    s,
		Vault:    v,
		Locker:   database.NewInMemoryLocker(),
	})

	require.NoError(t, o.UpdateCredentials(context.Background(), "p1", "openai"))
	assert.False(t, restarted)
}

func TestSyncCredentialsToAllProjects_SkipsNonRunningAndCountsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/applications/app-bad/envs/bulk" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	s := newFakeStore(
		&models.Project{ProjectID: "good", PlatformAppUUID: "app-good", Status: models.StatusRunning},
		&models.Project{ProjectID: "bad", PlatformAppUUID: "app-bad", Status: models.StatusRunning},
		&models.Project{ProjectID: "stopped", PlatformAppUUID: "app-stopped", Status: models.StatusStopped},
	)
	v := newTestVault(t)
	require.NoError(t, v.RegisterProvider("openai", "openai", `{"api_key":"sk-test"}`, nil, true))

	o := New(Deps{
		Platform: platform.New(srv.URL, "tok"),
		Store:    s,
		Vault:    v,
		Locker:   database.NewInMemoryLocker(),
		Log:      logging.NewManager(nil),
	})

	result, err := o.SyncCredentialsToAllProjects(context.Background(), "openai")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Updated)
	assert.Equal(t, 1, result.Failed)
}

func TestDeployProject_ReturnsFirstDeployment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"deployments":[{"deployment_uuid":"d1","message":"queued"}]}`))
	}))
	defer srv.Close()

	proj := &models.Project{ProjectID: "p1", PlatformAppUUID: "app-1"}
	o := New(Deps{
		Platform: platform.New(srv.URL, "tok"),
		Store:    newFakeStore(proj),
		Locker:   database.NewInMemoryLocker(),
		Log:      logging.NewManager(nil),
	})

	result, err := o.DeployProject(context.Background(), "p1", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "d1", result.DeploymentID)
	assert.Equal(t, "queued", result.Message)
}

func TestNilBusIsSafeForPublish(t *testing.T) {
	var b *messagebus.Bus
	assert.NoError(t, b.PublishProjectEvent(messagebus.ProjectEvent{ProjectID: "p1", EventType: "created"}))
}
