package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"strconv"
	"strings"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/orchestrator"
)

// handleProjects dispatches the collection endpoint: create and list.
func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateProject(w, r)
	case http.MethodGet:
		s.handleListProjects(w, r)
	default:
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

type createProjectRequest struct {
	Name          string   `json:"name"`
	Description   string   `json:"description"`
	GithubURL     string   `json:"github_url"`
	LLMProviderID string   `json:"llm_provider_id"`
	LLMModelID    string   `json:"llm_model_id"`
	FlavorID      string   `json:"flavor_id"`
	AddonIDs      []string `json:"addon_ids"`
	TierID        string   `json:"tier_id"`
	DockerfileB64 string   `json:"dockerfile_base64"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		s.respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	var dockerfile []byte
	if req.DockerfileB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.DockerfileB64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "dockerfile_base64 is not valid base64")
			return
		}
		dockerfile = decoded
	}

	project, err := s.orch.CreateProject(r.Context(), orchestrator.CreateProjectRequest{
		Name: req.Name, Description: req.Description, GithubURL: req.GithubURL,
		LLMProviderID: req.LLMProviderID, LLMModelID: req.LLMModelID,
		FlavorID: req.FlavorID, AddonIDs: req.AddonIDs, TierID: req.TierID,
		Dockerfile: dockerfile,
	})
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, project)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.orch.ListProjects(r.Context())
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, projects)
}

// trimSub reports whether sub ends in "/"+suffix and, if so, returns sub
// with that suffix removed.
func trimSub(sub, suffix string) (string, bool) {
	if !strings.HasSuffix(sub, "/"+suffix) {
		return "", false
	}
	return strings.TrimSuffix(sub, "/"+suffix), true
}

const projectsPrefix = "/api/v1/projects/"

// handleProject dispatches every per-project and proxy sub-resource
// endpoint, matching on the path suffix after the project ID.
func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	id := s.extractID(r.URL.Path, projectsPrefix)
	if id == "" {
		s.respondError(w, http.StatusBadRequest, "project id is required")
		return
	}
	sub := s.extractSubpath(r.URL.Path, projectsPrefix)

	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.handleGetProject(w, r, id)
	case sub == "" && r.Method == http.MethodDelete:
		s.handleDeleteProject(w, r, id)
		if s.proxy != nil {
			s.proxy.EvictClient(id)
		}
	case sub == "credentials" && (r.Method == http.MethodPut || r.Method == http.MethodPatch):
		s.handleUpdateCredentials(w, r, id)
	case sub == "start" && r.Method == http.MethodPost:
		s.runLifecycle(w, r, id, s.orch.StartProject)
	case sub == "stop" && r.Method == http.MethodPost:
		s.runLifecycle(w, r, id, s.orch.StopProject)
		if s.proxy != nil {
			s.proxy.EvictClient(id)
		}
	case sub == "restart" && r.Method == http.MethodPost:
		s.runLifecycle(w, r, id, s.orch.RestartProject)
	case sub == "deploy" && r.Method == http.MethodPost:
		s.handleDeploy(w, r, id)
	case sub == "logs" && r.Method == http.MethodGet:
		s.handleGetLogs(w, r, id)
	case sub == "sessions" && r.Method == http.MethodGet:
		s.handleListSessions(w, r, id)
	case sub == "app" && r.Method == http.MethodGet:
		s.handleGetAppInfo(w, r, id)
	case sub == "events/url" && r.Method == http.MethodGet:
		s.handleGetEventStreamURL(w, r, id)
	case sub == "events" && r.Method == http.MethodGet:
		s.handleSubscribeEvents(w, r, id)
	case sub == "find" && r.Method == http.MethodGet:
		s.handleFindInFiles(w, r, id)
	case strings.HasPrefix(sub, "sessions/") && r.Method == http.MethodGet:
		if sessionID, ok := trimSub(strings.TrimPrefix(sub, "sessions/"), "message"); ok {
			s.handleListMessages(w, r, id, strings.TrimSuffix(sessionID, "/"))
			return
		}
		s.respondError(w, http.StatusNotFound, "unknown project operation")
	case strings.HasPrefix(sub, "sessions/") && r.Method == http.MethodPost:
		if sessionID, ok := trimSub(strings.TrimPrefix(sub, "sessions/"), "message"); ok {
			s.handleSendMessage(w, r, id, strings.TrimSuffix(sessionID, "/"))
			return
		}
		s.respondError(w, http.StatusNotFound, "unknown project operation")
	case sub == "files" && r.Method == http.MethodGet:
		s.handleListOrReadFiles(w, r, id)
	default:
		s.respondError(w, http.StatusNotFound, "unknown project operation")
	}
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request, id string) {
	p, err := s.orch.GetProjectWithStatus(r.Context(), id)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request, id string) {
	deleteRepo := r.URL.Query().Get("delete_repo") != "false"
	warnings, err := s.orch.DeleteProject(r.Context(), id, deleteRepo)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"warnings": warnings})
}

func (s *Server) runLifecycle(w http.ResponseWriter, r *http.Request, id string, op func(ctx context.Context, projectID string) error) {
	if err := op(r.Context(), id); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type updateCredentialsRequest struct {
	LLMProviderID string `json:"llm_provider_id"`
}

func (s *Server) handleUpdateCredentials(w http.ResponseWriter, r *http.Request, id string) {
	var req updateCredentialsRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.orch.UpdateCredentials(r.Context(), id, req.LLMProviderID); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type deployRequest struct {
	DockerfileB64 string `json:"dockerfile_base64"`
	Force         bool   `json:"force"`
}

func (s *Server) handleDeploy(w http.ResponseWriter, r *http.Request, id string) {
	var req deployRequest
	if r.ContentLength != 0 {
		if err := s.parseJSON(r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	var dockerfile []byte
	if req.DockerfileB64 != "" {
		decoded, err := base64.StdEncoding.DecodeString(req.DockerfileB64)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "dockerfile_base64 is not valid base64")
			return
		}
		dockerfile = decoded
	}
	result, err := s.orch.DeployProject(r.Context(), id, dockerfile, req.Force)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetLogs(w http.ResponseWriter, r *http.Request, id string) {
	lines := 100
	if q := r.URL.Query().Get("lines"); q != "" {
		if n, err := strconv.Atoi(q); err == nil {
			lines = n
		}
	}
	logs, err := s.orch.GetLogs(r.Context(), id, lines)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"logs": logs})
}

// handleSyncCredentials is the fleet-wide credential rotation endpoint,
// mounted separately since it doesn't take a project ID.
func (s *Server) handleSyncCredentials(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req updateCredentialsRequest
	if err := s.parseJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.orch.SyncCredentialsToAllProjects(r.Context(), req.LLMProviderID)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}
