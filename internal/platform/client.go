// Package platform implements C2, a thin typed client over the container
// platform's REST API. It reproduces the platform's documented quirks
// bit-faithfully: GET-based start/stop/restart/deploy, base-64
// encoded Dockerfile transmission, preview-twin env vars, and a
// non-uniform logs response shape.
package platform

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	orcherrors "github.com/jordanhubbard/codeopen-orchestrator/internal/errors"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/metrics"
)

// Server and Project are discovery records returned at startup.
type Server struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type Project struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// App is the platform's application record. FQDN is the definitive source
// of the application's public URL.
type App struct {
	UUID   string `json:"uuid"`
	Name   string `json:"name"`
	Status string `json:"status"`
	FQDN   string `json:"fqdn"`
}

// HealthCheck describes the app's health probe.
type HealthCheck struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	Port    int    `json:"port"`
}

// Deployment is one entry of deploy_app's response.
type Deployment struct {
	DeploymentUUID string `json:"deployment_uuid"`
	Message        string `json:"message"`
}

// Client is the Platform Gateway (C2).
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	metrics *metrics.Metrics
}

// New creates a Platform Gateway client. token is sent as a Bearer token.
func New(baseURL, token string) *Client {
	return &Client{baseURL: baseURL, token: token, http: &http.Client{Timeout: 60 * time.Second}}
}

// SetMetrics attaches a Metrics recorder; calls made before this is set (or
// when it's never set) simply skip instrumentation.
func (c *Client) SetMetrics(m *metrics.Metrics) { c.metrics = m }

func (c *Client) recordCall(operation string, start time.Time, err error) {
	if c.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.metrics.GatewayCalls.WithLabelValues("platform", operation, outcome).Inc()
	c.metrics.GatewayLatency.WithLabelValues("platform", operation).Observe(time.Since(start).Seconds())
}

func (c *Client) do(ctx context.Context, operation, method, path string, body interface{}, out interface{}) error {
	start := time.Now()
	err := c.doUninstrumented(ctx, method, path, body, out)
	c.recordCall(operation, start, err)
	return err
}

func (c *Client) doUninstrumented(ctx context.Context, method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return orcherrors.Internal("marshaling platform request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return orcherrors.Internal("building platform request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return orcherrors.Transport(fmt.Sprintf("platform request failed: %s %s", method, path), err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return classifyError(resp, raw)
	}
	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return orcherrors.Protocol(orcherrors.SystemPlatform, "unparseable platform response", err)
		}
	}
	return nil
}

func (c *Client) doRaw(ctx context.Context, operation, method, path string, body interface{}) ([]byte, error) {
	start := time.Now()
	raw, err := c.doRawUninstrumented(ctx, method, path, body)
	c.recordCall(operation, start, err)
	return raw, err
}

func (c *Client) doRawUninstrumented(ctx context.Context, method, path string, body interface{}) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, orcherrors.Internal("marshaling platform request body", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, orcherrors.Internal("building platform request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, orcherrors.Transport(fmt.Sprintf("platform request failed: %s %s", method, path), err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyError(resp, raw)
	}
	return raw, nil
}

func classifyError(resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return orcherrors.Auth("platform rejected credentials", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	case http.StatusNotFound:
		return orcherrors.NotFound("platform entity not found")
	case http.StatusConflict:
		return orcherrors.Conflict("platform naming conflict")
	case http.StatusTooManyRequests:
		var retryAfterMS int64
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				retryAfterMS = int64(secs) * 1000
			}
		}
		return orcherrors.RateLimited("platform rate limited the request", retryAfterMS)
	default:
		return orcherrors.Upstream(orcherrors.SystemPlatform, resp.StatusCode, "platform returned an error", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
}

// ListServers supports startup discovery.
func (c *Client) ListServers(ctx context.Context) ([]Server, error) {
	var servers []Server
	if err := c.do(ctx, "list_servers", http.MethodGet, "/api/v1/servers", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

// ListProjects supports startup discovery.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, "list_projects", http.MethodGet, "/api/v1/projects", nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// CreateAppFromDockerfileInput is create_app_from_dockerfile's input.
type CreateAppFromDockerfileInput struct {
	ProjectUUID      string
	ServerUUID       string
	EnvironmentName  string
	DockerfileBytes  []byte
	PortsExposes     string
	Name             string
	Description      string
	Domains          string
	InstantDeploy    bool
	HealthCheck      HealthCheck
}

type createAppRequest struct {
	ProjectUUID     string      `json:"project_uuid"`
	ServerUUID      string      `json:"server_uuid"`
	EnvironmentName string      `json:"environment_name"`
	Dockerfile      string      `json:"dockerfile_base64"`
	PortsExposes    string      `json:"ports_exposes"`
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	Domains         string      `json:"domains,omitempty"`
	InstantDeploy   bool        `json:"instant_deploy"`
	HealthCheck     HealthCheck `json:"health_check"`
}

// CreateAppFromDockerfile base64-encodes the Dockerfile exactly once and
// submits it along with the remaining creation fields. The returned app
// uuid is all that's guaranteed reliable from this call — C6 must re-assert
// ports/domains/health-check via UpdateApp afterward.
func (c *Client) CreateAppFromDockerfile(ctx context.Context, in CreateAppFromDockerfileInput) (appUUID string, err error) {
	req := createAppRequest{
		ProjectUUID:     in.ProjectUUID,
		ServerUUID:      in.ServerUUID,
		EnvironmentName: in.EnvironmentName,
		Dockerfile:      base64.StdEncoding.EncodeToString(in.DockerfileBytes),
		PortsExposes:    in.PortsExposes,
		Name:            in.Name,
		Description:     in.Description,
		Domains:         in.Domains,
		InstantDeploy:   in.InstantDeploy,
		HealthCheck:     in.HealthCheck,
	}
	var resp struct {
		UUID string `json:"uuid"`
	}
	if err := c.do(ctx, "create_app_from_dockerfile", http.MethodPost, "/api/v1/applications/dockerfile", req, &resp); err != nil {
		return "", err
	}
	return resp.UUID, nil
}

// CreateAppFromDockerImageInput is create_app_from_docker_image's input,
// used when a prebuilt image is preferred over a Dockerfile build.
type CreateAppFromDockerImageInput struct {
	ProjectUUID     string
	ServerUUID      string
	EnvironmentName string
	ImageRef        string
	PortsExposes    string
	Name            string
	Description     string
	Domains         string
	InstantDeploy   bool
	HealthCheck     HealthCheck
}

type createAppFromImageRequest struct {
	ProjectUUID     string      `json:"project_uuid"`
	ServerUUID      string      `json:"server_uuid"`
	EnvironmentName string      `json:"environment_name"`
	DockerImage     string      `json:"docker_image"`
	PortsExposes    string      `json:"ports_exposes"`
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	Domains         string      `json:"domains,omitempty"`
	InstantDeploy   bool        `json:"instant_deploy"`
	HealthCheck     HealthCheck `json:"health_check"`
}

func (c *Client) CreateAppFromDockerImage(ctx context.Context, in CreateAppFromDockerImageInput) (appUUID string, err error) {
	req := createAppFromImageRequest{
		ProjectUUID: in.ProjectUUID, ServerUUID: in.ServerUUID, EnvironmentName: in.EnvironmentName,
		DockerImage: in.ImageRef, PortsExposes: in.PortsExposes, Name: in.Name, Description: in.Description,
		Domains: in.Domains, InstantDeploy: in.InstantDeploy, HealthCheck: in.HealthCheck,
	}
	var resp struct {
		UUID string `json:"uuid"`
	}
	if err := c.do(ctx, "create_app_from_docker_image", http.MethodPost, "/api/v1/applications/dockerimage", req, &resp); err != nil {
		return "", err
	}
	return resp.UUID, nil
}

// UpdateApp applies a partial patch. The create endpoint does not reliably
// accept every field, so C6 re-asserts ports/domains/health-check (and
// sometimes dockerfile) via this call after create.
func (c *Client) UpdateApp(ctx context.Context, appUUID string, partial map[string]interface{}) error {
	path := fmt.Sprintf("/api/v1/applications/%s", appUUID)
	return c.do(ctx, "update_app", http.MethodPatch, path, partial, nil)
}

// GetApp fetches the live application record. App.FQDN is the definitive
// source of the public URL.
func (c *Client) GetApp(ctx context.Context, appUUID string) (*App, error) {
	var app App
	path := fmt.Sprintf("/api/v1/applications/%s", appUUID)
	if err := c.do(ctx, "get_app", http.MethodGet, path, nil, &app); err != nil {
		return nil, err
	}
	return &app, nil
}

// DeleteApp deletes an application. NotFound is treated as success by
// callers (e.g. the create-saga compensator and the delete-saga), not by
// this method, which still surfaces the distinct error.
func (c *Client) DeleteApp(ctx context.Context, appUUID string) error {
	path := fmt.Sprintf("/api/v1/applications/%s", appUUID)
	return c.do(ctx, "delete_app", http.MethodDelete, path, nil, nil)
}

// StartApp, StopApp, RestartApp use GET semantics on the underlying API —
// callers of this gateway are insulated from that; these are requests, not
// confirmations; the resulting container status is observable through GetApp.
func (c *Client) StartApp(ctx context.Context, appUUID string) error {
	return c.do(ctx, "start_app", http.MethodGet, fmt.Sprintf("/api/v1/applications/%s/start", appUUID), nil, nil)
}

func (c *Client) StopApp(ctx context.Context, appUUID string) error {
	return c.do(ctx, "stop_app", http.MethodGet, fmt.Sprintf("/api/v1/applications/%s/stop", appUUID), nil, nil)
}

func (c *Client) RestartApp(ctx context.Context, appUUID string) error {
	return c.do(ctx, "restart_app", http.MethodGet, fmt.Sprintf("/api/v1/applications/%s/restart", appUUID), nil, nil)
}

// DeployApp triggers a build via GET /deploy?uuid=<app_uuid>[&force=true].
func (c *Client) DeployApp(ctx context.Context, appUUID string, force bool) ([]Deployment, error) {
	path := fmt.Sprintf("/deploy?uuid=%s", appUUID)
	if force {
		path += "&force=true"
	}
	var resp struct {
		Deployments []Deployment `json:"deployments"`
	}
	if err := c.do(ctx, "deploy_app", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Deployments, nil
}

// GetLogs tolerates the three observed response shapes: a bare string,
// {logs: string|string[]}, and {stdout, stderr}; it normalizes all three to
// one newline-joined string.
func (c *Client) GetLogs(ctx context.Context, appUUID string, lines int) (string, error) {
	path := fmt.Sprintf("/api/v1/applications/%s/logs?lines=%d", appUUID, lines)
	raw, err := c.doRaw(ctx, "get_logs", http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	return normalizeLogs(raw)
}

func normalizeLogs(raw []byte) (string, error) {
	var bare string
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare, nil
	}

	var shaped struct {
		Logs    json.RawMessage `json:"logs"`
		Stdout  string          `json:"stdout"`
		Stderr  string          `json:"stderr"`
	}
	if err := json.Unmarshal(raw, &shaped); err != nil {
		return "", orcherrors.Protocol(orcherrors.SystemPlatform, "unparseable logs response", err)
	}

	if len(shaped.Logs) > 0 {
		var asString string
		if err := json.Unmarshal(shaped.Logs, &asString); err == nil {
			return asString, nil
		}
		var asSlice []string
		if err := json.Unmarshal(shaped.Logs, &asSlice); err == nil {
			return strings.Join(asSlice, "\n"), nil
		}
	}

	if shaped.Stdout != "" || shaped.Stderr != "" {
		return strings.Join([]string{shaped.Stdout, shaped.Stderr}, "\n"), nil
	}

	return "", nil
}

// ListEnvVars returns an app's env vars. The platform auto-creates preview
// twins of every variable; filterPreview=true excludes them.
func (c *Client) ListEnvVars(ctx context.Context, appUUID string, filterPreview bool) ([]EnvVar, error) {
	var vars []EnvVar
	path := fmt.Sprintf("/api/v1/applications/%s/envs", appUUID)
	if err := c.do(ctx, "list_env_vars", http.MethodGet, path, nil, &vars); err != nil {
		return nil, err
	}
	if !filterPreview {
		return vars, nil
	}
	out := make([]EnvVar, 0, len(vars))
	for _, v := range vars {
		if !v.IsPreview {
			out = append(out, v)
		}
	}
	return out, nil
}

// EnvVar mirrors a single env-var record returned by the platform.
type EnvVar struct {
	UUID      string `json:"uuid"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	IsPreview bool   `json:"is_preview"`
}

// BulkSetEnvVars is preferred over per-variable POST: it avoids known race
// conditions when the platform creates preview twins concurrently.
func (c *Client) BulkSetEnvVars(ctx context.Context, appUUID string, vars map[string]string) error {
	path := fmt.Sprintf("/api/v1/applications/%s/envs/bulk", appUUID)
	return c.do(ctx, "bulk_set_env_vars", http.MethodPatch, path, map[string]interface{}{"data": vars}, nil)
}

// DeleteEnvVar removes one env var by its platform-assigned uuid.
func (c *Client) DeleteEnvVar(ctx context.Context, appUUID, envUUID string) error {
	path := fmt.Sprintf("/api/v1/applications/%s/envs/%s", appUUID, envUUID)
	return c.do(ctx, "delete_env_var", http.MethodDelete, path, nil, nil)
}
