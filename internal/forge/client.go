// Package forge implements C1, a thin typed client over the self-hosted
// git forge's REST API. No operation retries internally — retry policy is
// owned entirely by C6 (orchestrator).
package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	orcherrors "github.com/jordanhubbard/codeopen-orchestrator/internal/errors"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/metrics"
)

// User is the forge's authenticated-user record.
type User struct {
	ID       int64  `json:"id"`
	Login    string `json:"login"`
	FullName string `json:"full_name"`
}

// Repo is the forge's repository record.
type Repo struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	Owner         string `json:"owner"`
	CloneURL      string `json:"clone_url"`
	HTMLURL       string `json:"html_url"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

// Content is a single entry from list_contents (file or directory).
type Content struct {
	Name        string `json:"name"`
	Path        string `json:"path"`
	Type        string `json:"type"` // "file" | "dir"
	Content     string `json:"content,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
}

// Client is the Forge Gateway (C1).
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	metrics *metrics.Metrics
}

// New creates a Forge Gateway client. token is sent as "Authorization:
// token <token>" — not Bearer — matching the forge's documented auth
// scheme bit-faithfully.
func New(baseURL, token string) *Client {
	return &Client{baseURL: baseURL, token: token, http: &http.Client{Timeout: 30 * time.Second}}
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
	c.metrics.GatewayCalls.WithLabelValues("forge", operation, outcome).Inc()
	c.metrics.GatewayLatency.WithLabelValues("forge", operation).Observe(time.Since(start).Seconds())
}

func (c *Client) do(ctx context.Context, operation, method, path string, body interface{}, out interface{}) (*http.Response, error) {
	start := time.Now()
	resp, err := c.doUninstrumented(ctx, method, path, body, out)
	c.recordCall(operation, start, err)
	return resp, err
}

func (c *Client) doUninstrumented(ctx context.Context, method, path string, body interface{}, out interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, orcherrors.Internal("marshaling forge request body", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, orcherrors.Internal("building forge request", err)
	}
	req.Header.Set("Authorization", "token "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, orcherrors.Transport(fmt.Sprintf("forge request failed: %s %s", method, path), err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if out != nil {
			defer resp.Body.Close()
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return resp, orcherrors.Protocol(orcherrors.SystemForge, "unparseable forge response", err)
			}
		}
		return resp, nil
	}

	defer resp.Body.Close()
	body2, _ := io.ReadAll(resp.Body)
	return resp, classifyError(resp, body2)
}

func classifyError(resp *http.Response, body []byte) error {
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return orcherrors.Auth("forge rejected credentials", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	case http.StatusNotFound:
		return orcherrors.NotFound("forge entity not found")
	case http.StatusConflict:
		return orcherrors.Conflict("forge naming conflict")
	case http.StatusTooManyRequests:
		retryAfterMS := int64(0)
		if v := resp.Header.Get("Retry-After"); v != "" {
			if secs, err := strconv.Atoi(v); err == nil {
				retryAfterMS = int64(secs) * 1000
			}
		}
		return orcherrors.RateLimited("forge rate limited the request", retryAfterMS)
	default:
		return orcherrors.Upstream(orcherrors.SystemForge, resp.StatusCode, "forge returned an error", fmt.Errorf("status %d: %s", resp.StatusCode, body))
	}
}

// GetCurrentUser returns the authenticated user for the configured token.
func (c *Client) GetCurrentUser(ctx context.Context) (*User, error) {
	var user User
	if _, err := c.do(ctx, "get_current_user", http.MethodGet, "/api/v1/user", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

type createRepoRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	Private       bool   `json:"private"`
	AutoInit      bool   `json:"auto_init"`
	DefaultBranch string `json:"default_branch"`
}

// CreateRepo is not idempotent: a name collision surfaces Conflict. The
// orchestrator handles uniqueness upstream via slug generation.
func (c *Client) CreateRepo(ctx context.Context, name, description string, private, autoInit bool, defaultBranch string) (*Repo, error) {
	var repo Repo
	req := createRepoRequest{Name: name, Description: description, Private: private, AutoInit: autoInit, DefaultBranch: defaultBranch}
	if _, err := c.do(ctx, "create_repo", http.MethodPost, "/api/v1/user/repos", req, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

type mirrorRepoRequest struct {
	CloneAddr   string `json:"clone_addr"`
	RepoName    string `json:"repo_name"`
	Description string `json:"description"`
	Private     bool   `json:"private"`
	Mirror      bool   `json:"mirror"`
}

// MirrorRepo creates targetName as a one-time import from cloneFromURL
// (mirror=false: a one-shot copy, not a live mirror).
func (c *Client) MirrorRepo(ctx context.Context, cloneFromURL, targetName, description string, private bool) (*Repo, error) {
	var repo Repo
	req := mirrorRepoRequest{CloneAddr: cloneFromURL, RepoName: targetName, Description: description, Private: private, Mirror: false}
	if _, err := c.do(ctx, "mirror_repo", http.MethodPost, "/api/v1/repos/migrate", req, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// GetRepo fetches a single repository by owner/name.
func (c *Client) GetRepo(ctx context.Context, owner, name string) (*Repo, error) {
	var repo Repo
	path := fmt.Sprintf("/api/v1/repos/%s/%s", owner, name)
	if _, err := c.do(ctx, "get_repo", http.MethodGet, path, nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

// RepoExists is get_repo with NotFound suppressed to false.
func (c *Client) RepoExists(ctx context.Context, owner, name string) (bool, error) {
	_, err := c.GetRepo(ctx, owner, name)
	if err == nil {
		return true, nil
	}
	if orcherrors.Is(err, orcherrors.KindNotFound) {
		return false, nil
	}
	return false, err
}

// DeleteRepo is idempotent from the caller's perspective: NotFound is
// treated as success by the saga's compensators, not by this method — this
// method still returns the NotFound error so callers can distinguish.
func (c *Client) DeleteRepo(ctx context.Context, owner, name string) error {
	path := fmt.Sprintf("/api/v1/repos/%s/%s", owner, name)
	_, err := c.do(ctx, "delete_repo", http.MethodDelete, path, nil, nil)
	return err
}

// ListContents lists (or fetches) repository content at path/ref.
func (c *Client) ListContents(ctx context.Context, owner, name, path, ref string) ([]Content, error) {
	url := fmt.Sprintf("/api/v1/repos/%s/%s/contents/%s", owner, name, path)
	if ref != "" {
		url += "?ref=" + ref
	}

	raw, err := c.getRaw(ctx, "list_contents", url)
	if err != nil {
		return nil, err
	}

	var list []Content
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}
	var single Content
	if err := json.Unmarshal(raw, &single); err != nil {
		return nil, orcherrors.Protocol(orcherrors.SystemForge, "unparseable contents response", err)
	}
	return []Content{single}, nil
}

func (c *Client) getRaw(ctx context.Context, operation, path string) ([]byte, error) {
	start := time.Now()
	body, err := c.getRawUninstrumented(ctx, path)
	c.recordCall(operation, start, err)
	return body, err
}

func (c *Client) getRawUninstrumented(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, orcherrors.Internal("building forge request", err)
	}
	req.Header.Set("Authorization", "token "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, orcherrors.Transport("forge request failed", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, classifyError(resp, body)
	}
	return body, nil
}
