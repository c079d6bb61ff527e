// Package assistantproxy implements C7: a typed surface over the assistant
// container's own HTTP API (sessions, messages, files, app info, event
// subscription), per project. It owns URL resolution (with a three-step
// fallback cascade), a per-project prepared-client cache, and the
// running-status precondition every operation but the event-stream-URL
// getter enforces.
package assistantproxy

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/cache"
	orcherrors "github.com/jordanhubbard/codeopen-orchestrator/internal/errors"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/metrics"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/platform"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/store"
	"github.com/jordanhubbard/codeopen-orchestrator/pkg/models"
)

// Proxy is C7.
type Proxy struct {
	Store          store.Store
	Platform       *platform.Client
	FQDNs          *cache.FQDNCache
	Clients        *cache.ClientCache
	WildcardDomain string
	Timeout        time.Duration
	Metrics        *metrics.Metrics
}

// Session, Message, FileEntry, and AppInfo mirror the downstream assistant
// API's own response shapes; the proxy passes them through largely as-is.
type Session struct {
	ID        string `json:"id"`
	Title     string `json:"title,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

type MessagePart struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type Message struct {
	ID    string        `json:"id"`
	Role  string        `json:"role"`
	Parts []MessagePart `json:"parts"`
}

type FileEntry struct {
	Path  string `json:"path"`
	IsDir bool   `json:"is_dir"`
}

type AppInfo struct {
	Version string `json:"version"`
	Status  string `json:"status"`
}

// Event is one item of the subscribe_to_events sequence.
type Event struct {
	Type       string                 `json:"type"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// resolveURL implements the cascading fallback: stored fqdn_url, then the
// FQDN cache, then the platform's live app.fqdn (written back to store and
// cache on success), then a constructed wildcard-domain FQDN (also written
// back), else ConfigError.
func (p *Proxy) resolveURL(ctx context.Context, proj *models.Project) (string, error) {
	if proj.FQDNURL != "" {
		return proj.FQDNURL, nil
	}
	if fqdn, ok := p.FQDNs.Get(ctx, proj.ProjectID); ok {
		proj.FQDNURL = fqdn
		return fqdn, nil
	}

	if app, err := p.Platform.GetApp(ctx, proj.PlatformAppUUID); err == nil && app.FQDN != "" {
		if err := p.Store.Update(ctx, proj.ProjectID, map[string]interface{}{"fqdn_url": app.FQDN}); err != nil {
			return "", err
		}
		_ = p.FQDNs.Set(ctx, proj.ProjectID, app.FQDN)
		proj.FQDNURL = app.FQDN
		return app.FQDN, nil
	}

	if p.WildcardDomain != "" {
		fqdn := fmt.Sprintf("opencode-%s.%s", proj.Slug, p.WildcardDomain)
		if err := p.Store.Update(ctx, proj.ProjectID, map[string]interface{}{"fqdn_url": fqdn}); err != nil {
			return "", err
		}
		_ = p.FQDNs.Set(ctx, proj.ProjectID, fqdn)
		proj.FQDNURL = fqdn
		return fqdn, nil
	}

	return "", orcherrors.Config(fmt.Sprintf("no FQDN resolvable for project %s", proj.ProjectID))
}

// clientFor returns the cached prepared client for a project, building and
// caching one on first use via the URL resolution cascade.
func (p *Proxy) clientFor(ctx context.Context, proj *models.Project) (*cache.Client, error) {
	if c, ok := p.Clients.Get(proj.ProjectID); ok {
		if p.Metrics != nil {
			p.Metrics.ProxyCacheHits.Inc()
		}
		return c, nil
	}
	if p.Metrics != nil {
		p.Metrics.ProxyCacheMisses.Inc()
	}

	fqdn, err := p.resolveURL(ctx, proj)
	if err != nil {
		return nil, err
	}

	timeout := p.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	c := &cache.Client{
		BaseURL: "https://" + fqdn,
		HTTP:    &http.Client{Timeout: timeout},
	}
	p.Clients.Set(proj.ProjectID, c)
	return c, nil
}

// loadRunning loads the project and enforces the running-status
// precondition every operation except GetEventStreamURL requires.
func (p *Proxy) loadRunning(ctx context.Context, projectID string) (*models.Project, *cache.Client, error) {
	proj, err := p.Store.GetByID(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if proj.Status != models.StatusRunning {
		return nil, nil, orcherrors.ServiceUnavailable(fmt.Sprintf("project %s is not running", projectID))
	}
	client, err := p.clientFor(ctx, proj)
	if err != nil {
		return nil, nil, err
	}
	return proj, client, nil
}

func (p *Proxy) do(ctx context.Context, client *cache.Client, operation, method, path string, body interface{}, out interface{}) error {
	start := time.Now()
	err := p.doUninstrumented(ctx, client, method, path, body, out)
	if p.Metrics != nil {
		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		p.Metrics.ProxyRequestsTotal.WithLabelValues(operation, outcome).Inc()
		p.Metrics.ProxyRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
	return err
}

func (p *Proxy) doUninstrumented(ctx context.Context, client *cache.Client, method, path string, body interface{}, out interface{}) error {
	httpClient, _ := client.HTTP.(*http.Client)
	var reqBody *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return orcherrors.Internal("marshaling downstream request", err)
		}
		reqBody = bytes.NewReader(data)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, client.BaseURL+path, reqBody)
	if err != nil {
		return orcherrors.Internal("building downstream request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return orcherrors.Transport("calling assistant proxy", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return classifyError(resp.StatusCode)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return orcherrors.Internal("decoding downstream response", err)
		}
	}
	return nil
}

func classifyError(statusCode int) error {
	switch {
	case statusCode == http.StatusNotFound:
		return orcherrors.NotFound("downstream resource not found")
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return orcherrors.Auth("downstream rejected credentials", nil)
	case statusCode == http.StatusConflict:
		return orcherrors.Conflict("downstream conflict")
	case statusCode == http.StatusTooManyRequests:
		return orcherrors.RateLimited("downstream rate limited", 0)
	case statusCode >= 400 && statusCode < 500:
		return orcherrors.Validation(fmt.Sprintf("downstream rejected request (status %d)", statusCode))
	default:
		return orcherrors.Upstream(orcherrors.SystemAssistant, statusCode, "downstream assistant error", nil)
	}
}

// ListSessions returns the project's assistant sessions.
func (p *Proxy) ListSessions(ctx context.Context, projectID string) ([]Session, error) {
	_, client, err := p.loadRunning(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var sessions []Session
	if err := p.do(ctx, client, "list_sessions", http.MethodGet, "/session", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ListMessages returns a session's messages.
func (p *Proxy) ListMessages(ctx context.Context, projectID, sessionID string) ([]Message, error) {
	_, client, err := p.loadRunning(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var messages []Message
	if err := p.do(ctx, client, "list_messages", http.MethodGet, "/session/"+sessionID+"/message", nil, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendMessage posts a new message's parts to a session.
func (p *Proxy) SendMessage(ctx context.Context, projectID, sessionID string, parts []MessagePart) (*Message, error) {
	_, client, err := p.loadRunning(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var msg Message
	if err := p.do(ctx, client, "send_message", http.MethodPost, "/session/"+sessionID+"/message", map[string]interface{}{"parts": parts}, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListFiles lists files under a path in the project's workspace.
func (p *Proxy) ListFiles(ctx context.Context, projectID, path string) ([]FileEntry, error) {
	_, client, err := p.loadRunning(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var entries []FileEntry
	if err := p.do(ctx, client, "list_files", http.MethodGet, "/file?path="+path, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadFile returns a single file's contents.
func (p *Proxy) ReadFile(ctx context.Context, projectID, path string) (string, error) {
	_, client, err := p.loadRunning(ctx, projectID)
	if err != nil {
		return "", err
	}
	var out struct {
		Content string `json:"content"`
	}
	if err := p.do(ctx, client, "read_file", http.MethodGet, "/file/content?path="+path, nil, &out); err != nil {
		return "", err
	}
	return out.Content, nil
}

// FindInFiles runs a text search across the project's workspace.
func (p *Proxy) FindInFiles(ctx context.Context, projectID, query string) ([]FileEntry, error) {
	_, client, err := p.loadRunning(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var entries []FileEntry
	if err := p.do(ctx, client, "find_in_files", http.MethodGet, "/find?q="+query, nil, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// GetAppInfo returns the assistant container's own version/status info.
func (p *Proxy) GetAppInfo(ctx context.Context, projectID string) (*AppInfo, error) {
	_, client, err := p.loadRunning(ctx, projectID)
	if err != nil {
		return nil, err
	}
	var info AppInfo
	if err := p.do(ctx, client, "get_app_info", http.MethodGet, "/app", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// SubscribeToEvents opens a server-sent-events connection to the
// assistant's /event endpoint and returns a channel of decoded events. The
// channel closes when the downstream stream ends or ctx is cancelled;
// callers range over it rather than polling.
func (p *Proxy) SubscribeToEvents(ctx context.Context, projectID string) (<-chan Event, error) {
	_, client, err := p.loadRunning(ctx, projectID)
	if err != nil {
		return nil, err
	}
	httpClient, _ := client.HTTP.(*http.Client)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.BaseURL+"/event", nil)
	if err != nil {
		return nil, orcherrors.Internal("building event stream request", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, orcherrors.Transport("opening event stream", err)
	}
	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, classifyError(resp.StatusCode)
	}

	events := make(chan Event)
	go func() {
		defer close(events)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return
			default:
			}
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			var ev Event
			if err := json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(line, "data:"))), &ev); err != nil {
				continue
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, nil
}

// GetEventStreamURL returns a URL the caller may connect to directly,
// bypassing the proxy for the streaming connection itself. Unlike every
// other operation, this does not require project.status == "running" — a
// caller may want the URL to connect to once the project starts.
func (p *Proxy) GetEventStreamURL(ctx context.Context, projectID string) (string, error) {
	proj, err := p.Store.GetByID(ctx, projectID)
	if err != nil {
		return "", err
	}
	fqdn, err := p.resolveURL(ctx, proj)
	if err != nil {
		return "", err
	}
	return "https://" + fqdn + "/event", nil
}

// EvictClient drops the cached prepared client for a project, called on
// stop_project and delete_project_fully so a later restart re-resolves the
// URL instead of reusing a stale connection pool.
func (p *Proxy) EvictClient(projectID string) {
	p.Clients.Evict(projectID)
	p.FQDNs.Delete(context.Background(), projectID)
}
