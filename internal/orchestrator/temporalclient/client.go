// Package temporalclient wraps the Temporal SDK client with the
// retry-on-connect and logging behavior this module's ambient stack uses
// everywhere else, so the orchestrator service never touches the raw SDK
// client directly.
package temporalclient

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/config"
)

// Client wraps the Temporal client with this module's connection and
// logging conventions.
type Client struct {
	temporal  client.Client
	namespace string
	taskQueue string
}

// New connects to Temporal with bounded exponential-backoff retries, since
// the orchestrator and the Temporal server are typically started together
// and the server may not be ready on the orchestrator's first attempt.
func New(cfg config.TemporalConfig) (*Client, error) {
	if cfg.HostPort == "" {
		return nil, fmt.Errorf("temporal host_port is required")
	}

	const maxRetries = 5
	baseDelay := 2 * time.Second

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			delay := baseDelay * time.Duration(1<<uint(attempt-1))
			log.Printf("temporalclient: retrying connection in %v (attempt %d/%d)", delay, attempt+1, maxRetries)
			time.Sleep(delay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		c, err := client.DialContext(ctx, client.Options{
			HostPort:  cfg.HostPort,
			Namespace: cfg.Namespace,
			Logger:    &sdkLogger{},
		})
		cancel()

		if err == nil {
			log.Printf("temporalclient: connected to %s (namespace=%s)", cfg.HostPort, cfg.Namespace)
			return &Client{temporal: c, namespace: cfg.Namespace, taskQueue: cfg.TaskQueue}, nil
		}
		lastErr = err
		log.Printf("temporalclient: connection attempt %d failed: %v", attempt+1, err)
	}
	return nil, fmt.Errorf("connecting to temporal after %d attempts: %w", maxRetries, lastErr)
}

// Close releases the underlying connection.
func (c *Client) Close() {
	if c != nil && c.temporal != nil {
		c.temporal.Close()
	}
}

// TaskQueue returns the task queue every workflow in this module is started on.
func (c *Client) TaskQueue() string { return c.taskQueue }

// ExecuteWorkflow starts a workflow execution.
func (c *Client) ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflowFunc interface{}, args ...interface{}) (client.WorkflowRun, error) {
	return c.temporal.ExecuteWorkflow(ctx, options, workflowFunc, args...)
}

// Raw returns the underlying SDK client, for the worker's RegisterWorkflow/
// RegisterActivity calls made at startup.
func (c *Client) Raw() client.Client { return c.temporal }

type sdkLogger struct{}

func (l *sdkLogger) Debug(msg string, keyvals ...interface{}) { log.Printf("[temporal DEBUG] %s %v", msg, keyvals) }
func (l *sdkLogger) Info(msg string, keyvals ...interface{})  { log.Printf("[temporal INFO] %s %v", msg, keyvals) }
func (l *sdkLogger) Warn(msg string, keyvals ...interface{})  { log.Printf("[temporal WARN] %s %v", msg, keyvals) }
func (l *sdkLogger) Error(msg string, keyvals ...interface{}) { log.Printf("[temporal ERROR] %s %v", msg, keyvals) }
