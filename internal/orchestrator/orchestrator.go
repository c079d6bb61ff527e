// Package orchestrator implements C6: the Create- and Delete-Project sagas
// (via Temporal, see the workflows package) plus the lifecycle operations
// that don't warrant a full saga — start/stop/restart/deploy/get_logs/
// get_project_with_status/update_credentials/sync_credentials_to_all_projects.
// These run as direct calls, not as Temporal workflows; start/stop/restart,
// deploy and the credential updates are serialized per project_id through a
// Locker, while get_logs and get_project_with_status take no lock. Each is
// a single bounded remote call, and workflow-per-call would add overhead
// without adding reliability.
package orchestrator

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/database"
	orcherrors "github.com/jordanhubbard/codeopen-orchestrator/internal/errors"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/forge"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/imageresolver"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/logging"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/messagebus"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/metrics"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/orchestrator/temporalclient"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/orchestrator/workflows"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/platform"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/store"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/vault"
	"github.com/jordanhubbard/codeopen-orchestrator/pkg/models"
)

// Deps bundles every collaborator the orchestrator service wires together.
type Deps struct {
	Forge    *forge.Client
	Platform *platform.Client
	Catalog  imageresolver.Catalog
	Vault    *vault.Vault
	Store    store.Store
	Temporal *temporalclient.Client
	Locker   database.Locker
	Bus      *messagebus.Bus
	Log      *logging.Manager
	Metrics  *metrics.Metrics

	ForgeOwner    string
	GitUserEmail  string
	GitUserName   string
	PublicBaseURL string
	PortRangeStart int
	PortRangeEnd   int
	HealthCheckPath string
}

// Orchestrator implements C6's public operations.
type Orchestrator struct {
	d Deps
}

// New constructs the orchestrator service.
func New(d Deps) *Orchestrator {
	return &Orchestrator{d: d}
}

// CreateProjectRequest is the Create-Project Saga's API-facing input.
type CreateProjectRequest struct {
	Name          string
	Description   string
	GithubURL     string
	LLMProviderID string
	LLMModelID    string
	FlavorID      string
	AddonIDs      []string
	TierID        string
	Dockerfile    []byte
}

// CreateProject starts the Create-Project Saga and waits for it to finish.
// The saga itself, not this method, owns at-most-once semantics: Temporal
// does not retry a failed saga automatically, matching the no-partial-
// projects guarantee.
func (o *Orchestrator) CreateProject(ctx context.Context, req CreateProjectRequest) (result *models.Project, err error) {
	start := time.Now()
	defer func() { o.recordSaga("create_project", start, err) }()

	forgeToken := ""
	llmProviderID := req.LLMProviderID
	if o.d.Vault != nil {
		if tok, ok := o.d.Vault.GetSetting("forge_token"); ok {
			forgeToken = tok
		}
		if llmProviderID == "" {
			if def, ok := o.d.Vault.DefaultProviderID(); ok {
				llmProviderID = def
			}
		}
	}

	input := workflows.CreateProjectInput{
		Name: req.Name, Description: req.Description, GithubURL: req.GithubURL,
		LLMProviderID: llmProviderID, LLMModelID: req.LLMModelID,
		ForgeOwner: o.d.ForgeOwner, ForgeUser: o.d.ForgeOwner, ForgeToken: forgeToken,
		PublicBaseURL: o.d.PublicBaseURL, GitUserEmail: o.d.GitUserEmail, GitUserName: o.d.GitUserName,
		PlatformProjectUUID: "", PlatformServerUUID: "", HealthCheckPath: o.d.HealthCheckPath,
		PortRangeStart: o.d.PortRangeStart, PortRangeEnd: o.d.PortRangeEnd, DockerfileBytes: req.Dockerfile,
		Catalog: o.d.Catalog, FlavorID: req.FlavorID, AddonIDs: req.AddonIDs, TierID: req.TierID,
	}

	run, err := o.d.Temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "create-project-" + req.Name + "-" + fmt.Sprintf("%d", time.Now().UnixNano()),
		TaskQueue: o.d.Temporal.TaskQueue(),
	}, workflows.CreateProjectWorkflow, input)
	if err != nil {
		return nil, orcherrors.Internal("starting create-project saga", err)
	}

	var wfResult workflows.CreateProjectResult
	if err = run.Get(ctx, &wfResult); err != nil {
		return nil, orcherrors.Internal("create-project saga failed", err)
	}

	o.d.Bus.PublishProjectEvent(messagebus.ProjectEvent{
		ProjectID: wfResult.Project.ProjectID, EventType: "created", OccurredAtUnix: time.Now().Unix(),
	})
	if o.d.Metrics != nil {
		o.d.Metrics.ProjectsTotal.WithLabelValues(string(wfResult.Project.Status)).Inc()
	}
	return &wfResult.Project, nil
}

func (o *Orchestrator) recordSaga(saga string, start time.Time, err error) {
	if o.d.Metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	o.d.Metrics.SagaExecutions.WithLabelValues(saga, outcome).Inc()
	o.d.Metrics.SagaDuration.WithLabelValues(saga).Observe(time.Since(start).Seconds())
}

// DeleteProject starts the Delete-Project Saga and waits for it to finish.
func (o *Orchestrator) DeleteProject(ctx context.Context, projectID string, deleteRepo bool) (warnings []string, err error) {
	start := time.Now()
	defer func() { o.recordSaga("delete_project", start, err) }()

	run, err := o.d.Temporal.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:        "delete-project-" + projectID,
		TaskQueue: o.d.Temporal.TaskQueue(),
	}, workflows.DeleteProjectWorkflow, workflows.DeleteProjectInput{ProjectID: projectID, DeleteRepo: deleteRepo})
	if err != nil {
		return nil, orcherrors.Internal("starting delete-project saga", err)
	}

	var result workflows.DeleteProjectResult
	if err = run.Get(ctx, &result); err != nil {
		return nil, orcherrors.Internal("delete-project saga failed", err)
	}

	o.d.Bus.PublishProjectEvent(messagebus.ProjectEvent{
		ProjectID: projectID, EventType: "deleted", OccurredAtUnix: time.Now().Unix(),
	})
	return result.Warnings, nil
}

// lifecycleOp runs load->C2 call->status update under the project's lock,
// setting status to errorStatus with the failure detail on C2 failure.
func (o *Orchestrator) lifecycleOp(ctx context.Context, projectID string, targetStatus models.ProjectStatus, call func(ctx context.Context, p *models.Project) error) error {
	return o.d.Locker.WithLock(ctx, "project:"+projectID, func(ctx context.Context) error {
		p, err := o.d.Store.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		if err := call(ctx, p); err != nil {
			_ = o.d.Store.UpdateStatus(ctx, projectID, models.StatusError, err.Error())
			o.moveProjectGauge(p.Status, models.StatusError)
			return err
		}
		if err := o.d.Store.UpdateStatus(ctx, projectID, targetStatus, ""); err != nil {
			return err
		}
		o.moveProjectGauge(p.Status, targetStatus)
		return nil
	})
}

// moveProjectGauge keeps ProjectsTotal's per-status breakdown in sync with
// the lifecycle transitions this service drives directly (CreateProject
// counts newly created projects; DeleteProject does not touch the gauge).
func (o *Orchestrator) moveProjectGauge(from, to models.ProjectStatus) {
	if o.d.Metrics == nil || from == to {
		return
	}
	o.d.Metrics.ProjectsTotal.WithLabelValues(string(from)).Dec()
	o.d.Metrics.ProjectsTotal.WithLabelValues(string(to)).Inc()
}

// StartProject starts the project's container and marks it running.
func (o *Orchestrator) StartProject(ctx context.Context, projectID string) error {
	return o.lifecycleOp(ctx, projectID, models.StatusRunning, func(ctx context.Context, p *models.Project) error {
		return o.d.Platform.StartApp(ctx, p.PlatformAppUUID)
	})
}

// StopProject stops the project's container and marks it stopped.
func (o *Orchestrator) StopProject(ctx context.Context, projectID string) error {
	return o.lifecycleOp(ctx, projectID, models.StatusStopped, func(ctx context.Context, p *models.Project) error {
		return o.d.Platform.StopApp(ctx, p.PlatformAppUUID)
	})
}

// RestartProject restarts the project's container and marks it running.
func (o *Orchestrator) RestartProject(ctx context.Context, projectID string) error {
	return o.lifecycleOp(ctx, projectID, models.StatusRunning, func(ctx context.Context, p *models.Project) error {
		return o.d.Platform.RestartApp(ctx, p.PlatformAppUUID)
	})
}

// DeployResult is what DeployProject returns.
type DeployResult struct {
	Message      string
	DeploymentID string
}

// DeployProject re-asserts the current Dockerfile (non-fatal on failure,
// since the platform will redeploy whatever it already has cached) then
// triggers a deploy.
func (o *Orchestrator) DeployProject(ctx context.Context, projectID string, dockerfile []byte, force bool) (*DeployResult, error) {
	var result DeployResult
	err := o.d.Locker.WithLock(ctx, "project:"+projectID, func(ctx context.Context) error {
		p, err := o.d.Store.GetByID(ctx, projectID)
		if err != nil {
			return err
		}

		if len(dockerfile) > 0 {
			encoded := base64.StdEncoding.EncodeToString(dockerfile)
			if err := o.d.Platform.UpdateApp(ctx, p.PlatformAppUUID, map[string]interface{}{"dockerfile_base64": encoded}); err != nil {
				o.d.Log.Warn("deploy", "dockerfile update rejected, platform will redeploy cached content", map[string]interface{}{
					"project_id": projectID, "error": err.Error(),
				})
			}
		}

		deployments, err := o.d.Platform.DeployApp(ctx, p.PlatformAppUUID, force)
		if err != nil {
			return err
		}
		if len(deployments) > 0 {
			result = DeployResult{Message: deployments[0].Message, DeploymentID: deployments[0].DeploymentUUID}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// GetLogs returns the project's recent container log output.
func (o *Orchestrator) GetLogs(ctx context.Context, projectID string, lines int) (string, error) {
	if lines <= 0 {
		lines = 100
	}
	p, err := o.d.Store.GetByID(ctx, projectID)
	if err != nil {
		return "", err
	}
	return o.d.Platform.GetLogs(ctx, p.PlatformAppUUID, lines)
}

// ListProjects returns every stored project, unfiltered.
func (o *Orchestrator) ListProjects(ctx context.Context) ([]*models.Project, error) {
	return o.d.Store.List(ctx)
}

// GetProjectWithStatus merges the stored project with the platform's live
// container status. A platform failure never fails the call — the merged
// view degrades to container_status = "unknown" instead.
func (o *Orchestrator) GetProjectWithStatus(ctx context.Context, projectID string) (*models.ProjectWithStatus, error) {
	p, err := o.d.Store.GetByID(ctx, projectID)
	if err != nil {
		return nil, err
	}
	status := "unknown"
	if app, err := o.d.Platform.GetApp(ctx, p.PlatformAppUUID); err == nil {
		status = app.Status
	}
	return &models.ProjectWithStatus{Project: *p, ContainerStatus: status}, nil
}

// updateCredentials is the common body of UpdateCredentials and each
// project touched by SyncCredentialsToAllProjects.
func (o *Orchestrator) updateCredentials(ctx context.Context, projectID, providerID string) error {
	return o.d.Locker.WithLock(ctx, "project:"+projectID, func(ctx context.Context) error {
		p, err := o.d.Store.GetByID(ctx, projectID)
		if err != nil {
			return err
		}
		env := o.d.Vault.GetEnvVars(providerID)
		if err := o.d.Platform.BulkSetEnvVars(ctx, p.PlatformAppUUID, env); err != nil {
			return err
		}
		if err := o.d.Store.Update(ctx, projectID, map[string]interface{}{"llm_provider_id": providerID}); err != nil {
			return err
		}
		if p.Status == models.StatusRunning {
			return o.d.Platform.RestartApp(ctx, p.PlatformAppUUID)
		}
		return nil
	})
}

// UpdateCredentials composes and pushes fresh credentials to one project,
// restarting its container iff it is currently running so the container
// re-reads credentials at boot.
func (o *Orchestrator) UpdateCredentials(ctx context.Context, projectID, providerID string) error {
	return o.updateCredentials(ctx, projectID, providerID)
}

// SyncResult reports the outcome of a fleet-wide credential sync.
type SyncResult struct {
	Updated int
	Failed  int
}

// SyncCredentialsToAllProjects updates every running project's credentials.
// Per-project failures are counted, not propagated — one broken project
// must not block the rest of the fleet from picking up rotated credentials.
func (o *Orchestrator) SyncCredentialsToAllProjects(ctx context.Context, providerID string) (SyncResult, error) {
	projects, err := o.d.Store.List(ctx)
	if err != nil {
		return SyncResult{}, err
	}
	var result SyncResult
	for _, p := range projects {
		if p.Status != models.StatusRunning {
			continue
		}
		if err := o.updateCredentials(ctx, p.ProjectID, providerID); err != nil {
			result.Failed++
			o.d.Log.Warn("credential_sync", "project update failed", map[string]interface{}{
				"project_id": p.ProjectID, "error": err.Error(),
			})
			continue
		}
		result.Updated++
	}
	return result, nil
}
