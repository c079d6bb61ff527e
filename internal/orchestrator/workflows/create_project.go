// Package workflows implements the Create-Project and Delete-Project
// sagas as Temporal workflows. Compensation runs as an explicit stack of
// compensators, walked in reverse order on a context detached from
// cancellation via workflow.NewDisconnectedContext, so
// a cancelled or timed-out caller cannot leave remote resources stranded.
package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/imageresolver"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/orchestrator/activities"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/orchestrator/compose"
	"github.com/jordanhubbard/codeopen-orchestrator/pkg/models"
)

// a is never dereferenced; its methods are referenced purely so Temporal
// can resolve activity names by reflection on the call in ExecuteActivity.
var a *activities.Activities

var idempotentRetryPolicy = &temporal.RetryPolicy{
	MaximumAttempts:    3,
	InitialInterval:    200 * time.Millisecond,
	BackoffCoefficient: 2.0,
	MaximumInterval:    2 * time.Second,
}

// ConfigureRetryPolicy overrides the default activity retry policy from
// config.RetryConfig. Must be called before the worker starts polling —
// activity options are read per-schedule, not per-replay, so changing this
// after workflows are already running would apply inconsistently across a
// workflow's own history.
func ConfigureRetryPolicy(maxAttempts int, initialDelay, maxDelay time.Duration) {
	if maxAttempts <= 0 || initialDelay <= 0 || maxDelay <= 0 {
		return
	}
	idempotentRetryPolicy = &temporal.RetryPolicy{
		MaximumAttempts:    int32(maxAttempts),
		InitialInterval:    initialDelay,
		BackoffCoefficient: 2.0,
		MaximumInterval:    maxDelay,
	}
}

func activityOptions() workflow.ActivityOptions {
	return workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         idempotentRetryPolicy,
	}
}

// CreateProjectInput is the Create-Project Saga's input.
type CreateProjectInput struct {
	Name          string
	Description   string
	GithubURL     string
	LLMProviderID string
	LLMModelID    string

	ForgeOwner      string
	ForgeUser       string
	ForgeToken      string
	PublicBaseURL   string
	GitUserEmail    string
	GitUserName     string

	PlatformProjectUUID string
	PlatformServerUUID  string
	HealthCheckPath     string

	PortRangeStart int
	PortRangeEnd   int
	DockerfileBytes []byte

	Catalog  imageresolver.Catalog
	FlavorID string
	AddonIDs []string
	TierID   string
}

// CreateProjectResult is what the workflow returns on success.
type CreateProjectResult struct {
	Project models.Project
}

// compensator is one entry of the saga's reverse-order cleanup stack.
type compensator struct {
	name string
	run  func(workflow.Context) error
}

// CreateProjectWorkflow runs the 11-step saga. On any step's failure it
// runs every successful prior step's compensator in reverse order,
// best-effort, then returns the original (causing) error — never a
// compensation error.
func CreateProjectWorkflow(ctx workflow.Context, input CreateProjectInput) (CreateProjectResult, error) {
	logger := workflow.GetLogger(ctx)
	ctx = workflow.WithActivityOptions(ctx, activityOptions())
	// Repo and app creation are not idempotent, so they run exactly once.
	onceCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})

	var stack []compensator
	runCompensators := func() {
		disconnected, cancel := workflow.NewDisconnectedContext(ctx)
		defer cancel()
		for i := len(stack) - 1; i >= 0; i-- {
			c := stack[i]
			if err := c.run(disconnected); err != nil {
				logger.Warn("compensator failed", "step", c.name, "error", err.Error())
			}
		}
	}

	// Step 1: slug.
	var slugOut activities.GenerateSlugOutput
	if err := workflow.ExecuteActivity(ctx, a.GenerateSlug, activities.GenerateSlugInput{HumanName: input.Name}).Get(ctx, &slugOut); err != nil {
		return CreateProjectResult{}, err
	}
	slug := slugOut.Slug

	// Step 2: resolve the image. Pure and deterministic, so it runs as a
	// direct call in workflow code rather than as an activity — it needs
	// the slug (for the FQDN plan), which is only known after step 1.
	resolution := input.Catalog.Resolve(slug, input.FlavorID, input.AddonIDs, input.TierID)
	for _, w := range resolution.Warnings {
		_ = workflow.ExecuteActivity(ctx, a.LogWarning, "", w).Get(ctx, nil)
	}

	// Step 3: forge repo.
	var repoOut activities.CreateRepoOutput
	if err := workflow.ExecuteActivity(onceCtx, a.CreateRepo, activities.CreateRepoInput{
		Slug: slug, Description: input.Description, GithubURL: input.GithubURL,
	}).Get(ctx, &repoOut); err != nil {
		return CreateProjectResult{}, err
	}
	stack = append(stack, compensator{"delete_repo", func(c workflow.Context) error {
		return workflow.ExecuteActivity(c, a.DeleteRepo, repoOut.Owner, repoOut.Name).Get(c, nil)
	}})

	// Step 4: derive container port (pure). This is the project's stable
	// host-side port identity (invariant 3), distinct from the in-container
	// assistant port the image always listens on (resolution.ExposedPorts[0]),
	// which the platform is the one that actually routes and health-checks.
	hostPort := compose.DerivePort(repoOut.RepoID, input.PortRangeStart, input.PortRangeEnd)
	assistantPort := resolution.ExposedPorts[0]

	// Step 5: the FQDN plan is part of resolution.DomainsConfig, already
	// templated on the final slug by step 2's call to Resolve.

	// Step 6: platform app create.
	var createAppOut activities.CreateAppOutput
	if err := workflow.ExecuteActivity(onceCtx, a.CreateApp, activities.CreateAppInput{
		ProjectUUID: input.PlatformProjectUUID, ServerUUID: input.PlatformServerUUID,
		EnvironmentName: "production", DockerfileBytes: input.DockerfileBytes,
		PortsExposes: compose.PortsExposesString(resolution.ExposedPorts),
		Name:         fmt.Sprintf("opencode-%s", slug), Description: input.Description,
		Domains: resolution.DomainsConfig, HealthCheckPath: input.HealthCheckPath, HealthCheckPort: resolution.ExposedPorts[0],
	}).Get(ctx, &createAppOut); err != nil {
		runCompensators()
		return CreateProjectResult{}, err
	}
	appUUID := createAppOut.AppUUID
	stack = append(stack, compensator{"delete_app", func(c workflow.Context) error {
		return workflow.ExecuteActivity(c, a.DeleteApp, appUUID).Get(c, nil)
	}})

	// Step 7: platform app re-assertion.
	if err := workflow.ExecuteActivity(ctx, a.UpdateApp, activities.UpdateAppInput{
		AppUUID: appUUID, PortsExposes: compose.PortsExposesString(resolution.ExposedPorts),
		Domains: resolution.DomainsConfig, HealthCheckPath: input.HealthCheckPath, HealthCheckPort: resolution.ExposedPorts[0],
	}).Get(ctx, nil); err != nil {
		runCompensators()
		return CreateProjectResult{}, err
	}

	// Step 8: transform clone URL (pure).
	cloneURLPublic, err := compose.PublicCloneURL(repoOut.CloneURL, input.PublicBaseURL)
	if err != nil {
		runCompensators()
		return CreateProjectResult{}, err
	}

	// Step 9: compose env vars. base vars (pure) take precedence over
	// credential vars (an activity, since it touches local encrypted storage).
	var credEnv map[string]string
	if err := workflow.ExecuteActivity(ctx, a.GetCredentialEnvVars, input.LLMProviderID).Get(ctx, &credEnv); err != nil {
		runCompensators()
		return CreateProjectResult{}, err
	}
	baseEnv := compose.BaseEnvVars(assistantPort, "0.0.0.0", cloneURLPublic, input.ForgeUser, input.ForgeToken,
		input.GitUserEmail, input.GitUserName, input.Name)
	env := compose.MergeEnv(credEnv, baseEnv)

	// Step 10: set env vars.
	if err := workflow.ExecuteActivity(ctx, a.BulkSetEnvVars, activities.BulkSetEnvVarsInput{
		AppUUID: appUUID, Vars: env,
	}).Get(ctx, nil); err != nil {
		runCompensators()
		return CreateProjectResult{}, err
	}

	// Step 11: persist.
	project := models.Project{
		Slug: slug, Name: input.Name, Description: input.Description,
		ForgeRepoID: repoOut.RepoID, ForgeOwner: repoOut.Owner, PlatformAppUUID: appUUID,
		ContainerPort: hostPort, Status: models.StatusProvisioning,
		LLMProviderID: input.LLMProviderID, LLMModelID: input.LLMModelID,
		CloneURLPublic: cloneURLPublic,
	}
	if err := workflow.ExecuteActivity(ctx, a.PersistProject, project).Get(ctx, &project); err != nil {
		runCompensators()
		return CreateProjectResult{}, err
	}
	stack = append(stack, compensator{"delete_project_record", func(c workflow.Context) error {
		return workflow.ExecuteActivity(c, a.DeleteProjectRecord, project.ProjectID).Get(c, nil)
	}})

	if err := workflow.ExecuteActivity(ctx, a.UpdateProjectStatus, project.ProjectID, models.StatusStopped, "").Get(ctx, nil); err != nil {
		runCompensators()
		return CreateProjectResult{}, err
	}
	project.Status = models.StatusStopped

	return CreateProjectResult{Project: project}, nil
}
