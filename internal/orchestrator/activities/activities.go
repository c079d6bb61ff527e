// Package activities implements the remote-call steps of the Create-Project
// and Delete-Project sagas as Temporal activities: one activity per
// gateway/store call, so Temporal can retry, time out, and record each
// step independently. Pure steps (slug derivation aside, which still needs
// a store round trip) stay in the owning workflow function instead.
package activities

import (
	"context"
	"fmt"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/forge"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/logging"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/platform"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/store"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/vault"
	"github.com/jordanhubbard/codeopen-orchestrator/pkg/models"

	orcherrors "github.com/jordanhubbard/codeopen-orchestrator/internal/errors"
)

// Activities bundles the dependencies every saga step needs. Its methods
// are registered on the Temporal worker as activities.
type Activities struct {
	Forge    *forge.Client
	Platform *platform.Client
	Vault    *vault.Vault
	Store    store.Store
	Log      *logging.Manager
}

// GenerateSlugInput/Output wrap Store.GenerateUniqueSlug.
type GenerateSlugInput struct{ HumanName string }
type GenerateSlugOutput struct{ Slug string }

func (a *Activities) GenerateSlug(ctx context.Context, in GenerateSlugInput) (GenerateSlugOutput, error) {
	slug, err := a.Store.GenerateUniqueSlug(ctx, in.HumanName)
	if err != nil {
		return GenerateSlugOutput{}, err
	}
	return GenerateSlugOutput{Slug: slug}, nil
}

// CreateRepoInput carries everything needed to either mirror an existing
// repo or create a fresh one, depending on whether GithubURL is set.
type CreateRepoInput struct {
	Slug        string
	Description string
	GithubURL   string
}

type CreateRepoOutput struct {
	RepoID        string
	Owner         string
	Name          string
	CloneURL      string
	DefaultBranch string
}

// CreateRepo mirrors or creates the project's forge repository.
func (a *Activities) CreateRepo(ctx context.Context, in CreateRepoInput) (CreateRepoOutput, error) {
	var repo *forge.Repo
	var err error
	if in.GithubURL != "" {
		repo, err = a.Forge.MirrorRepo(ctx, in.GithubURL, in.Slug, in.Description, false)
	} else {
		repo, err = a.Forge.CreateRepo(ctx, in.Slug, in.Description, false, true, "main")
	}
	if err != nil {
		return CreateRepoOutput{}, err
	}
	return CreateRepoOutput{
		RepoID: fmt.Sprintf("%d", repo.ID), Owner: repo.Owner, Name: repo.Name,
		CloneURL: repo.CloneURL, DefaultBranch: repo.DefaultBranch,
	}, nil
}

// DeleteRepo is the compensator for CreateRepo. NotFound is treated as
// success since the compensation target is "the repo no longer exists".
func (a *Activities) DeleteRepo(ctx context.Context, owner, name string) error {
	err := a.Forge.DeleteRepo(ctx, owner, name)
	if err != nil && !orcherrors.Is(err, orcherrors.KindNotFound) {
		return err
	}
	return nil
}

// CreateAppInput carries everything create_app_from_dockerfile needs.
type CreateAppInput struct {
	ProjectUUID     string
	ServerUUID      string
	EnvironmentName string
	DockerfileBytes []byte
	PortsExposes    string
	Name            string
	Description     string
	Domains         string
	HealthCheckPath string
	HealthCheckPort int
}

type CreateAppOutput struct{ AppUUID string }

// CreateApp creates the platform application with instant_deploy=false;
// the saga deploys explicitly after asserting its full configuration.
func (a *Activities) CreateApp(ctx context.Context, in CreateAppInput) (CreateAppOutput, error) {
	appUUID, err := a.Platform.CreateAppFromDockerfile(ctx, platform.CreateAppFromDockerfileInput{
		ProjectUUID: in.ProjectUUID, ServerUUID: in.ServerUUID, EnvironmentName: in.EnvironmentName,
		DockerfileBytes: in.DockerfileBytes, PortsExposes: in.PortsExposes, Name: in.Name,
		Description: in.Description, Domains: in.Domains, InstantDeploy: false,
		HealthCheck: platform.HealthCheck{Enabled: true, Path: in.HealthCheckPath, Port: in.HealthCheckPort},
	})
	if err != nil {
		return CreateAppOutput{}, err
	}
	return CreateAppOutput{AppUUID: appUUID}, nil
}

// DeleteApp is the compensator shared by CreateApp, UpdateApp (reassertion),
// and BulkSetEnvVars (deleting the app drops its env).
func (a *Activities) DeleteApp(ctx context.Context, appUUID string) error {
	err := a.Platform.DeleteApp(ctx, appUUID)
	if err != nil && !orcherrors.Is(err, orcherrors.KindNotFound) {
		return err
	}
	return nil
}

// UpdateAppInput re-asserts fields the create endpoint doesn't reliably accept.
type UpdateAppInput struct {
	AppUUID         string
	PortsExposes    string
	Domains         string
	HealthCheckPath string
	HealthCheckPort int
}

// UpdateApp re-asserts ports/domains/health-check after app creation.
func (a *Activities) UpdateApp(ctx context.Context, in UpdateAppInput) error {
	return a.Platform.UpdateApp(ctx, in.AppUUID, map[string]interface{}{
		"ports_exposes": in.PortsExposes,
		"domains":       in.Domains,
		"health_check": map[string]interface{}{
			"enabled": true, "path": in.HealthCheckPath, "port": in.HealthCheckPort,
		},
	})
}

// GetCredentialEnvVars resolves a provider's env vars through the vault.
// Run as an activity, not inline workflow code, because it touches local
// encrypted storage whose read path must not run inside Temporal's
// deterministic replay sandbox.
func (a *Activities) GetCredentialEnvVars(ctx context.Context, providerID string) (map[string]string, error) {
	return a.Vault.GetEnvVars(providerID), nil
}

// BulkSetEnvVarsInput carries the fully composed, precedence-resolved env map.
type BulkSetEnvVarsInput struct {
	AppUUID string
	Vars    map[string]string
}

func (a *Activities) BulkSetEnvVars(ctx context.Context, in BulkSetEnvVarsInput) error {
	return a.Platform.BulkSetEnvVars(ctx, in.AppUUID, in.Vars)
}

// PersistProject is the Create-Project Saga's final forward step. It
// returns the stored record, including the project id the store generates,
// since Temporal activities cannot mutate a workflow-owned value in place.
func (a *Activities) PersistProject(ctx context.Context, p models.Project) (models.Project, error) {
	if err := a.Store.Create(ctx, &p); err != nil {
		return models.Project{}, err
	}
	return p, nil
}

// UpdateProjectStatus drives the one allowed status mutation path.
func (a *Activities) UpdateProjectStatus(ctx context.Context, projectID string, status models.ProjectStatus, detail string) error {
	return a.Store.UpdateStatus(ctx, projectID, status, detail)
}

// DeleteProjectRecord is PersistProject's compensator, and the Delete-Project
// Saga's final, always-executed step.
func (a *Activities) DeleteProjectRecord(ctx context.Context, projectID string) error {
	err := a.Store.Delete(ctx, projectID)
	if err != nil && !orcherrors.Is(err, orcherrors.KindNotFound) {
		return err
	}
	return nil
}

// StopApp is used by the Delete-Project Saga's best-effort first step.
func (a *Activities) StopApp(ctx context.Context, appUUID string) error {
	return a.Platform.StopApp(ctx, appUUID)
}

// LoadProject fetches the current project record for the delete saga.
func (a *Activities) LoadProject(ctx context.Context, projectID string) (models.Project, error) {
	p, err := a.Store.GetByID(ctx, projectID)
	if err != nil {
		return models.Project{}, err
	}
	return *p, nil
}

// LogWarning records a saga-level warning (e.g. a compensator failure)
// through the shared log manager, tagged with the saga's project id.
func (a *Activities) LogWarning(ctx context.Context, projectID, message string) error {
	if a.Log != nil {
		a.Log.Warn("saga", message, map[string]interface{}{"project_id": projectID})
	}
	return nil
}
