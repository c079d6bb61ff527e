package workflows

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/testsuite"

	"github.com/jordanhubbard/codeopen-orchestrator/internal/imageresolver"
	"github.com/jordanhubbard/codeopen-orchestrator/internal/orchestrator/activities"
	"github.com/jordanhubbard/codeopen-orchestrator/pkg/models"
)

func testCatalog() imageresolver.Catalog {
	return imageresolver.Catalog{
		Flavors:           map[string]imageresolver.Flavor{"standard": {ID: "standard"}},
		Tiers:             map[string]imageresolver.Tier{"small": {ID: "small", CPUMillicores: 500, MemoryMB: 512}},
		DefaultFlavorID:   "standard",
		DefaultTierID:     "small",
		Registry:          "registry.example.com",
		Owner:             "codeopen",
		Version:           "latest",
		BaseAssistantPort: 4096,
		GatewayPort:       4097,
	}
}

func baseCreateInput() CreateProjectInput {
	return CreateProjectInput{
		Name: "My Project", Description: "desc", LLMProviderID: "openai",
		ForgeOwner: "codeopen-bot", ForgeUser: "codeopen-bot", ForgeToken: "tok",
		PortRangeStart: 10000, PortRangeEnd: 20000,
		Catalog: testCatalog(),
	}
}

func TestCreateProjectWorkflow_Success(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	env.OnActivity(a.GenerateSlug, mock.Anything, mock.Anything).
		Return(activities.GenerateSlugOutput{Slug: "my-project"}, nil)
	env.OnActivity(a.CreateRepo, mock.Anything, mock.Anything).
		Return(activities.CreateRepoOutput{
			RepoID: "1", Owner: "codeopen-bot", Name: "my-project",
			CloneURL: "http://forge-internal:3000/codeopen-bot/my-project.git", DefaultBranch: "main",
		}, nil)
	env.OnActivity(a.CreateApp, mock.Anything, mock.Anything).
		Return(activities.CreateAppOutput{AppUUID: "app-1"}, nil)
	env.OnActivity(a.UpdateApp, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.GetCredentialEnvVars, mock.Anything, mock.Anything).
		Return(map[string]string{"OPENAI_API_KEY": "sk-test"}, nil)
	var setEnvInput activities.BulkSetEnvVarsInput
	env.OnActivity(a.BulkSetEnvVars, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { setEnvInput = args.Get(1).(activities.BulkSetEnvVarsInput) }).
		Return(nil)
	env.OnActivity(a.PersistProject, mock.Anything, mock.Anything).
		Return(func(_ interface{}, p models.Project) (models.Project, error) {
			p.ProjectID = "proj-1"
			return p, nil
		})
	env.OnActivity(a.UpdateProjectStatus, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(CreateProjectWorkflow, baseCreateInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result CreateProjectResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.Equal(t, "proj-1", result.Project.ProjectID)
	require.Equal(t, models.StatusStopped, result.Project.Status)
	require.Equal(t, "app-1", result.Project.PlatformAppUUID)
	require.Equal(t, "4096", setEnvInput.Vars["OPENCODE_PORT"])
}

func TestCreateProjectWorkflow_ContainerPortDistinctFromAssistantPort(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	env.OnActivity(a.GenerateSlug, mock.Anything, mock.Anything).
		Return(activities.GenerateSlugOutput{Slug: "my-project"}, nil)
	env.OnActivity(a.CreateRepo, mock.Anything, mock.Anything).
		Return(activities.CreateRepoOutput{
			RepoID: "1", Owner: "codeopen-bot", Name: "my-project",
			CloneURL: "http://forge-internal:3000/codeopen-bot/my-project.git", DefaultBranch: "main",
		}, nil)
	env.OnActivity(a.CreateApp, mock.Anything, mock.Anything).
		Return(activities.CreateAppOutput{AppUUID: "app-1"}, nil)
	env.OnActivity(a.UpdateApp, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.GetCredentialEnvVars, mock.Anything, mock.Anything).
		Return(map[string]string{}, nil)
	env.OnActivity(a.BulkSetEnvVars, mock.Anything, mock.Anything).Return(nil)
	env.OnActivity(a.PersistProject, mock.Anything, mock.Anything).
		Return(func(_ interface{}, p models.Project) (models.Project, error) {
			p.ProjectID = "proj-1"
			return p, nil
		})
	env.OnActivity(a.UpdateProjectStatus, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	env.ExecuteWorkflow(CreateProjectWorkflow, baseCreateInput())

	require.True(t, env.IsWorkflowCompleted())
	require.NoError(t, env.GetWorkflowError())

	var result CreateProjectResult
	require.NoError(t, env.GetWorkflowResult(&result))
	require.GreaterOrEqual(t, result.Project.ContainerPort, 10000)
	require.Less(t, result.Project.ContainerPort, 20000)
	require.NotEqual(t, 4096, result.Project.ContainerPort)
}

func TestCreateProjectWorkflow_AppCreateFailureCompensatesRepo(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestWorkflowEnvironment()

	env.OnActivity(a.GenerateSlug, mock.Anything, mock.Anything).
		Return(activities.GenerateSlugOutput{Slug: "my-project"}, nil)
	env.OnActivity(a.CreateRepo, mock.Anything, mock.Anything).
		Return(activities.CreateRepoOutput{RepoID: "1", Owner: "codeopen-bot", Name: "my-project",
			CloneURL: "http://forge-internal:3000/codeopen-bot/my-project.git", DefaultBranch: "main"}, nil)
	env.OnActivity(a.CreateApp, mock.Anything, mock.Anything).
		Return(activities.CreateAppOutput{}, errors.New("platform unavailable"))

	deleteRepoCalled := false
	env.OnActivity(a.DeleteRepo, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { deleteRepoCalled = true }).
		Return(nil)

	env.ExecuteWorkflow(CreateProjectWorkflow, baseCreateInput())

	require.True(t, env.IsWorkflowCompleted())
	require.Error(t, env.GetWorkflowError())
	require.True(t, deleteRepoCalled)
}
