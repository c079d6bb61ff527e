package workflows

import (
	"time"

	"go.temporal.io/sdk/workflow"
)

// DeleteProjectInput is the Delete-Project Saga's input.
type DeleteProjectInput struct {
	ProjectID  string
	DeleteRepo bool
}

// DeleteProjectResult reports every step that failed along the way.
// Unlike CreateProjectWorkflow, failures here never abort the saga: every
// step is best-effort except the final store delete, which always runs.
type DeleteProjectResult struct {
	Warnings []string
}

// DeleteProjectWorkflow runs the 5-step saga: best-effort stop, best-effort
// app delete, optional best-effort repo delete, then an always-executed
// store delete. Every failure short of the final step is collected as a
// warning rather than aborting, since a partially-torn-down project is
// worse than a fully torn-down one with a noisy log.
func DeleteProjectWorkflow(ctx workflow.Context, input DeleteProjectInput) (DeleteProjectResult, error) {
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy:         idempotentRetryPolicy,
	})

	var result DeleteProjectResult
	warn := func(step string, err error) {
		result.Warnings = append(result.Warnings, step+": "+err.Error())
		_ = workflow.ExecuteActivity(ctx, a.LogWarning, input.ProjectID, step+": "+err.Error()).Get(ctx, nil)
	}

	var proj activitiesProjectView
	if err := workflow.ExecuteActivity(ctx, a.LoadProject, input.ProjectID).Get(ctx, &proj); err != nil {
		warn("load_project", err)
	}

	// Step 1: best-effort stop.
	if proj.PlatformAppUUID != "" {
		if err := workflow.ExecuteActivity(ctx, a.StopApp, proj.PlatformAppUUID).Get(ctx, nil); err != nil {
			warn("stop_app", err)
		}

		// Step 2: best-effort app delete.
		if err := workflow.ExecuteActivity(ctx, a.DeleteApp, proj.PlatformAppUUID).Get(ctx, nil); err != nil {
			warn("delete_app", err)
		}
	}

	// Step 3: optional best-effort repo delete, gated on the caller's
	// delete_repo flag.
	if input.DeleteRepo && proj.ForgeOwner != "" && proj.Slug != "" {
		if err := workflow.ExecuteActivity(ctx, a.DeleteRepo, proj.ForgeOwner, proj.Slug).Get(ctx, nil); err != nil {
			warn("delete_repo", err)
		}
	}

	// Step 4/5: always-executed store delete. This is the only step whose
	// failure fails the saga — a project record that survives its own
	// delete saga must be visibly wrong to the caller, not silently kept.
	if err := workflow.ExecuteActivity(ctx, a.DeleteProjectRecord, input.ProjectID).Get(ctx, nil); err != nil {
		return result, err
	}

	return result, nil
}

// activitiesProjectView mirrors the subset of models.Project the delete
// saga needs, decoded from LoadProject's models.Project result. Declared
// locally so this file doesn't need to import pkg/models just for three
// fields already present on the activity's return value.
type activitiesProjectView struct {
	PlatformAppUUID string `json:"platform_app_uuid"`
	ForgeOwner      string `json:"forge_owner"`
	Slug            string `json:"slug"`
}
