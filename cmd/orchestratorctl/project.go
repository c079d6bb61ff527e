package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProjectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "project",
		Short: "manage projects",
	}
	cmd.AddCommand(newProjectCreateCommand())
	cmd.AddCommand(newProjectListCommand())
	cmd.AddCommand(newProjectShowCommand())
	cmd.AddCommand(newProjectDeleteCommand())
	cmd.AddCommand(newProjectStartCommand())
	cmd.AddCommand(newProjectStopCommand())
	cmd.AddCommand(newProjectRestartCommand())
	cmd.AddCommand(newProjectDeployCommand())
	cmd.AddCommand(newProjectLogsCommand())
	cmd.AddCommand(newProjectEventsCommand())
	return cmd
}

func newProjectCreateCommand() *cobra.Command {
	var name, description, githubURL, providerID, modelID, flavor, tier string
	var addons []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().post("/api/v1/projects", map[string]interface{}{
				"name": name, "description": description, "github_url": githubURL,
				"llm_provider_id": providerID, "llm_model_id": modelID,
				"flavor_id": flavor, "addon_ids": addons, "tier_id": tier,
			})
			if err != nil {
				return err
			}
			printJSON(data)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name (required)")
	cmd.Flags().StringVar(&description, "description", "", "project description")
	cmd.Flags().StringVar(&githubURL, "github-url", "", "existing GitHub repository to mirror")
	cmd.Flags().StringVar(&providerID, "provider", "", "LLM provider id")
	cmd.Flags().StringVar(&modelID, "model", "", "LLM model id")
	cmd.Flags().StringVar(&flavor, "flavor", "", "container flavor id")
	cmd.Flags().StringSliceVar(&addons, "addon", nil, "container addon id (repeatable)")
	cmd.Flags().StringVar(&tier, "tier", "", "resource tier id")
	cmd.MarkFlagRequired("name")
	return cmd
}

func newProjectListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().get("/api/v1/projects", nil)
			if err != nil {
				return err
			}
			printJSON(data)
			return nil
		},
	}
}

func newProjectShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <project-id>",
		Short: "show a project's current state, including live container status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().get("/api/v1/projects/"+args[0], nil)
			if err != nil {
				return err
			}
			printJSON(data)
			return nil
		},
	}
}

func newProjectDeleteCommand() *cobra.Command {
	var keepRepo bool
	cmd := &cobra.Command{
		Use:   "delete <project-id>",
		Short: "tear down a project's repository, container, and record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/projects/" + args[0]
			if keepRepo {
				path += "?delete_repo=false"
			}
			data, err := newClient().delete(path)
			if err != nil {
				return err
			}
			printJSON(data)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepRepo, "keep-repo", false, "leave the forge repository in place")
	return cmd
}

func newProjectStartCommand() *cobra.Command { return lifecycleCommand("start", "start a project's container") }
func newProjectStopCommand() *cobra.Command  { return lifecycleCommand("stop", "stop a project's container") }
func newProjectRestartCommand() *cobra.Command {
	return lifecycleCommand("restart", "restart a project's container")
}

func lifecycleCommand(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action + " <project-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().post(fmt.Sprintf("/api/v1/projects/%s/%s", args[0], action), nil)
			if err != nil {
				return err
			}
			printJSON(data)
			return nil
		},
	}
}

func newProjectDeployCommand() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "deploy <project-id>",
		Short: "trigger a redeploy of a project's container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().post(fmt.Sprintf("/api/v1/projects/%s/deploy", args[0]), map[string]interface{}{"force": force})
			if err != nil {
				return err
			}
			printJSON(data)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "redeploy even if no change was detected")
	return cmd
}

func newProjectLogsCommand() *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "logs <project-id>",
		Short: "fetch recent container log output",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := newClient().get(fmt.Sprintf("/api/v1/projects/%s/logs?lines=%d", args[0], lines), nil)
			if err != nil {
				return err
			}
			printJSON(data)
			return nil
		},
	}
	cmd.Flags().IntVar(&lines, "lines", 100, "number of trailing lines to fetch")
	return cmd
}

func newProjectEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "events <project-id>",
		Short: "stream a project's assistant events until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return newClient().streamEvents(fmt.Sprintf("/api/v1/projects/%s/events", args[0]))
		},
	}
}
