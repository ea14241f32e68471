package cli

import (
	"github.com/spf13/cobra"

	"github.com/songzhibin97/workflow-steps/graph"
	"github.com/songzhibin97/workflow-steps/types"
)

// validation is the output of the validate command.
type validation struct {
	Steps       int                `json:"steps"`
	Connections []types.Connection `json:"connections"`
}

func newValidateCommand(app *App, out printFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <steps-file>",
		Short: "Check a step file without storing it",
		Long: `Validate step fields and the graph they form, then print the
connections a definition would create.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := loadSteps(args[0])
			if err != nil {
				return err
			}
			if err := app.Engine.Validate(steps); err != nil {
				return err
			}
			connections, err := graph.DeriveConnections("", steps)
			if err != nil {
				return err
			}
			return out(cmd, validation{Steps: len(steps), Connections: connections})
		},
	}
}

func newDefineCommand(app *App, out printFunc, replaceAll bool) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "define <workflow-id> <steps-file>",
		Short: "Store steps and add their connections",
		Long: `Store the steps of a workflow and add the connections they derive.
Existing connections keep their ids; none are removed.`,
		Args: cobra.ExactArgs(2),
	}
	if replaceAll {
		cmd.Use = "redefine <workflow-id> <steps-file>"
		cmd.Short = "Replace a workflow's connections"
		cmd.Long = `Store the steps of a workflow and replace its connections with the
derived set. Steps left without a connection are deleted.`
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		steps, err := loadSteps(args[1])
		if err != nil {
			return err
		}
		define := app.Engine.Define
		if replaceAll {
			define = app.Engine.Redefine
		}
		connections, err := define(cmd.Context(), args[0], steps)
		if err != nil {
			return err
		}
		return out(cmd, connections)
	}
	return cmd
}

func newRunCommand(app *App, out printFunc) *cobra.Command {
	var (
		data      string
		stepsFile string
		resume    []string
	)

	cmd := &cobra.Command{
		Use:   "run <workflow-id>",
		Short: "Run an execution pass",
		Long: `Run an execution pass over the stored steps of a workflow, or over the
steps of a file with --steps, and print the updated card data and the
pending timers.

Examples:
  workflowctl run loyalty --data '{"points": 240}'
  workflowctl run loyalty --data @card.yaml --resume <timer-step-id>`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := parseRecord(data)
			if err != nil {
				return err
			}

			var result *types.Result
			if stepsFile != "" {
				steps, err := loadSteps(stepsFile)
				if err != nil {
					return err
				}
				result, err = app.Engine.Run(cmd.Context(), steps, record, resume...)
				if err != nil {
					return err
				}
			} else {
				if len(args) == 0 {
					return cobra.ExactArgs(1)(cmd, args)
				}
				result, err = app.Engine.RunWorkflow(cmd.Context(), args[0], record, resume...)
				if err != nil {
					return err
				}
			}
			return out(cmd, result)
		},
	}
	cmd.Flags().StringVarP(&data, "data", "d", "", "Card data as JSON or YAML, or @file")
	cmd.Flags().StringVar(&stepsFile, "steps", "", "Run the steps of this file instead of stored ones")
	cmd.Flags().StringSliceVar(&resume, "resume", nil, "Timer step ids to resume from")
	return cmd
}

func newStepsCommand(app *App, out printFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "steps <workflow-id>",
		Short: "List the stored steps of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := app.Engine.Steps(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return out(cmd, steps)
		},
	}
}

func newConnectionsCommand(app *App, out printFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "connections <workflow-id>",
		Short: "List the stored connections of a workflow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			connections, err := app.Engine.Connections(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return out(cmd, connections)
		},
	}
}
