package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/songzhibin97/workflow-steps/config"
	"github.com/songzhibin97/workflow-steps/logging"
)

// Output formats.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// NewRootCommand creates the workflowctl command tree around app.
func NewRootCommand(app *App) *cobra.Command {
	var format string

	root := &cobra.Command{
		Use:   "workflowctl",
		Short: "Define and run step workflows",
		Long: `workflowctl stores workflow definitions as step connections and runs
execution passes over their steps.

Steps are read from YAML or JSON files. With the memory backend nothing
outlives the process; select the redis backend to keep definitions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if format != FormatJSON && format != FormatYAML {
				return fmt.Errorf("unknown output format %q", format)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&format, "output", "o", FormatJSON, "Output format (json, yaml)")

	out := func(cmd *cobra.Command, v interface{}) error {
		return write(cmd.OutOrStdout(), format, v)
	}

	root.AddCommand(
		newValidateCommand(app, out),
		newDefineCommand(app, out, false),
		newDefineCommand(app, out, true),
		newRunCommand(app, out),
		newStepsCommand(app, out),
		newConnectionsCommand(app, out),
	)
	return root
}

type printFunc func(cmd *cobra.Command, v interface{}) error

func write(w io.Writer, format string, v interface{}) error {
	if format == FormatYAML {
		// Round trip through JSON so the field names match the JSON tags.
		data, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RunWithConfig executes workflowctl with args and returns the exit code.
func RunWithConfig(ctx context.Context, cfg *config.Config, args []string, stdout, stderr io.Writer) int {
	app, err := NewApp(cfg)
	if err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			app.Logger.Warn("Failed to close", "error", err)
		}
	}()

	root := NewRootCommand(app)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return 1
	}
	return 0
}

// Execute loads the configuration, runs workflowctl with the process
// arguments and returns the exit code.
func Execute() int {
	cfg, err := config.NewLoader().Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	logging.Setup(cfg.LogLevel)
	return RunWithConfig(context.Background(), cfg, os.Args[1:], os.Stdout, os.Stderr)
}
