// Command workflowctl defines and runs step workflows.
package main

import (
	"os"

	"github.com/songzhibin97/workflow-steps/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
