package workflows

import (
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
)

// ManualProcessName is the registered workflow type for manual processing.
const ManualProcessName = "ManualProcessWorkflow"

func Register(w worker.Worker) {
	w.RegisterWorkflowWithOptions(ManualProcessWorkflow, workflow.RegisterOptions{Name: ManualProcessName})
}
