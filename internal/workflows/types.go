package workflows

type ManualProcessInput struct {
	ManualID    string `json:"manual_id"`
	MaxAttempts int    `json:"max_attempts"`
}

// Workflow results.
const (
	ResultProcessed = "processed"
	ResultFailed    = "failed"
)
