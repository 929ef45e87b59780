package activities

import (
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/worker"
)

// Registered activity names, used by workflows to schedule each step.
const (
	ExtractTextName   = "ExtractTextActivity"
	ChunkTextName     = "ChunkTextActivity"
	IndexChunksName   = "IndexChunksActivity"
	MarkProcessedName = "MarkProcessedActivity"
	DeleteBlobName    = "DeleteBlobActivity"
	MarkFailedName    = "MarkFailedActivity"
)

func Register(w worker.Worker, a *Activities) {
	for name, fn := range map[string]any{
		ExtractTextName:   a.ExtractTextActivity,
		ChunkTextName:     a.ChunkTextActivity,
		IndexChunksName:   a.IndexChunksActivity,
		MarkProcessedName: a.MarkProcessedActivity,
		DeleteBlobName:    a.DeleteBlobActivity,
		MarkFailedName:    a.MarkFailedActivity,
	} {
		w.RegisterActivityWithOptions(fn, activity.RegisterOptions{Name: name})
	}
}
