// Package manuals owns the lifecycle of an uploaded rule manual: storing the
// file, recording it, starting its processing job and removing it again.
package manuals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"ludolens/internal/blob"
	"ludolens/internal/models"
	"ludolens/internal/pipeline"
)

var ErrInvalidInput = errors.New("invalid manual input")

type ManualStore interface {
	Insert(ctx context.Context, m models.Manual) (models.Manual, error)
	Get(ctx context.Context, id string) (models.Manual, error)
	List(ctx context.Context) ([]models.Manual, error)
	MarkFailed(ctx context.Context, id, reason string) error
	Delete(ctx context.Context, id string) (bool, error)
}

type BlobStore interface {
	Save(id string, data []byte) (string, error)
	Delete(id string) error
}

type IndexRemover interface {
	RemoveByManual(ctx context.Context, manualID string) (bool, error)
}

// Launcher starts processing a manual without waiting for it.
type Launcher interface {
	Launch(ctx context.Context, manualID string) error
}

type ProgressReporter interface {
	Progress(ctx context.Context, manualID string) (pipeline.Progress, error)
}

// jobForgetter is implemented by reporters that keep finished jobs in memory.
type jobForgetter interface {
	Forget(manualID string)
}

type Service struct {
	store    ManualStore
	blobs    BlobStore
	index    IndexRemover
	launcher Launcher
	progress ProgressReporter
	log      *slog.Logger
}

func NewService(store ManualStore, blobs BlobStore, index IndexRemover, launcher Launcher, progress ProgressReporter, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		blobs:    blobs,
		index:    index,
		launcher: launcher,
		progress: progress,
		log:      log.With("component", "manuals"),
	}
}

// Upload stores the file, records a pending manual and starts processing.
// A manual whose job could not be started is returned marked failed.
func (s *Service) Upload(ctx context.Context, gameName string, data []byte, fileName string) (models.Manual, error) {
	gameName = strings.TrimSpace(gameName)
	fileName = strings.TrimSpace(fileName)
	switch {
	case gameName == "":
		return models.Manual{}, fmt.Errorf("%w: game name is required", ErrInvalidInput)
	case fileName == "":
		return models.Manual{}, fmt.Errorf("%w: file name is required", ErrInvalidInput)
	case len(data) == 0:
		return models.Manual{}, fmt.Errorf("%w: file is empty", ErrInvalidInput)
	}

	id := uuid.NewString()
	path, err := s.blobs.Save(id, data)
	if err != nil {
		return models.Manual{}, fmt.Errorf("store manual file: %w", err)
	}
	m, err := s.store.Insert(ctx, models.Manual{
		ID:       id,
		GameName: gameName,
		FileName: fileName,
		FilePath: path,
		Status:   models.StatusPending,
	})
	if err != nil {
		if delErr := s.blobs.Delete(id); delErr != nil {
			s.log.Warn("remove file of unrecorded manual", "manual_id", id, "error", delErr)
		}
		return models.Manual{}, err
	}

	if err := s.launcher.Launch(ctx, id); err != nil {
		reason := pipeline.FailReason(fmt.Errorf("could not start processing: %w", err))
		s.log.Error("launch processing", "manual_id", id, "error", err)
		if markErr := s.store.MarkFailed(ctx, id, reason); markErr != nil {
			s.log.Error("mark manual failed", "manual_id", id, "error", markErr)
		}
		m.Status = models.StatusFailed
		m.FailReason = reason
		return m, nil
	}
	s.log.Info("manual uploaded", "manual_id", id, "game", gameName, "bytes", len(data))
	return m, nil
}

func (s *Service) Get(ctx context.Context, id string) (models.Manual, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]models.Manual, error) {
	return s.store.List(ctx)
}

// Delete removes the manual row, its embeddings and its file. Cleanup of
// embeddings and file is best effort.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	deleted, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}
	if _, err := s.index.RemoveByManual(ctx, id); err != nil {
		s.log.Warn("remove manual embeddings", "manual_id", id, "error", err)
	}
	if err := s.blobs.Delete(id); err != nil && !errors.Is(err, blob.ErrNotFound) {
		s.log.Warn("remove manual file", "manual_id", id, "error", err)
	}
	if f, ok := s.progress.(jobForgetter); ok {
		f.Forget(id)
	}
	s.log.Info("manual deleted", "manual_id", id)
	return true, nil
}

// JobProgress reports the processing job of a manual. When the job is no
// longer tracked, a finished manual's status stands in for it.
func (s *Service) JobProgress(ctx context.Context, id string) (pipeline.Progress, error) {
	m, err := s.store.Get(ctx, id)
	if err != nil {
		return pipeline.Progress{}, err
	}
	p, err := s.progress.Progress(ctx, id)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pipeline.ErrJobNotFound) {
		return pipeline.Progress{}, err
	}
	switch m.Status {
	case models.StatusProcessed:
		return pipeline.Progress{ManualID: id, State: pipeline.JobSucceeded, StartedAt: m.UploadedAt, FinishedAt: m.ProcessedAt}, nil
	case models.StatusFailed:
		return pipeline.Progress{ManualID: id, State: pipeline.JobFailed, Error: m.FailReason, StartedAt: m.UploadedAt}, nil
	}
	return pipeline.Progress{}, err
}
