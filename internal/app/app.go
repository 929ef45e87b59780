// Package app wires the storage, providers and processing pipeline shared by
// the API server and the Temporal worker.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ludolens/internal/blob"
	"ludolens/internal/chunker"
	"ludolens/internal/config"
	"ludolens/internal/pipeline"
	"ludolens/internal/providers"
	"ludolens/internal/storage"
	"ludolens/internal/vector"
)

type App struct {
	Config    config.Config
	DB        *storage.DB
	Providers *providers.Manager
	Manuals   *storage.ManualRepo
	Audit     *storage.LLMAuditRepo
	Blobs     *blob.Store
	Index     *vector.Index
	Processor *pipeline.Processor
	Log       *slog.Logger
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(connectCtx, cfg.PostgresURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(connectCtx); err != nil {
		db.Close()
		return nil, err
	}

	pm, err := providers.NewManager(ctx, cfg, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init providers: %w", err)
	}
	blobs, err := blob.NewStore(cfg.UploadsDir)
	if err != nil {
		db.Close()
		_ = pm.Close()
		return nil, err
	}

	manuals := storage.NewManualRepo(db.Pool)
	index := vector.NewIndex(db.Pool, pm.Embedder(), vector.Options{
		Dimension: cfg.EmbedDim,
		BatchSize: cfg.EmbedBatchSize,
	})
	split := chunker.New(chunker.WithChunkSize(cfg.ChunkSize), chunker.WithOverlap(cfg.ChunkOverlap))

	return &App{
		Config:    cfg,
		DB:        db,
		Providers: pm,
		Manuals:   manuals,
		Audit:     storage.NewLLMAuditRepo(db.Pool),
		Blobs:     blobs,
		Index:     index,
		Processor: pipeline.NewProcessor(manuals, blobs, split, index, log),
		Log:       log,
	}, nil
}

// Migrate applies pending embedded migrations.
func (a *App) Migrate(ctx context.Context) error {
	applied, err := storage.ApplyMigrations(ctx, a.DB.Pool, storage.Migrations())
	if err != nil {
		return err
	}
	for _, m := range applied {
		a.Log.Info("migration applied", "version", m.Version, "name", m.Name)
	}
	return nil
}

func (a *App) Close() {
	if err := a.Providers.Close(); err != nil {
		a.Log.Warn("close providers", "error", err)
	}
	a.DB.Close()
}
