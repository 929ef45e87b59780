package storage

import (
	"context"
	"errors"
	"fmt"

	"ludolens/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type ManualRepo struct {
	q Querier
}

func NewManualRepo(q Querier) *ManualRepo {
	return &ManualRepo{q: q}
}

const manualColumns = `id::text, game_name, file_name, file_path, uploaded_at, processed_at, status, COALESCE(fail_reason,'')`

func (r *ManualRepo) Insert(ctx context.Context, m models.Manual) (models.Manual, error) {
	err := r.q.QueryRow(ctx, `
INSERT INTO game_manuals (id, game_name, file_name, file_path, status)
VALUES ($1, $2, $3, $4, 'pending')
RETURNING `+manualColumns,
		m.ID, m.GameName, m.FileName, m.FilePath,
	).Scan(&m.ID, &m.GameName, &m.FileName, &m.FilePath, &m.UploadedAt, &m.ProcessedAt, &m.Status, &m.FailReason)
	if err != nil {
		return models.Manual{}, fmt.Errorf("insert manual: %w", err)
	}
	return m, nil
}

func (r *ManualRepo) Get(ctx context.Context, id string) (models.Manual, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Manual{}, models.ErrManualNotFound
	}
	var m models.Manual
	err := r.q.QueryRow(ctx, `SELECT `+manualColumns+` FROM game_manuals WHERE id = $1`, id).
		Scan(&m.ID, &m.GameName, &m.FileName, &m.FilePath, &m.UploadedAt, &m.ProcessedAt, &m.Status, &m.FailReason)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Manual{}, models.ErrManualNotFound
	}
	if err != nil {
		return models.Manual{}, fmt.Errorf("get manual: %w", err)
	}
	return m, nil
}

func (r *ManualRepo) List(ctx context.Context) ([]models.Manual, error) {
	rows, err := r.q.Query(ctx, `SELECT `+manualColumns+` FROM game_manuals ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list manuals: %w", err)
	}
	defer rows.Close()

	out := make([]models.Manual, 0)
	for rows.Next() {
		var m models.Manual
		if err := rows.Scan(&m.ID, &m.GameName, &m.FileName, &m.FilePath, &m.UploadedAt, &m.ProcessedAt, &m.Status, &m.FailReason); err != nil {
			return nil, fmt.Errorf("scan manual: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manuals: %w", err)
	}
	return out, nil
}

// MarkProcessed moves a pending manual to processed. It is a no-op for a manual
// that is already processed and returns ErrManualNotFound when the row is gone.
func (r *ManualRepo) MarkProcessed(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `
UPDATE game_manuals
SET status = 'processed', processed_at = NOW(), fail_reason = NULL
WHERE id = $1 AND status = 'pending'`, id)
	if err != nil {
		return fmt.Errorf("mark manual processed: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	m, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if m.Status == models.StatusFailed {
		return fmt.Errorf("mark manual processed: manual %s already failed", id)
	}
	return nil
}

// MarkFailed records why processing stopped. Only pending manuals are updated.
func (r *ManualRepo) MarkFailed(ctx context.Context, id, reason string) error {
	_, err := r.q.Exec(ctx, `
UPDATE game_manuals
SET status = 'failed', fail_reason = NULLIF($2,'')
WHERE id = $1 AND status = 'pending'`, id, reason)
	if err != nil {
		return fmt.Errorf("mark manual failed: %w", err)
	}
	return nil
}

func (r *ManualRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	tag, err := r.q.Exec(ctx, `DELETE FROM game_manuals WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete manual: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
