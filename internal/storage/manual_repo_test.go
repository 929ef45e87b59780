package storage

import (
	"context"
	"testing"
	"time"

	"ludolens/internal/models"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"
)

const testManualID = "0b6f7c4e-0d9a-4c1e-9a57-3c1f3f1a2b10"

var manualCols = []string{"id", "game_name", "file_name", "file_path", "uploaded_at", "processed_at", "status", "fail_reason"}

func newMockRepo(t *testing.T) (*ManualRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewManualRepo(mock), mock
}

func TestManualRepoInsert(t *testing.T) {
	repo, mock := newMockRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery("INSERT INTO game_manuals").
		WithArgs(testManualID, "Catan", "catan.pdf", "uploads/"+testManualID+".pdf").
		WillReturnRows(mock.NewRows(manualCols).
			AddRow(testManualID, "Catan", "catan.pdf", "uploads/"+testManualID+".pdf", now, (*time.Time)(nil), models.StatusPending, ""))

	m, err := repo.Insert(context.Background(), models.Manual{
		ID:       testManualID,
		GameName: "Catan",
		FileName: "catan.pdf",
		FilePath: "uploads/" + testManualID + ".pdf",
	})
	require.NoError(t, err)
	require.Equal(t, models.StatusPending, m.Status)
	require.False(t, m.Processed())
	require.Nil(t, m.ProcessedAt)
	require.Equal(t, now, m.UploadedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManualRepoGetNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT (.+) FROM game_manuals WHERE id").
		WithArgs(testManualID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), testManualID)
	require.ErrorIs(t, err, models.ErrManualNotFound)

	_, err = repo.Get(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, models.ErrManualNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManualRepoListNewestFirst(t *testing.T) {
	repo, mock := newMockRepo(t)
	newer := time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)
	older := newer.Add(-time.Hour)
	processedAt := newer.Add(time.Minute)

	mock.ExpectQuery("ORDER BY uploaded_at DESC").
		WillReturnRows(mock.NewRows(manualCols).
			AddRow("b", "Azul", "azul.pdf", "p2", newer, &processedAt, models.StatusProcessed, "").
			AddRow("a", "Catan", "catan.pdf", "p1", older, (*time.Time)(nil), models.StatusFailed, "no extractable text found in PDF"))

	list, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "Azul", list[0].GameName)
	require.True(t, list[0].Processed())
	require.Equal(t, models.StatusFailed, list[1].Status)
	require.NotEmpty(t, list[1].FailReason)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManualRepoMarkProcessed(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE game_manuals").
		WithArgs(testManualID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.MarkProcessed(context.Background(), testManualID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManualRepoMarkProcessedDeletedRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("UPDATE game_manuals").
		WithArgs(testManualID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT (.+) FROM game_manuals WHERE id").
		WithArgs(testManualID).
		WillReturnError(pgx.ErrNoRows)

	err := repo.MarkProcessed(context.Background(), testManualID)
	require.ErrorIs(t, err, models.ErrManualNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManualRepoMarkProcessedAlreadyProcessed(t *testing.T) {
	repo, mock := newMockRepo(t)
	ts := time.Now()

	mock.ExpectExec("UPDATE game_manuals").
		WithArgs(testManualID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT (.+) FROM game_manuals WHERE id").
		WithArgs(testManualID).
		WillReturnRows(mock.NewRows(manualCols).
			AddRow(testManualID, "Catan", "catan.pdf", "p", ts, &ts, models.StatusProcessed, ""))

	require.NoError(t, repo.MarkProcessed(context.Background(), testManualID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManualRepoMarkFailedOnlyPending(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("SET status = 'failed'").
		WithArgs(testManualID, "embedding service unavailable").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, repo.MarkFailed(context.Background(), testManualID, "embedding service unavailable"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestManualRepoDelete(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM game_manuals").
		WithArgs(testManualID).
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectExec("DELETE FROM game_manuals").
		WithArgs(testManualID).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	ok, err := repo.Delete(context.Background(), testManualID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = repo.Delete(context.Background(), testManualID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = repo.Delete(context.Background(), "../../etc")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}
