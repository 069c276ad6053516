package postgres

import (
	"context"
	"database/sql/driver"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thumbapi/internal/model"
	"thumbapi/internal/repository"
)

var thumbCols = []string{"id", "image_id", "width", "height", "status", "path", "error", "attempt", "updated_at"}

func newThumbRepo(t *testing.T) (*ThumbnailPostgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo := NewThumbnailPostgres(db)
	repo.newID = func() string { return "th-new" }
	return repo, mock
}

func thumbRow(id, status string, path, detail driver.Value, attempt int) *sqlmock.Rows {
	return sqlmock.NewRows(thumbCols).AddRow(id, "img-1", 200, 200, status, path, detail, attempt, time.Now())
}

var size200 = model.Size{Width: 200, Height: 200}

func TestThumbnailPostgres_CreatePending(t *testing.T) {
	repo, mock := newThumbRepo(t)
	ctx := context.Background()

	t.Run("created", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO thumbnails").
			WithArgs("th-new", "img-1", 200, 200).
			WillReturnRows(thumbRow("th-new", "pending", nil, nil, 1))

		th, err := repo.CreatePending(ctx, "img-1", size200)
		require.NoError(t, err)
		assert.Equal(t, model.StatusPending, th.Status)
		assert.Equal(t, size200, th.Size)
		assert.Equal(t, 1, th.Attempt)
		assert.Nil(t, th.Path)
		assert.Nil(t, th.Error)
	})

	t.Run("duplicate", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO thumbnails").
			WithArgs("th-new", "img-1", 200, 200).
			WillReturnError(&pgconn.PgError{Code: "23505"})

		_, err := repo.CreatePending(ctx, "img-1", size200)
		assert.ErrorIs(t, err, repository.ErrRecordConflict)
	})

	t.Run("image missing", func(t *testing.T) {
		mock.ExpectQuery("INSERT INTO thumbnails").
			WithArgs("th-new", "img-x", 200, 200).
			WillReturnError(&pgconn.PgError{Code: "23503"})

		_, err := repo.CreatePending(ctx, "img-x", size200)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestThumbnailPostgres_MarkReady(t *testing.T) {
	repo, mock := newThumbRepo(t)
	ctx := context.Background()

	t.Run("pending to ready", func(t *testing.T) {
		mock.ExpectExec("UPDATE thumbnails SET status = 'ready'(.+)WHERE id = \\$1 AND status = 'pending'").
			WithArgs("th-1", "thumbnails/img-1/200x200.jpg").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.MarkReady(ctx, "th-1", "thumbnails/img-1/200x200.jpg"))
	})

	t.Run("already terminal", func(t *testing.T) {
		mock.ExpectExec("UPDATE thumbnails SET status = 'ready'").
			WithArgs("th-1", "p").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT status FROM thumbnails WHERE id = ?").
			WithArgs("th-1").
			WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("failed"))

		err := repo.MarkReady(ctx, "th-1", "p")
		assert.ErrorIs(t, err, repository.ErrRecordConflict)
	})

	t.Run("record gone", func(t *testing.T) {
		mock.ExpectExec("UPDATE thumbnails SET status = 'ready'").
			WithArgs("th-2", "p").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT status FROM thumbnails WHERE id = ?").
			WithArgs("th-2").
			WillReturnRows(sqlmock.NewRows([]string{"status"}))

		err := repo.MarkReady(ctx, "th-2", "p")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestThumbnailPostgres_MarkFailed(t *testing.T) {
	repo, mock := newThumbRepo(t)

	mock.ExpectExec("UPDATE thumbnails SET status = 'failed'(.+)WHERE id = \\$1 AND status = 'pending'").
		WithArgs("th-1", "decode image: unknown format").
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.MarkFailed(context.Background(), "th-1", "decode image: unknown format"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestThumbnailPostgres_GetAndList(t *testing.T) {
	repo, mock := newThumbRepo(t)
	ctx := context.Background()

	mock.ExpectQuery("SELECT (.+) FROM thumbnails WHERE image_id = \\$1 AND width = \\$2 AND height = \\$3").
		WithArgs("img-1", 200, 200).
		WillReturnRows(thumbRow("th-1", "ready", "thumbnails/img-1/200x200.jpg", nil, 1))

	th, err := repo.Get(ctx, "img-1", size200)
	require.NoError(t, err)
	require.NotNil(t, th.Path)
	assert.Equal(t, "thumbnails/img-1/200x200.jpg", *th.Path)

	mock.ExpectQuery("SELECT (.+) FROM thumbnails WHERE image_id = \\$1 AND width").
		WithArgs("img-1", 200, 200).
		WillReturnRows(sqlmock.NewRows(thumbCols))

	_, err = repo.Get(ctx, "img-1", size200)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	mock.ExpectQuery("SELECT (.+) FROM thumbnails WHERE image_id = \\$1 ORDER BY width, height").
		WithArgs("img-1").
		WillReturnRows(sqlmock.NewRows(thumbCols).
			AddRow("th-1", "img-1", 200, 200, "ready", "thumbnails/img-1/200x200.jpg", nil, 1, time.Now()).
			AddRow("th-2", "img-1", 500, 500, "failed", nil, "write failed", 1, time.Now()))

	list, err := repo.ListByImage(ctx, "img-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.StatusFailed, list[1].Status)
	require.NotNil(t, list[1].Error)
	assert.Equal(t, "write failed", *list[1].Error)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestThumbnailPostgres_DeleteByImage(t *testing.T) {
	repo, mock := newThumbRepo(t)

	mock.ExpectQuery("DELETE FROM thumbnails WHERE image_id = \\$1 RETURNING").
		WithArgs("img-1").
		WillReturnRows(thumbRow("th-1", "ready", "thumbnails/img-1/200x200.jpg", nil, 1))

	deleted, err := repo.DeleteByImage(context.Background(), "img-1")
	require.NoError(t, err)
	assert.Len(t, deleted, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestThumbnailPostgres_ReplaceFailed(t *testing.T) {
	repo, mock := newThumbRepo(t)
	ctx := context.Background()

	t.Run("failed record replaced", func(t *testing.T) {
		mock.ExpectQuery("UPDATE thumbnails SET id = \\$1, status = 'pending'(.+)status = 'failed'").
			WithArgs("th-new", "img-1", 200, 200).
			WillReturnRows(thumbRow("th-new", "pending", nil, nil, 2))

		th, err := repo.ReplaceFailed(ctx, "img-1", size200)
		require.NoError(t, err)
		assert.Equal(t, "th-new", th.ID)
		assert.Equal(t, 2, th.Attempt)
		assert.Equal(t, model.StatusPending, th.Status)
	})

	t.Run("record not failed", func(t *testing.T) {
		mock.ExpectQuery("UPDATE thumbnails SET id").
			WithArgs("th-new", "img-1", 200, 200).
			WillReturnRows(sqlmock.NewRows(thumbCols))
		mock.ExpectQuery("SELECT (.+) FROM thumbnails WHERE image_id").
			WithArgs("img-1", 200, 200).
			WillReturnRows(thumbRow("th-1", "ready", "p", nil, 1))

		_, err := repo.ReplaceFailed(ctx, "img-1", size200)
		assert.ErrorIs(t, err, repository.ErrRecordConflict)
	})

	t.Run("no record", func(t *testing.T) {
		mock.ExpectQuery("UPDATE thumbnails SET id").
			WithArgs("th-new", "img-1", 200, 200).
			WillReturnRows(sqlmock.NewRows(thumbCols))
		mock.ExpectQuery("SELECT (.+) FROM thumbnails WHERE image_id").
			WithArgs("img-1", 200, 200).
			WillReturnRows(sqlmock.NewRows(thumbCols))

		_, err := repo.ReplaceFailed(ctx, "img-1", size200)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestThumbnailPostgres_FailPending(t *testing.T) {
	repo, mock := newThumbRepo(t)

	mock.ExpectExec("UPDATE thumbnails SET status = 'failed', error = \\$1(.+)WHERE status = 'pending'").
		WithArgs("interrupted: server restarted").
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := repo.FailPending(context.Background(), "interrupted: server restarted")
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
