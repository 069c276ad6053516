package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"thumbapi/internal/model"
	"thumbapi/internal/repository"
)

// ThumbnailPostgres is a PostgreSQL implementation of repository.ThumbnailRepository.
// Status transitions are guarded in the WHERE clause so that concurrent or
// repeated completions cannot overwrite a terminal record.
type ThumbnailPostgres struct {
	db    *sql.DB
	newID func() string
}

// NewThumbnailPostgres creates a new ThumbnailPostgres repository.
func NewThumbnailPostgres(db *sql.DB) *ThumbnailPostgres {
	return &ThumbnailPostgres{db: db, newID: uuid.NewString}
}

var _ repository.ThumbnailRepository = (*ThumbnailPostgres)(nil)

const thumbnailColumns = `id, image_id, width, height, status, path, error, attempt, updated_at`

func scanThumbnail(s rowScanner) (*model.Thumbnail, error) {
	var (
		t      model.Thumbnail
		status string
		path   sql.NullString
		detail sql.NullString
	)
	if err := s.Scan(
		&t.ID,
		&t.ImageID,
		&t.Size.Width,
		&t.Size.Height,
		&status,
		&path,
		&detail,
		&t.Attempt,
		&t.UpdatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	t.Status = model.ThumbnailStatus(status)
	if path.Valid {
		t.Path = &path.String
	}
	if detail.Valid {
		t.Error = &detail.String
	}
	return &t, nil
}

// CreatePending inserts a pending record for (imageID, size).
func (r *ThumbnailPostgres) CreatePending(ctx context.Context, imageID string, size model.Size) (*model.Thumbnail, error) {
	const q = `
		INSERT INTO thumbnails (id, image_id, width, height, status, attempt, updated_at)
		VALUES ($1, $2, $3, $4, 'pending', 1, now())
		RETURNING ` + thumbnailColumns
	row := r.db.QueryRowContext(ctx, q, r.newID(), imageID, size.Width, size.Height)
	return scanThumbnail(row)
}

// MarkReady sets status ready and path, only if the record is still pending.
func (r *ThumbnailPostgres) MarkReady(ctx context.Context, id, path string) error {
	const q = `
		UPDATE thumbnails
		SET status = 'ready', path = $2, error = NULL, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	return r.transition(ctx, q, id, path)
}

// MarkFailed sets status failed and the error detail, only if the record is still pending.
func (r *ThumbnailPostgres) MarkFailed(ctx context.Context, id, detail string) error {
	const q = `
		UPDATE thumbnails
		SET status = 'failed', path = NULL, error = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'
	`
	return r.transition(ctx, q, id, detail)
}

func (r *ThumbnailPostgres) transition(ctx context.Context, q, id, value string) error {
	res, err := r.db.ExecContext(ctx, q, id, value)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Nothing changed: tell a vanished record from a terminal one.
	var status string
	err = r.db.QueryRowContext(ctx, `SELECT status FROM thumbnails WHERE id = $1`, id).Scan(&status)
	if err != nil {
		return mapError(err)
	}
	return fmt.Errorf("%w: thumbnail %s is already %s", repository.ErrRecordConflict, id, status)
}

// Get fetches the record for (imageID, size).
func (r *ThumbnailPostgres) Get(ctx context.Context, imageID string, size model.Size) (*model.Thumbnail, error) {
	const q = `
		SELECT ` + thumbnailColumns + `
		FROM thumbnails
		WHERE image_id = $1 AND width = $2 AND height = $3
	`
	return scanThumbnail(r.db.QueryRowContext(ctx, q, imageID, size.Width, size.Height))
}

// ListByImage returns all records of the image ordered by size.
func (r *ThumbnailPostgres) ListByImage(ctx context.Context, imageID string) ([]model.Thumbnail, error) {
	const q = `
		SELECT ` + thumbnailColumns + `
		FROM thumbnails
		WHERE image_id = $1
		ORDER BY width, height
	`
	rows, err := r.db.QueryContext(ctx, q, imageID)
	if err != nil {
		return nil, err
	}
	return collectThumbnails(rows)
}

// DeleteByImage removes all records of the image and returns them.
func (r *ThumbnailPostgres) DeleteByImage(ctx context.Context, imageID string) ([]model.Thumbnail, error) {
	const q = `DELETE FROM thumbnails WHERE image_id = $1 RETURNING ` + thumbnailColumns
	rows, err := r.db.QueryContext(ctx, q, imageID)
	if err != nil {
		return nil, err
	}
	return collectThumbnails(rows)
}

// ReplaceFailed resets a failed record to pending under a new id with attempt+1.
func (r *ThumbnailPostgres) ReplaceFailed(ctx context.Context, imageID string, size model.Size) (*model.Thumbnail, error) {
	const q = `
		UPDATE thumbnails
		SET id = $1, status = 'pending', path = NULL, error = NULL,
		    attempt = attempt + 1, updated_at = now()
		WHERE image_id = $2 AND width = $3 AND height = $4 AND status = 'failed'
		RETURNING ` + thumbnailColumns
	t, err := scanThumbnail(r.db.QueryRowContext(ctx, q, r.newID(), imageID, size.Width, size.Height))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	cur, err := r.Get(ctx, imageID, size)
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: thumbnail %s is %s, not failed", repository.ErrRecordConflict, cur.ID, cur.Status)
}

// FailPending marks every pending record failed.
func (r *ThumbnailPostgres) FailPending(ctx context.Context, detail string) (int64, error) {
	const q = `
		UPDATE thumbnails
		SET status = 'failed', error = $1, updated_at = now()
		WHERE status = 'pending'
	`
	res, err := r.db.ExecContext(ctx, q, detail)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func collectThumbnails(rows *sql.Rows) ([]model.Thumbnail, error) {
	defer rows.Close()

	items := make([]model.Thumbnail, 0)
	for rows.Next() {
		t, err := scanThumbnail(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
