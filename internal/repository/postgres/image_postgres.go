package postgres

import (
	"context"
	"database/sql"

	"thumbapi/internal/model"
	"thumbapi/internal/repository"
)

// ImagePostgres is a PostgreSQL implementation of repository.ImageRepository.
// It uses database/sql with parameterized queries and contains no business logic.
type ImagePostgres struct {
	db *sql.DB
}

// NewImagePostgres creates a new ImagePostgres repository.
func NewImagePostgres(db *sql.DB) *ImagePostgres {
	return &ImagePostgres{db: db}
}

var _ repository.ImageRepository = (*ImagePostgres)(nil)

const imageColumns = `id, owner_id, filename, storage_path, size, content_type, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(s rowScanner) (*model.Image, error) {
	var img model.Image
	if err := s.Scan(
		&img.ID,
		&img.OwnerID,
		&img.Filename,
		&img.StoragePath,
		&img.Size,
		&img.ContentType,
		&img.CreatedAt,
	); err != nil {
		return nil, mapError(err)
	}
	return &img, nil
}

// Create inserts a new image row and returns the stored record.
func (r *ImagePostgres) Create(ctx context.Context, img *model.Image) (*model.Image, error) {
	const q = `
		INSERT INTO images (id, owner_id, filename, storage_path, size, content_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + imageColumns
	row := r.db.QueryRowContext(ctx, q,
		img.ID,
		img.OwnerID,
		img.Filename,
		img.StoragePath,
		img.Size,
		img.ContentType,
		img.CreatedAt,
	)
	return scanImage(row)
}

// FindByID fetches a single image by its ID.
func (r *ImagePostgres) FindByID(ctx context.Context, id string) (*model.Image, error) {
	const q = `SELECT ` + imageColumns + ` FROM images WHERE id = $1`
	return scanImage(r.db.QueryRowContext(ctx, q, id))
}

// ListByOwner returns the owner's images using LIMIT/OFFSET pagination and a total count.
func (r *ImagePostgres) ListByOwner(ctx context.Context, ownerID string, pq repository.PageQuery) (*repository.PageResult[model.Image], error) {
	const qCount = `SELECT COUNT(*) FROM images WHERE owner_id = $1`
	var total int
	if err := r.db.QueryRowContext(ctx, qCount, ownerID).Scan(&total); err != nil {
		return nil, err
	}

	const qList = `
		SELECT ` + imageColumns + `
		FROM images
		WHERE owner_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := r.db.QueryContext(ctx, qList, ownerID, pq.Limit, pq.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]model.Image, 0)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *img)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &repository.PageResult[model.Image]{
		Items: items,
		Total: total,
	}, nil
}

// Delete removes an image by ID; thumbnail rows go with it (ON DELETE CASCADE).
// It does not return an error if the row does not exist.
func (r *ImagePostgres) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM images WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}
