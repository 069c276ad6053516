package repository

import (
	"context"

	"thumbapi/internal/model"
)

// ThumbnailRepository stores one status record per (image, size).
//
// Every mutation is a single statement. MarkReady and MarkFailed only apply to
// records still pending: a terminal record yields ErrRecordConflict and a
// missing one ErrNotFound.
type ThumbnailRepository interface {
	// CreatePending inserts a pending record with attempt 1.
	// An existing record for (imageID, size) yields ErrRecordConflict and a
	// missing image yields ErrNotFound.
	CreatePending(ctx context.Context, imageID string, size model.Size) (*model.Thumbnail, error)

	// MarkReady moves a pending record to ready and stores its path.
	MarkReady(ctx context.Context, id, path string) error

	// MarkFailed moves a pending record to failed and stores detail.
	MarkFailed(ctx context.Context, id, detail string) error

	// Get returns the record for (imageID, size) or ErrNotFound.
	Get(ctx context.Context, imageID string, size model.Size) (*model.Thumbnail, error)

	// ListByImage returns every record of the image ordered by size.
	ListByImage(ctx context.Context, imageID string) ([]model.Thumbnail, error)

	// DeleteByImage removes every record of the image and returns the removed rows.
	DeleteByImage(ctx context.Context, imageID string) ([]model.Thumbnail, error)

	// ReplaceFailed swaps a failed record for a fresh pending one with a new id
	// and the attempt counter incremented. A record in any other status yields
	// ErrRecordConflict.
	ReplaceFailed(ctx context.Context, imageID string, size model.Size) (*model.Thumbnail, error)

	// FailPending marks every pending record failed with detail and returns
	// how many were changed. It is meant for startup, before any job runs.
	FailPending(ctx context.Context, detail string) (int64, error)
}
