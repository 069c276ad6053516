package repository

import (
	"context"

	"thumbapi/internal/model"
)

// ImageRepository defines data access for uploaded originals.
// No business logic here, strictly persistence operations.
type ImageRepository interface {
	// Create inserts a new image record and returns the stored row.
	Create(ctx context.Context, img *model.Image) (*model.Image, error)

	// FindByID returns an image by its ID or ErrNotFound.
	FindByID(ctx context.Context, id string) (*model.Image, error)

	// ListByOwner returns a page of the owner's images, newest first, and the total count.
	ListByOwner(ctx context.Context, ownerID string, pq PageQuery) (*PageResult[model.Image], error)

	// Delete removes an image by ID together with its thumbnail records.
	// It returns nil if the row was deleted or did not exist.
	Delete(ctx context.Context, id string) error
}
