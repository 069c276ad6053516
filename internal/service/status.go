package service

import (
	"context"
	"errors"
	"fmt"
	"io"

	"thumbapi/internal/model"
	"thumbapi/internal/repository"
	"thumbapi/internal/storage"
)

// Ownership decides whether the caller may see an image. A nil Ownership
// admits every image.
type Ownership func(img *model.Image) bool

// OwnedBy admits images uploaded by ownerID.
func OwnedBy(ownerID string) Ownership {
	return func(img *model.Image) bool {
		return ownerID != "" && img != nil && img.OwnerID == ownerID
	}
}

// StatusService answers thumbnail status queries straight from the record store.
type StatusService interface {
	// GetStatus returns the record of one size.
	GetStatus(ctx context.Context, imageID string, size model.Size, owns Ownership) (*model.Thumbnail, error)

	// GetAllStatuses returns every record of the image ordered by size.
	GetAllStatuses(ctx context.Context, imageID string, owns Ownership) ([]model.Thumbnail, error)

	// OpenVariant streams the file of a ready variant. The caller closes the reader.
	OpenVariant(ctx context.Context, imageID string, size model.Size, owns Ownership) (io.ReadCloser, storage.ObjectInfo, error)
}

type statusService struct {
	images repository.ImageRepository
	thumbs repository.ThumbnailRepository
	store  storage.Storage
}

// NewStatusService constructs a StatusService.
func NewStatusService(images repository.ImageRepository, thumbs repository.ThumbnailRepository, store storage.Storage) StatusService {
	return &statusService{images: images, thumbs: thumbs, store: store}
}

func (s *statusService) GetStatus(ctx context.Context, imageID string, size model.Size, owns Ownership) (*model.Thumbnail, error) {
	if _, err := authorize(ctx, s.images, imageID, owns); err != nil {
		return nil, err
	}
	th, err := s.thumbs.Get(ctx, imageID, size)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: no %s thumbnail", ErrNotFound, size)
		}
		return nil, err
	}
	return th, nil
}

func (s *statusService) GetAllStatuses(ctx context.Context, imageID string, owns Ownership) ([]model.Thumbnail, error) {
	if _, err := authorize(ctx, s.images, imageID, owns); err != nil {
		return nil, err
	}
	return s.thumbs.ListByImage(ctx, imageID)
}

func (s *statusService) OpenVariant(ctx context.Context, imageID string, size model.Size, owns Ownership) (io.ReadCloser, storage.ObjectInfo, error) {
	th, err := s.GetStatus(ctx, imageID, size, owns)
	if err != nil {
		return nil, storage.ObjectInfo{}, err
	}
	if th.Status != model.StatusReady || th.Path == nil {
		return nil, storage.ObjectInfo{}, fmt.Errorf("%w: %s is %s", ErrNotReady, size, th.Status)
	}
	rc, info, err := s.store.Get(ctx, *th.Path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, storage.ObjectInfo{}, fmt.Errorf("%w: variant file missing", ErrNotFound)
		}
		return nil, storage.ObjectInfo{}, fmt.Errorf("open variant: %w", err)
	}
	return rc, info, nil
}

// authorize loads the image and applies owns; a rejected image looks missing.
func authorize(ctx context.Context, images repository.ImageRepository, imageID string, owns Ownership) (*model.Image, error) {
	if imageID == "" {
		return nil, ErrIDRequired
	}
	img, err := images.FindByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if owns != nil && !owns(img) {
		return nil, ErrNotFound
	}
	return img, nil
}
