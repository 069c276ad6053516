package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"thumbapi/internal/logging"
	"thumbapi/internal/model"
	"thumbapi/internal/repository"
	"thumbapi/internal/storage"
	"thumbapi/internal/thumbnail"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 100
)

// allowedTypes maps accepted upload content types to their canonical extension.
var allowedTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// UploadResult is returned by Upload: the stored image and its pending thumbnails.
type UploadResult struct {
	Image      *model.Image      `json:"image"`
	Thumbnails []model.Thumbnail `json:"thumbnails"`
}

// ImageListResult is the service-level DTO for paginated images.
type ImageListResult struct {
	Items []model.Image `json:"data"`
	Total int           `json:"total"`
}

// ImageService defines the use cases for uploaded images.
type ImageService interface {
	// Upload stores the original, records it and schedules thumbnail generation.
	// Storage and record are rolled back if a later step fails.
	Upload(ctx context.Context, ownerID string, r io.Reader, filename, contentType string, size int64) (*UploadResult, error)

	// List returns the owner's images using limit/offset and a total count.
	List(ctx context.Context, ownerID string, limit, offset int) (*ImageListResult, error)

	// Get returns a single image.
	Get(ctx context.Context, id string, owns Ownership) (*model.Image, error)

	// Delete removes the image, its thumbnails and every file derived from it.
	// Deleting an image that no longer exists succeeds.
	Delete(ctx context.Context, id string, owns Ownership) error

	// RetryThumbnail regenerates a failed variant.
	RetryThumbnail(ctx context.Context, id string, size model.Size, owns Ownership) (*model.Thumbnail, error)
}

// ImageServiceConfig carries the limits the service enforces.
type ImageServiceConfig struct {
	Sizes          []model.Size
	MaxUploadBytes int64
}

type imageService struct {
	store     storage.Storage
	images    repository.ImageRepository
	thumbs    repository.ThumbnailRepository
	scheduler thumbnail.Scheduler
	cfg       ImageServiceConfig
	log       *logrus.Entry
}

// NewImageService constructs an ImageService.
func NewImageService(store storage.Storage, images repository.ImageRepository, thumbs repository.ThumbnailRepository, scheduler thumbnail.Scheduler, cfg ImageServiceConfig) ImageService {
	return &imageService{
		store:     store,
		images:    images,
		thumbs:    thumbs,
		scheduler: scheduler,
		cfg:       cfg,
		log:       logging.Component("service"),
	}
}

func (s *imageService) Upload(ctx context.Context, ownerID string, r io.Reader, filename, contentType string, size int64) (*UploadResult, error) {
	if r == nil {
		return nil, ErrReaderNil
	}
	if ownerID == "" {
		return nil, ErrIDRequired
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	canonicalExt, ok := allowedTypes[contentType]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, contentType)
	}
	if s.cfg.MaxUploadBytes > 0 && size > s.cfg.MaxUploadBytes {
		return nil, ErrTooLarge
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = canonicalExt
	}
	id := uuid.NewString()
	key := storage.OriginalPath(id, ext)

	body := r
	if s.cfg.MaxUploadBytes > 0 {
		body = io.LimitReader(r, s.cfg.MaxUploadBytes+1)
	}
	putSize := size
	if putSize <= 0 {
		putSize = -1
	}
	objInfo, err := s.store.Put(ctx, key, body, storage.PutObjectOptions{
		Size:        putSize,
		ContentType: contentType,
		Metadata: map[string]string{
			"original-filename": filename,
			"owner-id":          ownerID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("upload to storage: %w", err)
	}
	if s.cfg.MaxUploadBytes > 0 && objInfo.Size > s.cfg.MaxUploadBytes {
		s.removeObject(ctx, key)
		return nil, ErrTooLarge
	}

	img := &model.Image{
		ID:          id,
		OwnerID:     ownerID,
		Filename:    filename,
		StoragePath: key,
		Size:        objInfo.Size,
		ContentType: contentType,
		CreatedAt:   time.Now().UTC(),
	}
	stored, err := s.images.Create(ctx, img)
	if err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			return nil, fmt.Errorf("db save failed: %v; rollback delete failed: %v", err, delErr)
		}
		return nil, fmt.Errorf("db save failed: %w", err)
	}

	thumbs, err := s.scheduler.Accept(ctx, thumbnail.UploadEvent{
		ImageID:     stored.ID,
		OwnerID:     ownerID,
		SourcePath:  key,
		ContentType: contentType,
	})
	if err != nil {
		if delErr := s.images.Delete(ctx, stored.ID); delErr != nil {
			s.log.WithError(delErr).WithField("image_id", stored.ID).Error("rollback of image record failed")
		}
		s.removeObject(ctx, key)
		return nil, fmt.Errorf("schedule thumbnails: %w", err)
	}

	return &UploadResult{Image: stored, Thumbnails: thumbs}, nil
}

func (s *imageService) List(ctx context.Context, ownerID string, limit, offset int) (*ImageListResult, error) {
	if ownerID == "" {
		return nil, ErrIDRequired
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	if offset < 0 {
		offset = 0
	}

	res, err := s.images.ListByOwner(ctx, ownerID, repository.PageQuery{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return &ImageListResult{Items: res.Items, Total: res.Total}, nil
}

func (s *imageService) Get(ctx context.Context, id string, owns Ownership) (*model.Image, error) {
	return authorize(ctx, s.images, id, owns)
}

func (s *imageService) Delete(ctx context.Context, id string, owns Ownership) error {
	img, err := authorize(ctx, s.images, id, nil)
	switch {
	case errors.Is(err, ErrNotFound):
		img = nil
	case err != nil:
		return err
	case owns != nil && !owns(img):
		return ErrNotFound
	}

	// The job must be gone before its records and files are.
	if err := s.scheduler.Cancel(ctx, id); err != nil {
		return fmt.Errorf("cancel thumbnail job: %w", err)
	}

	removed, err := s.thumbs.DeleteByImage(ctx, id)
	if err != nil {
		return fmt.Errorf("delete thumbnail records: %w", err)
	}

	var errs []error
	for _, key := range variantKeys(id, removed, s.cfg.Sizes) {
		if err := s.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	if img != nil {
		if err := s.store.Delete(ctx, img.StoragePath); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("delete files: %w", err)
	}

	return s.images.Delete(ctx, id)
}

func (s *imageService) RetryThumbnail(ctx context.Context, id string, size model.Size, owns Ownership) (*model.Thumbnail, error) {
	if !slices.Contains(s.cfg.Sizes, size) {
		return nil, fmt.Errorf("%w: %s", ErrSizeNotConfigured, size)
	}
	img, err := authorize(ctx, s.images, id, owns)
	if err != nil {
		return nil, err
	}

	th, err := s.scheduler.Retry(ctx, thumbnail.UploadEvent{
		ImageID:     img.ID,
		OwnerID:     img.OwnerID,
		SourcePath:  img.StoragePath,
		ContentType: img.ContentType,
	}, size)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: no %s thumbnail", ErrNotFound, size)
		}
		return nil, err
	}
	return th, nil
}

func (s *imageService) removeObject(ctx context.Context, key string) {
	if err := s.store.Delete(ctx, key); err != nil {
		s.log.WithError(err).WithField("key", key).Error("rollback of stored original failed")
	}
}

// variantKeys lists every path a variant of the image may occupy: the recorded
// ones plus the derivable path of each configured size, without duplicates.
func variantKeys(imageID string, removed []model.Thumbnail, sizes []model.Size) []string {
	seen := make(map[string]bool)
	var keys []string
	add := func(k string) {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for _, th := range removed {
		if th.Path != nil {
			add(*th.Path)
		}
		add(storage.VariantPath(imageID, th.Size))
	}
	for _, size := range sizes {
		add(storage.VariantPath(imageID, size))
	}
	return keys
}
