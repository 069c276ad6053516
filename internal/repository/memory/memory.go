// Package memory provides process-local implementations of the repository
// interfaces. State is lost on restart; it backs DB_DRIVER=memory and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"thumbapi/internal/model"
	"thumbapi/internal/repository"
)

type thumbKey struct {
	imageID string
	size    model.Size
}

// Store implements both repository.ImageRepository and
// repository.ThumbnailRepository behind a single mutex, so every method is one
// atomic step like a single SQL statement.
type Store struct {
	mu     sync.Mutex
	images map[string]model.Image
	thumbs map[thumbKey]*model.Thumbnail
	byID   map[string]thumbKey

	now   func() time.Time
	newID func() string
}

var (
	_ repository.ImageRepository     = (*Store)(nil)
	_ repository.ThumbnailRepository = (*Store)(nil)
)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		images: make(map[string]model.Image),
		thumbs: make(map[thumbKey]*model.Thumbnail),
		byID:   make(map[string]thumbKey),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
}

// Create stores img. A duplicate id yields repository.ErrRecordConflict.
func (s *Store) Create(_ context.Context, img *model.Image) (*model.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.images[img.ID]; ok {
		return nil, fmt.Errorf("%w: image %s exists", repository.ErrRecordConflict, img.ID)
	}
	out := *img
	s.images[img.ID] = out
	return &out, nil
}

// FindByID returns a copy of the image.
func (s *Store) FindByID(_ context.Context, id string) (*model.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	img, ok := s.images[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &img, nil
}

// ListByOwner pages the owner's images, newest first.
func (s *Store) ListByOwner(_ context.Context, ownerID string, pq repository.PageQuery) (*repository.PageResult[model.Image], error) {
	s.mu.Lock()
	owned := make([]model.Image, 0)
	for _, img := range s.images {
		if img.OwnerID == ownerID {
			owned = append(owned, img)
		}
	}
	s.mu.Unlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	total := len(owned)
	start := min(max(pq.Offset, 0), total)
	end := total
	if pq.Limit > 0 {
		end = min(start+pq.Limit, total)
	}
	return &repository.PageResult[model.Image]{Items: owned[start:end], Total: total}, nil
}

// Delete removes the image and cascades to its thumbnail records.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.images, id)
	s.deleteThumbsLocked(id)
	return nil
}

// CreatePending inserts a pending record.
func (s *Store) CreatePending(_ context.Context, imageID string, size model.Size) (*model.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.images[imageID]; !ok {
		return nil, fmt.Errorf("%w: image %s", repository.ErrNotFound, imageID)
	}
	key := thumbKey{imageID: imageID, size: size}
	if _, ok := s.thumbs[key]; ok {
		return nil, fmt.Errorf("%w: thumbnail %s %s exists", repository.ErrRecordConflict, imageID, size)
	}
	t := &model.Thumbnail{
		ID:        s.newID(),
		ImageID:   imageID,
		Size:      size,
		Status:    model.StatusPending,
		Attempt:   1,
		UpdatedAt: s.now(),
	}
	s.thumbs[key] = t
	s.byID[t.ID] = key
	return copyThumb(t), nil
}

// MarkReady moves a pending record to ready.
func (s *Store) MarkReady(_ context.Context, id, path string) error {
	return s.transition(id, func(t *model.Thumbnail) {
		t.Status = model.StatusReady
		t.Path = &path
		t.Error = nil
	})
}

// MarkFailed moves a pending record to failed.
func (s *Store) MarkFailed(_ context.Context, id, detail string) error {
	return s.transition(id, func(t *model.Thumbnail) {
		t.Status = model.StatusFailed
		t.Path = nil
		t.Error = &detail
	})
}

func (s *Store) transition(id string, apply func(*model.Thumbnail)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	t := s.thumbs[key]
	if t.Status != model.StatusPending {
		return fmt.Errorf("%w: thumbnail %s is already %s", repository.ErrRecordConflict, id, t.Status)
	}
	apply(t)
	t.UpdatedAt = s.now()
	return nil
}

// Get returns the record for (imageID, size).
func (s *Store) Get(_ context.Context, imageID string, size model.Size) (*model.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.thumbs[thumbKey{imageID: imageID, size: size}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyThumb(t), nil
}

// ListByImage returns the image's records ordered by size.
func (s *Store) ListByImage(_ context.Context, imageID string) ([]model.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.collectLocked(imageID), nil
}

// DeleteByImage removes and returns the image's records.
func (s *Store) DeleteByImage(_ context.Context, imageID string) ([]model.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deleteThumbsLocked(imageID), nil
}

// ReplaceFailed resets a failed record to pending under a new id.
func (s *Store) ReplaceFailed(_ context.Context, imageID string, size model.Size) (*model.Thumbnail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := thumbKey{imageID: imageID, size: size}
	old, ok := s.thumbs[key]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if old.Status != model.StatusFailed {
		return nil, fmt.Errorf("%w: thumbnail %s is %s, not failed", repository.ErrRecordConflict, old.ID, old.Status)
	}
	delete(s.byID, old.ID)
	t := &model.Thumbnail{
		ID:        s.newID(),
		ImageID:   imageID,
		Size:      size,
		Status:    model.StatusPending,
		Attempt:   old.Attempt + 1,
		UpdatedAt: s.now(),
	}
	s.thumbs[key] = t
	s.byID[t.ID] = key
	return copyThumb(t), nil
}

// FailPending marks every pending record failed.
func (s *Store) FailPending(_ context.Context, detail string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	now := s.now()
	for _, t := range s.thumbs {
		if t.Status != model.StatusPending {
			continue
		}
		d := detail
		t.Status = model.StatusFailed
		t.Error = &d
		t.UpdatedAt = now
		n++
	}
	return n, nil
}

func (s *Store) collectLocked(imageID string) []model.Thumbnail {
	out := make([]model.Thumbnail, 0)
	for key, t := range s.thumbs {
		if key.imageID == imageID {
			out = append(out, *copyThumb(t))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Size.Width != out[j].Size.Width {
			return out[i].Size.Width < out[j].Size.Width
		}
		return out[i].Size.Height < out[j].Size.Height
	})
	return out
}

func (s *Store) deleteThumbsLocked(imageID string) []model.Thumbnail {
	removed := s.collectLocked(imageID)
	for _, t := range removed {
		delete(s.thumbs, thumbKey{imageID: imageID, size: t.Size})
		delete(s.byID, t.ID)
	}
	return removed
}

func copyThumb(t *model.Thumbnail) *model.Thumbnail {
	out := *t
	if t.Path != nil {
		p := *t.Path
		out.Path = &p
	}
	if t.Error != nil {
		e := *t.Error
		out.Error = &e
	}
	return &out
}
