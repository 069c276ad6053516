package mocks

import (
	"context"

	"thumbapi/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockThumbnailRepository struct {
	mock.Mock
}

func (m *MockThumbnailRepository) CreatePending(ctx context.Context, imageID string, size model.Size) (*model.Thumbnail, error) {
	args := m.Called(ctx, imageID, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Thumbnail), args.Error(1)
}

func (m *MockThumbnailRepository) MarkReady(ctx context.Context, id, path string) error {
	args := m.Called(ctx, id, path)
	return args.Error(0)
}

func (m *MockThumbnailRepository) MarkFailed(ctx context.Context, id, detail string) error {
	args := m.Called(ctx, id, detail)
	return args.Error(0)
}

func (m *MockThumbnailRepository) Get(ctx context.Context, imageID string, size model.Size) (*model.Thumbnail, error) {
	args := m.Called(ctx, imageID, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Thumbnail), args.Error(1)
}

func (m *MockThumbnailRepository) ListByImage(ctx context.Context, imageID string) ([]model.Thumbnail, error) {
	args := m.Called(ctx, imageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Thumbnail), args.Error(1)
}

func (m *MockThumbnailRepository) DeleteByImage(ctx context.Context, imageID string) ([]model.Thumbnail, error) {
	args := m.Called(ctx, imageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Thumbnail), args.Error(1)
}

func (m *MockThumbnailRepository) ReplaceFailed(ctx context.Context, imageID string, size model.Size) (*model.Thumbnail, error) {
	args := m.Called(ctx, imageID, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Thumbnail), args.Error(1)
}

func (m *MockThumbnailRepository) FailPending(ctx context.Context, detail string) (int64, error) {
	args := m.Called(ctx, detail)
	return args.Get(0).(int64), args.Error(1)
}
