package mocks

import (
	"context"
	"io"

	"thumbapi/internal/model"
	"thumbapi/internal/service"

	"github.com/stretchr/testify/mock"
)

type MockImageService struct {
	mock.Mock
}

func (m *MockImageService) Upload(ctx context.Context, ownerID string, r io.Reader, filename, contentType string, size int64) (*service.UploadResult, error) {
	args := m.Called(ctx, ownerID, r, filename, contentType, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.UploadResult), args.Error(1)
}

func (m *MockImageService) List(ctx context.Context, ownerID string, limit, offset int) (*service.ImageListResult, error) {
	args := m.Called(ctx, ownerID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ImageListResult), args.Error(1)
}

func (m *MockImageService) Get(ctx context.Context, id string, owns service.Ownership) (*model.Image, error) {
	args := m.Called(ctx, id, owns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Image), args.Error(1)
}

func (m *MockImageService) Delete(ctx context.Context, id string, owns service.Ownership) error {
	args := m.Called(ctx, id, owns)
	return args.Error(0)
}

func (m *MockImageService) RetryThumbnail(ctx context.Context, id string, size model.Size, owns service.Ownership) (*model.Thumbnail, error) {
	args := m.Called(ctx, id, size, owns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Thumbnail), args.Error(1)
}
