package mocks

import (
	"context"
	"io"

	"thumbapi/internal/model"
	"thumbapi/internal/service"
	"thumbapi/internal/storage"

	"github.com/stretchr/testify/mock"
)

type MockStatusService struct {
	mock.Mock
}

func (m *MockStatusService) GetStatus(ctx context.Context, imageID string, size model.Size, owns service.Ownership) (*model.Thumbnail, error) {
	args := m.Called(ctx, imageID, size, owns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Thumbnail), args.Error(1)
}

func (m *MockStatusService) GetAllStatuses(ctx context.Context, imageID string, owns service.Ownership) ([]model.Thumbnail, error) {
	args := m.Called(ctx, imageID, owns)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Thumbnail), args.Error(1)
}

func (m *MockStatusService) OpenVariant(ctx context.Context, imageID string, size model.Size, owns service.Ownership) (io.ReadCloser, storage.ObjectInfo, error) {
	args := m.Called(ctx, imageID, size, owns)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Get(1).(storage.ObjectInfo), args.Error(2)
}
