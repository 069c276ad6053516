package mocks

import (
	"context"

	"thumbapi/internal/model"
	"thumbapi/internal/thumbnail"

	"github.com/stretchr/testify/mock"
)

type MockScheduler struct {
	mock.Mock
}

func (m *MockScheduler) Accept(ctx context.Context, ev thumbnail.UploadEvent) ([]model.Thumbnail, error) {
	args := m.Called(ctx, ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Thumbnail), args.Error(1)
}

func (m *MockScheduler) Retry(ctx context.Context, ev thumbnail.UploadEvent, size model.Size) (*model.Thumbnail, error) {
	args := m.Called(ctx, ev, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Thumbnail), args.Error(1)
}

func (m *MockScheduler) Cancel(ctx context.Context, imageID string) error {
	args := m.Called(ctx, imageID)
	return args.Error(0)
}
