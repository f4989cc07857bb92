package mocks

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"smoke/internal/model"
	"smoke/internal/service"
)

type MockReportService struct {
	mock.Mock
}

func (m *MockReportService) Publish(ctx context.Context, s *model.RunSummary) (*model.Run, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *MockReportService) List(ctx context.Context, limit, offset int) (*service.RunListResult, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RunListResult), args.Error(1)
}

func (m *MockReportService) Get(ctx context.Context, id string) (*model.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Run), args.Error(1)
}

func (m *MockReportService) Report(ctx context.Context, id string) (io.ReadCloser, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(io.ReadCloser), args.Error(1)
}

func (m *MockReportService) PresignReport(ctx context.Context, run *model.Run, expiry time.Duration) (string, error) {
	args := m.Called(ctx, run, expiry)
	return args.String(0), args.Error(1)
}

func (m *MockReportService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
