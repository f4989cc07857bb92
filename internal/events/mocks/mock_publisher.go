package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, eventType string, data any) error {
	args := m.Called(ctx, eventType, data)
	return args.Error(0)
}
