package service

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockProducer mocks the queue.Producer interface
type MockProducer struct {
	mock.Mock
}

func (m *MockProducer) Enqueue(ctx context.Context, jobID int64) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

// MockExporter mocks the Exporter interface
type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) Stream(ctx context.Context, w io.Writer, jobID int64) error {
	args := m.Called(ctx, w, jobID)
	return args.Error(0)
}
