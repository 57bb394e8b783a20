package models

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

type MockService struct {
	mock.Mock
}

var _ Service = &MockService{}

func (m *MockService) StartImport(ctx context.Context, fileName string, data io.Reader, createdBy string) (*ImportJob, error) {
	args := m.Called(ctx, fileName, data, createdBy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ImportJob), args.Error(1)
}

func (m *MockService) GetJob(ctx context.Context, jobID int64) (*ImportJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ImportJob), args.Error(1)
}

func (m *MockService) GetJobAndErrors(ctx context.Context, jobID int64) (*ImportJob, []*ImportError, error) {
	args := m.Called(ctx, jobID)

	var job *ImportJob
	if args.Get(0) != nil {
		job = args.Get(0).(*ImportJob)
	}
	var entries []*ImportError
	if args.Get(1) != nil {
		entries = args.Get(1).([]*ImportError)
	}
	return job, entries, args.Error(2)
}

func (m *MockService) GetJobs(ctx context.Context, createdBy string, page, limit int) ([]*ImportJob, int, error) {
	args := m.Called(ctx, createdBy, page, limit)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*ImportJob), args.Int(1), args.Error(2)
}

func (m *MockService) CancelJob(ctx context.Context, jobID int64) (int64, error) {
	args := m.Called(ctx, jobID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockService) DeleteJob(ctx context.Context, jobID int64) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}
