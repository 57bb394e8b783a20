package models

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateImportJob(ctx context.Context, j ImportJob) (int64, error) {
	args := m.Called(ctx, j)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) GetImportJobByID(ctx context.Context, jobID int64) (*ImportJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ImportJob), args.Error(1)
}

func (m *MockRepository) GetImportJobs(ctx context.Context, createdBy string, limit, offset int) ([]*ImportJob, error) {
	args := m.Called(ctx, createdBy, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ImportJob), args.Error(1)
}

func (m *MockRepository) CountImportJobs(ctx context.Context, createdBy string) (int, error) {
	args := m.Called(ctx, createdBy)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) UpdateImportJobStatusCheckStatus(ctx context.Context, jobID int64, current, new JobStatus) error {
	args := m.Called(ctx, jobID, current, new)
	return args.Error(0)
}

func (m *MockRepository) DeleteImportJob(ctx context.Context, jobID int64) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockRepository) GetImportJobErrors(ctx context.Context, jobID int64) ([]*ImportError, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*ImportError), args.Error(1)
}

func (m *MockRepository) CountImportErrors(ctx context.Context, jobID int64) (int, error) {
	args := m.Called(ctx, jobID)
	return args.Int(0), args.Error(1)
}
