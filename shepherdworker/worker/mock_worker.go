package worker

import (
	"context"

	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
	"github.com/stretchr/testify/mock"
)

type MockWorker struct {
	mock.Mock
}

var _ Worker = &MockWorker{}

func (w *MockWorker) ValidateJob(ctx context.Context, jobArgs models.ImportJobArgs) (*models.ImportJob, error) {
	args := w.Called(ctx, jobArgs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportJob), args.Error(1)
}

func (w *MockWorker) ProcessJob(ctx context.Context, job models.ImportJob, jobArgs models.ImportJobArgs) error {
	args := w.Called(ctx, job, jobArgs)
	return args.Error(0)
}
