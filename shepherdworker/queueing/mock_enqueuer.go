package queueing

import (
	"context"

	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
	"github.com/stretchr/testify/mock"
)

type MockEnqueuer struct {
	mock.Mock
}

var _ Enqueuer = &MockEnqueuer{}

func (m *MockEnqueuer) AddJob(ctx context.Context, job models.ImportJobArgs, priority int) error {
	args := m.Called(ctx, job, priority)
	return args.Error(0)
}
