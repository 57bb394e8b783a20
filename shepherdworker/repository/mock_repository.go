package repository

import (
	"context"

	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) GetImportJobByID(ctx context.Context, jobID int64) (*models.ImportJob, error) {
	args := m.Called(ctx, jobID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ImportJob), args.Error(1)
}

func (m *MockRepository) StartImportJob(ctx context.Context, jobID int64) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockRepository) FinalizeImportJob(ctx context.Context, jobID int64, current, new models.JobStatus) error {
	args := m.Called(ctx, jobID, current, new)
	return args.Error(0)
}

func (m *MockRepository) UpdateImportJobCounts(ctx context.Context, jobID int64, total, processed, successful, failed int) error {
	args := m.Called(ctx, jobID, total, processed, successful, failed)
	return args.Error(0)
}

func (m *MockRepository) AppendImportError(ctx context.Context, entry models.ImportError) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockRepository) GetMemberByEmailOrPhone(ctx context.Context, email, phone string) (*models.Member, error) {
	args := m.Called(ctx, email, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Member), args.Error(1)
}

func (m *MockRepository) CreateMember(ctx context.Context, member models.Member) (int64, error) {
	args := m.Called(ctx, member)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) UpdateMember(ctx context.Context, member models.Member) error {
	args := m.Called(ctx, member)
	return args.Error(0)
}

func (m *MockRepository) UpdateMemberFamily(ctx context.Context, memberID, familyID int64) error {
	args := m.Called(ctx, memberID, familyID)
	return args.Error(0)
}

func (m *MockRepository) GetFamilyByName(ctx context.Context, name string) (*models.Family, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Family), args.Error(1)
}

func (m *MockRepository) CreateFamily(ctx context.Context, f models.Family) (int64, error) {
	args := m.Called(ctx, f)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) SetHeadOfFamily(ctx context.Context, familyID, memberID int64) error {
	args := m.Called(ctx, familyID, memberID)
	return args.Error(0)
}

func (m *MockRepository) GetGroups(ctx context.Context) ([]*models.Group, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Group), args.Error(1)
}

func (m *MockRepository) UpsertGroupMembership(ctx context.Context, gm models.GroupMembership) error {
	args := m.Called(ctx, gm)
	return args.Error(0)
}
