// package repository contains all of the methods needed to interact with the
// roster import data owned by the worker.
package repository

import (
	"context"
	"errors"

	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
)

type Repository interface {
	importJobRepository
	importErrorRepository
	memberRepository
	familyRepository
	groupRepository
}

type importJobRepository interface {
	// GetImportJobByID returns ErrJobNotFound when no import_jobs row exists
	// for the given id.
	GetImportJobByID(ctx context.Context, jobID int64) (*models.ImportJob, error)

	// StartImportJob moves the job to processing and stamps started_at iff
	// the job is still pending.
	StartImportJob(ctx context.Context, jobID int64) error

	// FinalizeImportJob moves the job from current to new and stamps
	// completed_at iff the job's status field matches current.
	FinalizeImportJob(ctx context.Context, jobID int64, current, new models.JobStatus) error

	UpdateImportJobCounts(ctx context.Context, jobID int64, total, processed, successful, failed int) error
}

type importErrorRepository interface {
	AppendImportError(ctx context.Context, entry models.ImportError) error
}

type memberRepository interface {
	// GetMemberByEmailOrPhone returns the lowest-id member whose email or
	// phone matches. Empty identifiers never match. A nil member with a nil
	// error means no match.
	GetMemberByEmailOrPhone(ctx context.Context, email, phone string) (*models.Member, error)

	CreateMember(ctx context.Context, m models.Member) (int64, error)

	// UpdateMember rewrites the member's profile fields in place. Email is
	// never rewritten on an existing member.
	UpdateMember(ctx context.Context, m models.Member) error

	UpdateMemberFamily(ctx context.Context, memberID, familyID int64) error
}

type familyRepository interface {
	// GetFamilyByName matches the family name case-insensitively. A nil
	// family with a nil error means no match.
	GetFamilyByName(ctx context.Context, name string) (*models.Family, error)

	CreateFamily(ctx context.Context, f models.Family) (int64, error)

	SetHeadOfFamily(ctx context.Context, familyID, memberID int64) error
}

type groupRepository interface {
	GetGroups(ctx context.Context) ([]*models.Group, error)

	// UpsertGroupMembership inserts the membership unless the (group, member)
	// pair already exists.
	UpsertGroupMembership(ctx context.Context, gm models.GroupMembership) error
}

var (
	ErrJobNotUpdated = errors.New("import job was not updated, no match found")
	ErrJobNotFound   = errors.New("no import job found for given id")
)
