package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
	"github.com/ShepherdCMS/shepherd-app/shepherdworker/repository"
	"github.com/huandu/go-sqlbuilder"
)

type queryable interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type executable interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const (
	sqlFlavor = sqlbuilder.PostgreSQL
)

// Ensure Repository satisfies the interface
var _ repository.Repository = &Repository{}

type Repository struct {
	queryable
	executable
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db, db}
}

// NewRepositoryTx scopes every repository call to the supplied transaction.
// The worker uses one transaction per roster row.
func NewRepositoryTx(tx *sql.Tx) *Repository {
	return &Repository{tx, tx}
}

var jobColumns []string = []string{"id", "file_name", "file_path", "status", "total_records",
	"processed_records", "successful_records", "failed_records", "created_by",
	"created_at", "started_at", "completed_at"}

func (r *Repository) GetImportJobByID(ctx context.Context, jobID int64) (*models.ImportJob, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(jobColumns...)
	sb.From("import_jobs").Where(sb.Equal("id", jobID))

	query, args := sb.Build()

	var (
		j                                 models.ImportJob
		createdAt, startedAt, completedAt sql.NullTime
	)

	err := r.QueryRowContext(ctx, query, args...).Scan(&j.ID, &j.FileName, &j.FilePath, &j.Status,
		&j.TotalRecords, &j.ProcessedRecords, &j.SuccessfulRecords, &j.FailedRecords, &j.CreatedBy,
		&createdAt, &startedAt, &completedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrJobNotFound
		}
		return nil, err
	}

	j.CreatedAt = createdAt.Time
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}

	return &j, nil
}

func (r *Repository) StartImportJob(ctx context.Context, jobID int64) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("import_jobs")
	ub.Set(ub.Assign("status", models.JobStatusProcessing), "started_at = NOW()")
	ub.Where(ub.Equal("id", jobID), ub.Equal("status", models.JobStatusPending))
	return r.updateJob(ctx, ub)
}

func (r *Repository) FinalizeImportJob(ctx context.Context, jobID int64, current, new models.JobStatus) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("import_jobs")
	ub.Set(ub.Assign("status", new), "completed_at = NOW()")
	ub.Where(ub.Equal("id", jobID), ub.Equal("status", current))
	return r.updateJob(ctx, ub)
}

func (r *Repository) UpdateImportJobCounts(ctx context.Context, jobID int64, total, processed, successful, failed int) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("import_jobs")
	ub.Set(ub.Assign("total_records", total),
		ub.Assign("processed_records", processed),
		ub.Assign("successful_records", successful),
		ub.Assign("failed_records", failed))
	ub.Where(ub.Equal("id", jobID))
	return r.updateJob(ctx, ub)
}

func (r *Repository) AppendImportError(ctx context.Context, entry models.ImportError) error {
	// row_data is jsonb, so the raw bytes go over as text. Entries without
	// row context (structural failures) store NULL.
	var rowData interface{}
	if len(entry.RowData) > 0 {
		rowData = string(entry.RowData)
	}

	ib := sqlFlavor.NewInsertBuilder().InsertInto("import_errors")
	ib.Cols("job_id", "row_number", "severity", "message", "row_data").
		Values(entry.JobID, entry.RowNumber, entry.Severity, entry.Message, rowData)

	query, args := ib.Build()
	_, err := r.ExecContext(ctx, query, args...)
	return err
}

var memberColumns []string = []string{"id", "first_name", "last_name", "email", "phone",
	"date_of_birth", "gender", "blood_group", "address", "emergency_contact_name",
	"emergency_contact_phone", "role", "notes", "family_id", "created_at", "updated_at"}

func (r *Repository) GetMemberByEmailOrPhone(ctx context.Context, email, phone string) (*models.Member, error) {
	var conds []string
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(memberColumns...)
	sb.From("members")
	if email != "" {
		conds = append(conds, sb.Equal("email", email))
	}
	if phone != "" {
		conds = append(conds, sb.Equal("phone", phone))
	}
	if len(conds) == 0 {
		return nil, nil
	}
	sb.Where(sb.Or(conds...))
	sb.OrderBy("id").Limit(1)

	query, args := sb.Build()

	var (
		m                    models.Member
		dateOfBirth          sql.NullTime
		familyID             sql.NullInt64
		createdAt, updatedAt sql.NullTime
	)

	err := r.QueryRowContext(ctx, query, args...).Scan(&m.ID, &m.FirstName, &m.LastName, &m.Email,
		&m.Phone, &dateOfBirth, &m.Gender, &m.BloodGroup, &m.Address, &m.EmergencyContactName,
		&m.EmergencyContactPhone, &m.Role, &m.Notes, &familyID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if dateOfBirth.Valid {
		t := dateOfBirth.Time
		m.DateOfBirth = &t
	}
	if familyID.Valid {
		id := familyID.Int64
		m.FamilyID = &id
	}
	m.CreatedAt, m.UpdatedAt = createdAt.Time, updatedAt.Time

	return &m, nil
}

func (r *Repository) CreateMember(ctx context.Context, m models.Member) (int64, error) {
	// Use the raw builder since we need to retrieve the generated ID
	query, args := sqlbuilder.Buildf("INSERT INTO members (first_name, last_name, email, phone, date_of_birth, gender, blood_group, address, emergency_contact_name, emergency_contact_phone, role, notes, created_at, updated_at) VALUES (%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, %s, NOW(), NOW()) RETURNING id",
		m.FirstName, m.LastName, m.Email, m.Phone, m.DateOfBirth, m.Gender, m.BloodGroup,
		m.Address, m.EmergencyContactName, m.EmergencyContactPhone, m.Role, m.Notes).
		BuildWithFlavor(sqlFlavor)

	var id int64
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) UpdateMember(ctx context.Context, m models.Member) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("members")
	ub.Set(ub.Assign("first_name", m.FirstName),
		ub.Assign("last_name", m.LastName),
		ub.Assign("phone", m.Phone),
		ub.Assign("date_of_birth", m.DateOfBirth),
		ub.Assign("gender", m.Gender),
		ub.Assign("blood_group", m.BloodGroup),
		ub.Assign("address", m.Address),
		ub.Assign("emergency_contact_name", m.EmergencyContactName),
		ub.Assign("emergency_contact_phone", m.EmergencyContactPhone),
		ub.Assign("role", m.Role),
		ub.Assign("notes", m.Notes),
		"updated_at = NOW()")
	ub.Where(ub.Equal("id", m.ID))

	query, args := ub.Build()
	res, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("member %d not updated, no row found", m.ID)
	}

	return nil
}

func (r *Repository) UpdateMemberFamily(ctx context.Context, memberID, familyID int64) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("members")
	ub.Set(ub.Assign("family_id", familyID), "updated_at = NOW()")
	ub.Where(ub.Equal("id", memberID))

	query, args := ub.Build()
	res, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("member %d not linked to family %d, no row found", memberID, familyID)
	}

	return nil
}

var familyColumns []string = []string{"id", "name", "address", "phone", "head_of_family_id",
	"created_at", "updated_at"}

func (r *Repository) GetFamilyByName(ctx context.Context, name string) (*models.Family, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select(familyColumns...)
	sb.From("families")
	sb.Where(fmt.Sprintf("LOWER(name) = LOWER(%s)", sb.Var(name)))

	query, args := sb.Build()

	var (
		f                    models.Family
		headOfFamilyID       sql.NullInt64
		createdAt, updatedAt sql.NullTime
	)

	err := r.QueryRowContext(ctx, query, args...).Scan(&f.ID, &f.Name, &f.Address, &f.Phone,
		&headOfFamilyID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if headOfFamilyID.Valid {
		id := headOfFamilyID.Int64
		f.HeadOfFamilyID = &id
	}
	f.CreatedAt, f.UpdatedAt = createdAt.Time, updatedAt.Time

	return &f, nil
}

func (r *Repository) CreateFamily(ctx context.Context, f models.Family) (int64, error) {
	// Use the raw builder since we need to retrieve the generated ID
	query, args := sqlbuilder.Buildf("INSERT INTO families (name, address, phone, created_at, updated_at) VALUES (%s, %s, %s, NOW(), NOW()) RETURNING id",
		f.Name, f.Address, f.Phone).
		BuildWithFlavor(sqlFlavor)

	var id int64
	if err := r.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return 0, err
	}

	return id, nil
}

func (r *Repository) SetHeadOfFamily(ctx context.Context, familyID, memberID int64) error {
	ub := sqlFlavor.NewUpdateBuilder().Update("families")
	ub.Set(ub.Assign("head_of_family_id", memberID), "updated_at = NOW()")
	ub.Where(ub.Equal("id", familyID))

	query, args := ub.Build()
	res, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return fmt.Errorf("family %d head not set, no row found", familyID)
	}

	return nil
}

func (r *Repository) GetGroups(ctx context.Context) ([]*models.Group, error) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("id", "name", "description", "created_at")
	sb.From("groups").OrderBy("id")

	query, args := sb.Build()
	rows, err := r.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		var (
			g         models.Group
			createdAt sql.NullTime
		)
		if err = rows.Scan(&g.ID, &g.Name, &g.Description, &createdAt); err != nil {
			return nil, err
		}
		g.CreatedAt = createdAt.Time
		groups = append(groups, &g)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return groups, nil
}

func (r *Repository) UpsertGroupMembership(ctx context.Context, gm models.GroupMembership) error {
	// Reruns and duplicate roster rows land on the same (group, member) pair,
	// so conflicts are dropped rather than surfaced.
	query, args := sqlbuilder.Buildf("INSERT INTO group_memberships (group_id, member_id, status, role, created_at) VALUES (%s, %s, %s, %s, NOW()) ON CONFLICT (group_id, member_id) DO NOTHING",
		gm.GroupID, gm.MemberID, gm.Status, gm.Role).
		BuildWithFlavor(sqlFlavor)

	_, err := r.ExecContext(ctx, query, args...)
	return err
}

func (r *Repository) updateJob(ctx context.Context, ub *sqlbuilder.UpdateBuilder) error {
	query, args := ub.Build()
	result, err := r.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if affected == 0 {
		return repository.ErrJobNotUpdated
	}

	return nil
}
