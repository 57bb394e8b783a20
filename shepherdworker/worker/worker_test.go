package worker

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/ShepherdCMS/shepherd-app/shepherd/constants"
	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
	"github.com/ShepherdCMS/shepherd-app/shepherd/roster"
	"github.com/ShepherdCMS/shepherd-app/shepherd/testUtils"
	"github.com/ShepherdCMS/shepherd-app/shepherdworker/repository"
	"github.com/ShepherdCMS/shepherd-app/uploads"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const rosterHeader = "First Name*,Last Name*,Email*,Phone*,Date of Birth,Gender,Blood Group,Address,Emergency Contact Name,Emergency Contact Phone,Family Name*,Head of Family,Group Memberships,Role,Notes"

func rosterCSV(rows ...string) string {
	return strings.Join(append([]string{rosterHeader}, rows...), "\n") + "\n"
}

type WorkerTestSuite struct {
	suite.Suite
}

func TestWorkerTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

func (s *WorkerTestSuite) TestValidateJob() {
	ctx := context.Background()
	r := &repository.MockRepository{}
	w := &worker{r: r}

	jobNotFound := models.ImportJobArgs{ID: rand.Int63()}
	dbErr := models.ImportJobArgs{ID: rand.Int63()}
	jobCancelled := models.ImportJobArgs{ID: rand.Int63()}
	jobFailed := models.ImportJobArgs{ID: rand.Int63()}
	jobCompleted := models.ImportJobArgs{ID: rand.Int63()}
	jobProcessing := models.ImportJobArgs{ID: rand.Int63()}
	validJob := models.ImportJobArgs{ID: rand.Int63()}

	r.On("GetImportJobByID", testUtils.CtxMatcher, jobNotFound.ID).Return(nil, repository.ErrJobNotFound)
	r.On("GetImportJobByID", testUtils.CtxMatcher, dbErr.ID).Return(nil, fmt.Errorf("some db error"))
	r.On("GetImportJobByID", testUtils.CtxMatcher, jobCancelled.ID).
		Return(&models.ImportJob{ID: jobCancelled.ID, Status: models.JobStatusCancelled}, nil)
	r.On("GetImportJobByID", testUtils.CtxMatcher, jobFailed.ID).
		Return(&models.ImportJob{ID: jobFailed.ID, Status: models.JobStatusFailed}, nil)
	r.On("GetImportJobByID", testUtils.CtxMatcher, jobCompleted.ID).
		Return(&models.ImportJob{ID: jobCompleted.ID, Status: models.JobStatusCompleted}, nil)
	r.On("GetImportJobByID", testUtils.CtxMatcher, jobProcessing.ID).
		Return(&models.ImportJob{ID: jobProcessing.ID, Status: models.JobStatusProcessing}, nil)
	r.On("GetImportJobByID", testUtils.CtxMatcher, validJob.ID).
		Return(&models.ImportJob{ID: validJob.ID, Status: models.JobStatusPending}, nil)

	defer r.AssertExpectations(s.T())

	j, err := w.ValidateJob(ctx, jobNotFound)
	assert.Nil(s.T(), j)
	assert.Contains(s.T(), err.Error(), ErrParentJobNotFound.Error())

	j, err = w.ValidateJob(ctx, dbErr)
	assert.Nil(s.T(), j)
	assert.Contains(s.T(), err.Error(), "some db error")

	j, err = w.ValidateJob(ctx, jobCancelled)
	assert.Nil(s.T(), j)
	assert.Contains(s.T(), err.Error(), ErrParentJobCancelled.Error())

	j, err = w.ValidateJob(ctx, jobFailed)
	assert.Nil(s.T(), j)
	assert.Contains(s.T(), err.Error(), ErrParentJobFailed.Error())

	j, err = w.ValidateJob(ctx, jobCompleted)
	assert.Nil(s.T(), j)
	assert.Contains(s.T(), err.Error(), ErrParentJobCompleted.Error())

	j, err = w.ValidateJob(ctx, jobProcessing)
	assert.Nil(s.T(), j)
	assert.Contains(s.T(), err.Error(), ErrParentJobProcessing.Error())

	j, err = w.ValidateJob(ctx, validJob)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), validJob.ID, j.ID)
}

func (s *WorkerTestSuite) TestProcessJob() {
	// Row 2 imports a brand new member, family and one known group; its
	// second group name is unknown and only warns. Row 3 fails validation.
	csv := rosterCSV(
		`Ruth,Okafor,ruth.okafor@example.com,+1 555 987 1234,1984-03-07,Female,O+,12 Cedar Lane,Sam Okafor,+1 555 987 0000,Okafor Family,yes,"Choir, Dance Crew",member,`,
		`Miriam,Jones,,+1 555 111 2222,,,,,,,Jones Family,,,,`,
	)

	db, dbMock, err := sqlmock.New()
	assert.NoError(s.T(), err)
	defer db.Close()

	repo := &repository.MockRepository{}
	fh := &uploads.MockFileHandler{}
	w := &worker{db: db, r: repo, fileHandler: fh, flushInterval: 10}

	job := models.ImportJob{
		ID:       rand.Int63(),
		FileName: "roster.csv",
		FilePath: "/var/shepherd/uploads/abc-roster.csv",
		Status:   models.JobStatusPending,
	}

	fh.On("Open", testUtils.CtxMatcher, job.FilePath).
		Return(io.NopCloser(strings.NewReader(csv)), func() {}, nil)
	repo.On("StartImportJob", testUtils.CtxMatcher, job.ID).Return(nil)
	repo.On("GetGroups", testUtils.CtxMatcher).Return([]*models.Group{{ID: 7, Name: "Choir"}}, nil)

	dob, err := roster.ParseDate("1984-03-07")
	assert.NoError(s.T(), err)

	dbMock.ExpectBegin()
	dbMock.ExpectQuery("SELECT (.+) FROM members WHERE").
		WithArgs("ruth.okafor@example.com", "+1 555 987 1234").
		WillReturnError(sql.ErrNoRows)
	dbMock.ExpectQuery("INSERT INTO members").
		WithArgs("Ruth", "Okafor", "ruth.okafor@example.com", "+1 555 987 1234", dob, "Female",
			"O+", "12 Cedar Lane", "Sam Okafor", "+1 555 987 0000", models.RoleMember, "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	dbMock.ExpectQuery("SELECT (.+) FROM families WHERE").
		WithArgs("Okafor Family").
		WillReturnError(sql.ErrNoRows)
	dbMock.ExpectQuery("INSERT INTO families").
		WithArgs("Okafor Family", "12 Cedar Lane", "+1 555 987 1234").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(21)))
	dbMock.ExpectExec("UPDATE members SET family_id =").
		WithArgs(int64(21), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectExec("UPDATE families SET head_of_family_id =").
		WithArgs(int64(11), int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectExec("INSERT INTO group_memberships").
		WithArgs(int64(7), int64(11), models.MembershipStatusPending, models.RoleMember).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectCommit()

	repo.On("AppendImportError", testUtils.CtxMatcher, mock.MatchedBy(func(e models.ImportError) bool {
		return e.JobID == job.ID && e.RowNumber == 2 && e.Severity == models.SeverityWarning &&
			strings.Contains(e.Message, "Dance Crew")
	})).Return(nil)
	repo.On("AppendImportError", testUtils.CtxMatcher, mock.MatchedBy(func(e models.ImportError) bool {
		return e.JobID == job.ID && e.RowNumber == 3 && e.Severity == models.SeverityError &&
			e.Message == "Email is required" && strings.Contains(string(e.RowData), "Miriam")
	})).Return(nil)
	repo.On("UpdateImportJobCounts", testUtils.CtxMatcher, job.ID, 2, 2, 1, 1).Return(nil)
	repo.On("FinalizeImportJob", testUtils.CtxMatcher, job.ID,
		models.JobStatusProcessing, models.JobStatusCompleted).Return(nil)

	err = w.ProcessJob(context.Background(), job, models.ImportJobArgs{ID: job.ID})
	assert.NoError(s.T(), err)

	repo.AssertExpectations(s.T())
	fh.AssertExpectations(s.T())
	assert.NoError(s.T(), dbMock.ExpectationsWereMet())
}

// TestProcessJobSyntheticMixedRoster runs the mixed synthetic roster end to
// end: one clean row imports, the other four each trip a different validation
// rule and land in the error log without failing the job.
func (s *WorkerTestSuite) TestProcessJobSyntheticMixedRoster() {
	f, err := os.Open(constants.TestMixedRosterFile)
	if err != nil {
		s.FailNow(err.Error())
	}

	db, dbMock, err := sqlmock.New()
	assert.NoError(s.T(), err)
	defer db.Close()

	repo := &repository.MockRepository{}
	fh := &uploads.MockFileHandler{}
	w := &worker{db: db, r: repo, fileHandler: fh, flushInterval: 10}

	job := models.ImportJob{
		ID:       rand.Int63(),
		FileName: "roster_mixed.csv",
		FilePath: "/var/shepherd/uploads/abc-roster_mixed.csv",
		Status:   models.JobStatusPending,
	}

	fh.On("Open", testUtils.CtxMatcher, job.FilePath).Return(f, func() {}, nil)
	repo.On("StartImportJob", testUtils.CtxMatcher, job.ID).Return(nil)
	repo.On("GetGroups", testUtils.CtxMatcher).Return([]*models.Group{{ID: 5, Name: "Welcome Team"}}, nil)

	dob, err := roster.ParseDate("1984-05-13")
	assert.NoError(s.T(), err)

	dbMock.ExpectBegin()
	dbMock.ExpectQuery("SELECT (.+) FROM members WHERE").
		WithArgs("sarah.connor@example.com", "555-000-1111").
		WillReturnError(sql.ErrNoRows)
	dbMock.ExpectQuery("INSERT INTO members").
		WithArgs("Sarah", "Connor", "sarah.connor@example.com", "555-000-1111", dob, "Female",
			"AB+", "19 Flower St", "", "", models.RoleMember, "").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(31)))
	dbMock.ExpectQuery("SELECT (.+) FROM families WHERE").
		WithArgs("Connor").
		WillReturnError(sql.ErrNoRows)
	dbMock.ExpectQuery("INSERT INTO families").
		WithArgs("Connor", "19 Flower St", "555-000-1111").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(41)))
	dbMock.ExpectExec("UPDATE members SET family_id =").
		WithArgs(int64(41), int64(31)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectExec("UPDATE families SET head_of_family_id =").
		WithArgs(int64(31), int64(41)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectExec("INSERT INTO group_memberships").
		WithArgs(int64(5), int64(31), models.MembershipStatusPending, models.RoleMember).
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectCommit()

	rowErrors := map[int]string{
		3: "invalid email format: not-an-email",
		4: "First Name is required",
		5: "phone must contain at least 10 digits: 555",
		6: "invalid date of birth: 02/30/1990",
	}
	for rowNumber, message := range rowErrors {
		rowNumber, message := rowNumber, message
		repo.On("AppendImportError", testUtils.CtxMatcher, mock.MatchedBy(func(e models.ImportError) bool {
			return e.JobID == job.ID && e.RowNumber == rowNumber &&
				e.Severity == models.SeverityError && e.Message == message
		})).Return(nil)
	}
	repo.On("UpdateImportJobCounts", testUtils.CtxMatcher, job.ID, 5, 5, 1, 4).Return(nil)
	repo.On("FinalizeImportJob", testUtils.CtxMatcher, job.ID,
		models.JobStatusProcessing, models.JobStatusCompleted).Return(nil)

	err = w.ProcessJob(context.Background(), job, models.ImportJobArgs{ID: job.ID})
	assert.NoError(s.T(), err)

	repo.AssertExpectations(s.T())
	fh.AssertExpectations(s.T())
	assert.NoError(s.T(), dbMock.ExpectationsWereMet())
}

func (s *WorkerTestSuite) TestProcessJobStructuralFailure() {
	tests := []struct {
		name       string
		openErr    error
		csv        string
		expMessage string
	}{
		{"OpenFails", fmt.Errorf("no such file"), "", "could not open staged roster"},
		{"NoDataRows", nil, rosterHeader + "\n", "could not parse staged roster"},
	}

	for _, tt := range tests {
		s.T().Run(tt.name, func(t *testing.T) {
			repo := &repository.MockRepository{}
			fh := &uploads.MockFileHandler{}
			w := &worker{r: repo, fileHandler: fh, flushInterval: 10}

			job := models.ImportJob{ID: rand.Int63(), FileName: "roster.csv", FilePath: "/var/shepherd/uploads/abc-roster.csv"}

			if tt.openErr != nil {
				fh.On("Open", testUtils.CtxMatcher, job.FilePath).Return(nil, nil, tt.openErr)
			} else {
				fh.On("Open", testUtils.CtxMatcher, job.FilePath).
					Return(io.NopCloser(strings.NewReader(tt.csv)), func() {}, nil)
			}
			repo.On("StartImportJob", testUtils.CtxMatcher, job.ID).Return(nil)
			repo.On("AppendImportError", testUtils.CtxMatcher, mock.MatchedBy(func(e models.ImportError) bool {
				return e.JobID == job.ID && e.RowNumber == 0 && e.Severity == models.SeverityError &&
					strings.Contains(e.Message, tt.expMessage)
			})).Return(nil)
			repo.On("FinalizeImportJob", testUtils.CtxMatcher, job.ID,
				models.JobStatusProcessing, models.JobStatusFailed).Return(nil)

			// The job row carries the failure; the queue entry is acknowledged.
			assert.NoError(t, w.ProcessJob(context.Background(), job, models.ImportJobArgs{ID: job.ID}))

			repo.AssertExpectations(t)
			fh.AssertExpectations(t)
		})
	}
}

func (s *WorkerTestSuite) TestProcessJobCancelledBeforeFirstRow() {
	csv := rosterCSV(`Ruth,Okafor,ruth.okafor@example.com,+1 555 987 1234,,,,,,,Okafor Family,,,,`)

	repo := &repository.MockRepository{}
	fh := &uploads.MockFileHandler{}
	w := &worker{r: repo, fileHandler: fh, flushInterval: 10}

	job := models.ImportJob{ID: rand.Int63(), FileName: "roster.csv", FilePath: "/var/shepherd/uploads/abc-roster.csv"}

	fh.On("Open", testUtils.CtxMatcher, job.FilePath).
		Return(io.NopCloser(strings.NewReader(csv)), func() {}, nil)
	repo.On("StartImportJob", testUtils.CtxMatcher, job.ID).Return(nil)
	repo.On("GetGroups", testUtils.CtxMatcher).Return([]*models.Group{}, nil)
	repo.On("UpdateImportJobCounts", testUtils.CtxMatcher, job.ID, 1, 0, 0, 0).Return(nil)
	repo.On("FinalizeImportJob", testUtils.CtxMatcher, job.ID,
		models.JobStatusCancelled, models.JobStatusCancelled).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.NoError(s.T(), w.ProcessJob(ctx, job, models.ImportJobArgs{ID: job.ID}))

	repo.AssertExpectations(s.T())
	fh.AssertExpectations(s.T())
}

func (s *WorkerTestSuite) TestProcessJobGroupPreloadFails() {
	csv := rosterCSV(`Ruth,Okafor,ruth.okafor@example.com,+1 555 987 1234,,,,,,,Okafor Family,,,,`)

	repo := &repository.MockRepository{}
	fh := &uploads.MockFileHandler{}
	w := &worker{r: repo, fileHandler: fh, flushInterval: 10}

	job := models.ImportJob{ID: rand.Int63(), FileName: "roster.csv", FilePath: "/var/shepherd/uploads/abc-roster.csv"}

	fh.On("Open", testUtils.CtxMatcher, job.FilePath).
		Return(io.NopCloser(strings.NewReader(csv)), func() {}, nil)
	repo.On("StartImportJob", testUtils.CtxMatcher, job.ID).Return(nil)
	repo.On("GetGroups", testUtils.CtxMatcher).Return(nil, fmt.Errorf("connection refused"))
	repo.On("UpdateImportJobCounts", testUtils.CtxMatcher, job.ID, 1, 0, 0, 0).Return(nil)
	repo.On("FinalizeImportJob", testUtils.CtxMatcher, job.ID,
		models.JobStatusProcessing, models.JobStatusFailed).Return(nil)

	err := w.ProcessJob(context.Background(), job, models.ImportJobArgs{ID: job.ID})
	assert.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "could not preload groups")

	repo.AssertExpectations(s.T())
	fh.AssertExpectations(s.T())
}

func (s *WorkerTestSuite) TestProcessJobStartError() {
	repo := &repository.MockRepository{}
	w := &worker{r: repo, flushInterval: 10}

	job := models.ImportJob{ID: rand.Int63()}
	repo.On("StartImportJob", testUtils.CtxMatcher, job.ID).Return(fmt.Errorf("some db error"))

	err := w.ProcessJob(context.Background(), job, models.ImportJobArgs{ID: job.ID})
	assert.Error(s.T(), err)
	assert.Contains(s.T(), err.Error(), "could not update job status in database")

	repo.AssertExpectations(s.T())
}

func (s *WorkerTestSuite) TestImportRowTxRetriesUniqueViolation() {
	db, dbMock, err := sqlmock.New()
	assert.NoError(s.T(), err)
	defer db.Close()

	w := &worker{db: db, flushInterval: 10}
	run := &importRun{jobID: rand.Int63(), groups: map[string]int64{}, families: map[string]int64{}}
	row := roster.Row{Number: 2, Record: roster.RowRecord{
		FirstName:  "Dan",
		LastName:   "Jones",
		Email:      "dan.jones@example.com",
		Phone:      "+1 555 222 3333",
		FamilyName: "Jones Family",
		Role:       models.RoleMember,
	}}

	// First attempt loses the family-name race and is rolled back.
	dbMock.ExpectBegin()
	dbMock.ExpectQuery("SELECT (.+) FROM members WHERE").WillReturnError(sql.ErrNoRows)
	dbMock.ExpectQuery("INSERT INTO members").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	dbMock.ExpectQuery("SELECT (.+) FROM families WHERE").WillReturnError(sql.ErrNoRows)
	dbMock.ExpectQuery("INSERT INTO families").
		WillReturnError(&pq.Error{Code: "23505"})
	dbMock.ExpectRollback()

	// The rerun's lookup finds the winner's family.
	now := time.Now()
	dbMock.ExpectBegin()
	dbMock.ExpectQuery("SELECT (.+) FROM members WHERE").WillReturnError(sql.ErrNoRows)
	dbMock.ExpectQuery("INSERT INTO members").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))
	dbMock.ExpectQuery("SELECT (.+) FROM families WHERE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "address", "phone", "head_of_family_id", "created_at", "updated_at"}).
			AddRow(int64(21), "Jones Family", "", "", nil, now, now))
	dbMock.ExpectExec("UPDATE members SET family_id =").
		WillReturnResult(sqlmock.NewResult(0, 1))
	dbMock.ExpectCommit()

	outcome, err := w.importRowTx(context.Background(), run, row)
	assert.NoError(s.T(), err)
	assert.Equal(s.T(), "jones family", outcome.familyKey)
	assert.Equal(s.T(), int64(21), outcome.familyID)

	assert.NoError(s.T(), dbMock.ExpectationsWereMet())
}

func (s *WorkerTestSuite) TestImportRowTxPermanentError() {
	db, dbMock, err := sqlmock.New()
	assert.NoError(s.T(), err)
	defer db.Close()

	w := &worker{db: db, flushInterval: 10}
	run := &importRun{jobID: rand.Int63(), groups: map[string]int64{}, families: map[string]int64{}}
	row := roster.Row{Number: 2, Record: roster.RowRecord{
		FirstName:  "Dan",
		LastName:   "Jones",
		Email:      "dan.jones@example.com",
		Phone:      "+1 555 222 3333",
		FamilyName: "Jones Family",
		Role:       models.RoleMember,
	}}

	dbMock.ExpectBegin()
	dbMock.ExpectQuery("SELECT (.+) FROM members WHERE").
		WillReturnError(fmt.Errorf("some db error"))
	dbMock.ExpectRollback()

	outcome, err := w.importRowTx(context.Background(), run, row)
	assert.Nil(s.T(), outcome)
	assert.EqualError(s.T(), err, "some db error")

	assert.NoError(s.T(), dbMock.ExpectationsWereMet())
}
