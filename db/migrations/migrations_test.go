package migrations

import (
	"database/sql"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/huandu/go-sqlbuilder"

	"github.com/ShepherdCMS/shepherd-app/shepherd/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	_ "github.com/jackc/pgx/stdlib"
)

const sqlFlavor = sqlbuilder.PostgreSQL

// These tests rely on the migrate tool being installed
// See: https://github.com/golang-migrate/migrate/tree/v4.13.0/cmd/migrate
type MigrationTestSuite struct {
	suite.Suite

	db *sql.DB

	shepherdDB    string
	shepherdDBURL string

	shepherdQueueDB    string
	shepherdQueueDBURL string
}

func (s *MigrationTestSuite) SetupSuite() {
	// We expect that the DB URL follows
	// postgres://<USER_NAME>:<PASSWORD>@<HOST>:<PORT>/<DB_NAME>
	re := regexp.MustCompile(`(postgresql\:\/\/\S+\:\S+\@\S+\:\d+\/)(.*)(\?.*)`)

	s.db = database.GetDbConnection()

	databaseURL := os.Getenv("DATABASE_URL")
	s.shepherdDB = fmt.Sprintf("migrate_test_shepherd_%d", time.Now().Nanosecond())
	s.shepherdQueueDB = fmt.Sprintf("migrate_test_shepherd_queue_%d", time.Now().Nanosecond())
	s.shepherdDBURL = re.ReplaceAllString(databaseURL, fmt.Sprintf("${1}%s${3}", s.shepherdDB))
	s.shepherdQueueDBURL = re.ReplaceAllString(databaseURL, fmt.Sprintf("${1}%s${3}", s.shepherdQueueDB))

	if _, err := s.db.Exec("CREATE DATABASE " + s.shepherdDB); err != nil {
		assert.FailNowf(s.T(), "Could not create shepherd db", err.Error())
	}

	if _, err := s.db.Exec("CREATE DATABASE " + s.shepherdQueueDB); err != nil {
		assert.FailNowf(s.T(), "Could not create shepherd_queue db", err.Error())
	}
}

func (s *MigrationTestSuite) TearDownSuite() {
	if _, err := s.db.Exec("DROP DATABASE " + s.shepherdDB); err != nil {
		assert.FailNowf(s.T(), "Could not drop shepherd db", err.Error())
	}

	if _, err := s.db.Exec("DROP DATABASE " + s.shepherdQueueDB); err != nil {
		assert.FailNowf(s.T(), "Could not drop shepherd_queue db", err.Error())
	}
}

func TestMigrationTestSuite(t *testing.T) {
	suite.Run(t, new(MigrationTestSuite))
}

var schemaTables = []string{"families", "members", "groups", "group_memberships",
	"import_jobs", "import_errors"}

var createdAtTables = []interface{}{"families", "members", "groups", "group_memberships",
	"import_jobs", "import_errors"}

func (s *MigrationTestSuite) TestShepherdMigration() {
	migrator := migrator{
		migrationPath: "./shepherd/",
		dbURL:         s.shepherdDBURL,
	}
	db, err := sql.Open("pgx", s.shepherdDBURL)
	if err != nil {
		assert.FailNowf(s.T(), "Failed to open postgres connection", err.Error())
	}
	defer db.Close()

	// Tests should begin with "up" migrations, in order, followed by "down" migrations in reverse order
	tests := []struct {
		name  string
		tFunc func(t *testing.T)
	}{
		{
			"Apply initial schema",
			func(t *testing.T) {
				migrator.runMigration(t, "1")
				for _, table := range schemaTables {
					assertTableExists(t, true, db, table)
				}
				assertColumnDefaultValue(t, db, "created_at", "now()", createdAtTables)
			},
		},
		{
			"Add severity column to import_errors",
			func(t *testing.T) {
				// Need to manually build the insert queries since the column does not exist yet.
				var jobID int64
				ib := sqlFlavor.NewInsertBuilder().InsertInto("import_jobs").
					Cols("file_name", "status").Values("roster.csv", "failed")
				query, args := ib.Build()
				assert.NoError(t, db.QueryRow(query+" RETURNING id", args...).Scan(&jobID))

				ib = sqlFlavor.NewInsertBuilder().InsertInto("import_errors").
					Cols("job_id", "row_number", "message").Values(jobID, 2, "email is required")
				query, args = ib.Build()
				_, err := db.Exec(query, args...)
				assert.NoError(t, err)

				migrator.runMigration(t, "2")

				// Entries written before the column existed read back as plain errors.
				var severity string
				sb := sqlFlavor.NewSelectBuilder()
				sb.Select("severity").From("import_errors")
				sb.Where(sb.Equal("job_id", jobID))
				query, args = sb.Build()
				assert.NoError(t, db.QueryRow(query, args...).Scan(&severity))
				assert.Equal(t, "error", severity)
			},
		},
		{
			"Add unique indexes on lowercased family and group names",
			func(t *testing.T) {
				// Names differing only in case can coexist until the index lands.
				insertFamily(t, db, "walker")
				insertFamily(t, db, "Walker")
				deleteFamily(t, db, "Walker")

				migrator.runMigration(t, "3")
				assertIndexExists(t, true, db, "idx_families_name_lower")
				assertIndexExists(t, true, db, "idx_groups_name_lower")

				ib := sqlFlavor.NewInsertBuilder().InsertInto("families").
					Cols("name").Values("WALKER")
				query, args := ib.Build()
				_, err := db.Exec(query, args...)
				assert.Error(t, err)
			},
		},
		{
			"Remove unique indexes on lowercased family and group names",
			func(t *testing.T) {
				migrator.runMigration(t, "2")
				assertIndexExists(t, false, db, "idx_families_name_lower")
				assertIndexExists(t, false, db, "idx_groups_name_lower")
			},
		},
		{
			"Remove severity column from import_errors",
			func(t *testing.T) {
				assertColumnExists(t, true, db, "import_errors", "severity")
				migrator.runMigration(t, "1")
				assertColumnExists(t, false, db, "import_errors", "severity")
			},
		},
		{
			"Revert initial schema",
			func(t *testing.T) {
				migrator.runMigration(t, "0")
				for _, table := range schemaTables {
					assertTableExists(t, false, db, table)
				}
			},
		},
	}

	for _, tt := range tests {
		s.T().Run(tt.name, tt.tFunc)
	}
}

func (s *MigrationTestSuite) TestShepherdQueueMigration() {
	migrator := migrator{
		migrationPath: "./shepherd_queue/",
		dbURL:         s.shepherdQueueDBURL,
	}
	db, err := sql.Open("pgx", s.shepherdQueueDBURL)
	if err != nil {
		assert.FailNowf(s.T(), "Failed to open postgres connection", err.Error())
	}
	defer db.Close()

	// Tests should begin with "up" migrations, in order, followed by "down" migrations in reverse order
	tests := []struct {
		name  string
		tFunc func(t *testing.T)
	}{
		{
			"Apply initial schema",
			func(t *testing.T) {
				migrator.runMigration(t, "1")
				assertTableExists(t, true, db, "que_jobs")
			},
		},
		{
			"Revert initial schema",
			func(t *testing.T) {
				migrator.runMigration(t, "0")
				assertTableExists(t, false, db, "que_jobs")
			},
		},
	}

	for _, tt := range tests {
		s.T().Run(tt.name, tt.tFunc)
	}
}

type migrator struct {
	migrationPath string
	dbURL         string
}

func (m migrator) runMigration(t *testing.T, idx string) {
	args := []string{"goto", idx}
	expVersion := idx
	// Since we do not have a 0 index, this is interpreted
	// as revert the last migration (1)
	if idx == "0" {
		args = []string{"down", "1"}
	}

	args = append([]string{"-database", m.dbURL, "-path",
		m.migrationPath}, args...)

	_, err := exec.Command("migrate", args...).CombinedOutput()
	if err != nil {
		t.Errorf("Failed to run migration %s", err.Error())
	}

	// If we're going down past the first schema, we won't be able
	// to check the version since there's no active schema version
	if idx == "0" {
		return
	}

	// Expected output:
	// <VERSION>
	// If there's a failure (i.e. dirty migration)
	// <VERSION> (dirty)
	out, err := exec.Command("migrate", "-database", m.dbURL, "-path",
		m.migrationPath, "version").CombinedOutput()
	if err != nil {
		t.Errorf("Failed to retrieve version information %s", err.Error())
	}
	str := strings.TrimSpace(string(out))

	assert.Equal(t, expVersion, str)
}

func insertFamily(t *testing.T, db *sql.DB, name string) {
	ib := sqlFlavor.NewInsertBuilder().InsertInto("families")
	ib.Cols("name").Values(name)
	query, args := ib.Build()
	_, err := db.Exec(query, args...)
	assert.NoError(t, err)
}

func deleteFamily(t *testing.T, db *sql.DB, name string) {
	delb := sqlFlavor.NewDeleteBuilder()
	delb.DeleteFrom("families").Where(delb.Equal("name", name))
	query, args := delb.Build()
	_, err := db.Exec(query, args...)
	assert.NoError(t, err)
}

func assertColumnExists(t *testing.T, shouldExist bool, db *sql.DB, tableName, columnName string) {
	sb := sqlFlavor.NewSelectBuilder().Select("COUNT(1)").From("information_schema.columns")
	sb.Where(sb.Equal("table_name", tableName), sb.Equal("column_name", columnName))
	query, args := sb.Build()
	var count int
	assert.NoError(t, db.QueryRow(query, args...).Scan(&count))

	var expected int
	if shouldExist {
		expected = 1
	}
	assert.Equal(t, expected, count)
}

func assertTableExists(t *testing.T, shouldExist bool, db *sql.DB, tableName string) {
	sb := sqlFlavor.NewSelectBuilder().Select("COUNT(1)").From("information_schema.tables")
	sb.Where(sb.Equal("table_name", tableName))
	query, args := sb.Build()
	var count int
	assert.NoError(t, db.QueryRow(query, args...).Scan(&count))

	var expected int
	if shouldExist {
		expected = 1
	}
	assert.Equal(t, expected, count)
}

func assertIndexExists(t *testing.T, shouldExist bool, db *sql.DB, indexName string) {
	sb := sqlFlavor.NewSelectBuilder().Select("COUNT(1)").From("pg_indexes")
	sb.Where(sb.Equal("indexname", indexName))
	query, args := sb.Build()
	var count int
	assert.NoError(t, db.QueryRow(query, args...).Scan(&count))

	var expected int
	if shouldExist {
		expected = 1
	}
	assert.Equal(t, expected, count)
}

func assertColumnDefaultValue(t *testing.T, db *sql.DB, columnName, expectedDefault string, tables []interface{}) {
	sb := sqlFlavor.NewSelectBuilder()
	sb.Select("table_name", "column_default").
		From("information_schema.columns").
		Where(
			sb.NotIn("table_schema", "information_schema", "pg_catalog"), // Ignore postgres internal schemas
			sb.Equal("column_name", columnName),                          // Filter desired column
			sb.In("table_name", tables...),                               // Only check specific tables
		)

	query, args := sb.Build()
	rows, err := db.Query(query, args...)
	assert.NoError(t, err)
	defer rows.Close()

	for rows.Next() {
		var tableName string
		var actualDefault sql.NullString
		assert.NoError(t, rows.Scan(&tableName, &actualDefault))
		assert.Equal(t, expectedDefault, actualDefault.String, "%s default value is %s; actual value should be %s", tableName, actualDefault.String, expectedDefault)
	}
}
