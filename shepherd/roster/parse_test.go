package roster_test

import (
	goerrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/ShepherdCMS/shepherd-app/shepherd/errors"
	"github.com/ShepherdCMS/shepherd-app/shepherd/roster"
)

func parseFile(t *testing.T, path string) (*roster.Roster, error) {
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	return roster.Parse(f)
}

func TestParse(t *testing.T) {
	r, err := parseFile(t, filepath.Join("testdata", "roster_small.csv"))
	require.NoError(t, err)
	require.Len(t, r.Rows, 3)

	first := r.Rows[0]
	assert.Equal(t, 2, first.Number, "first data row sits under the header")
	assert.Equal(t, "Amos", first.Record.FirstName)
	assert.Equal(t, "amos.okafor@example.com", first.Record.Email, "email is lower-cased")
	assert.True(t, first.Record.HeadOfFamily)
	assert.Equal(t, []string{"Choir", "Ushers"}, first.Record.GroupNames)
	assert.Equal(t, "group_leader", first.Record.Role)

	second := r.Rows[1]
	assert.Equal(t, 3, second.Number)
	assert.False(t, second.Record.HeadOfFamily)
	assert.Equal(t, "member", second.Record.Role)
	assert.Equal(t, "Joined 2019", second.Record.Notes)

	third := r.Rows[2]
	assert.Empty(t, third.Record.DateOfBirth)
	assert.Nil(t, third.Record.GroupNames)
	assert.Equal(t, "member", third.Record.Role, "blank role defaults to member")
}

func TestParseHeaderVariants(t *testing.T) {
	r, err := parseFile(t, filepath.Join("testdata", "roster_headers.csv"))
	require.NoError(t, err)
	require.Len(t, r.Rows, 2)

	grace := r.Rows[0].Record
	assert.Equal(t, "Grace", grace.FirstName, "headers bind case-insensitively without the asterisk")
	assert.Equal(t, "grace.lee@example.com", grace.Email)
	assert.True(t, grace.HeadOfFamily, "1 marks the family head")
	assert.Equal(t, "group_leader", grace.Role)
	assert.Equal(t, []string{"Youth Ministry", "Choir"}, grace.GroupNames, "blank group entries are dropped")
	assert.Empty(t, grace.Notes, "columns the template does not know are ignored")

	paul := r.Rows[1].Record
	assert.False(t, paul.HeadOfFamily)
	assert.Equal(t, "member", paul.Role, "unrecognized roles fall back to member")
	assert.Nil(t, paul.GroupNames)
}

func TestParseKeepsInvalidRows(t *testing.T) {
	// Rows missing required fields stay in the parsed set; they are
	// surfaced by Validate so the job total matches the file.
	r, err := parseFile(t, filepath.Join("testdata", "roster_mixed.csv"))
	require.NoError(t, err)
	require.Len(t, r.Rows, 5)

	failures := 0
	for _, row := range r.Rows {
		if roster.Validate(row.Record) != nil {
			failures++
		}
	}
	assert.Equal(t, 4, failures)
}

func TestParseStripsBOM(t *testing.T) {
	r, err := parseFile(t, filepath.Join("testdata", "roster_bom.csv"))
	require.NoError(t, err)
	require.Len(t, r.Rows, 1)
	assert.Equal(t, "Byte", r.Rows[0].Record.FirstName)
}

func TestParseBadInputs(t *testing.T) {
	tests := []struct {
		file string
		msg  string
	}{
		{"missing_email.csv", "roster is missing required columns"},
		{"empty.csv", "roster has no data rows"},
		{"header_only.csv", "roster has no data rows"},
		{"wrong_num_fields.csv", "roster could not be read as CSV"},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			r, err := parseFile(t, filepath.Join("testdata", "bad", tt.file))
			assert.Nil(t, r)

			var formatErr *cerrors.RosterFormatError
			require.True(t, goerrors.As(err, &formatErr))
			assert.Equal(t, tt.msg, formatErr.Msg)
		})
	}
}

func TestParseMissingColumnsNamed(t *testing.T) {
	_, err := parseFile(t, filepath.Join("testdata", "bad", "missing_email.csv"))
	var formatErr *cerrors.RosterFormatError
	require.True(t, goerrors.As(err, &formatErr))
	assert.Contains(t, formatErr.Err.Error(), "email")
}
