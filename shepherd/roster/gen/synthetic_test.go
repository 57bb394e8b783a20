package gen

import (
	"bytes"
	"encoding/csv"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ShepherdCMS/shepherd-app/shepherd/roster"
)

func TestWriteRoster(t *testing.T) {
	rowCount := rand.Intn(1000) + 1

	var buf bytes.Buffer
	err := WriteRoster(&buf, roster.TemplateColumns(), rowCount)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(buf.Bytes())).ReadAll()
	require.NoError(t, err)
	// One more record to account for header
	assert.Equal(t, rowCount+1, len(records))

	// Every generated row must survive the importer's own parse and
	// validation pass.
	r, err := roster.Parse(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, r.Rows, rowCount)
	for _, row := range r.Rows {
		assert.NoError(t, roster.Validate(row.Record))
	}
}

func TestWriteRosterFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "roster.csv")

	err := WriteRosterFile(path, roster.TemplateColumns(), 25)
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := roster.Parse(f)
	require.NoError(t, err)
	assert.Len(t, r.Rows, 25)
}
