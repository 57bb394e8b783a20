package roster

import (
	"fmt"
	"io"
	"strings"

	"github.com/dimchansky/utfbom"
	"github.com/go-gota/gota/dataframe"

	cerrors "github.com/ShepherdCMS/shepherd-app/shepherd/errors"
	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
)

// Parse reads a roster CSV into a Roster. Structural problems (unreadable
// CSV, no data rows, missing required columns) come back as a
// RosterFormatError; individual bad rows do not fail the parse.
func Parse(r io.Reader) (*Roster, error) {
	df, err := toDataFrame(r)
	if err != nil {
		if strings.Contains(err.Error(), "empty DataFrame") {
			return nil, &cerrors.RosterFormatError{Err: err, Msg: "roster has no data rows"}
		}
		return nil, &cerrors.RosterFormatError{Err: err, Msg: "roster could not be read as CSV"}
	}

	if missing := missingColumns(df.Names()); len(missing) > 0 {
		return nil, &cerrors.RosterFormatError{
			Err: fmt.Errorf("missing required columns: %s", strings.Join(missing, ", ")),
			Msg: "roster is missing required columns",
		}
	}

	records := df.Records()
	return toRoster(records[0], records[1:]), nil
}

func toDataFrame(r io.Reader) (dataframe.DataFrame, error) {
	// Trim the Byte Order Marker if it's present
	// See: https://github.com/golang/go/issues/33887
	reader := utfbom.SkipOnly(r)

	df := dataframe.ReadCSV(reader, dataframe.HasHeader(true), dataframe.DetectTypes(false))
	// Any error from this read operation is written to the Err field

	return df, df.Err
}

// normalizeHeader maps a raw header cell onto its canonical lookup key.
func normalizeHeader(h string) string {
	h = strings.TrimSpace(h)
	h = strings.TrimSuffix(h, "*")
	h = strings.TrimSpace(h)
	return strings.ToLower(h)
}

func missingColumns(headers []string) []string {
	present := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		present[normalizeHeader(h)] = struct{}{}
	}

	var missing []string
	for _, required := range requiredColumns {
		if _, ok := present[required]; !ok {
			missing = append(missing, required)
		}
	}

	return missing
}

func toRoster(headers []string, rows [][]string) *Roster {
	setters := getRowSetters(headers)
	roster := &Roster{Headers: headers, Rows: make([]Row, 0, len(rows))}
	for i, cells := range rows {
		rec := &rowRecord{}
		for idx, val := range cells {
			setter := setters[idx]
			// Columns we do not recognize are ignored
			if setter != nil {
				setter(rec, val)
			}
		}
		if rec.Role == "" {
			// A roster without a Role column still defaults everyone to member
			rec.Role = models.RoleMember
		}
		roster.Rows = append(roster.Rows, Row{Number: i + 2, Record: rec.RowRecord})
	}

	return roster
}

// Returns a map that links column position with the setter that should be
// used to populate the matching RowRecord field
func getRowSetters(headers []string) map[int]func(*rowRecord, string) {
	setters := make(map[int]func(*rowRecord, string))
	for idx, header := range headers {
		switch normalizeHeader(header) {
		case colFirstName:
			setters[idx] = func(r *rowRecord, v string) { r.setFirstName(v) }
		case colLastName:
			setters[idx] = func(r *rowRecord, v string) { r.setLastName(v) }
		case colEmail:
			setters[idx] = func(r *rowRecord, v string) { r.setEmail(v) }
		case colPhone:
			setters[idx] = func(r *rowRecord, v string) { r.setPhone(v) }
		case colDateOfBirth:
			setters[idx] = func(r *rowRecord, v string) { r.setDateOfBirth(v) }
		case colGender:
			setters[idx] = func(r *rowRecord, v string) { r.setGender(v) }
		case colBloodGroup:
			setters[idx] = func(r *rowRecord, v string) { r.setBloodGroup(v) }
		case colAddress:
			setters[idx] = func(r *rowRecord, v string) { r.setAddress(v) }
		case colEmergencyContactName:
			setters[idx] = func(r *rowRecord, v string) { r.setEmergencyContactName(v) }
		case colEmergencyContactPhone:
			setters[idx] = func(r *rowRecord, v string) { r.setEmergencyContactPhone(v) }
		case colFamilyName:
			setters[idx] = func(r *rowRecord, v string) { r.setFamilyName(v) }
		case colHeadOfFamily:
			setters[idx] = func(r *rowRecord, v string) { r.setHeadOfFamily(v) }
		case colGroupMemberships:
			setters[idx] = func(r *rowRecord, v string) { r.setGroupNames(v) }
		case colRole:
			setters[idx] = func(r *rowRecord, v string) { r.setRole(v) }
		case colNotes:
			setters[idx] = func(r *rowRecord, v string) { r.setNotes(v) }
		}
	}

	return setters
}
