package gen

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	randomdata "github.com/Pallinder/go-randomdata"
	"github.com/sirupsen/logrus"
)

var (
	minBirthDate = time.Date(1940, time.January, 1, 0, 0, 0, 0, time.UTC)
	maxBirthDate = time.Date(2010, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// Small pools so generated rows share families and reference a realistic
// spread of groups.
var (
	familyPool = []string{"Okafor", "Mbeki", "Santos", "Kim", "Novak", "Haddad", "Lindqvist", "Adeyemi"}
	groupPool  = []string{"Choir", "Ushers", "Youth Ministry", "Welcome Team", "Bible Study", "Prayer Circle"}
)

type weight float64

const (
	half    weight = 0.5
	quarter weight = 0.25
	less    weight = 0.1
)

// WriteRoster writes a synthetic roster with n data rows under the supplied
// header. Generated rows are valid by construction; optional columns are
// left blank with the usual weights so generated files resemble real ones.
func WriteRoster(w io.Writer, header []string, n int) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write roster header: %w", err)
	}

	generators := getGenerators(header)
	for i := 0; i < n; i++ {
		row := newRowState(i)
		data := make([]string, 0, len(header))
		for idx := range header {
			generator := generators[idx]
			if generator == nil {
				logrus.Debugf("No generator found for header %s. Defaulting to empty string",
					header[idx])
				data = append(data, "")
				continue
			}
			data = append(data, generator(row))
		}
		if err := cw.Write(data); err != nil {
			return fmt.Errorf("failed to write roster row: %w", err)
		}
	}

	return nil
}

// WriteRosterFile renders a synthetic roster to the named file.
func WriteRosterFile(fileName string, header []string, n int) error {
	f, err := os.Create(filepath.Clean(fileName))
	if err != nil {
		return err
	}
	defer func() {
		if err := f.Close(); err != nil {
			logrus.Warnf("Failed to close file %s", err.Error())
		}
	}()

	return WriteRoster(f, header, n)
}

// rowState keeps the handful of values that must agree within one row
// (names feed the email, the family pool feeds the family name).
type rowState struct {
	seq       int
	firstName string
	lastName  string
	family    string
}

func newRowState(seq int) *rowState {
	return &rowState{
		seq:       seq,
		firstName: randomdata.FirstName(randomdata.RandomGender),
		lastName:  randomdata.LastName(),
		family:    randomdata.StringSample(familyPool...),
	}
}

// Links normalized header names to a generator producing the cell value.
func getGenerators(header []string) map[int]func(*rowState) string {
	generators := make(map[int]func(*rowState) string)
	for idx, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(h), "*")))
		switch name {
		case "first name":
			generators[idx] = func(r *rowState) string { return r.firstName }
		case "last name":
			generators[idx] = func(r *rowState) string { return r.lastName }
		case "email":
			// The sequence number keeps generated emails unique within a file
			generators[idx] = func(r *rowState) string {
				return fmt.Sprintf("%s.%s.%d@example.com",
					emailToken(r.firstName), emailToken(r.lastName), r.seq)
			}
		case "phone":
			generators[idx] = func(r *rowState) string {
				return "555" + randomdata.StringNumberExt(1, "", 7)
			}
		case "date of birth":
			generators[idx] = func(r *rowState) string {
				return randomEmpty(half, func() string { return randomDate(minBirthDate, maxBirthDate) })
			}
		case "gender":
			generators[idx] = func(r *rowState) string {
				return randomEmpty(half, func() string { return randomdata.StringSample("Male", "Female", "Other") })
			}
		case "blood group":
			generators[idx] = func(r *rowState) string {
				return randomEmpty(quarter, func() string {
					return randomdata.StringSample("A+", "A-", "B+", "B-", "AB+", "AB-", "O+", "O-")
				})
			}
		case "address":
			generators[idx] = func(r *rowState) string {
				return randomEmpty(half, func() string {
					return fmt.Sprintf("%d %s Ave, %s", randomdata.Number(1, 999),
						randomdata.LastName(), randomdata.City())
				})
			}
		case "emergency contact name":
			generators[idx] = func(r *rowState) string {
				return randomEmpty(quarter, func() string { return randomdata.FullName(randomdata.RandomGender) })
			}
		case "emergency contact phone":
			generators[idx] = func(r *rowState) string {
				return randomEmpty(quarter, func() string { return "555" + randomdata.StringNumberExt(1, "", 7) })
			}
		case "family name":
			generators[idx] = func(r *rowState) string { return r.family }
		case "head of family":
			generators[idx] = func(r *rowState) string {
				return randomEmpty(less, func() string { return "yes" })
			}
		case "group memberships":
			generators[idx] = func(r *rowState) string {
				return randomEmpty(half, func() string {
					groups := []string{randomdata.StringSample(groupPool...)}
					if randomdata.Boolean() {
						groups = append(groups, randomdata.StringSample(groupPool...))
					}
					return strings.Join(groups, ", ")
				})
			}
		case "role":
			generators[idx] = func(r *rowState) string {
				return randomEmpty(less, func() string { return "group_leader" })
			}
		case "notes":
			generators[idx] = func(r *rowState) string {
				return randomEmpty(less, func() string {
					return randomdata.StringSample("New member", "Needs follow-up", "Transferred in", "Baptized this year")
				})
			}
		}
	}

	return generators
}

// emailToken strips anything from a generated name that could not appear in
// an email local part.
func emailToken(s string) string {
	return strings.Map(func(r rune) rune {
		if r == ' ' || r == '@' {
			return -1
		}
		return r
	}, strings.ToLower(s))
}

// randomEmpty uses the weight value to check if we should return an empty string
func randomEmpty(w weight, supplier func() string) string {
	if float64(w) >= randomdata.Decimal(1) {
		return supplier()
	}
	return ""
}

func randomDate(min, max time.Time) string {
	const layout = "2006-01-02"
	d := randomdata.FullDateInRange(min.Format(randomdata.DateInputLayout),
		max.Format(randomdata.DateInputLayout))
	t, err := time.Parse(randomdata.DateOutputLayout, d)
	// Since we're using the same output format, this should never occur
	if err != nil {
		panic("Cannot parse to roster date format " + err.Error())
	}

	return t.Format(layout)
}
