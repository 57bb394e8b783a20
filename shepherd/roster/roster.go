package roster

/******************************************************************************
This package is responsible for data wrangling of membership roster files.
Contents:
1. roster.go  - records, canonical columns, normalizing setters
2. parse.go   - CSV file -> Roster
3. validate.go - per-row validation
4. template.go - template rendering and the field legend
******************************************************************************/

import (
	"strings"

	"github.com/ShepherdCMS/shepherd-app/shepherd/models"
)

// Canonical lookup keys for roster columns. Header cells are matched after
// case folding and removal of the required-column asterisk, so `email`,
// `Email` and `Email*` all bind the same column.
const (
	colFirstName             = "first name"
	colLastName              = "last name"
	colEmail                 = "email"
	colPhone                 = "phone"
	colDateOfBirth           = "date of birth"
	colGender                = "gender"
	colBloodGroup            = "blood group"
	colAddress               = "address"
	colEmergencyContactName  = "emergency contact name"
	colEmergencyContactPhone = "emergency contact phone"
	colFamilyName            = "family name"
	colHeadOfFamily          = "head of family"
	colGroupMemberships      = "group memberships"
	colRole                  = "role"
	colNotes                 = "notes"
)

// Columns that must be present in a roster file
var requiredColumns = []string{colFirstName, colLastName, colEmail, colPhone, colFamilyName}

const (
	// MaxRows caps the number of data rows accepted per import.
	MaxRows = 5000
	// MaxUploadBytes caps the size of an uploaded roster file.
	MaxUploadBytes = 10 << 20
)

// RowRecord is one parsed, normalized roster row. Records are immutable once
// parsed; every later pipeline stage only reads them.
type RowRecord struct {
	FirstName             string   `json:"first_name"`
	LastName              string   `json:"last_name"`
	Email                 string   `json:"email"`
	Phone                 string   `json:"phone"`
	DateOfBirth           string   `json:"date_of_birth,omitempty"`
	Gender                string   `json:"gender,omitempty"`
	BloodGroup            string   `json:"blood_group,omitempty"`
	Address               string   `json:"address,omitempty"`
	EmergencyContactName  string   `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone string   `json:"emergency_contact_phone,omitempty"`
	FamilyName            string   `json:"family_name"`
	HeadOfFamily          bool     `json:"head_of_family,omitempty"`
	GroupNames            []string `json:"group_names,omitempty"`
	Role                  string   `json:"role,omitempty"`
	Notes                 string   `json:"notes,omitempty"`
}

// Row pairs a record with its position in the file. Number counts the header
// as row 1, so the first data row is 2.
type Row struct {
	Number int
	Record RowRecord
}

// Roster is a fully parsed roster file. Rows appear in file order and none
// are dropped at parse time; rows with missing required fields surface as
// validation failures instead, so a job's total always matches the file's
// data-row count.
type Roster struct {
	Headers []string
	Rows    []Row
}

// Wrap RowRecord to allow us to create setters that incrementally build a
// record from a CSV row.
type rowRecord struct {
	RowRecord
}

func (r *rowRecord) setFirstName(v string) { r.FirstName = strings.TrimSpace(v) }
func (r *rowRecord) setLastName(v string)  { r.LastName = strings.TrimSpace(v) }

func (r *rowRecord) setEmail(v string) {
	r.Email = strings.ToLower(strings.TrimSpace(v))
}

func (r *rowRecord) setPhone(v string)       { r.Phone = strings.TrimSpace(v) }
func (r *rowRecord) setDateOfBirth(v string) { r.DateOfBirth = strings.TrimSpace(v) }
func (r *rowRecord) setGender(v string)      { r.Gender = strings.TrimSpace(v) }
func (r *rowRecord) setBloodGroup(v string)  { r.BloodGroup = strings.TrimSpace(v) }
func (r *rowRecord) setAddress(v string)     { r.Address = strings.TrimSpace(v) }

func (r *rowRecord) setEmergencyContactName(v string) {
	r.EmergencyContactName = strings.TrimSpace(v)
}

func (r *rowRecord) setEmergencyContactPhone(v string) {
	r.EmergencyContactPhone = strings.TrimSpace(v)
}

func (r *rowRecord) setFamilyName(v string) { r.FamilyName = strings.TrimSpace(v) }

// setHeadOfFamily coerces the cell to true only for yes/y/true/1, any case.
func (r *rowRecord) setHeadOfFamily(v string) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y", "true", "1":
		r.HeadOfFamily = true
	default:
		r.HeadOfFamily = false
	}
}

// setGroupNames splits the cell on commas, trimming entries and dropping
// empty ones. Lower-casing for the group lookup happens at resolution time.
func (r *rowRecord) setGroupNames(v string) {
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			r.GroupNames = append(r.GroupNames, p)
		}
	}
}

// setRole maps the cell to group_leader only on an exact case-insensitive
// match; anything else is member.
func (r *rowRecord) setRole(v string) {
	if strings.EqualFold(strings.TrimSpace(v), models.RoleGroupLeader) {
		r.Role = models.RoleGroupLeader
		return
	}
	r.Role = models.RoleMember
}

func (r *rowRecord) setNotes(v string) { r.Notes = strings.TrimSpace(v) }
