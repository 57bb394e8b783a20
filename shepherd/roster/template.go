package roster

import (
	"bytes"
	"encoding/csv"
)

// templateHeader is the exact header row of the generated template, in
// order. Required columns carry the trailing asterisk.
var templateHeader = []string{
	"First Name*", "Last Name*", "Email*", "Phone*", "Date of Birth", "Gender",
	"Blood Group", "Address", "Emergency Contact Name", "Emergency Contact Phone",
	"Family Name*", "Head of Family", "Group Memberships", "Role", "Notes",
}

var templateExample = []string{
	"John", "Doe", "john.doe@example.com", "+1 (555) 123-4567", "1985-06-15", "Male",
	"O+", "123 Main St, Springfield", "Jane Doe", "+1 (555) 987-6543",
	"Doe", "yes", "Choir, Welcome Team", "member", "Baptized 2010",
}

// TemplateColumns returns the template header row, in order.
func TemplateColumns() []string {
	cols := make([]string, len(templateHeader))
	copy(cols, templateHeader)
	return cols
}

// Template renders the roster template CSV: the canonical header row plus
// one illustrative example row.
func Template() []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	// Writes to a bytes.Buffer cannot fail
	_ = w.Write(templateHeader)
	_ = w.Write(templateExample)
	w.Flush()
	return buf.Bytes()
}

// FieldLegend describes the expected format of every template column.
func FieldLegend() string {
	return `Columns marked with * are required.
First Name*, Last Name*: member name.
Email*: member email; matched case-insensitively against existing members and lower-cased on import.
Phone*: at least 10 digits; digits, spaces, hyphens, parentheses and an optional leading + are accepted.
Date of Birth: YYYY-MM-DD, MM/DD/YYYY or DD-MM-YYYY.
Gender: Male, Female or Other.
Blood Group: one of A+, A-, B+, B-, AB+, AB-, O+, O-.
Address: free text; also seeds the family address when the row creates a new family.
Emergency Contact Name, Emergency Contact Phone: free text.
Family Name*: family grouping key, matched case-insensitively.
Head of Family: yes, y, true or 1 marks this member as the family head; the last marked row in the file wins.
Group Memberships: comma-separated names of existing groups; names with no matching group are recorded as warnings.
Role: group_leader or member (default member).
Notes: free text.
`
}
