package errors

import "fmt"

// RosterFormatError flags a file that cannot be imported at all: unreadable
// CSV, missing required header columns, or no data rows.
type RosterFormatError struct {
	Err error
	Msg string
}

func (e *RosterFormatError) Error() string {
	return fmt.Sprintf("Roster Format Error. Msg: %s, Err: %s", e.Msg, e.Err)
}

type RosterSizeError struct {
	Rows  int
	Limit int
}

func (e *RosterSizeError) Error() string {
	return fmt.Sprintf("roster has %d data rows; the per-import limit is %d", e.Rows, e.Limit)
}

type EntityNotFoundError struct {
	Err   error
	JobID int64
}

func (e *EntityNotFoundError) Error() string {
	return fmt.Sprintf("no import job found for id %d: %s", e.JobID, e.Err)
}
