package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type ModelsTestSuite struct {
	suite.Suite
}

func TestModelsTestSuite(t *testing.T) {
	suite.Run(t, new(ModelsTestSuite))
}

func (s *ModelsTestSuite) TestJobStatusMessage() {
	j := ImportJob{Status: JobStatusProcessing, TotalRecords: 25, ProcessedRecords: 6}
	assert.Equal(s.T(), "processing (24%)", j.StatusMessage())

	j = ImportJob{Status: JobStatusProcessing, TotalRecords: 0, ProcessedRecords: 0}
	assert.Equal(s.T(), string(JobStatusProcessing), j.StatusMessage())

	j = ImportJob{Status: JobStatusCompleted, TotalRecords: 25, ProcessedRecords: 25}
	assert.Equal(s.T(), string(JobStatusCompleted), j.StatusMessage())
}

func (s *ModelsTestSuite) TestJobStatusTerminal() {
	tests := []struct {
		status   JobStatus
		terminal bool
	}{
		{JobStatusPending, false},
		{JobStatusProcessing, false},
		{JobStatusCompleted, true},
		{JobStatusFailed, true},
		{JobStatusCancelled, true},
	}
	for _, tt := range tests {
		s.T().Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}
