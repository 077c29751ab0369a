package models

import "time"

// CycleStateID is the primary key of the singleton cycle state row.
const CycleStateID = 1

// CycleState tracks reconciliation cycle status and the last-update timestamp
type CycleState struct {
	ID           int        `gorm:"primaryKey" json:"-"`
	LastUpdate   *time.Time `json:"last_update,omitempty"`
	LastRunID    string     `gorm:"type:varchar(36)" json:"last_run_id,omitempty"`
	LastAttempt  *time.Time `json:"last_attempt,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastError    string     `gorm:"type:text" json:"last_error,omitempty"`
	FailureCount int        `gorm:"not null" json:"failure_count"`
	SuccessCount int        `gorm:"not null" json:"success_count"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name
func (CycleState) TableName() string {
	return "cycle_state"
}

// RecordSuccess records a completed cycle
func (s *CycleState) RecordSuccess(runID string, at time.Time) {
	s.SuccessCount++
	s.FailureCount = 0
	s.LastRunID = runID
	s.LastAttempt = &at
	s.LastSuccess = &at
	s.LastError = ""
}

// RecordFailure records a cycle aborted by err
func (s *CycleState) RecordFailure(runID string, at time.Time, err error) {
	s.FailureCount++
	s.LastRunID = runID
	s.LastAttempt = &at
	if err != nil {
		s.LastError = err.Error()
	}
}
