package domain

import "time"

// RunRecord is the persisted result of a test's most recent run.
type RunRecord struct {
	TestID    string        `json:"test_id,omitzero"`
	Status    Status        `json:"status,omitzero"`
	Reason    Reason        `json:"reason,omitzero"`
	Attempts  int           `json:"attempts,omitzero"`
	Duration  time.Duration `json:"duration,omitzero"`
	Timestamp time.Time     `json:"timestamp,omitzero"`
}

// NewRunRecord converts an outcome into a record stamped with now.
func NewRunRecord(id string, o Outcome, now time.Time) RunRecord {
	return RunRecord{
		TestID:    id,
		Status:    o.Status,
		Reason:    o.Reason,
		Attempts:  o.Attempts,
		Duration:  o.Duration,
		Timestamp: now,
	}
}

// Passed reports whether the recorded run passed.
func (r RunRecord) Passed() bool {
	return r.Status == StatusPassed
}
