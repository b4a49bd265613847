// -----------------------------------------------------------------------
// User Work - per (job, service) queue aggregate driving fair scheduling
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// UserWork aggregates ready/running counts per (job, service). Rows exist
// only while the job has non-terminal work for that service; the scheduler
// reads them instead of scanning work items.
//
// Invariant (repaired by the reconciler when crashes cause drift):
// ReadyCount equals the number of ready work items for (JobID, ServiceID),
// and likewise RunningCount for running items.
type UserWork struct {
	// ID is the composite key jobID/serviceID
	ID        string `json:"id" badgerhold:"key"`
	Username  string `json:"username" badgerhold:"index"`
	JobID     string `json:"jobID" badgerhold:"index"`
	ServiceID string `json:"serviceID" badgerhold:"index"`
	IsAsync   bool   `json:"isAsync"`

	ReadyCount   int `json:"readyCount"`
	RunningCount int `json:"runningCount"`

	// LastWorked is the timestamp of the last dispatch for this row; the
	// fair queue starves-first on it.
	LastWorked time.Time `json:"lastWorked"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserWorkID builds the composite user-work key
func UserWorkID(jobID, serviceID string) string {
	return fmt.Sprintf("%s/%s", jobID, serviceID)
}

// NewUserWork creates a zeroed user-work row for a job and service
func NewUserWork(job *Job, serviceID string) *UserWork {
	now := time.Now().UTC()
	return &UserWork{
		ID:         UserWorkID(job.JobID, serviceID),
		Username:   job.Username,
		JobID:      job.JobID,
		ServiceID:  serviceID,
		IsAsync:    job.IsAsync,
		LastWorked: now,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}
