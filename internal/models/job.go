// -----------------------------------------------------------------------
// Job - one user request owning a workflow execution
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job represents a single user request. A job owns its workflow steps, work
// items, user-work rows and result links; deleting a job deletes all of them.
//
// Lifecycle: accepted/previewing -> running -> terminal
// (canceled | complete_with_errors | successful | failed). Once terminal no
// counter, link or child item may change.
type Job struct {
	// JobID is the primary identifier (UUID). RequestID always equals JobID.
	JobID     string `json:"jobID" badgerhold:"key"`
	RequestID string `json:"requestID"`

	Username string    `json:"username" badgerhold:"index"`
	Status   JobStatus `json:"status" badgerhold:"index"`

	// Progress is a whole percentage in [0,100]. It is recomputed from
	// terminal final-step items only; retries are counter-neutral.
	Progress int    `json:"progress"`
	Message  string `json:"message,omitempty"`

	// NumInputGranules is the planned granule count for the request.
	// GranuleLimit is the per-collection cap snapshotted at submission.
	// GranulesProduced tracks how many the producer step has emitted so far.
	NumInputGranules int `json:"numInputGranules"`
	GranuleLimit     int `json:"granuleLimit"`
	GranulesProduced int `json:"granulesProduced"`

	// FailedItemCount counts terminal FAILED items for the job
	FailedItemCount int `json:"failedItemCount"`

	IgnoreErrors bool `json:"ignoreErrors"`
	IsAsync      bool `json:"isAsync"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewJob creates a job in the accepted state
func NewJob(username string, numInputGranules int, isAsync bool) *Job {
	id := uuid.New().String()
	now := time.Now().UTC()
	return &Job{
		JobID:            id,
		RequestID:        id,
		Username:         username,
		Status:           JobStatusAccepted,
		NumInputGranules: numInputGranules,
		IsAsync:          isAsync,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// IsTerminal returns true if the job has reached a terminal state
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// GranuleBudget is the total number of granules the producer step may emit:
// min(numInputGranules, granuleLimit), where a zero limit means unlimited.
func (j *Job) GranuleBudget() int {
	if j.GranuleLimit <= 0 || j.NumInputGranules <= j.GranuleLimit {
		return j.NumInputGranules
	}
	return j.GranuleLimit
}

// RemainingGranuleBudget is the number of granules the producer may still emit
func (j *Job) RemainingGranuleBudget() int {
	remaining := j.GranuleBudget() - j.GranulesProduced
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Validate checks required fields
func (j *Job) Validate() error {
	if j.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.Username == "" {
		return fmt.Errorf("username is required")
	}
	if j.NumInputGranules < 0 {
		return fmt.Errorf("numInputGranules cannot be negative")
	}
	if j.Status.IsTerminal() && (j.Status == JobStatusFailed || j.Status == JobStatusCompleteWithErrors) && j.Message == "" {
		return fmt.Errorf("message is required for status %s", j.Status)
	}
	return nil
}
