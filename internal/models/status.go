// -----------------------------------------------------------------------
// Job and Work Item Status - lifecycle state machines
// -----------------------------------------------------------------------

package models

// JobStatus represents the lifecycle state of a job
type JobStatus string

const (
	JobStatusAccepted           JobStatus = "accepted"
	JobStatusPreviewing         JobStatus = "previewing"
	JobStatusRunning            JobStatus = "running"
	JobStatusRunningWithErrors  JobStatus = "running_with_errors"
	JobStatusPaused             JobStatus = "paused"
	JobStatusCanceled           JobStatus = "canceled"
	JobStatusCompleteWithErrors JobStatus = "complete_with_errors"
	JobStatusSuccessful         JobStatus = "successful"
	JobStatusFailed             JobStatus = "failed"
)

// terminalJobStatuses is the set of states a job can never leave
var terminalJobStatuses = map[JobStatus]bool{
	JobStatusCanceled:           true,
	JobStatusCompleteWithErrors: true,
	JobStatusSuccessful:         true,
	JobStatusFailed:             true,
}

// IsTerminal returns true if the status is a terminal job state
func (s JobStatus) IsTerminal() bool {
	return terminalJobStatuses[s]
}

// IsActive returns true if the scheduler may hand out work for a job in this state
func (s JobStatus) IsActive() bool {
	return s == JobStatusRunning || s == JobStatusRunningWithErrors
}

// WorkItemStatus represents the lifecycle state of a work item
type WorkItemStatus string

const (
	WorkItemStatusReady      WorkItemStatus = "ready"
	WorkItemStatusRunning    WorkItemStatus = "running"
	WorkItemStatusSuccessful WorkItemStatus = "successful"
	WorkItemStatusWarning    WorkItemStatus = "warning"
	WorkItemStatusFailed     WorkItemStatus = "failed"
	WorkItemStatusCanceled   WorkItemStatus = "canceled"
)

// IsTerminal returns true if the status is a terminal work item state
func (s WorkItemStatus) IsTerminal() bool {
	switch s {
	case WorkItemStatusSuccessful, WorkItemStatusWarning, WorkItemStatusFailed, WorkItemStatusCanceled:
		return true
	}
	return false
}

// HasOutput returns true if a terminal item in this state contributes output
// catalogs to the next step. Warning items count the same as successful ones.
func (s WorkItemStatus) HasOutput() bool {
	return s == WorkItemStatusSuccessful || s == WorkItemStatusWarning
}
