// -----------------------------------------------------------------------
// Workflow Step - one stage in a job's ordered pipeline
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"
)

// WorkflowStep is one stage in a job's pipeline, bound to a logical backend
// service. Step indices are dense and start at 1. Step 1 is normally the
// catalog producer that paginates over the external granule source.
type WorkflowStep struct {
	// ID is the composite key jobID/stepIndex (zero padded for sort order)
	ID        string `json:"id" badgerhold:"key"`
	JobID     string `json:"jobID" badgerhold:"index"`
	StepIndex int    `json:"stepIndex"`

	// ServiceID is the logical service name plus tag, e.g.
	// "harmonyservices/query-cmr:latest"
	ServiceID string `json:"serviceID" badgerhold:"index"`

	// WorkItemCount is the planned fan-out; it grows as upstream catalogs
	// materialize items for this step.
	WorkItemCount int `json:"workItemCount"`

	// HasAggregatedOutput means this step consumes every output of the prior
	// step as a single (possibly paged) input catalog.
	HasAggregatedOutput bool `json:"hasAggregatedOutput"`

	// IsProducer marks the paging catalog-producer stage. Producer items
	// receive a granule budget on dispatch and may return a scroll ID.
	IsProducer bool `json:"isProducer"`

	// IsComplete is set once no further items will be created for this step
	// and every existing item is terminal.
	IsComplete bool `json:"isComplete"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StepID builds the composite workflow step key
func StepID(jobID string, stepIndex int) string {
	return fmt.Sprintf("%s/%04d", jobID, stepIndex)
}

// NewWorkflowStep creates a workflow step for a job
func NewWorkflowStep(jobID string, stepIndex int, serviceID string, hasAggregatedOutput bool) *WorkflowStep {
	now := time.Now().UTC()
	return &WorkflowStep{
		ID:                  StepID(jobID, stepIndex),
		JobID:               jobID,
		StepIndex:           stepIndex,
		ServiceID:           serviceID,
		HasAggregatedOutput: hasAggregatedOutput,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
