// -----------------------------------------------------------------------
// Work Item - one dispatchable unit of work at a given step
// -----------------------------------------------------------------------

package models

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// WorkItem is one executable unit at a given workflow step; it becomes one
// call to one worker. Created ready, dispatched running, terminated
// successful | warning | failed | canceled. Retries re-queue the item as
// ready up to the configured budget.
//
// ScrollID is meaningful only for producer-step items; Results only for
// successful/warning terminal items.
type WorkItem struct {
	// ID is a monotonic integer assigned from the store sequence
	ID                uint64 `json:"id" badgerhold:"key"`
	JobID             string `json:"jobID" badgerhold:"index"`
	WorkflowStepIndex int    `json:"workflowStepIndex"`

	// ServiceID always equals the owning step's serviceID
	ServiceID string         `json:"serviceID" badgerhold:"index"`
	Status    WorkItemStatus `json:"status" badgerhold:"index"`

	// ScrollID is the producer continuation token, carried between pages
	ScrollID string `json:"scrollID,omitempty"`

	// StacCatalogLocation is the object-store URL of this item's input catalog
	StacCatalogLocation string `json:"stacCatalogLocation,omitempty"`

	// Results holds object-store URLs of output catalogs, in worker order
	Results []string `json:"results,omitempty"`

	Retries int    `json:"retries"`
	Message string `json:"message,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewWorkItem creates a ready work item for a job step
func NewWorkItem(jobID string, stepIndex int, serviceID, stacCatalogLocation string) *WorkItem {
	now := time.Now().UTC()
	return &WorkItem{
		JobID:               jobID,
		WorkflowStepIndex:   stepIndex,
		ServiceID:           serviceID,
		Status:              WorkItemStatusReady,
		StacCatalogLocation: stacCatalogLocation,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// WorkItemUpdate is the completion payload a worker posts for an item. The
// final status must be successful, warning or failed; canceled is owned by
// the orchestrator and is never accepted from a worker.
type WorkItemUpdate struct {
	ID            uint64         `json:"id" validate:"required"`
	Status        WorkItemStatus `json:"status" validate:"required,oneof=successful warning failed"`
	Results       []string       `json:"results,omitempty" validate:"excluded_if=Status failed,dive,uri"`
	ScrollID      string         `json:"scrollID,omitempty"`
	ErrorCategory ErrorCategory  `json:"errorCategory,omitempty" validate:"omitempty,oneof=retryable fatal validation"`
	Message       string         `json:"message,omitempty"`
}

var workItemUpdateValidator = validator.New()

// Validate enforces the completion payload contract declared in the struct tags
func (u *WorkItemUpdate) Validate() error {
	if err := workItemUpdateValidator.Struct(u); err != nil {
		return fmt.Errorf("invalid work item update: %w", err)
	}
	return nil
}

// WorkAssignment is what the scheduler hands a polling worker: the item plus,
// for producer-stage items, the granule page budget for this invocation.
type WorkAssignment struct {
	WorkItem       *WorkItem `json:"workItem"`
	MaxCmrGranules int       `json:"maxCmrGranules,omitempty"`
}
