// -----------------------------------------------------------------------
// Job Links and Job Errors - user-visible results and failure records
// -----------------------------------------------------------------------

package models

import "time"

// JobLink is one user-visible result attached to a job. Links are appended
// in deterministic order: step index ascending, then item ID ascending.
type JobLink struct {
	ID    uint64 `json:"id" badgerhold:"key"`
	JobID string `json:"jobID" badgerhold:"index"`

	Href  string `json:"href"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"`

	// BBox is [W,S,E,N]; Temporal is "start,end" in RFC 3339
	BBox     []float64 `json:"bbox,omitempty"`
	Temporal string    `json:"temporal,omitempty"`

	StepIndex  int    `json:"stepIndex"`
	WorkItemID uint64 `json:"workItemID"`

	CreatedAt time.Time `json:"createdAt"`
}

// JobError records one terminal work item failure for the job's error list
type JobError struct {
	ID         uint64    `json:"id" badgerhold:"key"`
	JobID      string    `json:"jobID" badgerhold:"index"`
	WorkItemID uint64    `json:"workItemID"`
	URL        string    `json:"url,omitempty"`
	Message    string    `json:"message"`
	CreatedAt  time.Time `json:"createdAt"`
}
