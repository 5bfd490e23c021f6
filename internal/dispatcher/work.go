package dispatcher

import (
	"time"

	"flipbook-app/internal/pipeline"
)

// Work represents a conversion to be processed by a worker
type Work struct {
	JobID string
	Owner string
	Title string
	Kind  string
	Data  []byte
}

// IsValid reports whether the work can be processed
func (w *Work) IsValid() bool {
	return w.Owner != "" && len(w.Data) > 0
}

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Job is the externally visible state of a submitted Work.
type Job struct {
	ID         string           `json:"id"`
	Owner      string           `json:"-"`
	Status     Status           `json:"status"`
	FlipbookID string           `json:"flipbook_id,omitempty"`
	PendingID  string           `json:"pending_id,omitempty"`
	Report     *pipeline.Report `json:"report,omitempty"`
	Error      string           `json:"error,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Done reports whether the job reached a final state.
func (j Job) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
