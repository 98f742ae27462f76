package ingestion

import (
	"time"

	"github.com/google/uuid"
)

// Kind of work a job performs
type Kind string

const (
	KindUpload  Kind = "upload"
	KindRetrain Kind = "retrain"
)

// Status of a job
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Job is a snapshot of one ingestion or retrain run
type Job struct {
	ID       uuid.UUID `json:"id"`
	Kind     Kind      `json:"kind"`
	Status   Status    `json:"status"`
	Filename string    `json:"filename,omitempty"`
	Bytes    int64     `json:"bytes,omitempty"`

	Rows         int     `json:"rows"`
	ModelVersion string  `json:"model_version,omitempty"`
	Samples      int     `json:"samples,omitempty"`
	OOBRMSE      float64 `json:"oob_rmse,omitempty"`
	Error        string  `json:"error,omitempty"`

	SubmittedAt time.Time `json:"submitted_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	FinishedAt  time.Time `json:"finished_at,omitempty"`
}

// Done reports whether the job reached a terminal status
func (j Job) Done() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

func newJob(kind Kind, filename string, size int64) *Job {
	return &Job{
		ID:          uuid.New(),
		Kind:        kind,
		Status:      StatusQueued,
		Filename:    filename,
		Bytes:       size,
		SubmittedAt: time.Now().UTC(),
	}
}
