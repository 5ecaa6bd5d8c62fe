package model

import (
	"time"

	"github.com/google/uuid"
)

// Outcome of one record inside a batch run.
type Outcome string

const (
	OutcomeParsed        Outcome = "parsed"
	OutcomeFailed        Outcome = "failed"
	OutcomeSkipped       Outcome = "skipped"
	OutcomeNotDispatched Outcome = "not_dispatched"
)

type BatchResult struct {
	EmailID   string  `json:"email_id"`
	Outcome   Outcome `json:"outcome"`
	Error     string  `json:"error,omitempty"`
	Transient bool    `json:"transient,omitempty"`
}

// BatchJob is the ephemeral summary of one scheduler run. It is never persisted.
type BatchJob struct {
	ID            string        `json:"id"`
	RequestedSize int           `json:"requested_size"`
	Selected      int           `json:"selected"`
	Results       []BatchResult `json:"results"`
	Processed     int           `json:"processed"`
	Successful    int           `json:"successful"`
	Failed        int           `json:"failed"`
	Skipped       int           `json:"skipped"`
	// Cancelled is set only when a record was left undispatched.
	Cancelled     bool          `json:"cancelled"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
}

func NewBatchJob(size int) *BatchJob {
	return &BatchJob{
		ID:            uuid.New().String(),
		RequestedSize: size,
		Results:       []BatchResult{},
		StartedAt:     time.Now().UTC(),
	}
}

// Tally recomputes the summary counters from Results.
func (j *BatchJob) Tally() {
	j.Processed, j.Successful, j.Failed, j.Skipped = 0, 0, 0, 0
	for _, r := range j.Results {
		switch r.Outcome {
		case OutcomeParsed:
			j.Processed++
			j.Successful++
		case OutcomeFailed:
			j.Processed++
			j.Failed++
		case OutcomeSkipped:
			j.Skipped++
		}
	}
}
