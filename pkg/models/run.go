package models

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the outcome of one command execution.
type RunStatus string

const (
	// RunStatusSucceeded means the command exited 0
	RunStatusSucceeded RunStatus = "succeeded"

	// RunStatusFailed means the command exited non-zero or failed to spawn
	RunStatusFailed RunStatus = "failed"
)

// Run records one execution of a job's primary command for the history store.
type Run struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"`
	Command    string    `json:"command"`
	PID        int       `json:"pid,omitempty"`
	ExitCode   int       `json:"exit_code"`
	Status     RunStatus `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Output     string    `json:"output,omitempty"`
	Followup   string    `json:"followup,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// NewRun creates a run record for a command about to start.
func NewRun(job, command string) *Run {
	return &Run{
		ID:        uuid.NewString(),
		Job:       job,
		Command:   command,
		StartedAt: time.Now(),
	}
}

// Finish stamps the outcome of the run.
func (r *Run) Finish(exitCode int, err error) {
	r.FinishedAt = time.Now()
	r.ExitCode = exitCode
	if exitCode == 0 && err == nil {
		r.Status = RunStatusSucceeded
	} else {
		r.Status = RunStatusFailed
	}
	if err != nil {
		r.Error = err.Error()
	}
}

// Succeeded reports whether the command exited 0.
func (r *Run) Succeeded() bool {
	return r.Status == RunStatusSucceeded
}
