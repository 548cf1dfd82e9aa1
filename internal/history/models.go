package history

import (
	"time"

	"hookdeploy/internal/deployment"
)

// DeploymentRecord represents a single deployment run in the database
type DeploymentRecord struct {
	ID              int64                   `json:"id"`
	RunID           string                  `json:"run_id"`
	Branch          string                  `json:"branch"`
	Ref             string                  `json:"ref,omitempty"`
	Repository      string                  `json:"repository,omitempty"`
	Trigger         string                  `json:"trigger,omitempty"`
	Status          string                  `json:"status"` // success, failed
	StartedAt       time.Time               `json:"started_at"`
	CompletedAt     *time.Time              `json:"completed_at,omitempty"`     // nullable
	DurationSeconds *float64                `json:"duration_seconds,omitempty"` // nullable
	CommitHash      *string                 `json:"commit_hash,omitempty"`      // nullable
	ErrorMessage    *string                 `json:"error_message,omitempty"`    // nullable
	Steps           []deployment.StepResult `json:"steps,omitempty"`
}

// Summary counts recorded runs per status.
type Summary struct {
	Total  int            `json:"total"`
	Status map[string]int `json:"status"`
}

// FromRun converts a finished run into a record.
func FromRun(run *deployment.Run) *DeploymentRecord {
	record := &DeploymentRecord{
		RunID:      run.ID,
		Branch:     run.Branch,
		Ref:        run.Ref,
		Repository: run.Repository,
		Trigger:    run.Trigger,
		Status:     run.Status(),
		StartedAt:  run.StartedAt,
		CommitHash: stringPtrOrNil(run.Commit),
		Steps:      run.Steps,
	}

	if !run.FinishedAt.IsZero() {
		completed := run.FinishedAt
		record.CompletedAt = &completed
		duration := run.Duration().Seconds()
		record.DurationSeconds = &duration
	}

	if failure := run.Failure(); failure != nil {
		msg := failure.Name + ": " + failure.Detail
		record.ErrorMessage = &msg
	}

	return record
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
