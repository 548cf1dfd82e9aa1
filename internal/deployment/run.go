package deployment

import (
	"time"
)

// Outcome is the result of a single pipeline step.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	// OutcomeWarning marks a failed step that does not stop the pipeline.
	OutcomeWarning Outcome = "warning"
	// OutcomeFailed marks a failed step that stops the pipeline.
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Pipeline step names, in execution order.
const (
	StepStop     = "stop"
	StepSync     = "sync"
	StepCheckout = "checkout"
	StepInstall  = "install"
	StepStart    = "start"
	StepVerify   = "verify"
)

// Steps lists every pipeline step in the order it runs.
var Steps = []string{StepStop, StepSync, StepCheckout, StepInstall, StepStart, StepVerify}

// Run status values.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// StepResult records what happened in one step.
type StepResult struct {
	Name     string        `json:"name"`
	Outcome  Outcome       `json:"outcome"`
	Detail   string        `json:"detail,omitempty"`
	Duration time.Duration `json:"duration"`
}

type ReadinessOutcome string

const (
	ReadinessReady   ReadinessOutcome = "ready"
	ReadinessFailed  ReadinessOutcome = "failed"
	ReadinessTimeout ReadinessOutcome = "timeout"
)

// Readiness is the result of polling the started application.
type Readiness struct {
	Outcome  ReadinessOutcome `json:"outcome"`
	Attempts int              `json:"attempts"`
	Detail   string           `json:"detail,omitempty"`
}

// Run is the complete record of one pass through the pipeline.
type Run struct {
	ID         string       `json:"id"`
	Branch     string       `json:"branch"`
	Ref        string       `json:"ref,omitempty"`
	Repository string       `json:"repository,omitempty"`
	Commit     string       `json:"commit,omitempty"`
	Trigger    string       `json:"trigger"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Steps      []StepResult `json:"steps"`
	Readiness  *Readiness   `json:"readiness,omitempty"`
}

// Status is StatusFailed when any step failed, StatusSuccess otherwise.
func (r *Run) Status() string {
	if r.Failure() != nil {
		return StatusFailed
	}
	return StatusSuccess
}

// Failure returns the step that stopped the pipeline, or nil.
func (r *Run) Failure() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Outcome == OutcomeFailed {
			return &r.Steps[i]
		}
	}
	return nil
}

// Step returns the result for the named step, or nil if it was never recorded.
func (r *Run) Step(name string) *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Name == name {
			return &r.Steps[i]
		}
	}
	return nil
}

// Warnings returns every step that failed without stopping the pipeline.
func (r *Run) Warnings() []StepResult {
	var out []StepResult
	for _, s := range r.Steps {
		if s.Outcome == OutcomeWarning {
			out = append(out, s)
		}
	}
	return out
}

func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
