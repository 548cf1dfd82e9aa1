package deployment

import (
	"encoding/json"
	"testing"
	"time"

	"hookdeploy/internal/webhook"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Status(t *testing.T) {
	tests := []struct {
		name     string
		outcomes []Outcome
		want     string
	}{
		{"all success", []Outcome{OutcomeSuccess, OutcomeSuccess}, StatusSuccess},
		{"warnings only", []Outcome{OutcomeWarning, OutcomeSuccess, OutcomeWarning}, StatusSuccess},
		{"failed then skipped", []Outcome{OutcomeSuccess, OutcomeFailed, OutcomeSkipped}, StatusFailed},
		{"no steps", nil, StatusSuccess},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := &Run{}
			for i, o := range tt.outcomes {
				run.Steps = append(run.Steps, StepResult{Name: Steps[i], Outcome: o})
			}
			assert.Equal(t, tt.want, run.Status())
		})
	}
}

func TestRun_FailureAndWarnings(t *testing.T) {
	run := &Run{Steps: []StepResult{
		{Name: StepStop, Outcome: OutcomeWarning},
		{Name: StepSync, Outcome: OutcomeSuccess},
		{Name: StepCheckout, Outcome: OutcomeWarning},
		{Name: StepInstall, Outcome: OutcomeWarning},
		{Name: StepStart, Outcome: OutcomeFailed, Detail: "boom"},
		{Name: StepVerify, Outcome: OutcomeSkipped},
	}}

	require.NotNil(t, run.Failure())
	assert.Equal(t, StepStart, run.Failure().Name)
	assert.Len(t, run.Warnings(), 3)
	assert.Nil(t, run.Step("deploy"))
	assert.Equal(t, OutcomeSkipped, run.Step(StepVerify).Outcome)
}

func TestRun_Duration(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	run := &Run{StartedAt: start}
	assert.Zero(t, run.Duration())

	run.FinishedAt = start.Add(90 * time.Second)
	assert.Equal(t, 90*time.Second, run.Duration())
}

func TestRun_JSON(t *testing.T) {
	run := &Run{
		ID:        "run-1",
		Branch:    "main",
		Trigger:   TriggerWebhook,
		Steps:     []StepResult{{Name: StepStop, Outcome: OutcomeSuccess}},
		Readiness: &Readiness{Outcome: ReadinessReady, Attempts: 2},
	}

	data, err := json.Marshal(run)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "run-1", decoded["id"])
	assert.Equal(t, "ready", decoded["readiness"].(map[string]any)["outcome"])
	assert.Equal(t, "success", decoded["steps"].([]any)[0].(map[string]any)["outcome"])
}

func TestRequestFromEvent(t *testing.T) {
	ev := &webhook.Event{
		Type:       webhook.TypePush,
		Repository: "student/catty-app",
		Ref:        "refs/heads/lab2",
		Branch:     "lab2",
		CloneURL:   "https://github.com/student/catty-app.git",
		After:      "deadbeef",
	}

	req := RequestFromEvent(ev)

	assert.Equal(t, Request{
		Branch:     "lab2",
		Ref:        "refs/heads/lab2",
		CloneURL:   "https://github.com/student/catty-app.git",
		Repository: "student/catty-app",
		Commit:     "deadbeef",
		Trigger:    TriggerWebhook,
	}, req)
}
