package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"hookdeploy/internal/deployment"

	"github.com/slack-go/slack"
)

// Slack posts run summaries to an incoming webhook.
type Slack struct {
	webhookURL string
	appURL     string
	client     *http.Client
}

// NewSlack creates a Slack notifier. appURL is linked from successful runs.
func NewSlack(webhookURL, appURL string) *Slack {
	return &Slack{
		webhookURL: webhookURL,
		appURL:     appURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *Slack) Notify(ctx context.Context, run *deployment.Run) error {
	if err := slack.PostWebhookCustomHTTPContext(ctx, s.webhookURL, s.client, s.message(run)); err != nil {
		return fmt.Errorf("slack: failed to post run %s: %w", run.ID, err)
	}
	return nil
}

func (s *Slack) message(run *deployment.Run) *slack.WebhookMessage {
	color := "good"
	switch {
	case run.Status() == deployment.StatusFailed:
		color = "danger"
	case len(run.Warnings()) > 0:
		color = "warning"
	}

	fields := []slack.AttachmentField{
		{Title: "Branch", Value: run.Branch, Short: true},
		{Title: "Trigger", Value: run.Trigger, Short: true},
	}
	if run.Commit != "" {
		commit := run.Commit
		if len(commit) > 12 {
			commit = commit[:12]
		}
		fields = append(fields, slack.AttachmentField{Title: "Commit", Value: commit, Short: true})
	}
	fields = append(fields, slack.AttachmentField{Title: "Duration", Value: run.Duration().Round(time.Millisecond).String(), Short: true})

	text := StepSummary(run)
	if failure := run.Failure(); failure != nil && failure.Detail != "" {
		text += "\n```" + truncate(failure.Detail, 1500) + "```"
	} else if run.Status() == deployment.StatusSuccess && s.appURL != "" {
		text += "\n" + s.appURL
	}

	return &slack.WebhookMessage{
		Text: Headline(run),
		Attachments: []slack.Attachment{{
			Color:  color,
			Text:   text,
			Fields: fields,
			Footer: "run " + run.ID,
		}},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
