package deployment

import "hookdeploy/internal/webhook"

// Triggers recorded on a Run.
const (
	TriggerWebhook = "webhook"
	TriggerCLI     = "cli"
)

// Request describes what to deploy.
type Request struct {
	Branch     string
	Ref        string
	CloneURL   string
	Repository string
	Commit     string
	Trigger    string
}

// RequestFromEvent builds a deployment request from a push event.
func RequestFromEvent(ev *webhook.Event) Request {
	return Request{
		Branch:     ev.Branch,
		Ref:        ev.Ref,
		CloneURL:   ev.CloneURL,
		Repository: ev.Repository,
		Commit:     ev.After,
		Trigger:    TriggerWebhook,
	}
}
