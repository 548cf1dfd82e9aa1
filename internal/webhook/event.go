// Package webhook turns GitHub webhook deliveries into events.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
)

// Header names sent by GitHub with every delivery.
const (
	HeaderEvent     = "X-GitHub-Event"
	HeaderDelivery  = "X-GitHub-Delivery"
	HeaderSignature = "X-Hub-Signature-256"
)

const (
	TypePush    = "push"
	TypeUnknown = "unknown"

	// UnknownRepository is used when the payload carries no repository name.
	UnknownRepository = "unknown"
)

// Event is the part of a delivery hookdeploy cares about.
type Event struct {
	Type        string    `json:"type"`
	DeliveryID  string    `json:"delivery_id,omitempty"`
	Repository  string    `json:"repository"`
	Ref         string    `json:"ref,omitempty"`
	Branch      string    `json:"branch,omitempty"`
	CloneURL    string    `json:"clone_url,omitempty"`
	After       string    `json:"after,omitempty"`
	CommitCount int       `json:"commit_count"`
	ReceivedAt  time.Time `json:"received_at"`
}

// Parse decodes a delivery body. Fields missing from the payload are left
// empty; an error is returned only when the body is not a JSON object.
func Parse(eventType, deliveryID string, body []byte, receivedAt time.Time) (*Event, error) {
	var payload github.PushEvent
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON payload: %w", err)
	}

	if eventType == "" {
		eventType = TypeUnknown
	}

	repo := payload.GetRepo().GetFullName()
	if repo == "" {
		repo = UnknownRepository
	}

	return &Event{
		Type:        eventType,
		DeliveryID:  deliveryID,
		Repository:  repo,
		Ref:         payload.GetRef(),
		Branch:      BranchFromRef(payload.GetRef()),
		CloneURL:    payload.GetRepo().GetCloneURL(),
		After:       payload.GetAfter(),
		CommitCount: len(payload.Commits),
		ReceivedAt:  receivedAt,
	}, nil
}

// IsPush reports whether the event should trigger a deployment.
func (e *Event) IsPush() bool {
	return e.Type == TypePush
}

// BranchFromRef strips a leading refs/heads/ from a git ref. Any other ref
// (tags, pull refs) is returned unchanged.
func BranchFromRef(ref string) string {
	return strings.TrimPrefix(ref, "refs/heads/")
}
