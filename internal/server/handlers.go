package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"hookdeploy/internal/config"
	"hookdeploy/internal/deployment"
	"hookdeploy/internal/webhook"
	"hookdeploy/pkg/templates"

	"github.com/go-chi/chi/v5"
)

const (
	RecentDeploymentsLimit = 10  // default number of runs returned by /runs
	MaxDeploymentsLimit    = 100 // upper bound for ?limit=

	StatusRunning = "running"
	statusMessage = "Server is active and waiting for webhook events"
)

// Status is the snapshot served at GET /.
type Status struct {
	Status      string `json:"status"`
	Time        string `json:"time"`
	WebhookPort int    `json:"webhook_port"`
	AppPort     int    `json:"app_port"`
	AppURL      string `json:"app_url"`
}

// HandleWebhook handles GitHub webhook requests
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	maxBytes := s.Config.Webhook.MaxPayloadBytes

	// ContentLength is -1 when unknown; the reader below enforces the limit then.
	if r.ContentLength > maxBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
			return
		}
		s.Logger.Error("Failed to read request body", "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Failed to read payload"})
		return
	}

	if secret := s.Config.Webhook.Secret; secret != "" {
		if !VerifySignature(body, r.Header.Get(webhook.HeaderSignature), secret) {
			s.Logger.Warn("Rejected webhook with invalid signature", "delivery_id", r.Header.Get(webhook.HeaderDelivery))
			s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid signature"})
			return
		}
	}

	ev, err := webhook.Parse(r.Header.Get(webhook.HeaderEvent), r.Header.Get(webhook.HeaderDelivery), body, s.Now())
	if err != nil {
		s.Logger.Warn("Failed to parse JSON payload", "error", err)
		s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid JSON payload"})
		return
	}

	s.Logger.Info("webhook_received",
		"timestamp", ev.ReceivedAt.Format(time.DateTime),
		"event", ev.Type,
		"repository", ev.Repository,
		"delivery_id", ev.DeliveryID,
		"branch", ev.Branch)

	s.routeEvent(ev)

	// The acknowledgment confirms receipt only; the outcome is in the logs and /runs.
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// routeEvent hands push events to the deployer. Failures are logged and never
// reach the webhook sender.
func (s *Server) routeEvent(ev *webhook.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			s.Logger.Error("panic while routing webhook event",
				"panic", rec,
				"event", ev.Type,
				"stack", string(debug.Stack()))
		}
	}()

	if !ev.IsPush() {
		s.Logger.Info("Ignoring non-push event", "event", ev.Type, "repository", ev.Repository)
		return
	}

	if err := s.Deployer.Submit(deployment.RequestFromEvent(ev)); err != nil {
		s.Logger.Error("Failed to queue deployment",
			"error", err,
			"branch", ev.Branch,
			"commit", ev.After)
		return
	}

	s.Logger.Info("deployment queued",
		"branch", ev.Branch,
		"commit", ev.After,
		"pending", s.Deployer.Len())
}

// HandleStatus serves the status snapshot. It never depends on deployment state.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.status()

	if s.Config.Status.Format == config.FormatJSON {
		s.respondJSON(w, http.StatusOK, status)
		return
	}

	page, err := templates.RenderStatusPage(templates.StatusPageData{
		Status:      statusMessage,
		Time:        status.Time,
		WebhookPort: status.WebhookPort,
		AppPort:     status.AppPort,
		AppURL:      status.AppURL,
	})
	if err != nil {
		s.Logger.Error("Failed to render status page, falling back to JSON", "error", err)
		s.respondJSON(w, http.StatusOK, status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (s *Server) status() Status {
	return Status{
		Status:      StatusRunning,
		Time:        s.Now().Format(time.DateTime),
		WebhookPort: s.Config.Port(),
		AppPort:     s.Config.App.Port,
		AppURL:      s.Config.AppURL(),
	}
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"variant": s.Config.App.Variant,
		"queued":  s.Deployer.Len(),
	})
}

// HandleRuns returns the latest and recent deployments.
func (s *Server) HandleRuns(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not enabled"})
		return
	}

	limit := RecentDeploymentsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.respondJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid limit"})
			return
		}
		limit = min(n, MaxDeploymentsLimit)
	}

	latest, err := s.History.GetLatestDeployment(r.Context())
	if err != nil {
		s.Logger.Error("Failed to get latest deployment", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment status"})
		return
	}

	recent, err := s.History.GetDeploymentHistory(r.Context(), limit)
	if err != nil {
		s.Logger.Error("Failed to get deployment history", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment status"})
		return
	}

	summary, err := s.History.GetSummary(r.Context())
	if err != nil {
		s.Logger.Error("Failed to get deployment summary", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment status"})
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"latest_deployment":  latest,
		"recent_deployments": recent,
		"summary":            summary,
	})
}

// HandleRun returns one deployment by run ID.
func (s *Server) HandleRun(w http.ResponseWriter, r *http.Request) {
	if s.History == nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "History not enabled"})
		return
	}

	runID := chi.URLParam(r, "runID")
	record, err := s.History.GetDeployment(r.Context(), runID)
	if err != nil {
		s.Logger.Error("Failed to get deployment", "error", err, "run_id", runID)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to fetch deployment"})
		return
	}
	if record == nil {
		s.respondJSON(w, http.StatusNotFound, map[string]string{"error": "Unknown run"})
		return
	}

	s.respondJSON(w, http.StatusOK, record)
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}
