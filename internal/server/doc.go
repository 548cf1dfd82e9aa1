// Package server implements the HTTP side of hookdeploy.
//
// Routes:
//   - POST /         GitHub webhook listener; acknowledges receipt and queues push events
//   - GET  /         status page (HTML or JSON)
//   - GET  /health   liveness and queue depth
//   - GET  /runs     recorded deployment history
//
// Deliveries are checked against X-Hub-Signature-256 only when a webhook
// secret is configured. Deployment runs asynchronously behind a Deployer, so
// the response never reflects the deployment outcome.
package server
