package controllers

import (
	"net/http"

	"github.com/danwashusen/ctrl-freaq-sub008/internal/runtime"
	"github.com/danwashusen/ctrl-freaq-sub008/internal/telemetry"
)

// GeneralController handles general HTTP endpoints like health and the
// telemetry journal.
type GeneralController struct {
	rt *runtime.Runtime
}

// NewGeneralController creates a new general controller.
func NewGeneralController(rt *runtime.Runtime) *GeneralController {
	return &GeneralController{rt: rt}
}

// RegisterRoutes registers general routes with the given mux.
func (c *GeneralController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/healthz", c.handleHealth)
	mux.HandleFunc("/v1/telemetry/reviews", c.handleTelemetry)
}

// handleHealth returns the health status of the service.
//
// Returns 200 OK with {"status": "ok"} if healthy, 503 Service Unavailable
// otherwise.
func (c *GeneralController) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := c.rt.CheckHealth(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "not_serving")
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

// handleTelemetry lists recent review disposition records from the journal.
//
// Query params: limit (default from config), reverse (newest first).
func (c *GeneralController) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	journal := c.rt.Journal()
	if journal == nil {
		writeJSON(w, map[string]any{"events": []telemetry.Event{}})
		return
	}
	limit := parseLimit(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = c.rt.Config().TelemetryJournalLimit
	}
	var (
		events []telemetry.Event
		err    error
	)
	if parseBool(r.URL.Query().Get("reverse")) {
		events, err = journal.ListRecent(limit)
	} else {
		events, err = journal.List(limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read journal")
		return
	}
	if events == nil {
		events = []telemetry.Event{}
	}
	writeJSON(w, map[string]any{"events": events})
}
