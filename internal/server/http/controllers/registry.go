package controllers

import (
	"net/http"

	"github.com/danwashusen/ctrl-freaq-sub008/internal/runtime"
	logpkg "github.com/danwashusen/ctrl-freaq-sub008/pkg/log"
)

// ControllerRegistry manages all HTTP controllers.
//
// It provides a centralized way to register all controller routes
// and manages the lifecycle of individual controllers.
type ControllerRegistry struct {
	general *GeneralController
	events  *EventsController
	reviews *ReviewsController
}

// NewControllerRegistry creates a new controller registry.
func NewControllerRegistry(rt *runtime.Runtime, logger logpkg.Logger) *ControllerRegistry {
	return &ControllerRegistry{
		general: NewGeneralController(rt),
		events:  NewEventsController(rt, logger),
		reviews: NewReviewsController(rt, logger),
	}
}

// RegisterAllRoutes registers all controller routes with the given mux.
//
// This sets up the general endpoints (health, telemetry), the workspace
// event endpoints (publish, SSE and WebSocket subscribe), and the review
// session endpoints (start, frames, stream, cancel, retry, complete, queue).
func (r *ControllerRegistry) RegisterAllRoutes(mux *http.ServeMux) {
	r.general.RegisterRoutes(mux)
	r.events.RegisterRoutes(mux)
	r.reviews.RegisterRoutes(mux)
}
