package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/danwashusen/ctrl-freaq-sub008/internal/review"
	"github.com/danwashusen/ctrl-freaq-sub008/internal/runtime"
	logpkg "github.com/danwashusen/ctrl-freaq-sub008/pkg/log"
)

// ReviewsController serves the review session endpoints: admission, frame
// ingestion, the session SSE stream, and queue diagnostics.
type ReviewsController struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
}

// NewReviewsController creates a new reviews controller.
func NewReviewsController(rt *runtime.Runtime, logger logpkg.Logger) *ReviewsController {
	return &ReviewsController{rt: rt, logger: logger.WithComponent("http.reviews")}
}

// RegisterRoutes registers review routes with the given mux.
func (c *ReviewsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/reviews/start", c.handleStart)
	mux.HandleFunc("/v1/reviews/frames", c.handleFrames)
	mux.HandleFunc("/v1/reviews/stream", c.handleStream)
	mux.HandleFunc("/v1/reviews/cancel", c.handleCancel)
	mux.HandleFunc("/v1/reviews/retry", c.handleRetry)
	mux.HandleFunc("/v1/reviews/complete", c.handleComplete)
	mux.HandleFunc("/v1/reviews/queue", c.handleQueue)
}

type startReq struct {
	Resource string `json:"resource"`
	// Content, when present on a fallback-mode session that starts active,
	// seeds the synthesizer: each word becomes one token frame.
	Content string `json:"content,omitempty"`
}

// handleStart admits a new review session for a resource.
//
// Returns 201 Created with the admission result. A session started in
// fallback mode with seed content begins synthesizing frames immediately.
func (c *ReviewsController) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req startReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Resource == "" {
		writeError(w, http.StatusBadRequest, "resource is required")
		return
	}
	res, err := c.rt.Reviews().StartReview(req.Resource)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Coordinator closed")
		return
	}
	c.maybeRunFallback(res, req.Content)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(res)
}

// maybeRunFallback starts the synthesizer for sessions that have no live
// producer. Pending sessions are left for their producer after promotion.
func (c *ReviewsController) maybeRunFallback(res review.StartResult, content string) {
	if res.Delivery != review.DeliveryFallback || content == "" {
		return
	}
	if res.ConcurrencySlot == 0 {
		return
	}
	sessionID := res.SessionID
	go func() {
		err := c.rt.Reviews().RunFallback(context.Background(), sessionID, review.FallbackScript{
			States: []string{"analyzing", "drafting"},
			Tokens: strings.Fields(content),
		})
		if err != nil {
			c.logger.Warn("reviews.fallback", logpkg.Str("session_id", sessionID), logpkg.Err(err))
		}
	}()
}

type frameReq struct {
	SessionID string           `json:"sessionId"`
	Sequence  uint64           `json:"sequence"`
	Kind      review.FrameKind `json:"kind"`
	Payload   json.RawMessage  `json:"payload"`
}

// handleFrames ingests one producer frame. A zero sequence allocates the next
// one; out-of-order sequences are buffered until the gap fills.
func (c *ReviewsController) handleFrames(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req frameReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Kind == "" {
		req.Kind = review.KindToken
	}
	seq := req.Sequence
	if seq == 0 {
		var err error
		seq, err = c.rt.Reviews().NextSequence(req.SessionID)
		if err != nil {
			writeReviewError(w, err)
			return
		}
	}
	released, err := c.rt.Reviews().Submit(req.SessionID, seq, req.Kind, req.Payload)
	if err != nil {
		writeReviewError(w, err)
		return
	}
	writeJSON(w, map[string]any{"sequence": seq, "released": len(released)})
}

func writeReviewError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, review.ErrUnknownSession):
		writeError(w, http.StatusNotFound, "Unknown session")
	case errors.Is(err, review.ErrSessionNotActive):
		writeError(w, http.StatusConflict, "Session not active")
	default:
		writeError(w, http.StatusInternalServerError, "Review operation failed")
	}
}

// handleStream replays a session's delivered frames and follows with live
// frames over SSE until the session reaches a terminal state. A write failure
// on a live stream degrades the session to fallback delivery rather than
// surfacing the transport error.
func (c *ReviewsController) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	sess, ok := c.rt.Reviews().Session(sessionID)
	if !ok {
		writeError(w, http.StatusNotFound, "Unknown session")
		return
	}
	sw, streamable := newSSEWriter(w, 0)
	if !streamable {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	frames, stop := sess.Watch()
	defer stop()

	w.WriteHeader(http.StatusOK)
	sw.flusher.Flush()
	for {
		select {
		case <-r.Context().Done():
			return
		case f, open := <-frames:
			if !open {
				_ = sw.write(sseEvent{event: "end", data: []byte(`{}`)})
				sw.flusher.Flush()
				return
			}
			data, _ := json.Marshal(f)
			ev := sseEvent{
				id:    strconv.FormatUint(f.Sequence, 10),
				event: string(f.Kind),
				data:  data,
			}
			if err := sw.write(ev); err != nil {
				if f.Delivery == review.DeliveryLive {
					if _, derr := c.rt.Reviews().DegradeToFallback(sessionID); derr == nil {
						c.logger.Warn("reviews.stream.degraded",
							logpkg.Str("session_id", sessionID), logpkg.Err(err))
					}
				}
				return
			}
			sw.flusher.Flush()
		}
	}
}

type sessionReq struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason,omitempty"`
}

// handleCancel removes the session from the queue; an active session's
// pending successor is promoted. Unknown ids report released=false.
func (c *ReviewsController) handleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req sessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res := c.rt.Reviews().CancelReview(req.SessionID, req.Reason)
	writeJSON(w, res)
}

// handleRetry starts a fresh session on the previous session's resource.
func (c *ReviewsController) handleRetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req sessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := c.rt.Reviews().RetryReview(req.SessionID)
	if err != nil {
		writeReviewError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(res)
}

// handleComplete releases the active session and reports any promotion.
// Completing an unknown or already-finished session is a no-op.
func (c *ReviewsController) handleComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req sessionReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res := c.rt.Reviews().CompleteReview(req.SessionID)
	if res == nil {
		writeJSON(w, map[string]any{"completed": false})
		return
	}
	writeJSON(w, map[string]any{
		"completed":         true,
		"releasedSessionId": res.ReleasedSessionID,
		"activated":         res.Activated,
	})
}

// handleQueue returns the admission snapshot for diagnostics.
func (c *ReviewsController) handleQueue(w http.ResponseWriter, r *http.Request) {
	active, pending := c.rt.Reviews().QueueSnapshot()
	writeJSON(w, map[string]any{"active": active, "pending": pending})
}
