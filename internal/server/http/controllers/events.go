package controllers

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danwashusen/ctrl-freaq-sub008/internal/broker"
	"github.com/danwashusen/ctrl-freaq-sub008/internal/runtime"
	"github.com/danwashusen/ctrl-freaq-sub008/pkg/id"
	logpkg "github.com/danwashusen/ctrl-freaq-sub008/pkg/log"
)

// maxFilterLen bounds CEL filter expressions from the query string.
const maxFilterLen = 2048

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The gateway already answers CORS for the whole API.
	CheckOrigin: func(*http.Request) bool { return true },
}

// EventsController serves the workspace event endpoints: publish plus the
// SSE and WebSocket subscription feeds.
type EventsController struct {
	rt     *runtime.Runtime
	logger logpkg.Logger
	ids    *id.Generator
}

// NewEventsController creates a new events controller.
func NewEventsController(rt *runtime.Runtime, logger logpkg.Logger) *EventsController {
	return &EventsController{
		rt:     rt,
		logger: logger.WithComponent("http.events"),
		ids:    id.NewGenerator(),
	}
}

// RegisterRoutes registers event routes with the given mux.
func (c *EventsController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/events/publish", c.handlePublish)
	mux.HandleFunc("/v1/events/subscribe", c.handleSubscribeSSE)
	mux.HandleFunc("/v1/events/ws", c.handleSubscribeWS)
}

type publishReq struct {
	Workspace string          `json:"workspace"`
	Topic     string          `json:"topic"`
	Resource  string          `json:"resource"`
	Payload   json.RawMessage `json:"payload"`
}

// handlePublish appends one event and fans it out to live subscribers.
//
// Returns 202 Accepted with the assigned sequence and event id.
func (c *EventsController) handlePublish(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	var req publishReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Topic == "" || req.Resource == "" {
		writeError(w, http.StatusBadRequest, "topic and resource are required")
		return
	}
	if req.Workspace == "" {
		req.Workspace = c.rt.Config().DefaultWorkspaceName
	}
	env, err := c.rt.Broker().Publish(broker.PublishParams{
		WorkspaceID: req.Workspace,
		Topic:       req.Topic,
		ResourceID:  req.Resource,
		Payload:     req.Payload,
	})
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Broker closed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"topic":    env.Topic,
		"resource": env.ResourceID,
		"sequence": env.Sequence,
		"eventId":  env.EventID(),
	})
}

// subscribeParamsFromRequest builds broker subscribe parameters shared by the
// SSE and WebSocket feeds.
func (c *EventsController) subscribeParamsFromRequest(r *http.Request) (broker.SubscribeParams, string) {
	q := r.URL.Query()
	workspace := q.Get("workspace")
	if workspace == "" {
		workspace = c.rt.Config().DefaultWorkspaceName
	}
	filters := parseTopicFilters(q.Get("topics"))
	lastEventID := q.Get("last_event_id")
	if lastEventID == "" {
		lastEventID = r.Header.Get("Last-Event-ID")
	}
	filter := q.Get("filter")
	p := broker.SubscribeParams{
		ConnectionID: c.ids.Next().String(),
		UserID:       q.Get("user"),
		WorkspaceID:  workspace,
		Filters:      filters,
		LastEventID:  lastEventID,
		Filter:       filter,
	}
	return p, filter
}

// parseTopicFilters parses a comma list of topic:resource pairs. The resource
// id is everything after the last colon, so dotted topics survive.
func parseTopicFilters(raw string) []broker.TopicFilter {
	var out []broker.TopicFilter
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.LastIndex(part, ":")
		if i <= 0 || i == len(part)-1 {
			continue
		}
		out = append(out, broker.TopicFilter{Topic: part[:i], ResourceID: part[i+1:]})
	}
	return out
}

// handleSubscribeSSE streams matching envelopes over SSE. Query params:
// workspace, topics (comma list of topic:resource), filter (CEL),
// last_event_id; the Last-Event-ID header is honored as well.
func (c *EventsController) handleSubscribeSSE(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	params, filter := c.subscribeParamsFromRequest(r)
	if len(params.Filters) == 0 {
		writeError(w, http.StatusBadRequest, "topics is required")
		return
	}
	if len(filter) > maxFilterLen {
		writeError(w, http.StatusBadRequest, "Filter too long")
		return
	}

	sw, ok := newSSEWriter(w, 64)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}
	params.Send = func(env broker.Envelope) error {
		sw.enqueue(envelopeToSSE(env))
		return nil
	}
	sub, err := c.rt.Broker().Subscribe(params)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to subscribe")
		return
	}
	defer sub.Unsubscribe()

	w.WriteHeader(http.StatusOK)
	sw.flusher.Flush()
	sw.run(r.Context())
}

func envelopeToSSE(env broker.Envelope) sseEvent {
	data, _ := json.Marshal(env)
	ev := sseEvent{data: data}
	if env.Kind == broker.KindHeartbeat {
		ev.event = string(broker.KindHeartbeat)
	} else {
		ev.id = env.EventID()
	}
	return ev
}

// handleSubscribeWS is the WebSocket equivalent of the SSE feed; envelopes
// are delivered as JSON messages with the same query parameters.
func (c *EventsController) handleSubscribeWS(w http.ResponseWriter, r *http.Request) {
	params, filter := c.subscribeParamsFromRequest(r)
	if len(params.Filters) == 0 {
		writeError(w, http.StatusBadRequest, "topics is required")
		return
	}
	if len(filter) > maxFilterLen {
		writeError(w, http.StatusBadRequest, "Filter too long")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	out := make(chan broker.Envelope, 64)
	failed := make(chan struct{})
	var once sync.Once
	failOnce := func() { once.Do(func() { close(failed) }) }
	params.Send = func(env broker.Envelope) error {
		select {
		case out <- env:
		default:
			failOnce()
		}
		return nil
	}
	sub, err := c.rt.Broker().Subscribe(params)
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "subscribe failed"), time.Now().Add(time.Second))
		return
	}
	defer sub.Unsubscribe()

	// Reader loop detects the peer closing the socket.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				failOnce()
				return
			}
		}
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-failed:
			return
		case env := <-out:
			if err := conn.WriteJSON(env); err != nil {
				return
			}
		}
	}
}
