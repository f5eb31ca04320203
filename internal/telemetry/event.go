package telemetry

// EventType names a review disposition change.
type EventType string

const (
	EventQueued    EventType = "queued"
	EventReplaced  EventType = "replaced"
	EventCanceled  EventType = "canceled"
	EventRetried   EventType = "retried"
	EventCompleted EventType = "completed"
	EventPromoted  EventType = "promoted"
	EventDegraded  EventType = "degraded"
)

// Event is one disposition-change record for a review session.
type Event struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"sessionId"`
	ResourceKey string    `json:"resourceKey"`
	// Reason is set for replaced and canceled events.
	Reason string `json:"reason,omitempty"`
	// ConcurrencySlot is the slot reported to the session at the time of the
	// event; zero when not applicable.
	ConcurrencySlot int `json:"concurrencySlot,omitempty"`
	// RetryOf links a retried session to the session it replaces.
	RetryOf     string `json:"retryOf,omitempty"`
	TimestampMs int64  `json:"timestampMs"`
}
