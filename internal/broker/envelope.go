package broker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind discriminates real events from idle heartbeats.
type Kind string

const (
	KindEvent     Kind = "event"
	KindHeartbeat Kind = "heartbeat"
)

// Envelope is one unit of published event data. Sequence is unique and
// strictly increasing per (Topic, ResourceID) pair starting at 1; heartbeat
// envelopes carry no sequence and never enter a replay ring.
type Envelope struct {
	Topic       string          `json:"topic"`
	ResourceID  string          `json:"resourceId"`
	Sequence    uint64          `json:"sequence,omitempty"`
	Kind        Kind            `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	WorkspaceID string          `json:"workspaceId,omitempty"`
	TimestampMs int64           `json:"timestampMs"`
}

// EventID renders the replay anchor a subscriber echoes back on reconnect.
func (e Envelope) EventID() string {
	return e.Topic + ":" + e.ResourceID + ":" + strconv.FormatUint(e.Sequence, 10)
}

// TopicFilter selects one (topic, resource) pair; an envelope matches when
// both fields are equal.
type TopicFilter struct {
	Topic      string `json:"topic"`
	ResourceID string `json:"resourceId"`
}

func (f TopicFilter) matches(e Envelope) bool {
	return f.Topic == e.Topic && f.ResourceID == e.ResourceID
}

// ParseEventID splits a "{topic}:{resourceId}:{sequence}" anchor. The topic
// and resource id are recovered from the right so dotted topic names survive.
func ParseEventID(s string) (topic, resourceID string, seq uint64, err error) {
	i := strings.LastIndexByte(s, ':')
	if i <= 0 {
		return "", "", 0, fmt.Errorf("broker: malformed event id %q", s)
	}
	seq, err = strconv.ParseUint(s[i+1:], 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("broker: malformed event id %q: %w", s, err)
	}
	rest := s[:i]
	j := strings.LastIndexByte(rest, ':')
	if j <= 0 {
		return "", "", 0, fmt.Errorf("broker: malformed event id %q", s)
	}
	return rest[:j], rest[j+1:], seq, nil
}
