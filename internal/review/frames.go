package review

import "encoding/json"

// FrameKind classifies one frame within a review session stream.
type FrameKind string

const (
	// KindProgress reports coarse lifecycle progress (analyzing, drafting,
	// awaiting-approval).
	KindProgress FrameKind = "progress"
	// KindToken carries one incremental content fragment.
	KindToken FrameKind = "token"
	// KindState marks a session state transition.
	KindState FrameKind = "state"
)

// DeliveryMode distinguishes live streaming from synthesized fallback.
type DeliveryMode string

const (
	DeliveryLive     DeliveryMode = "live"
	DeliveryFallback DeliveryMode = "fallback"
)

// Frame is one sequenced unit of review output. Sequence is per session,
// strictly increasing from 1 with no gaps as observed by watchers.
type Frame struct {
	Sequence    uint64          `json:"sequence"`
	Kind        FrameKind       `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Delivery    DeliveryMode    `json:"delivery"`
	TimestampMs int64           `json:"timestampMs"`
}
