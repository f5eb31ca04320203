package review

import (
	"context"
	"encoding/json"
)

// FallbackScript describes the logical event sequence to synthesize when live
// streaming is unavailable: state transitions first, then token fragments,
// then the terminal awaiting-approval progress frame.
type FallbackScript struct {
	// States are lifecycle transitions emitted before any token, e.g.
	// "analyzing", "drafting".
	States []string
	// Tokens are the content fragments, delivered one frame each at the
	// configured pace.
	Tokens []string
}

type statePayload struct {
	State string `json:"state"`
}

type tokenPayload struct {
	Text string `json:"text"`
}

type progressPayload struct {
	Status string `json:"status"`
}

// runFallback delivers the script's frames through the session's ordered
// sequence, marked with delivery "fallback", and completes the session. The
// frame sequence is indistinguishable from live streaming apart from that
// marker. Token frames are spaced by the configured pace; the context aborts
// the run between frames.
func (c *Coordinator) runFallback(ctx context.Context, sessionID string, script FallbackScript) error {
	c.mu.Lock()
	sess, ok := c.sessions[sessionID]
	c.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}
	if sess.State() != StateActive {
		return ErrSessionNotActive
	}

	for _, state := range script.States {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.submitFallback(sess, KindState, statePayload{State: state})
	}

	for i, tok := range script.Tokens {
		if i > 0 {
			timer := c.clk.Timer(c.cfg.FallbackTokenPace)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
		c.submitFallback(sess, KindToken, tokenPayload{Text: tok})
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	c.submitFallback(sess, KindProgress, progressPayload{Status: "awaiting-approval"})
	c.CompleteReview(sessionID)
	return nil
}

func (c *Coordinator) submitFallback(sess *Session, kind FrameKind, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		return
	}
	sess.submit(Frame{
		Sequence:    sess.NextSequence(),
		Kind:        kind,
		Payload:     body,
		Delivery:    DeliveryFallback,
		TimestampMs: c.clk.Now().UnixMilli(),
	})
}
