package admission

import (
	"sync"
	"time"
)

// Disposition is the outcome of an admission attempt.
type Disposition string

const (
	DispositionStarted Disposition = "started"
	DispositionPending Disposition = "pending"
)

// EntryState labels where a queue entry sat when it was cancelled.
type EntryState string

const (
	StateActive  EntryState = "active"
	StatePending EntryState = "pending"
)

// ReasonReplaced is the cancellation reason used when a newer request
// displaces a pending one for the same resource.
const ReasonReplaced = "replaced_by_new_request"

// StreamRequest identifies one admission attempt. Immutable once submitted.
type StreamRequest struct {
	SessionID   string
	ResourceKey string
	EnqueuedAt  time.Time
}

// Entry is a queued or active session for a resource.
type Entry struct {
	SessionID       string
	ResourceKey     string
	ConcurrencySlot int
}

// Result reports the outcome of Enqueue.
type Result struct {
	Disposition     Disposition
	ConcurrencySlot int
	// ReplacedSessionID names the pending session displaced by this request,
	// if any.
	ReplacedSessionID string
}

// CompletionResult reports the outcome of Complete.
type CompletionResult struct {
	ReleasedSessionID string
	// Activated is the pending entry promoted to active, if one existed.
	Activated *Entry
}

// CancellationResult reports the outcome of Cancel.
type CancellationResult struct {
	Released bool
	Reason   string
	Promoted *Entry
}

// CancelNotice is delivered to the queue's cancel handler whenever an entry
// is removed without completing.
type CancelNotice struct {
	SessionID   string
	ResourceKey string
	State       EntryState
	Reason      string
}

// CancelFunc observes cancellations. It runs outside the queue lock and must
// not block; the caller that produces events for the session is expected to
// stop once it fires.
type CancelFunc func(CancelNotice)

// Queue is the per-resource concurrency gate. For a given resource key the
// active and pending maps together never hold more than one entry each.
type Queue struct {
	mu       sync.Mutex
	active   map[string]Entry
	pending  map[string]Entry
	onCancel CancelFunc
}

// NewQueue builds a Queue. onCancel may be nil.
func NewQueue(onCancel CancelFunc) *Queue {
	return &Queue{
		active:   make(map[string]Entry),
		pending:  make(map[string]Entry),
		onCancel: onCancel,
	}
}

// Enqueue admits the request immediately when its resource is free, otherwise
// parks it as the resource's single pending entry, displacing any request
// already parked there.
func (q *Queue) Enqueue(req StreamRequest) Result {
	var notice *CancelNotice
	q.mu.Lock()
	res := Result{}
	if _, busy := q.active[req.ResourceKey]; !busy {
		// Slot numbering counts sessions active right now; the count is taken
		// before this entry is inserted.
		slot := 1 + len(q.active)
		q.active[req.ResourceKey] = Entry{
			SessionID:       req.SessionID,
			ResourceKey:     req.ResourceKey,
			ConcurrencySlot: slot,
		}
		res.Disposition = DispositionStarted
		res.ConcurrencySlot = slot
	} else {
		if prev, ok := q.pending[req.ResourceKey]; ok {
			res.ReplacedSessionID = prev.SessionID
			notice = &CancelNotice{
				SessionID:   prev.SessionID,
				ResourceKey: prev.ResourceKey,
				State:       StatePending,
				Reason:      ReasonReplaced,
			}
		}
		q.pending[req.ResourceKey] = Entry{
			SessionID:   req.SessionID,
			ResourceKey: req.ResourceKey,
		}
		res.Disposition = DispositionPending
	}
	q.mu.Unlock()
	if notice != nil && q.onCancel != nil {
		q.onCancel(*notice)
	}
	return res
}

// Complete releases the active entry owning sessionID and promotes any pending
// entry for the same resource. Unknown session ids are an idempotent no-op and
// return nil; a cancel may legitimately race a completion.
func (q *Queue) Complete(sessionID string) *CompletionResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	key, ok := q.findActive(sessionID)
	if !ok {
		return nil
	}
	out := &CompletionResult{ReleasedSessionID: sessionID}
	out.Activated = q.releaseAndPromote(key)
	return out
}

// Cancel removes sessionID from the queue wherever it sits. An active session
// releases its slot and promotes any pending entry; a pending session is
// simply dropped. Unknown ids return Released=false.
func (q *Queue) Cancel(sessionID, reason string) CancellationResult {
	var notice *CancelNotice
	q.mu.Lock()
	out := CancellationResult{Reason: reason}
	if key, ok := q.findActive(sessionID); ok {
		notice = &CancelNotice{SessionID: sessionID, ResourceKey: key, State: StateActive, Reason: reason}
		out.Released = true
		out.Promoted = q.releaseAndPromote(key)
	} else if key, ok := q.findPending(sessionID); ok {
		notice = &CancelNotice{SessionID: sessionID, ResourceKey: key, State: StatePending, Reason: reason}
		delete(q.pending, key)
		out.Released = true
	}
	q.mu.Unlock()
	if notice != nil && q.onCancel != nil {
		q.onCancel(*notice)
	}
	return out
}

// Snapshot returns a read-only copy of both maps for diagnostics.
func (q *Queue) Snapshot() (active, pending map[string]Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	active = make(map[string]Entry, len(q.active))
	pending = make(map[string]Entry, len(q.pending))
	for k, v := range q.active {
		active[k] = v
	}
	for k, v := range q.pending {
		pending[k] = v
	}
	return active, pending
}

// ActiveCount reports how many sessions are active across all resources.
func (q *Queue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.active)
}

// releaseAndPromote removes the active entry for key and, when a pending entry
// exists, moves it to active with a freshly counted slot. Caller holds q.mu.
func (q *Queue) releaseAndPromote(key string) *Entry {
	delete(q.active, key)
	next, ok := q.pending[key]
	if !ok {
		return nil
	}
	delete(q.pending, key)
	next.ConcurrencySlot = 1 + len(q.active)
	q.active[key] = next
	promoted := next
	return &promoted
}

func (q *Queue) findActive(sessionID string) (string, bool) {
	for key, e := range q.active {
		if e.SessionID == sessionID {
			return key, true
		}
	}
	return "", false
}

func (q *Queue) findPending(sessionID string) (string, bool) {
	for key, e := range q.pending {
		if e.SessionID == sessionID {
			return key, true
		}
	}
	return "", false
}
