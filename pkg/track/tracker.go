// Package track issues and manages cancellation tokens for in-flight client
// operations. Every chat call and every download subscription registers here
// under a caller-supplied or generated id, so that one, several, or all
// operations can be cancelled independently.
//
// The id→token map is the only shared mutable state in the client engine;
// access to it is serialized by a mutex while the byte-stream decoding each
// token guards runs fully concurrently with other operations.
package track

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker maps operation ids to live cancellation tokens. The zero value is
// not usable; construct with NewTracker. Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	active map[string]context.CancelFunc
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		active: make(map[string]context.CancelFunc),
	}
}

// Begin registers a new operation and returns its id and cancellation
// context. When id is empty a fresh uuid is generated. The returned context
// is derived from parent and fires on Cancel(id), CancelAll, or parent
// cancellation.
//
// Reusing an id that is still in flight cancels the displaced operation, so
// an id always maps to exactly one live token.
func (t *Tracker) Begin(parent context.Context, id string) (string, context.Context) {
	if id == "" {
		id = uuid.NewString()
	}

	ctx, cancel := context.WithCancel(parent)
	t.register(id, cancel)

	return id, ctx
}

// BeginTimeout registers a new operation whose token also fires on its own
// after d elapses. Timeout and manual cancellation compose through the same
// context. Duplicate ids displace as in Begin.
func (t *Tracker) BeginTimeout(parent context.Context, id string, d time.Duration) (string, context.Context) {
	if id == "" {
		id = uuid.NewString()
	}

	ctx, cancel := context.WithTimeout(parent, d)
	t.register(id, cancel)

	return id, ctx
}

// register stores the token for id, cancelling any entry it displaces.
func (t *Tracker) register(id string, cancel context.CancelFunc) {
	t.mu.Lock()
	prev, displaced := t.active[id]
	t.active[id] = cancel
	t.mu.Unlock()

	if displaced {
		prev()
	}
}

// Cancel signals the token for id, if present, and removes the entry.
// A no-op when id is not tracked; absence means already resolved.
func (t *Tracker) Cancel(id string) {
	t.mu.Lock()
	cancel, ok := t.active[id]
	delete(t.active, id)
	t.mu.Unlock()

	if ok {
		cancel()
	}
}

// CancelAll signals every tracked token and clears the map. Operations begun
// concurrently with CancelAll either observe their token fire or remain
// tracked for a later cancel; none are lost half-registered.
func (t *Tracker) CancelAll() {
	t.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(t.active))
	for id, cancel := range t.active {
		cancels = append(cancels, cancel)
		delete(t.active, id)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

// End removes the entry for id on normal completion. Idempotent; ending an
// unknown or already-ended id is a no-op. The context's resources are
// released, which is unobservable to work that has already finished.
func (t *Tracker) End(id string) {
	t.mu.Lock()
	cancel, ok := t.active[id]
	delete(t.active, id)
	t.mu.Unlock()

	if ok {
		cancel()
	}
}

// Active returns the ids of all currently tracked operations, in no
// particular order.
func (t *Tracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]string, 0, len(t.active))
	for id := range t.active {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of tracked operations.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.active)
}
