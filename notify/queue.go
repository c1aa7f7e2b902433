// Package notify holds notifications on screen until they expire. Queue is an
// authflow.NotificationSink: concurrent notifications stack in arrival order
// and none replaces another.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/authflow"
)

// DefaultTTL applies to notifications that carry no TTL of their own.
const DefaultTTL = 4 * time.Second

// Entry is one visible notification.
type Entry struct {
	ID uint64
	authflow.Notification
	ExpiresAt time.Time
}

// Queue is safe for concurrent use.
type Queue struct {
	mu      sync.Mutex
	now     func() time.Time
	max     int
	nextID  uint64
	entries []Entry
	changed chan struct{}
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithLimit keeps at most n entries, evicting the oldest.
func WithLimit(n int) Option {
	return func(q *Queue) { q.max = n }
}

// NewQueue returns an empty queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{now: time.Now, changed: make(chan struct{})}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Emit appends n. It never blocks.
func (q *Queue) Emit(_ context.Context, n authflow.Notification) {
	ttl := n.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	if n.At.IsZero() {
		n.At = now
	}
	q.pruneLocked(now)
	q.nextID++
	q.entries = append(q.entries, Entry{ID: q.nextID, Notification: n, ExpiresAt: n.At.Add(ttl)})
	if q.max > 0 && len(q.entries) > q.max {
		q.entries = append(q.entries[:0], q.entries[len(q.entries)-q.max:]...)
	}
	q.signalLocked()
}

// Active returns the unexpired entries, oldest first.
func (q *Queue) Active() []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pruneLocked(q.now())
	return append([]Entry(nil), q.entries...)
}

// Dismiss removes id early. It reports whether id was still visible.
func (q *Queue) Dismiss(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			q.signalLocked()
			return true
		}
	}
	return false
}

// Changed returns a channel closed at the next Emit or Dismiss.
func (q *Queue) Changed() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.changed
}

func (q *Queue) pruneLocked(now time.Time) {
	kept := q.entries[:0]
	for _, e := range q.entries {
		if now.Before(e.ExpiresAt) {
			kept = append(kept, e)
		}
	}
	clear(q.entries[len(kept):])
	q.entries = kept
}

func (q *Queue) signalLocked() {
	close(q.changed)
	q.changed = make(chan struct{})
}
