// Package presence tracks which approved users are currently connected and
// carries the ephemeral activity feed between them. Nothing in this package
// is persisted; state lives in Redis keys with a TTL and in memory.
package presence

import (
	"sync"
	"time"

	"tribunalsync/client/internal/util"
)

// DefaultFeedCap bounds the activity log.
const DefaultFeedCap = 15

// Activity is one entry in the feed: who did what to which target.
type Activity struct {
	ID        string    `json:"id"`
	ActorName string    `json:"actor_name"`
	Action    string    `json:"action"`
	Target    string    `json:"target"`
	Timestamp time.Time `json:"-"`

	// Wire form of Timestamp; rehydrated on receipt.
	TimestampRaw string `json:"timestamp"`
}

// Feed is a bounded most-recent-first activity log. The oldest entries fall
// off once the cap is exceeded.
type Feed struct {
	mu    sync.Mutex
	items []Activity
	cap   int
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultFeedCap
	}
	return &Feed{cap: capacity}
}

// Prepend adds an item at the front, evicting beyond the cap. Items already
// present by id are skipped, so a local action and its broadcast echo land
// exactly once.
func (f *Feed) Prepend(item Activity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.items {
		if existing.ID == item.ID {
			return
		}
	}
	f.items = append([]Activity{item}, f.items...)
	if len(f.items) > f.cap {
		f.items = f.items[:f.cap]
	}
}

// RecordRemote satisfies the realtime reconciler's activity sink.
func (f *Feed) RecordRemote(actor, action, target string, at time.Time) {
	f.Prepend(Activity{
		ID:        util.NewID("act"),
		ActorName: actor,
		Action:    action,
		Target:    target,
		Timestamp: at,
	})
}

// Items returns the log newest-first.
func (f *Feed) Items() []Activity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Activity{}, f.items...)
}

// Reset drops the log. Called on sign-out.
func (f *Feed) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = nil
}
