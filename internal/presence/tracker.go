package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"tribunalsync/client/internal/util"
)

const (
	presenceKeyPrefix = "tribunal.presence."
	activityChannel   = "tribunal.activity"

	presenceTTL       = 30 * time.Second
	heartbeatInterval = 10 * time.Second
)

// Member is one connected identity as announced on the channel.
type Member struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type broadcastEnvelope struct {
	Origin string   `json:"origin"`
	Item   Activity `json:"item"`
}

// Tracker announces the local identity on the presence channel and relays
// activity broadcasts. Each Tracker is one connection: a second tab would be
// a second Tracker with its own connection id, and the sync path deduplicates
// those back to one member per identity.
type Tracker struct {
	client *redis.Client
	feed   *Feed
	connID string

	mu   sync.Mutex
	self Member

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func NewTracker(client *redis.Client, feed *Feed) *Tracker {
	return &Tracker{
		client: client,
		feed:   feed,
		connID: util.NewID("conn"),
		done:   make(chan struct{}),
	}
}

func (t *Tracker) key() string {
	return presenceKeyPrefix + t.self.UserID + ":" + t.connID
}

// Announce publishes the local member record after a successful subscription
// handshake, then keeps it alive with heartbeats until Close.
func (t *Tracker) Announce(ctx context.Context, self Member) error {
	t.mu.Lock()
	t.self = self
	t.mu.Unlock()

	pubsub := t.client.Subscribe(ctx, activityChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("presence subscribe: %w", err)
	}

	if err := t.track(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}

	t.wg.Add(2)
	go t.heartbeatLoop()
	go t.receiveLoop(pubsub)
	return nil
}

func (t *Tracker) track(ctx context.Context) error {
	t.mu.Lock()
	self := t.self
	t.mu.Unlock()

	payload, err := json.Marshal(self)
	if err != nil {
		return fmt.Errorf("marshal presence record: %w", err)
	}
	if err := t.client.Set(ctx, t.key(), payload, presenceTTL).Err(); err != nil {
		return fmt.Errorf("track presence: %w", err)
	}
	return nil
}

// Online returns the deduplicated list of connected members, one entry per
// identity regardless of how many connections it holds.
func (t *Tracker) Online(ctx context.Context) ([]Member, error) {
	keys, err := t.client.Keys(ctx, presenceKeyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("presence sync: %w", err)
	}
	sort.Strings(keys)

	var raw []Member
	for _, key := range keys {
		payload, err := t.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue // expired between KEYS and GET
		}
		if err != nil {
			return nil, fmt.Errorf("presence sync: %w", err)
		}
		var m Member
		if err := json.Unmarshal([]byte(payload), &m); err != nil {
			log.Printf("presence: dropping malformed record at %s: %v", key, err)
			continue
		}
		raw = append(raw, m)
	}
	return DedupMembers(raw), nil
}

// DedupMembers collapses a raw presence sync to one representative entry per
// identity id, preserving first-seen order.
func DedupMembers(raw []Member) []Member {
	seen := make(map[string]struct{}, len(raw))
	var members []Member
	for _, m := range raw {
		if m.UserID == "" {
			continue
		}
		if _, ok := seen[m.UserID]; ok {
			continue
		}
		seen[m.UserID] = struct{}{}
		members = append(members, m)
	}
	return members
}

// NotifyLocalAction broadcasts an action notice to all peers and prepends it
// locally, so the actor sees their own action without waiting for an echo.
func (t *Tracker) NotifyLocalAction(ctx context.Context, action, target string) {
	t.mu.Lock()
	self := t.self
	t.mu.Unlock()

	item := Activity{
		ID:           util.NewID("act"),
		ActorName:    self.FullName,
		Action:       action,
		Target:       target,
		Timestamp:    time.Now(),
		TimestampRaw: time.Now().Format(time.RFC3339Nano),
	}
	t.feed.Prepend(item)

	payload, err := json.Marshal(broadcastEnvelope{Origin: t.connID, Item: item})
	if err != nil {
		log.Printf("presence: marshal activity broadcast: %v", err)
		return
	}
	if err := t.client.Publish(ctx, activityChannel, payload).Err(); err != nil {
		log.Printf("presence: broadcast activity: %v", err)
	}
}

func (t *Tracker) receiveLoop(pubsub *redis.PubSub) {
	defer t.wg.Done()
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case <-t.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var env broadcastEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				log.Printf("presence: dropping malformed broadcast: %v", err)
				continue
			}
			if env.Origin == t.connID {
				continue // own echo, already prepended
			}
			item := env.Item
			if item.TimestampRaw != "" {
				if ts, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(item.TimestampRaw)); err == nil {
					item.Timestamp = ts
				}
			}
			t.feed.Prepend(item)
		}
	}
}

func (t *Tracker) heartbeatLoop() {
	defer t.wg.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			if err := t.track(ctx); err != nil {
				log.Printf("presence: heartbeat: %v", err)
			}
			cancel()
		}
	}
}

// Close withdraws the presence record and stops the background loops.
func (t *Tracker) Close() {
	t.closeOnce.Do(func() {
		close(t.done)
	})
	t.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := t.client.Del(ctx, t.key()).Err(); err != nil {
		log.Printf("presence: withdraw: %v", err)
	}
}
