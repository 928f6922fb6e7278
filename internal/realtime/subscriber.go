package realtime

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"tribunalsync/client/internal/store"
)

// Applier is the replica surface the reconciler mutates.
type Applier interface {
	ApplyEventChange(kind string, e store.Event)
	ApplyUnitChange(kind string, u store.Unit)
}

// ActivitySink receives a synthesized activity item per applied change.
type ActivitySink interface {
	RecordRemote(actor, action, target string, at time.Time)
}

// Subscriber consumes the change feed for both watched collections and folds
// notifications into the replica. All applies happen on one goroutine, so
// ordering reasoning lives in exactly one place; the buffered channel decouples
// the transport pump from the apply loop.
//
// No ordering is assumed across entities, and within one entity the last
// applied notification wins. Disconnects never propagate: the app keeps
// serving stale replica state and the Online flag flips instead.
type Subscriber struct {
	client   *redis.Client
	replica  Applier
	activity ActivitySink

	changes chan Change
	done    chan struct{}
	wg      sync.WaitGroup
	online  atomic.Bool

	mu            sync.Mutex
	onStateChange func(online bool)
	resolveActor  func(userID string) string

	closeOnce sync.Once
}

func NewSubscriber(client *redis.Client, applier Applier, activity ActivitySink) *Subscriber {
	return &Subscriber{
		client:   client,
		replica:  applier,
		activity: activity,
		changes:  make(chan Change, 64),
		done:     make(chan struct{}),
	}
}

// OnStateChange registers a callback for online/offline transitions. Must be
// set before Start.
func (s *Subscriber) OnStateChange(fn func(online bool)) {
	s.mu.Lock()
	s.onStateChange = fn
	s.mu.Unlock()
}

// OnResolveActor registers a lookup from the actor id carried on a change to
// a display name for the activity feed. Must be set before Start.
func (s *Subscriber) OnResolveActor(fn func(userID string) string) {
	s.mu.Lock()
	s.resolveActor = fn
	s.mu.Unlock()
}

// Online reports whether the feed connection is believed healthy.
func (s *Subscriber) Online() bool {
	return s.online.Load()
}

// Start opens the subscriptions and launches the pump, apply, and health
// goroutines. The initial handshake is confirmed before returning so callers
// know the feed is live when presence tracking begins.
func (s *Subscriber) Start(ctx context.Context) error {
	pubsub := s.client.Subscribe(ctx, channelEvents, channelUnits)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	s.setOnline(true)

	s.wg.Add(3)
	go s.pump(pubsub)
	go s.applyLoop()
	go s.healthLoop()
	return nil
}

// Close tears the subscription down and waits for in-flight applies. Safe to
// call more than once.
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
}

func (s *Subscriber) pump(pubsub *redis.PubSub) {
	defer s.wg.Done()
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			change, err := DecodeChange([]byte(msg.Payload))
			if err != nil {
				log.Printf("realtime: dropping malformed notification on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case s.changes <- change:
			case <-s.done:
				return
			}
		}
	}
}

func (s *Subscriber) applyLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case change := <-s.changes:
			if err := s.apply(change); err != nil {
				log.Printf("realtime: apply %s %s: %v", change.Kind, change.Table, err)
			}
		}
	}
}

func (s *Subscriber) apply(c Change) error {
	switch c.Table {
	case store.TableEvents:
		var row EventRow
		if err := json.Unmarshal(c.Row, &row); err != nil {
			return err
		}
		event, err := row.Rehydrate()
		if err != nil {
			return err
		}
		s.replica.ApplyEventChange(c.Kind, event)
		s.recordActivity(c.Kind, event.CreatedBy, event.Title, event.Status)
	case store.TableUnits:
		var row UnitRow
		if err := json.Unmarshal(c.Row, &row); err != nil {
			return err
		}
		unit := row.Rehydrate()
		s.replica.ApplyUnitChange(c.Kind, unit)
		s.recordActivity(c.Kind, "", unit.Name, "")
	default:
		log.Printf("realtime: ignoring change for unwatched table %q", c.Table)
	}
	return nil
}

// unknownActorLabel names the actor when the change carries no id or the id
// does not resolve to a profile.
const unknownActorLabel = "someone"

func (s *Subscriber) recordActivity(kind, actorID, target, status string) {
	if s.activity == nil {
		return
	}
	var action string
	switch kind {
	case store.ChangeInsert:
		action = "created"
	case store.ChangeUpdate:
		action = "updated"
		if status == store.StatusCancelled {
			action = "cancelled"
		}
	case store.ChangeDelete:
		action = "deleted"
	default:
		return
	}

	actor := unknownActorLabel
	if actorID != "" {
		s.mu.Lock()
		resolve := s.resolveActor
		s.mu.Unlock()
		if resolve != nil {
			if name := resolve(actorID); name != "" {
				actor = name
			}
		}
	}
	s.activity.RecordRemote(actor, action, target, time.Now())
}

// healthLoop mirrors the connection state into the online flag. Redis pub/sub
// reconnects on its own; the ping only drives the indicator.
func (s *Subscriber) healthLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := s.client.Ping(ctx).Err()
			cancel()
			s.setOnline(err == nil)
		}
	}
}

func (s *Subscriber) setOnline(online bool) {
	was := s.online.Swap(online)
	if was == online {
		return
	}
	if !online {
		log.Printf("realtime: change feed offline, serving stale replica state")
	} else {
		log.Printf("realtime: change feed online")
	}
	s.mu.Lock()
	fn := s.onStateChange
	s.mu.Unlock()
	if fn != nil {
		fn(online)
	}
}
