package presence

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestFeedBoundAndOrder(t *testing.T) {
	f := NewFeed(15)
	for i := 1; i <= 20; i++ {
		f.Prepend(Activity{ID: fmt.Sprintf("act-%d", i), Target: fmt.Sprintf("target-%d", i)})
	}

	items := f.Items()
	if len(items) != 15 {
		t.Fatalf("feed holds %d items, want 15", len(items))
	}
	// Newest first: 20 down to 6; the 5 oldest were evicted.
	if items[0].ID != "act-20" {
		t.Errorf("newest item first, got %s", items[0].ID)
	}
	if items[14].ID != "act-6" {
		t.Errorf("oldest surviving item should be act-6, got %s", items[14].ID)
	}
}

func TestFeedSkipsDuplicateIDs(t *testing.T) {
	f := NewFeed(15)
	f.Prepend(Activity{ID: "act-1", Action: "created"})
	f.Prepend(Activity{ID: "act-1", Action: "created"})

	if got := len(f.Items()); got != 1 {
		t.Errorf("duplicate id prepended twice, feed holds %d items", got)
	}
}

func TestFeedReset(t *testing.T) {
	f := NewFeed(15)
	f.Prepend(Activity{ID: "act-1"})
	f.Reset()
	if len(f.Items()) != 0 {
		t.Error("Reset should empty the feed")
	}
}

func TestDedupMembers(t *testing.T) {
	raw := []Member{
		{UserID: "usr-1", FullName: "Ana"},
		{UserID: "usr-2", FullName: "Berta"},
		{UserID: "usr-1", FullName: "Ana (segunda pestaña)"},
		{UserID: ""},
	}
	members := DedupMembers(raw)
	if len(members) != 2 {
		t.Fatalf("expected 2 unique members, got %d", len(members))
	}
	if members[0].UserID != "usr-1" || members[0].FullName != "Ana" {
		t.Errorf("first-seen entry should win: %+v", members[0])
	}
}

func TestAnnounceAndOnline(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	ana := NewTracker(client, NewFeed(15))
	if err := ana.Announce(ctx, Member{UserID: "usr-1", FullName: "Ana", Role: "juez"}); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	defer ana.Close()

	// Same identity from a second connection plus a distinct peer.
	anaTab2 := NewTracker(client, NewFeed(15))
	if err := anaTab2.Announce(ctx, Member{UserID: "usr-1", FullName: "Ana", Role: "juez"}); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	defer anaTab2.Close()

	berta := NewTracker(client, NewFeed(15))
	if err := berta.Announce(ctx, Member{UserID: "usr-2", FullName: "Berta", Role: "secretario"}); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	defer berta.Close()

	online, err := ana.Online(ctx)
	if err != nil {
		t.Fatalf("Online() error = %v", err)
	}
	if len(online) != 2 {
		t.Fatalf("expected 2 unique online members, got %d: %+v", len(online), online)
	}
}

func TestCloseWithdrawsPresence(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	ana := NewTracker(client, NewFeed(15))
	if err := ana.Announce(ctx, Member{UserID: "usr-1", FullName: "Ana"}); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	berta := NewTracker(client, NewFeed(15))
	if err := berta.Announce(ctx, Member{UserID: "usr-2", FullName: "Berta"}); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	defer berta.Close()

	ana.Close()

	online, err := berta.Online(ctx)
	if err != nil {
		t.Fatalf("Online() error = %v", err)
	}
	if len(online) != 1 || online[0].UserID != "usr-2" {
		t.Errorf("closed tracker should disappear from sync: %+v", online)
	}
}

func TestNotifyLocalActionReachesPeersAndSelf(t *testing.T) {
	client := testClient(t)
	ctx := context.Background()

	anaFeed := NewFeed(15)
	ana := NewTracker(client, anaFeed)
	if err := ana.Announce(ctx, Member{UserID: "usr-1", FullName: "Ana"}); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	defer ana.Close()

	bertaFeed := NewFeed(15)
	berta := NewTracker(client, bertaFeed)
	if err := berta.Announce(ctx, Member{UserID: "usr-2", FullName: "Berta"}); err != nil {
		t.Fatalf("Announce() error = %v", err)
	}
	defer berta.Close()

	ana.NotifyLocalAction(ctx, "created", "Audiencia de Conciliación")

	// The actor sees the action immediately, without an echo round trip.
	local := anaFeed.Items()
	if len(local) != 1 || local[0].Action != "created" {
		t.Fatalf("local feed should hold the action: %+v", local)
	}

	waitFor(t, func() bool { return len(bertaFeed.Items()) == 1 })
	remote := bertaFeed.Items()[0]
	if remote.ActorName != "Ana" || remote.Target != "Audiencia de Conciliación" {
		t.Errorf("peer received %+v", remote)
	}
	if remote.Timestamp.IsZero() {
		t.Error("broadcast timestamp was not rehydrated")
	}

	// The actor's own echo must not duplicate the entry.
	time.Sleep(50 * time.Millisecond)
	if got := len(anaFeed.Items()); got != 1 {
		t.Errorf("own echo duplicated the entry: %d items", got)
	}
}
