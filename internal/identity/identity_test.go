package identity

import (
	"testing"

	"tribunalsync/client/internal/store"
)

func TestIsAdminMatching(t *testing.T) {
	policy := NewAdminPolicy("Admin@Tribunal.dev")

	cases := []struct {
		email string
		want  bool
	}{
		{"admin@tribunal.dev", true},
		{"ADMIN@TRIBUNAL.DEV", true},
		{"  admin@tribunal.dev  ", true},
		{"a@x.com", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := policy.IsAdmin(tc.email); got != tc.want {
			t.Errorf("IsAdmin(%q) = %v, want %v", tc.email, got, tc.want)
		}
	}
}

func TestIsAdminEmptyPolicyNeverMatches(t *testing.T) {
	policy := NewAdminPolicy("")
	if policy.IsAdmin("") {
		t.Fatal("empty policy must not treat the empty email as admin")
	}
}

func TestIsApprovedAdminFailsafe(t *testing.T) {
	policy := NewAdminPolicy("admin@tribunal.dev")

	// Admin passes even with a zero profile (row not created yet) or an
	// explicit false flag.
	if !policy.IsApproved("admin@tribunal.dev", store.Profile{}) {
		t.Error("admin with missing profile should be approved")
	}
	if !policy.IsApproved("admin@tribunal.dev", store.Profile{IsApproved: false}) {
		t.Error("admin with unapproved profile should be approved")
	}
	// Everyone else relies on the stored flag.
	if policy.IsApproved("a@x.com", store.Profile{IsApproved: false}) {
		t.Error("regular user without the flag should not be approved")
	}
	if !policy.IsApproved("a@x.com", store.Profile{IsApproved: true}) {
		t.Error("regular user with the flag should be approved")
	}
}

func TestStoreClearNotifiesWithZeroIdentity(t *testing.T) {
	s := NewStore(NewAdminPolicy("admin@tribunal.dev"))

	var observed []Identity
	s.OnChange(func(id Identity) {
		// The store must already hold the new identity when listeners run.
		if s.Current() != id {
			t.Errorf("listener observed stale store state: current=%+v notified=%+v", s.Current(), id)
		}
		observed = append(observed, id)
	})

	s.Set(Identity{UserID: "usr-1", Email: "ana@tribunal.dev"})
	s.Clear()

	if len(observed) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(observed))
	}
	if observed[0].UserID != "usr-1" {
		t.Errorf("first notification = %+v", observed[0])
	}
	if !observed[1].IsZero() {
		t.Errorf("sign-out notification should carry the zero identity, got %+v", observed[1])
	}
}
