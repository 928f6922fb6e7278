// Package identity holds the current authenticated principal and the
// administrator bypass policy derived from it.
package identity

import (
	"strings"
	"sync"

	"tribunalsync/client/internal/store"
)

// Identity is the authenticated principal. Zero value means signed out.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
	Token       string
}

func (id Identity) IsZero() bool {
	return id.UserID == ""
}

// AdminPolicy is the single place the administrator bypass lives. One fixed
// principal is always treated as approved, whether or not its profile row
// exists or carries the flag.
type AdminPolicy struct {
	email string
}

func NewAdminPolicy(adminEmail string) AdminPolicy {
	return AdminPolicy{email: normalize(adminEmail)}
}

// IsAdmin reports whether the given principal is the fixed administrator.
// Pure string comparison, no I/O.
func (p AdminPolicy) IsAdmin(email string) bool {
	return p.email != "" && normalize(email) == p.email
}

// IsApproved is the gate predicate: the stored approval flag, with the
// administrator failsafe on top. Safe to call with a zero Profile.
func (p AdminPolicy) IsApproved(email string, profile store.Profile) bool {
	return p.IsAdmin(email) || profile.IsApproved
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Store holds the current identity and notifies listeners when it changes.
// Listeners run synchronously on the mutating call, so dependent state is
// cleared before Set or Clear returns and no stale identity is observable.
type Store struct {
	mu        sync.Mutex
	current   Identity
	listeners []func(Identity)
	policy    AdminPolicy
}

func NewStore(policy AdminPolicy) *Store {
	return &Store{policy: policy}
}

func (s *Store) Policy() AdminPolicy {
	return s.policy
}

// OnChange registers a listener invoked with the new identity (zero on
// sign-out). Registration order is invocation order.
func (s *Store) OnChange(fn func(Identity)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

func (s *Store) Current() Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

func (s *Store) Set(id Identity) {
	s.mu.Lock()
	s.current = id
	listeners := append([]func(Identity){}, s.listeners...)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn(id)
	}
}

// Clear signs the identity out. The zero identity is stored before any
// listener runs.
func (s *Store) Clear() {
	s.Set(Identity{})
}

// IsAdmin reports whether the current identity is the administrator.
func (s *Store) IsAdmin() bool {
	return s.policy.IsAdmin(s.Current().Email)
}
