// Package profile resolves the application profile for an authenticated
// identity, creating or claiming the row when it does not exist yet.
package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"tribunalsync/client/internal/identity"
	"tribunalsync/client/internal/store"
)

// ErrUnresolved is returned when the convergence loop exhausts its attempts.
// Callers degrade to a pending profile display, they do not crash.
var ErrUnresolved = errors.New("profile could not be resolved")

// Store is the subset of the row store the resolver needs.
type Store interface {
	GetProfile(ctx context.Context, id string) (store.Profile, error)
	ClaimProfile(ctx context.Context, id, email string) (store.Profile, error)
	InsertProfile(ctx context.Context, p store.Profile) error
}

// Resolver finds or creates profiles with a bounded retry policy. Profile
// reads right after sign-up can race server-side provisioning, so a miss is
// retried a fixed number of times with a fixed delay. The loop is abandoned
// as soon as ctx is cancelled; a stale resolution for a superseded identity
// must never land.
type Resolver struct {
	store    Store
	policy   identity.AdminPolicy
	attempts int
	delay    time.Duration
}

func NewResolver(s Store, policy identity.AdminPolicy) *Resolver {
	return &Resolver{
		store:    s,
		policy:   policy,
		attempts: 3,
		delay:    time.Second,
	}
}

// NewResolverWithRetry is used by tests to shrink the delay.
func NewResolverWithRetry(s Store, policy identity.AdminPolicy, attempts int, delay time.Duration) *Resolver {
	return &Resolver{store: s, policy: policy, attempts: attempts, delay: delay}
}

// Resolve returns the profile for userID, in order of preference: the
// existing row, a pre-provisioned row claimed by email, a freshly created
// row. Concurrent duplicate creation is tolerated: a unique violation means
// someone else won the race and the row is re-fetched.
func (r *Resolver) Resolve(ctx context.Context, userID, email, displayNameHint string) (store.Profile, error) {
	var lastErr error
	for attempt := 0; attempt < r.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return store.Profile{}, ctx.Err()
			case <-time.After(r.delay):
			}
		}

		p, err := r.resolveOnce(ctx, userID, email, displayNameHint)
		if err == nil {
			return p, nil
		}
		if ctx.Err() != nil {
			return store.Profile{}, ctx.Err()
		}
		lastErr = err
		log.Printf("profile: resolve attempt %d/%d for %s failed: %v", attempt+1, r.attempts, userID, err)
	}
	return store.Profile{}, fmt.Errorf("%w: %v", ErrUnresolved, lastErr)
}

func (r *Resolver) resolveOnce(ctx context.Context, userID, email, displayNameHint string) (store.Profile, error) {
	p, err := r.store.GetProfile(ctx, userID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return store.Profile{}, fmt.Errorf("lookup profile: %w", err)
	}

	if email != "" {
		claimed, err := r.store.ClaimProfile(ctx, userID, email)
		if err == nil {
			return claimed, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return store.Profile{}, fmt.Errorf("claim profile: %w", err)
		}
	}

	created := store.Profile{
		ID:         userID,
		FullName:   displayNameHint,
		Email:      email,
		Role:       "secretario",
		IsApproved: r.policy.IsAdmin(email),
	}
	if err := r.store.InsertProfile(ctx, created); err != nil {
		if store.IsUniqueViolation(err) {
			// Someone else created it first. Last write wins: take theirs.
			return r.store.GetProfile(ctx, userID)
		}
		return store.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	return created, nil
}
