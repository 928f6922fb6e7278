// Package gate implements the access-control state machine that decides
// whether an authenticated identity may see application data.
package gate

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type State string

const (
	StateUnauthenticated State = "unauthenticated"
	StateRecovery        State = "credential-recovery"
	StatePendingApproval State = "pending-approval"
	StateAuthorized      State = "authorized"
)

var ErrInvalidTransition = errors.New("invalid gate transition")

// Hooks are the side effects bound to entering and leaving the authorized
// state: the initial replica load plus realtime/presence subscription on the
// way in, teardown on the way out.
type Hooks struct {
	// OnAuthorized runs on entry to StateAuthorized. An error does not
	// block the transition - the app stays usable on stale local data and
	// the error is surfaced to the caller as a connectivity problem.
	OnAuthorized func(ctx context.Context) error
	// OnTeardown runs when sign-out leaves the authorized state.
	OnTeardown func()
}

// Gate is long-lived; there is no terminal state. Sign-out is the only reset
// and returns to StateUnauthenticated from anywhere.
type Gate struct {
	mu    sync.Mutex
	state State
	hooks Hooks
}

func New(hooks Hooks) *Gate {
	return &Gate{state: StateUnauthenticated, hooks: hooks}
}

func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// SignedIn moves out of unauthenticated after a successful sign-in,
// branching on the approval decision.
func (g *Gate) SignedIn(ctx context.Context, approved bool) error {
	g.mu.Lock()
	if g.state != StateUnauthenticated {
		state := g.state
		g.mu.Unlock()
		return fmt.Errorf("%w: sign-in from %s", ErrInvalidTransition, state)
	}
	if !approved {
		g.state = StatePendingApproval
		g.mu.Unlock()
		return nil
	}
	g.state = StateAuthorized
	g.mu.Unlock()
	return g.runOnAuthorized(ctx)
}

// ApprovalObserved promotes a pending identity after a manual re-check found
// the approval flag set.
func (g *Gate) ApprovalObserved(ctx context.Context) error {
	g.mu.Lock()
	if g.state != StatePendingApproval {
		state := g.state
		g.mu.Unlock()
		return fmt.Errorf("%w: approval observed from %s", ErrInvalidTransition, state)
	}
	g.state = StateAuthorized
	g.mu.Unlock()
	return g.runOnAuthorized(ctx)
}

// SignedOut resets the machine from any state. Dependent state is torn down
// only when authorized was actually entered.
func (g *Gate) SignedOut() {
	g.mu.Lock()
	wasAuthorized := g.state == StateAuthorized
	g.state = StateUnauthenticated
	g.mu.Unlock()
	if wasAuthorized && g.hooks.OnTeardown != nil {
		g.hooks.OnTeardown()
	}
}

// RecoveryDetected enters credential recovery from a password-reset link.
func (g *Gate) RecoveryDetected() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateUnauthenticated {
		return fmt.Errorf("%w: recovery from %s", ErrInvalidTransition, g.state)
	}
	g.state = StateRecovery
	return nil
}

// PasswordUpdated leaves recovery and forces a fresh sign-in.
func (g *Gate) PasswordUpdated() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateRecovery {
		return fmt.Errorf("%w: password update from %s", ErrInvalidTransition, g.state)
	}
	g.state = StateUnauthenticated
	return nil
}

func (g *Gate) runOnAuthorized(ctx context.Context) error {
	if g.hooks.OnAuthorized == nil {
		return nil
	}
	return g.hooks.OnAuthorized(ctx)
}
