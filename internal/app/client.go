// Package app wires the collaborators into the client runtime the rendering
// layer talks to: authentication, the approval gate, the local replica, the
// realtime feed, presence, search, export and the fallback cache.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"

	"tribunalsync/client/internal/analysis"
	"tribunalsync/client/internal/auth"
	"tribunalsync/client/internal/authpw"
	"tribunalsync/client/internal/cache"
	"tribunalsync/client/internal/config"
	"tribunalsync/client/internal/email"
	"tribunalsync/client/internal/export"
	"tribunalsync/client/internal/gate"
	"tribunalsync/client/internal/identity"
	"tribunalsync/client/internal/presence"
	"tribunalsync/client/internal/profile"
	"tribunalsync/client/internal/realtime"
	"tribunalsync/client/internal/replica"
	"tribunalsync/client/internal/search"
	"tribunalsync/client/internal/session"
	"tribunalsync/client/internal/sharelink"
	"tribunalsync/client/internal/store"
	"tribunalsync/client/internal/util"
)

type dataStore interface {
	GetProfile(context.Context, string) (store.Profile, error)
	ApproveProfile(context.Context, string, bool) error
	ListUnits(context.Context) ([]store.Unit, error)
	InsertUnit(context.Context, store.Unit) error
	UpdateUnit(context.Context, string, string, string) (store.Unit, error)
	DeleteUnit(context.Context, string) error
	GetEvent(context.Context, string) (store.Event, error)
	ListEvents(context.Context) ([]store.Event, error)
	InsertEvent(context.Context, store.Event) error
	UpdateEvent(context.Context, store.Event) (store.Event, error)
	UpdateEventStatus(context.Context, string, string) (store.Event, error)
	DeleteEvent(context.Context, string) error
	Ping(ctx context.Context) error
}

// Client owns the session lifecycle and the write API. Writes go to the row
// store; the replica is mutated by the realtime echo when Redis is wired, or
// directly in local mode.
type Client struct {
	cfg      config.Config
	store    dataStore
	auth     *authpw.Service
	resolver *profile.Resolver
	identity *identity.Store
	sessions *session.RedisStore
	search   *search.Service
	cache    *cache.Store
	mailer   *email.Service
	redis    *redis.Client

	gate    *gate.Gate
	replica *replica.Replica
	feed    *presence.Feed

	mu           sync.Mutex
	sub          *realtime.Subscriber
	tracker      *presence.Tracker
	profile      store.Profile
	refreshToken string
	refreshHash  string
	actorNames   map[string]string
}

// New builds the client runtime. redisClient may be nil for the local-only
// variant; sessions, searchSvc, cacheStore and mailer are optional too.
func New(cfg config.Config, dataStore *store.PostgresStore, redisClient *redis.Client, sessions *session.RedisStore, searchSvc *search.Service, cacheStore *cache.Store, mailer *email.Service) *Client {
	policy := identity.NewAdminPolicy(cfg.AdminEmail)
	c := &Client{
		cfg:      cfg,
		store:    dataStore,
		auth:     authpw.NewService(dataStore, policy),
		resolver: profile.NewResolver(dataStore, policy),
		identity: identity.NewStore(policy),
		sessions: sessions,
		search:   searchSvc,
		cache:    cacheStore,
		mailer:   mailer,
		redis:    redisClient,
		replica:  replica.New(),
		feed:     presence.NewFeed(presence.DefaultFeedCap),
	}
	c.gate = gate.New(gate.Hooks{
		OnAuthorized: c.onAuthorized,
		OnTeardown:   c.onTeardown,
	})
	c.identity.OnChange(c.onIdentityChange)
	return c
}

// onIdentityChange runs synchronously on every identity swap. Principal-scoped
// state is dropped before the caller of Set or Clear regains control, so a
// profile or refresh token from the previous principal is never observable.
func (c *Client) onIdentityChange(id identity.Identity) {
	c.mu.Lock()
	c.profile = store.Profile{}
	if id.IsZero() {
		c.refreshToken = ""
		c.refreshHash = ""
	}
	c.mu.Unlock()
}

// State exposes the gate state for the rendering layer.
func (c *Client) State() gate.State {
	return c.gate.State()
}

// Identity returns the current principal, zero when signed out.
func (c *Client) Identity() identity.Identity {
	return c.identity.Current()
}

// Profile returns the resolved profile for the current principal.
func (c *Client) Profile() store.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// RefreshToken returns the opaque refresh token issued at sign-in, for the
// caller to persist across restarts. Empty when sessions are not wired.
func (c *Client) RefreshToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshToken
}

// Online reports whether the realtime subscription is currently healthy.
func (c *Client) Online() bool {
	c.mu.Lock()
	sub := c.sub
	c.mu.Unlock()
	return sub != nil && sub.Online()
}

// Activity returns the bounded activity feed, newest first.
func (c *Client) Activity() []presence.Activity {
	return c.feed.Items()
}

// OnlineMembers lists connected users, one entry per identity.
func (c *Client) OnlineMembers(ctx context.Context) ([]presence.Member, error) {
	c.mu.Lock()
	tracker := c.tracker
	c.mu.Unlock()
	if tracker == nil {
		return nil, nil
	}
	members, err := tracker.Online(ctx)
	if err != nil {
		return nil, err
	}
	return presence.DedupMembers(members), nil
}

// Units returns the replica's unit list sorted by name.
func (c *Client) Units() []store.Unit {
	return c.replica.Units()
}

// Events returns the replica's events filtered by unit and type, sorted by
// start time. Empty filters match everything.
func (c *Client) Events(unitID, eventType string) []store.Event {
	return c.replica.Events(unitID, eventType)
}

// UnitName resolves a unit label for display, with a fallback for dangling
// references.
func (c *Client) UnitName(id string) string {
	return c.replica.UnitName(id)
}

// SignUp registers a principal and signs it in. The returned state tells the
// caller whether the account still waits for approval.
func (c *Client) SignUp(ctx context.Context, emailAddr, password, displayName string) (gate.State, error) {
	p, err := c.auth.SignUp(ctx, authpw.SignUpRequest{
		Email:       emailAddr,
		Password:    password,
		DisplayName: displayName,
	})
	if err != nil {
		return c.gate.State(), err
	}
	return c.establishSession(ctx, p)
}

// SignIn authenticates a principal and opens or parks the gate depending on
// its approval.
func (c *Client) SignIn(ctx context.Context, emailAddr, password string) (gate.State, error) {
	p, err := c.auth.SignIn(ctx, emailAddr, password)
	if err != nil {
		return c.gate.State(), err
	}
	return c.establishSession(ctx, p)
}

// Restore resumes a session from a persisted refresh token.
func (c *Client) Restore(ctx context.Context, refreshToken string) (gate.State, error) {
	if c.sessions == nil {
		return c.gate.State(), ErrNotSignedIn
	}
	hash := auth.HashToken(refreshToken)
	data, err := c.sessions.LookupRefreshSession(ctx, hash)
	if err != nil {
		return c.gate.State(), fmt.Errorf("restore session: %w", err)
	}
	p, err := c.resolver.Resolve(ctx, data.UserID, data.Email, data.DisplayName)
	if err != nil {
		return c.gate.State(), err
	}
	_ = c.sessions.RevokeRefreshSession(ctx, hash)
	return c.establishSession(ctx, p)
}

func (c *Client) establishSession(ctx context.Context, p store.Profile) (gate.State, error) {
	// A sign-in over a live session replaces it wholesale: revoke and tear
	// down the old one so the new principal starts from a closed gate and
	// an empty replica.
	if c.gate.State() != gate.StateUnauthenticated {
		c.SignOut(ctx)
	}

	token, err := c.issueAccessToken(p)
	if err != nil {
		return c.gate.State(), err
	}
	c.identity.Set(identity.Identity{
		UserID:      p.ID,
		Email:       p.Email,
		DisplayName: p.FullName,
		Token:       token,
	})
	c.mu.Lock()
	c.profile = p
	c.mu.Unlock()
	c.saveRefreshSession(ctx, p)

	approved := c.identity.Policy().IsApproved(p.Email, p)
	err = c.gate.SignedIn(ctx, approved)
	return c.gate.State(), err
}

func (c *Client) issueAccessToken(p store.Profile) (string, error) {
	return auth.IssueToken([]byte(c.cfg.TokenSecret), auth.Claims{
		Sub:   p.ID,
		Email: p.Email,
		Name:  p.FullName,
		Role:  p.Role,
		JTI:   util.NewID("jti"),
		Exp:   time.Now().Add(c.cfg.AccessTTL).Unix(),
	})
}

func (c *Client) saveRefreshSession(ctx context.Context, p store.Profile) {
	if c.sessions == nil {
		return
	}
	token := util.NewID("rt")
	hash := auth.HashToken(token)
	data := session.TokenData{
		UserID:      p.ID,
		Email:       p.Email,
		DisplayName: p.FullName,
		Role:        p.Role,
		CreatedAt:   time.Now().UTC(),
	}
	if err := c.sessions.SaveRefreshSession(ctx, hash, data, time.Now().Add(c.cfg.RefreshTTL)); err != nil {
		log.Printf("app: save refresh session: %v", err)
		return
	}
	c.mu.Lock()
	c.refreshToken = token
	c.refreshHash = hash
	c.mu.Unlock()
}

// SignOut revokes the refresh session, clears the identity and tears down
// the authorized surface. Valid from any gate state.
func (c *Client) SignOut(ctx context.Context) {
	c.mu.Lock()
	hash := c.refreshHash
	c.mu.Unlock()
	if c.sessions != nil && hash != "" {
		if err := c.sessions.RevokeRefreshSession(ctx, hash); err != nil {
			log.Printf("app: revoke refresh session: %v", err)
		}
	}
	// The identity listener drops the cached profile and refresh token.
	c.identity.Clear()
	c.gate.SignedOut()
}

// RequestPasswordReset issues a reset token and mails the link. The result
// never reveals whether the address has an account.
func (c *Client) RequestPasswordReset(ctx context.Context, emailAddr string) error {
	token, err := c.auth.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		return err
	}
	if token == "" || c.mailer == nil {
		return nil
	}
	resetURL := strings.TrimRight(c.cfg.AppBaseURL, "/") + "/reset-password?token=" + token
	if err := c.mailer.SendPasswordResetEmail(emailAddr, "", resetURL); err != nil {
		log.Printf("app: send password reset mail: %v", err)
	}
	return nil
}

// ResetPassword consumes a reset token. The gate passes through the recovery
// state so the UI can force a credential update before anything else.
func (c *Client) ResetPassword(ctx context.Context, token, newPassword string) error {
	if c.gate.State() == gate.StateUnauthenticated {
		if err := c.gate.RecoveryDetected(); err != nil {
			return err
		}
	}
	if err := c.auth.ResetPassword(ctx, token, newPassword); err != nil {
		return err
	}
	if c.gate.State() == gate.StateRecovery {
		return c.gate.PasswordUpdated()
	}
	return nil
}

// RecheckApproval re-reads the profile and promotes a parked session once an
// administrator has flipped the flag.
func (c *Client) RecheckApproval(ctx context.Context) (gate.State, error) {
	id := c.identity.Current()
	if id.IsZero() {
		return c.gate.State(), ErrNotSignedIn
	}
	p, err := c.store.GetProfile(ctx, id.UserID)
	if err != nil {
		return c.gate.State(), fmt.Errorf("recheck approval: %w", err)
	}
	c.mu.Lock()
	c.profile = p
	c.mu.Unlock()
	if c.gate.State() == gate.StatePendingApproval && c.identity.Policy().IsApproved(id.Email, p) {
		err = c.gate.ApprovalObserved(ctx)
	}
	return c.gate.State(), err
}

// ApproveUser flips another account's approval flag. Administrator only.
func (c *Client) ApproveUser(ctx context.Context, profileID string, approved bool) error {
	if !c.identity.IsAdmin() {
		return ErrNotAdmin
	}
	p, err := c.store.GetProfile(ctx, profileID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if err := c.store.ApproveProfile(ctx, profileID, approved); err != nil {
		return err
	}
	if approved && c.mailer != nil {
		if err := c.mailer.SendAccountApprovedEmail(p.Email, p.FullName); err != nil {
			log.Printf("app: send approval mail: %v", err)
		}
	}
	return nil
}

// SaveEvent creates or updates an event. On create the end time defaults to
// one hour after the start.
func (c *Client) SaveEvent(ctx context.Context, e store.Event) (store.Event, error) {
	if err := c.requireAuthorized(); err != nil {
		return store.Event{}, err
	}
	e.Title = strings.TrimSpace(e.Title)
	if e.Title == "" || e.StartTime.IsZero() || e.UnitID == "" {
		return store.Event{}, ErrInvalidInput
	}
	if e.Type == "" {
		e.Type = store.EventTypeHearing
	}
	if e.Status == "" {
		e.Status = store.StatusPending
	}
	if !store.ValidEventType(e.Type) || !store.ValidEventStatus(e.Status) {
		return store.Event{}, ErrInvalidInput
	}

	if e.ID == "" {
		now := time.Now().UTC()
		e.ID = util.NewID("ev")
		e.CreatedBy = c.identity.Current().UserID
		e.CreatedAt = now
		e.UpdatedAt = now
		if e.EndTime.IsZero() {
			e.EndTime = e.StartTime.Add(time.Hour)
		}
		if err := c.store.InsertEvent(ctx, e); err != nil {
			return store.Event{}, fmt.Errorf("create event: %w", err)
		}
		c.afterEventWrite(store.ChangeInsert, e, "created")
		return e, nil
	}

	updated, err := c.store.UpdateEvent(ctx, e)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Event{}, ErrNotFound
		}
		return store.Event{}, fmt.Errorf("update event: %w", err)
	}
	c.afterEventWrite(store.ChangeUpdate, updated, "updated")
	return updated, nil
}

// MoveEvent reschedules an event onto another day, keeping its time of day
// and duration.
func (c *Client) MoveEvent(ctx context.Context, id string, targetDate time.Time) (store.Event, error) {
	if err := c.requireAuthorized(); err != nil {
		return store.Event{}, err
	}
	e, err := c.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Event{}, ErrNotFound
		}
		return store.Event{}, err
	}

	duration := e.EndTime.Sub(e.StartTime)
	if duration <= 0 {
		duration = time.Hour
	}
	start := time.Date(
		targetDate.Year(), targetDate.Month(), targetDate.Day(),
		e.StartTime.Hour(), e.StartTime.Minute(), e.StartTime.Second(),
		e.StartTime.Nanosecond(), e.StartTime.Location(),
	)
	e.StartTime = start
	e.EndTime = start.Add(duration)

	updated, err := c.store.UpdateEvent(ctx, e)
	if err != nil {
		return store.Event{}, fmt.Errorf("move event: %w", err)
	}
	c.afterEventWrite(store.ChangeUpdate, updated, "rescheduled")
	return updated, nil
}

// ToggleEventStatus flips an event between pending and completed. Cancelled
// events are left alone.
func (c *Client) ToggleEventStatus(ctx context.Context, id string) (store.Event, error) {
	if err := c.requireAuthorized(); err != nil {
		return store.Event{}, err
	}
	e, err := c.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Event{}, ErrNotFound
		}
		return store.Event{}, err
	}

	var next string
	switch e.Status {
	case store.StatusPending:
		next = store.StatusCompleted
	case store.StatusCompleted:
		next = store.StatusPending
	default:
		return e, nil
	}

	updated, err := c.store.UpdateEventStatus(ctx, id, next)
	if err != nil {
		return store.Event{}, fmt.Errorf("toggle event status: %w", err)
	}
	c.afterEventWrite(store.ChangeUpdate, updated, "updated")
	return updated, nil
}

// CancelEvent marks an event cancelled without removing it from the agenda.
func (c *Client) CancelEvent(ctx context.Context, id string) (store.Event, error) {
	if err := c.requireAuthorized(); err != nil {
		return store.Event{}, err
	}
	updated, err := c.store.UpdateEventStatus(ctx, id, store.StatusCancelled)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Event{}, ErrNotFound
		}
		return store.Event{}, fmt.Errorf("cancel event: %w", err)
	}
	c.afterEventWrite(store.ChangeUpdate, updated, "cancelled")
	return updated, nil
}

// DeleteEvent removes an event.
func (c *Client) DeleteEvent(ctx context.Context, id string) error {
	if err := c.requireAuthorized(); err != nil {
		return err
	}
	e, err := c.store.GetEvent(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	if err := c.store.DeleteEvent(ctx, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	c.afterEventWrite(store.ChangeDelete, e, "deleted")
	return nil
}

// CreateUnit adds a unit. Color defaults to blue.
func (c *Client) CreateUnit(ctx context.Context, name, color string) (store.Unit, error) {
	if err := c.requireAuthorized(); err != nil {
		return store.Unit{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Unit{}, ErrInvalidInput
	}
	if color == "" {
		color = "blue"
	}
	if !store.ValidUnitColor(color) {
		return store.Unit{}, ErrInvalidInput
	}
	now := time.Now().UTC()
	u := store.Unit{ID: util.NewID("unit"), Name: name, Color: color, CreatedAt: now, UpdatedAt: now}
	if err := c.store.InsertUnit(ctx, u); err != nil {
		return store.Unit{}, fmt.Errorf("create unit: %w", err)
	}
	c.afterUnitWrite(store.ChangeInsert, u)
	return u, nil
}

// RenameUnit changes a unit's label, keeping its color.
func (c *Client) RenameUnit(ctx context.Context, id, name string) (store.Unit, error) {
	if err := c.requireAuthorized(); err != nil {
		return store.Unit{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return store.Unit{}, ErrInvalidInput
	}
	current, err := c.unit(ctx, id)
	if err != nil {
		return store.Unit{}, err
	}
	updated, err := c.store.UpdateUnit(ctx, id, name, current.Color)
	if err != nil {
		return store.Unit{}, fmt.Errorf("rename unit: %w", err)
	}
	c.afterUnitWrite(store.ChangeUpdate, updated)
	return updated, nil
}

// RecolorUnit changes a unit's color, keeping its label.
func (c *Client) RecolorUnit(ctx context.Context, id, color string) (store.Unit, error) {
	if err := c.requireAuthorized(); err != nil {
		return store.Unit{}, err
	}
	if !store.ValidUnitColor(color) {
		return store.Unit{}, ErrInvalidInput
	}
	current, err := c.unit(ctx, id)
	if err != nil {
		return store.Unit{}, err
	}
	updated, err := c.store.UpdateUnit(ctx, id, current.Name, color)
	if err != nil {
		return store.Unit{}, fmt.Errorf("recolor unit: %w", err)
	}
	c.afterUnitWrite(store.ChangeUpdate, updated)
	return updated, nil
}

// DeleteUnit removes a unit. The last remaining unit cannot be deleted.
func (c *Client) DeleteUnit(ctx context.Context, id string) error {
	if err := c.requireAuthorized(); err != nil {
		return err
	}
	if err := c.store.DeleteUnit(ctx, id); err != nil {
		return err
	}
	c.afterUnitWrite(store.ChangeDelete, store.Unit{ID: id})
	return nil
}

// SearchEvents queries the search service, or filters the replica when no
// search backend is wired.
func (c *Client) SearchEvents(ctx context.Context, q search.Query) []search.Result {
	if c.search != nil {
		return c.search.Search(ctx, q)
	}
	needle := strings.ToLower(strings.TrimSpace(q.Text))
	results := []search.Result{}
	for _, e := range c.replica.Events(q.FilterUnitID, q.FilterType) {
		if needle != "" &&
			!strings.Contains(strings.ToLower(e.Title), needle) &&
			!strings.Contains(strings.ToLower(e.Description), needle) {
			continue
		}
		results = append(results, search.Result{
			ID:        e.ID,
			Title:     e.Title,
			Snippet:   e.Description,
			UnitID:    e.UnitID,
			Type:      e.Type,
			Status:    e.Status,
			StartTime: e.StartTime,
		})
		if q.Limit > 0 && len(results) >= q.Limit {
			break
		}
	}
	return results
}

// AnalyzeSchedule builds the executive summary of one day's agenda from the
// replica snapshot.
func (c *Client) AnalyzeSchedule(day time.Time) (analysis.Report, error) {
	if err := c.requireAuthorized(); err != nil {
		return analysis.Report{}, err
	}
	return analysis.Analyze(day, c.replica.Events("", ""), c.replica.UnitName), nil
}

// ExportCSV renders the current agenda snapshot as a CSV download.
func (c *Client) ExportCSV(ctx context.Context) (*export.Result, error) {
	rows := export.Rows(c.replica.Events("", ""), c.replica.UnitName)
	result, err := export.CSV(rows)
	if err != nil {
		return nil, err
	}
	c.notifyAction(ctx, "exported", "agenda CSV")
	return result, nil
}

// ExportPDF renders the current agenda snapshot through headless Chrome.
func (c *Client) ExportPDF(ctx context.Context) (*export.Result, error) {
	rows := export.Rows(c.replica.Events("", ""), c.replica.UnitName)
	result, err := export.PDF(rows)
	if err != nil {
		return nil, err
	}
	c.notifyAction(ctx, "exported", "agenda PDF")
	return result, nil
}

// ShareLink encodes the current snapshot into a URL fragment for read-only
// sharing.
func (c *Client) ShareLink() (string, error) {
	units, events := c.replica.Snapshot()
	return sharelink.Encode(units, events)
}

// ImportShareLink loads a shared snapshot into the replica. Meant for the
// local-only viewer; rejects malformed fragments.
func (c *Client) ImportShareLink(fragment string) error {
	units, events, err := sharelink.Decode(fragment)
	if err != nil {
		return err
	}
	c.replica.Reset()
	c.replica.LoadInitial(units, events)
	return nil
}

// LoadFromCache fills the replica from the on-disk fallback blobs. Used on
// start when the backend is unreachable.
func (c *Client) LoadFromCache() error {
	if c.cache == nil {
		return cache.ErrNotFound
	}
	var units []store.Unit
	if err := c.cache.Load(cache.KeyUnits, &units); err != nil {
		return err
	}
	var events []store.Event
	if err := c.cache.Load(cache.KeyEvents, &events); err != nil {
		return err
	}
	c.replica.Reset()
	c.replica.LoadInitial(units, events)
	return nil
}

// Close releases the realtime and presence resources and flushes the cache.
func (c *Client) Close() {
	c.onTeardown()
}

func (c *Client) requireAuthorized() error {
	if c.gate.State() != gate.StateAuthorized {
		return ErrNotAuthorized
	}
	return nil
}

func (c *Client) unit(ctx context.Context, id string) (store.Unit, error) {
	if u, ok := c.replica.Unit(id); ok {
		return u, nil
	}
	units, err := c.store.ListUnits(ctx)
	if err != nil {
		return store.Unit{}, err
	}
	for _, u := range units {
		if u.ID == id {
			return u, nil
		}
	}
	return store.Unit{}, ErrNotFound
}

// afterEventWrite settles local state after a successful store write. With
// Redis wired the replica and the activity feed converge through the change
// echo; in local mode both are updated here.
func (c *Client) afterEventWrite(kind string, e store.Event, action string) {
	if c.redis == nil {
		c.replica.ApplyEventChange(kind, e)
		c.feed.RecordRemote(c.identity.Current().DisplayName, action, e.Title, time.Now())
	}
	if c.search != nil {
		if kind == store.ChangeDelete {
			c.search.DeleteEvent(e.ID)
		} else {
			c.search.IndexEvent(search.RecordFromEvent(e))
		}
	}
	c.saveSnapshot()
}

func (c *Client) afterUnitWrite(kind string, u store.Unit) {
	if c.redis == nil {
		c.replica.ApplyUnitChange(kind, u)
	}
	c.saveSnapshot()
}

// notifyAction broadcasts an action that has no change-feed echo, so peers
// still see it in the activity feed.
func (c *Client) notifyAction(ctx context.Context, action, target string) {
	c.mu.Lock()
	tracker := c.tracker
	c.mu.Unlock()
	if tracker != nil {
		tracker.NotifyLocalAction(ctx, action, target)
		return
	}
	c.feed.RecordRemote(c.identity.Current().DisplayName, action, target, time.Now())
}

func (c *Client) saveSnapshot() {
	if c.cache == nil {
		return
	}
	units, events := c.replica.Snapshot()
	c.cache.SaveDebounced(cache.KeyUnits, units)
	c.cache.SaveDebounced(cache.KeyEvents, events)
}

// onAuthorized is the gate's entry hook: bulk load, then subscribe. A load
// failure falls back to cached data and surfaces as a connectivity error
// without closing the gate again.
func (c *Client) onAuthorized(ctx context.Context) error {
	units, err := c.store.ListUnits(ctx)
	if err != nil {
		return c.recoverFromCache(fmt.Errorf("load units: %w", err))
	}
	events, err := c.store.ListEvents(ctx)
	if err != nil {
		return c.recoverFromCache(fmt.Errorf("load events: %w", err))
	}
	c.replica.Reset()
	c.replica.LoadInitial(units, events)
	c.saveSnapshot()

	if c.search != nil && len(events) > 0 {
		records := make([]search.EventRecord, 0, len(events))
		for _, e := range events {
			records = append(records, search.RecordFromEvent(e))
		}
		go c.search.ReindexAll(records)
	}

	if c.redis != nil {
		sub := realtime.NewSubscriber(c.redis, c.replica, c.feed)
		sub.OnResolveActor(c.actorName)
		if err := sub.Start(ctx); err != nil {
			log.Printf("app: realtime subscribe: %v", err)
		} else {
			c.mu.Lock()
			c.sub = sub
			c.mu.Unlock()
		}

		tracker := presence.NewTracker(c.redis, c.feed)
		id := c.identity.Current()
		member := presence.Member{UserID: id.UserID, FullName: id.DisplayName, Role: c.Profile().Role}
		if err := tracker.Announce(ctx, member); err != nil {
			log.Printf("app: presence announce: %v", err)
		} else {
			c.mu.Lock()
			c.tracker = tracker
			c.mu.Unlock()
		}
	}
	return nil
}

// actorName resolves a profile id to a display name for the activity feed.
// Lookups are memoized for the life of the session.
func (c *Client) actorName(userID string) string {
	if id := c.identity.Current(); id.UserID == userID {
		return id.DisplayName
	}
	c.mu.Lock()
	if name, ok := c.actorNames[userID]; ok {
		c.mu.Unlock()
		return name
	}
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	p, err := c.store.GetProfile(ctx, userID)
	if err != nil {
		return ""
	}
	c.mu.Lock()
	if c.actorNames == nil {
		c.actorNames = make(map[string]string)
	}
	c.actorNames[userID] = p.FullName
	c.mu.Unlock()
	return p.FullName
}

func (c *Client) recoverFromCache(cause error) error {
	if c.cache == nil {
		return cause
	}
	var units []store.Unit
	var events []store.Event
	if err := c.cache.Load(cache.KeyUnits, &units); err != nil {
		return cause
	}
	if err := c.cache.Load(cache.KeyEvents, &events); err != nil {
		return cause
	}
	c.replica.Reset()
	c.replica.LoadInitial(units, events)
	log.Printf("app: backend unreachable, serving cached agenda: %v", cause)
	return cause
}

// onTeardown is the gate's exit hook, also used on process shutdown.
func (c *Client) onTeardown() {
	c.mu.Lock()
	sub := c.sub
	tracker := c.tracker
	c.sub = nil
	c.tracker = nil
	c.profile = store.Profile{}
	c.actorNames = nil
	c.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	if tracker != nil {
		tracker.Close()
	}
	if c.cache != nil {
		c.cache.Flush()
	}
	c.replica.Reset()
	c.feed.Reset()
}
