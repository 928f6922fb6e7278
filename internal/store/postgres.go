package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// Change kinds published after successful writes. They mirror the row-level
// notifications delivered over the realtime feed.
const (
	ChangeInsert = "INSERT"
	ChangeUpdate = "UPDATE"
	ChangeDelete = "DELETE"
)

// Watched collection names as they appear on the change feed.
const (
	TableEvents = "events"
	TableUnits  = "units"
)

// ErrLastUnit is returned when a delete would leave the unit table empty.
var ErrLastUnit = errors.New("cannot delete the last unit")

// ChangePublisher receives row changes after they commit. Implemented by the
// realtime publisher; a nil publisher disables the feed (local-only mode).
type ChangePublisher interface {
	EventChanged(ctx context.Context, kind string, event Event)
	UnitChanged(ctx context.Context, kind string, unit Unit)
}

type PostgresStore struct {
	db  *sql.DB
	pub ChangePublisher
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// SetChangePublisher attaches the realtime feed. Must be called before the
// store sees traffic.
func (s *PostgresStore) SetChangePublisher(pub ChangePublisher) {
	s.pub = pub
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// IsUniqueViolation reports whether err is a unique-constraint violation.
// Duplicate profile creation races resolve through this rather than failing.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// ---- profiles ----

const profileColumns = `id, full_name, email, role, is_approved, COALESCE(password_hash, ''), created_at, updated_at`

func scanProfile(row *sql.Row) (Profile, error) {
	var p Profile
	err := row.Scan(&p.ID, &p.FullName, &p.Email, &p.Role, &p.IsApproved, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func (s *PostgresStore) GetProfile(ctx context.Context, id string) (Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id=$1`, id))
}

func (s *PostgresStore) GetProfileByEmail(ctx context.Context, email string) (Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE LOWER(email)=LOWER(TRIM($1))`, email))
}

func (s *PostgresStore) InsertProfile(ctx context.Context, p Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, full_name, email, role, is_approved, password_hash)
		VALUES ($1, $2, LOWER(TRIM($3)), $4, $5, NULLIF($6, ''))
	`, p.ID, p.FullName, p.Email, p.Role, p.IsApproved, p.PasswordHash)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// ClaimProfile attaches a freshly signed-up identity to a profile row an
// administrator pre-provisioned by email. Only unclaimed rows (placeholder
// "pre_" ids) are eligible.
func (s *PostgresStore) ClaimProfile(ctx context.Context, id, email string) (Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, `
		UPDATE profiles SET id=$1, updated_at=NOW()
		WHERE LOWER(email)=LOWER(TRIM($2)) AND id LIKE 'pre\_%'
		RETURNING `+profileColumns, id, email))
}

func (s *PostgresStore) ApproveProfile(ctx context.Context, id string, approved bool) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET is_approved=$2, updated_at=NOW() WHERE id=$1`, id, approved)
	if err != nil {
		return fmt.Errorf("approve profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProfileName(ctx context.Context, id, fullName string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET full_name=$2, updated_at=NOW() WHERE id=$1`, id, fullName)
	if err != nil {
		return fmt.Errorf("update profile name: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProfileRole(ctx context.Context, id, role string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET role=$2, updated_at=NOW() WHERE id=$1`, id, role)
	if err != nil {
		return fmt.Errorf("update profile role: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProfilePassword(ctx context.Context, id, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE profiles SET password_hash=$2, updated_at=NOW() WHERE id=$1`, id, passwordHash)
	if err != nil {
		return fmt.Errorf("update profile password: %w", err)
	}
	return nil
}

// ---- password resets ----

func (s *PostgresStore) CreatePasswordReset(ctx context.Context, profileID, token string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, profile_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, profileID, expiresAt)
	if err != nil {
		return fmt.Errorf("create password reset: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPasswordReset(ctx context.Context, token string) (string, error) {
	var profileID string
	err := s.db.QueryRowContext(ctx, `
		SELECT profile_id FROM password_resets
		WHERE token=$1 AND used_at IS NULL AND expires_at > NOW()
	`, token).Scan(&profileID)
	if err != nil {
		return "", err
	}
	return profileID, nil
}

func (s *PostgresStore) MarkPasswordResetUsed(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE password_resets SET used_at=NOW() WHERE token=$1`, token)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

// ---- units ----

const unitColumns = `id, name, color, created_at, updated_at`

func (s *PostgresStore) ListUnits(ctx context.Context) ([]Unit, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+unitColumns+` FROM units ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}
	defer rows.Close()

	var units []Unit
	for rows.Next() {
		var u Unit
		if err := rows.Scan(&u.ID, &u.Name, &u.Color, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

func (s *PostgresStore) CountUnits(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM units`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}
	return count, nil
}

func (s *PostgresStore) InsertUnit(ctx context.Context, u Unit) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO units (id, name, color)
		VALUES ($1, $2, $3)
		RETURNING created_at, updated_at
	`, u.ID, u.Name, u.Color).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert unit: %w", err)
	}
	s.publishUnit(ctx, ChangeInsert, u)
	return nil
}

func (s *PostgresStore) UpdateUnit(ctx context.Context, id, name, color string) (Unit, error) {
	var u Unit
	err := s.db.QueryRowContext(ctx, `
		UPDATE units SET name=$2, color=$3, updated_at=NOW()
		WHERE id=$1
		RETURNING `+unitColumns, id, name, color).
		Scan(&u.ID, &u.Name, &u.Color, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return Unit{}, fmt.Errorf("update unit: %w", err)
	}
	s.publishUnit(ctx, ChangeUpdate, u)
	return u, nil
}

// DeleteUnit removes a unit unless it is the last one. The count runs over
// row-locked units, so of two concurrent deletes one blocks until the other
// commits and then sees the reduced count. A plain COUNT(*) under read
// committed would let both pass.
func (s *PostgresStore) DeleteUnit(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete unit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM (SELECT id FROM units FOR UPDATE) locked`).Scan(&count); err != nil {
		return fmt.Errorf("count units: %w", err)
	}
	if count <= 1 {
		return ErrLastUnit
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM units WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete unit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete unit: %w", err)
	}
	s.publishUnit(ctx, ChangeDelete, Unit{ID: id})
	return nil
}

// ---- events ----

const eventColumns = `id, title, description, start_time, end_time, unit_id, created_by, type, status, created_at, updated_at`

func scanEvent(scan func(dest ...any) error) (Event, error) {
	var e Event
	err := scan(&e.ID, &e.Title, &e.Description, &e.StartTime, &e.EndTime,
		&e.UnitID, &e.CreatedBy, &e.Type, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func (s *PostgresStore) GetEvent(ctx context.Context, id string) (Event, error) {
	return scanEvent(s.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id=$1`, id).Scan)
}

func (s *PostgresStore) ListEvents(ctx context.Context) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events ORDER BY start_time, id`)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) InsertEvent(ctx context.Context, e Event) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO events (id, title, description, start_time, end_time, unit_id, created_by, type, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at, updated_at
	`, e.ID, e.Title, e.Description, e.StartTime, e.EndTime, e.UnitID, e.CreatedBy, e.Type, e.Status).
		Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	s.publishEvent(ctx, ChangeInsert, e)
	return nil
}

func (s *PostgresStore) UpdateEvent(ctx context.Context, e Event) (Event, error) {
	updated, err := scanEvent(s.db.QueryRowContext(ctx, `
		UPDATE events
		SET title=$2, description=$3, start_time=$4, end_time=$5, unit_id=$6, type=$7, status=$8, updated_at=NOW()
		WHERE id=$1
		RETURNING `+eventColumns,
		e.ID, e.Title, e.Description, e.StartTime, e.EndTime, e.UnitID, e.Type, e.Status).Scan)
	if err != nil {
		return Event{}, fmt.Errorf("update event: %w", err)
	}
	s.publishEvent(ctx, ChangeUpdate, updated)
	return updated, nil
}

func (s *PostgresStore) UpdateEventStatus(ctx context.Context, id, status string) (Event, error) {
	updated, err := scanEvent(s.db.QueryRowContext(ctx, `
		UPDATE events SET status=$2, updated_at=NOW()
		WHERE id=$1
		RETURNING `+eventColumns, id, status).Scan)
	if err != nil {
		return Event{}, fmt.Errorf("update event status: %w", err)
	}
	s.publishEvent(ctx, ChangeUpdate, updated)
	return updated, nil
}

func (s *PostgresStore) DeleteEvent(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id=$1`, id); err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	s.publishEvent(ctx, ChangeDelete, Event{ID: id})
	return nil
}

// SearchEvents is the ILIKE fallback used when Meilisearch is not configured.
func (s *PostgresStore) SearchEvents(ctx context.Context, query string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+` FROM events
		WHERE title ILIKE '%' || $1 || '%' OR description ILIKE '%' || $1 || '%'
		ORDER BY start_time DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (s *PostgresStore) publishEvent(ctx context.Context, kind string, e Event) {
	if s.pub != nil {
		s.pub.EventChanged(ctx, kind, e)
	}
}

func (s *PostgresStore) publishUnit(ctx context.Context, kind string, u Unit) {
	if s.pub != nil {
		s.pub.UnitChanged(ctx, kind, u)
	}
}
