package store

import "time"

// Profile is the application-level user record, distinct from the
// authenticated identity. Exactly one profile exists per identity; the row
// may be provisioned by an administrator (keyed by email) before the user's
// first sign-in and claimed afterwards.
type Profile struct {
	ID           string
	FullName     string
	Email        string
	Role         string
	IsApproved   bool
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Unit is a court unit (Civil, Penal, Familia, ...). Name is mutable and
// non-unique; events reference units by id so a rename never touches them.
type Unit struct {
	ID        string
	Name      string
	Color     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Event struct {
	ID          string
	Title       string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	UnitID      string
	CreatedBy   string
	Type        string
	Status      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const (
	EventTypeHearing  = "audiencia"
	EventTypeMeeting  = "reunion"
	EventTypeTask     = "tarea"
	EventTypeReminder = "recordatorio"

	StatusPending   = "pendiente"
	StatusCompleted = "completado"
	StatusCancelled = "cancelado"
)

// UnitColors is the fixed palette a unit may use.
var UnitColors = []string{"blue", "red", "purple", "green", "amber", "slate", "rose", "indigo"}

func ValidUnitColor(color string) bool {
	for _, c := range UnitColors {
		if c == color {
			return true
		}
	}
	return false
}

func ValidEventType(t string) bool {
	switch t {
	case EventTypeHearing, EventTypeMeeting, EventTypeTask, EventTypeReminder:
		return true
	}
	return false
}

func ValidEventStatus(s string) bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
