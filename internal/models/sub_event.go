package models

import "time"

// SubEventStatus tracks whether a session still takes place.
type SubEventStatus string

const (
	SubEventStatusScheduled SubEventStatus = "scheduled"
	SubEventStatusCancelled SubEventStatus = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s SubEventStatus) Valid() bool {
	return s == SubEventStatusScheduled || s == SubEventStatusCancelled
}

// SubEvent is a scheduled session nested under an event.
type SubEvent struct {
	ID                   string         `db:"id" json:"id"`
	EventID              string         `db:"event_id" json:"event_id"`
	Title                string         `db:"title" json:"title"`
	Description          string         `db:"description" json:"description"`
	StartTime            time.Time      `db:"start_time" json:"start_time"`
	EndTime              time.Time      `db:"end_time" json:"end_time"`
	Venue                string         `db:"venue" json:"venue"`
	Price                float64        `db:"price" json:"price"`
	TotalSeats           *int           `db:"total_seats" json:"total_seats"`
	RequiresRegistration bool           `db:"requires_registration" json:"requires_registration"`
	Status               SubEventStatus `db:"status" json:"status"`
	Version              int64          `db:"version" json:"version"`
	CreatedAt            time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at" json:"updated_at"`
}

// Unbounded reports whether the session has no seat limit.
func (s *SubEvent) Unbounded() bool {
	return s.TotalSeats == nil
}

// EnforcesCapacity reports whether registrations are bounded by TotalSeats.
func (s *SubEvent) EnforcesCapacity() bool {
	return s.RequiresRegistration && !s.Unbounded()
}

// SubEventFilter constrains listing queries.
type SubEventFilter struct {
	EventID string
	Status  []SubEventStatus
}

// SubEventView is a sub-event together with its live seat usage.
type SubEventView struct {
	SubEvent
	ActiveRegistrations int  `json:"active_registrations"`
	SeatsRemaining      *int `json:"seats_remaining"`
}
