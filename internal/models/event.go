package models

import (
	"strings"
	"time"
)

// EventStatus captures the approval workflow of an event.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusApproved  EventStatus = "approved"
	EventStatusRejected  EventStatus = "rejected"
	EventStatusCompleted EventStatus = "completed"
)

// Valid reports whether s is one of the known statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusPending, EventStatusApproved, EventStatusRejected, EventStatusCompleted:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s EventStatus) Terminal() bool {
	return s == EventStatusRejected || s == EventStatusCompleted
}

// eventTransitions lists every allowed edge of the event state graph.
var eventTransitions = map[EventStatus][]EventStatus{
	EventStatusPending:  {EventStatusApproved, EventStatusRejected},
	EventStatusApproved: {EventStatusCompleted, EventStatusRejected},
}

// CanTransition reports whether from -> to is an edge of the state graph.
func CanTransition(from, to EventStatus) bool {
	for _, next := range eventTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// EventCategory is the closed set accepted by events_category_check.
type EventCategory string

const (
	CategoryTechnical EventCategory = "Technical"
	CategoryCultural  EventCategory = "Cultural"
	CategorySports    EventCategory = "Sports"
	CategoryOther     EventCategory = "Other"
)

// Valid reports whether c is one of the known categories.
func (c EventCategory) Valid() bool {
	switch c {
	case CategoryTechnical, CategoryCultural, CategorySports, CategoryOther:
		return true
	}
	return false
}

// Event is a top-level event owned by a college or admin principal.
type Event struct {
	ID        string        `db:"id" json:"id"`
	OwnerID   string        `db:"owner_id" json:"owner_id"`
	Title     string        `db:"title" json:"title"`
	Venue     string        `db:"venue" json:"venue"`
	Location  string        `db:"location" json:"location"`
	Category  EventCategory `db:"category" json:"category"`
	Status    EventStatus   `db:"status" json:"status"`
	Version   int64         `db:"version" json:"version"`
	CreatedAt time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt time.Time     `db:"updated_at" json:"updated_at"`
}

// MissingFields lists the required fields that are empty or invalid.
func (e *Event) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(e.Title) == "" {
		missing = append(missing, "title")
	}
	if strings.TrimSpace(e.Venue) == "" {
		missing = append(missing, "venue")
	}
	if strings.TrimSpace(e.Location) == "" {
		missing = append(missing, "location")
	}
	if !e.Category.Valid() {
		missing = append(missing, "category")
	}
	return missing
}

// EventFilter constrains listing queries.
type EventFilter struct {
	Status   []EventStatus
	OwnerID  string
	Category EventCategory
	// VisibleTo limits results to published events plus those owned by the
	// given principal.
	VisibleTo string
	Page      int
	PageSize  int
}
