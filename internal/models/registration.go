package models

import (
	"strings"
	"time"
)

// TargetType distinguishes what a registration points at.
type TargetType string

const (
	TargetEvent    TargetType = "event"
	TargetSubEvent TargetType = "sub_event"
)

// Valid reports whether t is a known target type.
func (t TargetType) Valid() bool {
	return t == TargetEvent || t == TargetSubEvent
}

// Target references an event or a sub-event.
type Target struct {
	Type TargetType `json:"type" validate:"required,oneof=event sub_event"`
	ID   string     `json:"id" validate:"required"`
}

// RegistrationType separates known principals from external guests.
type RegistrationType string

const (
	RegistrationInternal RegistrationType = "internal"
	RegistrationExternal RegistrationType = "external"
)

// Valid reports whether t is a known registration type.
func (t RegistrationType) Valid() bool {
	return t == RegistrationInternal || t == RegistrationExternal
}

// RegistrationStatus is either active or cancelled.
type RegistrationStatus string

const (
	RegistrationActive    RegistrationStatus = "active"
	RegistrationCancelled RegistrationStatus = "cancelled"
)

// Contact is the denormalized record carried by external registrations.
type Contact struct {
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"required,email"`
	Phone string `json:"phone,omitempty"`
}

// Registration is a participant's enrollment in an event or sub-event.
type Registration struct {
	ID           string             `db:"id" json:"id"`
	TargetType   TargetType         `db:"target_type" json:"target_type"`
	TargetID     string             `db:"target_id" json:"target_id"`
	PrincipalID  *string            `db:"principal_id" json:"principal_id,omitempty"`
	ContactName  *string            `db:"contact_name" json:"contact_name,omitempty"`
	ContactEmail *string            `db:"contact_email" json:"contact_email,omitempty"`
	ContactPhone *string            `db:"contact_phone" json:"contact_phone,omitempty"`
	Type         RegistrationType   `db:"type" json:"type"`
	Status       RegistrationStatus `db:"status" json:"status"`
	CreatedBy    string             `db:"created_by" json:"created_by"`
	CreatedAt    time.Time          `db:"created_at" json:"created_at"`
	CancelledAt  *time.Time         `db:"cancelled_at" json:"cancelled_at,omitempty"`
}

// Target returns the registration's target reference.
func (r *Registration) Target() Target {
	return Target{Type: r.TargetType, ID: r.TargetID}
}

// HolderKey identifies the registrant for duplicate detection.
func (r *Registration) HolderKey() string {
	if r.PrincipalID != nil {
		return "principal:" + *r.PrincipalID
	}
	if r.ContactEmail != nil {
		return "contact:" + strings.ToLower(*r.ContactEmail)
	}
	return ""
}

// RegistrationFilter constrains listing queries.
type RegistrationFilter struct {
	TargetType  TargetType
	TargetID    string
	EventID     string
	PrincipalID string
	Status      RegistrationStatus
	Page        int
	PageSize    int
}

// RosterEntry is a registration flattened for attendee exports.
type RosterEntry struct {
	RegistrationID string             `db:"registration_id" json:"registration_id"`
	TargetType     TargetType         `db:"target_type" json:"target_type"`
	TargetID       string             `db:"target_id" json:"target_id"`
	TargetTitle    string             `db:"target_title" json:"target_title"`
	Type           RegistrationType   `db:"type" json:"type"`
	Name           string             `db:"name" json:"name"`
	Email          string             `db:"email" json:"email"`
	Phone          string             `db:"phone" json:"phone,omitempty"`
	Status         RegistrationStatus `db:"status" json:"status"`
	CreatedAt      time.Time          `db:"created_at" json:"created_at"`
}
