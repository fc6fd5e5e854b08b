package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/noah-isme/campus-events-api/internal/models"
)

// IntentKind names a mutation accepted by the gateway.
type IntentKind string

const (
	IntentCreateEvent        IntentKind = "CreateEvent"
	IntentTransitionEvent    IntentKind = "TransitionEvent"
	IntentEditEvent          IntentKind = "EditEvent"
	IntentCreateSubEvent     IntentKind = "CreateSubEvent"
	IntentEditSubEvent       IntentKind = "EditSubEvent"
	IntentCancelSubEvent     IntentKind = "CancelSubEvent"
	IntentRegister           IntentKind = "Register"
	IntentCancelRegistration IntentKind = "CancelRegistration"
	IntentOverrideRole       IntentKind = "OverrideRole"
)

// Intent is a typed mutation request.
type Intent interface {
	Kind() IntentKind
}

// CreateEvent opens a new event in pending status.
type CreateEvent struct {
	Title    string               `json:"title" validate:"required,max=200"`
	Venue    string               `json:"venue" validate:"required,max=200"`
	Location string               `json:"location" validate:"required,max=200"`
	Category models.EventCategory `json:"category" validate:"required,oneof=Technical Cultural Sports Other"`
}

// TransitionEvent moves an event along its status graph.
type TransitionEvent struct {
	EventID         string             `json:"event_id" validate:"required"`
	To              models.EventStatus `json:"to" validate:"required,oneof=pending approved rejected completed"`
	Force           bool               `json:"force"`
	ExpectedVersion int64              `json:"expected_version,omitempty" validate:"gte=0"`
}

// EditEvent patches event fields. Nil fields are left untouched.
type EditEvent struct {
	EventID         string                `json:"event_id" validate:"required"`
	Title           *string               `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Venue           *string               `json:"venue,omitempty" validate:"omitempty,min=1,max=200"`
	Location        *string               `json:"location,omitempty" validate:"omitempty,min=1,max=200"`
	Category        *models.EventCategory `json:"category,omitempty" validate:"omitempty,oneof=Technical Cultural Sports Other"`
	ExpectedVersion int64                 `json:"expected_version,omitempty" validate:"gte=0"`
}

// CreateSubEvent schedules a session under an approved event. Numeric ranges
// are checked by the sub-event model so the failure order stays deterministic.
type CreateSubEvent struct {
	EventID              string    `json:"event_id" validate:"required"`
	Title                string    `json:"title" validate:"required,max=200"`
	Description          string    `json:"description"`
	StartTime            time.Time `json:"start_time" validate:"required"`
	EndTime              time.Time `json:"end_time" validate:"required"`
	Venue                string    `json:"venue"`
	Price                float64   `json:"price"`
	TotalSeats           *int      `json:"total_seats"`
	RequiresRegistration bool      `json:"requires_registration"`
}

// EditSubEvent patches sub-event fields. Nil fields are left untouched;
// UnboundedSeats clears the seat limit.
type EditSubEvent struct {
	SubEventID           string     `json:"sub_event_id" validate:"required"`
	Title                *string    `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Description          *string    `json:"description,omitempty"`
	StartTime            *time.Time `json:"start_time,omitempty"`
	EndTime              *time.Time `json:"end_time,omitempty"`
	Venue                *string    `json:"venue,omitempty"`
	Price                *float64   `json:"price,omitempty"`
	TotalSeats           *int       `json:"total_seats,omitempty"`
	UnboundedSeats       bool       `json:"unbounded_seats,omitempty"`
	RequiresRegistration *bool      `json:"requires_registration,omitempty"`
	ExpectedVersion      int64      `json:"expected_version,omitempty" validate:"gte=0"`
}

// CancelSubEvent soft-deletes a session and its registrations.
type CancelSubEvent struct {
	SubEventID string `json:"sub_event_id" validate:"required"`
}

// Register enrolls a principal or an external contact in a target. An empty
// PrincipalID on an internal registration means the acting principal.
type Register struct {
	Target      models.Target           `json:"target"`
	Type        models.RegistrationType `json:"type" validate:"required,oneof=internal external"`
	PrincipalID string                  `json:"principal_id,omitempty"`
	Contact     *models.Contact         `json:"contact,omitempty" validate:"required_if=Type external"`
}

// CancelRegistration withdraws an active registration.
type CancelRegistration struct {
	RegistrationID string `json:"registration_id" validate:"required"`
}

// OverrideRole changes a principal's role; admin only.
type OverrideRole struct {
	PrincipalID string      `json:"principal_id" validate:"required"`
	Role        models.Role `json:"role" validate:"required,oneof=admin college student"`
}

func (CreateEvent) Kind() IntentKind        { return IntentCreateEvent }
func (TransitionEvent) Kind() IntentKind    { return IntentTransitionEvent }
func (EditEvent) Kind() IntentKind          { return IntentEditEvent }
func (CreateSubEvent) Kind() IntentKind     { return IntentCreateSubEvent }
func (EditSubEvent) Kind() IntentKind       { return IntentEditSubEvent }
func (CancelSubEvent) Kind() IntentKind     { return IntentCancelSubEvent }
func (Register) Kind() IntentKind           { return IntentRegister }
func (CancelRegistration) Kind() IntentKind { return IntentCancelRegistration }
func (OverrideRole) Kind() IntentKind       { return IntentOverrideRole }

// IntentEnvelope is the wire form accepted by POST /intents.
type IntentEnvelope struct {
	Kind    IntentKind      `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Decode unmarshals the payload into the intent named by Kind.
func (e IntentEnvelope) Decode() (Intent, error) {
	if len(e.Payload) == 0 {
		return nil, fmt.Errorf("payload is required")
	}
	switch e.Kind {
	case IntentCreateEvent:
		return decodeAs[CreateEvent](e)
	case IntentTransitionEvent:
		return decodeAs[TransitionEvent](e)
	case IntentEditEvent:
		return decodeAs[EditEvent](e)
	case IntentCreateSubEvent:
		return decodeAs[CreateSubEvent](e)
	case IntentEditSubEvent:
		return decodeAs[EditSubEvent](e)
	case IntentCancelSubEvent:
		return decodeAs[CancelSubEvent](e)
	case IntentRegister:
		return decodeAs[Register](e)
	case IntentCancelRegistration:
		return decodeAs[CancelRegistration](e)
	case IntentOverrideRole:
		return decodeAs[OverrideRole](e)
	}
	return nil, fmt.Errorf("unsupported intent kind %q", e.Kind)
}

func decodeAs[T Intent](e IntentEnvelope) (Intent, error) {
	var intent T
	if err := json.Unmarshal(e.Payload, &intent); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", e.Kind, err)
	}
	return intent, nil
}

// Outcome is the typed result of a successfully applied intent. Exactly one
// entity field is set, matching Intent.
type Outcome struct {
	Intent       IntentKind           `json:"intent"`
	Event        *models.Event        `json:"event,omitempty"`
	SubEvent     *models.SubEvent     `json:"sub_event,omitempty"`
	Registration *models.Registration `json:"registration,omitempty"`
	Principal    *models.Profile      `json:"principal,omitempty"`
	Noop         bool                 `json:"noop,omitempty"`
}
