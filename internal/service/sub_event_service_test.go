package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/dto"
	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

func createSubEventIntent(eventID string) dto.CreateSubEvent {
	start := time.Date(2026, 11, 2, 9, 0, 0, 0, time.UTC)
	return dto.CreateSubEvent{
		EventID:              eventID,
		Title:                "Workshop",
		StartTime:            start,
		EndTime:              start.Add(90 * time.Minute),
		Venue:                "Lab 3",
		Price:                25,
		TotalSeats:           seats(30),
		RequiresRegistration: true,
	}
}

func TestCreateSubEventRequiresApprovedParent(t *testing.T) {
	h := newHarness(t)
	pending := h.apply(t, collegeID, validCreateEvent()).Event

	_, err := h.gateway.Apply(context.Background(), collegeID, createSubEventIntent(pending.ID))
	appErr := err.(*appErrors.Error)
	assert.Equal(t, appErrors.ErrParentNotApproved.Code, appErr.Code)
	assert.Equal(t, "pending", appErr.Details["parent_status"])

	h.apply(t, adminID, dto.TransitionEvent{EventID: pending.ID, To: models.EventStatusApproved})
	created := h.apply(t, collegeID, createSubEventIntent(pending.ID))
	assert.Equal(t, models.SubEventStatusScheduled, created.SubEvent.Status)
	assert.Equal(t, pending.ID, created.SubEvent.EventID)
}

func TestCreateSubEventFailureOrder(t *testing.T) {
	h := newHarness(t)
	event := h.approvedEvent(t, collegeID)

	_, err := h.gateway.Apply(context.Background(), studentID, createSubEventIntent(event.ID))
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(t, err))

	_, err = h.gateway.Apply(context.Background(), collegeID, createSubEventIntent("missing"))
	assert.Equal(t, appErrors.ErrParentNotFound.Code, errCode(t, err))

	_, err = h.gateway.Apply(context.Background(), college2ID, createSubEventIntent(event.ID))
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(t, err))

	inverted := createSubEventIntent(event.ID)
	inverted.EndTime = inverted.StartTime
	inverted.Price = -1
	_, err = h.gateway.Apply(context.Background(), collegeID, inverted)
	assert.Equal(t, appErrors.ErrInvalidTimeRange.Code, errCode(t, err))

	negativePrice := createSubEventIntent(event.ID)
	negativePrice.Price = -1
	_, err = h.gateway.Apply(context.Background(), collegeID, negativePrice)
	appErr := err.(*appErrors.Error)
	assert.Equal(t, appErrors.ErrInvalidField.Code, appErr.Code)
	assert.Equal(t, "price", appErr.Details["field"])

	negativeSeats := createSubEventIntent(event.ID)
	negativeSeats.TotalSeats = seats(-1)
	_, err = h.gateway.Apply(context.Background(), collegeID, negativeSeats)
	appErr = err.(*appErrors.Error)
	assert.Equal(t, appErrors.ErrInvalidField.Code, appErr.Code)
	assert.Equal(t, "total_seats", appErr.Details["field"])

	assert.Empty(t, h.db.subs)
}

func TestAdminCreatesSubEventUnderAnyEvent(t *testing.T) {
	h := newHarness(t)
	event := h.approvedEvent(t, collegeID)

	created := h.apply(t, adminID, createSubEventIntent(event.ID))
	assert.Equal(t, event.ID, created.SubEvent.EventID)
}

func TestRejectedParentBlocksEditsButKeepsSubEvents(t *testing.T) {
	h := newHarness(t)
	event := h.approvedEvent(t, collegeID)
	sub := h.apply(t, collegeID, createSubEventIntent(event.ID)).SubEvent
	before := h.db.subEvent(sub.ID)

	h.apply(t, adminID, dto.TransitionEvent{EventID: event.ID, To: models.EventStatusRejected})
	assert.Equal(t, before, h.db.subEvent(sub.ID))

	title := "Renamed"
	_, err := h.gateway.Apply(context.Background(), collegeID, dto.EditSubEvent{SubEventID: sub.ID, Title: &title})
	assert.Equal(t, appErrors.ErrParentNotApproved.Code, errCode(t, err))
	_, err = h.gateway.Apply(context.Background(), adminID, dto.EditSubEvent{SubEventID: sub.ID, Title: &title})
	assert.Equal(t, appErrors.ErrParentNotApproved.Code, errCode(t, err))
	assert.Equal(t, before, h.db.subEvent(sub.ID))
}

func TestEditSubEvent(t *testing.T) {
	h := newHarness(t)
	event := h.approvedEvent(t, collegeID)
	sub := h.apply(t, collegeID, createSubEventIntent(event.ID)).SubEvent

	price := 0.0
	edited := h.apply(t, collegeID, dto.EditSubEvent{SubEventID: sub.ID, Price: &price, UnboundedSeats: true})
	assert.Equal(t, 0.0, edited.SubEvent.Price)
	assert.Nil(t, edited.SubEvent.TotalSeats)
	assert.Equal(t, int64(2), edited.SubEvent.Version)

	_, err := h.gateway.Apply(context.Background(), college2ID, dto.EditSubEvent{SubEventID: sub.ID, Price: &price})
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(t, err))

	_, err = h.gateway.Apply(context.Background(), collegeID, dto.EditSubEvent{SubEventID: sub.ID, Price: &price, ExpectedVersion: 1})
	assert.Equal(t, appErrors.ErrStaleVersion.Code, errCode(t, err))

	end := sub.StartTime.Add(-time.Hour)
	_, err = h.gateway.Apply(context.Background(), collegeID, dto.EditSubEvent{SubEventID: sub.ID, EndTime: &end})
	assert.Equal(t, appErrors.ErrInvalidTimeRange.Code, errCode(t, err))

	_, err = h.gateway.Apply(context.Background(), collegeID, dto.EditSubEvent{SubEventID: "missing", Price: &price})
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))
}

func TestEditSubEventSeatsBelowActive(t *testing.T) {
	h := newHarness(t)
	event := h.approvedEvent(t, collegeID)
	sub := h.subEvent(t, collegeID, event.ID, seats(5), true)
	for _, id := range []string{studentID, student2ID} {
		h.apply(t, id, dto.Register{Target: models.Target{Type: models.TargetSubEvent, ID: sub.ID}, Type: models.RegistrationInternal})
	}

	_, err := h.gateway.Apply(context.Background(), collegeID, dto.EditSubEvent{SubEventID: sub.ID, TotalSeats: seats(1)})
	appErr := err.(*appErrors.Error)
	assert.Equal(t, appErrors.ErrInvalidField.Code, appErr.Code)
	assert.Equal(t, 2, appErr.Details["active"])

	edited := h.apply(t, collegeID, dto.EditSubEvent{SubEventID: sub.ID, TotalSeats: seats(2)})
	assert.Equal(t, 2, *edited.SubEvent.TotalSeats)
}

func TestCancelSubEventIsIdempotent(t *testing.T) {
	h := newHarness(t)
	event := h.approvedEvent(t, collegeID)
	sub := h.subEvent(t, collegeID, event.ID, seats(5), true)
	reg := h.apply(t, studentID, dto.Register{Target: models.Target{Type: models.TargetSubEvent, ID: sub.ID}, Type: models.RegistrationInternal}).Registration

	first := h.apply(t, collegeID, dto.CancelSubEvent{SubEventID: sub.ID})
	assert.False(t, first.Noop)
	assert.Equal(t, models.SubEventStatusCancelled, first.SubEvent.Status)
	afterFirst := h.db.subEvent(sub.ID)

	second := h.apply(t, collegeID, dto.CancelSubEvent{SubEventID: sub.ID})
	assert.True(t, second.Noop)
	assert.Equal(t, afterFirst, h.db.subEvent(sub.ID))
	assert.Equal(t, *first.SubEvent, *second.SubEvent)
	assert.Equal(t, models.RegistrationCancelled, h.db.registration(reg.ID).Status)

	title := "Back again"
	_, err := h.gateway.Apply(context.Background(), collegeID, dto.EditSubEvent{SubEventID: sub.ID, Title: &title})
	assert.Equal(t, appErrors.ErrNotEditable.Code, errCode(t, err))
}

func TestCancelSubEventRules(t *testing.T) {
	h := newHarness(t)
	event := h.approvedEvent(t, collegeID)
	sub := h.subEvent(t, collegeID, event.ID, nil, false)

	_, err := h.gateway.Apply(context.Background(), studentID, dto.CancelSubEvent{SubEventID: sub.ID})
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(t, err))

	_, err = h.gateway.Apply(context.Background(), college2ID, dto.CancelSubEvent{SubEventID: sub.ID})
	assert.Equal(t, appErrors.ErrForbidden.Code, errCode(t, err))

	h.apply(t, adminID, dto.TransitionEvent{EventID: event.ID, To: models.EventStatusCompleted, Force: true})
	_, err = h.gateway.Apply(context.Background(), adminID, dto.CancelSubEvent{SubEventID: sub.ID})
	assert.Equal(t, appErrors.ErrParentCompleted.Code, errCode(t, err))
	assert.Equal(t, models.SubEventStatusScheduled, h.db.subEvent(sub.ID).Status)
}

func TestGetSubEvent(t *testing.T) {
	h := newHarness(t)
	_, err := h.subEvents.Get(context.Background(), "missing")
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))

	event := h.approvedEvent(t, collegeID)
	sub := h.subEvent(t, collegeID, event.ID, nil, false)
	got, err := h.subEvents.Get(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)
}
