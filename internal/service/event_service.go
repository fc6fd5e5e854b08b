package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/dto"
	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type eventStore interface {
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id string) (*models.Event, error)
	Update(ctx context.Context, event *models.Event, expectedVersion int64) error
	Transition(ctx context.Context, id string, from, to models.EventStatus, expectedVersion int64) (*models.Event, int64, error)
	ScheduledEnd(ctx context.Context, id string) (*time.Time, error)
}

// transitionCapabilities names the capability required to enter each status.
var transitionCapabilities = map[models.EventStatus]models.Capability{
	models.EventStatusApproved:  models.CapApproveEvent,
	models.EventStatusRejected:  models.CapRejectEvent,
	models.EventStatusCompleted: models.CapCompleteEvent,
}

// EventService owns the event state machine and field edits.
type EventService struct {
	repo      eventStore
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewEventService constructs the service.
func NewEventService(repo eventStore, validate *validator.Validate, logger *zap.Logger) *EventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventService{repo: repo, validator: validate, logger: logger, now: time.Now}
}

// Get returns an event by id.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, wrapStorage(err, "failed to load event")
	}
	return event, nil
}

// Create opens a pending event owned by the actor.
func (s *EventService) Create(ctx context.Context, actor *models.Principal, req dto.CreateEvent) (*models.Event, error) {
	if !actor.Can(models.CapCreateEvent) {
		return nil, forbidden(models.CapCreateEvent)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	event := &models.Event{
		OwnerID:  actor.ID,
		Title:    req.Title,
		Venue:    req.Venue,
		Location: req.Location,
		Category: req.Category,
		Status:   models.EventStatusPending,
	}
	if missing := event.MissingFields(); len(missing) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "required fields missing", map[string]interface{}{"missing": missing})
	}
	if err := s.repo.Create(ctx, event); err != nil {
		return nil, wrapStorage(err, "failed to create event")
	}
	return event, nil
}

// Edit patches event fields. Owners may edit while the event is pending;
// holders of edit_any may edit at any time.
func (s *EventService) Edit(ctx context.Context, actor *models.Principal, req dto.EditEvent) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	event, err := s.Get(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	switch {
	case actor.Can(models.CapEditAny):
	case actor.Can(models.CapEditOwnPendingEvent) && event.OwnerID == actor.ID:
		if event.Status != models.EventStatusPending {
			return nil, appErrors.WithDetails(appErrors.ErrNotEditable, "event can only be edited while pending",
				map[string]interface{}{"status": string(event.Status)})
		}
	case actor.Can(models.CapEditOwnPendingEvent):
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the owner may edit this event")
	default:
		return nil, forbidden(models.CapEditOwnPendingEvent)
	}

	version, err := expectVersion(event.Version, req.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	if req.Title != nil {
		event.Title = *req.Title
	}
	if req.Venue != nil {
		event.Venue = *req.Venue
	}
	if req.Location != nil {
		event.Location = *req.Location
	}
	if req.Category != nil {
		event.Category = *req.Category
	}
	if missing := event.MissingFields(); len(missing) > 0 {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "required fields missing", map[string]interface{}{"missing": missing})
	}
	if err := s.repo.Update(ctx, event, version); err != nil {
		return nil, wrapStorage(err, "failed to update event")
	}
	return event, nil
}

// Transition moves an event along the status graph. Leaving approved for
// rejected cancels the registrations of the event and its sub-events.
func (s *EventService) Transition(ctx context.Context, actor *models.Principal, req dto.TransitionEvent) (*models.Event, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	capability, ok := transitionCapabilities[req.To]
	if ok && !actor.Can(capability) {
		return nil, forbidden(capability)
	}
	event, err := s.Get(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if !ok || !models.CanTransition(event.Status, req.To) {
		return nil, appErrors.WithDetails(appErrors.ErrInvalidTransition,
			fmt.Sprintf("cannot move event from %s to %s", event.Status, req.To),
			map[string]interface{}{"current": string(event.Status), "requested": string(req.To), "terminal": event.Status.Terminal()})
	}
	version, err := expectVersion(event.Version, req.ExpectedVersion)
	if err != nil {
		return nil, err
	}

	switch req.To {
	case models.EventStatusApproved:
		if missing := event.MissingFields(); len(missing) > 0 {
			return nil, appErrors.WithDetails(appErrors.ErrValidation, "event is missing required fields", map[string]interface{}{"missing": missing})
		}
	case models.EventStatusCompleted:
		if err := s.checkEnded(ctx, actor, event, req.Force); err != nil {
			return nil, err
		}
	}

	updated, cancelled, err := s.repo.Transition(ctx, event.ID, event.Status, req.To, version)
	if err != nil {
		return nil, wrapStorage(err, "failed to transition event")
	}
	s.logger.Info("event transitioned",
		zap.String("event_id", updated.ID),
		zap.String("from", string(event.Status)),
		zap.String("to", string(updated.Status)),
		zap.Int64("registrations_cancelled", cancelled))
	return updated, nil
}

func (s *EventService) checkEnded(ctx context.Context, actor *models.Principal, event *models.Event, force bool) error {
	if force {
		if !actor.Can(models.CapEditAny) {
			return appErrors.Clone(appErrors.ErrForbidden, "forced completion requires an admin override")
		}
		return nil
	}
	end, err := s.repo.ScheduledEnd(ctx, event.ID)
	if err != nil {
		return wrapStorage(err, "failed to resolve scheduled end")
	}
	if end == nil {
		return appErrors.Clone(appErrors.ErrEventNotEnded, "event has no scheduled sub-events; completion must be forced")
	}
	if s.now().Before(*end) {
		return appErrors.WithDetails(appErrors.ErrEventNotEnded, "", map[string]interface{}{"scheduled_end": end.UTC()})
	}
	return nil
}

// expectVersion returns the version the write must match. A caller-supplied
// version that no longer matches the stored row fails immediately.
func expectVersion(current, expected int64) (int64, error) {
	if expected == 0 {
		return current, nil
	}
	if expected != current {
		return 0, appErrors.WithDetails(appErrors.ErrStaleVersion, "", map[string]interface{}{
			"expected": expected,
			"current":  current,
		})
	}
	return expected, nil
}
