package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/dto"
	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type subEventStore interface {
	Create(ctx context.Context, sub *models.SubEvent) error
	FindByID(ctx context.Context, id string) (*models.SubEvent, error)
	Update(ctx context.Context, sub *models.SubEvent, expectedVersion int64) error
	Cancel(ctx context.Context, id string) (*models.SubEvent, bool, error)
}

type eventReader interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
}

// SubEventService schedules, edits and cancels sessions under approved events.
type SubEventService struct {
	repo      subEventStore
	events    eventReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSubEventService constructs the service.
func NewSubEventService(repo subEventStore, events eventReader, validate *validator.Validate, logger *zap.Logger) *SubEventService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubEventService{repo: repo, events: events, validator: validate, logger: logger}
}

// Get returns a sub-event by id.
func (s *SubEventService) Get(ctx context.Context, id string) (*models.SubEvent, error) {
	sub, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sub-event not found")
		}
		return nil, wrapStorage(err, "failed to load sub-event")
	}
	return sub, nil
}

// Create schedules a sub-event. Checks run in a fixed order: parent exists,
// actor owns the parent or is an admin, parent is approved, time range, then
// price and seats.
func (s *SubEventService) Create(ctx context.Context, actor *models.Principal, req dto.CreateSubEvent) (*models.SubEvent, error) {
	if !actor.Can(models.CapCreateSubEventOwnEvent) && !actor.Can(models.CapEditAny) {
		return nil, forbidden(models.CapCreateSubEventOwnEvent)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	parent, err := s.parent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSubEventActor(actor, parent, models.CapCreateSubEventOwnEvent); err != nil {
		return nil, err
	}
	if err := requireApprovedParent(parent); err != nil {
		return nil, err
	}

	sub := &models.SubEvent{
		EventID:              parent.ID,
		Title:                req.Title,
		Description:          req.Description,
		StartTime:            req.StartTime.UTC(),
		EndTime:              req.EndTime.UTC(),
		Venue:                req.Venue,
		Price:                req.Price,
		TotalSeats:           req.TotalSeats,
		RequiresRegistration: req.RequiresRegistration,
		Status:               models.SubEventStatusScheduled,
	}
	if err := validateSubEventFields(sub); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, wrapStorage(err, "failed to create sub-event")
	}
	return sub, nil
}

// Edit patches a sub-event under the same parent-state precondition as Create,
// re-evaluated against the parent's current status.
func (s *SubEventService) Edit(ctx context.Context, actor *models.Principal, req dto.EditSubEvent) (*models.SubEvent, error) {
	if !actor.Can(models.CapEditOwnSubEvent) && !actor.Can(models.CapEditAny) {
		return nil, forbidden(models.CapEditOwnSubEvent)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	sub, err := s.Get(ctx, req.SubEventID)
	if err != nil {
		return nil, err
	}
	parent, err := s.parent(ctx, sub.EventID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSubEventActor(actor, parent, models.CapEditOwnSubEvent); err != nil {
		return nil, err
	}
	if err := requireApprovedParent(parent); err != nil {
		return nil, err
	}
	if sub.Status != models.SubEventStatusScheduled {
		return nil, appErrors.Clone(appErrors.ErrNotEditable, "sub-event is cancelled")
	}
	version, err := expectVersion(sub.Version, req.ExpectedVersion)
	if err != nil {
		return nil, err
	}

	applySubEventPatch(sub, req)
	if err := validateSubEventFields(sub); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, sub, version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sub-event not found")
		}
		return nil, wrapStorage(err, "failed to update sub-event")
	}
	return sub, nil
}

// Cancel soft-deletes a sub-event and its registrations. Cancelling an
// already cancelled sub-event succeeds without changes.
func (s *SubEventService) Cancel(ctx context.Context, actor *models.Principal, req dto.CancelSubEvent) (*models.SubEvent, bool, error) {
	if !actor.Can(models.CapEditOwnSubEvent) && !actor.Can(models.CapDeleteAny) {
		return nil, false, forbidden(models.CapEditOwnSubEvent)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, false, validationError(err)
	}
	sub, err := s.Get(ctx, req.SubEventID)
	if err != nil {
		return nil, false, err
	}
	parent, err := s.parent(ctx, sub.EventID)
	if err != nil {
		return nil, false, err
	}
	if !actor.Can(models.CapDeleteAny) && parent.OwnerID != actor.ID {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "only the event owner or an admin may cancel this sub-event")
	}
	if sub.Status == models.SubEventStatusCancelled {
		return sub, true, nil
	}
	if parent.Status == models.EventStatusCompleted {
		return nil, false, appErrors.Clone(appErrors.ErrParentCompleted, "")
	}
	cancelled, noop, err := s.repo.Cancel(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "sub-event not found")
		}
		return nil, false, wrapStorage(err, "failed to cancel sub-event")
	}
	return cancelled, noop, nil
}

func (s *SubEventService) parent(ctx context.Context, eventID string) (*models.Event, error) {
	parent, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrParentNotFound, "")
		}
		return nil, wrapStorage(err, "failed to load parent event")
	}
	return parent, nil
}

func authorizeSubEventActor(actor *models.Principal, parent *models.Event, ownerCap models.Capability) error {
	if actor.Can(models.CapEditAny) {
		return nil
	}
	if actor.Can(ownerCap) && parent.OwnerID == actor.ID {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "only the event owner or an admin may manage its sub-events")
}

func requireApprovedParent(parent *models.Event) error {
	if parent.Status != models.EventStatusApproved {
		return appErrors.WithDetails(appErrors.ErrParentNotApproved, "", map[string]interface{}{"parent_status": string(parent.Status)})
	}
	return nil
}

func validateSubEventFields(sub *models.SubEvent) error {
	if !sub.StartTime.Before(sub.EndTime) {
		return appErrors.Clone(appErrors.ErrInvalidTimeRange, "")
	}
	if sub.Price < 0 {
		return invalidField("price", "price must not be negative")
	}
	if sub.TotalSeats != nil && *sub.TotalSeats < 0 {
		return invalidField("total_seats", "total_seats must not be negative")
	}
	return nil
}

func applySubEventPatch(sub *models.SubEvent, req dto.EditSubEvent) {
	if req.Title != nil {
		sub.Title = *req.Title
	}
	if req.Description != nil {
		sub.Description = *req.Description
	}
	if req.StartTime != nil {
		sub.StartTime = req.StartTime.UTC()
	}
	if req.EndTime != nil {
		sub.EndTime = req.EndTime.UTC()
	}
	if req.Venue != nil {
		sub.Venue = *req.Venue
	}
	if req.Price != nil {
		sub.Price = *req.Price
	}
	if req.UnboundedSeats {
		sub.TotalSeats = nil
	} else if req.TotalSeats != nil {
		seats := *req.TotalSeats
		sub.TotalSeats = &seats
	}
	if req.RequiresRegistration != nil {
		sub.RequiresRegistration = *req.RequiresRegistration
	}
}
