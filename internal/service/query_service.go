package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type eventLister interface {
	FindByID(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
}

type subEventLister interface {
	FindByID(ctx context.Context, id string) (*models.SubEvent, error)
	List(ctx context.Context, filter models.SubEventFilter) ([]models.SubEvent, error)
}

type registrationReader interface {
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error)
	CountActive(ctx context.Context, target models.Target) (int, error)
	Roster(ctx context.Context, eventID string, includeCancelled bool) ([]models.RosterEntry, error)
}

// QueryService serves the read side. Admins see everything; everyone else
// sees approved and completed events plus the events they own.
type QueryService struct {
	principals    principalResolver
	events        eventLister
	subEvents     subEventLister
	registrations registrationReader
	logger        *zap.Logger
}

// NewQueryService constructs the service.
func NewQueryService(principals principalResolver, events eventLister, subEvents subEventLister, registrations registrationReader, logger *zap.Logger) *QueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryService{
		principals:    principals,
		events:        events,
		subEvents:     subEvents,
		registrations: registrations,
		logger:        logger,
	}
}

// Me returns the resolved principal for the caller.
func (s *QueryService) Me(ctx context.Context, principalID string) (*models.Principal, error) {
	return s.principals.Resolve(ctx, principalID)
}

// ListEvents returns a page of events visible to the caller.
func (s *QueryService) ListEvents(ctx context.Context, principalID string, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	actor, err := s.principals.Resolve(ctx, principalID)
	if err != nil {
		return nil, nil, err
	}
	filter.VisibleTo = ""
	if !actor.IsAdmin() {
		filter.VisibleTo = actor.ID
	}
	events, total, err := s.events.List(ctx, filter)
	if err != nil {
		return nil, nil, wrapStorage(err, "failed to list events")
	}
	return events, pagination(filter.Page, filter.PageSize, total), nil
}

// GetEvent returns an event the caller may see. Hidden events read as missing.
func (s *QueryService) GetEvent(ctx context.Context, principalID, eventID string) (*models.Event, error) {
	actor, err := s.principals.Resolve(ctx, principalID)
	if err != nil {
		return nil, err
	}
	return s.visibleEvent(ctx, actor, eventID)
}

// ListSubEvents returns the sub-events of a visible event with seat usage.
func (s *QueryService) ListSubEvents(ctx context.Context, principalID, eventID string, includeCancelled bool) ([]models.SubEventView, error) {
	actor, err := s.principals.Resolve(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleEvent(ctx, actor, eventID); err != nil {
		return nil, err
	}
	filter := models.SubEventFilter{EventID: eventID}
	if !includeCancelled {
		filter.Status = []models.SubEventStatus{models.SubEventStatusScheduled}
	}
	subs, err := s.subEvents.List(ctx, filter)
	if err != nil {
		return nil, wrapStorage(err, "failed to list sub-events")
	}
	views := make([]models.SubEventView, 0, len(subs))
	for _, sub := range subs {
		view, err := s.subEventView(ctx, sub)
		if err != nil {
			return nil, err
		}
		views = append(views, *view)
	}
	return views, nil
}

// GetSubEvent returns a single sub-event of a visible event with seat usage.
func (s *QueryService) GetSubEvent(ctx context.Context, principalID, subEventID string) (*models.SubEventView, error) {
	actor, err := s.principals.Resolve(ctx, principalID)
	if err != nil {
		return nil, err
	}
	sub, err := s.subEvents.FindByID(ctx, subEventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sub-event not found")
		}
		return nil, wrapStorage(err, "failed to load sub-event")
	}
	if _, err := s.visibleEvent(ctx, actor, sub.EventID); err != nil {
		if appErrors.FromError(err).Code == appErrors.ErrNotFound.Code {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "sub-event not found")
		}
		return nil, err
	}
	return s.subEventView(ctx, *sub)
}

// ListRegistrations returns registrations the caller may see: admins see all,
// event owners see their event's registrations, everyone else only their own.
func (s *QueryService) ListRegistrations(ctx context.Context, principalID string, filter models.RegistrationFilter) ([]models.Registration, *models.Pagination, error) {
	actor, err := s.principals.Resolve(ctx, principalID)
	if err != nil {
		return nil, nil, err
	}
	if !actor.IsAdmin() {
		owns := false
		if filter.EventID != "" {
			event, err := s.visibleEvent(ctx, actor, filter.EventID)
			if err != nil {
				return nil, nil, err
			}
			owns = event.OwnerID == actor.ID
		}
		if !owns {
			filter.PrincipalID = actor.ID
		}
	}
	regs, total, err := s.registrations.List(ctx, filter)
	if err != nil {
		return nil, nil, wrapStorage(err, "failed to list registrations")
	}
	return regs, pagination(filter.Page, filter.PageSize, total), nil
}

// GetRegistration returns a registration visible to the caller.
func (s *QueryService) GetRegistration(ctx context.Context, principalID, registrationID string) (*models.Registration, error) {
	actor, err := s.principals.Resolve(ctx, principalID)
	if err != nil {
		return nil, err
	}
	reg, err := s.registrations.FindByID(ctx, registrationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, wrapStorage(err, "failed to load registration")
	}
	if actor.IsAdmin() || reg.CreatedBy == actor.ID || (reg.PrincipalID != nil && *reg.PrincipalID == actor.ID) {
		return reg, nil
	}
	owner, err := s.targetOwner(ctx, reg.Target())
	if err != nil {
		return nil, err
	}
	if owner != actor.ID {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
	}
	return reg, nil
}

// Roster returns the attendee list of an event. Only the owner and admins may
// read it.
func (s *QueryService) Roster(ctx context.Context, principalID, eventID string, includeCancelled bool) (*models.Event, []models.RosterEntry, error) {
	actor, err := s.principals.Resolve(ctx, principalID)
	if err != nil {
		return nil, nil, err
	}
	event, err := s.visibleEvent(ctx, actor, eventID)
	if err != nil {
		return nil, nil, err
	}
	if !actor.IsAdmin() && event.OwnerID != actor.ID {
		return nil, nil, appErrors.Clone(appErrors.ErrForbidden, "only the event owner or an admin may read the roster")
	}
	entries, err := s.registrations.Roster(ctx, event.ID, includeCancelled)
	if err != nil {
		return nil, nil, wrapStorage(err, "failed to load roster")
	}
	return event, entries, nil
}

func (s *QueryService) visibleEvent(ctx context.Context, actor *models.Principal, eventID string) (*models.Event, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
		}
		return nil, wrapStorage(err, "failed to load event")
	}
	if actor.IsAdmin() || event.OwnerID == actor.ID {
		return event, nil
	}
	if event.Status != models.EventStatusApproved && event.Status != models.EventStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event not found")
	}
	return event, nil
}

func (s *QueryService) targetOwner(ctx context.Context, target models.Target) (string, error) {
	eventID := target.ID
	if target.Type == models.TargetSubEvent {
		sub, err := s.subEvents.FindByID(ctx, target.ID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return "", nil
			}
			return "", wrapStorage(err, "failed to load sub-event")
		}
		eventID = sub.EventID
	}
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", wrapStorage(err, "failed to load event")
	}
	return event.OwnerID, nil
}

func (s *QueryService) subEventView(ctx context.Context, sub models.SubEvent) (*models.SubEventView, error) {
	view := &models.SubEventView{SubEvent: sub}
	count, err := s.registrations.CountActive(ctx, models.Target{Type: models.TargetSubEvent, ID: sub.ID})
	if err != nil {
		return nil, wrapStorage(err, "failed to count registrations")
	}
	view.ActiveRegistrations = count
	if !sub.Unbounded() {
		remaining := *sub.TotalSeats - count
		if remaining < 0 {
			remaining = 0
		}
		view.SeatsRemaining = &remaining
	}
	return view, nil
}

func pagination(page, pageSize, total int) *models.Pagination {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}
