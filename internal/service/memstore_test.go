package service

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/dto"
	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

// memDB is an in-memory stand-in for the Postgres store. A single mutex
// plays the role of the per-target row lock.
type memDB struct {
	mu       sync.Mutex
	seq      int
	profiles map[string]models.Profile
	events   map[string]models.Event
	subs     map[string]models.SubEvent
	regs     map[string]models.Registration
	audits   []models.AuditLog
	findErr  error
}

func newMemDB() *memDB {
	return &memDB{
		profiles: map[string]models.Profile{},
		events:   map[string]models.Event{},
		subs:     map[string]models.SubEvent{},
		regs:     map[string]models.Registration{},
	}
}

func (db *memDB) nextID(prefix string) string {
	db.seq++
	return fmt.Sprintf("%s-%03d", prefix, db.seq)
}

func (db *memDB) addProfile(id string, role models.Role, active bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.profiles[id] = models.Profile{ID: id, Email: id + "@campus.test", FullName: strings.ToUpper(id), Role: role, Active: active}
}

func (db *memDB) activeCount(target models.Target) int {
	count := 0
	for _, reg := range db.regs {
		if reg.TargetType == target.Type && reg.TargetID == target.ID && reg.Status == models.RegistrationActive {
			count++
		}
	}
	return count
}

func (db *memDB) event(id string) models.Event {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.events[id]
}

func (db *memDB) subEvent(id string) models.SubEvent {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.subs[id]
}

func (db *memDB) registration(id string) models.Registration {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.regs[id]
}

func (db *memDB) auditLogs() []models.AuditLog {
	db.mu.Lock()
	defer db.mu.Unlock()
	return append([]models.AuditLog(nil), db.audits...)
}

type memProfiles struct{ db *memDB }

func (m memProfiles) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	if m.db.findErr != nil {
		return nil, m.db.findErr
	}
	p, ok := m.db.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &p, nil
}

func (m memProfiles) UpdateRole(ctx context.Context, id string, role models.Role) (*models.Profile, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	p, ok := m.db.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	p.Role = role
	m.db.profiles[id] = p
	return &p, nil
}

type memEvents struct{ db *memDB }

func (m memEvents) Create(ctx context.Context, event *models.Event) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	event.ID = m.db.nextID("event")
	event.Version = 1
	event.CreatedAt = time.Now().UTC()
	event.UpdatedAt = event.CreatedAt
	m.db.events[event.ID] = *event
	return nil
}

func (m memEvents) FindByID(ctx context.Context, id string) (*models.Event, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	event, ok := m.db.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &event, nil
}

func (m memEvents) Update(ctx context.Context, event *models.Event, expectedVersion int64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	current, ok := m.db.events[event.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if current.Version != expectedVersion {
		return appErrors.Clone(appErrors.ErrStaleVersion, "")
	}
	event.Version = current.Version + 1
	event.UpdatedAt = time.Now().UTC()
	m.db.events[event.ID] = *event
	return nil
}

func (m memEvents) Transition(ctx context.Context, id string, from, to models.EventStatus, expectedVersion int64) (*models.Event, int64, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	event, ok := m.db.events[id]
	if !ok || event.Status != from || event.Version != expectedVersion {
		return nil, 0, appErrors.Clone(appErrors.ErrStaleVersion, "")
	}
	event.Status = to
	event.Version++
	m.db.events[id] = event
	var cancelled int64
	if to == models.EventStatusRejected {
		for regID, reg := range m.db.regs {
			if reg.Status != models.RegistrationActive {
				continue
			}
			owned := reg.TargetType == models.TargetEvent && reg.TargetID == id
			if reg.TargetType == models.TargetSubEvent {
				owned = m.db.subs[reg.TargetID].EventID == id
			}
			if owned {
				reg.Status = models.RegistrationCancelled
				m.db.regs[regID] = reg
				cancelled++
			}
		}
	}
	return &event, cancelled, nil
}

func (m memEvents) ScheduledEnd(ctx context.Context, id string) (*time.Time, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var end *time.Time
	for _, sub := range m.db.subs {
		if sub.EventID != id || sub.Status != models.SubEventStatusScheduled {
			continue
		}
		if end == nil || sub.EndTime.After(*end) {
			t := sub.EndTime
			end = &t
		}
	}
	return end, nil
}

func (m memEvents) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Event
	for _, event := range m.db.events {
		if filter.OwnerID != "" && event.OwnerID != filter.OwnerID {
			continue
		}
		if filter.VisibleTo != "" && event.OwnerID != filter.VisibleTo &&
			event.Status != models.EventStatusApproved && event.Status != models.EventStatusCompleted {
			continue
		}
		out = append(out, event)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m memEvents) ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]models.Event, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Event
	for _, event := range m.db.events {
		if event.Status != models.EventStatusApproved {
			continue
		}
		var last time.Time
		for _, sub := range m.db.subs {
			if sub.EventID == event.ID && sub.Status == models.SubEventStatusScheduled && sub.EndTime.After(last) {
				last = sub.EndTime
			}
		}
		if !last.IsZero() && last.Before(now) {
			out = append(out, event)
		}
	}
	return out, nil
}

type memSubEvents struct{ db *memDB }

func (m memSubEvents) Create(ctx context.Context, sub *models.SubEvent) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	sub.ID = m.db.nextID("sub")
	sub.Version = 1
	m.db.subs[sub.ID] = *sub
	return nil
}

func (m memSubEvents) FindByID(ctx context.Context, id string) (*models.SubEvent, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	sub, ok := m.db.subs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &sub, nil
}

func (m memSubEvents) Update(ctx context.Context, sub *models.SubEvent, expectedVersion int64) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	current, ok := m.db.subs[sub.ID]
	if !ok {
		return sql.ErrNoRows
	}
	if current.Version != expectedVersion {
		return appErrors.Clone(appErrors.ErrStaleVersion, "")
	}
	if current.Status != models.SubEventStatusScheduled {
		return appErrors.Clone(appErrors.ErrNotEditable, "")
	}
	if sub.EnforcesCapacity() {
		if active := m.db.activeCount(models.Target{Type: models.TargetSubEvent, ID: sub.ID}); *sub.TotalSeats < active {
			return appErrors.WithDetails(appErrors.ErrInvalidField, "", map[string]interface{}{"field": "total_seats", "active": active})
		}
	}
	sub.Version = current.Version + 1
	m.db.subs[sub.ID] = *sub
	return nil
}

func (m memSubEvents) Cancel(ctx context.Context, id string) (*models.SubEvent, bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	sub, ok := m.db.subs[id]
	if !ok {
		return nil, false, sql.ErrNoRows
	}
	if sub.Status == models.SubEventStatusCancelled {
		return &sub, true, nil
	}
	sub.Status = models.SubEventStatusCancelled
	sub.Version++
	m.db.subs[id] = sub
	for regID, reg := range m.db.regs {
		if reg.TargetType == models.TargetSubEvent && reg.TargetID == id && reg.Status == models.RegistrationActive {
			reg.Status = models.RegistrationCancelled
			m.db.regs[regID] = reg
		}
	}
	return &sub, false, nil
}

func (m memSubEvents) List(ctx context.Context, filter models.SubEventFilter) ([]models.SubEvent, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.SubEvent
	for _, sub := range m.db.subs {
		if sub.EventID != filter.EventID {
			continue
		}
		if len(filter.Status) > 0 && sub.Status != filter.Status[0] {
			continue
		}
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

type memRegistrations struct{ db *memDB }

// Create mirrors the locked check order of the Postgres repository.
func (m memRegistrations) Create(ctx context.Context, reg *models.Registration) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()

	var eventStatus models.EventStatus
	var sub *models.SubEvent
	switch reg.TargetType {
	case models.TargetEvent:
		event, ok := m.db.events[reg.TargetID]
		if !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "registration target not found")
		}
		eventStatus = event.Status
	case models.TargetSubEvent:
		s, ok := m.db.subs[reg.TargetID]
		if !ok {
			return appErrors.Clone(appErrors.ErrNotFound, "registration target not found")
		}
		sub = &s
		eventStatus = m.db.events[s.EventID].Status
	}
	if eventStatus != models.EventStatusApproved || (sub != nil && sub.Status != models.SubEventStatusScheduled) {
		return appErrors.Clone(appErrors.ErrTargetNotOpen, "")
	}
	if sub != nil && !sub.RequiresRegistration {
		return appErrors.Clone(appErrors.ErrTargetNotRegistrable, "")
	}
	for _, existing := range m.db.regs {
		if existing.Status == models.RegistrationActive && existing.Target() == reg.Target() && existing.HolderKey() == reg.HolderKey() {
			return appErrors.Clone(appErrors.ErrDuplicateReg, "")
		}
	}
	if sub != nil && sub.TotalSeats != nil {
		if active := m.db.activeCount(reg.Target()); active >= *sub.TotalSeats {
			return appErrors.WithDetails(appErrors.ErrTargetFull, "", map[string]interface{}{"total_seats": *sub.TotalSeats, "active": active})
		}
	}
	reg.ID = m.db.nextID("reg")
	reg.Status = models.RegistrationActive
	reg.CreatedAt = time.Now().UTC()
	m.db.regs[reg.ID] = *reg
	return nil
}

func (m memRegistrations) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	reg, ok := m.db.regs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &reg, nil
}

func (m memRegistrations) Cancel(ctx context.Context, id string) (*models.Registration, bool, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	reg, ok := m.db.regs[id]
	if !ok {
		return nil, false, sql.ErrNoRows
	}
	if reg.Status == models.RegistrationCancelled {
		return &reg, true, nil
	}
	now := time.Now().UTC()
	reg.Status = models.RegistrationCancelled
	reg.CancelledAt = &now
	m.db.regs[id] = reg
	return &reg, false, nil
}

func (m memRegistrations) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.Registration
	for _, reg := range m.db.regs {
		if filter.PrincipalID != "" && (reg.PrincipalID == nil || *reg.PrincipalID != filter.PrincipalID) {
			continue
		}
		if filter.EventID != "" {
			eventID := reg.TargetID
			if reg.TargetType == models.TargetSubEvent {
				eventID = m.db.subs[reg.TargetID].EventID
			}
			if eventID != filter.EventID {
				continue
			}
		}
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (m memRegistrations) CountActive(ctx context.Context, target models.Target) (int, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	return m.db.activeCount(target), nil
}

func (m memRegistrations) Roster(ctx context.Context, eventID string, includeCancelled bool) ([]models.RosterEntry, error) {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	var out []models.RosterEntry
	for _, reg := range m.db.regs {
		title := m.db.events[reg.TargetID].Title
		owner := reg.TargetID
		if reg.TargetType == models.TargetSubEvent {
			owner = m.db.subs[reg.TargetID].EventID
			title = m.db.subs[reg.TargetID].Title
		}
		if owner != eventID || (!includeCancelled && reg.Status != models.RegistrationActive) {
			continue
		}
		entry := models.RosterEntry{
			RegistrationID: reg.ID,
			TargetType:     reg.TargetType,
			TargetID:       reg.TargetID,
			TargetTitle:    title,
			Type:           reg.Type,
			Status:         reg.Status,
			CreatedAt:      reg.CreatedAt,
		}
		if reg.PrincipalID != nil {
			p := m.db.profiles[*reg.PrincipalID]
			entry.Name, entry.Email = p.FullName, p.Email
		} else {
			entry.Name, entry.Email = *reg.ContactName, *reg.ContactEmail
		}
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegistrationID < out[j].RegistrationID })
	return out, nil
}

type memAudit struct{ db *memDB }

func (m memAudit) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.db.mu.Lock()
	defer m.db.mu.Unlock()
	log.ID = m.db.nextID("audit")
	m.db.audits = append(m.db.audits, *log)
	return nil
}

type recordedIntent struct {
	kind   string
	result string
}

type intentRecorder struct {
	mu      sync.Mutex
	intents []recordedIntent
}

func (r *intentRecorder) ObserveIntent(kind, result string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, recordedIntent{kind: kind, result: result})
}

func (r *intentRecorder) results() []recordedIntent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedIntent(nil), r.intents...)
}

const (
	adminID    = "admin-1"
	collegeID  = "college-1"
	college2ID = "college-2"
	studentID  = "student-1"
	student2ID = "student-2"
	inactiveID = "student-inactive"
	corruptID  = "ghost-1"
)

type harness struct {
	db            *memDB
	registry      *RoleRegistry
	events        *EventService
	subEvents     *SubEventService
	registrations *RegistrationService
	queries       *QueryService
	gateway       *Gateway
	metrics       *intentRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := newMemDB()
	db.addProfile(adminID, models.RoleAdmin, true)
	db.addProfile(collegeID, models.RoleCollege, true)
	db.addProfile(college2ID, models.RoleCollege, true)
	db.addProfile(studentID, models.RoleStudent, true)
	db.addProfile(student2ID, models.RoleStudent, true)
	db.addProfile(inactiveID, models.RoleStudent, false)
	db.addProfile(corruptID, models.Role("superuser"), true)

	validate := validator.New()
	logger := zap.NewNop()
	registry := NewRoleRegistry(memProfiles{db}, validate, logger)
	events := NewEventService(memEvents{db}, validate, logger)
	subEvents := NewSubEventService(memSubEvents{db}, memEvents{db}, validate, logger)
	registrations := NewRegistrationService(memRegistrations{db}, registry, validate, logger)
	metrics := &intentRecorder{}
	gateway := NewGateway(registry, events, subEvents, registrations, logger,
		WithGatewayAudit(memAudit{db}), WithGatewayMetrics(metrics))
	queries := NewQueryService(registry, memEvents{db}, memSubEvents{db}, memRegistrations{db}, logger)

	return &harness{
		db:            db,
		registry:      registry,
		events:        events,
		subEvents:     subEvents,
		registrations: registrations,
		queries:       queries,
		gateway:       gateway,
		metrics:       metrics,
	}
}

func (h *harness) apply(t *testing.T, principalID string, intent dto.Intent) *dto.Outcome {
	t.Helper()
	outcome, err := h.gateway.Apply(context.Background(), principalID, intent)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	return outcome
}

// approvedEvent creates an event owned by ownerID and approves it as admin.
func (h *harness) approvedEvent(t *testing.T, ownerID string) *models.Event {
	t.Helper()
	created := h.apply(t, ownerID, dto.CreateEvent{Title: "Tech Fest", Venue: "Hall A", Location: "Main Campus", Category: models.CategoryTechnical})
	approved := h.apply(t, adminID, dto.TransitionEvent{EventID: created.Event.ID, To: models.EventStatusApproved})
	return approved.Event
}

func (h *harness) subEvent(t *testing.T, ownerID, eventID string, seats *int, requiresRegistration bool) *models.SubEvent {
	t.Helper()
	start := time.Now().Add(24 * time.Hour).UTC()
	out := h.apply(t, ownerID, dto.CreateSubEvent{
		EventID:              eventID,
		Title:                "Keynote",
		StartTime:            start,
		EndTime:              start.Add(2 * time.Hour),
		Venue:                "Auditorium",
		TotalSeats:           seats,
		RequiresRegistration: requiresRegistration,
	})
	return out.SubEvent
}

func seats(n int) *int { return &n }

func errCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	appErr, ok := err.(*appErrors.Error)
	require.True(t, ok, "expected *errors.Error, got %T", err)
	return appErr.Code
}
