package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

const eventColumns = `id, owner_id, title, venue, location, category, status, version, created_at, updated_at`

// cancelEventRegistrationsQuery cancels every active registration of an event
// and of its sub-events.
const cancelEventRegistrationsQuery = `UPDATE registrations SET status = 'cancelled', cancelled_at = $2
WHERE status = 'active' AND (
	(target_type = 'event' AND target_id = $1) OR
	(target_type = 'sub_event' AND target_id IN (SELECT id FROM sub_events WHERE event_id = $1))
)`

// EventRepository persists events.
type EventRepository struct {
	store *Store
}

// NewEventRepository constructs the repository.
func NewEventRepository(store *Store) *EventRepository {
	return &EventRepository{store: store}
}

// Create inserts a new event. ID, status and timestamps are assigned when empty.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Status == "" {
		event.Status = models.EventStatusPending
	}
	if !event.Status.Valid() || !event.Category.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidField, "status or category outside the allowed set")
	}
	now := time.Now().UTC()
	event.Version = 1
	event.CreatedAt = now
	event.UpdatedAt = now

	const query = `INSERT INTO events (id, owner_id, title, venue, location, category, status, version, created_at, updated_at)
VALUES (:id, :owner_id, :title, :venue, :location, :category, :status, :version, :created_at, :updated_at)`
	if _, err := r.store.NamedExec(ctx, "events.insert", query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// FindByID returns the event or sql.ErrNoRows.
func (r *EventRepository) FindByID(ctx context.Context, id string) (*models.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`
	var event models.Event
	if err := r.store.Get(ctx, "events.find", &event, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find event: %w", err)
	}
	return &event, nil
}

// List returns events matching the filter with the total count.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	baseQuery := `FROM events WHERE 1=1`
	var conditions []string
	var args []interface{}

	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.OwnerID != "" {
		args = append(args, filter.OwnerID)
		conditions = append(conditions, fmt.Sprintf("owner_id = $%d", len(args)))
	}
	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if filter.VisibleTo != "" {
		args = append(args, filter.VisibleTo)
		conditions = append(conditions, fmt.Sprintf("(status IN ('approved','completed') OR owner_id = $%d)", len(args)))
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", eventColumns, baseQuery, pageSize, (page-1)*pageSize)

	var events []models.Event
	if err := r.store.Select(ctx, "events.list", &events, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	var total int
	if err := r.store.Get(ctx, "events.count", &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}
	return events, total, nil
}

// Update stores the editable fields of event when its version still equals
// expectedVersion. On success event carries the new version.
func (r *EventRepository) Update(ctx context.Context, event *models.Event, expectedVersion int64) error {
	if !event.Category.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidField, "category outside the allowed set")
	}
	const query = `UPDATE events
SET title = $3, venue = $4, location = $5, category = $6, version = version + 1, updated_at = $7
WHERE id = $1 AND version = $2
RETURNING version, updated_at`
	var stamp struct {
		Version   int64     `db:"version"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := r.store.Get(ctx, "events.update", &stamp, query,
		event.ID, expectedVersion, event.Title, event.Venue, event.Location, event.Category, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrStaleVersion, "")
		}
		return fmt.Errorf("update event: %w", err)
	}
	event.Version = stamp.Version
	event.UpdatedAt = stamp.UpdatedAt
	return nil
}

// Transition moves the event from one status to another. Moving to rejected
// cancels every active registration of the event and its sub-events in the
// same transaction; the number of cancelled registrations is returned.
func (r *EventRepository) Transition(ctx context.Context, id string, from, to models.EventStatus, expectedVersion int64) (*models.Event, int64, error) {
	if !to.Valid() {
		return nil, 0, appErrors.Clone(appErrors.ErrInvalidField, "status outside the allowed set")
	}
	var (
		updated   models.Event
		cancelled int64
	)
	err := r.store.WithTx(ctx, "events.transition", func(ctx context.Context, tx *sqlx.Tx) error {
		cancelled = 0
		now := time.Now().UTC()
		query := `UPDATE events SET status = $3, version = version + 1, updated_at = $5
WHERE id = $1 AND status = $2 AND version = $4
RETURNING ` + eventColumns
		if err := tx.GetContext(ctx, &updated, query, id, from, to, expectedVersion, now); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrStaleVersion, "")
			}
			return err
		}
		if to != models.EventStatusRejected {
			return nil
		}
		res, err := tx.ExecContext(ctx, cancelEventRegistrationsQuery, id, now)
		if err != nil {
			return fmt.Errorf("cancel event registrations: %w", err)
		}
		cancelled, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("transition event: %w", err)
	}
	return &updated, cancelled, nil
}

// ScheduledEnd returns the latest end time among the event's scheduled
// sub-events, or nil when it has none.
func (r *EventRepository) ScheduledEnd(ctx context.Context, id string) (*time.Time, error) {
	const query = `SELECT MAX(end_time) FROM sub_events WHERE event_id = $1 AND status = 'scheduled'`
	var end sql.NullTime
	if err := r.store.Get(ctx, "events.scheduled_end", &end, query, id); err != nil {
		return nil, fmt.Errorf("scheduled end: %w", err)
	}
	if !end.Valid {
		return nil, nil
	}
	return &end.Time, nil
}

// ListDueForCompletion returns approved events whose last scheduled sub-event
// ended before now, oldest first.
func (r *EventRepository) ListDueForCompletion(ctx context.Context, now time.Time, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + prefixColumns("e", eventColumns) + `
FROM events e
JOIN sub_events s ON s.event_id = e.id AND s.status = 'scheduled'
WHERE e.status = 'approved'
GROUP BY e.id
HAVING MAX(s.end_time) < $1
ORDER BY MAX(s.end_time) ASC
LIMIT $2`
	var events []models.Event
	if err := r.store.Select(ctx, "events.due_for_completion", &events, query, now, limit); err != nil {
		return nil, fmt.Errorf("list events due for completion: %w", err)
	}
	return events, nil
}

func normalizePage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func prefixColumns(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
