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

const subEventColumns = `id, event_id, title, description, start_time, end_time, venue, price, total_seats,
requires_registration, status, version, created_at, updated_at`

// SubEventRepository persists sub-events.
type SubEventRepository struct {
	store *Store
}

// NewSubEventRepository constructs the repository.
func NewSubEventRepository(store *Store) *SubEventRepository {
	return &SubEventRepository{store: store}
}

// Create inserts a scheduled sub-event. The parent row is share-locked and
// must still be approved when the insert runs, so a concurrent rejection either
// waits for the insert or turns it into PARENT_NOT_APPROVED.
func (r *SubEventRepository) Create(ctx context.Context, sub *models.SubEvent) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if sub.Status == "" {
		sub.Status = models.SubEventStatusScheduled
	}
	now := time.Now().UTC()
	sub.Version = 1
	sub.CreatedAt = now
	sub.UpdatedAt = now

	const query = `INSERT INTO sub_events (id, event_id, title, description, start_time, end_time, venue, price, total_seats,
	requires_registration, status, version, created_at, updated_at)
VALUES (:id, :event_id, :title, :description, :start_time, :end_time, :venue, :price, :total_seats,
	:requires_registration, :status, :version, :created_at, :updated_at)`
	err := r.store.WithTx(ctx, "sub_events.insert", func(ctx context.Context, tx *sqlx.Tx) error {
		var parentStatus string
		if err := tx.GetContext(ctx, &parentStatus, `SELECT status FROM events WHERE id = $1 FOR SHARE`, sub.EventID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrParentNotFound, "")
			}
			return err
		}
		if err := requireApprovedParent(parentStatus); err != nil {
			return err
		}
		_, err := tx.NamedExecContext(ctx, query, sub)
		return err
	})
	if err != nil {
		return fmt.Errorf("create sub-event: %w", err)
	}
	return nil
}

func requireApprovedParent(status string) error {
	if models.EventStatus(status) != models.EventStatusApproved {
		return appErrors.WithDetails(appErrors.ErrParentNotApproved, "", map[string]interface{}{"parent_status": status})
	}
	return nil
}

// FindByID returns the sub-event or sql.ErrNoRows.
func (r *SubEventRepository) FindByID(ctx context.Context, id string) (*models.SubEvent, error) {
	query := `SELECT ` + subEventColumns + ` FROM sub_events WHERE id = $1`
	var sub models.SubEvent
	if err := r.store.Get(ctx, "sub_events.find", &sub, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find sub-event: %w", err)
	}
	return &sub, nil
}

// List returns the sub-events of an event ordered by start time.
func (r *SubEventRepository) List(ctx context.Context, filter models.SubEventFilter) ([]models.SubEvent, error) {
	if filter.EventID == "" {
		return nil, fmt.Errorf("event id is required")
	}
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + subEventColumns + ` FROM sub_events WHERE event_id = $1`)
	args := []interface{}{filter.EventID}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		fmt.Fprintf(&builder, " AND status IN (%s)", strings.Join(placeholders, ","))
	}
	builder.WriteString(" ORDER BY start_time ASC")

	var subs []models.SubEvent
	if err := r.store.Select(ctx, "sub_events.list", &subs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list sub-events: %w", err)
	}
	return subs, nil
}

// Update stores the editable fields of sub when its version still equals
// expectedVersion. The row is locked first so a seat reduction cannot race a
// registration, and the parent is share-locked and must still be approved.
// Lowering total_seats below the active registration count of a
// capacity-enforcing sub-event is rejected.
func (r *SubEventRepository) Update(ctx context.Context, sub *models.SubEvent, expectedVersion int64) error {
	var stamp struct {
		Version   int64     `db:"version"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	err := r.store.WithTx(ctx, "sub_events.update", func(ctx context.Context, tx *sqlx.Tx) error {
		var current struct {
			Version      int64  `db:"version"`
			Status       string `db:"status"`
			ParentStatus string `db:"parent_status"`
		}
		const lockQuery = `SELECT s.version, s.status, e.status AS parent_status
FROM sub_events s JOIN events e ON e.id = s.event_id
WHERE s.id = $1
FOR UPDATE OF s FOR SHARE OF e`
		if err := tx.GetContext(ctx, &current, lockQuery, sub.ID); err != nil {
			return err
		}
		if err := requireApprovedParent(current.ParentStatus); err != nil {
			return err
		}
		if current.Version != expectedVersion {
			return appErrors.Clone(appErrors.ErrStaleVersion, "")
		}
		if models.SubEventStatus(current.Status) != models.SubEventStatusScheduled {
			return appErrors.Clone(appErrors.ErrNotEditable, "sub-event is cancelled")
		}
		if sub.EnforcesCapacity() {
			var active int
			const countQuery = `SELECT COUNT(*) FROM registrations WHERE target_type = 'sub_event' AND target_id = $1 AND status = 'active'`
			if err := tx.GetContext(ctx, &active, countQuery, sub.ID); err != nil {
				return fmt.Errorf("count active registrations: %w", err)
			}
			if *sub.TotalSeats < active {
				return appErrors.WithDetails(appErrors.ErrInvalidField, "total_seats is below the active registration count", map[string]interface{}{
					"field":  "total_seats",
					"active": active,
				})
			}
		}
		const query = `UPDATE sub_events
SET title = $2, description = $3, start_time = $4, end_time = $5, venue = $6, price = $7, total_seats = $8,
	requires_registration = $9, version = version + 1, updated_at = $10
WHERE id = $1
RETURNING version, updated_at`
		return tx.GetContext(ctx, &stamp, query,
			sub.ID, sub.Title, sub.Description, sub.StartTime, sub.EndTime, sub.Venue, sub.Price,
			sub.TotalSeats, sub.RequiresRegistration, time.Now().UTC())
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.ErrNoRows
		}
		return fmt.Errorf("update sub-event: %w", err)
	}
	sub.Version = stamp.Version
	sub.UpdatedAt = stamp.UpdatedAt
	return nil
}

// Cancel marks the sub-event cancelled and cancels its active registrations
// atomically. Cancelling an already cancelled sub-event returns it unchanged
// with noop set.
func (r *SubEventRepository) Cancel(ctx context.Context, id string) (sub *models.SubEvent, noop bool, err error) {
	var cancelled models.SubEvent
	err = r.store.WithTx(ctx, "sub_events.cancel", func(ctx context.Context, tx *sqlx.Tx) error {
		noop = false
		now := time.Now().UTC()
		query := `UPDATE sub_events SET status = 'cancelled', version = version + 1, updated_at = $2
WHERE id = $1 AND status = 'scheduled'
RETURNING ` + subEventColumns
		if err := tx.GetContext(ctx, &cancelled, query, id, now); err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				return err
			}
			noop = true
			return tx.GetContext(ctx, &cancelled, `SELECT `+subEventColumns+` FROM sub_events WHERE id = $1`, id)
		}
		const cancelRegs = `UPDATE registrations SET status = 'cancelled', cancelled_at = $2
WHERE status = 'active' AND target_type = 'sub_event' AND target_id = $1`
		if _, err := tx.ExecContext(ctx, cancelRegs, id, now); err != nil {
			return fmt.Errorf("cancel sub-event registrations: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, sql.ErrNoRows
		}
		return nil, false, fmt.Errorf("cancel sub-event: %w", err)
	}
	return &cancelled, noop, nil
}
