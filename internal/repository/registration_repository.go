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

const registrationColumns = `id, target_type, target_id, principal_id, contact_name, contact_email, contact_phone,
type, status, created_by, created_at, cancelled_at`

// RegistrationRepository persists registrations and enforces seat limits.
type RegistrationRepository struct {
	store *Store
}

// NewRegistrationRepository constructs the repository.
func NewRegistrationRepository(store *Store) *RegistrationRepository {
	return &RegistrationRepository{store: store}
}

type lockedTarget struct {
	Status               string        `db:"status"`
	EventStatus          string        `db:"event_status"`
	RequiresRegistration bool          `db:"requires_registration"`
	TotalSeats           sql.NullInt64 `db:"total_seats"`
}

// Create inserts reg after locking its target row, so the open-state check,
// the duplicate check, the seat count and the insert happen as one unit per
// target. Concurrent callers for the same target are serialized on the lock.
func (r *RegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	if !reg.TargetType.Valid() || !reg.Type.Valid() {
		return appErrors.Clone(appErrors.ErrInvalidField, "target type or registration type outside the allowed set")
	}
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	reg.Status = models.RegistrationActive
	reg.CreatedAt = time.Now().UTC()
	reg.CancelledAt = nil

	err := r.store.WithTx(ctx, "registrations.create", func(ctx context.Context, tx *sqlx.Tx) error {
		target, err := lockTarget(ctx, tx, reg.TargetType, reg.TargetID)
		if err != nil {
			return err
		}
		if err := target.checkOpen(reg.TargetType); err != nil {
			return err
		}

		if err := checkDuplicate(ctx, tx, reg); err != nil {
			return err
		}

		if reg.TargetType == models.TargetSubEvent && target.TotalSeats.Valid {
			var active int64
			const countQuery = `SELECT COUNT(*) FROM registrations WHERE target_type = $1 AND target_id = $2 AND status = 'active'`
			if err := tx.GetContext(ctx, &active, countQuery, reg.TargetType, reg.TargetID); err != nil {
				return fmt.Errorf("count active registrations: %w", err)
			}
			if active >= target.TotalSeats.Int64 {
				return appErrors.WithDetails(appErrors.ErrTargetFull, "", map[string]interface{}{
					"total_seats": target.TotalSeats.Int64,
					"active":      active,
				})
			}
		}

		const insertQuery = `INSERT INTO registrations (id, target_type, target_id, principal_id, contact_name, contact_email, contact_phone,
	type, status, created_by, created_at, cancelled_at)
VALUES (:id, :target_type, :target_id, :principal_id, :contact_name, :contact_email, :contact_phone,
	:type, :status, :created_by, :created_at, :cancelled_at)`
		if _, err := tx.NamedExecContext(ctx, insertQuery, reg); err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("create registration: %w", err)
	}
	return nil
}

func lockTarget(ctx context.Context, tx *sqlx.Tx, targetType models.TargetType, targetID string) (*lockedTarget, error) {
	var target lockedTarget
	var query string
	switch targetType {
	case models.TargetEvent:
		query = `SELECT status, status AS event_status, TRUE AS requires_registration, NULL::INTEGER AS total_seats
FROM events WHERE id = $1 FOR UPDATE`
	default:
		query = `SELECT s.status, e.status AS event_status, s.requires_registration, s.total_seats
FROM sub_events s JOIN events e ON e.id = s.event_id
WHERE s.id = $1
FOR UPDATE OF s FOR SHARE OF e`
	}
	if err := tx.GetContext(ctx, &target, query, targetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration target not found")
		}
		return nil, fmt.Errorf("lock registration target: %w", err)
	}
	return &target, nil
}

func (t *lockedTarget) checkOpen(targetType models.TargetType) error {
	if models.EventStatus(t.EventStatus) != models.EventStatusApproved {
		return appErrors.Clone(appErrors.ErrTargetNotOpen, "")
	}
	if targetType == models.TargetSubEvent {
		if models.SubEventStatus(t.Status) != models.SubEventStatusScheduled {
			return appErrors.Clone(appErrors.ErrTargetNotOpen, "")
		}
		if !t.RequiresRegistration {
			return appErrors.Clone(appErrors.ErrTargetNotRegistrable, "")
		}
	}
	return nil
}

func checkDuplicate(ctx context.Context, tx *sqlx.Tx, reg *models.Registration) error {
	var (
		query  string
		holder interface{}
	)
	switch {
	case reg.PrincipalID != nil:
		query = `SELECT COUNT(*) FROM registrations
WHERE target_type = $1 AND target_id = $2 AND status = 'active' AND principal_id = $3`
		holder = *reg.PrincipalID
	case reg.ContactEmail != nil:
		query = `SELECT COUNT(*) FROM registrations
WHERE target_type = $1 AND target_id = $2 AND status = 'active' AND LOWER(contact_email) = LOWER($3)`
		holder = *reg.ContactEmail
	default:
		return appErrors.Clone(appErrors.ErrInvalidField, "registration has no holder")
	}
	var existing int64
	if err := tx.GetContext(ctx, &existing, query, reg.TargetType, reg.TargetID, holder); err != nil {
		return fmt.Errorf("check duplicate registration: %w", err)
	}
	if existing > 0 {
		return appErrors.Clone(appErrors.ErrDuplicateReg, "")
	}
	return nil
}

// FindByID returns the registration or sql.ErrNoRows.
func (r *RegistrationRepository) FindByID(ctx context.Context, id string) (*models.Registration, error) {
	query := `SELECT ` + registrationColumns + ` FROM registrations WHERE id = $1`
	var reg models.Registration
	if err := r.store.Get(ctx, "registrations.find", &reg, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find registration: %w", err)
	}
	return &reg, nil
}

// List returns registrations matching the filter with the total count.
// EventID widens the match to the event and all of its sub-events.
func (r *RegistrationRepository) List(ctx context.Context, filter models.RegistrationFilter) ([]models.Registration, int, error) {
	baseQuery := `FROM registrations WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.TargetType != "" {
		args = append(args, filter.TargetType)
		conditions = append(conditions, fmt.Sprintf("target_type = $%d", len(args)))
	}
	if filter.TargetID != "" {
		args = append(args, filter.TargetID)
		conditions = append(conditions, fmt.Sprintf("target_id = $%d", len(args)))
	}
	if filter.EventID != "" {
		args = append(args, filter.EventID)
		conditions = append(conditions, fmt.Sprintf(
			"((target_type = 'event' AND target_id = $%d) OR (target_type = 'sub_event' AND target_id IN (SELECT id FROM sub_events WHERE event_id = $%d)))",
			len(args), len(args)))
	}
	if filter.PrincipalID != "" {
		args = append(args, filter.PrincipalID)
		conditions = append(conditions, fmt.Sprintf("principal_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	page, pageSize := normalizePage(filter.Page, filter.PageSize)
	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY created_at ASC LIMIT %d OFFSET %d", registrationColumns, baseQuery, pageSize, (page-1)*pageSize)

	var regs []models.Registration
	if err := r.store.Select(ctx, "registrations.list", &regs, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list registrations: %w", err)
	}
	var total int
	if err := r.store.Get(ctx, "registrations.count", &total, "SELECT COUNT(*) "+baseQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count registrations: %w", err)
	}
	return regs, total, nil
}

// CountActive returns the number of active registrations for a target.
func (r *RegistrationRepository) CountActive(ctx context.Context, target models.Target) (int, error) {
	const query = `SELECT COUNT(*) FROM registrations WHERE target_type = $1 AND target_id = $2 AND status = 'active'`
	var count int
	if err := r.store.Get(ctx, "registrations.count_active", &count, query, target.Type, target.ID); err != nil {
		return 0, fmt.Errorf("count active registrations: %w", err)
	}
	return count, nil
}

// Cancel marks an active registration cancelled. Cancelling an already
// cancelled registration returns it unchanged with noop set.
func (r *RegistrationRepository) Cancel(ctx context.Context, id string) (*models.Registration, bool, error) {
	query := `UPDATE registrations SET status = 'cancelled', cancelled_at = $2
WHERE id = $1 AND status = 'active'
RETURNING ` + registrationColumns
	var reg models.Registration
	err := r.store.Get(ctx, "registrations.cancel", &reg, query, id, time.Now().UTC())
	if err == nil {
		return &reg, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("cancel registration: %w", err)
	}
	current, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, true, nil
}

// Roster returns the registrations of an event and its sub-events with the
// holder's name and contact resolved.
func (r *RegistrationRepository) Roster(ctx context.Context, eventID string, includeCancelled bool) ([]models.RosterEntry, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT
	r.id AS registration_id,
	r.target_type,
	r.target_id,
	COALESCE(s.title, e.title) AS target_title,
	r.type,
	COALESCE(p.full_name, r.contact_name, '') AS name,
	COALESCE(p.email, r.contact_email, '') AS email,
	COALESCE(r.contact_phone, '') AS phone,
	r.status,
	r.created_at
FROM registrations r
LEFT JOIN sub_events s ON r.target_type = 'sub_event' AND s.id = r.target_id
JOIN events e ON e.id = COALESCE(s.event_id, r.target_id)
LEFT JOIN profiles p ON p.id = r.principal_id
WHERE e.id = $1`)
	if !includeCancelled {
		builder.WriteString(" AND r.status = 'active'")
	}
	builder.WriteString("\nORDER BY target_title ASC, r.created_at ASC")

	var entries []models.RosterEntry
	if err := r.store.Select(ctx, "registrations.roster", &entries, builder.String(), eventID); err != nil {
		return nil, fmt.Errorf("roster: %w", err)
	}
	return entries, nil
}
