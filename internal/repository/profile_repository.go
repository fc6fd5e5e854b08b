package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/campus-events-api/internal/models"
)

const profileColumns = `id, email, full_name, role, active, created_at, updated_at`

// ProfileRepository reads and updates principal profiles.
type ProfileRepository struct {
	store *Store
}

// NewProfileRepository constructs the repository.
func NewProfileRepository(store *Store) *ProfileRepository {
	return &ProfileRepository{store: store}
}

// FindByID returns the profile or sql.ErrNoRows.
func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE id = $1 LIMIT 1`
	var profile models.Profile
	if err := r.store.Get(ctx, "profiles.find", &profile, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return &profile, nil
}

// UpdateRole replaces the role of a profile and returns the stored row.
func (r *ProfileRepository) UpdateRole(ctx context.Context, id string, role models.Role) (*models.Profile, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("update role: unknown role %q", role)
	}
	query := `UPDATE profiles SET role = $2, updated_at = $3 WHERE id = $1 RETURNING ` + profileColumns
	var profile models.Profile
	if err := r.store.Get(ctx, "profiles.update_role", &profile, query, id, role, time.Now().UTC()); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("update role: %w", err)
	}
	return &profile, nil
}
