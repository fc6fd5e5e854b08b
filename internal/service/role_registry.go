package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/dto"
	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type profileStore interface {
	FindByID(ctx context.Context, id string) (*models.Profile, error)
	UpdateRole(ctx context.Context, id string, role models.Role) (*models.Profile, error)
}

// RoleRegistry resolves principals to their role and capability set.
type RoleRegistry struct {
	profiles  profileStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewRoleRegistry constructs the registry.
func NewRoleRegistry(profiles profileStore, validate *validator.Validate, logger *zap.Logger) *RoleRegistry {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RoleRegistry{profiles: profiles, validator: validate, logger: logger}
}

// Resolve loads the acting principal. A missing id is unauthorized, an unknown
// one is NOT_FOUND and an inactive one is ACCOUNT_INACTIVE. A stored role
// outside the closed set is reported as corrupt data.
func (r *RoleRegistry) Resolve(ctx context.Context, principalID string) (*models.Principal, error) {
	principalID = strings.TrimSpace(principalID)
	if principalID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "principal is required")
	}
	profile, err := r.profiles.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "principal not found")
		}
		return nil, wrapStorage(err, "failed to load principal")
	}
	if !profile.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "")
	}
	return r.principalFor(profile)
}

// Lookup loads another principal's profile without requiring it to be the
// actor, e.g. the registrant of an internal registration.
func (r *RoleRegistry) Lookup(ctx context.Context, principalID string) (*models.Principal, error) {
	profile, err := r.profiles.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "principal not found")
		}
		return nil, wrapStorage(err, "failed to load principal")
	}
	if !profile.Active {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "principal is inactive")
	}
	return r.principalFor(profile)
}

func (r *RoleRegistry) principalFor(profile *models.Profile) (*models.Principal, error) {
	caps, ok := models.CapabilitiesFor(profile.Role)
	if !ok {
		r.logger.Error("stored role outside the known set",
			zap.String("principal_id", profile.ID),
			zap.String("role", string(profile.Role)))
		return nil, appErrors.WithDetails(appErrors.ErrUnknownRole, "", map[string]interface{}{"role": string(profile.Role)})
	}
	return &models.Principal{Profile: *profile, Capabilities: caps}, nil
}

// OverrideRole replaces a principal's role. Only holders of override_role may
// call it.
func (r *RoleRegistry) OverrideRole(ctx context.Context, actor *models.Principal, req dto.OverrideRole) (*models.Profile, error) {
	if !actor.Can(models.CapOverrideRole) {
		return nil, forbidden(models.CapOverrideRole)
	}
	if err := r.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if _, err := r.Lookup(ctx, req.PrincipalID); err != nil {
		var appErr *appErrors.Error
		// an unknown stored role is exactly what an override repairs
		if !errors.As(err, &appErr) || appErr.Code != appErrors.ErrUnknownRole.Code {
			return nil, err
		}
	}
	profile, err := r.profiles.UpdateRole(ctx, req.PrincipalID, req.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "principal not found")
		}
		return nil, wrapStorage(err, "failed to update role")
	}
	r.logger.Info("role overridden",
		zap.String("principal_id", profile.ID),
		zap.String("role", string(profile.Role)),
		zap.String("actor_id", actor.ID))
	return profile, nil
}
