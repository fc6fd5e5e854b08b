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

type registrationStore interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id string) (*models.Registration, error)
	Cancel(ctx context.Context, id string) (*models.Registration, bool, error)
}

type principalLookup interface {
	Lookup(ctx context.Context, principalID string) (*models.Principal, error)
}

// RegistrationService enrolls principals and external contacts in events and
// sub-events. Seat limits, duplicate detection and the open-state check are
// evaluated by the store under a per-target lock.
type RegistrationService struct {
	repo       registrationStore
	principals principalLookup
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewRegistrationService constructs the service.
func NewRegistrationService(repo registrationStore, principals principalLookup, validate *validator.Validate, logger *zap.Logger) *RegistrationService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{repo: repo, principals: principals, validator: validate, logger: logger}
}

// Get returns a registration by id.
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.Registration, error) {
	reg, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, wrapStorage(err, "failed to load registration")
	}
	return reg, nil
}

// Register creates an active registration. Holders of register may enroll
// themselves or an external contact; holders of edit_any may enroll anyone.
func (s *RegistrationService) Register(ctx context.Context, actor *models.Principal, req dto.Register) (*models.Registration, error) {
	if !actor.Can(models.CapRegister) && !actor.Can(models.CapEditAny) {
		return nil, forbidden(models.CapRegister)
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err)
	}

	reg := &models.Registration{
		TargetType: req.Target.Type,
		TargetID:   req.Target.ID,
		Type:       req.Type,
		CreatedBy:  actor.ID,
	}

	switch req.Type {
	case models.RegistrationInternal:
		if req.Contact != nil {
			return nil, invalidField("contact", "internal registrations do not carry a contact")
		}
		principalID := strings.TrimSpace(req.PrincipalID)
		if principalID == "" {
			principalID = actor.ID
		}
		if principalID != actor.ID && !actor.Can(models.CapEditAny) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "only an admin may register another principal")
		}
		registrant := actor
		if principalID != actor.ID {
			var err error
			if registrant, err = s.principals.Lookup(ctx, principalID); err != nil {
				return nil, err
			}
		}
		if registrant.Role != models.RoleStudent && registrant.Role != models.RoleCollege {
			return nil, appErrors.WithDetails(appErrors.ErrPrincipalRole, "", map[string]interface{}{"role": string(registrant.Role)})
		}
		reg.PrincipalID = &registrant.ID
	case models.RegistrationExternal:
		if strings.TrimSpace(req.PrincipalID) != "" {
			return nil, invalidField("principal_id", "external registrations do not reference a principal")
		}
		name := strings.TrimSpace(req.Contact.Name)
		email := strings.TrimSpace(req.Contact.Email)
		reg.ContactName = &name
		reg.ContactEmail = &email
		if phone := strings.TrimSpace(req.Contact.Phone); phone != "" {
			reg.ContactPhone = &phone
		}
	}

	if err := s.repo.Create(ctx, reg); err != nil {
		return nil, wrapStorage(err, "failed to create registration")
	}
	return reg, nil
}

// Cancel withdraws a registration. The registrant, whoever created it and
// holders of delete_any may cancel; cancelling twice is a no-op.
func (s *RegistrationService) Cancel(ctx context.Context, actor *models.Principal, req dto.CancelRegistration) (*models.Registration, bool, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, false, validationError(err)
	}
	reg, err := s.Get(ctx, req.RegistrationID)
	if err != nil {
		return nil, false, err
	}
	isRegistrant := reg.PrincipalID != nil && *reg.PrincipalID == actor.ID
	if !isRegistrant && reg.CreatedBy != actor.ID && !actor.Can(models.CapDeleteAny) {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "only the registrant or an admin may cancel this registration")
	}
	if reg.Status == models.RegistrationCancelled {
		return reg, true, nil
	}
	cancelled, noop, err := s.repo.Cancel(ctx, reg.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, false, wrapStorage(err, "failed to cancel registration")
	}
	return cancelled, noop, nil
}
