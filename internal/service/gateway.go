package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/dto"
	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/logger"
)

type principalResolver interface {
	Resolve(ctx context.Context, principalID string) (*models.Principal, error)
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type intentObserver interface {
	ObserveIntent(kind, result string, duration time.Duration)
}

// AuditMeta carries request metadata recorded on audit rows.
type AuditMeta struct {
	IPAddress string
	UserAgent string
}

type auditMetaKey struct{}

// WithAuditMeta attaches request metadata to ctx for the audit trail.
func WithAuditMeta(ctx context.Context, meta AuditMeta) context.Context {
	return context.WithValue(ctx, auditMetaKey{}, meta)
}

// AuditMetaFrom returns the metadata attached by WithAuditMeta.
func AuditMetaFrom(ctx context.Context) (AuditMeta, bool) {
	meta, ok := ctx.Value(auditMetaKey{}).(AuditMeta)
	return meta, ok
}

// Gateway is the single entry point for mutations. It resolves the acting
// principal, dispatches the intent to the owning service and records the
// outcome; every failure is returned as a typed *errors.Error.
type Gateway struct {
	registry      *RoleRegistry
	events        *EventService
	subEvents     *SubEventService
	registrations *RegistrationService
	audit         auditLogger
	metrics       intentObserver
	logger        *zap.Logger
}

// GatewayOption configures the gateway.
type GatewayOption func(*Gateway)

// WithGatewayAudit persists an audit row for every applied intent.
func WithGatewayAudit(audit auditLogger) GatewayOption {
	return func(g *Gateway) {
		if audit != nil {
			g.audit = audit
		}
	}
}

// WithGatewayMetrics records intent outcomes.
func WithGatewayMetrics(metrics intentObserver) GatewayOption {
	return func(g *Gateway) {
		if metrics != nil {
			g.metrics = metrics
		}
	}
}

// NewGateway wires the entity services behind the gateway.
func NewGateway(registry *RoleRegistry, events *EventService, subEvents *SubEventService, registrations *RegistrationService, logger *zap.Logger, opts ...GatewayOption) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &Gateway{
		registry:      registry,
		events:        events,
		subEvents:     subEvents,
		registrations: registrations,
		logger:        logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g
}

// Apply executes intent on behalf of principalID.
func (g *Gateway) Apply(ctx context.Context, principalID string, intent dto.Intent) (*dto.Outcome, error) {
	start := time.Now()
	kind := "unknown"
	if intent != nil {
		kind = string(intent.Kind())
	}

	log := logger.FromContext(ctx, g.logger)
	outcome, actor, err := g.apply(ctx, principalID, intent)
	if err != nil {
		appErr := appErrors.FromError(err)
		g.observe(kind, appErr.Code, start)
		fields := []zap.Field{
			zap.String("intent", kind),
			zap.String("principal_id", principalID),
			zap.String("code", appErr.Code),
			zap.String("kind", string(appErr.Kind)),
		}
		if appErr.Kind == appErrors.KindStorage || appErr.Kind == appErrors.KindInternal {
			log.Error("intent failed", append(fields, zap.Error(err))...)
		} else {
			log.Info("intent rejected", append(fields, zap.String("reason", appErr.Message))...)
		}
		return nil, appErr
	}

	g.observe(kind, "ok", start)
	if !outcome.Noop {
		g.emitAudit(ctx, actor, outcome)
	}
	log.Debug("intent applied",
		zap.String("intent", kind),
		zap.String("principal_id", actor.ID),
		zap.Bool("noop", outcome.Noop))
	return outcome, nil
}

func (g *Gateway) apply(ctx context.Context, principalID string, intent dto.Intent) (*dto.Outcome, *models.Principal, error) {
	if intent == nil {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "intent is required")
	}
	actor, err := g.registry.Resolve(ctx, principalID)
	if err != nil {
		return nil, nil, err
	}
	outcome := &dto.Outcome{Intent: intent.Kind()}

	switch in := intent.(type) {
	case dto.CreateEvent:
		outcome.Event, err = g.events.Create(ctx, actor, in)
	case dto.EditEvent:
		outcome.Event, err = g.events.Edit(ctx, actor, in)
	case dto.TransitionEvent:
		outcome.Event, err = g.events.Transition(ctx, actor, in)
	case dto.CreateSubEvent:
		outcome.SubEvent, err = g.subEvents.Create(ctx, actor, in)
	case dto.EditSubEvent:
		outcome.SubEvent, err = g.subEvents.Edit(ctx, actor, in)
	case dto.CancelSubEvent:
		outcome.SubEvent, outcome.Noop, err = g.subEvents.Cancel(ctx, actor, in)
	case dto.Register:
		outcome.Registration, err = g.registrations.Register(ctx, actor, in)
	case dto.CancelRegistration:
		outcome.Registration, outcome.Noop, err = g.registrations.Cancel(ctx, actor, in)
	case dto.OverrideRole:
		outcome.Principal, err = g.registry.OverrideRole(ctx, actor, in)
	default:
		err = appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported intent %s", intent.Kind()))
	}
	if err != nil {
		return nil, actor, err
	}
	return outcome, actor, nil
}

func (g *Gateway) observe(kind, result string, start time.Time) {
	if g.metrics != nil {
		g.metrics.ObserveIntent(kind, result, time.Since(start))
	}
}

func (g *Gateway) emitAudit(ctx context.Context, actor *models.Principal, outcome *dto.Outcome) {
	if g.audit == nil || actor == nil {
		return
	}
	action, resource, resourceID, payload := auditTarget(outcome)
	if action == "" {
		return
	}
	newValues, err := json.Marshal(payload)
	if err != nil {
		g.logger.Warn("failed to encode audit payload", zap.Error(err))
		newValues = nil
	}
	meta, _ := AuditMetaFrom(ctx)
	if meta.IPAddress == "" {
		meta.IPAddress = "system"
	}
	if meta.UserAgent == "" {
		meta.UserAgent = "mutation-gateway"
	}
	userID := actor.ID
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
		NewValues:  newValues,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	}
	if err := g.audit.CreateAuditLog(ctx, log); err != nil {
		g.logger.Warn("failed to persist audit log", zap.String("action", action), zap.Error(err))
	}
}

func auditTarget(outcome *dto.Outcome) (action, resource, resourceID string, payload interface{}) {
	switch outcome.Intent {
	case dto.IntentCreateEvent, dto.IntentEditEvent:
		return models.AuditActionEventEdit, "event", outcome.Event.ID, outcome.Event
	case dto.IntentTransitionEvent:
		return models.AuditActionEventTransition, "event", outcome.Event.ID, outcome.Event
	case dto.IntentCreateSubEvent, dto.IntentEditSubEvent:
		return models.AuditActionSubEventEdit, "sub_event", outcome.SubEvent.ID, outcome.SubEvent
	case dto.IntentCancelSubEvent:
		return models.AuditActionSubEventCancel, "sub_event", outcome.SubEvent.ID, outcome.SubEvent
	case dto.IntentRegister:
		return models.AuditActionRegistrationAdd, "registration", outcome.Registration.ID, outcome.Registration
	case dto.IntentCancelRegistration:
		return models.AuditActionRegistrationDrop, "registration", outcome.Registration.ID, outcome.Registration
	case dto.IntentOverrideRole:
		return models.AuditActionRoleOverride, "profile", outcome.Principal.ID, outcome.Principal
	}
	return "", "", "", nil
}
