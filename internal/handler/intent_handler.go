package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-events-api/internal/dto"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/response"
)

type intentGateway interface {
	Apply(ctx context.Context, principalID string, intent dto.Intent) (*dto.Outcome, error)
}

// IntentHandler routes every mutation through the gateway. The REST routes are
// shorthands that build the matching intent from the path and body.
type IntentHandler struct {
	gateway intentGateway
}

// NewIntentHandler constructs the handler.
func NewIntentHandler(gateway intentGateway) *IntentHandler {
	return &IntentHandler{gateway: gateway}
}

// Apply godoc
// @Summary Apply a mutation intent
// @Tags Intents
// @Accept json
// @Produce json
// @Param payload body dto.IntentEnvelope true "Intent envelope"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /intents [post]
func (h *IntentHandler) Apply(c *gin.Context) {
	var envelope dto.IntentEnvelope
	if err := c.ShouldBindJSON(&envelope); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid intent envelope"))
		return
	}
	intent, err := envelope.Decode()
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, err.Error()))
		return
	}
	h.apply(c, intent)
}

// CreateEvent godoc
// @Summary Create an event
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.CreateEvent true "Event payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /events [post]
func (h *IntentHandler) CreateEvent(c *gin.Context) {
	bindIntent(c, h, func(*dto.CreateEvent) {})
}

// EditEvent godoc
// @Summary Edit an event
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.EditEvent true "Fields to change"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id} [patch]
func (h *IntentHandler) EditEvent(c *gin.Context) {
	bindIntent(c, h, func(in *dto.EditEvent) { in.EventID = c.Param("id") })
}

// TransitionEvent godoc
// @Summary Move an event to another status
// @Tags Events
// @Accept json
// @Produce json
// @Param id path string true "Event ID"
// @Param payload body dto.TransitionEvent true "Target status"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id}/transitions [post]
func (h *IntentHandler) TransitionEvent(c *gin.Context) {
	bindIntent(c, h, func(in *dto.TransitionEvent) { in.EventID = c.Param("id") })
}

// CreateSubEvent godoc
// @Summary Schedule a sub-event
// @Tags SubEvents
// @Accept json
// @Produce json
// @Param id path string true "Parent event ID"
// @Param payload body dto.CreateSubEvent true "Sub-event payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id}/sub-events [post]
func (h *IntentHandler) CreateSubEvent(c *gin.Context) {
	bindIntent(c, h, func(in *dto.CreateSubEvent) { in.EventID = c.Param("id") })
}

// EditSubEvent godoc
// @Summary Edit a sub-event
// @Tags SubEvents
// @Accept json
// @Produce json
// @Param id path string true "Sub-event ID"
// @Param payload body dto.EditSubEvent true "Fields to change"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sub-events/{id} [patch]
func (h *IntentHandler) EditSubEvent(c *gin.Context) {
	bindIntent(c, h, func(in *dto.EditSubEvent) { in.SubEventID = c.Param("id") })
}

// CancelSubEvent godoc
// @Summary Cancel a sub-event and its registrations
// @Tags SubEvents
// @Produce json
// @Param id path string true "Sub-event ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sub-events/{id} [delete]
func (h *IntentHandler) CancelSubEvent(c *gin.Context) {
	h.apply(c, dto.CancelSubEvent{SubEventID: c.Param("id")})
}

// Register godoc
// @Summary Register for an event or sub-event
// @Tags Registrations
// @Accept json
// @Produce json
// @Param payload body dto.Register true "Registration payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations [post]
func (h *IntentHandler) Register(c *gin.Context) {
	bindIntent(c, h, func(*dto.Register) {})
}

// CancelRegistration godoc
// @Summary Cancel a registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations/{id} [delete]
func (h *IntentHandler) CancelRegistration(c *gin.Context) {
	h.apply(c, dto.CancelRegistration{RegistrationID: c.Param("id")})
}

// OverrideRole godoc
// @Summary Change a principal's role
// @Tags Principals
// @Accept json
// @Produce json
// @Param id path string true "Principal ID"
// @Param payload body dto.OverrideRole true "New role"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /principals/{id}/role [put]
func (h *IntentHandler) OverrideRole(c *gin.Context) {
	bindIntent(c, h, func(in *dto.OverrideRole) { in.PrincipalID = c.Param("id") })
}

// bindIntent decodes the body into T, lets fill copy path parameters over it
// and applies the result.
func bindIntent[T dto.Intent](c *gin.Context, h *IntentHandler, fill func(*T)) {
	var in T
	if err := c.ShouldBindJSON(&in); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
		return
	}
	fill(&in)
	h.apply(c, in)
}

func (h *IntentHandler) apply(c *gin.Context, intent dto.Intent) {
	if h.gateway == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "gateway not configured"))
		return
	}
	principalID, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	outcome, err := h.gateway.Apply(c.Request.Context(), principalID, intent)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	switch outcome.Intent {
	case dto.IntentCreateEvent, dto.IntentCreateSubEvent, dto.IntentRegister:
		status = http.StatusCreated
	}
	response.JSON(c, status, outcome, nil)
}
