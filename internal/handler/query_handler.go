package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-events-api/internal/dto"
	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/response"
)

type queryReader interface {
	Me(ctx context.Context, principalID string) (*models.Principal, error)
	ListEvents(ctx context.Context, principalID string, filter models.EventFilter) ([]models.Event, *models.Pagination, error)
	GetEvent(ctx context.Context, principalID, eventID string) (*models.Event, error)
	ListSubEvents(ctx context.Context, principalID, eventID string, includeCancelled bool) ([]models.SubEventView, error)
	GetSubEvent(ctx context.Context, principalID, subEventID string) (*models.SubEventView, error)
	ListRegistrations(ctx context.Context, principalID string, filter models.RegistrationFilter) ([]models.Registration, *models.Pagination, error)
	GetRegistration(ctx context.Context, principalID, registrationID string) (*models.Registration, error)
}

// QueryHandler exposes the read-only endpoints.
type QueryHandler struct {
	queries queryReader
}

// NewQueryHandler constructs the handler.
func NewQueryHandler(queries queryReader) *QueryHandler {
	return &QueryHandler{queries: queries}
}

// Me godoc
// @Summary Current principal and capabilities
// @Tags Principals
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /me [get]
func (h *QueryHandler) Me(c *gin.Context) {
	principalID, ok := h.caller(c)
	if !ok {
		return
	}
	principal, err := h.queries.Me(c.Request.Context(), principalID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.NewPrincipalResponse(principal), nil)
}

// ListEvents godoc
// @Summary List visible events
// @Tags Events
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param category query string false "Event category"
// @Param owner_id query string false "Owner principal ID"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /events [get]
func (h *QueryHandler) ListEvents(c *gin.Context) {
	principalID, ok := h.caller(c)
	if !ok {
		return
	}
	page, size, err := pageParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.EventFilter{
		OwnerID:  strings.TrimSpace(c.Query("owner_id")),
		Page:     page,
		PageSize: size,
	}
	for _, raw := range csvQuery(c, "status") {
		status := models.EventStatus(strings.ToLower(raw))
		if !status.Valid() {
			response.Error(c, appErrors.WithDetails(appErrors.ErrInvalidField, "unknown event status", map[string]interface{}{"field": "status", "value": raw}))
			return
		}
		filter.Status = append(filter.Status, status)
	}
	if raw := strings.TrimSpace(c.Query("category")); raw != "" {
		filter.Category = models.EventCategory(raw)
		if !filter.Category.Valid() {
			response.Error(c, appErrors.WithDetails(appErrors.ErrInvalidField, "unknown event category", map[string]interface{}{"field": "category", "value": raw}))
			return
		}
	}

	events, pagination, err := h.queries.ListEvents(c.Request.Context(), principalID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, pagination)
}

// GetEvent godoc
// @Summary Get an event
// @Tags Events
// @Produce json
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id} [get]
func (h *QueryHandler) GetEvent(c *gin.Context) {
	principalID, ok := h.caller(c)
	if !ok {
		return
	}
	event, err := h.queries.GetEvent(c.Request.Context(), principalID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// ListSubEvents godoc
// @Summary List the sub-events of an event
// @Tags SubEvents
// @Produce json
// @Param id path string true "Event ID"
// @Param include_cancelled query bool false "Include cancelled sub-events"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id}/sub-events [get]
func (h *QueryHandler) ListSubEvents(c *gin.Context) {
	principalID, ok := h.caller(c)
	if !ok {
		return
	}
	subs, err := h.queries.ListSubEvents(c.Request.Context(), principalID, c.Param("id"), boolQuery(c, "include_cancelled"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subs, nil)
}

// GetSubEvent godoc
// @Summary Get a sub-event with seat usage
// @Tags SubEvents
// @Produce json
// @Param id path string true "Sub-event ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /sub-events/{id} [get]
func (h *QueryHandler) GetSubEvent(c *gin.Context) {
	principalID, ok := h.caller(c)
	if !ok {
		return
	}
	sub, err := h.queries.GetSubEvent(c.Request.Context(), principalID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sub, nil)
}

// ListRegistrations godoc
// @Summary List registrations visible to the caller
// @Tags Registrations
// @Produce json
// @Param event_id query string false "Event ID, including its sub-events"
// @Param target_type query string false "event or sub_event"
// @Param target_id query string false "Target ID"
// @Param status query string false "active or cancelled"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations [get]
func (h *QueryHandler) ListRegistrations(c *gin.Context) {
	principalID, ok := h.caller(c)
	if !ok {
		return
	}
	page, size, err := pageParams(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	filter := models.RegistrationFilter{
		EventID:     strings.TrimSpace(c.Query("event_id")),
		TargetID:    strings.TrimSpace(c.Query("target_id")),
		PrincipalID: strings.TrimSpace(c.Query("principal_id")),
		Page:        page,
		PageSize:    size,
	}
	if raw := strings.TrimSpace(c.Query("target_type")); raw != "" {
		filter.TargetType = models.TargetType(raw)
		if !filter.TargetType.Valid() {
			response.Error(c, appErrors.WithDetails(appErrors.ErrInvalidField, "unknown target type", map[string]interface{}{"field": "target_type", "value": raw}))
			return
		}
	}
	switch raw := models.RegistrationStatus(strings.TrimSpace(c.Query("status"))); raw {
	case "":
	case models.RegistrationActive, models.RegistrationCancelled:
		filter.Status = raw
	default:
		response.Error(c, appErrors.WithDetails(appErrors.ErrInvalidField, "unknown registration status", map[string]interface{}{"field": "status", "value": string(raw)}))
		return
	}

	regs, pagination, err := h.queries.ListRegistrations(c.Request.Context(), principalID, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, regs, pagination)
}

// GetRegistration godoc
// @Summary Get a registration
// @Tags Registrations
// @Produce json
// @Param id path string true "Registration ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /registrations/{id} [get]
func (h *QueryHandler) GetRegistration(c *gin.Context) {
	principalID, ok := h.caller(c)
	if !ok {
		return
	}
	reg, err := h.queries.GetRegistration(c.Request.Context(), principalID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, reg, nil)
}

func (h *QueryHandler) caller(c *gin.Context) (string, bool) {
	if h.queries == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "query service not configured"))
		return "", false
	}
	principalID, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return principalID, true
}
