package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-events-api/internal/service"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/response"
)

type rosterExporter interface {
	ExportRoster(ctx context.Context, principalID, eventID, rawFormat string, includeCancelled bool) (*service.ExportFile, error)
}

// ExportHandler serves attendee roster downloads.
type ExportHandler struct {
	exports rosterExporter
}

// NewExportHandler constructs the handler.
func NewExportHandler(exports rosterExporter) *ExportHandler {
	return &ExportHandler{exports: exports}
}

// Roster godoc
// @Summary Download the attendee roster of an event
// @Tags Events
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Event ID"
// @Param format query string false "csv or pdf" default(csv)
// @Param include_cancelled query bool false "Include cancelled registrations"
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /events/{id}/roster [get]
func (h *ExportHandler) Roster(c *gin.Context) {
	if h.exports == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "export service not configured"))
		return
	}
	principalID, ok := principalFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	file, err := h.exports.ExportRoster(c.Request.Context(), principalID, c.Param("id"), c.Query("format"), boolQuery(c, "include_cancelled"))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("X-Roster-Rows", strconv.Itoa(file.Rows))
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
