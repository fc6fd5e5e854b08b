package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/campus-events-api/internal/service"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type fakeExporter struct {
	eventID, format string
	include         bool
	file            *service.ExportFile
	err             error
}

func (f *fakeExporter) ExportRoster(_ context.Context, _, eventID, rawFormat string, includeCancelled bool) (*service.ExportFile, error) {
	f.eventID, f.format, f.include = eventID, rawFormat, includeCancelled
	return f.file, f.err
}

func TestExportHandlerRosterStreamsFile(t *testing.T) {
	exporter := &fakeExporter{file: &service.ExportFile{
		Filename:    "roster-hack-night-20261019.csv",
		ContentType: "text/csv",
		Data:        []byte("Registration ID\nreg-1\n"),
		Rows:        1,
	}}
	c, rec := newContext(http.MethodGet, "/events/evt-1/roster?format=csv&include_cancelled=1", nil, "college-1")
	c.Params = gin.Params{{Key: "id", Value: "evt-1"}}

	NewExportHandler(exporter).Roster(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "evt-1", exporter.eventID)
	assert.Equal(t, "csv", exporter.format)
	assert.True(t, exporter.include)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "roster-hack-night-20261019.csv")
	assert.Equal(t, "1", rec.Header().Get("X-Roster-Rows"))
	assert.Equal(t, "Registration ID\nreg-1\n", rec.Body.String())
}

func TestExportHandlerRosterForbidden(t *testing.T) {
	exporter := &fakeExporter{err: appErrors.Clone(appErrors.ErrForbidden, "")}
	c, rec := newContext(http.MethodGet, "/events/evt-1/roster", nil, "student-1")
	c.Params = gin.Params{{Key: "id", Value: "evt-1"}}

	NewExportHandler(exporter).Roster(c)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "FORBIDDEN", decodeEnvelope(t, rec).Error.Code)
}
