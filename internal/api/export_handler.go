package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leadboard/internal/service"
	"github.com/rs/zerolog"
)

// ExportHandler handles export endpoints
type ExportHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewExportHandler creates a new ExportHandler
func NewExportHandler(services *service.Services, log zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		services: services,
		log:      log.With().Str("handler", "export").Logger(),
	}
}

// StreamExport handles GET /v1/leads/export?format=
// Admin only; the body is streamed as rows are read
func (h *ExportHandler) StreamExport(c *gin.Context) {
	if !currentUser(c).IsAdmin() {
		respondError(c, service.ErrForbidden)
		return
	}

	format := c.DefaultQuery("format", service.FormatNDJSON)
	if format != service.FormatNDJSON && format != service.FormatJSON && format != service.FormatCSV {
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be one of: ndjson, json, csv"})
		return
	}

	if err := h.services.Export.StreamLeads(c.Request.Context(), c.Writer, format); err != nil {
		// Headers are already sent once streaming starts
		h.log.Error().Err(err).Str("format", format).Msg("Export failed")
		if !c.Writer.Written() {
			respondError(c, err)
		}
	}
}
