package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/service"
	"github.com/rs/zerolog"
)

// ImportHandler handles lead import endpoints
type ImportHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewImportHandler creates a new ImportHandler
func NewImportHandler(services *service.Services, log zerolog.Logger) *ImportHandler {
	return &ImportHandler{
		services: services,
		log:      log.With().Str("handler", "import").Logger(),
	}
}

// ExistingIDs handles POST /v1/leads/existing
func (h *ImportHandler) ExistingIDs(c *gin.Context) {
	var req models.ExistingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	ids, err := h.services.Import.ExistingIDs(c.Request.Context(), currentUser(c), req.IDs)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ids": ids})
}

// Import handles POST /v1/leads/import
func (h *ImportHandler) Import(c *gin.Context) {
	var req models.ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}
	if len(req.Leads) > models.MaxImportBatch {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "too many leads in one request"})
		return
	}

	result, err := h.services.Import.Import(c.Request.Context(), currentUser(c), req.Leads)
	if err != nil {
		h.log.Error().Err(err).Int("rows", len(req.Leads)).Msg("Import failed")
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
