package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/service"
	"github.com/rs/zerolog"
)

// LeadHandler handles board reads and lead mutations
type LeadHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewLeadHandler creates a new LeadHandler
func NewLeadHandler(services *service.Services, log zerolog.Logger) *LeadHandler {
	return &LeadHandler{
		services: services,
		log:      log.With().Str("handler", "lead").Logger(),
	}
}

// ListStatuses handles GET /v1/statuses
func (h *LeadHandler) ListStatuses(c *gin.Context) {
	statuses, err := h.services.Lead.ListStatuses(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statuses": statuses})
}

// ListUsers handles GET /v1/users?role=
func (h *LeadHandler) ListUsers(c *gin.Context) {
	users, err := h.services.Lead.ListUsers(c.Request.Context(), c.Query("role"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func queryInt(c *gin.Context, key string, def int) (int, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ListLeads handles GET /v1/leads?page=&page_size=&status_id=&assigned_to=&ad_name=
func (h *LeadHandler) ListLeads(c *gin.Context) {
	page, ok := queryInt(c, "page", 1)
	if !ok || page < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page must be a positive integer"})
		return
	}
	pageSize, ok := queryInt(c, "page_size", service.DefaultPageSize)
	if !ok || pageSize < 1 || pageSize > models.MaxPageSize {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_size must be between 1 and " + strconv.Itoa(models.MaxPageSize)})
		return
	}

	assignedTo := c.Query("assigned_to")
	if assignedTo == "" {
		assignedTo = c.Query("assigned_user_id")
	}

	filter := models.LeadFilter{
		StatusID:   c.Query("status_id"),
		AssignedTo: assignedTo,
		AdName:     c.Query("ad_name"),
		Page:       page,
		PageSize:   pageSize,
	}

	result, err := h.services.Lead.ListLeads(c.Request.Context(), currentUser(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetLead handles GET /v1/leads/:id
func (h *LeadHandler) GetLead(c *gin.Context) {
	lead, err := h.services.Lead.GetLead(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, lead)
}

type statusRequest struct {
	StatusID string `json:"status_id"`
}

// UpdateStatus handles PATCH /v1/leads/:id/status
func (h *LeadHandler) UpdateStatus(c *gin.Context) {
	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.StatusID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status_id is required"})
		return
	}

	change, err := h.services.Lead.UpdateStatus(c.Request.Context(), currentUser(c), c.Param("id"), req.StatusID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, change)
}

type assigneeRequest struct {
	UserID string `json:"user_id"`
}

// Assign handles PATCH /v1/leads/:id/assignee
func (h *LeadHandler) Assign(c *gin.Context) {
	var req assigneeRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	assignment, err := h.services.Lead.Assign(c.Request.Context(), currentUser(c), c.Param("id"), req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, assignment)
}
