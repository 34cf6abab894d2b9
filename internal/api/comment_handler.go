package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/leadboard/internal/service"
	"github.com/rs/zerolog"
)

// CommentHandler handles lead comments
type CommentHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewCommentHandler creates a new CommentHandler
func NewCommentHandler(services *service.Services, log zerolog.Logger) *CommentHandler {
	return &CommentHandler{
		services: services,
		log:      log.With().Str("handler", "comment").Logger(),
	}
}

// List handles GET /v1/leads/:id/comments
func (h *CommentHandler) List(c *gin.Context) {
	comments, err := h.services.Comment.List(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"comments": comments})
}

type commentRequest struct {
	Text string `json:"text"`
}

// Add handles POST /v1/leads/:id/comments
func (h *CommentHandler) Add(c *gin.Context) {
	var req commentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	comment, err := h.services.Comment.Add(c.Request.Context(), currentUser(c), c.Param("id"), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}
