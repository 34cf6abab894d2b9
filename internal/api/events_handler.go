package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/leadboard/internal/events"
	"github.com/leadboard/internal/service"
	"github.com/rs/zerolog"
)

// EventsHandler upgrades authenticated requests to the live event stream
type EventsHandler struct {
	hub      *events.Hub
	services *service.Services
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewEventsHandler creates a new EventsHandler
func NewEventsHandler(hub *events.Hub, services *service.Services, origins []string, log zerolog.Logger) *EventsHandler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}

	return &EventsHandler{
		hub:      hub,
		services: services,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed["*"] || allowed[origin]
			},
		},
		log: log.With().Str("handler", "events").Logger(),
	}
}

// Subscribe handles GET /v1/events; the token comes from the Authorization header or ?token=
func (h *EventsHandler) Subscribe(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "live events are disabled"})
		return
	}

	token := bearerToken(c)
	if token == "" {
		token = c.Query("token")
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return
	}
	user, err := h.services.Auth.Authenticate(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already replied
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := events.NewClient(h.hub, conn, user.ID, user.IsAdmin())
	h.hub.Register(client)
	h.log.Debug().Str("user_id", user.ID).Msg("Subscriber connected")

	go client.WritePump()
	client.ReadPump()
}
