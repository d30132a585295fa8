package handler

import (
	"errors"
	"net/http"
	"time"

	"taskboard/internal/events"
	"taskboard/internal/observability"
	"taskboard/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Response bodies are plain text, matching what the front-end expects.
const (
	msgUserCreated   = "User created successfully"
	msgMissingFields = "Missing required fields: username and password"
	msgDuplicate     = "Email already exists"
	msgBadLogin      = "Invalid username or password"
	msgPasswordLong  = "Password must be at most 72 bytes"
)

const wsWriteTimeout = 10 * time.Second

// AuthHandler handles authentication requests
type AuthHandler struct {
	service  service.AuthService
	hub      *events.Hub
	logger   observability.Logger
	upgrader websocket.Upgrader
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(s service.AuthService, hub *events.Hub, logger observability.Logger) *AuthHandler {
	return &AuthHandler{
		service: s,
		hub:     hub,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Origin policy is the gateway's concern.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *AuthHandler) Signup(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, msgMissingFields)
		return
	}

	_, err := h.service.Signup(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingField):
			c.String(http.StatusBadRequest, msgMissingFields)
		case errors.Is(err, service.ErrDuplicateAccount):
			c.String(http.StatusBadRequest, msgDuplicate)
		case errors.Is(err, service.ErrPasswordTooLong):
			c.String(http.StatusBadRequest, msgPasswordLong)
		default:
			h.logger.WithContext(c.Request.Context()).Error("signup failed", observability.Error(err))
			c.String(http.StatusInternalServerError, "Failed to create user")
		}
		return
	}

	c.String(http.StatusOK, msgUserCreated)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, msgMissingFields)
		return
	}

	_, token, err := h.service.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrMissingField):
			c.String(http.StatusBadRequest, msgMissingFields)
		case errors.Is(err, service.ErrAuthentication):
			c.String(http.StatusUnauthorized, msgBadLogin)
		default:
			h.logger.WithContext(c.Request.Context()).Error("login failed", observability.Error(err))
			c.String(http.StatusInternalServerError, "Failed to login")
		}
		return
	}

	c.String(http.StatusOK, token)
}

func (h *AuthHandler) ListUsers(c *gin.Context) {
	users, err := h.service.ListUsers(c.Request.Context())
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Error("list users failed", observability.Error(err))
		c.String(http.StatusInternalServerError, "Failed to list users")
		return
	}
	c.JSON(http.StatusOK, users)
}

// Events streams account events as server-sent events until the client
// disconnects or the hub closes.
func (h *AuthHandler) Events(c *gin.Context) {
	sub, err := h.hub.Subscribe()
	if err != nil {
		c.String(http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	defer sub.Close()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			c.SSEvent(ev.Type, ev)
			c.Writer.Flush()
		}
	}
}

// EventsWS streams account events over a websocket, one JSON frame per event.
func (h *AuthHandler) EventsWS(c *gin.Context) {
	sub, err := h.hub.Subscribe()
	if err != nil {
		c.String(http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	defer sub.Close()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithContext(c.Request.Context()).Debug("websocket upgrade failed", observability.Error(err))
		return
	}
	defer conn.Close()

	// Inbound frames are ignored; reading surfaces the peer closing.
	peerGone := make(chan struct{})
	go func() {
		defer close(peerGone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-peerGone:
			return
		case ev, ok := <-sub.Events():
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
					time.Now().Add(wsWriteTimeout))
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}
}

// RouteGuards holds the middleware chains placed in front of the
// non-public auth endpoints. Empty chains leave them open.
type RouteGuards struct {
	Users  []gin.HandlerFunc
	Events []gin.HandlerFunc
}

func chain(guard []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	return append(append([]gin.HandlerFunc{}, guard...), h)
}

// RegisterAuthRoutes registers auth routes
func (h *AuthHandler) RegisterAuthRoutes(rg *gin.RouterGroup, guards RouteGuards) {
	authGroup := rg.Group("/auth")
	{
		authGroup.POST("/signup", h.Signup)
		authGroup.POST("/login", h.Login)
		authGroup.GET("/users", chain(guards.Users, h.ListUsers)...)
		authGroup.GET("/events", chain(guards.Events, h.Events)...)
		authGroup.GET("/events/ws", chain(guards.Events, h.EventsWS)...)
	}
}
