package realtime

import (
	"context"
	"net/http"

	"Fly8Backend/internal/auth"
	"Fly8Backend/internal/config"
	"Fly8Backend/pkg/response"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Handler upgrades authenticated requests on GET /ws into hub sessions.
type Handler struct {
	hub        *Hub
	dispatcher *Dispatcher
	verifier   *auth.TokenVerifier
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

func NewHandler(hub *Hub, dispatcher *Dispatcher, verifier *auth.TokenVerifier, cfg *config.AppConfig, log *zap.Logger) *Handler {
	return &Handler{
		hub:        hub,
		dispatcher: dispatcher,
		verifier:   verifier,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(cfg.WSAllowedOrigins),
		},
		log: log.Named("realtime.http"),
	}
}

// originChecker allows requests without an Origin header, any origin when "*" is listed, or an exact match.
func originChecker(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Serve authenticates with the Authorization header or the token query parameter.
func (h *Handler) Serve(c echo.Context) error {
	token := c.Request().Header.Get(echo.HeaderAuthorization)
	if token == "" {
		token = c.QueryParam("token")
	}
	principal, err := h.verifier.Verify(token)
	if err != nil {
		return response.Fail(c, http.StatusUnauthorized, "Unauthorized")
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// the upgrader has already written the error response
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}

	session := h.hub.Connect(principal)
	go NewClient(h.hub, h.dispatcher, conn, session).Serve(context.Background())
	return nil
}
