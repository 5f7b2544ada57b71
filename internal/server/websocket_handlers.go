package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"inkwell/internal/middleware"
	"inkwell/internal/models"
	"inkwell/internal/notifications"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
)

// wsTicketTTL bounds how long a ticket may sit unused before the upgrade.
const wsTicketTTL = 30 * time.Second

// IssueWSTicket handles GET /api/ws/ticket. Browsers cannot set headers on a
// websocket upgrade, so clients trade their bearer token for a single-use
// ticket and pass it as ?ticket= on /api/ws.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errors.New("realtime notifications unavailable")))
	}

	userID := currentUserID(c)
	ticket := uuid.NewString()
	if err := s.redis.Set(c.UserContext(), wsTicketKey(ticket),
		strconv.FormatUint(uint64(userID), 10), wsTicketTTL).Err(); err != nil {
		middleware.RedisErrors.WithLabelValues("ws_ticket").Inc()
		return respondServiceError(c, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(wsTicketTTL.Seconds()),
	})
}

func (s *Server) requireWebSocketUpgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	if s.hub == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewInternalError(errors.New("realtime notifications unavailable")))
	}
	return c.Next()
}

// WebsocketHandler streams notification events to the authenticated user.
// The stream is push-only; frames sent by the client are ignored.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		middleware.ActiveWebSockets.Inc()
		defer middleware.ActiveWebSockets.Dec()

		userID, ok := conn.Locals("userID").(uint)
		if !ok || userID == 0 {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"unauthorized"}`))
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			middleware.Logger.Warn("websocket registration rejected",
				slog.Uint64("user_id", uint64(userID)),
				slog.String("error", err.Error()))
			payload, _ := json.Marshal(fiber.Map{"error": err.Error()})
			_ = conn.WriteMessage(websocket.TextMessage, payload)
			_ = conn.Close()
			return
		}

		if hello, err := json.Marshal(notifications.Event{
			Type:      "connected",
			Payload:   fiber.Map{"user_id": userID},
			CreatedAt: time.Now().UTC(),
		}); err == nil {
			client.Deliver(hello)
		}

		client.Serve()
	})
}
