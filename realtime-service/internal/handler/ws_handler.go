package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/hub"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/service"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for development
	},
}

// WSHandler handles WebSocket connections.
type WSHandler struct {
	hub     *hub.Hub
	service service.RealtimeService
	logger  zerolog.Logger
}

// NewWSHandler creates a new WebSocket handler.
func NewWSHandler(h *hub.Hub, svc service.RealtimeService) *WSHandler {
	return &WSHandler{
		hub:     h,
		service: svc,
		logger:  pkglog.Component("ws"),
	}
}

// HandleWebSocket handles WebSocket upgrade and message routing.
func (h *WSHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), h.hub, conn)

	// Release the roster entry before the hub forgets the client.
	client.SetDisconnectHandler(func(c *hub.Client) {
		if err := h.service.HandleDisconnect(context.Background(), c); err != nil {
			h.logger.Error().Err(err).Str(pkglog.FieldClientID, c.ID).Msg("disconnect handler error")
		}
	})
	client.SetKeepAliveHandler(func(c *hub.Client) {
		h.service.HandleKeepAlive(context.Background(), c)
	})

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	env, category, err := protocol.Decode(message)
	if err != nil {
		// Unknown or malformed frames never reach the room.
		h.logger.Debug().Err(err).Str(pkglog.FieldClientID, client.ID).Msg("dropping frame")
		msg := "invalid message format"
		if errors.Is(err, protocol.ErrUnknownType) {
			msg = "unknown message type"
		}
		h.sendError(client, protocol.ErrCodeBadRequest, msg)
		return
	}

	ctx := context.Background()

	switch category {
	case protocol.CategoryControl:
		h.handleControl(ctx, client, env)

	case protocol.CategorySignal:
		if err := h.service.HandleSignal(ctx, client, env); err != nil {
			h.logger.Error().Err(err).Str(pkglog.FieldClientID, client.ID).Msg("signal relay failed")
		}

	case protocol.CategoryStructural:
		if err := h.service.HandleStructural(ctx, client, env); err != nil {
			h.logger.Error().Err(err).Str(pkglog.FieldClientID, client.ID).Msg("structural relay failed")
		}

	default:
		// Presence frames are server-originated only.
		h.sendError(client, protocol.ErrCodeBadRequest, "message type not accepted from clients")
	}
}

func (h *WSHandler) handleControl(ctx context.Context, client *hub.Client, env *protocol.Envelope) {
	switch env.Type {
	case protocol.MethodJoinRoom:
		var msg protocol.JoinRoom
		if err := env.Bind(&msg); err != nil {
			h.sendError(client, protocol.ErrCodeBadRequest, "invalid JoinRoom message")
			return
		}
		if msg.RoomID == "" {
			msg.RoomID = env.RoomID
		}
		if err := h.service.HandleJoin(ctx, client, msg); err != nil {
			h.logger.Error().Err(err).Str(pkglog.FieldClientID, client.ID).Msg("join room failed")
		}

	case protocol.MethodLeaveRoom:
		roomID := env.RoomID
		var msg protocol.LeaveRoom
		if len(env.Data) > 0 && env.Bind(&msg) == nil && msg.RoomID != "" {
			roomID = msg.RoomID
		}
		if roomID == "" {
			roomID = client.PresenceRoom()
		}
		if err := h.service.HandleLeave(ctx, client, roomID); err != nil {
			h.logger.Error().Err(err).Str(pkglog.FieldClientID, client.ID).Msg("leave room failed")
		}

	case protocol.MethodPing:
		if err := h.service.HandlePing(ctx, client); err != nil {
			h.logger.Error().Err(err).Str(pkglog.FieldClientID, client.ID).Msg("ping failed")
		}

	default:
		h.sendError(client, protocol.ErrCodeBadRequest, "message type not accepted from clients")
	}
}

func (h *WSHandler) sendError(client *hub.Client, code, message string) {
	data, err := protocol.NewError(code, message).Marshal()
	if err != nil {
		return
	}
	client.SendRaw(data)
}
