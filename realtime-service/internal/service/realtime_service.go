package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-canvas-live/pkg/jwt"
	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
	"github.com/weiawesome/wes-canvas-live/pkg/pubsub"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/hub"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/kafka"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/store"
)

// TokenValidator verifies room credentials.
type TokenValidator interface {
	ValidateToken(token string) (*jwt.Claims, error)
}

// Config holds realtime service configuration.
type Config struct {
	InstanceID  string
	PresenceTTL time.Duration
}

type realtimeService struct {
	hub       *hub.Hub
	store     store.RosterStore
	publisher pubsub.Publisher
	tokens    TokenValidator
	observer  Observer
	config    Config
	logger    zerolog.Logger
}

// Option configures the service.
type Option func(*realtimeService)

// WithObserver reports counters to o.
func WithObserver(o Observer) Option {
	return func(s *realtimeService) { s.observer = o }
}

// NewRealtimeService creates a new RealtimeService instance.
func NewRealtimeService(
	h *hub.Hub,
	s store.RosterStore,
	publisher pubsub.Publisher,
	tokens TokenValidator,
	cfg Config,
	opts ...Option,
) RealtimeService {
	if cfg.PresenceTTL <= 0 {
		cfg.PresenceTTL = 2 * time.Minute
	}
	svc := &realtimeService{
		hub:       h,
		store:     s,
		publisher: publisher,
		tokens:    tokens,
		observer:  nopObserver{},
		config:    cfg,
		logger:    pkglog.Component("realtime"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

func (s *realtimeService) HandleJoin(ctx context.Context, c *hub.Client, msg protocol.JoinRoom) error {
	if msg.RoomID == "" {
		s.observer.JoinObserved(JoinRejected)
		return s.sendError(c, protocol.ErrCodeBadRequest, "room_id required")
	}
	if msg.RoomKind != "" && !msg.RoomKind.Valid() {
		s.observer.JoinObserved(JoinRejected)
		return s.sendError(c, protocol.ErrCodeBadRequest, "unknown room_kind")
	}

	claims, err := s.tokens.ValidateToken(msg.Token)
	if err != nil {
		s.observer.JoinObserved(JoinUnauthorized)
		s.logger.Debug().Err(err).Str(pkglog.FieldClientID, c.ID).Msg("join rejected")
		return s.sendError(c, protocol.ErrCodeUnauthorized, "invalid token")
	}

	// A client rejoins after every reconnect; a rejoin on the same socket
	// only needs a fresh roster.
	if prev := c.PresenceRoom(); prev != "" {
		if prev == msg.RoomID {
			return s.sendRoster(ctx, c, msg.RoomID)
		}
		if err := s.HandleLeave(ctx, c, prev); err != nil {
			s.logger.Warn().Err(err).Str(pkglog.FieldRoomID, prev).Msg("failed to leave previous room")
		}
	}

	participant := protocol.Participant{UserID: claims.UserID, DisplayName: claims.Name()}
	c.SetIdentity(participant.UserID, participant.DisplayName)

	first, err := s.store.AddConnection(ctx, msg.RoomID, participant, s.config.PresenceTTL)
	if err != nil {
		s.observer.JoinObserved(JoinFailed)
		s.logger.Error().Err(err).Str(pkglog.FieldRoomID, msg.RoomID).Msg("failed to add connection")
		return s.sendError(c, protocol.ErrCodeInternalError, "failed to join room")
	}

	c.HoldPresence(msg.RoomID)
	s.hub.JoinRoom(c, msg.RoomID)

	// The joiner gets the snapshot before any delta.
	if err := s.sendRoster(ctx, c, msg.RoomID); err != nil {
		return err
	}

	if first {
		if err := s.publish(ctx, msg.RoomID, protocol.EventUserJoined, protocol.UserJoined{User: participant}, c.ID); err != nil {
			return err
		}
	}

	s.observer.JoinObserved(JoinOK)
	s.logger.Info().
		Str(pkglog.FieldClientID, c.ID).
		Str(pkglog.FieldUserID, participant.UserID).
		Str(pkglog.FieldRoomID, msg.RoomID).
		Bool("first_connection", first).
		Msg("client joined")
	return nil
}

// sendRoster sends the room's participants other than c's own user.
func (s *realtimeService) sendRoster(ctx context.Context, c *hub.Client, roomID string) error {
	members, err := s.store.Members(ctx, roomID)
	if err != nil {
		s.logger.Error().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to list members")
		return s.sendError(c, protocol.ErrCodeInternalError, "failed to load roster")
	}
	self, _ := c.Identity()
	others := make([]protocol.Participant, 0, len(members))
	for _, m := range members {
		if m.UserID != self {
			others = append(others, m)
		}
	}
	frame, err := protocol.Encode(protocol.EventPresenceList, roomID, protocol.PresenceList{Users: others})
	if err != nil {
		return err
	}
	c.SendRaw(frame)
	return nil
}

func (s *realtimeService) HandleLeave(ctx context.Context, c *hub.Client, roomID string) error {
	if !c.ReleasePresence(roomID) {
		return nil
	}

	s.hub.LeaveRoom(c, roomID)

	userID, _ := c.Identity()
	last, err := s.store.RemoveConnection(ctx, roomID, userID)
	if err != nil {
		return fmt.Errorf("remove connection: %w", err)
	}
	if !last {
		return nil
	}

	s.logger.Info().Str(pkglog.FieldUserID, userID).Str(pkglog.FieldRoomID, roomID).Msg("user left")
	return s.publish(ctx, roomID, protocol.EventUserLeft, protocol.UserLeft{UserID: userID}, "")
}

func (s *realtimeService) HandleSignal(ctx context.Context, c *hub.Client, env *protocol.Envelope) error {
	roomID := c.RoomID()
	if roomID == "" {
		return s.sendError(c, protocol.ErrCodeNotJoined, "join a room first")
	}
	userID, _ := c.Identity()

	var payload any
	switch env.Type {
	case protocol.SignalFocus:
		var m protocol.FocusClaim
		if err := env.Bind(&m); err != nil {
			return s.sendError(c, protocol.ErrCodeBadRequest, "invalid focus payload")
		}
		m.UserID = userID
		payload = m
	case protocol.SignalCursor:
		var m protocol.CursorSample
		if err := env.Bind(&m); err != nil {
			return s.sendError(c, protocol.ErrCodeBadRequest, "invalid cursor payload")
		}
		m.UserID = userID
		payload = m
	case protocol.SignalTextCursor:
		var m protocol.TextCursor
		if err := env.Bind(&m); err != nil || m.ItemID == "" {
			return s.sendError(c, protocol.ErrCodeBadRequest, "invalid text cursor payload")
		}
		m.UserID = userID
		payload = m
	default:
		return s.sendError(c, protocol.ErrCodeBadRequest, "not a signal")
	}

	if err := s.publish(ctx, roomID, env.Type, payload, c.ID); err != nil {
		return err
	}
	s.observer.FrameRelayed(protocol.CategorySignal.String())
	return nil
}

func (s *realtimeService) HandleStructural(ctx context.Context, c *hub.Client, env *protocol.Envelope) error {
	roomID := c.RoomID()
	if roomID == "" {
		return s.sendError(c, protocol.ErrCodeNotJoined, "join a room first")
	}

	// Payload-less events are valid hints.
	var ev protocol.StructuralEvent
	if len(env.Data) > 0 {
		if err := env.Bind(&ev); err != nil {
			return s.sendError(c, protocol.ErrCodeBadRequest, "invalid structural payload")
		}
	}
	ev.UserID, _ = c.Identity()

	if err := s.publish(ctx, roomID, env.Type, ev, c.ID); err != nil {
		return err
	}
	s.observer.FrameRelayed(protocol.CategoryStructural.String())
	return nil
}

func (s *realtimeService) HandleKeepAlive(ctx context.Context, c *hub.Client) {
	roomID := c.PresenceRoom()
	if roomID == "" {
		return
	}
	if err := s.store.Refresh(ctx, roomID, s.config.PresenceTTL); err != nil {
		s.logger.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Msg("failed to refresh roster")
	}
}

func (s *realtimeService) HandlePing(ctx context.Context, c *hub.Client) error {
	s.HandleKeepAlive(ctx, c)
	frame, err := protocol.Encode(protocol.EventPong, "", nil)
	if err != nil {
		return err
	}
	c.SendRaw(frame)
	return nil
}

func (s *realtimeService) HandleDisconnect(ctx context.Context, c *hub.Client) error {
	return s.HandleLeave(ctx, c, c.PresenceRoom())
}

func (s *realtimeService) GetPresence(ctx context.Context, roomID string) ([]protocol.Participant, error) {
	return s.store.Members(ctx, roomID)
}

func (s *realtimeService) HandleContentEvent(ctx context.Context, event *kafka.ContentEvent) error {
	s.observer.ContentEventObserved(event.Type)

	var (
		msgType protocol.MessageType
		payload protocol.StructuralEvent
	)
	switch event.Type {
	case kafka.EventItemCreated, kafka.EventItemUpdated, kafka.EventItemDeleted:
		it, ok := protocol.ParseItemType(string(event.ItemType))
		if !ok {
			return fmt.Errorf("unknown item type %q", event.ItemType)
		}
		kind := protocol.KindUpdated
		switch event.Type {
		case kafka.EventItemCreated:
			kind = protocol.KindAdded
		case kafka.EventItemDeleted:
			kind = protocol.KindDeleted
		}
		msgType = protocol.StructuralType(it, kind)
		payload = protocol.StructuralEvent{ItemID: event.ItemID, UserID: event.UserID, Item: event.Item}
		if kind == protocol.KindDeleted {
			payload.Item = nil
		}
	case kafka.EventDocumentSaved:
		msgType = protocol.EventDocumentUpdated
		payload = protocol.StructuralEvent{ItemID: event.RoomID, UserID: event.UserID}
	default:
		return fmt.Errorf("unknown content event type %q", event.Type)
	}

	return s.publish(ctx, event.RoomID, msgType, payload, "")
}

// publish fans a frame out to every instance. The exclude client is only
// skipped on this instance.
func (s *realtimeService) publish(ctx context.Context, roomID string, t protocol.MessageType, payload any, exclude string) error {
	frame, err := protocol.Encode(t, roomID, payload)
	if err != nil {
		return err
	}

	event := pubsub.NewFrameEvent(roomID, s.config.InstanceID, exclude, frame)
	if err := s.publisher.Publish(ctx, pubsub.RoomFramesChannel(roomID), event); err != nil {
		// Local participants still get the frame.
		s.logger.Warn().Err(err).Str(pkglog.FieldRoomID, roomID).Str(pkglog.FieldEventType, string(t)).
			Msg("publish failed, delivering locally")
		s.hub.BroadcastRaw(roomID, frame, exclude)
	}
	return nil
}

func (s *realtimeService) sendError(c *hub.Client, code, message string) error {
	data, err := protocol.NewError(code, message).Marshal()
	if err != nil {
		return err
	}
	c.SendRaw(data)
	return nil
}
