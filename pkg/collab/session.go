package collab

import (
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/weiawesome/wes-canvas-live/pkg/channel"
	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// Transport is the subset of *channel.Channel a Session needs.
type Transport interface {
	Invoker
	On(t protocol.MessageType, h func(*protocol.Envelope))
	OnStateChange(h func(channel.State))
	Close()
}

// SessionConfig configures a Session.
type SessionConfig struct {
	RoomID   string
	RoomKind protocol.RoomKind
	// UserID is this participant's id, used to ignore hints about its own
	// document writes.
	UserID string

	Transport Transport
	Items     ItemLister
	Store     ItemStore
	Documents DocumentStore
	Scheduler Scheduler

	OnError func(error)
	Logger  *zerolog.Logger
}

// Session binds every collab component to one room over one transport.
// The caller owns it and must Close it.
type Session struct {
	cfg SessionConfig
	log zerolog.Logger

	Roster     *Roster
	Signals    *SignalMirror
	Broadcast  *Broadcaster
	Positions  *PositionCache
	Dispatcher *Dispatcher
	// Document is nil unless the session was opened with a DocumentStore.
	Document *DocumentEditor

	mu        sync.Mutex
	closed    bool
	connected bool
}

// OpenSession wires a session onto cfg.Transport. Handlers are registered
// before returning, so the transport may already be connecting.
func OpenSession(cfg SessionConfig) (*Session, error) {
	if cfg.RoomID == "" {
		return nil, errors.New("collab: room id is required")
	}
	if cfg.Transport == nil {
		return nil, errors.New("collab: transport is required")
	}
	if cfg.RoomKind == "" {
		cfg.RoomKind = protocol.RoomKindBoard
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = RealScheduler()
	}

	logger := pkglog.Component("collab")
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str(pkglog.FieldRoomID, cfg.RoomID).Logger()

	s := &Session{
		cfg:       cfg,
		log:       logger,
		Roster:    NewRoster(),
		Signals:   NewSignalMirror(),
		Broadcast: NewBroadcaster(cfg.Transport, cfg.RoomID, cfg.Scheduler, logger),
		Positions: NewPositionCache(),
	}
	if cfg.Documents != nil {
		s.Document = NewDocumentEditor(cfg.Documents, cfg.RoomID)
	}
	s.Dispatcher = NewDispatcher(DispatcherConfig{
		BoardID:    cfg.RoomID,
		Lister:     cfg.Items,
		Scheduler:  cfg.Scheduler,
		Positions:  s.Positions,
		OnDocument: s.documentHint,
		Logger:     &logger,
	})

	s.Roster.OnLeave(s.Signals.Purge)
	s.wire()
	return s, nil
}

func (s *Session) wire() {
	t := s.cfg.Transport

	s.on(protocol.EventPresenceList, func(env *protocol.Envelope) {
		var msg protocol.PresenceList
		if s.bind(env, &msg) {
			s.Roster.ApplyList(msg.Users)
		}
	})
	s.on(protocol.EventUserJoined, func(env *protocol.Envelope) {
		var msg protocol.UserJoined
		if s.bind(env, &msg) {
			s.Roster.ApplyJoined(msg.User)
		}
	})
	s.on(protocol.EventUserLeft, func(env *protocol.Envelope) {
		var msg protocol.UserLeft
		if s.bind(env, &msg) {
			s.Roster.ApplyLeft(msg.UserID)
		}
	})

	s.on(protocol.SignalFocus, func(env *protocol.Envelope) {
		var msg protocol.FocusClaim
		if s.bind(env, &msg) {
			s.Signals.ApplyFocus(msg)
		}
	})
	s.on(protocol.SignalCursor, func(env *protocol.Envelope) {
		var msg protocol.CursorSample
		if s.bind(env, &msg) {
			s.Signals.ApplyCursor(msg)
		}
	})
	s.on(protocol.SignalTextCursor, func(env *protocol.Envelope) {
		var msg protocol.TextCursor
		if s.bind(env, &msg) {
			s.Signals.ApplyTextCursor(msg)
		}
	})

	for _, it := range protocol.ItemTypes {
		for _, kind := range []protocol.EventKind{protocol.KindAdded, protocol.KindUpdated, protocol.KindDeleted} {
			s.on(protocol.StructuralType(it, kind), s.Dispatcher.Handle)
		}
	}

	s.on(protocol.EventError, func(env *protocol.Envelope) {
		var msg protocol.ErrorMessage
		if s.bind(env, &msg) {
			s.log.Warn().Str("code", msg.Code).Msg(msg.Message)
		}
	})

	t.OnStateChange(s.stateChanged)
}

// on registers h so that it stops running once the session is closed.
func (s *Session) on(t protocol.MessageType, h func(*protocol.Envelope)) {
	s.cfg.Transport.On(t, func(env *protocol.Envelope) {
		if s.isClosed() {
			return
		}
		h(env)
	})
}

func (s *Session) bind(env *protocol.Envelope, v any) bool {
	if err := env.Bind(v); err != nil {
		s.log.Debug().Err(err).Msg("dropping frame")
		return false
	}
	return true
}

// stateChanged triggers a resync after every reconnect, since nothing
// missed while disconnected is replayed.
func (s *Session) stateChanged(state channel.State) {
	if state != channel.StateConnected || s.isClosed() {
		return
	}

	s.mu.Lock()
	reconnect := s.connected
	s.connected = true
	s.mu.Unlock()

	if !reconnect {
		return
	}
	s.log.Info().Msg("reconnected, resyncing")
	if s.cfg.RoomKind == protocol.RoomKindDocument {
		if s.Document != nil {
			s.Document.MarkStale()
		}
		return
	}
	s.Dispatcher.Hint()
}

func (s *Session) documentHint(userID string) {
	if s.Document == nil {
		return
	}
	if userID != "" && userID == s.cfg.UserID {
		return
	}
	s.Document.MarkStale()
}

// Item returns the reconciler for item, creating and tracking it if this
// client is not already showing it.
func (s *Session) Item(item protocol.Item) *Reconciler {
	if r, ok := s.Dispatcher.Live(item.ID); ok {
		return r
	}
	r := NewReconciler(ReconcilerConfig{
		Item:      item,
		Relay:     s.cfg.Transport,
		Store:     s.cfg.Store,
		Scheduler: s.cfg.Scheduler,
		Positions: s.Positions,
		OnError:   s.cfg.OnError,
		Logger:    &s.log,
	})
	s.Dispatcher.Track(r)
	return r
}

// Release flushes and stops the reconciler of itemID and forgets its
// caret throttles.
func (s *Session) Release(itemID string) {
	s.Broadcast.ReleaseItem(itemID)
	r, ok := s.Dispatcher.Live(itemID)
	if !ok {
		return
	}
	r.Close()
	s.Dispatcher.Untrack(itemID)
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close stops every timer, flushes pending edits, detaches handlers and
// then closes the transport.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.Dispatcher.Close()
	s.cfg.Transport.Close()
}
