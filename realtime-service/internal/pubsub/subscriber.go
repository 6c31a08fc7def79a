package pubsub

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	pkgpubsub "github.com/weiawesome/wes-canvas-live/pkg/pubsub"
	"github.com/weiawesome/wes-canvas-live/realtime-service/internal/hub"
)

// ReconnectDelay is the pause between subscription attempts.
const ReconnectDelay = 2 * time.Second

// Subscriber delivers room frames published by any instance to the local hub.
type Subscriber struct {
	bus        pkgpubsub.Subscriber
	hub        *hub.Hub
	instanceID string
	retry      time.Duration
	logger     zerolog.Logger
	doneCh     chan struct{}
}

// NewSubscriber creates a new room frame subscriber.
func NewSubscriber(bus pkgpubsub.Subscriber, h *hub.Hub, instanceID string) *Subscriber {
	return &Subscriber{
		bus:        bus,
		hub:        h,
		instanceID: instanceID,
		retry:      ReconnectDelay,
		logger:     pkglog.Component("room-subscriber"),
		doneCh:     make(chan struct{}),
	}
}

// Done returns a channel that is closed when Run() exits.
func (s *Subscriber) Done() <-chan struct{} { return s.doneCh }

// Run subscribes to every room channel and delivers frames until ctx is
// done. Reconnects when the subscription ends.
func (s *Subscriber) Run(ctx context.Context) {
	defer close(s.doneCh)

	for {
		err := s.runSubscription(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn().Err(err).Dur("retry_in", s.retry).Msg("room subscription ended, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.retry):
		}
	}
}

func (s *Subscriber) runSubscription(ctx context.Context) error {
	ch, err := s.bus.SubscribePattern(ctx, pkgpubsub.PatternRoomFrames)
	if err != nil {
		return err
	}
	s.logger.Info().Str("pattern", pkgpubsub.PatternRoomFrames).Msg("subscribed to room frames")

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-ch:
			if !ok {
				return nil
			}
			s.handleEvent(event)
		}
	}
}

func (s *Subscriber) handleEvent(event *pkgpubsub.Event) {
	if event.Type != pkgpubsub.EventRoomFrame || event.RoomID == "" {
		s.logger.Debug().Str(pkglog.FieldEventType, event.Type).Msg("ignoring event")
		return
	}

	s.hub.BroadcastRaw(event.RoomID, event.Payload, event.SkipFor(s.instanceID))
}
