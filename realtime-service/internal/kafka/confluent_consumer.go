package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// ConfluentConsumer implements ContentEventConsumer using confluent-kafka-go.
type ConfluentConsumer struct {
	consumer *kafka.Consumer
	topic    string
	handler  ContentEventHandler
	logger   zerolog.Logger
	doneCh   chan struct{}
}

// NewConfluentConsumer creates a new Kafka consumer for content events.
func NewConfluentConsumer(brokers, topic, groupID string, handler ContentEventHandler) (*ConfluentConsumer, error) {
	c, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"group.id":           groupID,
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	return &ConfluentConsumer{
		consumer: c,
		topic:    topic,
		handler:  handler,
		logger:   pkglog.Component("content-consumer"),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start begins consuming messages from Kafka.
func (cc *ConfluentConsumer) Start(ctx context.Context) error {
	if err := cc.consumer.Subscribe(cc.topic, nil); err != nil {
		close(cc.doneCh)
		return fmt.Errorf("failed to subscribe to topic %s: %w", cc.topic, err)
	}

	cc.logger.Info().Str("topic", cc.topic).Msg("kafka consumer subscribed")

	go cc.consumeLoop(ctx)

	return nil
}

func (cc *ConfluentConsumer) consumeLoop(ctx context.Context) {
	defer close(cc.doneCh)

	for {
		select {
		case <-ctx.Done():
			cc.logger.Info().Msg("kafka consumer shutting down")
			return
		default:
			msg, err := cc.consumer.ReadMessage(100 * time.Millisecond)
			if err != nil {
				// Timeout is expected, continue
				var kerr kafka.Error
				if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
					continue
				}
				cc.logger.Warn().Err(err).Msg("kafka consumer error")
				continue
			}

			cc.processMessage(ctx, msg.Value)
		}
	}
}

func (cc *ConfluentConsumer) processMessage(ctx context.Context, value []byte) {
	event, err := DecodeContentEvent(value)
	if err != nil {
		cc.logger.Warn().Err(err).Msg("dropping content event")
		return
	}

	cc.logger.Debug().
		Str(pkglog.FieldEventType, event.Type).
		Str(pkglog.FieldRoomID, event.RoomID).
		Str(pkglog.FieldItemID, event.ItemID).
		Msg("content event received")

	if err := cc.handler.HandleContentEvent(ctx, event); err != nil {
		cc.logger.Error().Err(err).Str(pkglog.FieldRoomID, event.RoomID).Msg("failed to handle content event")
	}
}

// DecodeContentEvent parses and validates a content event.
func DecodeContentEvent(value []byte) (*ContentEvent, error) {
	var event ContentEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("unmarshal content event: %w", err)
	}
	if event.RoomID == "" {
		return nil, errors.New("content event without room_id")
	}
	switch event.Type {
	case EventItemCreated, EventItemUpdated, EventItemDeleted:
		if event.ItemID == "" {
			return nil, fmt.Errorf("%s without item_id", event.Type)
		}
		if _, ok := protocol.ParseItemType(string(event.ItemType)); !ok {
			return nil, fmt.Errorf("%s with unknown item_type %q", event.Type, event.ItemType)
		}
	case EventDocumentSaved:
	default:
		return nil, fmt.Errorf("unknown content event type %q", event.Type)
	}
	return &event, nil
}

// Close stops the consumer and releases resources.
func (cc *ConfluentConsumer) Close() error {
	<-cc.doneCh
	if err := cc.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	return nil
}
