package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

const (
	headerEventType = "event_type"
	headerItemType  = "item_type"

	flushTimeoutMs = 5000
)

// ConfluentProducer publishes content events keyed by room, so the
// realtime instances see one room's saves in write order.
type ConfluentProducer struct {
	producer *kafka.Producer
	topic    string
	logger   zerolog.Logger
	reports  chan struct{}

	// retry is consulted when librdkafka's local queue is full.
	retry func() backoff.BackOff
}

func NewConfluentProducer(brokers, topic string, partitions int) (*ConfluentProducer, error) {
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers":  brokers,
		"acks":               "all",
		"enable.idempotence": true,
		"linger.ms":          5,
		"compression.type":   "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("create content producer: %w", err)
	}

	cp := &ConfluentProducer{
		producer: p,
		topic:    topic,
		logger:   pkglog.Component("content-producer"),
		reports:  make(chan struct{}),
		retry: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 20 * time.Millisecond
			b.MaxElapsedTime = time.Second
			return b
		},
	}
	go cp.watchDeliveries()

	if err := cp.createTopic(partitions); err != nil {
		cp.logger.Warn().Err(err).Str("topic", topic).Msg("could not create topic, assuming it exists")
	}
	return cp, nil
}

func (cp *ConfluentProducer) createTopic(partitions int) error {
	admin, err := kafka.NewAdminClientFromProducer(cp.producer)
	if err != nil {
		return err
	}
	defer admin.Close()

	if partitions <= 0 {
		partitions = 4
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := admin.CreateTopics(ctx, []kafka.TopicSpecification{{
		Topic:             cp.topic,
		NumPartitions:     partitions,
		ReplicationFactor: 1,
	}})
	if err != nil {
		return err
	}
	for _, res := range results {
		if code := res.Error.Code(); code != kafka.ErrNoError && code != kafka.ErrTopicAlreadyExists {
			return res.Error
		}
	}
	return nil
}

func (cp *ConfluentProducer) watchDeliveries() {
	defer close(cp.reports)
	for e := range cp.producer.Events() {
		m, ok := e.(*kafka.Message)
		if !ok || m.TopicPartition.Error == nil {
			continue
		}
		cp.logger.Error().Err(m.TopicPartition.Error).
			Str(pkglog.FieldRoomID, string(m.Key)).
			Str(pkglog.FieldEventType, headerValue(m.Headers, headerEventType)).
			Msg("content event not delivered")
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// encode builds the record for event. The type headers let consumers
// skip events without decoding the body.
func (cp *ConfluentProducer) encode(event *ContentEvent) (*kafka.Message, error) {
	value, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal content event: %w", err)
	}
	return &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &cp.topic, Partition: kafka.PartitionAny},
		Key:            []byte(event.RoomID),
		Value:          value,
		Timestamp:      event.Timestamp,
		Headers: []kafka.Header{
			{Key: headerEventType, Value: []byte(event.Type)},
			{Key: headerItemType, Value: []byte(event.ItemType)},
		},
	}, nil
}

// send enqueues msg, backing off while the local queue is full.
func (cp *ConfluentProducer) send(ctx context.Context, msg *kafka.Message) error {
	var final error
	op := func() error {
		err := cp.producer.Produce(msg, nil)
		var kerr kafka.Error
		if errors.As(err, &kerr) && kerr.Code() == kafka.ErrQueueFull {
			return err
		}
		final = err
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(cp.retry(), ctx)); err != nil {
		return fmt.Errorf("produce to %s: %w", cp.topic, err)
	}
	if final != nil {
		return fmt.Errorf("produce to %s: %w", cp.topic, final)
	}
	return nil
}

func (cp *ConfluentProducer) produce(ctx context.Context, event *ContentEvent) error {
	msg, err := cp.encode(event)
	if err != nil {
		return err
	}
	return cp.send(ctx, msg)
}

func (cp *ConfluentProducer) ProduceItemSaved(ctx context.Context, item *protocol.Item, userID string, created bool) error {
	return cp.produce(ctx, NewItemSavedEvent(item, userID, created))
}

func (cp *ConfluentProducer) ProduceItemDeleted(ctx context.Context, item *protocol.Item, userID string) error {
	return cp.produce(ctx, NewItemDeletedEvent(item, userID))
}

func (cp *ConfluentProducer) ProduceDocumentSaved(ctx context.Context, doc *protocol.Document, userID string) error {
	return cp.produce(ctx, NewDocumentSavedEvent(doc, userID))
}

// Close waits up to five seconds for queued events.
func (cp *ConfluentProducer) Close() error {
	pending := cp.producer.Flush(flushTimeoutMs)
	cp.producer.Close()
	<-cp.reports
	if pending > 0 {
		return fmt.Errorf("%d content events not delivered", pending)
	}
	return nil
}
