package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
)

const (
	kafkaPollTimeout    = 500 * time.Millisecond
	kafkaFlushTimeoutMs = 5000
	kafkaSubBuffer      = 256
)

// route is where a room channel lives on Kafka. All rooms share one topic
// per suffix; the room id is the message key, so a room's frames stay
// ordered within a partition.
type route struct {
	topic string
	room  string
}

// parseRoute maps "canvas:room:B42:frames" to {topic: "canvas-frames", room: "B42"}.
// A "*" room matches every room on the topic.
func parseRoute(channel string) (route, error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || parts[1] != "room" || parts[2] == "" || parts[0] == "" || parts[3] == "" {
		return route{}, fmt.Errorf("invalid channel format: %s", channel)
	}
	r := route{
		topic: parts[0] + "-" + strings.ReplaceAll(parts[3], "_", "-"),
		room:  parts[2],
	}
	if r.room == "*" {
		r.room = ""
	}
	return r, nil
}

var unsafeGroupChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// consumerGroup gives every instance its own group, so each one sees every
// frame on the topic. Room-filtered subscriptions get a further suffix to
// keep their offsets apart from the pattern subscription.
func consumerGroup(cfg KafkaConfig, r route) string {
	group := cfg.GroupID
	if group == "" {
		group = "canvas-pubsub"
	}
	if cfg.InstanceID != "" {
		group += "-" + cfg.InstanceID
	}
	if r.room != "" {
		group += "-room-" + r.room
	}
	return unsafeGroupChars.ReplaceAllString(group, "-")
}

// KafkaPubSub fans room frames out through Kafka topics.
type KafkaPubSub struct {
	cfg      KafkaConfig
	producer *kafka.Producer
	logger   zerolog.Logger

	mu   sync.Mutex
	subs map[string]*kafkaSub

	reportsDone chan struct{}
}

type kafkaSub struct {
	consumer *kafka.Consumer
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewKafkaPubSub connects a producer and creates the configured topics.
func NewKafkaPubSub(cfg KafkaConfig) (*KafkaPubSub, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": cfg.Brokers,
		"acks":              "1",
		"linger.ms":         5,
		"compression.type":  "snappy",
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}

	k := &KafkaPubSub{
		cfg:         cfg,
		producer:    producer,
		logger:      pkglog.Component("pubsub.kafka"),
		subs:        make(map[string]*kafkaSub),
		reportsDone: make(chan struct{}),
	}
	go k.drainReports()

	if err := k.createTopics(); err != nil {
		k.logger.Warn().Err(err).Strs("topics", cfg.Topics).Msg("could not create topics, assuming they exist")
	}
	return k, nil
}

func (k *KafkaPubSub) createTopics() error {
	if len(k.cfg.Topics) == 0 {
		return nil
	}
	admin, err := kafka.NewAdminClientFromProducer(k.producer)
	if err != nil {
		return fmt.Errorf("create admin client: %w", err)
	}
	defer admin.Close()

	partitions := k.cfg.Partitions
	if partitions <= 0 {
		partitions = 4
	}
	specs := make([]kafka.TopicSpecification, len(k.cfg.Topics))
	for i, name := range k.cfg.Topics {
		specs[i] = kafka.TopicSpecification{Topic: name, NumPartitions: partitions, ReplicationFactor: 1}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	results, err := admin.CreateTopics(ctx, specs)
	if err != nil {
		return err
	}
	var errs []error
	for _, res := range results {
		switch res.Error.Code() {
		case kafka.ErrNoError, kafka.ErrTopicAlreadyExists:
		default:
			errs = append(errs, fmt.Errorf("topic %s: %w", res.Topic, res.Error))
		}
	}
	return errors.Join(errs...)
}

// drainReports logs failed deliveries; Publish does not wait for acks.
func (k *KafkaPubSub) drainReports() {
	defer close(k.reportsDone)
	for e := range k.producer.Events() {
		if m, ok := e.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			k.logger.Warn().Err(m.TopicPartition.Error).Str(pkglog.FieldRoomID, string(m.Key)).Msg("frame delivery failed")
		}
	}
}

// Publish produces event keyed by its room.
func (k *KafkaPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	r, err := parseRoute(channel)
	if err != nil {
		return err
	}
	if r.room == "" {
		return fmt.Errorf("cannot publish to pattern %s", channel)
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := &kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &r.topic, Partition: kafka.PartitionAny},
		Key:            []byte(r.room),
		Value:          value,
	}
	if err := k.producer.Produce(msg, nil); err != nil {
		return fmt.Errorf("produce to %s: %w", r.topic, err)
	}
	return nil
}

// Subscribe delivers events for one room.
func (k *KafkaPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return k.subscribe(ctx, channel)
}

// SubscribePattern delivers events for every room on the pattern's topic.
func (k *KafkaPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return k.subscribe(ctx, pattern)
}

func (k *KafkaPubSub) subscribe(ctx context.Context, key string) (<-chan *Event, error) {
	r, err := parseRoute(key)
	if err != nil {
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopLocked(key)

	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers":  k.cfg.Brokers,
		"group.id":           consumerGroup(k.cfg, r),
		"auto.offset.reset":  "latest",
		"enable.auto.commit": true,
	})
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	if err := consumer.Subscribe(r.topic, nil); err != nil {
		consumer.Close()
		return nil, fmt.Errorf("subscribe %s: %w", r.topic, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &kafkaSub{consumer: consumer, cancel: cancel, done: make(chan struct{})}
	k.subs[key] = sub

	out := make(chan *Event, kafkaSubBuffer)
	go k.consume(subCtx, sub, r.room, out)
	return out, nil
}

// consume reads until ctx is cancelled or the consumer fails fatally.
// Events are dropped rather than blocking the partition when out is full.
func (k *KafkaPubSub) consume(ctx context.Context, sub *kafkaSub, room string, out chan<- *Event) {
	defer close(sub.done)
	defer close(out)

	for ctx.Err() == nil {
		msg, err := sub.consumer.ReadMessage(kafkaPollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) {
				if kerr.Code() == kafka.ErrTimedOut {
					continue
				}
				if kerr.IsFatal() {
					k.logger.Error().Err(err).Msg("consumer failed")
					return
				}
			}
			k.logger.Warn().Err(err).Msg("consumer error")
			continue
		}
		if room != "" && string(msg.Key) != room {
			continue
		}

		var ev Event
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			k.logger.Debug().Err(err).Msg("dropping undecodable frame")
			continue
		}
		select {
		case out <- &ev:
		case <-ctx.Done():
			return
		default:
			k.logger.Warn().Str(pkglog.FieldRoomID, ev.RoomID).Msg("subscriber buffer full, frame dropped")
		}
	}
}

// stopLocked cancels the subscription under key and waits for its reader.
func (k *KafkaPubSub) stopLocked(key string) error {
	sub, ok := k.subs[key]
	if !ok {
		return nil
	}
	delete(k.subs, key)
	sub.cancel()
	<-sub.done
	return sub.consumer.Close()
}

// Unsubscribe stops the subscription made for channel or pattern.
func (k *KafkaPubSub) Unsubscribe(ctx context.Context, channel string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if err := k.stopLocked(channel); err != nil {
		return fmt.Errorf("close consumer: %w", err)
	}
	return nil
}

// Close stops every subscription and flushes pending frames.
func (k *KafkaPubSub) Close() error {
	k.mu.Lock()
	var errs []error
	for key := range k.subs {
		errs = append(errs, k.stopLocked(key))
	}
	k.mu.Unlock()

	if pending := k.producer.Flush(kafkaFlushTimeoutMs); pending > 0 {
		k.logger.Warn().Int("pending", pending).Msg("closing with undelivered frames")
	}
	k.producer.Close()
	<-k.reportsDone
	return errors.Join(errs...)
}
