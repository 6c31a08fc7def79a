package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	pkglog "github.com/weiawesome/wes-canvas-live/pkg/log"
)

const redisSubBuffer = 256

// RedisPubSub fans room frames out over Redis PUBLISH / PSUBSCRIBE.
type RedisPubSub struct {
	client *redis.Client
	logger zerolog.Logger

	mu   sync.Mutex
	subs map[string]*redis.PubSub
}

// NewRedisPubSub dials Redis and fails fast when it is unreachable.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", cfg.Address, err)
	}
	return NewRedisPubSubFromClient(client), nil
}

// NewRedisPubSubFromClient takes ownership of client.
func NewRedisPubSubFromClient(client *redis.Client) *RedisPubSub {
	return &RedisPubSub{
		client: client,
		logger: pkglog.Component("pubsub.redis"),
		subs:   make(map[string]*redis.PubSub),
	}
}

func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so a
// publish made afterwards is never missed.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return r.track(ctx, channel, r.client.Subscribe(ctx, channel))
}

func (r *RedisPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return r.track(ctx, pattern, r.client.PSubscribe(ctx, pattern))
}

func (r *RedisPubSub) track(ctx context.Context, key string, ps *redis.PubSub) (<-chan *Event, error) {
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", key, err)
	}

	r.mu.Lock()
	if prev, ok := r.subs[key]; ok {
		prev.Close()
	}
	r.subs[key] = ps
	r.mu.Unlock()

	out := make(chan *Event, redisSubBuffer)
	go r.forward(ctx, ps, out)
	return out, nil
}

// forward decodes messages until ctx ends or ps is closed.
func (r *RedisPubSub) forward(ctx context.Context, ps *redis.PubSub, out chan<- *Event) {
	defer close(out)
	in := ps.Channel(redis.WithChannelSize(redisSubBuffer))
	for {
		var msg *redis.Message
		select {
		case <-ctx.Done():
			return
		case m, ok := <-in:
			if !ok {
				return
			}
			msg = m
		}

		ev := new(Event)
		if err := json.Unmarshal([]byte(msg.Payload), ev); err != nil {
			r.logger.Debug().Err(err).Str("channel", msg.Channel).Msg("dropping undecodable frame")
			continue
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		default:
			r.logger.Warn().Str(pkglog.FieldRoomID, ev.RoomID).Msg("subscriber buffer full, frame dropped")
		}
	}
}

func (r *RedisPubSub) Unsubscribe(ctx context.Context, channel string) error {
	r.mu.Lock()
	ps, ok := r.subs[channel]
	delete(r.subs, channel)
	r.mu.Unlock()
	if !ok {
		return nil
	}
	return ps.Close()
}

// Close ends every subscription and closes the client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	subs := r.subs
	r.subs = make(map[string]*redis.PubSub)
	r.mu.Unlock()

	var errs []error
	for _, ps := range subs {
		errs = append(errs, ps.Close())
	}
	errs = append(errs, r.client.Close())
	return errors.Join(errs...)
}
