package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/weiawesome/wes-canvas-live/pkg/protocol"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// redisStore implements RosterStore using Redis.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis-backed roster store.
func NewRedisStore(cfg RedisConfig) (RosterStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &redisStore{client: client}, nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient(client *redis.Client) RosterStore {
	return &redisStore{client: client}
}

// Redis key patterns:
// canvas:room:{room_id}:conns    HASH<user_id, count>         - open connections per user
// canvas:room:{room_id}:members  HASH<user_id, display_name>  - roster entries
// canvas:room:{room_id}:order    ZSET<user_id, joined_at_ms>  - join order

func roomConnsKey(roomID string) string {
	return fmt.Sprintf("canvas:room:%s:conns", roomID)
}

func roomMembersKey(roomID string) string {
	return fmt.Sprintf("canvas:room:%s:members", roomID)
}

func roomOrderKey(roomID string) string {
	return fmt.Sprintf("canvas:room:%s:order", roomID)
}

// removeConnection decrements a user's connection count and drops the
// roster entry when it reaches zero. Returns -1 if the user was absent,
// 0 if connections remain, 1 if this was the last one.
var removeConnection = redis.NewScript(`
local n = redis.call("HINCRBY", KEYS[1], ARGV[1], 0)
if n <= 0 then
	redis.call("HDEL", KEYS[1], ARGV[1])
	return -1
end
n = redis.call("HINCRBY", KEYS[1], ARGV[1], -1)
if n > 0 then
	return 0
end
redis.call("HDEL", KEYS[1], ARGV[1])
redis.call("HDEL", KEYS[2], ARGV[1])
redis.call("ZREM", KEYS[3], ARGV[1])
return 1
`)

func (s *redisStore) AddConnection(ctx context.Context, roomID string, p protocol.Participant, ttl time.Duration) (bool, error) {
	pipe := s.client.TxPipeline()
	incr := pipe.HIncrBy(ctx, roomConnsKey(roomID), p.UserID, 1)
	pipe.HSet(ctx, roomMembersKey(roomID), p.UserID, p.DisplayName)
	pipe.ZAddNX(ctx, roomOrderKey(roomID), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: p.UserID,
	})
	if ttl > 0 {
		pipe.Expire(ctx, roomConnsKey(roomID), ttl)
		pipe.Expire(ctx, roomMembersKey(roomID), ttl)
		pipe.Expire(ctx, roomOrderKey(roomID), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("add connection: %w", err)
	}
	return incr.Val() == 1, nil
}

func (s *redisStore) RemoveConnection(ctx context.Context, roomID, userID string) (bool, error) {
	keys := []string{roomConnsKey(roomID), roomMembersKey(roomID), roomOrderKey(roomID)}
	res, err := removeConnection.Run(ctx, s.client, keys, userID).Int()
	if err != nil {
		return false, fmt.Errorf("remove connection: %w", err)
	}
	return res == 1, nil
}

func (s *redisStore) Members(ctx context.Context, roomID string) ([]protocol.Participant, error) {
	ids, err := s.client.ZRange(ctx, roomOrderKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	if len(ids) == 0 {
		return []protocol.Participant{}, nil
	}

	names, err := s.client.HMGet(ctx, roomMembersKey(roomID), ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("list member names: %w", err)
	}

	members := make([]protocol.Participant, 0, len(ids))
	for i, id := range ids {
		name, ok := names[i].(string)
		if !ok {
			// Entry expired between the two reads.
			continue
		}
		members = append(members, protocol.Participant{UserID: id, DisplayName: name})
	}
	return members, nil
}

func (s *redisStore) Count(ctx context.Context, roomID string) (int64, error) {
	return s.client.ZCard(ctx, roomOrderKey(roomID)).Result()
}

func (s *redisStore) Refresh(ctx context.Context, roomID string, ttl time.Duration) error {
	pipe := s.client.TxPipeline()
	pipe.Expire(ctx, roomConnsKey(roomID), ttl)
	pipe.Expire(ctx, roomMembersKey(roomID), ttl)
	pipe.Expire(ctx, roomOrderKey(roomID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
