package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"transhot/internal/logger"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string // key and channel prefix, default "transhot:"
}

// RedisStore keeps values in Redis and publishes every Set on a channel so
// that all processes sharing the database observe changes.
type RedisStore struct {
	client  *redis.Client
	prefix  string
	channel string
	log     zerolog.Logger

	listeners listeners
	subOnce   sync.Once
	sub       *redis.PubSub
}

// NewRedisStore connects and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "transhot:"
	}

	return &RedisStore{
		client:  client,
		prefix:  prefix,
		channel: prefix + "changes",
		log:     logger.WithComponent("store-redis"),
	}, nil
}

// Get implements Store.
func (r *RedisStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.prefix + k
	}

	vals, err := r.client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[keys[i]] = json.RawMessage(s)
	}
	return out, nil
}

// Set implements Store. Values and the change message are sent in one
// MULTI/EXEC block.
func (r *RedisStore) Set(ctx context.Context, values map[string]any) error {
	changes, err := encode(values)
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return nil
	}

	msg, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for k, v := range changes {
			pipe.Set(ctx, r.prefix+k, []byte(v), 0)
		}
		pipe.Publish(ctx, r.channel, msg)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// OnChange implements Store. Notifications arrive asynchronously from the
// subscription, for local and remote writers alike.
func (r *RedisStore) OnChange(fn ChangeFunc) func() {
	cancel := r.listeners.add(fn)
	r.subOnce.Do(r.subscribe)
	return cancel
}

func (r *RedisStore) subscribe() {
	r.sub = r.client.Subscribe(context.Background(), r.channel)
	ch := r.sub.Channel()

	go func() {
		for msg := range ch {
			var changes map[string]json.RawMessage
			if err := json.Unmarshal([]byte(msg.Payload), &changes); err != nil {
				r.log.Warn().Err(err).Msg("Ignoring malformed change message")
				continue
			}
			r.listeners.notify(changes)
		}
	}()
}

// Close implements Store.
func (r *RedisStore) Close() error {
	var errs []error
	if r.sub != nil {
		errs = append(errs, r.sub.Close())
	}
	errs = append(errs, r.client.Close())
	return errors.Join(errs...)
}
