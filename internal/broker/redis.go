package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// envelope is the relay wire format on the Redis channel
type envelope struct {
	Origin      string `msgpack:"o"`
	Destination string `msgpack:"d"`
	Body        []byte `msgpack:"b"`
	ContentType string `msgpack:"c,omitempty"`
	Timestamp   int64  `msgpack:"t"`
}

// RedisRelay shares publications between broker instances over a Redis
// pub/sub channel. Messages from this instance are ignored on the way back.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	origin  string
	hub     *Hub
	logger  *slog.Logger
}

// NewRedisRelay creates a relay delivering remote publications into hub
func NewRedisRelay(rdb *redis.Client, channel string, hub *Hub, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.New().String(),
		hub:     hub,
		logger:  logger.With("component", "redis-relay"),
	}
}

// DialRedis parses url and checks the server is reachable
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

// Forward implements Relay
func (r *RedisRelay) Forward(ctx context.Context, p *Publication) error {
	data, err := r.encode(p)
	if err != nil {
		return err
	}
	if err := r.rdb.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

func (r *RedisRelay) encode(p *Publication) ([]byte, error) {
	data, err := msgpack.Marshal(&envelope{
		Origin:      r.origin,
		Destination: p.Destination,
		Body:        p.Body,
		ContentType: p.ContentType,
		Timestamp:   p.Timestamp.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode relay envelope: %w", err)
	}
	return data, nil
}

// Run subscribes to the channel and delivers remote publications until ctx
// is cancelled.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}
	r.logger.Info("relay subscribed", "channel", r.channel, "origin", r.origin)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			if err := r.handle([]byte(msg.Payload)); err != nil {
				if errors.Is(err, ErrHubClosed) {
					return nil
				}
				r.logger.Warn("relay message dropped", "error", err)
			}
		}
	}
}

// handle decodes one relayed envelope and publishes it locally
func (r *RedisRelay) handle(payload []byte) error {
	var env envelope
	if err := msgpack.Unmarshal(payload, &env); err != nil {
		return fmt.Errorf("decode relay envelope: %w", err)
	}
	if env.Origin == r.origin {
		return nil
	}
	if env.Destination == "" {
		return errors.New("relay envelope without destination")
	}
	return r.hub.PublishLocal(&Publication{
		Destination: env.Destination,
		Body:        env.Body,
		ContentType: env.ContentType,
		Timestamp:   time.UnixMilli(env.Timestamp),
	})
}
