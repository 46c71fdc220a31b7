// Package redis relays draft notifications between service instances over
// Redis pub/sub, so subscribers on every instance see every change.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/anees-mohamed-ar/logistic/internal/adapter/bus"
	"github.com/anees-mohamed-ar/logistic/internal/domain"
)

// Compile-time checks: Relay stands in for the hub on both ends.
var (
	_ domain.Notifier   = (*Relay)(nil)
	_ domain.Subscriber = (*Relay)(nil)
)

// ChannelPrefix starts the name of every company's notification channel.
const ChannelPrefix = "logistic:notifications:"

const pattern = ChannelPrefix + "*"

// Connect parses a redis:// URL and checks the server answers.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// Relay publishes notifications to Redis and feeds what it receives back
// into the local hub. While Run is not subscribed, Publish delivers to the
// local hub directly.
type Relay struct {
	client    *redis.Client
	hub       *bus.Hub
	logger    *zap.Logger
	listening atomic.Bool
}

// NewRelay creates a relay in front of hub.
func NewRelay(client *redis.Client, hub *bus.Hub, logger *zap.Logger) *Relay {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Relay{client: client, hub: hub, logger: logger}
}

func channel(tenantID int64) string {
	return ChannelPrefix + strconv.FormatInt(tenantID, 10)
}

// Listening reports whether Run currently holds the Redis subscription.
func (r *Relay) Listening() bool {
	return r.listening.Load()
}

// Publish sends n to every instance. When this instance is not listening,
// or Redis is unreachable, the event still reaches this instance's
// subscribers. A Redis failure is returned after local delivery.
func (r *Relay) Publish(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	local := !r.listening.Load()
	if local {
		_ = r.hub.Publish(ctx, n)
	}
	if err := r.client.Publish(ctx, channel(n.TenantID), payload).Err(); err != nil {
		if !local {
			_ = r.hub.Publish(ctx, n)
		}
		return fmt.Errorf("publish to redis: %w", err)
	}
	return nil
}

// Subscribe registers a local subscriber.
func (r *Relay) Subscribe(ctx context.Context, tenantID int64, snapshot domain.SnapshotFunc) (domain.Subscription, error) {
	return r.hub.Subscribe(ctx, tenantID, snapshot)
}

// Run forwards relayed notifications to the hub until ctx ends. A failed
// or dropped subscription is retried with capped backoff.
func (r *Relay) Run(ctx context.Context) error {
	b := retry.WithCappedDuration(5*time.Second, retry.NewExponential(100*time.Millisecond))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := r.listen(ctx); err != nil {
			r.logger.Warn("notification relay interrupted", zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (r *Relay) listen(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, pattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe to notifications: %w", err)
	}
	r.listening.Store(true)
	defer r.listening.Store(false)
	r.logger.Info("notification relay started", zap.String("pattern", pattern))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return errors.New("notification subscription closed")
			}
			r.forward(ctx, msg)
		}
	}
}

func (r *Relay) forward(ctx context.Context, msg *redis.Message) {
	var n domain.Notification
	if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
		r.logger.Warn("discarding malformed notification", zap.String("channel", msg.Channel), zap.Error(err))
		return
	}
	if want := strings.TrimPrefix(msg.Channel, ChannelPrefix); want != strconv.FormatInt(n.TenantID, 10) {
		r.logger.Warn("discarding notification on foreign channel", zap.String("channel", msg.Channel), zap.Int64("tenant_id", n.TenantID))
		return
	}
	_ = r.hub.Publish(ctx, n)
}
