// Package bridge mirrors relayed messages between relay instances over Redis pub/sub.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wtask/relay/pkg/logging"
)

// DefaultChannel - default Redis channel shared by relay instances.
const DefaultChannel = "chat:relay"

const publishTimeout = 2 * time.Second

// envelope - published message, origin helps instance to skip own messages.
type envelope struct {
	Origin  string `json:"origin"`
	Payload string `json:"payload"`
}

// Bridge - implements broker.Mirror over Redis channel.
type Bridge struct {
	rdb     *redis.Client
	channel string
	origin  string
	logger  *slog.Logger

	readyOnce sync.Once
	ready     chan struct{}
}

// Option - bridge option.
type Option func(b *Bridge)

// WithLogger - attach logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bridge) { b.logger = logging.OrDiscard(logger) }
}

// WithOrigin - overwrites random instance id.
func WithOrigin(origin string) Option {
	return func(b *Bridge) {
		if origin != "" {
			b.origin = origin
		}
	}
}

// New - builds Bridge for Redis client and channel.
func New(rdb *redis.Client, channel string, options ...Option) (*Bridge, error) {
	if rdb == nil {
		return nil, errors.New("bridge.New: redis client is nil")
	}
	if channel == "" {
		return nil, errors.New("bridge.New: channel is empty")
	}
	b := &Bridge{
		rdb:     rdb,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logging.Discard(),
		ready:   make(chan struct{}),
	}
	for _, option := range options {
		option(b)
	}
	return b, nil
}

// Origin - id of this relay instance.
func (b *Bridge) Origin() string {
	return b.origin
}

// Ready - is closed when Run has subscribed to the channel.
func (b *Bridge) Ready() <-chan struct{} {
	return b.ready
}

// Publish - shares payload with other instances. Failures are logged only.
func (b *Bridge) Publish(ctx context.Context, payload []byte) {
	data, err := json.Marshal(envelope{Origin: b.origin, Payload: string(payload)})
	if err != nil {
		b.logger.Error("bridge encode failed", "error", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.rdb.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Warn("bridge publish failed", "channel", b.channel, "error", err)
	}
}

// Run - subscribes to the channel and passes messages of other instances to deliver
// until ctx is done.
func (b *Bridge) Run(ctx context.Context, deliver func(payload []byte)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("bridge.Run: subscribe %q: %w", b.channel, err)
	}
	b.readyOnce.Do(func() { close(b.ready) })
	b.logger.Info("bridge subscribed", "channel", b.channel, "origin", b.origin)

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("bridge got invalid message", "channel", msg.Channel, "error", err)
				continue
			}
			if env.Origin == b.origin || env.Payload == "" {
				continue
			}
			deliver([]byte(env.Payload))
		}
	}
}
