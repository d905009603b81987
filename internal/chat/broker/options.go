package broker

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/wtask/relay/internal/chat/wire"
)

// Option - configures Broker in New.
type Option func(b *Broker) error

func setup(b *Broker, options ...Option) error {
	if b == nil {
		return nil
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(b); err != nil {
			return err
		}
	}
	return nil
}

// WithLogger - attach logger for connection events.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) error {
		if logger == nil {
			return errors.New("broker.WithLogger: logger is nil")
		}
		b.logger = logger
		return nil
	}
}

// WithReadTimeout - overwrites default idle read timeout of connections.
// Zero timeout means clients are never disconnected due to inactivity.
func WithReadTimeout(timeout time.Duration) Option {
	return func(b *Broker) error {
		if timeout < 0 {
			return fmt.Errorf("broker.WithReadTimeout: invalid timeout (%v)", timeout)
		}
		b.readTimeout = timeout
		return nil
	}
}

// WithWriteTimeout - overwrites default write timeout of connections.
// Zero timeout disables write deadline at all.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(b *Broker) error {
		if timeout < 0 {
			return fmt.Errorf("broker.WithWriteTimeout: invalid timeout (%v)", timeout)
		}
		b.writeTimeout = timeout
		return nil
	}
}

// WithMaxMessageSize - overwrites size of single inbound message of TCP connections.
// Longer lines are relayed as several messages.
func WithMaxMessageSize(size int) Option {
	return func(b *Broker) error {
		if size < wire.MinMessageSize {
			return fmt.Errorf(
				"broker.WithMaxMessageSize: size (%d) must be greater or equal than %d",
				size,
				wire.MinMessageSize,
			)
		}
		b.maxMessageSize = size
		return nil
	}
}

// WithMirror - attach mirror to receive copies of all relayed messages and announcements.
func WithMirror(mirror Mirror) Option {
	return func(b *Broker) error {
		if b.mirror != nil {
			return errors.New("broker.WithMirror: mirror already set up")
		}
		b.mirror = mirror
		return nil
	}
}
