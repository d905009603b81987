// Package chat assembles the relay: TCP broker, optional HTTP gateway
// and optional cluster bridge, and runs them until the context is done.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/wtask/relay/internal/chat/bridge"
	"github.com/wtask/relay/internal/chat/broker"
	"github.com/wtask/relay/internal/chat/gateway"
	"github.com/wtask/relay/pkg/logging"
)

// ErrAddressInUse - returns by Listen when another process is bound to the address.
var ErrAddressInUse = errors.New("chat: address already in use")

// Listen - binds TCP listener on the address.
func Listen(addr string) (net.Listener, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		if isAddressInUse(err) {
			return nil, fmt.Errorf("%w: %s", ErrAddressInUse, addr)
		}
		return nil, fmt.Errorf("chat.Listen: %w", err)
	}
	return listener, nil
}

// isAddressInUse - reports bind failure caused by another listener of the address.
func isAddressInUse(err error) bool {
	return errors.Is(err, errnoAddressInUse)
}

// Server - runs chat broker over net.Listener together with its satellites.
type Server struct {
	broker          *broker.Broker
	logger          *slog.Logger
	shutdownTimeout time.Duration

	httpListener   net.Listener
	gatewayOptions []gateway.Option
	bridge         *bridge.Bridge
}

// Option - configures Server in NewServer.
type Option func(s *Server) error

// WithLogger - attach logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		if logger == nil {
			return errors.New("chat.WithLogger: logger is nil")
		}
		s.logger = logger
		return nil
	}
}

// WithShutdownTimeout - overwrites time given to graceful shutdown.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(s *Server) error {
		if timeout <= 0 {
			return fmt.Errorf("chat.WithShutdownTimeout: invalid timeout (%v)", timeout)
		}
		s.shutdownTimeout = timeout
		return nil
	}
}

// WithGateway - serve HTTP gateway over the listener.
func WithGateway(listener net.Listener, options ...gateway.Option) Option {
	return func(s *Server) error {
		if listener == nil {
			return errors.New("chat.WithGateway: listener is nil")
		}
		s.httpListener = listener
		s.gatewayOptions = options
		return nil
	}
}

// WithBridge - run cluster bridge, the same bridge should be a mirror of the broker.
func WithBridge(b *bridge.Bridge) Option {
	return func(s *Server) error {
		if b == nil {
			return errors.New("chat.WithBridge: bridge is nil")
		}
		s.bridge = b
		return nil
	}
}

// NewServer - creates chat server for the broker.
func NewServer(b *broker.Broker, options ...Option) (*Server, error) {
	if b == nil {
		return nil, errors.New("chat.NewServer: required broker is nil")
	}
	s := &Server{
		broker:          b,
		logger:          logging.Discard(),
		shutdownTimeout: 10 * time.Second,
	}
	for _, option := range options {
		if option == nil {
			continue
		}
		if err := option(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Run - serves the listener until ctx is done or any component fails,
// then stops everything within shutdown timeout.
func (s *Server) Run(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return errors.New("chat.Server: listener is nil")
	}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.broker.Serve(listener)
		if errors.Is(err, broker.ErrUnderStopCondition) && ctx.Err() != nil {
			// stopped before serving has begun
			listener.Close()
			return nil
		}
		if err != nil {
			return fmt.Errorf("chat.Server: serve %s: %w", listener.Addr(), err)
		}
		return nil
	})

	var httpServer *http.Server
	if s.httpListener != nil {
		gw := gateway.New(s.broker, append([]gateway.Option{gateway.WithLogger(s.logger)}, s.gatewayOptions...)...)
		httpServer = &http.Server{
			Handler:           gw.Router(middleware.RequestID, middleware.RealIP, middleware.Recoverer),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			s.logger.Info("gateway listening", "addr", s.httpListener.Addr().String())
			if err := httpServer.Serve(s.httpListener); !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("chat.Server: gateway: %w", err)
			}
			return nil
		})
	}

	if s.bridge != nil {
		g.Go(func() error {
			return s.bridge.Run(ctx, func(payload []byte) {
				s.broker.Broadcast(payload, nil)
			})
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("chat server is stopping")
		from := time.Now()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		var errs []error
		if httpServer != nil {
			errs = append(errs, httpServer.Shutdown(shutdownCtx))
		}
		errs = append(errs, s.broker.Shutdown(shutdownCtx))
		s.logger.Info("chat server stopped", "elapsed", time.Since(from).Round(time.Millisecond))
		return errors.Join(errs...)
	})

	return g.Wait()
}
