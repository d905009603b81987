package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/wtask/relay/internal/chat"
	"github.com/wtask/relay/internal/chat/bridge"
	"github.com/wtask/relay/internal/chat/broker"
	"github.com/wtask/relay/internal/chat/gateway"
	"github.com/wtask/relay/pkg/logging"
)

const (
	exitOK = iota
	exitFailure
	exitAddressInUse
)

func main() {
	cfg, err := loadConfig(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(exitOK)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s (v%s) error:\n\n\t%s\n", BinaryName, Version, err)
		os.Exit(exitFailure)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, "app", BinaryName, "version", Version)
	os.Exit(run(cfg, logger))
}

func run(cfg Configuration, logger *slog.Logger) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info("starting with config", "config", fmt.Sprintf("%+v", cfg))

	listener, code := listen(cfg.Node(), logger)
	if listener == nil {
		return code
	}

	brokerOptions := []broker.Option{
		broker.WithLogger(logger),
		broker.WithReadTimeout(cfg.ClientIdleTimeout),
		broker.WithWriteTimeout(cfg.WriteTimeout),
		broker.WithMaxMessageSize(cfg.MaxMessageSize),
	}
	serverOptions := []chat.Option{
		chat.WithLogger(logger),
		chat.WithShutdownTimeout(cfg.ShutdownTimeout),
	}

	if cfg.HTTPAddress != "" {
		httpListener, code := listen(cfg.HTTPAddress, logger)
		if httpListener == nil {
			listener.Close()
			return code
		}
		serverOptions = append(serverOptions, chat.WithGateway(httpListener, gateway.WithOrigin(cfg.AllowedOrigin)))
	}

	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid redis url", "error", err)
			listener.Close()
			return exitFailure
		}
		rdb := redis.NewClient(opt)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("redis is unreachable", "addr", opt.Addr, "error", err)
			listener.Close()
			return exitFailure
		}
		br, err := bridge.New(rdb, cfg.RedisChannel, bridge.WithLogger(logger))
		if err != nil {
			logger.Error("can't build cluster bridge", "error", err)
			listener.Close()
			return exitFailure
		}
		brokerOptions = append(brokerOptions, broker.WithMirror(br))
		serverOptions = append(serverOptions, chat.WithBridge(br))
	}

	b, err := broker.New(brokerOptions...)
	if err != nil {
		logger.Error("can't build chat broker", "error", err)
		listener.Close()
		return exitFailure
	}
	server, err := chat.NewServer(b, serverOptions...)
	if err != nil {
		logger.Error("can't start chat server", "error", err)
		listener.Close()
		return exitFailure
	}

	logger.Info("chat server has started, press Ctrl-C to stop", "addr", listener.Addr().String())
	if err := server.Run(ctx, listener); err != nil {
		logger.Error("chat server failed", "error", err)
		return exitFailure
	}
	logger.Info("chat server stopped, bye")
	return exitOK
}

// listen - binds address and reports startup failure in the operator friendly way.
func listen(addr string, logger *slog.Logger) (net.Listener, int) {
	listener, err := chat.Listen(addr)
	switch {
	case errors.Is(err, chat.ErrAddressInUse):
		logger.Error(
			"address is already in use",
			"addr", addr,
			"hint", "check if another instance of the server is running, wait a bit or use a different port",
		)
		return nil, exitAddressInUse
	case err != nil:
		logger.Error("unable to listen", "addr", addr, "error", err)
		return nil, exitFailure
	}
	return listener, exitOK
}
