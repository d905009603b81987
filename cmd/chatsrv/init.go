package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/wtask/relay/internal/chat/bridge"
	"github.com/wtask/relay/internal/chat/wire"
	"github.com/wtask/relay/pkg/logging"
)

type (
	// Configuration - server configuration
	Configuration struct {
		// IPAddress - bind the address, empty value means all interfaces
		IPAddress string
		// Port - bind the port
		Port uint
		// ClientIdleTimeout - idle period before client is disconnected, 0 disables it
		ClientIdleTimeout time.Duration
		// WriteTimeout - max duration of single write to client
		WriteTimeout time.Duration
		// MaxMessageSize - longer lines are relayed in several messages
		MaxMessageSize int
		// HTTPAddress - gateway listen address, empty value disables gateway
		HTTPAddress string
		// AllowedOrigin - accepted websocket origin, empty value accepts any
		AllowedOrigin string
		// RedisURL - cluster bridge server, empty value disables bridge
		RedisURL string
		// RedisChannel - cluster bridge channel
		RedisChannel string
		// ShutdownTimeout - time given to stop gracefully
		ShutdownTimeout time.Duration
		// LogLevel - minimal level of log records
		LogLevel slog.Level
	}
)

const (
	// TimeoutMultiplier - timeout flags are given in seconds
	TimeoutMultiplier = time.Second
	// DefaultPort - default listen port of the server
	DefaultPort = 5555
)

var (
	// BinaryName - name of run application binary
	BinaryName = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))

	// Version - app version fingerprint, may be replaced by -ldflags "-X main.Version=..."
	Version = "1.0.0"
)

// Node - TCP address to listen on.
func (c Configuration) Node() string {
	return net.JoinHostPort(c.IPAddress, strconv.FormatUint(uint64(c.Port), 10))
}

// loadConfig - builds configuration from command line arguments and environment.
// Flags take precedence over environment variables.
func loadConfig(args []string, getenv func(string) string, out io.Writer) (Configuration, error) {
	env := defaults{getenv: getenv}
	fs := flag.NewFlagSet(BinaryName, flag.ContinueOnError)
	fs.SetOutput(out)
	fs.Usage = func() {
		fmt.Fprintf(out, "Launch text chat relay server over TCP\n\n\t%s [options]\nOptions:\n\n", BinaryName)
		fs.PrintDefaults()
		fmt.Fprint(out, "\n")
	}

	cfg := Configuration{}
	fs.StringVar(&cfg.IPAddress, "ip", env.str("CHAT_IP", ""), "Listen address (env CHAT_IP)")
	fs.UintVar(&cfg.Port, "port", env.unsigned("CHAT_PORT", DefaultPort), "Listen port (env CHAT_PORT)")
	clientTTL := env.number("CHAT_CLIENT_TIMEOUT", 0)
	fs.IntVar(&clientTTL, "client-timeout", clientTTL, "Idle duration in seconds before client is disconnected, 0 to never disconnect.")
	writeTTL := env.number("CHAT_WRITE_TIMEOUT", 10)
	fs.IntVar(&writeTTL, "write-timeout", writeTTL, "Max duration in seconds of single write to client.")
	fs.IntVar(&cfg.MaxMessageSize, "max-message", env.number("CHAT_MAX_MESSAGE", wire.DefaultMaxMessageSize), "Max size of single message in bytes.")
	fs.StringVar(&cfg.HTTPAddress, "http", env.str("CHAT_HTTP_ADDR", ""), "HTTP gateway listen address, e.g. :8080 (env CHAT_HTTP_ADDR)")
	fs.StringVar(&cfg.AllowedOrigin, "origin", env.str("CHAT_ALLOWED_ORIGIN", ""), "Accepted websocket origin, any if empty.")
	fs.StringVar(&cfg.RedisURL, "redis", env.str("REDIS_URL", ""), "Redis URL to share chat with other instances (env REDIS_URL)")
	fs.StringVar(&cfg.RedisChannel, "redis-channel", env.str("REDIS_CHANNEL", bridge.DefaultChannel), "Redis channel of the chat.")
	shutdownTTL := env.number("CHAT_SHUTDOWN_TIMEOUT", 10)
	fs.IntVar(&shutdownTTL, "shutdown-timeout", shutdownTTL, "Graceful shutdown duration in seconds.")
	logLevel := env.str("LOG_LEVEL", "info")
	fs.StringVar(&logLevel, "log-level", logLevel, "Log level: debug, info, warn or error (env LOG_LEVEL)")

	if env.err != nil {
		return cfg, env.err
	}
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	if cfg.Port > 65535 {
		return cfg, fmt.Errorf("port value (%d) should be less than 65536", cfg.Port)
	}
	if clientTTL < 0 {
		return cfg, errors.New("client-timeout value should be greater or equal 0")
	}
	cfg.ClientIdleTimeout = time.Duration(clientTTL) * TimeoutMultiplier
	if writeTTL < 0 {
		return cfg, errors.New("write-timeout value should be greater or equal 0")
	}
	cfg.WriteTimeout = time.Duration(writeTTL) * TimeoutMultiplier
	if shutdownTTL < 1 {
		return cfg, errors.New("shutdown-timeout value should be greater or equal 1")
	}
	cfg.ShutdownTimeout = time.Duration(shutdownTTL) * TimeoutMultiplier
	if cfg.MaxMessageSize < wire.MinMessageSize {
		return cfg, fmt.Errorf("max-message value should be greater or equal %d", wire.MinMessageSize)
	}
	level, err := logging.ParseLevel(logLevel)
	if err != nil {
		return cfg, err
	}
	cfg.LogLevel = level

	return cfg, nil
}

// defaults - reads flag defaults from environment, remembers first malformed value.
type defaults struct {
	getenv func(string) string
	err    error
}

func (d *defaults) str(key, def string) string {
	if v := d.getenv(key); v != "" {
		return v
	}
	return def
}

func (d *defaults) number(key string, def int) int {
	v := d.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	if err != nil {
		return def
	}
	return n
}

func (d *defaults) unsigned(key string, def uint) uint {
	v := d.getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 0)
	if err != nil && d.err == nil {
		d.err = fmt.Errorf("invalid %s value %q: %w", key, v, err)
	}
	if err != nil {
		return def
	}
	return uint(n)
}
