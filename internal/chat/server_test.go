package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtask/relay/internal/chat/bridge"
	"github.com/wtask/relay/internal/chat/broker"
	"github.com/wtask/relay/internal/chat/wire"
)

const waitFor = 2 * time.Second

type line struct {
	conn   net.Conn
	reader *wire.Reader
}

func connect(test *testing.T, addr string) *line {
	test.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(test, err)
	test.Cleanup(func() { conn.Close() })
	l := &line{conn, wire.NewReader(conn, wire.DefaultMaxMessageSize)}
	assert.True(test, strings.HasPrefix(l.read(test), "Welcome to the chat room!"))
	return l
}

func (l *line) read(test *testing.T) string {
	test.Helper()
	l.conn.SetReadDeadline(time.Now().Add(waitFor))
	msg, err := l.reader.ReadMessage()
	require.NoError(test, err)
	return string(msg)
}

// runServer - starts server in background, returns its TCP address and stop func.
func runServer(test *testing.T, b *broker.Broker, options ...Option) (string, func() error) {
	test.Helper()
	listener, err := Listen("127.0.0.1:0")
	require.NoError(test, err)
	s, err := NewServer(b, options...)
	require.NoError(test, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, listener) }()

	stopped := false
	var result error
	stop := func() error {
		if !stopped {
			stopped = true
			cancel()
			select {
			case result = <-done:
			case <-time.After(waitFor):
				result = fmt.Errorf("server did not stop")
			}
		}
		return result
	}
	test.Cleanup(func() { stop() })
	return listener.Addr().String(), stop
}

func TestListen_addressInUse(test *testing.T) {
	first, err := Listen("127.0.0.1:0")
	require.NoError(test, err)
	defer first.Close()

	second, err := Listen(first.Addr().String())
	require.ErrorIs(test, err, ErrAddressInUse)
	assert.Nil(test, second)

	_, err = Listen("256.0.0.1:0")
	require.Error(test, err)
	assert.NotErrorIs(test, err, ErrAddressInUse)
}

func Test_isAddressInUse(test *testing.T) {
	bind := &net.OpError{
		Op:  "listen",
		Net: "tcp",
		Err: os.NewSyscallError("bind", errnoAddressInUse),
	}
	assert.True(test, isAddressInUse(bind))
	assert.True(test, isAddressInUse(fmt.Errorf("wrapped: %w", bind)))
	assert.False(test, isAddressInUse(&net.OpError{Op: "listen", Net: "tcp", Err: errors.New("permission denied")}))
	assert.False(test, isAddressInUse(nil))
}

func TestNewServer(test *testing.T) {
	_, err := NewServer(nil)
	assert.Error(test, err)

	b, err := broker.New()
	require.NoError(test, err)
	for i, option := range []Option{
		WithLogger(nil),
		WithShutdownTimeout(0),
		WithGateway(nil),
		WithBridge(nil),
	} {
		_, err := NewServer(b, option)
		assert.Error(test, err, "case #%d", i)
	}
}

func TestServer_Run(test *testing.T) {
	b, err := broker.New()
	require.NoError(test, err)
	addr, stop := runServer(test, b)

	x := connect(test, addr)
	y := connect(test, addr)
	assert.Equal(test, fmt.Sprintf("User from %s joined the chat", y.conn.LocalAddr()), x.read(test))

	_, err = y.conn.Write([]byte("bob: hello\n"))
	require.NoError(test, err)
	assert.Equal(test, "bob: hello", x.read(test))

	require.NoError(test, stop())
	assert.Equal(test, "Server is shutting down, bye", x.read(test))
	assert.Equal(test, 0, b.Len())

	_, err = net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(test, err, "listener must be closed after stop")
}

func TestServer_Run_canceled(test *testing.T) {
	b, err := broker.New()
	require.NoError(test, err)
	s, err := NewServer(b)
	require.NoError(test, err)
	listener, err := Listen("127.0.0.1:0")
	require.NoError(test, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(test, s.Run(ctx, listener))
}

func TestServer_Run_gateway(test *testing.T) {
	b, err := broker.New()
	require.NoError(test, err)
	httpListener, err := Listen("127.0.0.1:0")
	require.NoError(test, err)
	addr, stop := runServer(test, b, WithGateway(httpListener))

	connect(test, addr)
	resp, err := http.Get("http://" + httpListener.Addr().String() + "/stats")
	require.NoError(test, err)
	defer resp.Body.Close()
	require.Equal(test, http.StatusOK, resp.StatusCode)
	var stats struct {
		Clients int `json:"clients"`
	}
	require.NoError(test, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(test, 1, stats.Clients)

	require.NoError(test, stop())
}

func TestServer_Run_bridge(test *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(test, err)
	test.Cleanup(mr.Close)

	node := func(name string) (string, *bridge.Bridge) {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		test.Cleanup(func() { rdb.Close() })
		br, err := bridge.New(rdb, bridge.DefaultChannel, bridge.WithOrigin(name))
		require.NoError(test, err)
		b, err := broker.New(broker.WithMirror(br))
		require.NoError(test, err)
		addr, _ := runServer(test, b, WithBridge(br))
		select {
		case <-br.Ready():
		case <-time.After(waitFor):
			test.Fatal("bridge is not subscribed")
		}
		return addr, br
	}
	addrA, _ := node("node-a")
	addrB, _ := node("node-b")

	onB := connect(test, addrB)
	onA := connect(test, addrA)
	assert.Equal(test, fmt.Sprintf("User from %s joined the chat", onA.conn.LocalAddr()), onB.read(test))

	_, err = onA.conn.Write([]byte("alice: across nodes\n"))
	require.NoError(test, err)
	assert.Equal(test, "alice: across nodes", onB.read(test))
}
