package client

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wtask/relay/internal/chat/broker"
)

const waitFor = 2 * time.Second

func startRelay(test *testing.T) string {
	test.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(test, err)
	b, err := broker.New()
	require.NoError(test, err)
	go b.Serve(listener)
	test.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		b.Shutdown(ctx)
	})
	return listener.Addr().String()
}

type received struct {
	mu    sync.Mutex
	lines []string
}

func (r *received) onMessage(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, text)
}

func (r *received) has(text string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.lines {
		if l == text {
			return true
		}
	}
	return false
}

func TestDial_failure(test *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(test, err)
	addr := listener.Addr().String()
	listener.Close()

	_, err = Dial(context.Background(), addr, func(string) {})
	assert.Error(test, err)

	_, err = Dial(context.Background(), addr, nil)
	assert.Error(test, err)
}

func TestClient_chat(test *testing.T) {
	addr := startRelay(test)
	ctx := context.Background()

	alice := &received{}
	a, err := Dial(ctx, addr, alice.onMessage)
	require.NoError(test, err)
	defer a.Close()
	welcome := fmt.Sprintf("Welcome to the chat room! Connected from %s", a.LocalAddr())
	require.Eventually(test, func() bool { return alice.has(welcome) }, waitFor, 5*time.Millisecond)

	bob := &received{}
	b, err := Dial(ctx, addr, bob.onMessage)
	require.NoError(test, err)
	joined := fmt.Sprintf("User from %s joined the chat", b.LocalAddr())
	require.Eventually(test, func() bool { return alice.has(joined) }, waitFor, 5*time.Millisecond)

	require.NoError(test, b.SendLine("Bob: hello\nagain"))
	assert.Eventually(test, func() bool { return alice.has("Bob: hello again") }, waitFor, 5*time.Millisecond)
	assert.ErrorIs(test, b.SendLine(" \n "), ErrEmptyMessage)

	bobAddr := b.LocalAddr().String()
	require.NoError(test, b.Close())
	assert.NoError(test, b.Err())
	left := fmt.Sprintf("User from %s left the chat", bobAddr)
	assert.Eventually(test, func() bool { return alice.has(left) }, waitFor, 5*time.Millisecond)
	assert.False(test, bob.has("Bob: hello again"))
}

func TestClient_lostConnection(test *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(test, err)
	defer listener.Close()
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		conn.Write([]byte("only line\n"))
		conn.Close()
	}()

	lost := make(chan error, 1)
	var lines []string
	c, err := Dial(context.Background(), listener.Addr().String(), func(text string) {
		lines = append(lines, text)
	}, WithOnLost(func(err error) { lost <- err }))
	require.NoError(test, err)

	select {
	case err := <-lost:
		assert.Error(test, err)
	case <-time.After(waitFor):
		test.Fatal("connection loss is not reported")
	}
	<-c.Done()
	assert.Error(test, c.Err())
	assert.Equal(test, []string{"only line"}, lines)
	assert.True(test, strings.Contains(c.Err().Error(), "EOF"))
}
