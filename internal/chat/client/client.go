// Package client implements relay client: it sends lines to the server
// and reports every received line to a callback.
package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/wtask/relay/internal/chat/wire"
)

// ErrEmptyMessage - returns by SendLine for blank text.
var ErrEmptyMessage = errors.New("client.Client: empty message")

// Client - connection to relay server.
type Client struct {
	conn      net.Conn
	reader    *wire.Reader
	onMessage func(text string)
	onLost    func(err error)

	wmu     sync.Mutex
	closing atomic.Bool
	done    chan struct{}
	err     error
}

// Option - client option.
type Option func(c *Client)

// WithOnLost - callback called once when connection is lost not by Close.
func WithOnLost(f func(err error)) Option {
	return func(c *Client) { c.onLost = f }
}

// Dial - connects to relay server at addr and starts receiving in background.
// onMessage is called once per received line from one goroutine.
func Dial(ctx context.Context, addr string, onMessage func(text string), options ...Option) (*Client, error) {
	if onMessage == nil {
		return nil, errors.New("client.Dial: onMessage callback is nil")
	}
	d := net.Dialer{}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client.Dial: %w", err)
	}
	c := &Client{
		conn:      conn,
		reader:    wire.NewReader(conn, wire.DefaultMaxMessageSize),
		onMessage: onMessage,
		done:      make(chan struct{}),
	}
	for _, option := range options {
		option(c)
	}
	go c.receive()
	return c, nil
}

func (c *Client) receive() {
	defer close(c.done)
	for {
		msg, err := c.reader.ReadMessage()
		if err != nil {
			if !c.closing.Load() {
				c.err = err
				if c.onLost != nil {
					c.onLost(err)
				}
			}
			c.conn.Close()
			return
		}
		c.onMessage(string(msg))
	}
}

// SendLine - sends single line of text, line breaks inside text are replaced with spaces.
func (c *Client) SendLine(text string) error {
	text = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ").Replace(text)
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := wire.WriteMessage(c.conn, []byte(text)); err != nil {
		return fmt.Errorf("client.SendLine: %w", err)
	}
	return nil
}

// LocalAddr - local address of the connection, the server announces client with it.
func (c *Client) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// Done - is closed when receiving is finished.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err - returns the error which has stopped receiving, nil after Close.
// Valid after Done is closed.
func (c *Client) Err() error {
	<-c.done
	return c.err
}

// Close - closes connection and waits for receiving to finish.
func (c *Client) Close() error {
	c.closing.Store(true)
	err := c.conn.Close()
	<-c.done
	return err
}
