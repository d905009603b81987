package broker

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/wtask/relay/internal/chat/wire"
	"github.com/wtask/relay/pkg/background"
	"github.com/wtask/relay/pkg/logging"
)

// Mirror - receives copies of every relayed message to share them outside of the broker.
type Mirror interface {
	Publish(ctx context.Context, payload []byte)
}

// Broker - chat connections keeper and message relay.
type Broker struct {
	readTimeout,
	writeTimeout time.Duration
	maxMessageSize int
	logger         *slog.Logger
	mirror         Mirror

	scope   *background.Scope
	clients *Registry

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
}

// New - builds Broker with needed options.
func New(options ...Option) (*Broker, error) {
	b := &Broker{
		readTimeout:    0,
		writeTimeout:   10 * time.Second,
		maxMessageSize: wire.DefaultMaxMessageSize,
		logger:         logging.Discard(),
		scope:          background.NewScope(context.Background()),
		clients:        NewRegistry(),
		listeners:      make(map[net.Listener]struct{}),
	}

	if err := setup(b, options...); err != nil {
		return nil, err
	}

	return b, nil
}

// Len - returns number of connected clients.
func (b *Broker) Len() int {
	return b.clients.Len()
}

// Serve - accepts connections from listener until it is closed.
// Every connection is kept in background, so accept never waits for client handlers.
// Returns nil when listener is closed by Shutdown.
func (b *Broker) Serve(listener net.Listener) error {
	if !b.track(listener) {
		return ErrUnderStopCondition
	}
	defer b.untrack(listener)

	b.logger.Info("accepting connections", "addr", listener.Addr().String())
	var delay time.Duration
	for {
		conn, err := listener.Accept()
		if err != nil {
			if b.scope.Context().Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			if delay == 0 {
				delay = 5 * time.Millisecond
			} else if delay *= 2; delay > time.Second {
				delay = time.Second
			}
			b.logger.Warn("accept failed", "error", err, "retry", delay)
			time.Sleep(delay)
			continue
		}
		delay = 0

		b.logger.Info("new connection", "addr", conn.RemoteAddr().String())
		if err := b.KeepConnection(conn); err != nil {
			conn.Close()
		}
	}
}

func (b *Broker) track(listener net.Listener) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.scope.Context().Err() != nil {
		return false
	}
	b.listeners[listener] = struct{}{}
	return true
}

func (b *Broker) untrack(listener net.Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, listener)
}

// KeepConnection - starts to serve TCP connection in background.
func (b *Broker) KeepConnection(conn net.Conn) error {
	return b.KeepPeer(ConnPeer(conn, b.maxMessageSize))
}

// KeepPeer - registers new peer and starts in background handler to communicate over it.
// On error the peer is not kept and you should close it by your own.
func (b *Broker) KeepPeer(peer Peer) error {
	h := newHandle(peer)
	if !b.scope.Go(func(ctx context.Context) { b.hold(ctx, h) }) {
		return ErrUnderStopCondition
	}
	return nil
}

// hold - runs the whole life of single client: join, relay loop and part.
func (b *Broker) hold(ctx context.Context, h *Handle) {
	b.clients.Add(h)
	if ctx.Err() != nil {
		// broker is stopping and may have missed this handle
		b.clients.Remove(h)
		h.close()
		return
	}
	h.activate()
	b.logger.Info("client joined", "id", h.ID(), "addr", h.Addr())

	b.Send(h, welcomeText(h.Addr()))
	b.relay(joinText(h.Addr()), h)

	reason := b.relayLoop(ctx, h)

	b.clients.Remove(h)
	h.close()
	b.logger.Info("client left", "id", h.ID(), "addr", h.Addr(), "reason", reason.String())
	if reason != PartShutdown {
		b.relay(partText(h.Addr(), reason), h)
	}
}

func (b *Broker) relayLoop(ctx context.Context, h *Handle) PartReason {
	for {
		if b.readTimeout > 0 {
			if err := h.peer.SetReadDeadline(time.Now().Add(b.readTimeout)); err != nil {
				// following read reports the broken connection
				b.logger.Debug("client read deadline failed", "id", h.ID(), "error", err)
			}
		}
		msg, err := h.peer.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return PartShutdown
			case h.dropped.Load():
				return PartDropped
			case isTimeout(err):
				return PartTimeout
			default:
				b.logger.Debug("client read finished", "id", h.ID(), "error", err)
				return PartLeft
			}
		}
		b.relay(msg, h)
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// relay - broadcasts message to everyone except the sender and passes it to mirror.
func (b *Broker) relay(msg []byte, from *Handle) {
	b.Broadcast(msg, from)
	if b.mirror != nil {
		b.mirror.Publish(b.scope.Context(), msg)
	}
}

// Send - writes message to single client.
// A failed write drops the client: it is removed from registry and closed.
func (b *Broker) Send(h *Handle, payload []byte) error {
	err := h.write(payload, b.writeTimeout)
	if err == nil || err == ErrHandleClosed {
		return err
	}
	h.dropped.Store(true)
	if b.clients.Remove(h) {
		b.logger.Warn("client dropped on write", "id", h.ID(), "addr", h.Addr(), "error", err)
	}
	h.close()
	return err
}

// Broadcast - delivers payload to all kept clients except the excluded one (may be nil).
// Each recipient is written in its own goroutine and the call returns when all writes are done,
// so messages of the same sender are received in the order they were sent.
// Delivery failures only drop failed recipients and are never returned.
func (b *Broker) Broadcast(payload []byte, exclude *Handle) {
	recipients := b.clients.SnapshotExcluding(exclude)
	wg := sync.WaitGroup{}
	for _, h := range recipients {
		wg.Add(1)
		go func(h *Handle) {
			defer wg.Done()
			b.Send(h, payload)
		}(h)
	}
	wg.Wait()
}

// Shutdown - stops accepting, says bye to clients, closes them
// and waits until all client handlers are done or ctx expired.
func (b *Broker) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.scope.Context().Err() != nil {
		b.mu.Unlock()
		return b.scope.Wait(ctx)
	}
	b.scope.Cancel()
	for l := range b.listeners {
		l.Close()
	}
	b.mu.Unlock()

	b.logger.Info("broker is stopping", "clients", b.clients.Len())
	b.Broadcast(shutdownText, nil)
	for _, h := range b.clients.Snapshot() {
		b.clients.Remove(h)
		h.close()
	}
	return b.scope.Wait(ctx)
}
