package broker

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wtask/relay/internal/chat/wire"
)

// Peer - transport of single client, a TCP connection or websocket.
// ReadMessage is called from one goroutine only,
// WriteMessage calls are serialized by Handle.
type Peer interface {
	ReadMessage() ([]byte, error)
	WriteMessage(payload []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

// connPeer - line framed TCP peer.
type connPeer struct {
	net.Conn
	reader *wire.Reader
}

// ConnPeer - wraps net connection into line framed Peer.
func ConnPeer(conn net.Conn, maxMessageSize int) Peer {
	return &connPeer{conn, wire.NewReader(conn, maxMessageSize)}
}

func (p *connPeer) ReadMessage() ([]byte, error) {
	return p.reader.ReadMessage()
}

func (p *connPeer) WriteMessage(payload []byte) error {
	return wire.WriteMessage(p.Conn, payload)
}

// State - connection state of a Handle.
type State int32

const (
	StateConnecting State = iota
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Handle - live reference to one connected client.
type Handle struct {
	id   string
	addr string
	peer Peer

	wmu       sync.Mutex
	state     atomic.Int32
	dropped   atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

func newHandle(peer Peer) *Handle {
	addr := ""
	if a := peer.RemoteAddr(); a != nil {
		addr = a.String()
	}
	return &Handle{id: uuid.NewString(), addr: addr, peer: peer}
}

// ID - unique handle id.
func (h *Handle) ID() string { return h.id }

// Addr - remote address of client.
func (h *Handle) Addr() string { return h.addr }

// State - current connection state.
func (h *Handle) State() State { return State(h.state.Load()) }

func (h *Handle) activate() {
	h.state.CompareAndSwap(int32(StateConnecting), int32(StateActive))
}

func (h *Handle) write(payload []byte, timeout time.Duration) error {
	if h.State() == StateClosed {
		return ErrHandleClosed
	}
	h.wmu.Lock()
	defer h.wmu.Unlock()
	if timeout > 0 {
		if err := h.peer.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
			return err
		}
	}
	return h.peer.WriteMessage(payload)
}

// close - closes underlying peer once, repeated calls return the first result.
func (h *Handle) close() error {
	h.closeOnce.Do(func() {
		h.state.Store(int32(StateClosed))
		h.closeErr = h.peer.Close()
	})
	return h.closeErr
}
