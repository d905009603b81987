package broker

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"time"
)

// fakePeer - in-memory Peer to control read and write results.
type fakePeer struct {
	addr *net.TCPAddr

	mu       sync.Mutex
	writeErr error
	written  []string

	readDeadlineErr,
	writeDeadlineErr error

	inbox     chan []byte
	fail      chan error
	done      chan struct{}
	closeOnce sync.Once
}

func newFakePeer(port int) *fakePeer {
	return &fakePeer{
		addr:  &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port},
		inbox: make(chan []byte),
		fail:  make(chan error, 1),
		done:  make(chan struct{}),
	}
}

func (p *fakePeer) ReadMessage() ([]byte, error) {
	select {
	case msg := <-p.inbox:
		return msg, nil
	case err := <-p.fail:
		return nil, err
	case <-p.done:
		return nil, io.EOF
	}
}

func (p *fakePeer) WriteMessage(payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.writeErr != nil {
		return p.writeErr
	}
	p.written = append(p.written, string(payload))
	return nil
}

func (p *fakePeer) SetReadDeadline(time.Time) error  { return p.readDeadlineErr }
func (p *fakePeer) SetWriteDeadline(time.Time) error { return p.writeDeadlineErr }
func (p *fakePeer) RemoteAddr() net.Addr             { return p.addr }

func (p *fakePeer) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

func (p *fakePeer) isClosed() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *fakePeer) messages() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.written...)
}

// syncBuffer - log sink safe to read while handlers are writing.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

// fakeMirror - records published payloads.
type fakeMirror struct {
	mu        sync.Mutex
	published []string
}

func (m *fakeMirror) Publish(_ context.Context, payload []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.published = append(m.published, string(payload))
}

func (m *fakeMirror) payloads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string{}, m.published...)
}
