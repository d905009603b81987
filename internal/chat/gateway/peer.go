package gateway

import (
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/wtask/relay/internal/chat/wire"
)

// wsPeer - websocket transport of a relay client, one text frame is one message.
type wsPeer struct {
	conn *websocket.Conn
}

func (p *wsPeer) ReadMessage() ([]byte, error) {
	for {
		mt, data, err := p.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.TextMessage {
			continue
		}
		if msg := wire.Sanitize(data); len(msg) > 0 {
			return msg, nil
		}
	}
}

func (p *wsPeer) WriteMessage(payload []byte) error {
	return p.conn.WriteMessage(websocket.TextMessage, payload)
}

func (p *wsPeer) SetReadDeadline(t time.Time) error  { return p.conn.SetReadDeadline(t) }
func (p *wsPeer) SetWriteDeadline(t time.Time) error { return p.conn.SetWriteDeadline(t) }
func (p *wsPeer) RemoteAddr() net.Addr               { return p.conn.RemoteAddr() }

func (p *wsPeer) Close() error {
	p.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return p.conn.Close()
}
