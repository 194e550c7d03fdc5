package server

import (
	"time"

	"github.com/fasthttp/websocket"
	"github.com/mentorlink/relay/src/types"
)

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type fasthttpConn struct {
	conn *websocket.Conn
}

func (f *fasthttpConn) WriteJSON(v any) error { return f.conn.WriteJSON(v) }
func (f *fasthttpConn) ReadJSON(v any) error  { return f.conn.ReadJSON(v) }
func (f *fasthttpConn) Close() error          { return f.conn.Close() }

func (f *fasthttpConn) CloseWithStatus(code int, reason string) error {
	deadline := time.Now().Add(time.Second)
	_ = f.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), deadline)
	return f.conn.Close()
}

var _ types.Conn = (*fasthttpConn)(nil)
