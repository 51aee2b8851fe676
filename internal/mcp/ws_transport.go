package mcp

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/modelcontextprotocol/go-sdk/jsonrpc"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const closeGrace = time.Second

// socketTransport carries MCP JSON-RPC over one websocket, one message per
// text frame. The tool server and the CLI client share it.
type socketTransport struct {
	conn *websocket.Conn
}

func newWebSocketTransport(conn *websocket.Conn) sdk.Transport {
	return &socketTransport{conn: conn}
}

func (t *socketTransport) Connect(context.Context) (sdk.Connection, error) {
	return &socketConn{conn: t.conn, id: uuid.NewString()}, nil
}

// socketConn serialises writers; gorilla allows one concurrent writer and
// the SDK may respond to several requests at once.
type socketConn struct {
	conn *websocket.Conn
	id   string

	wmu       sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func (c *socketConn) Read(ctx context.Context) (jsonrpc.Message, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(dl)
		defer c.conn.SetReadDeadline(time.Time{})
	}
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		return jsonrpc.DecodeMessage(data)
	}
}

func (c *socketConn) Write(ctx context.Context, msg jsonrpc.Message) error {
	data, err := jsonrpc.EncodeMessage(msg)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(dl)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Close sends a normal closure frame before dropping the socket.
func (c *socketConn) Close() error {
	c.closeOnce.Do(func() {
		c.wmu.Lock()
		werr := c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		c.wmu.Unlock()
		if errors.Is(werr, websocket.ErrCloseSent) {
			werr = nil
		}
		c.closeErr = errors.Join(werr, c.conn.Close())
	})
	return c.closeErr
}

func (c *socketConn) SessionID() string { return c.id }
