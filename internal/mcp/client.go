package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hr-voice-lab/internal/logging"
	"github.com/hr-voice-lab/internal/transcript"
)

// ClientWrapper connects to the screener's MCP endpoint over websocket and
// manages the client session lifecycle.
type ClientWrapper struct {
	client          *sdk.Client
	session         *sdk.ClientSession
	keepaliveCancel context.CancelFunc
	mu              sync.Mutex
}

func NewClientWrapper(name, version string) *ClientWrapper {
	impl := &sdk.Implementation{Name: name, Version: version}
	return &ClientWrapper{client: sdk.NewClient(impl, nil)}
}

// ConnectWebSocket connects to the MCP websocket endpoint and creates a
// session. http(s) URLs are mapped to ws(s).
func (w *ClientWrapper) ConnectWebSocket(ctx context.Context, rawurl string) error {
	u, err := url.Parse(rawurl)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return err
	}
	sess, err := w.client.Connect(ctx, newWebSocketTransport(conn), nil)
	if err != nil {
		_ = conn.Close()
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.session = sess
	kaCtx, cancel := context.WithCancel(context.Background())
	if prev := w.keepaliveCancel; prev != nil {
		prev()
	}
	w.keepaliveCancel = cancel
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-kaCtx.Done():
				return
			case <-ticker.C:
				_ = sess.Ping(kaCtx, nil)
			}
		}
	}()
	logging.Debugw("mcp client connected", "url", u.String())
	return nil
}

// CallTool invokes a tool and decodes its JSON result into out.
func (w *ClientWrapper) CallTool(ctx context.Context, name string, args map[string]any, out any) error {
	w.mu.Lock()
	sess := w.session
	w.mu.Unlock()
	if sess == nil {
		return errors.New("mcp client not connected")
	}
	res, err := sess.CallTool(ctx, &sdk.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return decodeResult(name, res, out)
}

func decodeResult(name string, res *sdk.CallToolResult, out any) error {
	var text string
	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			text = tc.Text
			break
		}
	}
	if res.IsError {
		return fmt.Errorf("%s: %s", name, text)
	}
	if res.StructuredContent != nil {
		b, err := json.Marshal(res.StructuredContent)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, out)
	}
	if text == "" {
		return fmt.Errorf("%s: empty result", name)
	}
	return json.Unmarshal([]byte(text), out)
}

func (w *ClientWrapper) PlaceCall(ctx context.Context, to string) (PlaceCallOutput, error) {
	var out PlaceCallOutput
	err := w.CallTool(ctx, ToolPlaceCall, map[string]any{"to": to}, &out)
	return out, err
}

func (w *ClientWrapper) Transcript(ctx context.Context, callSID string) (*transcript.Record, error) {
	var rec transcript.Record
	if err := w.CallTool(ctx, ToolGetTranscript, map[string]any{"call_sid": callSID}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (w *ClientWrapper) Summarize(ctx context.Context, callSID string) (*transcript.Record, error) {
	var rec transcript.Record
	if err := w.CallTool(ctx, ToolSummarizeCall, map[string]any{"call_sid": callSID}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (w *ClientWrapper) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.keepaliveCancel != nil {
		w.keepaliveCancel()
		w.keepaliveCancel = nil
	}
	if w.session != nil {
		err := w.session.Close()
		w.session = nil
		return err
	}
	return nil
}
