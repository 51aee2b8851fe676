// Package mcp exposes the screener's call operations as MCP tools over a
// websocket and provides the matching client used by the CLI.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hr-voice-lab/internal/logging"
	"github.com/hr-voice-lab/internal/transcript"
)

const (
	ToolPlaceCall     = "place_call"
	ToolGetTranscript = "get_transcript"
	ToolSummarizeCall = "summarize_call"
)

// Operations is the call surface the tools drive.
type Operations interface {
	PlaceCall(ctx context.Context, to string) (string, error)
	Transcript(ctx context.Context, callSID string) (*transcript.Record, error)
	Summarize(ctx context.Context, callSID string) (*transcript.Record, error)
}

type PlaceCallInput struct {
	To string `json:"to" jsonschema:"phone number to call, E.164 format"`
}

type PlaceCallOutput struct {
	Status  string `json:"status"`
	CallSID string `json:"call_sid"`
}

type CallInput struct {
	CallSID string `json:"call_sid" jsonschema:"call id returned by place_call"`
}

var errNoTranscript = errors.New("no transcript found for this CallSid")

// NewServer builds an MCP server with the call tools bound to ops.
func NewServer(ops Operations, version string) *sdk.Server {
	server := sdk.NewServer(&sdk.Implementation{Name: "hr-screener", Version: version}, nil)

	sdk.AddTool(server, &sdk.Tool{
		Name:        ToolPlaceCall,
		Description: "Place an outbound screening call to a candidate.",
	}, func(ctx context.Context, req *sdk.CallToolRequest, in PlaceCallInput) (*sdk.CallToolResult, PlaceCallOutput, error) {
		sid, err := ops.PlaceCall(ctx, in.To)
		if err != nil {
			return nil, PlaceCallOutput{}, err
		}
		out := PlaceCallOutput{Status: "Call initiated", CallSID: sid}
		return textResult(out), out, nil
	})

	sdk.AddTool(server, &sdk.Tool{
		Name:        ToolGetTranscript,
		Description: "Fetch the persisted transcript and summary of a call.",
	}, func(ctx context.Context, req *sdk.CallToolRequest, in CallInput) (*sdk.CallToolResult, transcript.Record, error) {
		rec, err := ops.Transcript(ctx, strings.TrimSpace(in.CallSID))
		if err != nil {
			return nil, transcript.Record{}, toolError(err)
		}
		return textResult(rec), *rec, nil
	})

	sdk.AddTool(server, &sdk.Tool{
		Name:        ToolSummarizeCall,
		Description: "Generate, store and return a summary of a call's transcript.",
	}, func(ctx context.Context, req *sdk.CallToolRequest, in CallInput) (*sdk.CallToolResult, transcript.Record, error) {
		rec, err := ops.Summarize(ctx, strings.TrimSpace(in.CallSID))
		if err != nil {
			return nil, transcript.Record{}, toolError(err)
		}
		return textResult(rec), *rec, nil
	})

	return server
}

func toolError(err error) error {
	if errors.Is(err, transcript.ErrNotFound) {
		return errNoTranscript
	}
	return err
}

func textResult(v any) *sdk.CallToolResult {
	b, err := json.Marshal(v)
	if err != nil {
		return &sdk.CallToolResult{IsError: true, Content: []sdk.Content{&sdk.TextContent{Text: err.Error()}}}
	}
	return &sdk.CallToolResult{Content: []sdk.Content{&sdk.TextContent{Text: string(b)}}}
}

// Handler upgrades each request to a websocket and serves one MCP session
// on it until the client disconnects.
func Handler(server *sdk.Server) http.Handler {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warnw("mcp: websocket upgrade failed", "err", err)
			return
		}
		session, err := server.Connect(context.Background(), newWebSocketTransport(conn), nil)
		if err != nil {
			logging.Warnw("mcp: server connect error", "err", err)
			_ = conn.Close()
			return
		}
		logging.Debugw("mcp: session started", "remote", r.RemoteAddr)
		if err := session.Wait(); err != nil {
			logging.Debugw("mcp: session ended with error", "err", err)
		} else {
			logging.Debugw("mcp: session ended")
		}
	})
}
