package mcp

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hr-voice-lab/internal/transcript"
)

type fakeOps struct {
	records map[string]*transcript.Record
	dialed  []string
}

func (f *fakeOps) PlaceCall(ctx context.Context, to string) (string, error) {
	f.dialed = append(f.dialed, to)
	return "CAtool", nil
}

func (f *fakeOps) Transcript(ctx context.Context, callSID string) (*transcript.Record, error) {
	rec, ok := f.records[callSID]
	if !ok {
		return nil, transcript.ErrNotFound
	}
	return rec, nil
}

func (f *fakeOps) Summarize(ctx context.Context, callSID string) (*transcript.Record, error) {
	rec, err := f.Transcript(ctx, callSID)
	if err != nil {
		return nil, err
	}
	rec.Summary = "Candidate John Doe, 5 years at Acme Corp."
	rec.SummaryTime = "2025-03-04 10:00:00"
	return rec, nil
}

func connectTestClient(t *testing.T, ops Operations) *ClientWrapper {
	t.Helper()
	srv := httptest.NewServer(Handler(NewServer(ops, "test")))
	t.Cleanup(srv.Close)

	wrapper := NewClientWrapper("integration-client", "test")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// http:// is mapped onto ws://
	require.NoError(t, wrapper.ConnectWebSocket(ctx, srv.URL+"/mcp/ws"))
	t.Cleanup(func() { _ = wrapper.Close() })
	return wrapper
}

func TestClientWrapperTools(t *testing.T) {
	ops := &fakeOps{records: map[string]*transcript.Record{
		"CA1": {CallSID: "CA1", Transcript: []transcript.Entry{
			{Role: transcript.RoleAgent, Text: "What is your full name?", Time: "2025-03-04 09:59:00"},
			{Role: transcript.RoleHR, Text: "John Doe", Time: "2025-03-04 09:59:05"},
		}},
	}}
	wrapper := connectTestClient(t, ops)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	placed, err := wrapper.PlaceCall(ctx, "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, PlaceCallOutput{Status: "Call initiated", CallSID: "CAtool"}, placed)
	assert.Equal(t, []string{"+15551234567"}, ops.dialed)

	rec, err := wrapper.Transcript(ctx, "CA1")
	require.NoError(t, err)
	require.Len(t, rec.Transcript, 2)
	assert.Equal(t, "John Doe", rec.Transcript[1].Text)

	rec, err = wrapper.Summarize(ctx, "CA1")
	require.NoError(t, err)
	assert.Equal(t, "Candidate John Doe, 5 years at Acme Corp.", rec.Summary)
}

func TestClientWrapperToolError(t *testing.T) {
	wrapper := connectTestClient(t, &fakeOps{records: map[string]*transcript.Record{}})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := wrapper.Summarize(ctx, "missing")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "no transcript found"), err.Error())
}

func TestClientWrapperNotConnected(t *testing.T) {
	w := NewClientWrapper("c", "test")
	_, err := w.PlaceCall(context.Background(), "+1555")
	assert.Error(t, err)
	assert.NoError(t, w.Close())
}
