package logging

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	level string
	msg   string
	kv    []interface{}
}

type recordingLogger struct {
	mu      sync.Mutex
	entries []entry
}

func (r *recordingLogger) add(level, msg string, kv []interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry{level: level, msg: msg, kv: kv})
}

func (r *recordingLogger) Infow(msg string, kv ...interface{})  { r.add("info", msg, kv) }
func (r *recordingLogger) Debugw(msg string, kv ...interface{}) { r.add("debug", msg, kv) }
func (r *recordingLogger) Warnw(msg string, kv ...interface{})  { r.add("warn", msg, kv) }
func (r *recordingLogger) Errorw(msg string, kv ...interface{}) { r.add("error", msg, kv) }
func (r *recordingLogger) Sync() error                          { return nil }

func TestWithFieldsMergesIntoCtxLogs(t *testing.T) {
	rec := &recordingLogger{}
	SetLogger(rec)
	t.Cleanup(func() { SetLogger(nil) })

	ctx := WithFields(context.Background(), CallFields("CA123")...)
	ctx = WithFields(ctx, "correlation_id", "abc")
	InfowCtx(ctx, "turn handled", "turn.role", "hr")

	require.Len(t, rec.entries, 1)
	got := rec.entries[0]
	assert.Equal(t, "info", got.level)
	assert.Equal(t, "turn handled", got.msg)
	assert.Equal(t, []interface{}{"call.sid", "CA123", "correlation_id", "abc", "turn.role", "hr"}, got.kv)
}

func TestWithFieldsNoopWithoutPairs(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithFields(ctx))
	assert.Nil(t, FromContext(ctx))
}

func TestTurnFieldsReportsLengthOnly(t *testing.T) {
	kv := TurnFields("CA1", "agent", "hello")
	assert.Equal(t, []interface{}{"call.sid", "CA1", "turn.role", "agent", "turn.len", 5}, kv)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "debug", parseLevel("DEBUG").String())
	assert.Equal(t, "warn", parseLevel("warn").String())
	assert.Equal(t, "error", parseLevel(" error ").String())
	assert.Equal(t, "info", parseLevel("bogus").String())
}
