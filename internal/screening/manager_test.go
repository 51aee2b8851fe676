package screening

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hr-voice-lab/llm"
)

// scriptedGenerator returns replies in order and records the history it saw.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	calls   int
	seen    [][]llm.Message
}

func (g *scriptedGenerator) Generate(ctx context.Context, msgs []llm.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.calls
	g.calls++
	g.seen = append(g.seen, msgs)
	if i < len(g.errs) && g.errs[i] != nil {
		return "", g.errs[i]
	}
	if i < len(g.replies) {
		return g.replies[i], nil
	}
	return "Could you tell me more?", nil
}

func newTestManager(gen llm.Generator) *Manager {
	return NewManager(NewMemoryStore(), gen, WithTimeout(time.Second))
}

func TestInitSessionIsIdempotent(t *testing.T) {
	m := newTestManager(&scriptedGenerator{})
	s1 := m.InitSession("CA1")
	s2 := m.InitSession("CA1")

	assert.Same(t, s1, s2)
	assert.Equal(t, 1, m.Store().Len())
	turns := s1.Turns()
	require.Len(t, turns, 1)
	assert.Equal(t, SpeakerSystem, turns[0].Speaker)
	assert.Equal(t, SystemInstruction, turns[0].Text)
}

func TestInitSessionConcurrentDuplicates(t *testing.T) {
	m := newTestManager(&scriptedGenerator{})
	var wg sync.WaitGroup
	sessions := make([]*Session, 32)
	for i := range sessions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sessions[i] = m.InitSession("CA-dup")
		}(i)
	}
	wg.Wait()

	for _, s := range sessions {
		assert.Same(t, sessions[0], s)
	}
	assert.Equal(t, 1, sessions[0].Len())
}

func TestGreetAppendsOnce(t *testing.T) {
	m := newTestManager(&scriptedGenerator{})
	m.Greet("CA1", "Hello there, are you available?")
	s := m.Greet("CA1", "Hello there, are you available?")

	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, SpeakerAgent, turns[1].Speaker)
}

func TestRecordInputRejectsEmpty(t *testing.T) {
	m := newTestManager(&scriptedGenerator{})
	assert.ErrorIs(t, m.RecordInput("CA1", "   "), ErrEmptyInput)
	_, ok := m.Session("CA1")
	assert.False(t, ok)
}

func TestRecordInputAutoCreates(t *testing.T) {
	m := newTestManager(&scriptedGenerator{})
	require.NoError(t, m.RecordInput("CA1", "hello"))
	s, ok := m.Session("CA1")
	require.True(t, ok)
	turns := s.Turns()
	require.Len(t, turns, 2)
	assert.Equal(t, SpeakerSystem, turns[0].Speaker)
	assert.Equal(t, SpeakerCounterparty, turns[1].Speaker)
}

func TestEachEvaluatedTurnAddsTwo(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{"What is your full name?", "How many years of experience do you have?", "Which company are you with?"}}
	m := newTestManager(gen)
	s := m.InitSession("CA1")

	inputs := []string{"Yes I'm available", "John Doe", "Five years"}
	for i, in := range inputs {
		before := s.Len()
		require.NoError(t, m.RecordInput("CA1", in))
		r, err := m.NextUtterance(context.Background(), "CA1")
		require.NoError(t, err)
		assert.False(t, r.IsEnding)
		assert.Equal(t, gen.replies[i], r.Text)
		assert.Equal(t, before+2, s.Len())
	}

	// the generator saw the full ordered history each time
	last := gen.seen[len(gen.seen)-1]
	require.Len(t, last, 1+2*len(inputs)-1)
	assert.Equal(t, llm.RoleSystem, last[0].Role)
	assert.Equal(t, llm.RoleUser, last[1].Role)
	assert.Equal(t, "Yes I'm available", last[1].Content)
	assert.Equal(t, llm.RoleAssistant, last[2].Role)
}

func TestNextUtteranceFallback(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "transient error", err: fmt.Errorf("%w: status 503", llm.ErrTransient)},
		{name: "permanent error", err: fmt.Errorf("%w: status 401", llm.ErrPermanent)},
		{name: "unclassified error", err: errors.New("boom")},
		{name: "short reply", reply: "ok"},
		{name: "whitespace reply", reply: "   hi  "},
		{name: "short non-ascii reply", reply: "नमस्"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gen := &scriptedGenerator{replies: []string{tc.reply}, errs: []error{tc.err}}
			m := newTestManager(gen)
			require.NoError(t, m.RecordInput("CA1", "hello"))

			r, err := m.NextUtterance(context.Background(), "CA1")
			require.NoError(t, err)
			assert.Equal(t, FallbackReply, r.Text)
			assert.True(t, r.Fallback)
			assert.False(t, r.IsEnding)

			s, _ := m.Session("CA1")
			last, ok := s.LastAgentTurn()
			require.True(t, ok)
			assert.Equal(t, FallbackReply, last.Text)
			assert.Equal(t, StatusActive, s.Status())
		})
	}
}

func TestNextUtteranceCountsCharacters(t *testing.T) {
	// six characters, eighteen bytes
	gen := &scriptedGenerator{replies: []string{"नमस्ते"}}
	m := newTestManager(gen)
	require.NoError(t, m.RecordInput("CA1", "hello"))

	r, err := m.NextUtterance(context.Background(), "CA1")
	require.NoError(t, err)
	assert.False(t, r.Fallback)
	assert.Equal(t, "नमस्ते", r.Text)
}

func TestWithClockStampsTurns(t *testing.T) {
	at := time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)
	m := NewManager(NewMemoryStore(), &scriptedGenerator{replies: []string{"What is your full name?"}},
		WithTimeout(time.Second), WithClock(func() time.Time { return at }))

	m.Greet("CA1", "Hello, are you available?")
	require.NoError(t, m.RecordInput("CA1", "Yes"))
	_, err := m.NextUtterance(context.Background(), "CA1")
	require.NoError(t, err)

	s, _ := m.Session("CA1")
	turns := s.Turns()
	require.Len(t, turns, 4)
	for _, turn := range turns {
		assert.Equal(t, at, turn.Time)
	}
	assert.Equal(t, at, s.LastActivity())
}

type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, _ []llm.Message) (string, error) {
	<-ctx.Done()
	return "", fmt.Errorf("%w: %v", llm.ErrTransient, ctx.Err())
}

func TestNextUtteranceTimeoutFallsBack(t *testing.T) {
	m := NewManager(NewMemoryStore(), slowGenerator{}, WithTimeout(10*time.Millisecond))
	require.NoError(t, m.RecordInput("CA1", "hello"))
	r, err := m.NextUtterance(context.Background(), "CA1")
	require.NoError(t, err)
	assert.Equal(t, FallbackReply, r.Text)
}

func TestNextUtteranceEndingConcludes(t *testing.T) {
	gen := &scriptedGenerator{replies: []string{ClosingPhrase}}
	m := newTestManager(gen)
	require.NoError(t, m.RecordInput("CA1", "John Doe, 5 years, Acme Corp, 30 days notice, 20 LPA"))

	r, err := m.NextUtterance(context.Background(), "CA1")
	require.NoError(t, err)
	assert.True(t, r.IsEnding)

	s, _ := m.Session("CA1")
	assert.Equal(t, StatusConcluded, s.Status())
	assert.ErrorIs(t, m.RecordInput("CA1", "one more thing"), ErrSessionConcluded)
	_, err = m.NextUtterance(context.Background(), "CA1")
	assert.ErrorIs(t, err, ErrSessionConcluded)
}

func TestNextUtteranceUnknownSession(t *testing.T) {
	m := newTestManager(&scriptedGenerator{})
	_, err := m.NextUtterance(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNoSession)
}
