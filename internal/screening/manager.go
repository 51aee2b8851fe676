// Package screening owns per-call conversation state: the turn history fed
// to the response generator, the clarification fallback and the decision
// that an agent utterance ends the call.
package screening

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hr-voice-lab/internal/logging"
	"github.com/hr-voice-lab/llm"
)

// FallbackReply replaces generator replies that failed or were too short.
const FallbackReply = "I didn't quite understand that. Could you please repeat?"

// minReplyLen is counted in characters, not bytes.
const minReplyLen = 5

var (
	ErrEmptyInput       = errors.New("empty input")
	ErrSessionConcluded = errors.New("session concluded")
	ErrNoSession        = errors.New("no session")
)

// Reply is the agent utterance produced for one evaluated turn.
type Reply struct {
	Text     string
	IsEnding bool
	// Fallback is set when Text is FallbackReply substituted for a failed
	// or invalid generation.
	Fallback bool
}

type Option func(*Manager)

// WithTimeout bounds every generator call made by NextUtterance.
func WithTimeout(d time.Duration) Option {
	return func(m *Manager) { m.timeout = d }
}

// WithClock overrides the time source used to stamp turns.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type Manager struct {
	store   SessionStore
	gen     llm.Generator
	timeout time.Duration
	now     func() time.Time
}

func NewManager(store SessionStore, gen llm.Generator, opts ...Option) *Manager {
	m := &Manager{store: store, gen: gen, timeout: 10 * time.Second, now: time.Now}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) Store() SessionStore { return m.store }

// InitSession returns the session for callID, creating it seeded with the
// system instruction when absent. Calling it again is a no-op.
func (m *Manager) InitSession(callID string) *Session {
	now := m.now()
	s, created := m.store.GetOrCreate(callID, now)
	if created {
		s.append(Turn{Speaker: SpeakerSystem, Text: SystemInstruction, Time: now})
		logging.Debugw("screening: session created", logging.CallFields(callID)...)
	}
	return s
}

// Greet initialises the session and records the opening agent utterance.
// The greeting is appended only once per session.
func (m *Manager) Greet(callID, text string) *Session {
	s := m.InitSession(callID)
	if !s.hasAgentTurn() {
		s.append(Turn{Speaker: SpeakerAgent, Text: text, Time: m.now()})
	}
	return s
}

// Session returns the live session for callID.
func (m *Manager) Session(callID string) (*Session, bool) {
	return m.store.Get(callID)
}

// RecordInput appends a counterparty turn, creating the session if needed.
func (m *Manager) RecordInput(callID, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyInput
	}
	s := m.InitSession(callID)
	if s.Status() == StatusConcluded {
		return ErrSessionConcluded
	}
	s.append(Turn{Speaker: SpeakerCounterparty, Text: text, Time: m.now()})
	return nil
}

// NextUtterance asks the generator for the next agent turn given the full
// history and appends it. Generator failures never propagate: they map to
// FallbackReply. An ending reply concludes the session.
func (m *Manager) NextUtterance(ctx context.Context, callID string) (Reply, error) {
	s, ok := m.store.Get(callID)
	if !ok {
		return Reply{}, ErrNoSession
	}
	if s.Status() == StatusConcluded {
		return Reply{}, ErrSessionConcluded
	}

	reply := Reply{Text: m.generate(ctx, callID, s.Turns())}
	if reply.Text == FallbackReply {
		reply.Fallback = true
	}
	s.append(Turn{Speaker: SpeakerAgent, Text: reply.Text, Time: m.now()})

	if !reply.Fallback && ClassifyEnding(reply.Text) {
		reply.IsEnding = true
		s.conclude(m.now())
		logging.Infow("screening: conversation concluded", logging.CallFields(callID)...)
	}
	return reply, nil
}

func (m *Manager) generate(ctx context.Context, callID string, turns []Turn) string {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	text, err := m.gen.Generate(ctx, History(turns))
	if err != nil {
		class := "unknown"
		switch {
		case llm.IsPermanent(err):
			class = "permanent"
		case llm.IsTransient(err):
			class = "transient"
		}
		logging.Warnw("screening: generator failed, using fallback",
			append(logging.CallFields(callID), "class", class, "err", err)...)
		return FallbackReply
	}
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < minReplyLen {
		logging.Warnw("screening: generator reply too short, using fallback",
			append(logging.CallFields(callID), "reply", text)...)
		return FallbackReply
	}
	return text
}

// History maps session turns onto generator messages.
func History(turns []Turn) []llm.Message {
	out := make([]llm.Message, 0, len(turns))
	for _, t := range turns {
		role := llm.RoleUser
		switch t.Speaker {
		case SpeakerSystem:
			role = llm.RoleSystem
		case SpeakerAgent:
			role = llm.RoleAssistant
		}
		out = append(out, llm.Message{Role: role, Content: t.Text})
	}
	return out
}
