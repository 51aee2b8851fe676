package screening

import (
	"sync"
	"time"
)

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerSystem       Speaker = "system"
	SpeakerAgent        Speaker = "agent"
	SpeakerCounterparty Speaker = "counterparty"
)

type Turn struct {
	Speaker Speaker
	Text    string
	Time    time.Time
}

type Status int

const (
	StatusActive Status = iota
	StatusConcluded
)

func (s Status) String() string {
	if s == StatusConcluded {
		return "concluded"
	}
	return "active"
}

// Session is the accumulated history and status of one call. Turns are
// append-only.
type Session struct {
	CallID string

	mu           sync.Mutex
	turns        []Turn
	status       Status
	lastActivity time.Time
}

func newSession(callID string, now time.Time) *Session {
	return &Session{CallID: callID, lastActivity: now}
}

func (s *Session) append(t Turn) {
	s.mu.Lock()
	s.turns = append(s.turns, t)
	s.lastActivity = t.Time
	s.mu.Unlock()
}

// Turns returns a copy of the history.
func (s *Session) Turns() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

func (s *Session) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// LastAgentTurn returns the most recent agent turn, if any.
func (s *Session) LastAgentTurn() (Turn, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.turns) - 1; i >= 0; i-- {
		if s.turns[i].Speaker == SpeakerAgent {
			return s.turns[i], true
		}
	}
	return Turn{}, false
}

func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// conclude flips the session to concluded. It reports false when the
// session was already concluded.
func (s *Session) conclude(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusConcluded {
		return false
	}
	s.status = StatusConcluded
	s.lastActivity = now
	return true
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

func (s *Session) hasAgentTurn() bool {
	_, ok := s.LastAgentTurn()
	return ok
}
