// Package transcript persists per-call turn logs and summaries.
package transcript

import (
	"context"
	"errors"
	"strings"
	"time"
)

// TimeLayout is the timestamp format of persisted turns and summaries.
const TimeLayout = "2006-01-02 15:04:05"

// Role is the persisted speaker label.
type Role string

const (
	RoleAgent Role = "agent"
	RoleHR    Role = "hr"
)

var ErrNotFound = errors.New("transcript not found")

type Entry struct {
	Role Role   `json:"role"`
	Text string `json:"text"`
	Time string `json:"time"`
}

// Record is the durable projection of a call.
type Record struct {
	CallSID     string  `json:"call_sid"`
	Transcript  []Entry `json:"transcript"`
	Summary     string  `json:"summary,omitempty"`
	SummaryTime string  `json:"summary_time,omitempty"`
}

// LastAgentText returns the text of the most recent agent entry.
func (r *Record) LastAgentText() (string, bool) {
	for i := len(r.Transcript) - 1; i >= 0; i-- {
		if r.Transcript[i].Role == RoleAgent {
			return r.Transcript[i].Text, true
		}
	}
	return "", false
}

// Lines renders the transcript as "role: text" lines.
func (r *Record) Lines() string {
	var b strings.Builder
	for i, e := range r.Transcript {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(e.Role))
		b.WriteString(": ")
		b.WriteString(e.Text)
	}
	return b.String()
}

// Store is the durable transcript log. Appends and summaries upsert the
// record for callSID.
type Store interface {
	AppendTurn(ctx context.Context, callSID string, role Role, text string, at time.Time) error
	SaveSummary(ctx context.Context, callSID, summary string, at time.Time) error
	Get(ctx context.Context, callSID string) (*Record, error)
	Close() error
}

func formatTime(t time.Time) string {
	return t.Local().Format(TimeLayout)
}
