// Package events carries the explicit side effects of a call (turns,
// summaries, call end) from the webhook controller to persistence and live
// monitors.
package events

import (
	"context"
	"errors"
	"time"
)

type Kind string

const (
	KindTurn    Kind = "turn"
	KindSummary Kind = "summary"
	KindEnded   Kind = "ended"
)

// Event is a single call side effect. Role is set for turns only.
type Event struct {
	Kind    Kind      `json:"kind"`
	CallSID string    `json:"call_sid"`
	Role    string    `json:"role,omitempty"`
	Text    string    `json:"text"`
	Time    time.Time `json:"time"`
}

// Sink receives call events.
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Emit(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Fanout delivers every event to all sinks and joins their errors.
type Fanout []Sink

func (f Fanout) Emit(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
