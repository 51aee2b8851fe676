package transcript

import (
	"context"
	"fmt"

	"github.com/hr-voice-lab/internal/events"
	"github.com/hr-voice-lab/internal/logging"
)

// Recorder persists call events to the Store and the Mirror.
type Recorder struct {
	Store  Store
	Mirror *Mirror
}

func NewRecorder(store Store, mirror *Mirror) *Recorder {
	return &Recorder{Store: store, Mirror: mirror}
}

// Emit implements events.Sink. Store failures are returned; mirror failures
// are only logged.
func (r *Recorder) Emit(ctx context.Context, ev events.Event) error {
	switch ev.Kind {
	case events.KindTurn:
		role := Role(ev.Role)
		if role != RoleAgent && role != RoleHR {
			return fmt.Errorf("transcript: unknown role %q", ev.Role)
		}
		if err := r.Store.AppendTurn(ctx, ev.CallSID, role, ev.Text, ev.Time); err != nil {
			return err
		}
		if err := r.Mirror.AppendTurn(ev.CallSID, role, ev.Text, ev.Time); err != nil {
			logging.Warnw("transcript: mirror append failed", "call.sid", ev.CallSID, "err", err)
		}
	case events.KindSummary:
		if err := r.Store.SaveSummary(ctx, ev.CallSID, ev.Text, ev.Time); err != nil {
			return err
		}
		if err := r.Mirror.AppendSummary(ev.CallSID, ev.Text, ev.Time); err != nil {
			logging.Warnw("transcript: mirror summary failed", "call.sid", ev.CallSID, "err", err)
		}
	}
	return nil
}
