// Package webhook drives a screening call from the telephony provider's
// voice webhooks: it feeds speech into the session manager, renders the
// resulting directive and emits the persistence events.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hr-voice-lab/internal/events"
	"github.com/hr-voice-lab/internal/logging"
	"github.com/hr-voice-lab/internal/screening"
	"github.com/hr-voice-lab/internal/transcript"
	"github.com/hr-voice-lab/internal/voice"
	"github.com/hr-voice-lab/llm"
)

const (
	Greeting        = "Hello, this is an AI HR assistant calling to discuss a job opportunity. Are you available to talk now?"
	NoResponseBye   = "I did not receive a response. Goodbye."
	ClosingLine     = "Thank you for your time. Goodbye."
	EndedSummary    = "Conversation ended gracefully."
	AskNameAgain    = "I didn't quite catch that. Could you please tell me your full name?"
	AskRepeat       = "I didn't hear a response. Could you please repeat that?"
	AskRepeatShort  = "I didn't catch that. Could you please repeat?"
	SummaryPreamble = "Summarize this HR phone call, identifying the candidate's name, years of experience, current company, notice period, and expected salary if mentioned:\n\n"

	gatherPath = "/gather"

	startTimeout  = 5
	listenTimeout = 10
)

var (
	ErrMissingTo   = errors.New("missing 'to' number")
	ErrRateLimited = errors.New("too many outbound calls, try again later")
)

type Options struct {
	Manager   *screening.Manager
	Generator llm.Generator
	Store     transcript.Store
	Sink      events.Sink
	Dialer    voice.Dialer
	Hub       *events.Hub
	Filter    *voice.LowSignalFilter

	VoiceName string
	AnswerURL string
	// RateLimit and Burst throttle outbound call placement. A zero RateLimit
	// disables throttling.
	RateLimit      float64
	Burst          int
	SummaryTimeout time.Duration
	Now            func() time.Time
}

type Controller struct {
	manager *screening.Manager
	gen     llm.Generator
	store   transcript.Store
	sink    events.Sink
	dialer  voice.Dialer
	hub     *events.Hub
	filter  *voice.LowSignalFilter
	limiter *rate.Limiter

	voiceName      string
	answerURL      string
	summaryTimeout time.Duration
	now            func() time.Time
}

func New(o Options) *Controller {
	c := &Controller{
		manager:        o.Manager,
		gen:            o.Generator,
		store:          o.Store,
		sink:           o.Sink,
		dialer:         o.Dialer,
		hub:            o.Hub,
		filter:         o.Filter,
		voiceName:      o.VoiceName,
		answerURL:      o.AnswerURL,
		summaryTimeout: o.SummaryTimeout,
		now:            o.Now,
	}
	if c.filter == nil {
		c.filter = voice.NewLowSignalFilter(voice.DefaultLowSignal)
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.summaryTimeout <= 0 {
		c.summaryTimeout = 60 * time.Second
	}
	if c.sink == nil {
		c.sink = events.Fanout{}
	}
	if o.RateLimit > 0 && o.Burst > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(o.RateLimit), o.Burst)
	}
	return c
}

// PlaceCall dials to and returns the provider's call id.
func (c *Controller) PlaceCall(ctx context.Context, to string) (string, error) {
	to = strings.TrimSpace(to)
	if to == "" {
		return "", ErrMissingTo
	}
	if c.limiter != nil && !c.limiter.Allow() {
		return "", ErrRateLimited
	}
	sid, err := c.dialer.Dial(ctx, to, c.answerURL)
	if err != nil {
		logging.ErrorwCtx(ctx, "webhook: call placement failed", "to", to, "err", err)
		return "", err
	}
	logging.InfowCtx(ctx, "webhook: call initiated", logging.CallFields(sid)...)
	return sid, nil
}

// Start answers the call: greet, listen briefly, else say goodbye.
func (c *Controller) Start(ctx context.Context, callSID string) *voice.Response {
	logging.InfowCtx(ctx, "webhook: call started", logging.CallFields(callSID)...)
	if callSID != "" {
		c.manager.Greet(callSID, Greeting)
		c.emitTurn(ctx, callSID, transcript.RoleAgent, Greeting)
	}
	return voice.NewResponse().
		Gather(voice.SpeechGather(gatherPath, startTimeout, "", c.voiceName, Greeting)).
		Say(c.voiceName, NoResponseBye).
		Hangup()
}

// Gather evaluates one speech result and returns the next directive. It
// never fails: every path yields a document.
func (c *Controller) Gather(ctx context.Context, callSID, speech string) *voice.Response {
	if callSID == "" {
		logging.WarnwCtx(ctx, "webhook: gather without call id")
		return c.hangup(NoResponseBye)
	}
	if c.concluded(ctx, callSID) {
		logging.InfowCtx(ctx, "webhook: gather after conclusion", logging.CallFields(callSID)...)
		return c.hangup(ClosingLine)
	}

	if c.filter.IsLowSignal(speech) {
		prompt := c.reengagePrompt(ctx, callSID)
		logging.InfowCtx(ctx, "webhook: low-signal speech, re-engaging",
			append(logging.CallFields(callSID), "speech", speech)...)
		return voice.NewResponse().Gather(voice.SpeechGather(gatherPath, listenTimeout, "", c.voiceName, prompt))
	}

	speech = strings.TrimSpace(speech)
	logging.InfowCtx(ctx, "webhook: counterparty turn", logging.TurnFields(callSID, string(transcript.RoleHR), speech)...)
	c.emitTurn(ctx, callSID, transcript.RoleHR, speech)
	if err := c.manager.RecordInput(callSID, speech); err != nil {
		logging.WarnwCtx(ctx, "webhook: input rejected", append(logging.CallFields(callSID), "err", err)...)
		return c.hangup(ClosingLine)
	}

	reply, err := c.manager.NextUtterance(ctx, callSID)
	if err != nil {
		logging.WarnwCtx(ctx, "webhook: no utterance", append(logging.CallFields(callSID), "err", err)...)
		return c.hangup(ClosingLine)
	}
	logging.InfowCtx(ctx, "webhook: agent turn",
		append(logging.TurnFields(callSID, string(transcript.RoleAgent), reply.Text), "ending", reply.IsEnding, "fallback", reply.Fallback)...)
	c.emitTurn(ctx, callSID, transcript.RoleAgent, reply.Text)

	if reply.IsEnding {
		c.emit(ctx, events.Event{Kind: events.KindSummary, CallSID: callSID, Text: EndedSummary, Time: c.now()})
		c.emit(ctx, events.Event{Kind: events.KindEnded, CallSID: callSID, Time: c.now()})
		return voice.NewResponse().
			Say(c.voiceName, reply.Text).
			Say(c.voiceName, ClosingLine).
			Hangup()
	}
	return voice.NewResponse().Gather(voice.SpeechGather(gatherPath, listenTimeout, "auto", c.voiceName, reply.Text))
}

// concluded reports whether the call has already ended. The live session is
// authoritative; once it has been reaped, a persisted summary marks the call
// as finished.
func (c *Controller) concluded(ctx context.Context, callSID string) bool {
	if s, ok := c.manager.Session(callSID); ok {
		return s.Status() == screening.StatusConcluded
	}
	rec, err := c.store.Get(ctx, callSID)
	switch {
	case errors.Is(err, transcript.ErrNotFound):
		return false
	case err != nil:
		logging.WarnwCtx(ctx, "webhook: transcript lookup failed", append(logging.CallFields(callSID), "err", err)...)
		return false
	}
	return rec.Summary != ""
}

// reengagePrompt picks the clarification prompt from the last persisted
// agent turn.
func (c *Controller) reengagePrompt(ctx context.Context, callSID string) string {
	last, ok := "", false
	rec, err := c.store.Get(ctx, callSID)
	switch {
	case errors.Is(err, transcript.ErrNotFound):
		return AskRepeatShort
	case err != nil:
		logging.WarnwCtx(ctx, "webhook: transcript lookup failed, using session",
			append(logging.CallFields(callSID), "err", err)...)
		s, found := c.manager.Session(callSID)
		if !found {
			return AskRepeatShort
		}
		if t, has := s.LastAgentTurn(); has {
			last, ok = t.Text, true
		}
	default:
		last, ok = rec.LastAgentText()
	}
	if ok && strings.Contains(strings.ToLower(last), "name") {
		return AskNameAgain
	}
	return AskRepeat
}

// Transcript returns the persisted record for callSID.
func (c *Controller) Transcript(ctx context.Context, callSID string) (*transcript.Record, error) {
	return c.store.Get(ctx, callSID)
}

// Summarize generates a summary over the whole persisted transcript, stores
// it and returns the updated record. Generator failures are returned.
func (c *Controller) Summarize(ctx context.Context, callSID string) (*transcript.Record, error) {
	rec, err := c.store.Get(ctx, callSID)
	if err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, c.summaryTimeout)
	defer cancel()
	text, err := c.gen.Generate(gctx, []llm.Message{{Role: llm.RoleUser, Content: SummaryPreamble + rec.Lines()}})
	if err != nil {
		logging.ErrorwCtx(ctx, "webhook: summary generation failed", append(logging.CallFields(callSID), "err", err)...)
		return nil, fmt.Errorf("generate summary: %w", err)
	}
	text = strings.TrimSpace(text)

	at := c.now()
	if err := c.sink.Emit(ctx, events.Event{Kind: events.KindSummary, CallSID: callSID, Text: text, Time: at}); err != nil {
		logging.ErrorwCtx(ctx, "webhook: summary persistence failed", append(logging.CallFields(callSID), "err", err)...)
		return nil, fmt.Errorf("save summary: %w", err)
	}
	rec.Summary = text
	rec.SummaryTime = at.Local().Format(transcript.TimeLayout)
	logging.InfowCtx(ctx, "webhook: summary saved", logging.CallFields(callSID)...)
	return rec, nil
}

func (c *Controller) hangup(text string) *voice.Response {
	return voice.NewResponse().Say(c.voiceName, text).Hangup()
}

func (c *Controller) emitTurn(ctx context.Context, callSID string, role transcript.Role, text string) {
	c.emit(ctx, events.Event{Kind: events.KindTurn, CallSID: callSID, Role: string(role), Text: text, Time: c.now()})
}

// emit delivers live-path events; failures are logged and the call goes on.
func (c *Controller) emit(ctx context.Context, ev events.Event) {
	if err := c.sink.Emit(ctx, ev); err != nil {
		logging.ErrorwCtx(ctx, "webhook: event delivery failed",
			append(logging.CallFields(ev.CallSID), "kind", ev.Kind, "err", err)...)
	}
}
