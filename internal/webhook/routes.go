package webhook

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/hr-voice-lab/internal/logging"
	"github.com/hr-voice-lab/internal/transcript"
	"github.com/hr-voice-lab/internal/voice"
)

const (
	msgMissingTo = "Missing 'to' number"
	msgNotFound  = "No transcript found for this CallSid"

	headerCorrelationID = "X-Correlation-ID"
)

type callRequest struct {
	To string `json:"to" form:"to"`
}

type callResponse struct {
	Status  string `json:"status"`
	CallSID string `json:"call_sid"`
}

type summaryResponse struct {
	CallSID    string             `json:"call_sid"`
	Summary    string             `json:"summary"`
	Transcript []transcript.Entry `json:"transcript"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// NewEcho returns an echo instance with the controller's routes and the
// standard middleware.
func NewEcho(c *Controller) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(correlation)
	c.Register(e)
	return e
}

// Register mounts the webhook routes on e.
func (c *Controller) Register(e *echo.Echo) {
	e.GET("/healthz", func(ec echo.Context) error { return ec.String(http.StatusOK, "ok") })
	e.POST("/call", c.handleCall)
	e.POST("/voice", c.handleVoice)
	e.POST("/gather", c.handleGather)
	e.GET("/summary/:callId", c.handleSummary)
	if c.hub != nil {
		e.GET("/calls/:callId/monitor", c.handleMonitor)
	}
}

// correlation tags each request with a correlation id, carried in the
// request context for logging and echoed back in the response header.
func correlation(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ec echo.Context) error {
		req := ec.Request()
		cid := strings.TrimSpace(req.Header.Get(headerCorrelationID))
		if cid == "" {
			cid = uuid.NewString()
		}
		ec.Response().Header().Set(headerCorrelationID, cid)
		ctx := logging.WithFields(req.Context(), "correlation_id", cid)
		ec.SetRequest(req.WithContext(ctx))

		start := time.Now()
		err := next(ec)
		if err != nil {
			ec.Error(err)
		}
		logging.DebugwCtx(ctx, "http: request",
			"method", req.Method,
			"path", ec.Path(),
			"status", ec.Response().Status,
			"duration_ms", time.Since(start).Milliseconds())
		return nil
	}
}

func (c *Controller) handleCall(ec echo.Context) error {
	var body callRequest
	if err := ec.Bind(&body); err != nil {
		logging.WarnwCtx(ec.Request().Context(), "http: call request rejected", "err", err)
		return ec.JSON(http.StatusInternalServerError, errorResponse{Error: bindMessage(err)})
	}
	sid, err := c.PlaceCall(ec.Request().Context(), body.To)
	switch {
	case errors.Is(err, ErrMissingTo):
		return ec.JSON(http.StatusBadRequest, errorResponse{Error: msgMissingTo})
	case errors.Is(err, ErrRateLimited):
		return ec.JSON(http.StatusTooManyRequests, errorResponse{Error: err.Error()})
	case err != nil:
		return ec.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return ec.JSON(http.StatusOK, callResponse{Status: "Call initiated", CallSID: sid})
}

// bindMessage unwraps echo's binding error to the decoder's message.
func bindMessage(err error) string {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		if he.Internal != nil {
			return he.Internal.Error()
		}
		if msg, ok := he.Message.(string); ok {
			return msg
		}
	}
	return err.Error()
}

func (c *Controller) handleVoice(ec echo.Context) error {
	ctx := logging.WithFields(ec.Request().Context(), logging.CallFields(callSID(ec))...)
	return directive(ec, c.Start(ctx, callSID(ec)))
}

func (c *Controller) handleGather(ec echo.Context) error {
	sid := callSID(ec)
	ctx := logging.WithFields(ec.Request().Context(), logging.CallFields(sid)...)
	return directive(ec, c.Gather(ctx, sid, ec.FormValue("SpeechResult")))
}

func (c *Controller) handleSummary(ec echo.Context) error {
	sid := ec.Param("callId")
	ctx := logging.WithFields(ec.Request().Context(), logging.CallFields(sid)...)
	rec, err := c.Summarize(ctx, sid)
	switch {
	case errors.Is(err, transcript.ErrNotFound):
		return ec.JSON(http.StatusNotFound, errorResponse{Error: msgNotFound})
	case err != nil:
		return ec.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return ec.JSON(http.StatusOK, summaryResponse{CallSID: rec.CallSID, Summary: rec.Summary, Transcript: rec.Transcript})
}

func (c *Controller) handleMonitor(ec echo.Context) error {
	c.hub.ServeWS(ec.Response(), ec.Request(), ec.Param("callId"))
	return nil
}

// callSID reads the provider's call id; CallId is accepted as an alias.
func callSID(ec echo.Context) string {
	if v := strings.TrimSpace(ec.FormValue("CallSid")); v != "" {
		return v
	}
	return strings.TrimSpace(ec.FormValue("CallId"))
}

func directive(ec echo.Context, r *voice.Response) error {
	b, err := r.Render()
	if err != nil {
		logging.ErrorwCtx(ec.Request().Context(), "webhook: render directive failed", "err", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "render directive")
	}
	return ec.Blob(http.StatusOK, echo.MIMEApplicationXMLCharsetUTF8, b)
}
