package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hr-voice-lab/internal/config"
	"github.com/hr-voice-lab/internal/events"
	"github.com/hr-voice-lab/internal/logging"
	"github.com/hr-voice-lab/internal/mcp"
	"github.com/hr-voice-lab/internal/screening"
	"github.com/hr-voice-lab/internal/transcript"
	"github.com/hr-voice-lab/internal/voice"
	"github.com/hr-voice-lab/internal/webhook"
	"github.com/hr-voice-lab/llm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook server",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logging.Init(cfg.LogLevel)
	defer logging.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := newGenerator(ctx, cfg)
	if err != nil {
		return err
	}
	store, err := transcript.OpenSQLite(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	hub := events.NewHub()
	recorder := transcript.NewRecorder(store, transcript.NewMirror(cfg.Store.LogDir, cfg.Store.MirrorLocking))
	sessions := screening.NewMemoryStore()
	ctrl := webhook.New(webhook.Options{
		Manager:   screening.NewManager(sessions, gen, screening.WithTimeout(cfg.LLM.Timeout)),
		Generator: gen,
		Store:     store,
		Sink:      events.Fanout{recorder, hub},
		Dialer:    newDialer(cfg),
		Hub:       hub,
		VoiceName: cfg.VoiceName,
		AnswerURL: cfg.AnswerURL(),
		RateLimit: cfg.Call.RateLimit,
		Burst:     cfg.Call.Burst,
	})

	e := webhook.NewEcho(ctrl)
	e.GET("/mcp/ws", echo.WrapHandler(mcp.Handler(mcp.NewServer(ctrl, version))))

	var wg sync.WaitGroup
	wg.Add(1)
	screening.StartReaper(ctx, &wg, sessions, cfg.Session.TTL, cfg.Session.ReapInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Infow("http: listening", "addr", cfg.HTTPAddr, "answer_url", cfg.AnswerURL(), "provider", cfg.LLM.Provider)
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logging.Infow("shutdown signal received, closing resources")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	stop()
	wg.Wait()
	logging.Infow("shutdown complete")
	return err
}

func newGenerator(ctx context.Context, cfg *config.Config) (llm.Generator, error) {
	if cfg.LLM.Provider == config.ProviderGemini {
		return llm.NewGeminiClient(ctx, cfg.LLM.GeminiAPIKey, cfg.LLM.GeminiModel)
	}
	return llm.NewClient(llm.Config{
		BaseURL:       cfg.LLM.BaseURL,
		APIKey:        cfg.LLM.APIKey,
		Model:         cfg.LLM.Model,
		FallbackModel: cfg.LLM.FallbackModel,
		MaxTokens:     cfg.LLM.MaxTokens,
		Timeout:       cfg.LLM.Timeout,
	}), nil
}

func newDialer(cfg *config.Config) voice.Dialer {
	if !cfg.Twilio.Enabled() {
		logging.Warnw("twilio credentials missing, calls will not be placed")
		return voice.DryRunDialer{}
	}
	return voice.NewTwilioDialer(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.Number, cfg.Twilio.APIBase)
}
