// Package config loads the screener configuration from defaults, an optional
// config file and the environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "SCREENER"

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	HTTPAddr string
	// PublicBaseURL is the externally reachable URL the telephony provider
	// uses for webhooks (e.g. an ngrok tunnel).
	PublicBaseURL string
	VoiceName     string
	LogLevel      string

	Twilio  TwilioConfig
	LLM     LLMConfig
	Store   StoreConfig
	Session SessionConfig
	Call    CallConfig
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	Number     string
	APIBase    string
}

// Enabled reports whether real outbound calls can be placed.
func (t TwilioConfig) Enabled() bool {
	return t.AccountSID != "" && t.AuthToken != "" && t.Number != ""
}

type LLMConfig struct {
	Provider      string
	BaseURL       string
	APIKey        string
	Model         string
	FallbackModel string
	MaxTokens     int
	Timeout       time.Duration
	GeminiAPIKey  string
	GeminiModel   string
}

type StoreConfig struct {
	Path          string
	LogDir        string
	MirrorLocking bool
}

type SessionConfig struct {
	TTL          time.Duration
	ReapInterval time.Duration
}

// WebhookDeadline is how long the telephony provider waits for a webhook
// response before treating the call as failed.
const WebhookDeadline = 15 * time.Second

type CallConfig struct {
	RateLimit float64 // calls per second, 0 disables throttling
	Burst     int
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":5000")
	v.SetDefault("public.base_url", "http://127.0.0.1:5000")
	v.SetDefault("voice.name", "Polly.Aditi")
	v.SetDefault("log.level", "info")

	v.SetDefault("twilio.api_base", "https://api.twilio.com")

	v.SetDefault("llm.provider", ProviderOpenAI)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 256)
	v.SetDefault("llm.timeout", 10*time.Second)
	v.SetDefault("gemini.model", "gemini-2.5-flash")

	v.SetDefault("store.path", "screener.db")
	v.SetDefault("store.log_dir", "logs")
	v.SetDefault("store.mirror_locking", false)

	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.reap_interval", time.Minute)

	v.SetDefault("call.rate_limit", 1.0)
	v.SetDefault("call.burst", 5)
}

// aliases binds the plain provider variable names so an existing .env for
// the telephony and model accounts keeps working.
var aliases = map[string][]string{
	"twilio.account_sid": {"TWILIO_ACCOUNT_SID"},
	"twilio.auth_token":  {"TWILIO_AUTH_TOKEN"},
	"twilio.number":      {"TWILIO_NUMBER"},
	"public.base_url":    {"BASE_URL"},
	"gemini.api_key":     {"GOOGLE_API_KEY"},
	"llm.api_key":        {"OPENAI_API_KEY"},
	"llm.base_url":       {"OPENAI_BASE_URL"},
	"log.level":          {"LOG_LEVEL"},
}

func bindEnv(v *viper.Viper) error {
	for key, names := range aliases {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		args := append([]string{key, prefixed}, names...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

// New returns a viper instance with defaults and environment bindings. When
// path is non-empty the file is read as well.
func New(path string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindEnv(v); err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}

// Load reads the configuration and validates it.
func Load(path string) (*Config, error) {
	v, err := New(path)
	if err != nil {
		return nil, err
	}
	return FromViper(v)
}

func FromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		HTTPAddr:      v.GetString("http.addr"),
		PublicBaseURL: strings.TrimRight(v.GetString("public.base_url"), "/"),
		VoiceName:     v.GetString("voice.name"),
		LogLevel:      v.GetString("log.level"),
		Twilio: TwilioConfig{
			AccountSID: v.GetString("twilio.account_sid"),
			AuthToken:  v.GetString("twilio.auth_token"),
			Number:     v.GetString("twilio.number"),
			APIBase:    strings.TrimRight(v.GetString("twilio.api_base"), "/"),
		},
		LLM: LLMConfig{
			Provider:      strings.ToLower(strings.TrimSpace(v.GetString("llm.provider"))),
			BaseURL:       strings.TrimRight(v.GetString("llm.base_url"), "/"),
			APIKey:        v.GetString("llm.api_key"),
			Model:         v.GetString("llm.model"),
			FallbackModel: v.GetString("llm.fallback_model"),
			MaxTokens:     v.GetInt("llm.max_tokens"),
			Timeout:       v.GetDuration("llm.timeout"),
			GeminiAPIKey:  v.GetString("gemini.api_key"),
			GeminiModel:   v.GetString("gemini.model"),
		},
		Store: StoreConfig{
			Path:          v.GetString("store.path"),
			LogDir:        v.GetString("store.log_dir"),
			MirrorLocking: v.GetBool("store.mirror_locking"),
		},
		Session: SessionConfig{
			TTL:          v.GetDuration("session.ttl"),
			ReapInterval: v.GetDuration("session.reap_interval"),
		},
		Call: CallConfig{
			RateLimit: v.GetFloat64("call.rate_limit"),
			Burst:     v.GetInt("call.burst"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI:
	case ProviderGemini:
		if c.LLM.GeminiAPIKey == "" {
			return fmt.Errorf("llm.provider=gemini requires gemini.api_key (GOOGLE_API_KEY)")
		}
	default:
		return fmt.Errorf("unknown llm.provider %q (want %s or %s)", c.LLM.Provider, ProviderOpenAI, ProviderGemini)
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be > 0")
	}
	if c.Session.ReapInterval <= 0 {
		return fmt.Errorf("session.reap_interval must be > 0")
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.LLM.Timeout <= 0 || c.LLM.Timeout >= WebhookDeadline {
		return fmt.Errorf("llm.timeout must be > 0 and below the %s webhook deadline", WebhookDeadline)
	}
	if c.Call.RateLimit < 0 {
		return fmt.Errorf("call.rate_limit must be >= 0 (0 disables throttling)")
	}
	if c.Call.RateLimit > 0 && c.Call.Burst <= 0 {
		return fmt.Errorf("call.burst must be > 0 when call.rate_limit is set")
	}
	return nil
}

// AnswerURL is the webhook the provider fetches when the callee picks up.
func (c *Config) AnswerURL() string {
	return c.PublicBaseURL + "/voice"
}
