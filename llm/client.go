package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Roles used in conversation history.
const (
	RoleSystem    = openai.ChatMessageRoleSystem
	RoleUser      = openai.ChatMessageRoleUser
	RoleAssistant = openai.ChatMessageRoleAssistant
)

// Message is one entry of the conversation history sent to a model.
type Message struct {
	Role    string
	Content string
}

// Generator produces the next piece of text given an ordered history.
type Generator interface {
	Generate(ctx context.Context, messages []Message) (string, error)
}

var (
	ErrPermanent = errors.New("permanent error")
	ErrTransient = errors.New("transient error")
)

// IsTransient reports whether err was classified as retryable.
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsPermanent reports whether err was classified as non-retryable.
func IsPermanent(err error) bool { return errors.Is(err, ErrPermanent) }

type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	FallbackModel string
	MaxTokens     int
	Timeout       time.Duration
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	api           *openai.Client
	model         string
	fallbackModel string
	maxTokens     int
	// fallbackDelay is the pause before retrying on the fallback model.
	fallbackDelay time.Duration
}

type ChatRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float32
}

type ChatResponse struct {
	ID      string
	Model   string
	Content string
}

func NewClient(cfg Config) *Client {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	clientConfig.HTTPClient = &http.Client{Timeout: timeout}

	model := cfg.Model
	if model == "" {
		model = "local"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 512
	}
	return &Client{
		api:           openai.NewClientWithConfig(clientConfig),
		model:         model,
		fallbackModel: cfg.FallbackModel,
		maxTokens:     maxTokens,
		fallbackDelay: 250 * time.Millisecond,
	}
}

// Generate implements Generator.
func (c *Client) Generate(ctx context.Context, messages []Message) (string, error) {
	resp, err := c.CreateChatCompletion(ctx, ChatRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// CreateChatCompletion sends req to the configured model. Transient failures
// (network errors, 5xx, 429) are retried once on the fallback model when one
// is configured. Returned errors wrap ErrTransient or ErrPermanent.
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	resp, err := c.complete(ctx, model, req)
	if err == nil {
		return resp, nil
	}
	if IsTransient(err) && c.fallbackModel != "" && c.fallbackModel != model {
		select {
		case <-ctx.Done():
			return ChatResponse{}, fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
		case <-time.After(c.fallbackDelay):
		}
		resp, ferr := c.complete(ctx, c.fallbackModel, req)
		if ferr != nil {
			return ChatResponse{}, fmt.Errorf("fallback %s: %w", c.fallbackModel, ferr)
		}
		return resp, nil
	}
	return ChatResponse{}, err
}

func (c *Client) complete(ctx context.Context, model string, req ChatRequest) (ChatResponse, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 || maxTokens > c.maxTokens {
		maxTokens = c.maxTokens
	}
	msgs := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}
	out, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return ChatResponse{}, classify(err)
	}
	if len(out.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("%w: empty choices from %s", ErrTransient, model)
	}
	return ChatResponse{ID: out.ID, Model: model, Content: out.Choices[0].Message.Content}, nil
}

// classify maps client errors onto ErrTransient / ErrPermanent. 4xx other
// than 429 is permanent; everything else (5xx, 429, network, decode) is
// transient.
func classify(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	return classifyStatus(status, err)
}

// classifyStatus maps a provider HTTP status onto ErrPermanent (4xx other
// than 429) or ErrTransient (everything else, including status 0).
func classifyStatus(status int, err error) error {
	if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
		return fmt.Errorf("%w: status %d: %v", ErrPermanent, status, err)
	}
	if status != 0 {
		return fmt.Errorf("%w: status %d: %v", ErrTransient, status, err)
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}
