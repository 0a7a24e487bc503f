package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/helicon-ai/inquiro/internal/metrics"
	"github.com/helicon-ai/inquiro/internal/observability"
	"github.com/helicon-ai/inquiro/internal/tracing"
)

const defaultBaseURL = "https://api.groq.com/openai/v1"

// Config holds the completion backend configuration.
type Config struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIKey      string        `mapstructure:"api_key"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.Logger
}

// NewClient validates the configuration and returns a ready client.
// A missing API key is a construction error, not a per-call one.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm: api key missing")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.1-8b-instant"
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Completion client ready", zap.String("model", cfg.Model))
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}, nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string { return c.cfg.Model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Text string `json:"text"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// Complete sends a system/user message pair and returns the reply text.
func (c *Client) Complete(ctx context.Context, systemPrompt, userContent string, maxTokens int) (string, error) {
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	url := fmt.Sprintf("%s/chat/completions", c.cfg.BaseURL)
	payload := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userContent},
		},
		MaxTokens:   maxTokens,
		Temperature: c.cfg.Temperature,
	}
	buf, _ := json.Marshal(payload)

	ctx, span := tracing.StartHTTPSpan(ctx, http.MethodPost, url)
	defer span.End()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(buf))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	tracing.InjectTraceparent(ctx, req)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.LLMCalls.WithLabelValues(c.cfg.Model, "error").Inc()
		return "", fmt.Errorf("completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.LLMCalls.WithLabelValues(c.cfg.Model, "error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("completion http status %d: %s", resp.StatusCode, string(body))
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		metrics.LLMCalls.WithLabelValues(c.cfg.Model, "error").Inc()
		return "", fmt.Errorf("completion decode: %w", err)
	}
	if len(cr.Choices) == 0 {
		metrics.LLMCalls.WithLabelValues(c.cfg.Model, "error").Inc()
		return "", fmt.Errorf("completion response had no choices")
	}

	content := cr.Choices[0].Message.Content
	if content == "" {
		content = cr.Choices[0].Text
	}
	if content == "" {
		metrics.LLMCalls.WithLabelValues(c.cfg.Model, "error").Inc()
		return "", fmt.Errorf("completion response had empty content")
	}

	metrics.LLMCalls.WithLabelValues(c.cfg.Model, "ok").Inc()
	metrics.LLMTokens.WithLabelValues("prompt").Add(float64(cr.Usage.PromptTokens))
	metrics.LLMTokens.WithLabelValues("completion").Add(float64(cr.Usage.CompletionTokens))
	if collector := observability.FromContext(ctx); collector != nil {
		collector.RecordCall(c.cfg.Model, cr.Usage.PromptTokens, cr.Usage.CompletionTokens)
	}

	c.logger.Debug("Completion returned",
		zap.String("model", c.cfg.Model),
		zap.Int("prompt_tokens", cr.Usage.PromptTokens),
		zap.Int("completion_tokens", cr.Usage.CompletionTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return content, nil
}
