// Package openai implements ai.Generator over an OpenAI-compatible
// chat-completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/spigell/job-buddy/internal/ai"
	"github.com/spigell/job-buddy/internal/logger"
	"github.com/spigell/job-buddy/internal/utils"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultTimeout = 120 * time.Second

	provider            = "openai"
	completionsPath     = "/chat/completions"
	defaultMaxLogLength = 200
	maxResponseBytes    = 8 << 20
)

// Config holds everything the client needs. There is no package-level state.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Retry   ai.RetryPolicy
	Prices  ai.PriceTable
	// RequestsPerMinute paces outgoing requests. Zero disables pacing.
	RequestsPerMinute int
	MaxLogLength      int
	Logger            *zap.Logger
}

// Client is safe for concurrent use.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retrier    *ai.Retrier
	prices     ai.PriceTable
	limiter    *rate.Limiter
	maxLogLen  int
	maxBody    int64
	logger     *zap.Logger
	now        func() time.Time
}

// NewClient fails fast when no API key is configured.
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.WithHint(
			errors.Wrap(ai.ErrMissingCredential, "openai api key is required"),
			"set OPENAI_API_KEY or openai.api-key-file",
		)
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	prices := cfg.Prices
	if prices == nil {
		prices = ai.DefaultPrices()
	}

	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	log := logger.WithFields(cfg.Logger, logger.CommonFields(provider, "")...)

	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.RequestsPerMinute)), 1)
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		retrier:    ai.NewRetrier(cfg.Retry, log),
		prices:     prices,
		limiter:    limiter,
		maxLogLen:  maxLogLen,
		maxBody:    maxResponseBytes,
		logger:     log,
		now:        time.Now,
	}, nil
}

// Retrier exposes the retry loop so callers can swap its wait function.
func (c *Client) Retrier() *ai.Retrier {
	return c.retrier
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatCompletionRequest struct {
	Model          string          `json:"model"`
	Messages       []ai.Message    `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatCompletionResponse struct {
	Model   string   `json:"model"`
	Choices []choice `json:"choices"`
	Usage   usage    `json:"usage"`
}

type choice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string  `json:"role"`
		Content *string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type usage struct {
	PromptTokens        int `json:"prompt_tokens"`
	CompletionTokens    int `json:"completion_tokens"`
	TotalTokens         int `json:"total_tokens"`
	PromptTokensDetails struct {
		CachedTokens int `json:"cached_tokens"`
	} `json:"prompt_tokens_details"`
}

func (u usage) toAI() ai.Usage {
	return ai.Usage{
		PromptTokens:       u.PromptTokens,
		CompletionTokens:   u.CompletionTokens,
		TotalTokens:        u.TotalTokens,
		CachedPromptTokens: u.PromptTokensDetails.CachedTokens,
	}
}

// Generate sends one chat-completion request, retrying transport failures,
// rate limits and 5xx responses per the configured policy.
func (c *Client) Generate(ctx context.Context, req ai.Request) (*ai.Result, error) {
	label := req.Label
	if label == "" {
		label = "llm_call"
	}
	if strings.TrimSpace(req.Model) == "" {
		return nil, errors.Newf("%s: model is required", label)
	}
	if len(req.Messages) == 0 {
		return nil, errors.Newf("%s: at least one message is required", label)
	}

	payload := chatCompletionRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.ResponseFormat != "" && req.ResponseFormat != ai.FormatText {
		payload.ResponseFormat = &responseFormat{Type: string(req.ResponseFormat)}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: marshal request", label)
	}

	log := c.logger.With(zap.String("call", label), zap.String(logger.FieldModel, req.Model))
	log.Debug("chat completion request",
		zap.Int("messages", len(req.Messages)),
		zap.Int("max_tokens", req.MaxTokens),
		zap.Float64("temperature", req.Temperature),
		zap.String("prompt_preview", utils.TruncateForLog(req.Messages[len(req.Messages)-1].Content, c.maxLogLen)),
	)

	var resp *chatCompletionResponse
	err = c.retrier.Do(ctx, label, func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.send(ctx, label, body)
		return callErr
	})
	if err != nil {
		return nil, err
	}

	meta := ai.CallMeta{
		Label: label,
		Model: req.Model,
		Usage: resp.Usage.toAI(),
	}
	meta.Cost = c.prices.Cost(req.Model, meta.Usage)

	text := ""
	if len(resp.Choices) > 0 && resp.Choices[0].Message.Content != nil {
		text = *resp.Choices[0].Message.Content
	} else {
		log.Warn("chat completion returned no content", zap.Int("choices", len(resp.Choices)))
	}

	log.Debug("chat completion response",
		append(logger.CallFields(meta),
			zap.String("response_preview", utils.TruncateForLog(text, c.maxLogLen)),
		)...,
	)

	return &ai.Result{Text: text, Meta: meta}, nil
}

// send performs one attempt and classifies its failure.
func (c *Client) send(ctx context.Context, label string, body []byte) (*chatCompletionResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errors.Wrapf(err, "%s: waiting for rate limiter", label)
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+completionsPath, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: create request", label)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrapf(ctx.Err(), "%s: request abandoned", label)
		}
		if ai.IsNetworkError(err) {
			return nil, &ai.RetriableError{Err: err}
		}
		return nil, errors.Wrapf(err, "%s: send request", label)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		if ai.IsNetworkError(err) {
			return nil, &ai.RetriableError{Err: err}
		}
		return nil, errors.Wrapf(err, "%s: read response", label)
	}
	tooLarge := int64(len(respBody)) > c.maxBody
	if tooLarge {
		respBody = respBody[:c.maxBody]
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.classifyStatus(label, resp, string(respBody))
	}
	if tooLarge {
		return nil, errors.Newf("%s: response is larger than %d bytes", label, c.maxBody)
	}

	var out chatCompletionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, errors.Wrapf(err, "%s: decode response", label)
	}
	return &out, nil
}

func (c *Client) classifyStatus(label string, resp *http.Response, body string) error {
	status := resp.StatusCode
	if !ai.IsRetriableStatus(status) {
		return ai.NewRequestError(label, status, body)
	}

	retriable := &ai.RetriableError{
		Status: status,
		Err:    errors.Newf("%s: %s", resp.Status, utils.TruncateForLog(body, c.maxLogLen)),
	}
	if status == http.StatusTooManyRequests {
		retriable.RetryAfter = ai.RateLimitWait(resp.Header, body, c.now())
	}
	return retriable
}
