// Package gemini implements ai.Researcher on top of Gemini with Google Search
// grounding.
package gemini

import (
	"context"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/job-buddy/internal/ai"
	"github.com/spigell/job-buddy/internal/logger"
	"github.com/spigell/job-buddy/internal/utils"
)

const (
	DefaultModel = "gemini-2.5-flash"

	provider            = "gemini"
	defaultMaxLogLength = 200
	defaultTemperature  = 0.2
)

// contentGenerator is the slice of genai.Models the researcher needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Config struct {
	APIKey       string
	Model        string
	Retry        ai.RetryPolicy
	Prices       ai.PriceTable
	MaxLogLength int
	Logger       *zap.Logger
}

// Researcher runs web-grounded prompts.
type Researcher struct {
	models    contentGenerator
	modelName string
	retrier   *ai.Retrier
	prices    ai.PriceTable
	maxLogLen int
	logger    *zap.Logger
}

// NewResearcher creates a Researcher configured for the Gemini API backend.
func NewResearcher(ctx context.Context, cfg Config) (*Researcher, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.WithHint(
			errors.Wrap(ai.ErrMissingCredential, "gemini api key is required"),
			"set GEMINI_API_KEY or gemini.api-key-file",
		)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create genai client")
	}

	return newResearcher(client.Models, cfg), nil
}

func newResearcher(models contentGenerator, cfg Config) *Researcher {
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}

	prices := cfg.Prices
	if prices == nil {
		prices = ai.DefaultPrices()
	}

	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}

	log := logger.WithFields(cfg.Logger, logger.CommonFields(provider, model)...)

	return &Researcher{
		models:    models,
		modelName: model,
		retrier:   ai.NewRetrier(cfg.Retry, log),
		prices:    prices,
		maxLogLen: maxLogLen,
		logger:    log,
	}
}

// Retrier exposes the retry loop so callers can swap its wait function.
func (r *Researcher) Retrier() *ai.Retrier {
	return r.retrier
}

func (r *Researcher) Model() string {
	if r == nil {
		return ""
	}
	return r.modelName
}

// Research sends the prompt with the Google Search tool enabled. Failures are
// classified and retried the same way as chat completions.
func (r *Researcher) Research(ctx context.Context, req ai.ResearchRequest) (*ai.ResearchResult, error) {
	if r == nil || r.models == nil {
		return nil, errors.New("gemini researcher is not initialized")
	}

	label := req.Label
	if label == "" {
		label = "research"
	}

	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, errors.Newf("%s: prompt must not be empty", label)
	}

	temperature := float32(defaultTemperature)
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
		Tools:       []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}},
	}
	if instructions := strings.TrimSpace(req.Instructions); instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(instructions, genai.RoleUser)
	}

	log := r.logger.With(zap.String("call", label))
	log.Debug("gemini research request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, r.maxLogLen)),
	)

	var resp *genai.GenerateContentResponse
	err := r.retrier.Do(ctx, label, func(ctx context.Context) error {
		var callErr error
		resp, callErr = r.models.GenerateContent(ctx, r.modelName, genai.Text(prompt), config)
		if callErr != nil {
			return classify(ctx, label, callErr)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	meta := ai.CallMeta{
		Label: label,
		Model: r.modelName,
		Usage: usageOf(resp),
	}
	meta.Cost = r.prices.Cost(r.modelName, meta.Usage)

	text := responseText(resp)
	if text == "" {
		log.Warn("gemini research returned no text")
	}
	sources := groundingSources(resp)

	log.Debug("gemini research response",
		append(logger.CallFields(meta),
			zap.Int("sources", len(sources)),
			zap.String("response_preview", utils.TruncateForLog(text, r.maxLogLen)),
		)...,
	)

	return &ai.ResearchResult{Text: text, Sources: sources, Meta: meta}, nil
}

// classify maps genai failures onto the shared retry taxonomy.
func classify(ctx context.Context, label string, err error) error {
	if ctx.Err() != nil {
		return errors.Wrapf(ctx.Err(), "%s: request abandoned", label)
	}

	apiErr, ok := asAPIError(err)
	if !ok {
		if ai.IsNetworkError(err) {
			return &ai.RetriableError{Err: err}
		}
		return errors.Wrapf(err, "%s: generate content", label)
	}

	if !ai.IsRetriableStatus(apiErr.Code) {
		return ai.NewRequestError(label, apiErr.Code, apiErr.Message)
	}

	retriable := &ai.RetriableError{Status: apiErr.Code, Err: err}
	if apiErr.Code == http.StatusTooManyRequests {
		if d, ok := retryDelay(apiErr); ok {
			retriable.RetryAfter = d
		}
	}
	return retriable
}

// retryDelay prefers the google.rpc.RetryInfo detail and falls back to a hint
// in the message text.
func retryDelay(apiErr genai.APIError) (time.Duration, bool) {
	for _, detail := range apiErr.Details {
		kind, _ := detail["@type"].(string)
		if !strings.HasSuffix(kind, "RetryInfo") {
			continue
		}
		if delay, ok := detail["retryDelay"].(string); ok {
			if d, ok := ai.ParseRetryDelay(delay); ok {
				return d, true
			}
		}
	}
	return ai.ParseRetryHint(apiErr.Message)
}

func asAPIError(err error) (genai.APIError, bool) {
	var value genai.APIError
	if errors.As(err, &value) {
		return value, true
	}
	var ptr *genai.APIError
	if errors.As(err, &ptr) && ptr != nil {
		return *ptr, true
	}
	return genai.APIError{}, false
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
		// only the first candidate with content is used
		if builder.Len() > 0 {
			break
		}
	}

	return strings.TrimSpace(builder.String())
}

// groundingSources returns the distinct web URIs the answer was grounded on, in order.
func groundingSources(resp *genai.GenerateContentResponse) []string {
	if resp == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var sources []string
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.GroundingMetadata == nil {
			continue
		}
		for _, chunk := range candidate.GroundingMetadata.GroundingChunks {
			if chunk == nil || chunk.Web == nil {
				continue
			}
			uri := strings.TrimSpace(chunk.Web.URI)
			if uri == "" {
				continue
			}
			if _, ok := seen[uri]; ok {
				continue
			}
			seen[uri] = struct{}{}
			sources = append(sources, uri)
		}
	}
	return sources
}

func usageOf(resp *genai.GenerateContentResponse) ai.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return ai.Usage{}
	}
	md := resp.UsageMetadata
	return ai.Usage{
		PromptTokens:       int(md.PromptTokenCount),
		CompletionTokens:   int(md.CandidatesTokenCount),
		TotalTokens:        int(md.TotalTokenCount),
		CachedPromptTokens: int(md.CachedContentTokenCount),
	}
}
