package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spigell/job-buddy/internal/ai"
)

const okBody = `{
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "  Must-Have Requirements\n- Go  "}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 1200, "completion_tokens": 300, "total_tokens": 1500, "prompt_tokens_details": {"cached_tokens": 200}}
}`

type waitRecorder struct {
	waits []time.Duration
}

func (w *waitRecorder) wait(_ context.Context, d time.Duration) error {
	w.waits = append(w.waits, d)
	return nil
}

func newTestClient(t *testing.T, url string, retries int) (*Client, *waitRecorder, *observer.ObservedLogs) {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	client, err := NewClient(Config{
		APIKey:  "test-key",
		BaseURL: url,
		Retry:   ai.RetryPolicy{MaxRetries: retries, InitialBackoff: 2 * time.Second, MaxBackoff: 30 * time.Second},
		Logger:  zap.New(core),
	})
	require.NoError(t, err)

	recorder := &waitRecorder{}
	client.Retrier().SetWait(recorder.wait)
	return client, recorder, logs
}

func userRequest(label string) ai.Request {
	return ai.Request{
		Messages:    []ai.Message{{Role: ai.RoleUser, Content: "hello"}},
		Model:       "gpt-4o-mini",
		Temperature: 0.7,
		MaxTokens:   1500,
		Label:       label,
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	_, err := NewClient(Config{APIKey: "   "})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrMissingCredential))
}

func TestGenerateSuccess(t *testing.T) {
	var captured chatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, okBody)
	}))
	defer server.Close()

	client, waits, _ := newTestClient(t, server.URL, 3)

	result, err := client.Generate(context.Background(), userRequest("extract_requirements"))
	require.NoError(t, err)

	assert.Equal(t, "  Must-Have Requirements\n- Go  ", result.Text)
	assert.Equal(t, "extract_requirements", result.Meta.Label)
	assert.Equal(t, "gpt-4o-mini", result.Meta.Model)
	assert.Equal(t, ai.Usage{PromptTokens: 1200, CompletionTokens: 300, TotalTokens: 1500, CachedPromptTokens: 200}, result.Meta.Usage)
	// (1000*0.15 + 200*0.075 + 300*0.60) / 1e6
	assert.InDelta(t, 0.000345, result.Meta.Cost, 1e-9)
	assert.Empty(t, waits.waits)

	assert.Equal(t, "gpt-4o-mini", captured.Model)
	assert.Equal(t, 1500, captured.MaxTokens)
	assert.Equal(t, 0.7, captured.Temperature)
	assert.Nil(t, captured.ResponseFormat)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "hello", captured.Messages[0].Content)
}

func TestGenerateSendsStructuredResponseFormat(t *testing.T) {
	var raw map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &raw))
		_, _ = io.WriteString(w, okBody)
	}))
	defer server.Close()

	client, _, _ := newTestClient(t, server.URL, 0)
	req := userRequest("json")
	req.ResponseFormat = ai.FormatJSONObject

	_, err := client.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"type": "json_object"}, raw["response_format"])
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch calls.Add(1) {
		case 1:
			w.WriteHeader(http.StatusBadGateway)
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			_, _ = io.WriteString(w, okBody)
		}
	}))
	defer server.Close()

	client, waits, logs := newTestClient(t, server.URL, 3)

	result, err := client.Generate(context.Background(), userRequest("match_requirements"))
	require.NoError(t, err)
	assert.NotEmpty(t, result.Text)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, waits.waits)

	retries := logs.FilterMessage("retrying call").All()
	require.Len(t, retries, 2)
	assert.Equal(t, int64(http.StatusBadGateway), retries[0].ContextMap()["status"])
}

func TestGenerateRateLimitHints(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   string
		want   time.Duration
	}{
		{name: "retry-after header", header: "5", body: `{"error":{"message":"Rate limit reached. Please try again in 20 seconds."}}`, want: 6 * time.Second},
		{name: "hint in body", body: `{"error":{"message":"Rate limit reached. Please try again in 20 seconds."}}`, want: 21 * time.Second},
		{name: "no hint uses backoff", body: `{"error":{"message":"slow down"}}`, want: 2 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if calls.Add(1) == 1 {
					if tt.header != "" {
						w.Header().Set("Retry-After", tt.header)
					}
					w.WriteHeader(http.StatusTooManyRequests)
					_, _ = io.WriteString(w, tt.body)
					return
				}
				_, _ = io.WriteString(w, okBody)
			}))
			defer server.Close()

			client, waits, _ := newTestClient(t, server.URL, 3)

			_, err := client.Generate(context.Background(), userRequest("rate"))
			require.NoError(t, err)
			assert.Equal(t, []time.Duration{tt.want}, waits.waits)
		})
	}
}

func TestGenerateExhaustsRetryBudget(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, waits, logs := newTestClient(t, server.URL, 2)

	_, err := client.Generate(context.Background(), userRequest("tailor_resume"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrExhaustedRetries))
	assert.Equal(t, int32(3), calls.Load())
	assert.Len(t, waits.waits, 2)
	assert.Equal(t, 1, logs.FilterMessage("call failed, no more retries").Len())
}

func TestGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write(long)
	}))
	defer server.Close()

	client, waits, _ := newTestClient(t, server.URL, 3)

	_, err := client.Generate(context.Background(), userRequest("cover_letter"))
	require.Error(t, err)

	var reqErr *ai.RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusUnauthorized, reqErr.Status)
	assert.Len(t, reqErr.Body, 500)
	assert.Equal(t, "cover_letter", reqErr.Label)
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, waits.waits)
}

func TestGenerateRejectsOversizedResponse(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, okBody)
	}))
	defer server.Close()

	client, waits, _ := newTestClient(t, server.URL, 3)
	client.maxBody = 64

	_, err := client.Generate(context.Background(), userRequest("resume"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "larger than 64 bytes")
	assert.False(t, errors.Is(err, ai.ErrExhaustedRetries))
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, waits.waits)
}

func TestGenerateRetriesConnectionFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client, waits, _ := newTestClient(t, url, 1)

	_, err := client.Generate(context.Background(), userRequest("network"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ai.ErrExhaustedRetries))
	assert.Equal(t, []time.Duration{2 * time.Second}, waits.waits)
}

func TestGenerateDegenerateResponseKeepsMeta(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"choices": [], "usage": {"prompt_tokens": 1000000, "completion_tokens": 0}}`)
	}))
	defer server.Close()

	client, _, logs := newTestClient(t, server.URL, 0)

	result, err := client.Generate(context.Background(), userRequest("empty"))
	require.NoError(t, err)
	assert.Empty(t, result.Text)
	assert.Equal(t, "empty", result.Meta.Label)
	assert.InDelta(t, 0.15, result.Meta.Cost, 1e-6)
	assert.Equal(t, 1, logs.FilterMessage("chat completion returned no content").Len())
}

func TestGenerateValidatesRequest(t *testing.T) {
	client, _, _ := newTestClient(t, "http://127.0.0.1:0", 0)

	_, err := client.Generate(context.Background(), ai.Request{Messages: []ai.Message{{Role: ai.RoleUser, Content: "x"}}})
	assert.Error(t, err)

	_, err = client.Generate(context.Background(), ai.Request{Model: "gpt-4o"})
	assert.Error(t, err)
}

func TestGenerateAbandonsOnCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	client, waits, _ := newTestClient(t, server.URL, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Generate(ctx, userRequest("cancel"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, waits.waits)
}
