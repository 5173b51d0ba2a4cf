package ai

import (
	"context"
)

// RoleUser is the chat role of every prompt the pipeline sends.
const RoleUser = "user"

// ResponseFormat hints the endpoint about the expected shape of the output.
type ResponseFormat string

const (
	FormatText       ResponseFormat = "text"
	FormatJSONObject ResponseFormat = "json_object"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a single text-generation call.
type Request struct {
	Messages       []Message
	Model          string
	Temperature    float64
	MaxTokens      int
	ResponseFormat ResponseFormat
	// Label names the call in diagnostics and in the audit trail.
	Label string
}

// Usage is the token accounting reported by the remote service.
type Usage struct {
	PromptTokens       int `json:"prompt_tokens"`
	CompletionTokens   int `json:"completion_tokens"`
	TotalTokens        int `json:"total_tokens"`
	CachedPromptTokens int `json:"cached_prompt_tokens"`
}

// CallMeta describes one remote call for spend reconstruction.
type CallMeta struct {
	Label string  `json:"label"`
	Model string  `json:"model"`
	Usage Usage   `json:"usage"`
	Cost  float64 `json:"cost"`
}

type Result struct {
	Text string
	Meta CallMeta
}

// Generator issues text-generation requests.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Result, error)
}

// ResearchRequest is a free-text instruction for a web-augmented model.
type ResearchRequest struct {
	Prompt       string
	Instructions string
	Label        string
}

// ResearchResult carries the model output and the web sources it consulted.
type ResearchResult struct {
	Text    string
	Sources []string
	Meta    CallMeta
}

// Researcher answers prompts with web search enabled.
type Researcher interface {
	Research(ctx context.Context, req ResearchRequest) (*ResearchResult, error)
}
