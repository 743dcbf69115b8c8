// Package provider implements LLM provider clients, circuit breaking, and
// priority-ordered failover for the reply pipeline.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Task identifies what a provider call is for. A descriptor may pin a
// different model per task.
type Task string

const (
	TaskChat           Task = "chat"
	TaskClassification Task = "classification"
	TaskSummarization  Task = "summarization"
	TaskEmbedding      Task = "embedding"
	TaskOCR            Task = "ocr"
)

// LLMProvider is the interface for LLM API clients.
type LLMProvider interface {
	// Chat sends a completion request and returns the response.
	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	// DefaultModel returns the configured default model.
	DefaultModel() string
}

// Embedder is an optional interface for providers that support embeddings.
// Callers should use type assertion: if emb, ok := prov.(Embedder); ok { ... }
type Embedder interface {
	Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error)
}

// ChatRequest contains the parameters for a chat completion request.
type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
}

// ChatResponse contains the response from a chat completion request.
type ChatResponse struct {
	Content      string
	FinishReason string
	Model        string
	Usage        Usage
}

// Message represents a chat message.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage contains token usage information.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// EmbeddingRequest contains parameters for an embedding request.
type EmbeddingRequest struct {
	Input string
	Model string
}

// EmbeddingResponse contains the embedding vector.
type EmbeddingResponse struct {
	Vector []float32
	Usage  Usage
}

// ErrUnavailable is surfaced when every candidate provider is disabled,
// open-circuited, or exhausted its retries.
var ErrUnavailable = errors.New("provider_unavailable")

// APIError is a non-OK HTTP response from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("provider %s: API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// RateLimited reports whether the error is an explicit rate-limit signal.
func (e *APIError) RateLimited() bool { return e.StatusCode == 429 }

// Retryable reports whether the call may be retried against the same
// provider: rate limits and server-side errors only.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
