package provider

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rainbow-desk/rainbow/internal/config"
)

// Descriptor is the runtime record for one configured provider.
type Descriptor struct {
	ID         string
	Kind       string // "cloud" or "local"
	Model      string
	TaskModels map[string]string
	Enabled    bool
	Priority   int

	Client  LLMProvider
	Breaker *CircuitBreaker
}

// ModelFor returns the pinned model for a task, or the default model.
func (d *Descriptor) ModelFor(task Task) string {
	if m, ok := d.TaskModels[string(task)]; ok && m != "" {
		return m
	}
	return d.Model
}

// RetryPolicy bounds per-provider retries.
type RetryPolicy struct {
	MaxAttempts int           // attempts per provider, including the first
	BaseDelay   time.Duration // initial backoff
	MaxDelay    time.Duration // backoff cap
}

// DefaultRetryPolicy is used when the caller passes a zero policy.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    20 * time.Second,
}

// Selector picks an available provider by priority, applies retries with
// backoff, feeds the circuit breakers, and fails over across providers.
type Selector struct {
	mu          sync.RWMutex
	descriptors []*Descriptor
	retry       RetryPolicy
}

// NewSelector builds a Selector from the configured provider list.
// Disabled descriptors are kept (they can be re-enabled by a config swap)
// but never selected.
func NewSelector(cfgs []config.ProviderConfig) *Selector {
	s := &Selector{retry: DefaultRetryPolicy}
	s.Configure(cfgs)
	return s
}

// Configure replaces the descriptor set from config. Breaker state is
// carried over for providers that survive the swap.
func (s *Selector) Configure(cfgs []config.ProviderConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := make(map[string]*CircuitBreaker, len(s.descriptors))
	for _, d := range s.descriptors {
		prev[d.ID] = d.Breaker
	}

	s.descriptors = s.descriptors[:0]
	for _, pc := range cfgs {
		breaker := prev[pc.ID]
		if breaker == nil {
			breaker = NewCircuitBreaker(DefaultBreakerConfig())
		}
		s.descriptors = append(s.descriptors, &Descriptor{
			ID:         pc.ID,
			Kind:       pc.Kind,
			Model:      pc.Model,
			TaskModels: pc.TaskModels,
			Enabled:    pc.Enabled,
			Priority:   pc.Priority,
			Client:     NewOpenAIProvider(pc.ID, pc.APIKey, pc.APIBase, pc.Model),
			Breaker:    breaker,
		})
	}
	sort.SliceStable(s.descriptors, func(i, j int) bool {
		return s.descriptors[i].Priority < s.descriptors[j].Priority
	})
}

// Descriptors returns a snapshot of the descriptor list (priority order).
func (s *Selector) Descriptors() []*Descriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Descriptor, len(s.descriptors))
	copy(out, s.descriptors)
	return out
}

// Result is a successful chat completion plus accounting metadata.
type Result struct {
	Content    string
	ProviderID string
	Model      string
	Usage      Usage
	Elapsed    time.Duration
}

// Chat runs a chat completion for the given task against the first available
// provider, with bounded retries on rate limits and 5xx, failing over to the
// next provider when one is exhausted. Context cancellation aborts without
// recording usage.
func (s *Selector) Chat(ctx context.Context, task Task, req *ChatRequest) (*Result, error) {
	candidates := s.Descriptors()
	if len(candidates) == 0 {
		return nil, ErrUnavailable
	}

	var lastErr error
	for _, d := range candidates {
		if !d.Enabled {
			continue
		}
		if !d.Breaker.Allow() {
			slog.Debug("Provider skipped: circuit open", "provider", d.ID)
			continue
		}

		res, err := s.callWithRetry(ctx, d, task, req)
		if err == nil {
			d.Breaker.RecordSuccess()
			return res, nil
		}
		if ctx.Err() != nil {
			// Cancelled or deadline exceeded: the provider did not fail,
			// the request did. No breaker penalty beyond what the attempt
			// already recorded, and no failover.
			return nil, ctx.Err()
		}

		lastErr = err
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.Retryable() {
			// Hard client error: do not fail over, the request itself is bad.
			return nil, err
		}
		slog.Warn("Provider exhausted, failing over", "provider", d.ID, "error", err)
	}

	if lastErr != nil {
		return nil, errors.Join(ErrUnavailable, lastErr)
	}
	return nil, ErrUnavailable
}

// Embed runs an embedding request against the first available provider
// whose client supports embeddings. Breakers apply the same as for chat.
func (s *Selector) Embed(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	var lastErr error
	for _, d := range s.Descriptors() {
		if !d.Enabled || !d.Breaker.Allow() {
			continue
		}
		emb, ok := d.Client.(Embedder)
		if !ok {
			continue
		}
		callReq := *req
		if callReq.Model == "" {
			if m := d.TaskModels[string(TaskEmbedding)]; m != "" {
				callReq.Model = m
			}
		}
		resp, err := emb.Embed(ctx, &callReq)
		if err == nil {
			d.Breaker.RecordSuccess()
			return resp, nil
		}
		d.Breaker.RecordFailure()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		lastErr = err
	}
	if lastErr != nil {
		return nil, errors.Join(ErrUnavailable, lastErr)
	}
	return nil, ErrUnavailable
}

// callWithRetry performs up to MaxAttempts calls against one provider with
// exponential backoff and jitter on retryable failures.
func (s *Selector) callWithRetry(ctx context.Context, d *Descriptor, task Task, req *ChatRequest) (*Result, error) {
	callReq := *req
	if callReq.Model == "" {
		callReq.Model = d.ModelFor(task)
	}

	policy := s.retry
	delay := policy.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		start := time.Now()
		resp, err := d.Client.Chat(ctx, &callReq)
		if err == nil {
			return &Result{
				Content:    resp.Content,
				ProviderID: d.ID,
				Model:      resp.Model,
				Usage:      resp.Usage,
				Elapsed:    time.Since(start),
			}, nil
		}

		lastErr = err
		d.Breaker.RecordFailure()

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) {
			if !apiErr.Retryable() {
				return nil, err
			}
			if apiErr.RateLimited() {
				slog.Warn("Provider rate limited, backing off", "provider", d.ID, "attempt", attempt)
			}
		}

		if attempt == policy.MaxAttempts {
			break
		}
		if !sleepCtx(ctx, jitter(delay)) {
			return nil, ctx.Err()
		}
		delay *= 2
		if delay > policy.MaxDelay {
			delay = policy.MaxDelay
		}
	}
	return nil, lastErr
}

// jitter returns d scaled by a random factor in [0.5, 1.5).
func jitter(d time.Duration) time.Duration {
	return time.Duration(float64(d) * (0.5 + rand.Float64()))
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
