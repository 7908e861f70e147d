// Package llmgateway provides a uniform chat/embedding call abstraction
// over whatever LLM provider backs the deployment: per-call timeouts,
// retry with backoff, bounded in-flight requests per model, and a
// per-model circuit breaker that trips after sustained provider failures
// so callers fail fast instead of queuing behind a downed backend.
//
// Calls never raise for remote failure — failures come back tagged in
// the returned Result's Status field. The gateway raises only for
// caller misuse (empty messages, zero dimensions).
package llmgateway

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/travelguard/insurance-core/llm/circuitbreaker"
	"github.com/travelguard/insurance-core/llm/retry"
	"github.com/travelguard/insurance-core/types"
)

// Status tags the outcome of a gateway call.
type Status string

const (
	StatusOK          Status = "ok"
	StatusRetryable   Status = "retryable_error"
	StatusFatal       Status = "fatal_error"
)

// ChatResult is the tagged outcome of Chat. It is never returned
// alongside a non-nil error for remote failures — remote failures are
// reported via Status/ErrorMessage.
type ChatResult struct {
	Status       Status
	Content      string
	PromptTokens int
	OutputTokens int
	ErrorMessage string
}

// ChatOptions configures a single Chat call.
type ChatOptions struct {
	Temperature float32
	MaxTokens   int
	JSONMode    bool
	Timeout     time.Duration
}

// Completer is the minimal interface a concrete provider client (OpenAI,
// Anthropic, an in-house gateway, …) must satisfy. It is intentionally
// provider-agnostic: the gateway owns timeouts/retries/concurrency, the
// Completer owns wire-format translation.
type Completer interface {
	Complete(ctx context.Context, model string, messages []types.Message, opts ChatOptions) (content string, promptTokens, outputTokens int, err error)
	Embed(ctx context.Context, model string, texts []string, dimensions int) ([][]float32, error)
}

// Gateway wraps a Completer with retry, per-model concurrency limits,
// and timeouts.
type Gateway struct {
	client Completer
	policy *retry.RetryPolicy
	logger *zap.Logger

	defaultChatTimeout  time.Duration
	synthChatTimeout    time.Duration
	maxInflightPerModel int

	mu       sync.Mutex
	limiters map[string]*modelLimiter
	breakers map[string]circuitbreaker.CircuitBreaker

	embedCache *embedCache
}

// modelLimiter bounds both the in-flight concurrency and the steady-state
// QPS for a single model name.
type modelLimiter struct {
	sem     chan struct{}
	limiter *rate.Limiter
}

// Config bounds gateway behavior; zero values fall back to spec defaults.
type Config struct {
	DefaultChatTimeout  time.Duration
	SynthChatTimeout    time.Duration
	MaxRetries          int
	MaxInflightPerModel int
	EmbeddingCacheSize  int
}

// New builds a Gateway. client is the concrete provider adapter.
func New(client Completer, cfg Config, logger *zap.Logger) *Gateway {
	if cfg.DefaultChatTimeout <= 0 {
		cfg.DefaultChatTimeout = 120 * time.Second
	}
	if cfg.SynthChatTimeout <= 0 {
		cfg.SynthChatTimeout = 300 * time.Second
	}
	if cfg.MaxInflightPerModel <= 0 {
		cfg.MaxInflightPerModel = 10
	}
	if cfg.EmbeddingCacheSize <= 0 {
		cfg.EmbeddingCacheSize = 10_000
	}

	policy := retry.DefaultRetryPolicy()
	policy.MaxRetries = cfg.MaxRetries
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 3
	}

	return &Gateway{
		client:              client,
		policy:              policy,
		logger:              logger.With(zap.String("component", "llmgateway")),
		defaultChatTimeout:  cfg.DefaultChatTimeout,
		synthChatTimeout:    cfg.SynthChatTimeout,
		maxInflightPerModel: cfg.MaxInflightPerModel,
		limiters:            make(map[string]*modelLimiter),
		breakers:            make(map[string]circuitbreaker.CircuitBreaker),
		embedCache:          newEmbedCache(cfg.EmbeddingCacheSize),
	}
}

func (g *Gateway) limiterFor(model string) *modelLimiter {
	g.mu.Lock()
	defer g.mu.Unlock()

	l, ok := g.limiters[model]
	if !ok {
		l = &modelLimiter{
			sem:     make(chan struct{}, g.maxInflightPerModel),
			limiter: rate.NewLimiter(rate.Limit(20), 20),
		}
		g.limiters[model] = l
	}
	return l
}

// breakerFor returns the per-model circuit breaker, trading 5 consecutive
// failed provider calls (any error except the client-error codes the
// breaker ignores) for a fast-failing open state rather than letting
// every caller queue behind a downed provider's full timeout.
func (g *Gateway) breakerFor(model string) circuitbreaker.CircuitBreaker {
	g.mu.Lock()
	defer g.mu.Unlock()

	cb, ok := g.breakers[model]
	if !ok {
		cb = circuitbreaker.NewCircuitBreaker(&circuitbreaker.Config{
			Threshold:        5,
			Timeout:          g.defaultChatTimeout,
			ResetTimeout:     30 * time.Second,
			HalfOpenMaxCalls: 1,
		}, g.logger)
		g.breakers[model] = cb
	}
	return cb
}

// callWithRetry runs fn with exponential backoff + jitter, making at most
// policy.MaxRetries retries (MaxRetries+1 attempts in all). When fn
// reports its error as not retryable, no further attempt is made —
// 4xx-other-than-429 and schema failures are not worth retrying.
func callWithRetry[T any](ctx context.Context, policy *retry.RetryPolicy, logger *zap.Logger, fn func() (T, error, bool)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffDelay(policy, attempt)
			logger.Debug("retrying llm call", zap.Int("attempt", attempt), zap.Duration("delay", delay), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
			}
		}

		result, err, retryable := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !retryable {
			return zero, err
		}
	}

	return zero, lastErr
}

func backoffDelay(policy *retry.RetryPolicy, attempt int) time.Duration {
	delay := float64(policy.InitialDelay) * math.Pow(policy.Multiplier, float64(attempt-1))
	if max := float64(policy.MaxDelay); delay > max {
		delay = max
	}
	if policy.Jitter {
		delay = delay * (0.5 + rand.Float64()*0.5)
	}
	if delay < float64(policy.InitialDelay) {
		delay = float64(policy.InitialDelay)
	}
	return time.Duration(delay)
}

// Chat performs a single chat completion. It never returns a non-nil
// error for remote failure; err is reserved for misuse (empty messages).
func (g *Gateway) Chat(ctx context.Context, model string, messages []types.Message, opts ChatOptions) (ChatResult, error) {
	if len(messages) == 0 {
		return ChatResult{}, errors.New("llmgateway: Chat called with empty messages")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = g.defaultChatTimeout
	}

	limiter := g.limiterFor(model)
	select {
	case limiter.sem <- struct{}{}:
		defer func() { <-limiter.sem }()
	case <-ctx.Done():
		return ChatResult{Status: StatusRetryable, ErrorMessage: "inflight slot wait cancelled"}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	breaker := g.breakerFor(model)
	success, err := callWithRetry(callCtx, g.policy, g.logger, func() (chatSuccess, error, bool) {
		if err := limiter.limiter.Wait(callCtx); err != nil {
			return chatSuccess{}, err, false
		}
		result, err := breaker.CallWithResult(callCtx, func() (any, error) {
			content, promptTok, outTok, err := g.client.Complete(callCtx, model, messages, opts)
			if err != nil {
				return nil, err
			}
			return chatSuccess{content, promptTok, outTok}, nil
		})
		if err != nil {
			if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
				return chatSuccess{}, err, false
			}
			return chatSuccess{}, err, isRetryable(err)
		}
		return result.(chatSuccess), nil, false
	})

	if err != nil {
		g.logger.Warn("chat call failed after retries", zap.String("model", model), zap.Error(err))
		status := StatusRetryable
		if !isRetryable(err) {
			status = StatusFatal
		}
		return ChatResult{Status: status, ErrorMessage: err.Error()}, nil
	}

	return ChatResult{
		Status:       StatusOK,
		Content:      success.content,
		PromptTokens: success.promptTokens,
		OutputTokens: success.outputTokens,
	}, nil
}

type chatSuccess struct {
	content      string
	promptTokens int
	outputTokens int
}

// EmbedResult tags the outcome of Embed.
type EmbedResult struct {
	Status       Status
	Vectors      [][]float32
	ErrorMessage string
}

// Embed generates embeddings for texts, consulting (and populating) the
// bounded LRU cache keyed by sha256(model, dimensions, text).
func (g *Gateway) Embed(ctx context.Context, model string, texts []string, dimensions int) (EmbedResult, error) {
	if len(texts) == 0 {
		return EmbedResult{}, errors.New("llmgateway: Embed called with no texts")
	}
	if dimensions <= 0 {
		return EmbedResult{}, fmt.Errorf("llmgateway: Embed called with non-positive dimensions %d", dimensions)
	}

	vectors := make([][]float32, len(texts))
	misses := make([]int, 0, len(texts))
	missTexts := make([]string, 0, len(texts))

	for i, text := range texts {
		key := embedCacheKey(model, dimensions, text)
		if v, ok := g.embedCache.get(key); ok {
			vectors[i] = v
			continue
		}
		misses = append(misses, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return EmbedResult{Status: StatusOK, Vectors: vectors}, nil
	}

	limiter := g.limiterFor(model)
	select {
	case limiter.sem <- struct{}{}:
		defer func() { <-limiter.sem }()
	case <-ctx.Done():
		return EmbedResult{Status: StatusRetryable, ErrorMessage: "inflight slot wait cancelled"}, nil
	}

	callCtx, cancel := context.WithTimeout(ctx, g.defaultChatTimeout)
	defer cancel()

	breaker := g.breakerFor(model)
	fetched, err := callWithRetry(callCtx, g.policy, g.logger, func() ([][]float32, error, bool) {
		if err := limiter.limiter.Wait(callCtx); err != nil {
			return nil, err, false
		}
		result, err := breaker.CallWithResult(callCtx, func() (any, error) {
			return g.client.Embed(callCtx, model, missTexts, dimensions)
		})
		if err != nil {
			if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
				return nil, err, false
			}
			return nil, err, isRetryable(err)
		}
		return result.([][]float32), nil, false
	})
	if err != nil {
		status := StatusRetryable
		if !isRetryable(err) {
			status = StatusFatal
		}
		return EmbedResult{Status: status, ErrorMessage: err.Error()}, nil
	}

	for j, idx := range misses {
		vectors[idx] = fetched[j]
		g.embedCache.put(embedCacheKey(model, dimensions, texts[idx]), fetched[j])
	}

	return EmbedResult{Status: StatusOK, Vectors: vectors}, nil
}

func embedCacheKey(model string, dimensions int, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	fmt.Fprintf(h, "%d", dimensions)
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// isRetryable distinguishes network/5xx/429 from fatal 4xx/schema errors.
func isRetryable(err error) bool {
	var httpErr interface{ StatusCode() int }
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode()
		return code == http.StatusTooManyRequests || code >= 500
	}
	// Unclassified (network/transport) errors default to retryable.
	return true
}
