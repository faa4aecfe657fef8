package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/metadata-pipeline/metadatapipeline/pkg/apperrors"
	"github.com/metadata-pipeline/metadatapipeline/pkg/models"
	"github.com/metadata-pipeline/metadatapipeline/pkg/retry"
)

// PricePerThousand is a per-model price lookup, in USD per 1k tokens
// (prompt and completion priced the same; providers that split the two are
// still billed at this single rate since the pre-flight estimate has no
// completion-length to work from). Entries are indicative defaults; an
// unknown model falls back to defaultPricePerThousand.
var PricePerThousand = map[string]float64{
	"gpt-4o":             0.005,
	"gpt-4o-mini":        0.00015,
	"gpt-4-turbo":        0.01,
	"claude-sonnet-4-5-20250929": 0.003,
	"claude-opus-4-1":    0.015,
	"claude-3-5-haiku-20241022": 0.0008,
}

const defaultPricePerThousand = 0.002

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	// AttemptTimeout bounds a single provider call. Default 30s.
	AttemptTimeout time.Duration
	// MaxConcurrent bounds in-flight calls via a semaphore. Default 4.
	MaxConcurrent int
	// Temperature is passed to every provider call.
	Temperature float64
	// Retry overrides the default 3-attempt exponential backoff policy
	// (base ~1s, factor 2, cap ~10s).
	Retry *retry.Config
}

// DefaultGatewayConfig returns the spec's stated defaults.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		AttemptTimeout: 30 * time.Second,
		MaxConcurrent:  4,
		Temperature:    0.2,
		Retry: &retry.Config{
			MaxRetries:   2, // 3 attempts in total
			InitialDelay: time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
	}
}

// gateway is the sole component performing outbound LLM I/O. It enforces
// the pre-flight cost check, retries transient provider errors, repairs
// and parses JSON responses, and accounts usage into a CostLedger.
type gateway struct {
	provider ProviderClient
	ledger   *models.CostLedger
	cfg      GatewayConfig
	pool     *WorkerPool
	breaker  *CircuitBreaker
	logger   *zap.Logger
}

// NewGateway constructs a Gateway backed by provider, charging calls
// against ledger.
func NewGateway(provider ProviderClient, ledger *models.CostLedger, cfg GatewayConfig, logger *zap.Logger) Gateway {
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.Retry == nil {
		cfg.Retry = DefaultGatewayConfig().Retry
	}
	return &gateway{
		provider: provider,
		ledger:   ledger,
		cfg:      cfg,
		pool:     NewWorkerPool(WorkerPoolConfig{MaxConcurrent: cfg.MaxConcurrent}, logger),
		breaker:  NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		logger:   logger.Named("llm.gateway"),
	}
}

// Model returns the configured provider's model name.
func (g *gateway) Model() string { return g.provider.GetModel() }

// estimateTokens approximates prompt token count as ceil(len(prompt)/4),
// per the pre-flight cost check contract.
func estimateTokens(prompt string) int {
	return int(math.Ceil(float64(len(prompt)) / 4.0))
}

// estimateCostUSD prices a projected token count against the configured
// model's per-1k rate, falling back to a sensible default when the model
// isn't in the lookup table.
func estimateCostUSD(model string, tokens int) float64 {
	price, ok := PricePerThousand[model]
	if !ok {
		price = defaultPricePerThousand
	}
	return price * float64(tokens) / 1000.0
}

// checkBudget rejects a call before it is issued if the projected cost
// would push the ledger past its ceiling.
func (g *gateway) checkBudget(prompt string) error {
	tokens := estimateTokens(prompt)
	projected := estimateCostUSD(g.Model(), tokens)
	if !g.ledger.CheckBudget(projected) {
		return apperrors.New(apperrors.CostExceeded, "projected LLM cost would exceed the configured ceiling")
	}
	return nil
}

// record charges the ledger with the call's actual usage when the provider
// reported it, or the pre-flight estimate otherwise.
func (g *gateway) record(prompt string, result *CallResult) {
	if result != nil && result.TotalTokens > 0 {
		g.ledger.Record(int64(result.TotalTokens), estimateCostUSD(g.Model(), result.TotalTokens))
		return
	}
	tokens := estimateTokens(prompt)
	g.ledger.Record(int64(tokens), estimateCostUSD(g.Model(), tokens))
}

// call runs a single provider completion through the circuit breaker,
// attempt timeout, and retry policy, in the semaphore-bounded pool.
func (g *gateway) call(ctx context.Context, prompt, system string) (*CallResult, error) {
	if err := g.checkBudget(prompt); err != nil {
		return nil, err
	}

	if allowed, err := g.breaker.Allow(); !allowed {
		return nil, apperrors.Wrap(apperrors.LLMUnavailable, "circuit breaker open", err)
	}

	results := g.pool.Process(ctx, []WorkItem{{
		ID: "call",
		Execute: func(ctx context.Context) (any, error) {
			var result *CallResult
			err := retry.DoIfRetryable(ctx, g.cfg.Retry, func() error {
				attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
				defer cancel()

				r, callErr := g.provider.Complete(attemptCtx, prompt, system, g.cfg.Temperature)
				if callErr != nil {
					return callErr
				}
				if r.Content == "" {
					return NewError(ErrorTypeUnknown, "empty response", true, nil)
				}
				result = r
				return nil
			})
			return result, err
		},
	}}, nil)

	res := results[0]
	if res.Err != nil {
		g.breaker.RecordFailure()
		g.logger.Error("llm call exhausted retries", zap.Error(res.Err))
		return nil, apperrors.Wrap(apperrors.LLMUnavailable, "LLM provider unavailable after retries", res.Err)
	}
	g.breaker.RecordSuccess()

	result, _ := res.Result.(*CallResult)
	g.record(prompt, result)
	return result, nil
}

// CallText returns a raw text response for prompt.
func (g *gateway) CallText(ctx context.Context, prompt, system string) (string, error) {
	result, err := g.call(ctx, prompt, system)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// CallJSON returns a parsed JSON object response, repairing common
// malformations before parsing.
func (g *gateway) CallJSON(ctx context.Context, prompt, schemaHint string) (map[string]any, error) {
	system := "Respond with a single JSON object only, no surrounding prose."
	if schemaHint != "" {
		system = fmt.Sprintf("%s Expected shape: %s", system, schemaHint)
	}

	result, err := g.call(ctx, prompt, system)
	if err != nil {
		return nil, err
	}

	jsonStr, err := ExtractJSON(result.Content)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.LLMUnavailable, "provider response contained no parseable JSON", err)
	}

	var obj map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &obj); err != nil {
		return nil, apperrors.Wrap(apperrors.LLMUnavailable, "provider JSON did not decode to an object", err)
	}
	return obj, nil
}
