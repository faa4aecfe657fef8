// Package llm provides the single point of contact with LLM providers:
// token estimation, cost-ceiling enforcement, retry with backoff, and
// JSON repair/parse of provider responses.
package llm

import "context"

// CallResult carries usage metadata alongside a gateway response.
type CallResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Gateway is the sole component that performs outbound LLM I/O.
// Implementations enforce the pre-flight cost check, retry policy and
// JSON repair described for the LLM Gateway.
type Gateway interface {
	// CallText returns a raw text response for prompt, with an optional
	// system message.
	CallText(ctx context.Context, prompt, system string) (string, error)

	// CallJSON returns a parsed JSON object response. schemaHint is an
	// optional human-readable description of the expected shape, appended
	// to the system message to steer the model; it is never validated
	// against a formal schema.
	CallJSON(ctx context.Context, prompt, schemaHint string) (map[string]any, error)

	// Model returns the configured model name, for logging and pricing lookups.
	Model() string
}

// ProviderClient is the minimal surface the gateway needs from an
// OpenAI-compatible or Anthropic-compatible chat completion client.
// Client (OpenAI-compatible) and AnthropicClient both satisfy it.
type ProviderClient interface {
	Complete(ctx context.Context, prompt, system string, temperature float64) (*CallResult, error)
	GetModel() string
	GetEndpoint() string
}

var _ ProviderClient = (*Client)(nil)
var _ ProviderClient = (*AnthropicClient)(nil)
