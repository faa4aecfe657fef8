package models

import "sync"

// CostLedger is process-wide state tracking LLM token usage and dollar
// cost. All access is serialized through mu: reads before each call and
// writes after each are never concurrent with each other.
type CostLedger struct {
	mu sync.Mutex

	totalTokens   int64
	totalCostUSD  float64
	requestCount  int64
	maxCostUSD    float64
}

// NewCostLedger constructs a ledger with the given cost ceiling.
func NewCostLedger(maxCostUSD float64) *CostLedger {
	return &CostLedger{maxCostUSD: maxCostUSD}
}

// CostLedgerSnapshot is a point-in-time value copy of a CostLedger.
type CostLedgerSnapshot struct {
	TotalTokens  int64   `json:"total_tokens"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	RequestCount int64   `json:"request_count"`
	MaxCostUSD   float64 `json:"max_cost_usd"`
}

// Snapshot returns the ledger's current state.
func (c *CostLedger) Snapshot() CostLedgerSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CostLedgerSnapshot{
		TotalTokens:  c.totalTokens,
		TotalCostUSD: c.totalCostUSD,
		RequestCount: c.requestCount,
		MaxCostUSD:   c.maxCostUSD,
	}
}

// CheckBudget rejects a projected call if the ledger has already reached
// (or would be pushed past) the cost ceiling. It does not charge the
// ledger: charging happens only after a call actually succeeds, via Record.
func (c *CostLedger) CheckBudget(projectedCostUSD float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.totalCostUSD >= c.maxCostUSD {
		return false
	}
	return c.totalCostUSD+projectedCostUSD <= c.maxCostUSD
}

// Record charges the ledger with the actual (or, failing that, estimated)
// usage of one completed call. total_cost_usd is monotonically
// non-decreasing.
func (c *CostLedger) Record(tokens int64, costUSD float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalTokens += tokens
	c.totalCostUSD += costUSD
	c.requestCount++
}

// Reset clears the ledger. Only ever invoked explicitly, never on a timer.
func (c *CostLedger) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalTokens = 0
	c.totalCostUSD = 0
	c.requestCount = 0
}
