// Package cost tracks per-run provider spend.
package cost

import (
	"math"
	"sync"
)

// Ledger accumulates USD spend by provider for a single pipeline run or
// batch. Safe for concurrent use.
type Ledger struct {
	mu         sync.Mutex
	byProvider map[string]float64
	total      float64
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{byProvider: make(map[string]float64)}
}

// Add records spend for a provider. Zero amounts are ignored.
func (l *Ledger) Add(provider string, usd float64) {
	if usd == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.byProvider[provider] += usd
	l.total += usd
}

// Total returns the accumulated spend in USD.
func (l *Ledger) Total() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return round4(l.total)
}

// ByProvider returns a copy of the per-provider breakdown.
func (l *Ledger) ByProvider() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]float64, len(l.byProvider))
	for k, v := range l.byProvider {
		out[k] = round4(v)
	}
	return out
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
