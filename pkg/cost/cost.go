// Package cost tracks per-node cost and token usage for an execution and
// appends durable CostRecords to a pluggable ledger sink.
//
// All arithmetic uses decimal values: execution totals must equal the exact
// sum of per-node costs, with up to 8 fractional digits and no floating
// drift.
package cost

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/mettice/nodeai/pkg/types"
)

// Scale is the maximum number of fractional digits carried by cost values.
const Scale = 8

// Sink is the durable, append-only cost ledger. Sink failures are logged by
// the engine but never fail the execution; the engine does not read the
// ledger back.
type Sink interface {
	Record(ctx context.Context, record types.CostRecord) error
}

// NoopSink discards cost records.
type NoopSink struct{}

// Record implements Sink (does nothing)
func (NoopSink) Record(context.Context, types.CostRecord) error { return nil }

// MemorySink retains cost records in memory, in append order.
type MemorySink struct {
	mu      sync.Mutex
	records []types.CostRecord
}

// NewMemorySink creates an empty in-memory cost sink
func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

// Record implements Sink
func (s *MemorySink) Record(_ context.Context, record types.CostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

// Records returns a copy of all recorded entries.
func (s *MemorySink) Records() []types.CostRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.CostRecord, len(s.records))
	copy(out, s.records)
	return out
}

// Tracker accumulates per-execution cost totals in memory. One Tracker exists
// per execution; it is safe for concurrent recording when nodes run in
// parallel.
type Tracker struct {
	mu      sync.Mutex
	total   decimal.Decimal
	tokens  types.TokenUsage
	records []types.CostRecord
}

// NewTracker creates a zeroed tracker
func NewTracker() *Tracker {
	return &Tracker{total: decimal.Zero}
}

// Add records one completed node's cost metadata. Records with zero cost and
// zero total tokens are tracked for totals but produce no ledger entry.
func (t *Tracker) Add(record types.CostRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.total = t.total.Add(record.Cost)
	t.tokens.Add(record.Tokens)
	if !record.Cost.IsZero() || record.Tokens.Total > 0 {
		t.records = append(t.records, record)
	}
}

// Total returns the accumulated cost, rounded to Scale fractional digits.
func (t *Tracker) Total() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total.Round(Scale)
}

// Tokens returns the accumulated token usage.
func (t *Tracker) Tokens() types.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tokens
}

// Records returns the ledger-worthy records in append order.
func (t *Tracker) Records() []types.CostRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]types.CostRecord, len(t.records))
	copy(out, t.records)
	return out
}
