package types

import "github.com/shopspring/decimal"

// EventType represents the type of an execution lifecycle event
type EventType string

const (
	EventExecutionStarted   EventType = "execution_started"
	EventNodeStarted        EventType = "node_started"
	EventNodeProgress       EventType = "node_progress"
	EventNodeCompleted      EventType = "node_completed"
	EventNodeFailed         EventType = "node_failed"
	EventNodeSkipped        EventType = "node_skipped"
	EventExecutionCompleted EventType = "execution_completed"
)

// Event is one execution lifecycle event delivered through the stream bus.
// Only the fields relevant to the event type are populated.
type Event struct {
	Type        EventType `json:"type"`
	ExecutionID string    `json:"execution_id"`
	WorkflowID  string    `json:"workflow_id,omitempty"`
	Timestamp   Time      `json:"timestamp"`

	// Node-level fields (empty for execution-level events)
	NodeID   string   `json:"node_id,omitempty"`
	NodeType NodeType `json:"node_type,omitempty"`
	SpanID   string   `json:"span_id,omitempty"`

	// execution_started
	NodeCount int `json:"node_count,omitempty"`

	// node_progress
	Fraction *float64               `json:"fraction,omitempty"`
	Message  string                 `json:"message,omitempty"`
	Partial  map[string]interface{} `json:"partial,omitempty"`

	// node_completed
	DurationMS   int64           `json:"duration_ms,omitempty"`
	Cost         decimal.Decimal `json:"cost"`
	TokensTotal  int64           `json:"tokens_total,omitempty"`
	OutputDigest string          `json:"output_digest,omitempty"`

	// node_failed / node_skipped
	ErrorKind ErrorKind  `json:"error_kind,omitempty"`
	Reason    SkipReason `json:"reason,omitempty"`

	// execution_completed
	Status    ExecutionStatus `json:"status,omitempty"`
	TotalCost decimal.Decimal `json:"total_cost"`
}

// Lifecycle reports whether the event is a lifecycle transition. Lifecycle
// events are never dropped by the stream bus; node_progress events may be
// dropped under backpressure.
func (e Event) Lifecycle() bool {
	return e.Type != EventNodeProgress
}
