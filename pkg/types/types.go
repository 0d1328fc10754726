// Package types provides shared type definitions for the workflow execution engine.
// All core data structures used across packages are defined here to avoid circular dependencies.
package types

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================================
// Context Keys
// ============================================================================

// contextKey is used for context keys to avoid collisions
type contextKey string

const (
	// ContextKeyExecutionID is the context key for the unique execution ID
	ContextKeyExecutionID contextKey = "execution_id"

	// ContextKeyWorkflowID is the context key for the workflow ID
	ContextKeyWorkflowID contextKey = "workflow_id"

	// ContextKeyNodeID is the context key for the currently executing node ID
	ContextKeyNodeID contextKey = "node_id"
)

// GetExecutionID extracts the execution ID from context.
// Returns empty string if not found in context.
func GetExecutionID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyExecutionID).(string); ok {
		return id
	}
	return ""
}

// GetWorkflowID extracts the workflow ID from context.
// Returns empty string if not found in context.
func GetWorkflowID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyWorkflowID).(string); ok {
		return id
	}
	return ""
}

// GetNodeID extracts the currently executing node ID from context.
// Returns empty string if not found in context.
func GetNodeID(ctx context.Context) string {
	if id, ok := ctx.Value(ContextKeyNodeID).(string); ok {
		return id
	}
	return ""
}

// ============================================================================
// Node Types
// ============================================================================

// NodeType is the opaque tag that resolves a node to its handler in the registry.
// The engine attaches no meaning to the tag itself; the constants below cover
// the retrieval-pattern node types the default field-mapping table knows about.
type NodeType string

const (
	NodeTypeTextInput NodeType = "text_input" // User-supplied query or document text
	NodeTypeFileInput NodeType = "file_input" // Pre-extracted file content
	NodeTypeEmbed     NodeType = "embed"      // Text to vector embedding
	NodeTypeRetrieve  NodeType = "retrieve"   // Vector store similarity search
	NodeTypeRerank    NodeType = "rerank"     // Re-score retrieved chunks
	NodeTypeGenerate  NodeType = "generate"   // LLM completion over query + context
	NodeTypeAgent     NodeType = "agent"      // Multi-step tool-using agent
	NodeTypeToolCall  NodeType = "tool_call"  // Single external tool invocation
	NodeTypeChunk     NodeType = "chunk"      // Split documents into chunks
	NodeTypeOutput    NodeType = "output"     // Terminal output formatting
)

// ============================================================================
// Workflow Structures
// ============================================================================

// Workflow is the user-defined graph submitted for execution.
// It is a pure input: the engine never mutates it.
type Workflow struct {
	ID    string `json:"id"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is one unit of work in a workflow graph.
// Config values are JSON-shaped and opaque to the engine.
type Node struct {
	ID     string                 `json:"id"`
	Type   NodeType               `json:"type"`
	Config map[string]interface{} `json:"config,omitempty"`
}

// Edge is a directed dependency between two nodes. The optional handle labels
// refine which output field flows into which input field; when present they
// outrank the type-based field mapping.
type Edge struct {
	Source       string  `json:"source"`
	Target       string  `json:"target"`
	SourceHandle *string `json:"source_handle,omitempty"`
	TargetHandle *string `json:"target_handle,omitempty"`
}

// ============================================================================
// Execution Structures
// ============================================================================

// NodeStatus represents the lifecycle state of a single node execution
type NodeStatus string

const (
	NodeStatusPending   NodeStatus = "pending"
	NodeStatusRunning   NodeStatus = "running"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusFailed    NodeStatus = "failed"
	NodeStatusSkipped   NodeStatus = "skipped"
)

// Terminal reports whether the status is one of the terminal states.
func (s NodeStatus) Terminal() bool {
	return s == NodeStatusCompleted || s == NodeStatusFailed || s == NodeStatusSkipped
}

// ExecutionStatus represents the terminal state of a whole workflow execution
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCanceled  ExecutionStatus = "canceled"
)

// SkipReason explains why a node was marked skipped
type SkipReason string

const (
	SkipReasonMissingInput SkipReason = "missing_input"
	SkipReasonCanceled     SkipReason = "canceled"
	SkipReasonFatalError   SkipReason = "fatal_error"
)

// TokenUsage counts tokens consumed by a node or execution
type TokenUsage struct {
	Input  int64 `json:"input"`
	Output int64 `json:"output"`
	Total  int64 `json:"total"`
}

// Add accumulates another usage into this one
func (t *TokenUsage) Add(other TokenUsage) {
	t.Input += other.Input
	t.Output += other.Output
	t.Total += other.Total
}

// NodeResult is the record of one node's execution. Once the status is
// terminal the result is immutable; downstream consumers read it but never
// write it. Output maps are shared by reference, never copied except when
// building trace digests.
type NodeResult struct {
	NodeID      string                 `json:"node_id"`
	Status      NodeStatus             `json:"status"`
	Output      map[string]interface{} `json:"output,omitempty"`
	Error       *NodeError             `json:"error,omitempty"`
	SkipReason  SkipReason             `json:"skip_reason,omitempty"`
	Cost        decimal.Decimal        `json:"cost"`
	Tokens      TokenUsage             `json:"tokens"`
	StartedAt   Time                   `json:"started_at"`
	CompletedAt Time                   `json:"completed_at"`
	SpanID      string                 `json:"span_id,omitempty"`
}

// Duration returns the wall-clock time the node spent executing.
func (r *NodeResult) Duration() time.Duration {
	if r.CompletedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt.Time)
}

// Execution is a single run of a workflow. It owns its NodeResult set for its
// lifetime and is sealed when the status becomes terminal.
type Execution struct {
	ExecutionID string                 `json:"execution_id"`
	WorkflowID  string                 `json:"workflow_id"`
	Status      ExecutionStatus        `json:"status"`
	StartedAt   Time                   `json:"started_at"`
	CompletedAt Time                   `json:"completed_at"`
	Results     map[string]*NodeResult `json:"results"`
	TotalCost   decimal.Decimal        `json:"total_cost"`
	TotalTokens TokenUsage             `json:"total_tokens"`
	QueryTrace  *QueryTrace            `json:"query_trace,omitempty"`
	Errors      []ExecutionError       `json:"errors,omitempty"`
}

// ExecutionError is one entry in the execution's error list. Entries are
// appended in termination order, one per failed node or fatal event.
type ExecutionError struct {
	NodeID  string    `json:"node_id,omitempty"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	CauseID string    `json:"cause_id,omitempty"`
	Cycle   []string  `json:"cycle,omitempty"`
}

// ============================================================================
// Tracing Structures
// ============================================================================

// StepType classifies a retrieval-pipeline trace step
type StepType string

const (
	StepTypeInput    StepType = "input"
	StepTypeEmbed    StepType = "embed"
	StepTypeRetrieve StepType = "retrieve"
	StepTypeRerank   StepType = "rerank"
	StepTypeGenerate StepType = "generate"
	StepTypeToolCall StepType = "tool_call"
	StepTypeOutput   StepType = "output"
	StepTypeOther    StepType = "other"
)

// TraceStep is one entry in a QueryTrace. Steps are appended in the order
// their originating nodes terminated, which under concurrent dispatch is not
// necessarily DAG order.
type TraceStep struct {
	SpanID        string    `json:"span_id"`
	ParentSpanID  string    `json:"parent_span_id,omitempty"`
	StepType      StepType  `json:"step_type"`
	NodeID        string    `json:"node_id"`
	StartedAt     Time      `json:"started_at"`
	DurationMS    int64     `json:"duration_ms"`
	InputsDigest  string    `json:"inputs_digest"`
	OutputsDigest string    `json:"outputs_digest"`
}

// QueryTrace is the retrieval-oriented step log built for workflows that
// contain at least one retrieval-pattern node.
type QueryTrace struct {
	ExecutionID string      `json:"execution_id"`
	Steps       []TraceStep `json:"steps"`
}

// SpanStatus is the terminal status of an observability span
type SpanStatus string

const (
	SpanStatusOK    SpanStatus = "ok"
	SpanStatusError SpanStatus = "error"
)

// Span is the general observability record bracketing one unit of work:
// one root span per execution, one child span per node execution.
type Span struct {
	SpanID       string                 `json:"span_id"`
	ParentSpanID string                 `json:"parent_span_id,omitempty"`
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	StartedAt    Time                   `json:"started_at"`
	EndedAt      Time                   `json:"ended_at"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
	Status       SpanStatus             `json:"status"`
}

// ============================================================================
// Cost Structures
// ============================================================================

// CostRecord is the durable per-node cost entry appended to the ledger.
type CostRecord struct {
	ExecutionID string          `json:"execution_id"`
	WorkflowID  string          `json:"workflow_id"`
	NodeID      string          `json:"node_id"`
	NodeType    NodeType        `json:"node_type"`
	Cost        decimal.Decimal `json:"cost"`
	Tokens      TokenUsage      `json:"tokens"`
	Provider    string          `json:"provider,omitempty"`
	Model       string          `json:"model,omitempty"`
	Timestamp   Time            `json:"timestamp"`
}
