package types

import (
	"fmt"
	"strings"
)

// ErrorKind is the closed enumeration of engine error kinds. Control flow
// keys off kinds, never off message text.
type ErrorKind string

const (
	// Validation kinds: pre-execution, fatal for the whole run
	ErrKindUnknownNodeType ErrorKind = "unknown_node_type"
	ErrKindDanglingEdge    ErrorKind = "dangling_edge"
	ErrKindDuplicateNodeID ErrorKind = "duplicate_node_id"
	ErrKindInvalidEdge     ErrorKind = "invalid_edge"
	ErrKindCyclicWorkflow  ErrorKind = "cyclic_workflow"
	ErrKindWorkflowTooLarge ErrorKind = "workflow_too_large"

	// ErrKindMissingInput names the condition the data collector reports
	// as collector.ErrMissingRequiredInput when a required direct source is
	// unavailable. The target is skipped and no execution error entry is
	// recorded for it; the execution continues.
	ErrKindMissingInput ErrorKind = "missing_required_input"

	// Node execution kinds: by default mark only the failing node
	ErrKindProvider ErrorKind = "provider_error"
	ErrKindTimeout  ErrorKind = "timeout"
	ErrKindCanceled ErrorKind = "canceled"
	ErrKindBadOutput ErrorKind = "bad_output"
	ErrKindInternal  ErrorKind = "internal_error"
)

// Validation reports whether the kind is a pre-execution validation kind.
func (k ErrorKind) Validation() bool {
	switch k {
	case ErrKindUnknownNodeType, ErrKindDanglingEdge, ErrKindDuplicateNodeID,
		ErrKindInvalidEdge, ErrKindCyclicWorkflow, ErrKindWorkflowTooLarge:
		return true
	}
	return false
}

// NodeError is the typed error attached to a failed NodeResult.
type NodeError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	CauseID string    `json:"cause_id,omitempty"`
	cause   error
}

// NewNodeError creates a NodeError wrapping an underlying cause.
func NewNodeError(kind ErrorKind, causeID string, cause error) *NodeError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &NodeError{Kind: kind, Message: msg, CauseID: causeID, cause: cause}
}

// Error implements the error interface
func (e *NodeError) Error() string {
	if e.Message == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause, if any
func (e *NodeError) Unwrap() error {
	return e.cause
}

// ValidationError is returned by the workflow validator. All validation
// errors are fatal; no partial execution may begin after one is raised.
type ValidationError struct {
	Kind    ErrorKind `json:"kind"`
	NodeID  string    `json:"node_id,omitempty"`
	Source  string    `json:"source,omitempty"`
	Target  string    `json:"target,omitempty"`
	Cycle   []string  `json:"cycle,omitempty"`
	Message string    `json:"message"`
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if len(e.Cycle) > 0 {
		return fmt.Sprintf("%s: %s (cycle: %s)", e.Kind, e.Message, strings.Join(e.Cycle, " -> "))
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}
