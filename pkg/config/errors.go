package config

import "errors"

// Sentinel errors for configuration validation
var (
	ErrInvalidParallelism   = errors.New("max parallel nodes must be at least 1")
	ErrInvalidExecutionTime = errors.New("max execution time cannot be negative")
	ErrInvalidStreamBuffer  = errors.New("stream buffer size must be at least 16")
	ErrInvalidDigestLimits  = errors.New("digest limits must be positive")
	ErrInvalidResourceLimit = errors.New("resource limits cannot be negative")
)
