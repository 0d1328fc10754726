// Package config holds workflow engine configuration.
// All engine tunables are centralized here for easy management and validation.
package config

import (
	"time"
)

// Config holds engine configuration. A Config is passed by value into the
// engine at construction; per-execution state never lives here.
type Config struct {
	// Scheduling
	MaxParallelNodes int           // Bounded parallelism P for independent nodes (1 = sequential)
	MaxExecutionTime time.Duration // Wall-clock budget for a whole execution (0 = unlimited)

	// Input routing
	IntelligentRouting bool // Expose upstream outputs under namespaced {source_id}.{field} keys

	// Streaming
	StreamBufferSize int // Per-subscriber progress buffer before oldest progress events drop

	// Trace digests
	DigestMaxStringLen int // Truncate strings in trace digests beyond this many characters
	DigestHashOverLen  int // Hash digest payloads larger than this many bytes

	// Resource limits
	MaxNodes int // Maximum number of nodes in a workflow (0 = unlimited)
	MaxEdges int // Maximum number of edges in a workflow (0 = unlimited)
}

// Default returns a Config with production-ready default values.
func Default() Config {
	return Config{
		MaxParallelNodes:   1, // sequential unless the caller opts in
		MaxExecutionTime:   10 * time.Minute,
		IntelligentRouting: false,
		StreamBufferSize:   64,
		DigestMaxStringLen: 256,
		DigestHashOverLen:  8 * 1024,
		MaxNodes:           1000,
		MaxEdges:           5000,
	}
}

// Testing returns a Config optimized for tests with short budgets.
func Testing() Config {
	cfg := Default()
	cfg.MaxExecutionTime = 1 * time.Minute
	cfg.StreamBufferSize = 16
	return cfg
}

// Validate checks if the configuration values are valid.
func (c Config) Validate() error {
	if c.MaxParallelNodes < 1 {
		return ErrInvalidParallelism
	}
	if c.MaxExecutionTime < 0 {
		return ErrInvalidExecutionTime
	}
	if c.StreamBufferSize < 16 {
		return ErrInvalidStreamBuffer
	}
	if c.DigestMaxStringLen <= 0 || c.DigestHashOverLen <= 0 {
		return ErrInvalidDigestLimits
	}
	if c.MaxNodes < 0 || c.MaxEdges < 0 {
		return ErrInvalidResourceLimit
	}
	return nil
}
