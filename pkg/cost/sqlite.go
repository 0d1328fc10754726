package cost

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/mettice/nodeai/pkg/types"
)

// SQLiteSink is a SQLite-backed durable cost ledger. It stores one row per
// CostRecord in a single-file database, suitable for single-process
// deployments and local development; pass ":memory:" for tests.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens (and if necessary creates) the ledger database at path.
// WAL mode is enabled so ledger readers never block the engine's appends.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cost ledger: %w", err)
	}

	// SQLite supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS cost_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			execution_id TEXT NOT NULL,
			workflow_id TEXT NOT NULL,
			node_id TEXT NOT NULL,
			node_type TEXT NOT NULL,
			cost TEXT NOT NULL,
			tokens_input INTEGER NOT NULL,
			tokens_output INTEGER NOT NULL,
			tokens_total INTEGER NOT NULL,
			provider TEXT,
			model TEXT,
			recorded_at TEXT NOT NULL
		)
	`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cost_records table: %w", err)
	}
	if _, err := db.ExecContext(ctx, "CREATE INDEX IF NOT EXISTS idx_cost_execution ON cost_records(execution_id)"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create idx_cost_execution: %w", err)
	}

	return &SQLiteSink{db: db}, nil
}

// Record implements Sink. Costs are stored as decimal strings to preserve
// exactness.
func (s *SQLiteSink) Record(ctx context.Context, record types.CostRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_records
			(execution_id, workflow_id, node_id, node_type, cost,
			 tokens_input, tokens_output, tokens_total, provider, model, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ExecutionID,
		record.WorkflowID,
		record.NodeID,
		string(record.NodeType),
		record.Cost.String(),
		record.Tokens.Input,
		record.Tokens.Output,
		record.Tokens.Total,
		record.Provider,
		record.Model,
		record.Timestamp.Format(types.TimeFormat),
	)
	if err != nil {
		return fmt.Errorf("failed to append cost record: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteSink) Close() error {
	return s.db.Close()
}
