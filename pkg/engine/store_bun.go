package engine

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/smilemakc/mbflow/pkg/models"
	"github.com/smilemakc/mbflow/pkg/value"
)

// executionNodeRow is the bun-mapped row persisted for every Append.
// It mirrors graphNode minus the fields that cannot outlive a process
// (the compiled *ExecutionState and its operations/dependency graph).
type executionNodeRow struct {
	bun.BaseModel `bun:"table:execution_nodes,alias:en"`

	ID          string `bun:"id,pk"`
	ParentID    string `bun:"parent_id"`
	OperationID string `bun:"operation_id"`
	Output      []byte `bun:"output"`
	HasError    bool   `bun:"has_error"`
}

// BunStore persists Execution Graph nodes to Postgres via bun/pgdriver.
// It is attached to an ExecutionGraph through AttachStore when the
// instance is configured with a non-":memory:" DSN.
type BunStore struct {
	db *bun.DB
}

// NewBunStore opens dsn (a standard Postgres connection string) and
// ensures the execution_nodes table exists.
func NewBunStore(ctx context.Context, dsn string) (*BunStore, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("engine: bun store: ping: %w", err)
	}

	if _, err := db.NewCreateTable().
		Model((*executionNodeRow)(nil)).
		IfNotExists().
		Exec(ctx); err != nil {
		return nil, fmt.Errorf("engine: bun store: create table: %w", err)
	}

	return &BunStore{db: db}, nil
}

// SaveNode implements NodeStore.
func (s *BunStore) SaveNode(ctx context.Context, id, parent ExecutionNodeID, op models.OperationID, out Binding) error {
	encoded, err := value.Encode(out.Output)
	if err != nil {
		return fmt.Errorf("engine: bun store: encode output: %w", err)
	}
	row := &executionNodeRow{
		ID:          id.String(),
		ParentID:    parent.String(),
		OperationID: op.String(),
		Output:      encoded,
		HasError:    out.HasError,
	}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (id) DO UPDATE").
		Exec(ctx)
	return err
}

// LoadAll returns every persisted node, oldest first, for audit/replay
// tooling. It does not reconstruct live ExecutionState values.
func (s *BunStore) LoadAll(ctx context.Context) ([]HistoryEntry, error) {
	var rows []executionNodeRow
	if err := s.db.NewSelect().Model(&rows).Order("id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("engine: bun store: load all: %w", err)
	}

	out := make([]HistoryEntry, 0, len(rows))
	for _, row := range rows {
		output, err := value.Decode(row.Output)
		if err != nil {
			return nil, fmt.Errorf("engine: bun store: decode output for %s: %w", row.ID, err)
		}
		opID, err := models.ParseOperationID(row.OperationID)
		if err != nil {
			return nil, fmt.Errorf("engine: bun store: parse operation id for %s: %w", row.ID, err)
		}
		out = append(out, HistoryEntry{
			OperationID: opID,
			Output:      Binding{Output: output, HasError: row.HasError},
		})
	}
	return out, nil
}

// Close releases the underlying database connection.
func (s *BunStore) Close() error {
	return s.db.DB.Close()
}
