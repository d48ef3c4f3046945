package adapters

import (
	"context"
	"database/sql"
)

// DBAdapter defines the interface for database operations needed by the SQL store.
type DBAdapter interface {
	Exec(ctx context.Context, query string) (DBResult, error)
	BeginTx(ctx context.Context, level sql.IsolationLevel) (DBTx, error)
}

// DBResult defines the interface for execution results.
type DBResult interface {
	RowsAffected() (int64, error)
}

// DBTx defines the interface for an open database transaction.
type DBTx interface {
	Exec(ctx context.Context, query string) (DBResult, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}
