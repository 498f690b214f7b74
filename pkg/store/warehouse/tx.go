package warehouse

import (
	"context"
	"database/sql"
)

type txKey struct{}

func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

func GetTransaction(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Executor is the subset of *sql.DB and *sql.Tx used by writers.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ExecutorFor returns the transaction carried by ctx, falling back to db.
func ExecutorFor(ctx context.Context, db *sql.DB) Executor {
	if tx := GetTransaction(ctx); tx != nil {
		return tx
	}
	return db
}
