package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Transactor runs a function inside one transaction carried on the context.
// Repositories pick it up through execQueryer, so nested WithTx calls and
// every repository call in between join the outermost transaction.
type Transactor struct {
	db   *DB
	opts pgx.TxOptions
	log  *zap.Logger
}

func NewTransactor(db *DB, logger *zap.Logger) *Transactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transactor{
		db:  db,
		log: logger.With(zap.String("component", "transactor")),
	}
}

// WithTx commits when fn returns nil and rolls back otherwise, including on
// panic. fn's own error is returned unwrapped.
func (t *Transactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	var fnErr error
	err := pgx.BeginTxFunc(ctx, t.db.Pool, t.opts, func(tx pgx.Tx) error {
		fnErr = fn(context.WithValue(ctx, txKey{}, tx))
		return fnErr
	})
	switch {
	case fnErr != nil:
		return fnErr
	case err != nil:
		t.log.Error("transaction", zap.Error(err))
		return fmt.Errorf("transaction: %w", err)
	}
	return nil
}

type txKey struct{}

func txFrom(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

type execQueryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (db *DB) execQueryer(ctx context.Context) execQueryer {
	if tx := txFrom(ctx); tx != nil {
		return tx
	}
	return db.Pool
}
