package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Transactor runs fn inside one transaction carried by ctx. Repositories
// pick it up through execQueryer, so a notification row and its delivery
// tasks commit or roll back together.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

var _ Transactor = (*PgTransactor)(nil)

type PgTransactor struct {
	db   *DB
	opts pgx.TxOptions
	log  *zap.Logger
}

func NewTransactor(db *DB, log *zap.Logger) *PgTransactor {
	if log == nil {
		log = zap.NewNop()
	}
	return &PgTransactor{
		db:   db,
		opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted},
		log:  log.With(zap.String("component", "postgres.tx")),
	}
}

// WithTx joins the transaction already in ctx, if any. Otherwise it begins
// one, commits when fn returns nil and rolls back on error or panic.
func (t *PgTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	err := pgx.BeginTxFunc(ctx, t.db.Pool, t.opts, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
	if err != nil {
		t.log.Debug("transaction rolled back", zap.Error(err))
		return fmt.Errorf("tx: %w", err)
	}
	return nil
}

type txKey struct{}

func txFrom(ctx context.Context) (pgx.Tx, bool) {
	tx, ok := ctx.Value(txKey{}).(pgx.Tx)
	return tx, ok && tx != nil
}

type execQueryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (db *DB) execQueryer(ctx context.Context) execQueryer {
	if tx, ok := txFrom(ctx); ok {
		return tx
	}
	return db.Pool
}
