// Package sqlxrepos implements the core repositories on PostgreSQL with sqlx.
package sqlxrepos

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/boil"

	"github.com/trezcool/kazi/core"
)

const uniqueViolation = "23505"

type txKey struct{}

// executor is satisfied by both *sqlx.DB and *sqlx.Tx.
type executor interface {
	sqlx.ExtContext
	boil.ContextExecutor
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// base gives every repository the pool, or the transaction carried by ctx.
type base struct {
	db *sqlx.DB
}

func (b base) exec(ctx context.Context) executor {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return b.db
}

type txRunner struct {
	db *sqlx.DB
}

var _ core.TxRunner = (*txRunner)(nil) // interface compliance check

func NewTxRunner(db *sqlx.DB) core.TxRunner {
	return &txRunner{db: db}
}

// RunInTx joins the transaction already carried by ctx, if any.
func (r *txRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = errors.Wrap(tx.Commit(), "committing transaction")
	}()

	return fn(context.WithValue(ctx, txKey{}, tx))
}

// trapNoRowsErr maps "no rows" to notFound and wraps anything else.
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// uniqueConstraint returns the name of the constraint err violated, if err is a unique violation.
func uniqueConstraint(err error) (string, bool) {
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok && pqErr.Code == uniqueViolation {
		return pqErr.Constraint, true
	}
	return "", false
}
