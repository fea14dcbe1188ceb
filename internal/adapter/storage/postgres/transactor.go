package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
)

// Transactor opens the transactions every balance mutation runs in. Read
// committed is enough: wallet rows are serialized by SELECT ... FOR UPDATE
// and pending legs are consumed under that lock.
type Transactor struct {
	pool Pool
	opts pgx.TxOptions
}

// NewTransactor returns a Transactor over pool.
func NewTransactor(pool Pool) *Transactor {
	return &Transactor{pool: pool, opts: pgx.TxOptions{IsoLevel: pgx.ReadCommitted}}
}

// Begin implements ports.DBTransactor.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return t.pool.BeginTx(ctx, t.opts)
}
