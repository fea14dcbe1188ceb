// Package memory is a process-local storage adapter. It keeps the
// transactional contract of the postgres adapter: one writer at a time,
// writes staged until Commit and discarded on Rollback.
package memory

import (
	"context"
	"errors"
	"sync"

	"marketplace-wallet/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Store holds the committed state and serializes writers.
type Store struct {
	sem chan struct{}

	mu    sync.RWMutex
	state *state
}

type state struct {
	wallets        map[string]domain.Wallet
	entries        map[uuid.UUID]domain.LedgerEntry
	entryOrder     []uuid.UUID
	cancelRequests map[uuid.UUID]domain.CancelRequest
	releaseTasks   map[uuid.UUID]domain.ReleaseTask
	audits         []domain.AuditLog
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		sem: make(chan struct{}, 1),
		state: &state{
			wallets:        make(map[string]domain.Wallet),
			entries:        make(map[uuid.UUID]domain.LedgerEntry),
			cancelRequests: make(map[uuid.UUID]domain.CancelRequest),
			releaseTasks:   make(map[uuid.UUID]domain.ReleaseTask),
		},
	}
}

// Tx is a staged copy of the store. It satisfies pgx.Tx so services can use
// either adapter; only Commit and Rollback are implemented.
type Tx struct {
	pgx.Tx

	store *Store
	state *state
	done  bool
}

// Begin waits for the writer slot, honoring ctx, and snapshots the state.
func (s *Store) Begin(ctx context.Context) (pgx.Tx, error) {
	return s.begin(ctx)
}

func (s *Store) begin(ctx context.Context) (*Tx, error) {
	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &Tx{store: s, state: s.committed().clone()}, nil
}

// Commit publishes the staged state.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	defer t.release()

	if err := ctx.Err(); err != nil {
		return err
	}
	t.store.mu.Lock()
	t.store.state = t.state
	t.store.mu.Unlock()
	return nil
}

// Rollback discards the staged state.
func (t *Tx) Rollback(ctx context.Context) error {
	if t.done {
		return pgx.ErrTxClosed
	}
	t.done = true
	t.release()
	return nil
}

func (t *Tx) release() {
	<-t.store.sem
}

// Ping implements ports.HealthChecker.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Name returns the dependency name.
func (s *Store) Name() string {
	return "memory"
}

func (s *Store) committed() *state {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// read returns the state visible to tx: the staged copy inside a
// transaction, the committed state otherwise.
func (s *Store) read(ctx context.Context, tx pgx.Tx) (*state, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx == nil {
		return s.committed(), nil
	}
	mt, err := s.own(tx)
	if err != nil {
		return nil, err
	}
	return mt.state, nil
}

// write returns the staged state of tx for mutation.
func (s *Store) write(ctx context.Context, tx pgx.Tx) (*state, error) {
	if tx == nil {
		return nil, errors.New("memory: write outside transaction")
	}
	return s.read(ctx, tx)
}

// autocommit runs fn in its own transaction, for repository methods that
// write without a caller transaction.
func (s *Store) autocommit(ctx context.Context, fn func(st *state) error) error {
	tx, err := s.begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(tx.state); err != nil {
		tx.Rollback(ctx) //nolint:errcheck
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) own(tx pgx.Tx) (*Tx, error) {
	mt, ok := tx.(*Tx)
	if !ok || mt.store != s {
		return nil, errors.New("memory: foreign transaction")
	}
	if mt.done {
		return nil, pgx.ErrTxClosed
	}
	return mt, nil
}

func (st *state) clone() *state {
	cp := &state{
		wallets:        make(map[string]domain.Wallet, len(st.wallets)),
		entries:        make(map[uuid.UUID]domain.LedgerEntry, len(st.entries)),
		entryOrder:     append([]uuid.UUID(nil), st.entryOrder...),
		cancelRequests: make(map[uuid.UUID]domain.CancelRequest, len(st.cancelRequests)),
		releaseTasks:   make(map[uuid.UUID]domain.ReleaseTask, len(st.releaseTasks)),
		audits:         append([]domain.AuditLog(nil), st.audits...),
	}
	for k, v := range st.wallets {
		cp.wallets[k] = v
	}
	for k, v := range st.entries {
		cp.entries[k] = v
	}
	for k, v := range st.cancelRequests {
		cp.cancelRequests[k] = v
	}
	for k, v := range st.releaseTasks {
		cp.releaseTasks[k] = v
	}
	return cp
}
