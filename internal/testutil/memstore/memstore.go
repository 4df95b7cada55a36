// Package memstore holds in-memory repositories for engine tests. ExecuteTx
// serializes transactions and rolls every change back when fn fails, which is
// the part of Postgres behaviour the engine depends on.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/linebroker/internal/domain/ledger"
	"github.com/linebroker/internal/domain/outbox"
	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
)

// Store is the shared state behind every repository of one test
type Store struct {
	txMu sync.Mutex // held for a whole ExecuteTx
	mu   sync.Mutex // guards the maps below

	entries []ledger.Entry
	txs     map[uuid.UUID]transaction.Transaction
	outbox  []outbox.Message
	charges map[string]payment.Charge

	// FailCommit makes the next ExecuteTx fail after fn succeeded
	FailCommit error
}

// New creates an empty store
func New() *Store {
	return &Store{
		txs:     make(map[uuid.UUID]transaction.Transaction),
		charges: make(map[string]payment.Charge),
	}
}

type snapshot struct {
	entries []ledger.Entry
	txs     map[uuid.UUID]transaction.Transaction
	outbox  []outbox.Message
	charges map[string]payment.Charge
}

func (s *Store) snapshot() snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := snapshot{
		entries: append([]ledger.Entry(nil), s.entries...),
		outbox:  append([]outbox.Message(nil), s.outbox...),
		txs:     make(map[uuid.UUID]transaction.Transaction, len(s.txs)),
		charges: make(map[string]payment.Charge, len(s.charges)),
	}
	for k, v := range s.txs {
		snap.txs[k] = v
	}
	for k, v := range s.charges {
		snap.charges[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries, s.txs, s.outbox, s.charges = snap.entries, snap.txs, snap.outbox, snap.charges
}

// ExecuteTx implements persistence.TxRunner
func (s *Store) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()
	if err := fn(nil); err != nil {
		s.restore(snap)
		return err
	}
	if s.FailCommit != nil {
		err := s.FailCommit
		s.FailCommit = nil
		s.restore(snap)
		return err
	}
	return nil
}

// Entries returns a copy of every ledger entry in insertion order
func (s *Store) Entries() []ledger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.Entry(nil), s.entries...)
}

// Transactions returns a copy of every stored transaction
func (s *Store) Transactions() []transaction.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]transaction.Transaction, 0, len(s.txs))
	for _, t := range s.txs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Outbox returns a copy of every outbox message
func (s *Store) Outbox() []outbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Message(nil), s.outbox...)
}

// Ledger returns a ledger.Repository over the store
func (s *Store) Ledger() ledger.Repository { return &ledgerRepo{s: s} }

// TransactionRepo returns a transaction.Repository over the store
func (s *Store) TransactionRepo() transaction.Repository { return &txRepo{s: s} }

// OutboxRepo returns an outbox.Repository over the store
func (s *Store) OutboxRepo() outbox.Repository { return &outboxRepo{s: s} }

// Charges returns a payment.Repository over the store
func (s *Store) Charges() payment.Repository { return &chargeRepo{s: s} }

type ledgerRepo struct{ s *Store }

func (r *ledgerRepo) WithTx(pgx.Tx) ledger.Repository { return r }

func (r *ledgerRepo) LockUser(context.Context, string) error { return nil }

func (r *ledgerRepo) Insert(_ context.Context, e *ledger.Entry) (*ledger.Entry, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.entries {
		if existing.Kind == e.Kind && existing.Reference == e.Reference {
			out := existing
			return &out, false, nil
		}
	}
	r.s.entries = append(r.s.entries, *e)
	out := *e
	return &out, true, nil
}

func (r *ledgerRepo) FindByReference(_ context.Context, kind ledger.EntryKind, reference string) (*ledger.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.entries {
		if existing.Kind == kind && existing.Reference == reference {
			out := existing
			return &out, nil
		}
	}
	return nil, ledger.ErrEntryNotFound{Kind: kind, Reference: reference}
}

func (r *ledgerRepo) Balance(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var sum int64
	for _, e := range r.s.entries {
		if e.UserID == userID {
			sum += e.Amount
		}
	}
	return sum, nil
}

func (r *ledgerRepo) ListByUser(_ context.Context, userID string, limit, offset int) ([]*ledger.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var mine []*ledger.Entry
	for i := len(r.s.entries) - 1; i >= 0; i-- {
		if r.s.entries[i].UserID == userID {
			e := r.s.entries[i]
			mine = append(mine, &e)
		}
	}
	if offset >= len(mine) {
		return []*ledger.Entry{}, nil
	}
	mine = mine[offset:]
	if len(mine) > limit {
		mine = mine[:limit]
	}
	return mine, nil
}

func (r *ledgerRepo) CountByUser(_ context.Context, userID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, e := range r.s.entries {
		if e.UserID == userID {
			n++
		}
	}
	return n, nil
}

type txRepo struct{ s *Store }

func (r *txRepo) WithTx(pgx.Tx) transaction.Repository { return r }

func (r *txRepo) Create(_ context.Context, t *transaction.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.RetryOf != nil {
		for _, existing := range r.s.txs {
			if existing.RetryOf != nil && *existing.RetryOf == *t.RetryOf && existing.Status != transaction.StatusFailed {
				return shared.NewValidationError("retry_of", "duplicate key value violates unique constraint")
			}
		}
	}
	r.s.txs[t.ID] = *t
	return nil
}

func (r *txRepo) GetByID(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.txs[id]
	if !ok {
		return nil, transaction.ErrTransactionNotFound{ID: id}
	}
	return &t, nil
}

func (r *txRepo) GetByRetryOf(_ context.Context, id uuid.UUID) (*transaction.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.txs {
		if t.RetryOf != nil && *t.RetryOf == id && t.Status != transaction.StatusFailed {
			out := t
			return &out, nil
		}
	}
	return nil, nil
}

func (r *txRepo) Update(_ context.Context, t *transaction.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.txs[t.ID]
	if !ok || stored.Version != t.Version {
		return transaction.ErrConcurrentModification{ID: t.ID}
	}
	t.Version++
	r.s.txs[t.ID] = *t
	return nil
}

func (r *txRepo) CountCompleted(_ context.Context, userID string, since time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, t := range r.s.txs {
		if t.UserID == userID && t.Kind == transaction.KindVerification && t.Status == transaction.StatusCompleted &&
			t.CompletedAt != nil && !t.CompletedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *txRepo) ListDue(_ context.Context, kind transaction.Kind, status transaction.Status, now time.Time, limit int) ([]*transaction.Transaction, error) {
	return r.filter(limit, func(t transaction.Transaction) bool {
		return t.Kind == kind && t.Status == status && t.ExpiresAt != nil && !t.ExpiresAt.After(now)
	}), nil
}

func (r *txRepo) ListStale(_ context.Context, status transaction.Status, cutoff time.Time, limit int) ([]*transaction.Transaction, error) {
	return r.filter(limit, func(t transaction.Transaction) bool {
		return t.Status == status && t.UpdatedAt.Before(cutoff)
	}), nil
}

func (r *txRepo) filter(limit int, keep func(transaction.Transaction) bool) []*transaction.Transaction {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*transaction.Transaction
	for _, t := range r.s.txs {
		if keep(t) {
			c := t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

type outboxRepo struct{ s *Store }

func (r *outboxRepo) WithTx(pgx.Tx) outbox.Repository { return r }

func (r *outboxRepo) Create(_ context.Context, m *outbox.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m.ID = int64(len(r.s.outbox) + 1)
	r.s.outbox = append(r.s.outbox, *m)
	return nil
}

func (r *outboxRepo) ClaimPending(_ context.Context, limit int) ([]*outbox.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*outbox.Message
	for _, m := range r.s.outbox {
		if m.Status == shared.OutboxStatusPending && len(out) < limit {
			c := m
			out = append(out, &c)
		}
	}
	return out, nil
}

func (r *outboxRepo) UpdateStatus(_ context.Context, id int64, status shared.OutboxStatus) error {
	return r.update(id, func(m *outbox.Message) { m.Status = status })
}

func (r *outboxRepo) IncrementAttempts(_ context.Context, id int64) error {
	return r.update(id, func(m *outbox.Message) { m.Attempts++ })
}

func (r *outboxRepo) update(id int64, fn func(*outbox.Message)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.outbox {
		if r.s.outbox[i].ID == id {
			fn(&r.s.outbox[i])
			return nil
		}
	}
	return outbox.ErrMessageNotFound{ID: id}
}

type chargeRepo struct{ s *Store }

func (r *chargeRepo) WithTx(pgx.Tx) payment.Repository { return r }

func (r *chargeRepo) Create(_ context.Context, c *payment.Charge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.charges[c.Reference] = *c
	return nil
}

func (r *chargeRepo) GetByReference(_ context.Context, reference string) (*payment.Charge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.charges[reference]
	if !ok {
		return nil, payment.ErrChargeNotFound{Reference: reference}
	}
	return &c, nil
}

func (r *chargeRepo) LockForUpdate(ctx context.Context, reference string) (*payment.Charge, error) {
	return r.GetByReference(ctx, reference)
}

func (r *chargeRepo) UpdateStatus(_ context.Context, reference string, status payment.ChargeStatus, redirectURL string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.charges[reference]
	if !ok {
		return payment.ErrChargeNotFound{Reference: reference}
	}
	c.Status = status
	if redirectURL != "" {
		c.RedirectURL = redirectURL
	}
	now := time.Now().UTC()
	c.UpdatedAt = now
	if status == payment.ChargeSettled {
		c.SettledAt = &now
	}
	r.s.charges[reference] = c
	return nil
}
