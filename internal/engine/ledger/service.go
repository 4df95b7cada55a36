// Package ledger is the single writer of wallet balances. Every mutation is an
// append-only entry; the balance is always the sum of a user's entries.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	domain "github.com/linebroker/internal/domain/ledger"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/platform/metrics"
	"github.com/linebroker/internal/platform/persistence"
)

// MaxPageSize bounds History pages
const MaxPageSize = 100

// Service is the ledger contract. The Tx variants join a transaction owned by
// the caller so the entry commits together with the caller's own writes.
type Service interface {
	Debit(ctx context.Context, userID string, amount int64, reference string) (*domain.Entry, error)
	Credit(ctx context.Context, userID string, amount int64, reference string) (*domain.Entry, error)
	Refund(ctx context.Context, userID string, amount int64, reference string) (*domain.Entry, error)

	DebitTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, reference string) (*domain.Entry, error)
	CreditTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, reference string) (*domain.Entry, error)
	RefundTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, reference string) (*domain.Entry, error)

	Balance(ctx context.Context, userID string) (int64, error)
	History(ctx context.Context, userID string, limit, offset int) (*HistoryPage, error)
}

// HistoryPage is one page of a user's entries, newest first
type HistoryPage struct {
	Entries []*domain.Entry `json:"entries"`
	Total   int64           `json:"total"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

type service struct {
	db     persistence.TxRunner
	repo   domain.Repository
	logger *slog.Logger
}

// NewService creates the ledger service
func NewService(logger *slog.Logger, db persistence.TxRunner, repo domain.Repository) Service {
	return &service{
		db:     db,
		repo:   repo,
		logger: logger.With("component", "ledger"),
	}
}

func (s *service) Debit(ctx context.Context, userID string, amount int64, reference string) (*domain.Entry, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*domain.Entry, error) {
		return s.DebitTx(ctx, tx, userID, amount, reference)
	})
}

func (s *service) Credit(ctx context.Context, userID string, amount int64, reference string) (*domain.Entry, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*domain.Entry, error) {
		return s.CreditTx(ctx, tx, userID, amount, reference)
	})
}

func (s *service) Refund(ctx context.Context, userID string, amount int64, reference string) (*domain.Entry, error) {
	return s.inTx(ctx, func(tx pgx.Tx) (*domain.Entry, error) {
		return s.RefundTx(ctx, tx, userID, amount, reference)
	})
}

// DebitTx removes amount from the user's balance. A debit already recorded
// under reference is returned as is; otherwise the balance must cover amount.
func (s *service) DebitTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, reference string) (*domain.Entry, error) {
	if err := validate(userID, amount, reference); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)
	if err := repo.LockUser(ctx, userID); err != nil {
		return nil, err
	}

	existing, err := repo.FindByReference(ctx, domain.KindDebit, reference)
	if err == nil {
		s.logger.Info("Debit already recorded", "user_id", userID, "reference", reference)
		return existing, nil
	}
	if !errors.Is(err, domain.ErrEntryNotFound{}) {
		return nil, err
	}

	balance, err := repo.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < amount {
		s.logger.Warn("Insufficient funds", "user_id", userID, "balance", balance, "required", amount, "reference", reference)
		return nil, &shared.InsufficientFundsError{UserID: userID, Balance: balance, Required: amount}
	}

	return s.insert(ctx, repo, domain.NewEntry(userID, amount, domain.KindDebit, reference))
}

func (s *service) CreditTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, reference string) (*domain.Entry, error) {
	return s.appendTx(ctx, tx, userID, amount, domain.KindCredit, reference)
}

func (s *service) RefundTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, reference string) (*domain.Entry, error) {
	return s.appendTx(ctx, tx, userID, amount, domain.KindRefund, reference)
}

// appendTx writes a positive entry. Credits and refunds cannot overdraw, so
// only the (kind, reference) uniqueness matters.
func (s *service) appendTx(ctx context.Context, tx pgx.Tx, userID string, amount int64, kind domain.EntryKind, reference string) (*domain.Entry, error) {
	if err := validate(userID, amount, reference); err != nil {
		return nil, err
	}
	repo := s.repo.WithTx(tx)
	if err := repo.LockUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.insert(ctx, repo, domain.NewEntry(userID, amount, kind, reference))
}

func (s *service) insert(ctx context.Context, repo domain.Repository, entry *domain.Entry) (*domain.Entry, error) {
	stored, inserted, err := repo.Insert(ctx, entry)
	if err != nil {
		return nil, err
	}
	if !inserted {
		if stored.UserID != entry.UserID {
			return nil, shared.NewValidationError("reference", fmt.Sprintf("%s already used by another user", entry.Reference))
		}
		s.logger.Info("Ledger entry already recorded", "kind", string(entry.Kind), "reference", entry.Reference)
		return stored, nil
	}
	metrics.LedgerEntriesTotal.WithLabelValues(string(stored.Kind)).Inc()
	s.logger.Info("Ledger entry recorded",
		"user_id", stored.UserID,
		"kind", string(stored.Kind),
		"amount", stored.Amount,
		"reference", stored.Reference,
	)
	return stored, nil
}

func (s *service) Balance(ctx context.Context, userID string) (int64, error) {
	if userID == "" {
		return 0, shared.NewValidationError("user_id", "must not be empty")
	}
	return s.repo.Balance(ctx, userID)
}

func (s *service) History(ctx context.Context, userID string, limit, offset int) (*HistoryPage, error) {
	if userID == "" {
		return nil, shared.NewValidationError("user_id", "must not be empty")
	}
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		return nil, shared.NewValidationError("offset", "must not be negative")
	}

	entries, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &HistoryPage{Entries: entries, Total: total, Limit: limit, Offset: offset}, nil
}

func (s *service) inTx(ctx context.Context, fn func(tx pgx.Tx) (*domain.Entry, error)) (*domain.Entry, error) {
	var entry *domain.Entry
	err := s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		entry, err = fn(tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func validate(userID string, amount int64, reference string) error {
	if userID == "" {
		return shared.NewValidationError("user_id", "must not be empty")
	}
	if amount <= 0 {
		return shared.NewValidationError("amount", "must be positive")
	}
	if reference == "" {
		return shared.NewValidationError("reference", "must not be empty")
	}
	return nil
}
