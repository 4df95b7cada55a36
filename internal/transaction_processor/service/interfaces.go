package service

import (
	"context"

	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/engine/wallet"
)

// ProcessingService applies settlement events taken off the queue
type ProcessingService interface {
	ProcessSettlement(ctx context.Context, event *payment.SettlementEvent) error
}

// SettlementValidator rejects events that can never be applied
type SettlementValidator interface {
	Validate(ctx context.Context, event *payment.SettlementEvent) error
}

// Settler credits the wallet for a settlement
type Settler interface {
	Settle(ctx context.Context, event payment.SettlementEvent) (*wallet.Settlement, error)
}

// FailureRecorder keeps rejected settlements for operators
type FailureRecorder interface {
	RecordFailure(ctx context.Context, event *payment.SettlementEvent, failureReason string) error
}
