package handler

import (
	"time"

	"github.com/linebroker/internal/domain/ledger"
	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/engine/orchestrator"
)

// CreateTransactionRequest represents a request to start a verification
type CreateTransactionRequest struct {
	ServiceID  string   `json:"service_id" binding:"required,max=64"`
	Capability string   `json:"capability" binding:"required,oneof=sms voice"`
	AreaCode   string   `json:"area_code" binding:"omitempty,numeric,max=8"`
	Carrier    string   `json:"carrier" binding:"omitempty,max=64"`
	Addons     []string `json:"addons" binding:"max=3,dive,required"`
}

// RetryTransactionRequest picks one of the offered retry options
type RetryTransactionRequest struct {
	Option string `json:"option" binding:"required,oneof=reuse_same_line new_line upgrade_to_voice"`
}

// CreateRentalRequest represents a request to rent a line for a number of days
type CreateRentalRequest struct {
	ServiceID  string   `json:"service_id" binding:"required,max=64"`
	Capability string   `json:"capability" binding:"required,oneof=sms voice"`
	AreaCode   string   `json:"area_code" binding:"omitempty,numeric,max=8"`
	Carrier    string   `json:"carrier" binding:"omitempty,max=64"`
	Addons     []string `json:"addons" binding:"max=3,dive,required"`
	Days       int      `json:"days" binding:"required,min=1,max=90"`
}

// ExtendRentalRequest adds days to an active rental
type ExtendRentalRequest struct {
	Days int `json:"days" binding:"required,min=1,max=90"`
}

// TopUpRequest starts a wallet top-up
type TopUpRequest struct {
	Amount int64 `json:"amount" binding:"required,gt=0"`
}

// QuoteParams are the query parameters of the pricing preview
type QuoteParams struct {
	ServiceID  string   `form:"service_id" binding:"required,max=64"`
	Capability string   `form:"capability" binding:"required,oneof=sms voice"`
	RentalDays int      `form:"rental_days" binding:"min=0,max=90"`
	Addons     []string `form:"addons" binding:"max=3"`
}

// StatusParams controls long-polling of a verification
type StatusParams struct {
	Wait int `form:"wait" binding:"min=0,max=120"`
}

// TransactionResponse represents a verification or rental in API responses
type TransactionResponse struct {
	ID            string   `json:"id"`
	Kind          string   `json:"kind"`
	Status        string   `json:"status"`
	ServiceID     string   `json:"service_id"`
	Capability    string   `json:"capability"`
	PhoneNumber   string   `json:"phone_number,omitempty"`
	Code          string   `json:"code,omitempty"`
	CostCharged   int64    `json:"cost_charged"`
	RentalDays    int      `json:"rental_days,omitempty"`
	FailureReason string   `json:"failure_reason,omitempty"`
	RetryOf       string   `json:"retry_of,omitempty"`
	Addons        []string `json:"addons,omitempty"`
	CreatedAt     string   `json:"created_at"`
	ExpiresAt     string   `json:"expires_at,omitempty"`
}

// StatusResponse is a transaction plus, once expired, the retry offer
type StatusResponse struct {
	Transaction TransactionResponse        `json:"transaction"`
	Retry       *transaction.RetryDecision `json:"retry,omitempty"`
}

// ReleaseResponse is the outcome of an early rental release
type ReleaseResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	Refunded    int64               `json:"refunded"`
}

// BalanceResponse is the current wallet balance
type BalanceResponse struct {
	Balance int64 `json:"balance"`
}

// EntryResponse represents a ledger entry in API responses
type EntryResponse struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Kind      string `json:"kind"`
	Reference string `json:"reference"`
	CreatedAt string `json:"created_at"`
}

// TopUpResponse represents a wallet top-up charge
type TopUpResponse struct {
	Reference   string `json:"reference"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url,omitempty"`
	CreatedAt   string `json:"created_at"`
	SettledAt   string `json:"settled_at,omitempty"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

func mapTransactionToResponse(t *transaction.Transaction) TransactionResponse {
	response := TransactionResponse{
		ID:            t.ID.String(),
		Kind:          string(t.Kind),
		Status:        string(t.Status),
		ServiceID:     t.ServiceID,
		Capability:    string(t.Capability),
		PhoneNumber:   t.PhoneNumber,
		Code:          t.Code,
		CostCharged:   t.CostCharged,
		RentalDays:    t.RentalDays,
		FailureReason: t.FailureReason,
		Addons:        t.Addons,
		CreatedAt:     t.CreatedAt.Format(time.RFC3339),
	}
	if t.RetryOf != nil {
		response.RetryOf = t.RetryOf.String()
	}
	if t.ExpiresAt != nil {
		response.ExpiresAt = t.ExpiresAt.Format(time.RFC3339)
	}
	return response
}

func mapViewToResponse(view *orchestrator.View) StatusResponse {
	return StatusResponse{
		Transaction: mapTransactionToResponse(view.Transaction),
		Retry:       view.Decision,
	}
}

func mapChargeToResponse(charge *payment.Charge) TopUpResponse {
	response := TopUpResponse{
		Reference:   charge.Reference,
		Amount:      charge.Amount,
		Currency:    charge.Currency,
		Status:      string(charge.Status),
		RedirectURL: charge.RedirectURL,
		CreatedAt:   charge.CreatedAt.Format(time.RFC3339),
	}
	if charge.SettledAt != nil {
		response.SettledAt = charge.SettledAt.Format(time.RFC3339)
	}
	return response
}

func mapEntryToResponse(entry *ledger.Entry) EntryResponse {
	return EntryResponse{
		ID:        entry.ID.String(),
		Amount:    entry.Amount,
		Kind:      string(entry.Kind),
		Reference: entry.Reference,
		CreatedAt: entry.CreatedAt.Format(time.RFC3339),
	}
}
