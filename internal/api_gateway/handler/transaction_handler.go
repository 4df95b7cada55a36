package handler

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/linebroker/internal/api_gateway/middleware"
	"github.com/linebroker/internal/api_gateway/service"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
	"github.com/linebroker/internal/engine/orchestrator"
)

// TransactionHandler handles HTTP requests for verification operations
type TransactionHandler struct {
	transactionService service.TransactionService
	logger             *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(logger *slog.Logger, transactionService service.TransactionService) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

// Create debits the quoted price and provisions a verification line
func (h *TransactionHandler) Create(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	t, err := h.transactionService.CreateVerification(c.Request.Context(), orchestrator.CreateVerification{
		UserID:     middleware.GetUserID(c),
		ServiceID:  req.ServiceID,
		Capability: shared.Capability(req.Capability),
		Plan:       middleware.GetPlan(c),
		AreaCode:   req.AreaCode,
		Carrier:    req.Carrier,
		Addons:     req.Addons,
	})
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}

	RespondCreated(c, mapTransactionToResponse(t))
}

// GetByID returns the caller's transaction. With ?wait=<seconds> it holds the
// request until the code arrives, the transaction resolves or the wait ends.
func (h *TransactionHandler) GetByID(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var params StatusParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid wait parameter")
		return
	}

	view, err := h.transactionService.GetStatus(c.Request.Context(), middleware.GetUserID(c), id, time.Duration(params.Wait)*time.Second)
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}

	RespondOK(c, mapViewToResponse(view))
}

// Cancel ends a pending verification and refunds it unless a code arrived
func (h *TransactionHandler) Cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	t, err := h.transactionService.Cancel(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}

	RespondOK(c, mapTransactionToResponse(t))
}

// Retry replaces an expired verification using one of the offered options
func (h *TransactionHandler) Retry(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req RetryTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	t, err := h.transactionService.Retry(c.Request.Context(), orchestrator.RetryCommand{
		UserID:        middleware.GetUserID(c),
		TransactionID: id,
		Option:        transaction.RetryOption(req.Option),
		Plan:          middleware.GetPlan(c),
	})
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}

	RespondCreated(c, mapTransactionToResponse(t))
}

// Quote previews the price of a verification or, with rental_days, a rental
func (h *TransactionHandler) Quote(c *gin.Context) {
	var params QuoteParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}

	quote, err := h.transactionService.Quote(c.Request.Context(), orchestrator.QuoteCommand{
		UserID:     middleware.GetUserID(c),
		ServiceID:  params.ServiceID,
		Capability: shared.Capability(params.Capability),
		Plan:       middleware.GetPlan(c),
		RentalDays: params.RentalDays,
		Addons:     params.Addons,
	})
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}

	RespondOK(c, quote)
}

// parseID reads the :id path parameter, responding 400 when it is not a UUID
func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondBadRequest(c, "Invalid transaction ID")
		return uuid.Nil, false
	}
	return id, true
}
