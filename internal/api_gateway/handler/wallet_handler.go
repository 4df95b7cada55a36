package handler

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/linebroker/internal/api_gateway/middleware"
	"github.com/linebroker/internal/api_gateway/service"
)

const (
	// WebhookSignatureHeader carries the gateway's integrity token
	WebhookSignatureHeader = "X-Webhook-Signature"

	maxWebhookBody = 64 << 10
)

// WalletHandler handles HTTP requests for balances, top-ups and gateway webhooks
type WalletHandler struct {
	walletService service.WalletService
	logger        *slog.Logger
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(logger *slog.Logger, walletService service.WalletService) *WalletHandler {
	return &WalletHandler{
		walletService: walletService,
		logger:        logger,
	}
}

func (h *WalletHandler) Balance(c *gin.Context) {
	balance, err := h.walletService.GetBalance(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}
	RespondOK(c, BalanceResponse{Balance: balance})
}

// Entries retrieves the paginated ledger history of the caller
func (h *WalletHandler) Entries(c *gin.Context) {
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		h.logger.Warn("Invalid pagination parameters", "error", err)
		RespondBadRequest(c, "Invalid pagination parameters")
		return
	}

	page, err := h.walletService.GetEntries(c.Request.Context(), middleware.GetUserID(c), pagination.Page, pagination.PerPage)
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}

	entries := make([]EntryResponse, 0, len(page.Entries))
	for _, entry := range page.Entries {
		entries = append(entries, mapEntryToResponse(entry))
	}

	RespondWithPaginatedData(c, http.StatusOK, entries, pagination.Page, pagination.PerPage, int(page.Total))
}

// InitTopUp creates a pending charge and returns the gateway redirect
func (h *WalletHandler) InitTopUp(c *gin.Context) {
	var req TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	charge, err := h.walletService.InitTopUp(c.Request.Context(), middleware.GetUserID(c), req.Amount)
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}

	RespondCreated(c, mapChargeToResponse(charge))
}

func (h *WalletHandler) GetTopUp(c *gin.Context) {
	charge, err := h.walletService.GetTopUp(c.Request.Context(), middleware.GetUserID(c), c.Param("ref"))
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}
	RespondOK(c, mapChargeToResponse(charge))
}

// VerifyTopUp asks the gateway for the charge state and settles it when paid.
// Used when a webhook never arrived.
func (h *WalletHandler) VerifyTopUp(c *gin.Context) {
	charge, err := h.walletService.VerifyTopUp(c.Request.Context(), middleware.GetUserID(c), c.Param("ref"))
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}
	RespondOK(c, mapChargeToResponse(charge))
}

// Webhook accepts a signed settlement notification from the payment gateway.
// The signature covers the raw body, so the body is read before any decoding.
func (h *WalletHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		RespondBadRequest(c, "Unreadable webhook body")
		return
	}

	event, err := h.walletService.AcceptWebhook(
		c.Request.Context(),
		payload,
		c.GetHeader(WebhookSignatureHeader),
		middleware.GetCorrelationID(c),
	)
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}

	RespondAccepted(c, gin.H{
		"charge_ref": event.ChargeRef,
		"status":     event.Status,
	})
}
