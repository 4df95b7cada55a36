package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/linebroker/internal/api_gateway/middleware"
	"github.com/linebroker/internal/api_gateway/service"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/engine/orchestrator"
)

// RentalHandler handles HTTP requests for line rentals
type RentalHandler struct {
	transactionService service.TransactionService
	logger             *slog.Logger
}

// NewRentalHandler creates a new rental handler
func NewRentalHandler(logger *slog.Logger, transactionService service.TransactionService) *RentalHandler {
	return &RentalHandler{
		transactionService: transactionService,
		logger:             logger,
	}
}

func (h *RentalHandler) Create(c *gin.Context) {
	var req CreateRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	t, err := h.transactionService.CreateRental(c.Request.Context(), orchestrator.CreateRental{
		UserID:     middleware.GetUserID(c),
		ServiceID:  req.ServiceID,
		Capability: shared.Capability(req.Capability),
		Plan:       middleware.GetPlan(c),
		AreaCode:   req.AreaCode,
		Carrier:    req.Carrier,
		Addons:     req.Addons,
		Days:       req.Days,
	})
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}

	RespondCreated(c, mapTransactionToResponse(t))
}

func (h *RentalHandler) Extend(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req ExtendRentalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	t, err := h.transactionService.ExtendRental(c.Request.Context(), orchestrator.ExtendRental{
		UserID:        middleware.GetUserID(c),
		TransactionID: id,
		Days:          req.Days,
	})
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}

	RespondOK(c, mapTransactionToResponse(t))
}

// Release ends a rental early and reports the prorated refund
func (h *RentalHandler) Release(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	release, err := h.transactionService.ReleaseRental(c.Request.Context(), middleware.GetUserID(c), id)
	if err != nil {
		RespondWithServiceError(c, err)
		return
	}

	RespondOK(c, ReleaseResponse{
		Transaction: mapTransactionToResponse(release.Transaction),
		Refunded:    release.Refunded,
	})
}
