package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/domain/transaction"
)

func TestRespondWithServiceError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"Validation", shared.NewValidationError("days", "is required"), http.StatusBadRequest, CodeValidation},
		{"InsufficientFunds", &shared.InsufficientFundsError{UserID: "u", Balance: 1, Required: 2}, http.StatusPaymentRequired, CodeInsufficientFunds},
		{"NotFound", transaction.ErrTransactionNotFound{ID: uuid.New()}, http.StatusNotFound, CodeNotFound},
		{"InvalidState", &shared.InvalidStateError{Entity: "rental", State: "expired", Operation: "extend"}, http.StatusConflict, CodeInvalidState},
		{"IdempotencyConflict", fmt.Errorf("key reuse: %w", shared.ErrIdempotencyConflict), http.StatusConflict, CodeIdempotencyConflict},
		{"ConcurrentModification", transaction.ErrConcurrentModification{ID: uuid.New()}, http.StatusConflict, CodeConcurrentUpdate},
		{"RemoteRejected", &shared.RemoteRejectedError{Dependency: "verification_provider", Reason: shared.ReasonInvalidRequest}, http.StatusUnprocessableEntity, CodeRemoteRejected},
		{"DependencyUnavailable", &shared.DependencyUnavailableError{Dependency: "payment_gateway", RetryAfter: 30 * time.Second}, http.StatusServiceUnavailable, CodeDependencyUnavailable},
		{"Transient", fmt.Errorf("failed to acquire line: %w", &shared.TransientError{Dependency: "verification_provider"}), http.StatusBadGateway, CodeTransientProvider},
		{"Unknown", errors.New("pq: something odd"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rr)

			RespondWithServiceError(c, tc.err)

			assert.Equal(t, tc.status, rr.Code)
			var response Response
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
			require.NotNil(t, response.Error)
			assert.Equal(t, tc.code, response.Error.Code)
			assert.NotEmpty(t, response.Error.Message)
		})
	}

	t.Run("RetryAfterHeader", func(t *testing.T) {
		rr := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rr)

		RespondWithServiceError(c, &shared.DependencyUnavailableError{Dependency: "payment_gateway", RetryAfter: 30 * time.Second})

		assert.Equal(t, "30", rr.Header().Get("Retry-After"))
	})

	t.Run("RemoteRejectedMessage", func(t *testing.T) {
		rejected := &shared.RemoteRejectedError{Dependency: "verification_provider", Reason: shared.ReasonNoCapacity}
		rr := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rr)

		RespondWithServiceError(c, rejected)

		var response Response
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		require.NotNil(t, response.Error)
		assert.Equal(t, rejected.Error(), response.Error.Message)
		assert.Equal(t, shared.ReasonNoCapacity, response.Error.Reason)

		rejected.Message = "no lines for whatsapp"
		rr = httptest.NewRecorder()
		c, _ = gin.CreateTestContext(rr)

		RespondWithServiceError(c, rejected)

		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &response))
		assert.Equal(t, "no lines for whatsapp", response.Error.Message)
	})
}

func TestErrorCodes(t *testing.T) {
	assert.Equal(t, "BAD_REQUEST", CodeBadRequest)
	assert.Equal(t, "NOT_FOUND", CodeNotFound)
	assert.Equal(t, "UNAUTHORIZED", CodeUnauthorized)
	assert.Equal(t, "INTERNAL_SERVER_ERROR", CodeInternal)
}
