package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/linebroker/internal/domain/idempotency"
)

const (
	// IdempotencyKeyHeader carries the client supplied idempotency key
	IdempotencyKeyHeader = "Idempotency-Key"

	// IdempotentReplayHeader marks a response served from the store
	IdempotentReplayHeader = "Idempotent-Replayed"

	maxIdempotencyKeyLength = 255
)

// Idempotency makes mutating requests safe to repeat. The first request with
// a key is executed and its response stored; a repeat with the same body gets
// the stored response, a repeat with a different body or one arriving while
// the first is still running gets 409. Server errors release the key so the
// client can retry. Requests without the header pass through.
func Idempotency(logger *slog.Logger, store idempotency.Store, ttl, inProgressTTL time.Duration) gin.HandlerFunc {
	logger = logger.With("component", "idempotency")

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			abortWithCode(c, http.StatusBadRequest, "BAD_REQUEST", "Idempotency-Key is too long")
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			abortWithCode(c, http.StatusBadRequest, "BAD_REQUEST", "Unreadable request body")
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		scoped := GetUserID(c) + ":" + key
		hash := requestHash(c.Request.Method, c.Request.URL.Path, body)

		existing, reserved, err := store.Reserve(c.Request.Context(), scoped, hash, inProgressTTL)
		if err != nil {
			logger.Error("Failed to reserve idempotency key", "key", key, "error", err)
			c.Header("Retry-After", "1")
			abortWithCode(c, http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE", "Idempotency store unavailable")
			return
		}
		if !reserved {
			replay(c, existing, hash)
			return
		}

		recorder := &responseRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		ctx := context.WithoutCancel(c.Request.Context())
		status := recorder.Status()
		if status >= http.StatusInternalServerError {
			if err := store.Release(ctx, scoped); err != nil {
				logger.Error("Failed to release idempotency key", "key", key, "error", err)
			}
			return
		}

		record := &idempotency.Record{
			RequestHash: hash,
			State:       idempotency.StateCompleted,
			StatusCode:  status,
			Body:        recorder.body.Bytes(),
		}
		if err := store.Complete(ctx, scoped, record, ttl); err != nil {
			logger.Error("Failed to store idempotent response", "key", key, "error", err)
		}
	}
}

func replay(c *gin.Context, existing *idempotency.Record, hash string) {
	switch {
	case existing.RequestHash != hash:
		abortWithCode(c, http.StatusConflict, "IDEMPOTENCY_CONFLICT", "Idempotency-Key was used with a different request")
	case existing.State != idempotency.StateCompleted:
		abortWithCode(c, http.StatusConflict, "IDEMPOTENCY_CONFLICT", "A request with this Idempotency-Key is still in progress")
	default:
		c.Header(IdempotentReplayHeader, "true")
		c.Data(existing.StatusCode, "application/json; charset=utf-8", existing.Body)
		c.Abort()
	}
}

func requestHash(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// responseRecorder tees the response body so it can be stored
type responseRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *responseRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *responseRecorder) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

func abortWithCode(c *gin.Context, status int, code, message string) {
	response := gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	}
	if correlationID := GetCorrelationID(c); correlationID != "" {
		response["correlation_id"] = correlationID
	}
	c.AbortWithStatusJSON(status, response)
}
