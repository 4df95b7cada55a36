// Package gateway is the client for the external payment gateway.
package gateway

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/domain/payment"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/platform/remote"
	"github.com/linebroker/internal/platform/resilience"
)

// Dependency is the breaker and metrics name of the gateway
const Dependency = "payment_gateway"

// ChargeRequest initializes a top-up charge
type ChargeRequest struct {
	Reference string // local charge reference, also the idempotency key
	UserRef   string
	Amount    int64
	Currency  string
}

// ChargeInit is the gateway's answer to a new charge
type ChargeInit struct {
	Reference   string `json:"reference"`
	RedirectURL string `json:"redirect_url"`
}

// ChargeState is the verified state of a charge
type ChargeState struct {
	Reference string               `json:"reference"`
	Status    payment.ChargeStatus `json:"status"`
	Amount    int64                `json:"amount"`
}

// Notification is a verified webhook payload
type Notification struct {
	ChargeRef string
	Status    payment.ChargeStatus
	Amount    int64
}

// Client is the gateway contract
type Client interface {
	ChargeInit(ctx context.Context, req ChargeRequest) (*ChargeInit, error)
	ChargeVerify(ctx context.Context, reference string) (*ChargeState, error)
	VerifyWebhook(payload []byte, token string) (*Notification, error)
}

// WebhookClaims is the integrity token carried by settlement notifications
type WebhookClaims struct {
	ChargeRef     string `json:"charge_ref"`
	Status        string `json:"status"`
	Amount        int64  `json:"amount"`
	PayloadSHA256 string `json:"payload_sha256"`
	jwt.RegisteredClaims
}

type chargeBody struct {
	Reference   string `json:"reference"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	CustomerRef string `json:"customer_ref"`
	CallbackURL string `json:"callback_url,omitempty"`
}

type client struct {
	logger        *slog.Logger
	caller        *remote.Caller
	exec          *resilience.Executor
	secretKey     string
	webhookSecret []byte
	callbackURL   string
}

// NewClient creates a gateway client whose calls run through exec
func NewClient(logger *slog.Logger, cfg config.GatewayConfig, exec *resilience.Executor) Client {
	return &client{
		logger:        logger.With("component", "gateway_client"),
		caller:        remote.NewCaller(Dependency, cfg.BaseURL, cfg.RequestTimeout),
		exec:          exec,
		secretKey:     cfg.SecretKey,
		webhookSecret: []byte(cfg.WebhookSecret),
		callbackURL:   cfg.CallbackURL,
	}
}

func (c *client) ChargeInit(ctx context.Context, req ChargeRequest) (*ChargeInit, error) {
	if req.Reference == "" {
		return nil, shared.NewValidationError("reference", "must not be empty")
	}
	if req.Amount <= 0 {
		return nil, shared.NewValidationError("amount", "must be positive")
	}
	body := chargeBody{
		Reference:   req.Reference,
		Amount:      req.Amount,
		Currency:    req.Currency,
		CustomerRef: req.UserRef,
		CallbackURL: c.callbackURL,
	}

	charge, err := resilience.Do(ctx, c.exec, func(ctx context.Context) (*ChargeInit, error) {
		var resp ChargeInit
		if err := c.caller.Do(ctx, http.MethodPost, "/v1/charges", c.headers(req.Reference), body, &resp); err != nil {
			return nil, normalize(err)
		}
		return &resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize charge: %w", err)
	}
	if charge.RedirectURL == "" {
		return nil, fmt.Errorf("failed to initialize charge: %w", &shared.RemoteRejectedError{
			Dependency: Dependency, Reason: shared.ReasonInvalidRequest, Message: "gateway returned no redirect",
		})
	}
	if charge.Reference == "" {
		charge.Reference = req.Reference
	}
	return charge, nil
}

func (c *client) ChargeVerify(ctx context.Context, reference string) (*ChargeState, error) {
	path := "/v1/charges/" + url.PathEscape(reference)
	state, err := resilience.Do(ctx, c.exec, func(ctx context.Context) (*ChargeState, error) {
		var resp ChargeState
		if err := c.caller.Do(ctx, http.MethodGet, path, c.headers(""), nil, &resp); err != nil {
			return nil, normalize(err)
		}
		return &resp, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to verify charge: %w", err)
	}
	switch state.Status {
	case payment.ChargeSettled, payment.ChargeFailed, payment.ChargePending:
	default:
		state.Status = payment.ChargePending
	}
	return state, nil
}

// VerifyWebhook validates the integrity token against the raw payload before
// anything in it is trusted.
func (c *client) VerifyWebhook(payload []byte, token string) (*Notification, error) {
	if token == "" {
		return nil, shared.NewValidationError("signature", "missing integrity token")
	}

	claims := &WebhookClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.webhookSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, shared.NewValidationError("signature", "invalid integrity token")
	}

	sum := sha256.Sum256(payload)
	expected := hex.EncodeToString(sum[:])
	if subtle.ConstantTimeCompare([]byte(expected), []byte(claims.PayloadSHA256)) != 1 {
		return nil, shared.NewValidationError("signature", "payload does not match integrity token")
	}

	status := payment.ChargeStatus(claims.Status)
	if status != payment.ChargeSettled && status != payment.ChargeFailed {
		return nil, shared.NewValidationError("status", fmt.Sprintf("unexpected settlement status %q", claims.Status))
	}
	if claims.ChargeRef == "" {
		return nil, shared.NewValidationError("charge_ref", "must not be empty")
	}

	return &Notification{ChargeRef: claims.ChargeRef, Status: status, Amount: claims.Amount}, nil
}

func (c *client) headers(idempotencyKey string) http.Header {
	h := http.Header{}
	if c.secretKey != "" {
		h.Set("Authorization", "Bearer "+c.secretKey)
	}
	if idempotencyKey != "" {
		h.Set("Idempotency-Key", idempotencyKey)
	}
	return h
}

func normalize(err error) error {
	var transient *shared.TransientError
	if errors.As(err, &transient) {
		return err
	}
	var statusErr *remote.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}
	switch statusErr.StatusCode {
	case http.StatusPaymentRequired:
		return &shared.RemoteRejectedError{Dependency: Dependency, Reason: shared.ReasonChargeDeclined, Message: statusErr.Message}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &shared.RemoteRejectedError{Dependency: Dependency, Reason: shared.ReasonUnauthorized, Message: statusErr.Message}
	default:
		return &shared.RemoteRejectedError{Dependency: Dependency, Reason: shared.ReasonInvalidRequest, Message: statusErr.Message}
	}
}

// SignWebhook produces the integrity token for payload. The gateway holds the
// same secret; this is used by tooling and tests to emit notifications.
func SignWebhook(secret []byte, payload []byte, chargeRef string, status payment.ChargeStatus, amount int64) (string, error) {
	sum := sha256.Sum256(payload)
	claims := WebhookClaims{
		ChargeRef:     chargeRef,
		Status:        string(status),
		Amount:        amount,
		PayloadSHA256: hex.EncodeToString(sum[:]),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
