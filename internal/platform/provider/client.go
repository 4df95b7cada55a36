// Package provider is the client for the external verification provider. It
// translates engine intents into the provider's wire contract and normalizes its
// errors into the shared taxonomy. It keeps no state besides its bearer token.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/linebroker/internal/config"
	"github.com/linebroker/internal/domain/shared"
	"github.com/linebroker/internal/platform/remote"
	"github.com/linebroker/internal/platform/resilience"
)

// Dependency is the breaker and metrics name of the provider
const Dependency = "verification_provider"

const tokenSkew = 30 * time.Second

// Code delivery states reported by PollCode
const (
	CodePending   = "pending"
	CodeDelivered = "delivered"
)

// LineRequest asks the provider for a line
type LineRequest struct {
	ServiceID   string
	Capability  shared.Capability
	AreaCode    string
	Carrier     string
	PhoneNumber string // reuse a specific number when set
	Rental      bool
	RentalDays  int
	Priority    bool
	// IdempotencyKey identifies the logical acquisition; minted when empty
	IdempotencyKey string
}

// Line is a provisioned temporary number
type Line struct {
	Reference   string `json:"reference"`
	PhoneNumber string `json:"phone_number"`
	AreaCode    string `json:"area_code"`
	Carrier     string `json:"carrier"`
}

// CodeResult is the outcome of one poll
type CodeResult struct {
	Status     string `json:"status"`
	Code       string `json:"code,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// Delivered reports whether a code or transcript arrived
func (r *CodeResult) Delivered() bool {
	return r.Status == CodeDelivered
}

// Client is the provider contract used by the orchestrator
type Client interface {
	AcquireLine(ctx context.Context, req LineRequest) (*Line, error)
	PollCode(ctx context.Context, reference string) (*CodeResult, error)
	Cancel(ctx context.Context, reference string) error
}

type acquireBody struct {
	Service     string `json:"service"`
	Capability  string `json:"capability"`
	AreaCode    string `json:"area_code,omitempty"`
	Carrier     string `json:"carrier,omitempty"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Rental      bool   `json:"rental,omitempty"`
	RentalDays  int    `json:"rental_days,omitempty"`
	Priority    bool   `json:"priority,omitempty"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type client struct {
	logger *slog.Logger
	caller *remote.Caller
	exec   *resilience.Executor
	tokens *remote.TokenCache
}

// NewClient creates a provider client whose calls run through exec
func NewClient(logger *slog.Logger, cfg config.ProviderConfig, exec *resilience.Executor) Client {
	c := &client{
		logger: logger.With("component", "provider_client"),
		caller: remote.NewCaller(Dependency, cfg.BaseURL, cfg.RequestTimeout),
		exec:   exec,
	}
	apiKey := cfg.APIKey
	c.tokens = remote.NewTokenCache(func(ctx context.Context) (string, time.Duration, error) {
		var resp tokenResponse
		err := c.caller.Do(ctx, http.MethodPost, "/v1/auth/token", nil, map[string]string{"api_key": apiKey}, &resp)
		if err != nil {
			return "", 0, normalize(err)
		}
		if resp.AccessToken == "" {
			return "", 0, &shared.TransientError{Dependency: Dependency, Err: errors.New("empty access token")}
		}
		return resp.AccessToken, time.Duration(resp.ExpiresIn) * time.Second, nil
	}, tokenSkew)
	return c
}

func (c *client) AcquireLine(ctx context.Context, req LineRequest) (*Line, error) {
	if req.ServiceID == "" {
		return nil, shared.NewValidationError("service_id", "must not be empty")
	}
	key := req.IdempotencyKey
	if key == "" {
		key = uuid.NewString()
	}
	body := acquireBody{
		Service:     req.ServiceID,
		Capability:  string(req.Capability),
		AreaCode:    req.AreaCode,
		Carrier:     req.Carrier,
		PhoneNumber: req.PhoneNumber,
		Rental:      req.Rental,
		RentalDays:  req.RentalDays,
		Priority:    req.Priority,
	}

	line, err := resilience.Do(ctx, c.exec, func(ctx context.Context) (*Line, error) {
		var line Line
		if err := c.authorized(ctx, http.MethodPost, "/v1/lines", key, body, &line); err != nil {
			return nil, err
		}
		return &line, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire line: %w", err)
	}
	if line.Reference == "" || line.PhoneNumber == "" {
		return nil, fmt.Errorf("failed to acquire line: %w", &shared.RemoteRejectedError{
			Dependency: Dependency, Reason: shared.ReasonInvalidRequest, Message: "provider returned an incomplete line",
		})
	}
	c.logger.Debug("line acquired", "reference", line.Reference, "service_id", req.ServiceID)
	return line, nil
}

func (c *client) PollCode(ctx context.Context, reference string) (*CodeResult, error) {
	path := "/v1/lines/" + url.PathEscape(reference) + "/code"
	result, err := resilience.Do(ctx, c.exec, func(ctx context.Context) (*CodeResult, error) {
		var result CodeResult
		if err := c.authorized(ctx, http.MethodGet, path, "", nil, &result); err != nil {
			return nil, err
		}
		return &result, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to poll code: %w", err)
	}
	if result.Status != CodeDelivered {
		result.Status = CodePending
	}
	return result, nil
}

func (c *client) Cancel(ctx context.Context, reference string) error {
	path := "/v1/lines/" + url.PathEscape(reference) + "/cancel"
	key := "cancel:" + reference
	_, err := resilience.Do(ctx, c.exec, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.authorized(ctx, http.MethodPost, path, key, nil, nil)
	})
	if err != nil {
		return fmt.Errorf("failed to cancel line: %w", err)
	}
	return nil
}

// authorized performs one attempt with the cached token, refreshing it once on 401.
func (c *client) authorized(ctx context.Context, method, path, idempotencyKey string, in, out any) error {
	for retried := false; ; retried = true {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return err
		}
		headers := http.Header{}
		headers.Set("Authorization", "Bearer "+token)
		if idempotencyKey != "" {
			headers.Set("Idempotency-Key", idempotencyKey)
		}

		err = c.caller.Do(ctx, method, path, headers, in, out)
		var statusErr *remote.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized && !retried {
			c.tokens.Invalidate(token)
			continue
		}
		return normalize(err)
	}
}

// normalize maps provider answers onto the shared taxonomy
func normalize(err error) error {
	if err == nil {
		return nil
	}

	var statusErr *remote.StatusError
	if !errors.As(err, &statusErr) {
		return err
	}

	// a capacity answer is a refusal even when sent with a 5xx
	if statusErr.Code == "NO_CAPACITY" {
		return &shared.RemoteRejectedError{Dependency: Dependency, Reason: shared.ReasonNoCapacity, Message: statusErr.Message}
	}

	var transient *shared.TransientError
	if errors.As(err, &transient) {
		return err
	}

	switch statusErr.StatusCode {
	case http.StatusPaymentRequired:
		return &shared.RemoteRejectedError{Dependency: Dependency, Reason: shared.ReasonInsufficientRemoteFunds, Message: statusErr.Message}
	case http.StatusUnauthorized, http.StatusForbidden:
		return &shared.RemoteRejectedError{Dependency: Dependency, Reason: shared.ReasonUnauthorized, Message: statusErr.Message}
	default:
		return &shared.RemoteRejectedError{Dependency: Dependency, Reason: shared.ReasonInvalidRequest, Message: statusErr.Message}
	}
}
