package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/linebroker/internal/domain/shared"
)

const (
	// UserIDKey is the context key holding the authenticated user id
	UserIDKey = "user_id"

	// PlanKey is the context key holding the caller's pricing plan
	PlanKey = "plan"
)

// Claims are the bearer token claims. The subject is the user id.
type Claims struct {
	Plan shared.Plan `json:"plan,omitempty"`
	jwt.RegisteredClaims
}

var errUnknownPlan = errors.New("unknown plan")

// Auth verifies an HS256 bearer token and stores the subject and plan in the
// context. A token without a plan claim is treated as pay-as-you-go.
func Auth(secret []byte, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		raw, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "Missing bearer token")
			return
		}

		claims := &Claims{}
		_, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
			return secret, nil
		})
		if err == nil && claims.Subject == "" {
			err = jwt.ErrTokenRequiredClaimMissing
		}
		if err == nil {
			claims.Plan, err = normalizePlan(claims.Plan)
		}
		if err != nil {
			abortWithCode(c, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid bearer token")
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Set(PlanKey, claims.Plan)
		c.Next()
	}
}

// GetUserID returns the authenticated user id or an empty string
func GetUserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

// GetPlan returns the caller's plan, pay-as-you-go when unset
func GetPlan(c *gin.Context) shared.Plan {
	if v, ok := c.Get(PlanKey); ok {
		if plan, ok := v.(shared.Plan); ok {
			return plan
		}
	}
	return shared.PlanPayAsYouGo
}

// IssueToken signs a bearer token for userID. Used by operator tooling and tests.
func IssueToken(secret []byte, issuer, userID string, plan shared.Plan, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Plan: plan,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func normalizePlan(plan shared.Plan) (shared.Plan, error) {
	switch {
	case plan == "":
		return shared.PlanPayAsYouGo, nil
	case plan.Valid():
		return plan, nil
	default:
		return "", errUnknownPlan
	}
}
