package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linebroker/internal/domain/shared"
)

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := []byte("test-secret")

	newRouter := func(issuer string) (*gin.Engine, *string, *shared.Plan) {
		var userID string
		var plan shared.Plan
		router := gin.New()
		router.Use(Auth(secret, issuer))
		router.GET("/me", func(c *gin.Context) {
			userID = GetUserID(c)
			plan = GetPlan(c)
			c.Status(http.StatusOK)
		})
		return router, &userID, &plan
	}

	call := func(router *gin.Engine, authorization string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest(http.MethodGet, "/me", nil)
		if authorization != "" {
			req.Header.Set("Authorization", authorization)
		}
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("ValidTokenSetsUserAndPlan", func(t *testing.T) {
		router, userID, plan := newRouter("linebroker")
		token, err := IssueToken(secret, "linebroker", "user-1", shared.PlanPro, time.Minute)
		require.NoError(t, err)

		rr := call(router, "Bearer "+token)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "user-1", *userID)
		assert.Equal(t, shared.PlanPro, *plan)
	})

	t.Run("MissingPlanDefaultsToPayAsYouGo", func(t *testing.T) {
		router, _, plan := newRouter("")
		token, err := IssueToken(secret, "", "user-1", "", time.Minute)
		require.NoError(t, err)

		rr := call(router, "bearer "+token)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, shared.PlanPayAsYouGo, *plan)
	})

	t.Run("Rejections", func(t *testing.T) {
		expired, _ := IssueToken(secret, "", "user-1", shared.PlanPro, -time.Minute)
		wrongSecret, _ := IssueToken([]byte("other"), "", "user-1", shared.PlanPro, time.Minute)
		wrongIssuer, _ := IssueToken(secret, "someone-else", "user-1", shared.PlanPro, time.Minute)
		noSubject, _ := IssueToken(secret, "linebroker", "", shared.PlanPro, time.Minute)
		unknownPlan, _ := IssueToken(secret, "linebroker", "user-1", "platinum", time.Minute)
		noExpiry, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1", Issuer: "linebroker"},
		}).SignedString(secret)
		noneAlg, _ := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Subject:   "user-1",
				Issuer:    "linebroker",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
		}).SignedString(jwt.UnsafeAllowNoneSignatureType)

		cases := map[string]string{
			"Missing":     "",
			"NotBearer":   "Basic dXNlcjpwYXNz",
			"EmptyBearer": "Bearer ",
			"Garbage":     "Bearer not-a-token",
			"Expired":     "Bearer " + expired,
			"WrongSecret": "Bearer " + wrongSecret,
			"WrongIssuer": "Bearer " + wrongIssuer,
			"NoSubject":   "Bearer " + noSubject,
			"UnknownPlan": "Bearer " + unknownPlan,
			"NoExpiry":    "Bearer " + noExpiry,
			"NoneAlg":     "Bearer " + noneAlg,
		}
		for name, header := range cases {
			t.Run(name, func(t *testing.T) {
				router, userID, _ := newRouter("linebroker")

				rr := call(router, header)

				assert.Equal(t, http.StatusUnauthorized, rr.Code)
				assert.Contains(t, rr.Body.String(), `"code":"UNAUTHORIZED"`)
				assert.Empty(t, *userID)
			})
		}
	})
}
