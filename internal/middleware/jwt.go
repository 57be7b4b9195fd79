package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/learntrack-backend/internal/response"
	"github.com/stemsi/learntrack-backend/internal/service"
)

// ContextKeyClaims is the Gin context key for JWT claims.
const ContextKeyClaims = "claims"

// RequireLearnerJWT validates a learner JWT from the Authorization header.
// Tokens are issued by the course platform and verified with the shared secret.
func RequireLearnerJWT(authService *service.AuthService) gin.HandlerFunc {
	return authenticate(authService, bearerToken)
}

// RequireLearnerWSAuth validates a learner JWT from the query param ?token=...
// Browsers cannot set headers on a WebSocket upgrade.
func RequireLearnerWSAuth(authService *service.AuthService) gin.HandlerFunc {
	return authenticate(authService, func(c *gin.Context) string {
		return c.Query("token")
	})
}

func authenticate(authService *service.AuthService, extract func(c *gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := extract(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := authService.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, _ := val.(*service.Claims)
	return claims
}

// bearerToken returns the token of an "Authorization: Bearer <token>" header,
// or "" when the header is missing or uses another scheme.
func bearerToken(c *gin.Context) string {
	scheme, token, ok := strings.Cut(c.GetHeader("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
