package usage

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/visaform/checkout-billing/internal/credential"
)

const claimsContextKey = "credential_claims"

// Middleware returns a Gin handler that authenticates requests with a bearer
// credential. The signature and expiry are re-verified on every request; valid
// claims are stored on the context for downstream handlers.
func Middleware(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Set("request_id", requestID)
		c.Writer.Header().Set("X-Request-ID", requestID)

		authHeader := c.GetHeader("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer credential"})
			return
		}
		token := strings.TrimPrefix(authHeader, "Bearer ")

		claims, err := credential.Verify(token, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired credential"})
			return
		}

		c.Set(claimsContextKey, claims)
		c.Next()
	}
}

// ClaimsFrom returns the verified claims set by Middleware, or nil.
func ClaimsFrom(c *gin.Context) *credential.Claims {
	v, ok := c.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := v.(*credential.Claims)
	return claims
}
