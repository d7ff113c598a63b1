package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"marketplace-realtime/internal/auth"
	"marketplace-realtime/internal/observability"
)

const (
	// UserIDKey is the gin context key holding the authenticated user id.
	UserIDKey = "userID"
	// RequestIDKey matches the key the handlers read for audit records.
	RequestIDKey = "request_id"
)

type TokenVerifier interface {
	UserIDFromToken(token string) (string, error)
}

// AuthMiddleware verifies the bearer token locally and tags the request
// with the user id and a request id.
func AuthMiddleware(tokens TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}
		token, ok := auth.BearerToken(header)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		userID, err := tokens.UserIDFromToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		requestID := observability.RequestIDFromRequest(c.Request)
		c.Set(UserIDKey, userID)
		c.Set(RequestIDKey, requestID)
		c.Header("X-Request-Id", requestID)
		trace.SpanFromContext(c.Request.Context()).SetAttributes(
			attribute.String("enduser.id", userID),
			attribute.String("request.id", requestID),
		)
		c.Next()
	}
}
