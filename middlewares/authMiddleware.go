package middlewares

import (
	"net/http"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/stocksync_backend/utils"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CorrelationMiddleware stamps every request context with a correlation id,
// preferring the caller-supplied x-correlation-id header.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	}
}

// TokenMiddleware guards the API with a static operator token compared
// against the bcrypt hash in STOCKSYNC_API_TOKEN_HASH. When the hash is not
// configured the guard is disabled (local development).
func TokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		hash := strings.TrimSpace(os.Getenv("STOCKSYNC_API_TOKEN_HASH"))
		if hash == "" {
			c.Next()
			return
		}

		token := strings.TrimSpace(c.GetHeader("token"))
		if token == "" {
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
				token = strings.TrimSpace(auth[7:])
			}
		}
		if token == "" || utils.ComparePassword(hash, token) != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
