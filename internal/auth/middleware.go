package auth

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/example/devinsights/internal/apperr"
)

// APIKeyHeader is the header every analytics route must carry.
const APIKeyHeader = "x-api-key"

// APIKeyMiddleware rejects requests that do not present the shared secret.
// A missing header is 401; a present but different key is 403.
func APIKeyMiddleware(secret string) gin.HandlerFunc {
	expected := []byte(strings.TrimSpace(secret))

	return func(c *gin.Context) {
		provided := strings.TrimSpace(c.GetHeader(APIKeyHeader))
		if provided == "" {
			reject(c, apperr.Unauthorized("API Key is required"))
			return
		}

		if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			reject(c, apperr.Forbidden("Invalid API Key"))
			return
		}

		c.Next()
	}
}

func reject(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(apperr.StatusOf(err), gin.H{"status": "error", "error": apperr.PublicMessage(err)})
}
