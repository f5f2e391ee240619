package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// IdempotencyHeader is the client-supplied replay key for submit requests
const IdempotencyHeader = "Idempotency-Key"

const idempotencyContextKey = "idempotencyKey"

// IdempotencyMiddleware captures the Idempotency-Key header so the handler
// can replay a stored outcome instead of re-submitting
func IdempotencyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
		if key != "" {
			c.Set(idempotencyContextKey, key)
		}
		c.Next()
	}
}

// GetIdempotencyKey returns the captured Idempotency-Key, if any
func GetIdempotencyKey(c *gin.Context) string {
	value, ok := c.Get(idempotencyContextKey)
	if !ok {
		return ""
	}
	key, _ := value.(string)
	return key
}
