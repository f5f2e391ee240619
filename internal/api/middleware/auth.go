package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/modomart/checkoutbff/internal/domain"
	"github.com/modomart/checkoutbff/internal/repository"
	"github.com/modomart/checkoutbff/pkg/errors"
)

const deviceKeyContextKey = "deviceKey"

// AuthMiddleware authenticates the calling app build by its device API key
func AuthMiddleware(repos *repository.Repositories, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			return
		}

		key, err := repos.DeviceKey.GetByAPIKey(c.Request.Context(), apiKey)
		if err != nil {
			if _, ok := err.(*errors.ErrUnauthorized); ok {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
				return
			}
			logger.Error("Failed to verify API key", zap.Error(err))
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}

		c.Set(deviceKeyContextKey, key)
		c.Next()
	}
}

// GetDeviceKeyFromContext returns the authenticated device key
func GetDeviceKeyFromContext(c *gin.Context) (*domain.DeviceKey, bool) {
	value, ok := c.Get(deviceKeyContextKey)
	if !ok {
		return nil, false
	}
	key, ok := value.(*domain.DeviceKey)
	return key, ok
}

// BearerToken extracts the user's platform access token from the
// Authorization header
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
