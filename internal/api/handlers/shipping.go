package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/modomart/checkoutbff/internal/config"
)

// HandleListShippingProfiles handles GET /v1/shipping/profiles. The
// address-chooser screen lists saved addresses here; creating and editing
// them stays on the platform.
func HandleListShippingProfiles(cfg *config.Config, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		platform, ok := platformClient(cfg, c, logger)
		if !ok {
			return
		}

		profiles, err := platform.GetShippingProfiles(c.Request.Context())
		if err != nil {
			logger.Error("Failed to list shipping profiles", zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "storefront unavailable"})
			return
		}

		responses := make([]AddressResponse, 0, len(profiles))
		for _, profile := range profiles {
			responses = append(responses, *toAddressResponse(profile))
		}
		c.JSON(http.StatusOK, gin.H{"profiles": responses})
	}
}
