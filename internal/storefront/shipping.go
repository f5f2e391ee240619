package storefront

import (
	"context"
	"net/http"

	"github.com/modomart/checkoutbff/internal/domain"
	"github.com/modomart/checkoutbff/pkg/errors"
)

// GetDefaultShippingProfile returns the user's default saved address, or nil
// when none exists yet
func (c *Client) GetDefaultShippingProfile(ctx context.Context) (*domain.ResolvedAddress, error) {
	var payload *addressPayload
	err := c.do(ctx, "default shipping profile", http.MethodGet, "/api/v1/shipping-profiles/default", nil, &payload)
	if err != nil {
		// the platform answers 404 when the user has no addresses at all
		if upstream, ok := err.(*errors.ErrUpstream); ok && upstream.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return toAddress(payload), nil
}

// GetShippingProfiles lists the user's saved addresses for the chooser screen
func (c *Client) GetShippingProfiles(ctx context.Context) ([]domain.ResolvedAddress, error) {
	var payloads []addressPayload
	if err := c.do(ctx, "shipping profiles", http.MethodGet, "/api/v1/shipping-profiles", nil, &payloads); err != nil {
		return nil, err
	}

	profiles := make([]domain.ResolvedAddress, 0, len(payloads))
	for i := range payloads {
		profiles = append(profiles, *toAddress(&payloads[i]))
	}
	return profiles, nil
}
