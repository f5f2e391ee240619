package storefront

import (
	"context"
	"net/http"

	"github.com/modomart/checkoutbff/internal/domain"
)

// checkoutRequest is the wire shape shared by the preview and checkout
// endpoints
type checkoutRequest struct {
	ShippingProfileID *int64                `json:"shippingProfileId,omitempty"`
	CartItemIDs       []int64               `json:"cartItemIds"`
	Note              string                `json:"note"`
	PaymentMethod     domain.PaymentMethod  `json:"paymentMethod"`
	DeliveryMethod    domain.DeliveryMethod `json:"deliveryMethod"`
	IsUsePoint        bool                  `json:"isUsePoint"`
}

type addressPayload struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"firstName"`
	LastName    string `json:"lastName"`
	PhoneNumber string `json:"phoneNumber"`
	Address     string `json:"address"`
	Ward        string `json:"ward"`
	District    string `json:"district"`
	Province    string `json:"province"`
}

type lineItemPayload struct {
	CartItemID   int64   `json:"cartItemId"`
	ProductName  string  `json:"productName"`
	Color        string  `json:"color"`
	Size         string  `json:"size"`
	Image        string  `json:"image"`
	Price        float64 `json:"price"`
	FinalPrice   float64 `json:"finalPrice"`
	DiscountRate float64 `json:"discountRate"`
	Quantity     int     `json:"quantity"`
}

type previewPayload struct {
	ShippingProfile *addressPayload   `json:"shippingProfile"`
	LineItems       []lineItemPayload `json:"lineItems"`
	Points          int64             `json:"points"`
	Discount        float64           `json:"discount"`
	PointDiscount   float64           `json:"pointDiscount"`
	ShippingFee     float64           `json:"shippingFee"`
	FinalTotal      float64           `json:"finalTotal"`
}

type checkoutResultPayload struct {
	OrderID    int64  `json:"orderId"`
	OrderCode  string `json:"orderCode"`
	PaymentURL string `json:"paymentUrl"`
}

func buildCheckoutRequest(sel domain.SelectionState) checkoutRequest {
	return checkoutRequest{
		ShippingProfileID: sel.ShippingProfileID,
		CartItemIDs:       sel.CartItemIDs,
		Note:              sel.Note,
		PaymentMethod:     sel.PaymentMethod,
		DeliveryMethod:    sel.DeliveryMethod,
		IsUsePoint:        sel.UsePoints,
	}
}

func toAddress(p *addressPayload) *domain.ResolvedAddress {
	if p == nil {
		return nil
	}
	return &domain.ResolvedAddress{
		ID:          p.ID,
		FirstName:   p.FirstName,
		LastName:    p.LastName,
		PhoneNumber: p.PhoneNumber,
		Address:     p.Address,
		Ward:        p.Ward,
		District:    p.District,
		Province:    p.Province,
	}
}

// GetOrderPreview asks the platform to price the current selection. The
// platform owns all pricing and discount logic; the returned breakdown is
// opaque truth.
func (c *Client) GetOrderPreview(ctx context.Context, sel domain.SelectionState) (*domain.OrderPreview, error) {
	var payload previewPayload
	if err := c.do(ctx, "order preview", http.MethodPost, "/api/v1/orders/preview", buildCheckoutRequest(sel), &payload); err != nil {
		return nil, err
	}

	preview := &domain.OrderPreview{
		ShippingProfile: toAddress(payload.ShippingProfile),
		LineItems:       make([]domain.LineItem, 0, len(payload.LineItems)),
		Points:          payload.Points,
		Discount:        payload.Discount,
		PointDiscount:   payload.PointDiscount,
		ShippingFee:     payload.ShippingFee,
		FinalTotal:      payload.FinalTotal,
	}
	for _, item := range payload.LineItems {
		preview.LineItems = append(preview.LineItems, domain.LineItem{
			CartItemID:   item.CartItemID,
			ProductName:  item.ProductName,
			Color:        item.Color,
			Size:         item.Size,
			Image:        item.Image,
			Price:        item.Price,
			FinalPrice:   item.FinalPrice,
			DiscountRate: item.DiscountRate,
			Quantity:     item.Quantity,
		})
	}
	return preview, nil
}

// CheckoutOrder creates the order from the confirmed selection. For gateway
// payments the result carries the redirect URL.
func (c *Client) CheckoutOrder(ctx context.Context, sel domain.SelectionState) (*domain.CheckoutResult, error) {
	var payload checkoutResultPayload
	if err := c.do(ctx, "checkout", http.MethodPost, "/api/v1/orders/checkout", buildCheckoutRequest(sel), &payload); err != nil {
		return nil, err
	}
	return &domain.CheckoutResult{
		OrderID:    payload.OrderID,
		OrderCode:  payload.OrderCode,
		PaymentURL: payload.PaymentURL,
	}, nil
}
