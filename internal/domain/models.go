package domain

import (
	"time"

	"github.com/google/uuid"
)

// SelectionState holds the user's current checkout choices. Every mutation
// replaces one field wholesale; fields are never partially updated.
type SelectionState struct {
	ShippingProfileID *int64
	CartItemIDs       []int64
	Note              string
	PaymentMethod     PaymentMethod
	DeliveryMethod    DeliveryMethod
	UsePoints         bool
}

// OrderPreview is the server-computed breakdown for a SelectionState. The
// platform owns all pricing; the preview is replaced wholesale on every fetch
// and never patched locally.
type OrderPreview struct {
	ShippingProfile *ResolvedAddress
	LineItems       []LineItem
	Points          int64
	Discount        float64
	PointDiscount   float64
	ShippingFee     float64
	FinalTotal      float64
}

// LineItem is one cart entry inside an order preview
type LineItem struct {
	CartItemID   int64
	ProductName  string
	Color        string
	Size         string
	Image        string
	Price        float64
	FinalPrice   float64
	DiscountRate float64
	Quantity     int
}

// ResolvedAddress is a read-only projection of a saved shipping profile
type ResolvedAddress struct {
	ID          int64
	FirstName   string
	LastName    string
	PhoneNumber string
	Address     string
	Ward        string
	District    string
	Province    string
}

// CheckoutResult is the platform's response to an order creation request.
// PaymentURL is only populated for gateway payments.
type CheckoutResult struct {
	OrderID    int64
	OrderCode  string
	PaymentURL string
}

// DeviceKey authenticates a mobile client build against this API
type DeviceKey struct {
	ID         uuid.UUID
	Label      string
	APIKeyHash string
	IsActive   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IdempotencyKey stores the outcome of a completed submit so that a replayed
// request returns the original result instead of creating a second order
type IdempotencyKey struct {
	Key         string
	FlowID      uuid.UUID
	RequestHash string
	Destination FlowDestination
	OrderID     int64
	OrderCode   string
	PaymentURL  *string
	Message     *string
	CreatedAt   time.Time
}

// FlowEvent is an audit record of something that happened to a checkout flow
type FlowEvent struct {
	ID        uuid.UUID
	FlowID    uuid.UUID
	EventType string
	EventData map[string]interface{} // JSONB
	CreatedAt time.Time
}
