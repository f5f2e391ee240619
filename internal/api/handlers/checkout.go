package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modomart/checkoutbff/internal/api/middleware"
	"github.com/modomart/checkoutbff/internal/auth"
	"github.com/modomart/checkoutbff/internal/checkout"
	"github.com/modomart/checkoutbff/internal/config"
	"github.com/modomart/checkoutbff/internal/domain"
	"github.com/modomart/checkoutbff/internal/storefront"
	"github.com/modomart/checkoutbff/pkg/errors"
)

// CreateSessionRequest mounts a new checkout flow. cart_item_ids carries the
// user's cart selection in display order.
type CreateSessionRequest struct {
	CartItemIDs       []int64 `json:"cart_item_ids" binding:"required"`
	ShippingProfileID *int64  `json:"shipping_profile_id,omitempty"`
	Note              string  `json:"note"`
	PaymentMethod     string  `json:"payment_method"`
	DeliveryMethod    string  `json:"delivery_method"`
	UsePoints         bool    `json:"use_points"`
}

// UpdateSelectionRequest replaces exactly one selection field
type UpdateSelectionRequest struct {
	UsePoints         *bool   `json:"use_points,omitempty"`
	DeliveryMethod    *string `json:"delivery_method,omitempty"`
	PaymentMethod     *string `json:"payment_method,omitempty"`
	Note              *string `json:"note,omitempty"`
	ShippingProfileID *int64  `json:"shipping_profile_id,omitempty"`
}

type AddressResponse struct {
	ID          int64  `json:"id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
	Address     string `json:"address"`
	Ward        string `json:"ward"`
	District    string `json:"district"`
	Province    string `json:"province"`
}

type LineItemResponse struct {
	CartItemID   int64   `json:"cart_item_id"`
	ProductName  string  `json:"product_name"`
	Color        string  `json:"color"`
	Size         string  `json:"size"`
	Image        string  `json:"image"`
	Price        float64 `json:"price"`
	FinalPrice   float64 `json:"final_price"`
	DiscountRate float64 `json:"discount_rate"`
	Quantity     int     `json:"quantity"`
}

type PreviewResponse struct {
	ShippingProfile *AddressResponse   `json:"shipping_profile,omitempty"`
	LineItems       []LineItemResponse `json:"line_items"`
	Points          int64              `json:"points"`
	Discount        float64            `json:"discount"`
	PointDiscount   float64            `json:"point_discount"`
	ShippingFee     float64            `json:"shipping_fee"`
	FinalTotal      float64            `json:"final_total"`
}

type SelectionResponse struct {
	ShippingProfileID *int64  `json:"shipping_profile_id,omitempty"`
	CartItemIDs       []int64 `json:"cart_item_ids"`
	Note              string  `json:"note"`
	PaymentMethod     string  `json:"payment_method"`
	DeliveryMethod    string  `json:"delivery_method"`
	UsePoints         bool    `json:"use_points"`
}

type OutcomeResponse struct {
	Destination string `json:"destination"`
	OrderID     int64  `json:"order_id,omitempty"`
	OrderCode   string `json:"order_code,omitempty"`
	PaymentURL  string `json:"payment_url,omitempty"`
	Message     string `json:"message,omitempty"`
}

// SessionResponse is the flow snapshot returned by every session endpoint
type SessionResponse struct {
	SessionID    string             `json:"session_id"`
	Phase        string             `json:"phase"`
	Selection    SelectionResponse  `json:"selection"`
	Preview      *PreviewResponse   `json:"preview,omitempty"`
	PreviewError string             `json:"preview_error,omitempty"`
	Outcome      *OutcomeResponse   `json:"outcome,omitempty"`
}

// HandleCreateSession handles POST /v1/checkout/sessions
func HandleCreateSession(cfg *config.Config, svc *checkout.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		platform, ok := platformClient(cfg, c, logger)
		if !ok {
			return
		}

		var req CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		sel := domain.SelectionState{
			ShippingProfileID: req.ShippingProfileID,
			CartItemIDs:       req.CartItemIDs,
			Note:              req.Note,
			UsePoints:         req.UsePoints,
		}
		if req.PaymentMethod != "" {
			method := domain.PaymentMethod(req.PaymentMethod)
			if !method.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payment method"})
				return
			}
			sel.PaymentMethod = method
		}
		if req.DeliveryMethod != "" {
			method := domain.DeliveryMethod(req.DeliveryMethod)
			if !method.IsValid() {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery method"})
				return
			}
			sel.DeliveryMethod = method
		}

		snap, err := svc.Begin(c.Request.Context(), platform, sel)
		if err != nil {
			switch err.(type) {
			case *errors.ErrEmptyCart:
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "redirect_to": "cart"})
			case *errors.ErrNoShippingAddress:
				c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "redirect_to": "address_create"})
			case *errors.ErrUpstream:
				logger.Error("Failed to start checkout", zap.Error(err))
				c.JSON(http.StatusBadGateway, gin.H{"error": "storefront unavailable"})
			default:
				logger.Error("Failed to start checkout", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		respondSnapshot(c, snap)
	}
}

// HandleGetSession handles GET /v1/checkout/sessions/:id
func HandleGetSession(svc *checkout.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		flow, ok := flowFromPath(c, svc)
		if !ok {
			return
		}
		respondSnapshot(c, flow.Snapshot())
	}
}

// HandleUpdateSelection handles PATCH /v1/checkout/sessions/:id/selection
func HandleUpdateSelection(svc *checkout.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		flow, ok := flowFromPath(c, svc)
		if !ok {
			return
		}

		var req UpdateSelectionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"error":   "validation failed",
				"details": err.Error(),
			})
			return
		}

		fields := 0
		for _, set := range []bool{
			req.UsePoints != nil,
			req.DeliveryMethod != nil,
			req.PaymentMethod != nil,
			req.Note != nil,
			req.ShippingProfileID != nil,
		} {
			if set {
				fields++
			}
		}
		if fields != 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one selection field per update"})
			return
		}

		ctx := c.Request.Context()
		var snap checkout.Snapshot
		var err error

		switch {
		case req.UsePoints != nil:
			snap, err = flow.SetUsePoints(ctx, *req.UsePoints)
		case req.DeliveryMethod != nil:
			snap, err = flow.SetDeliveryMethod(ctx, domain.DeliveryMethod(*req.DeliveryMethod))
		case req.PaymentMethod != nil:
			snap, err = flow.SetPaymentMethod(domain.PaymentMethod(*req.PaymentMethod))
		case req.Note != nil:
			snap = flow.SetNote(*req.Note)
		case req.ShippingProfileID != nil:
			snap, err = flow.SetShippingProfile(ctx, *req.ShippingProfileID)
		}

		if err != nil {
			if _, ok := err.(*errors.ErrUpstream); !ok {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			// upstream failure: the snapshot keeps the stale preview and
			// carries the user-facing message; fall through
		}

		respondSnapshot(c, snap)
	}
}

// HandleSubmit handles POST /v1/checkout/sessions/:id/submit
func HandleSubmit(svc *checkout.Service, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := middleware.GetIdempotencyKey(c)

		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
			return
		}

		flow, err := svc.Get(id)
		if err != nil {
			// settled flows are released; a network-level retry must still
			// replay its stored outcome
			if outcome, ok := svc.Replay(c.Request.Context(), idempotencyKey); ok {
				c.JSON(http.StatusOK, toOutcomeResponse(outcome))
				return
			}
			c.JSON(http.StatusNotFound, gin.H{"error": "checkout session not found"})
			return
		}

		outcome, err := svc.Submit(c.Request.Context(), flow, idempotencyKey)
		if err != nil {
			switch err.(type) {
			case *errors.ErrSubmitInFlight:
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case *errors.ErrNoShippingAddress:
				c.JSON(http.StatusBadRequest, gin.H{"error": "select a shipping address"})
			case *errors.ErrInvalidStateTransition:
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			case *errors.ErrIdempotencyKeyReuse:
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			default:
				logger.Error("Failed to submit checkout", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
			return
		}

		// navigation is settled; a completed or redirecting flow will not be
		// touched again
		if outcome.Destination != domain.DestinationFailure {
			svc.Release(flow.ID())
		}

		c.JSON(http.StatusOK, toOutcomeResponse(outcome))
	}
}

func flowFromPath(c *gin.Context, svc *checkout.Service) (*checkout.Flow, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return nil, false
	}

	flow, err := svc.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "checkout session not found"})
		return nil, false
	}
	return flow, true
}

// platformClient builds a storefront client bound to the caller's platform
// token pair
func platformClient(cfg *config.Config, c *gin.Context, logger *zap.Logger) (*storefront.Client, bool) {
	access := middleware.BearerToken(c)
	if access == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
		return nil, false
	}
	refresh := c.GetHeader("X-Refresh-Token")

	tokens := auth.NewTokenSource(access, refresh, auth.PlatformRefresher(cfg.Platform.BaseURL, http.DefaultClient))
	return storefront.NewClient(cfg.Platform, tokens, logger), true
}

// respondSnapshot renders a flow snapshot. A flow that has never held a
// preview and just failed to fetch one is a first-load failure (502); a
// stale preview beside a fetch error stays a 200 so the app keeps showing
// last-known-good data.
func respondSnapshot(c *gin.Context, snap checkout.Snapshot) {
	status := http.StatusOK
	if snap.Preview == nil && snap.PreviewError != "" {
		status = http.StatusBadGateway
	}
	c.JSON(status, toSessionResponse(snap))
}

func toSessionResponse(snap checkout.Snapshot) SessionResponse {
	resp := SessionResponse{
		SessionID: snap.FlowID.String(),
		Phase:     string(snap.Phase),
		Selection: SelectionResponse{
			ShippingProfileID: snap.Selection.ShippingProfileID,
			CartItemIDs:       snap.Selection.CartItemIDs,
			Note:              snap.Selection.Note,
			PaymentMethod:     string(snap.Selection.PaymentMethod),
			DeliveryMethod:    string(snap.Selection.DeliveryMethod),
			UsePoints:         snap.Selection.UsePoints,
		},
		PreviewError: snap.PreviewError,
	}

	if snap.Preview != nil {
		preview := &PreviewResponse{
			LineItems:     make([]LineItemResponse, 0, len(snap.Preview.LineItems)),
			Points:        snap.Preview.Points,
			Discount:      snap.Preview.Discount,
			PointDiscount: snap.Preview.PointDiscount,
			ShippingFee:   snap.Preview.ShippingFee,
			FinalTotal:    snap.Preview.FinalTotal,
		}
		if snap.Preview.ShippingProfile != nil {
			preview.ShippingProfile = toAddressResponse(*snap.Preview.ShippingProfile)
		}
		for _, item := range snap.Preview.LineItems {
			preview.LineItems = append(preview.LineItems, LineItemResponse{
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
		resp.Preview = preview
	}

	if snap.Outcome != nil {
		out := toOutcomeResponse(snap.Outcome)
		resp.Outcome = &out
	}

	return resp
}

func toAddressResponse(addr domain.ResolvedAddress) *AddressResponse {
	return &AddressResponse{
		ID:          addr.ID,
		FirstName:   addr.FirstName,
		LastName:    addr.LastName,
		PhoneNumber: addr.PhoneNumber,
		Address:     addr.Address,
		Ward:        addr.Ward,
		District:    addr.District,
		Province:    addr.Province,
	}
}

func toOutcomeResponse(outcome *checkout.Outcome) OutcomeResponse {
	return OutcomeResponse{
		Destination: string(outcome.Destination),
		OrderID:     outcome.OrderID,
		OrderCode:   outcome.OrderCode,
		PaymentURL:  outcome.PaymentURL,
		Message:     outcome.Message,
	}
}
