package checkout

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modomart/checkoutbff/internal/domain"
	"github.com/modomart/checkoutbff/internal/metrics"
	"github.com/modomart/checkoutbff/pkg/errors"
)

// Platform is the slice of the storefront API the checkout flow consumes
type Platform interface {
	GetOrderPreview(ctx context.Context, sel domain.SelectionState) (*domain.OrderPreview, error)
	CheckoutOrder(ctx context.Context, sel domain.SelectionState) (*domain.CheckoutResult, error)
	GetDefaultShippingProfile(ctx context.Context) (*domain.ResolvedAddress, error)
	GetShippingProfiles(ctx context.Context) ([]domain.ResolvedAddress, error)
}

// Outcome is where the app navigates after a submit settles
type Outcome struct {
	Destination domain.FlowDestination
	OrderID     int64
	OrderCode   string
	PaymentURL  string
	Message     string
}

// Snapshot is a point-in-time copy of a flow handed to the API layer
type Snapshot struct {
	FlowID       uuid.UUID
	Phase        domain.FlowPhase
	Selection    domain.SelectionState
	Preview      *domain.OrderPreview
	PreviewError string
	Outcome      *Outcome
}

// Flow owns one checkout screen visit: the selection state, the latest
// server-computed preview, and the submit lifecycle. One instance per visit,
// never shared across visits.
type Flow struct {
	mu sync.Mutex

	id       uuid.UUID
	platform Platform
	logger   *zap.Logger

	sel     domain.SelectionState
	phase   domain.FlowPhase
	preview *domain.OrderPreview
	lastErr string
	outcome *Outcome

	// previewSeq orders preview fetches so only the newest response is ever
	// applied; responses carrying a stale sequence are dropped
	previewSeq uint64

	submitInFlight bool
}

func newFlow(id uuid.UUID, sel domain.SelectionState, platform Platform, logger *zap.Logger) *Flow {
	return &Flow{
		id:       id,
		platform: platform,
		logger:   logger.With(zap.String("flow_id", id.String())),
		sel:      sel,
		phase:    domain.FlowPhaseSelecting,
	}
}

// ID returns the flow identifier
func (f *Flow) ID() uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.id
}

// Snapshot copies the current flow state
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snapshotLocked()
}

func (f *Flow) snapshotLocked() Snapshot {
	snap := Snapshot{
		FlowID:       f.id,
		Phase:        f.phase,
		Selection:    f.sel,
		Preview:      f.preview,
		PreviewError: f.lastErr,
	}
	if f.outcome != nil {
		out := *f.outcome
		snap.Outcome = &out
	}
	return snap
}

// SetUsePoints replaces the loyalty-point toggle and refetches the preview
func (f *Flow) SetUsePoints(ctx context.Context, use bool) (Snapshot, error) {
	f.mu.Lock()
	f.sel.UsePoints = use
	f.mu.Unlock()
	return f.refreshPreview(ctx)
}

// SetDeliveryMethod replaces the delivery method and refetches the preview
func (f *Flow) SetDeliveryMethod(ctx context.Context, method domain.DeliveryMethod) (Snapshot, error) {
	if !method.IsValid() {
		return f.Snapshot(), fmt.Errorf("invalid delivery method: %s", method)
	}
	f.mu.Lock()
	f.sel.DeliveryMethod = method
	f.mu.Unlock()
	return f.refreshPreview(ctx)
}

// SetPaymentMethod replaces the payment method. The breakdown does not depend
// on it, so no refetch is triggered.
func (f *Flow) SetPaymentMethod(method domain.PaymentMethod) (Snapshot, error) {
	if !method.IsValid() {
		return f.Snapshot(), fmt.Errorf("invalid payment method: %s", method)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sel.PaymentMethod = method
	return f.snapshotLocked(), nil
}

// SetNote replaces the free-text order note
func (f *Flow) SetNote(note string) Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sel.Note = note
	return f.snapshotLocked()
}

// SetShippingProfile replaces the shipping profile id. The app reaches this
// through the address-chooser round trip, which remounts the screen, so a
// changed profile refetches the preview like a fresh mount.
func (f *Flow) SetShippingProfile(ctx context.Context, profileID int64) (Snapshot, error) {
	f.mu.Lock()
	f.sel.ShippingProfileID = &profileID
	f.mu.Unlock()
	return f.refreshPreview(ctx)
}

// refreshPreview fetches a fresh breakdown for the current selection. When
// several refetch triggers overlap, only the response belonging to the newest
// trigger is applied; older responses are counted and dropped. A failed fetch
// keeps the last-known-good preview and records a user-facing message.
func (f *Flow) refreshPreview(ctx context.Context) (Snapshot, error) {
	f.mu.Lock()
	f.previewSeq++
	seq := f.previewSeq
	sel := f.sel
	f.mu.Unlock()

	preview, err := f.platform.GetOrderPreview(ctx, sel)

	f.mu.Lock()
	defer f.mu.Unlock()

	if seq != f.previewSeq {
		// a newer trigger superseded this fetch
		metrics.PreviewStaleDropped.Inc()
		return f.snapshotLocked(), nil
	}

	if err != nil {
		metrics.PreviewFetches.WithLabelValues("error").Inc()
		f.logger.Warn("order preview fetch failed", zap.Error(err))
		f.lastErr = "Unable to refresh your order summary. Please try again."
		return f.snapshotLocked(), err
	}

	metrics.PreviewFetches.WithLabelValues("ok").Inc()
	f.preview = preview
	f.lastErr = ""

	// subsequent preview and checkout calls use the server-confirmed id,
	// even if the caller only supplied a raw one
	if preview.ShippingProfile != nil {
		id := preview.ShippingProfile.ID
		f.sel.ShippingProfileID = &id
	}

	return f.snapshotLocked(), nil
}

// Submit issues exactly one order-creation call for this confirm action and
// returns the outcome with the selection that was actually submitted.
// Concurrent submits are rejected while one is in flight, and upstream
// failures settle into a navigable failure outcome rather than an error.
func (f *Flow) Submit(ctx context.Context) (*Outcome, domain.SelectionState, error) {
	f.mu.Lock()
	if f.submitInFlight {
		f.mu.Unlock()
		metrics.SubmitsBlocked.Inc()
		return nil, domain.SelectionState{}, &errors.ErrSubmitInFlight{}
	}
	if f.preview == nil || f.preview.ShippingProfile == nil {
		f.mu.Unlock()
		return nil, domain.SelectionState{}, &errors.ErrNoShippingAddress{}
	}
	if !f.phase.CanTransitionTo(domain.FlowPhaseSubmitting) {
		from := f.phase
		f.mu.Unlock()
		return nil, domain.SelectionState{}, &errors.ErrInvalidStateTransition{From: from, To: domain.FlowPhaseSubmitting}
	}
	f.phase = domain.FlowPhaseSubmitting
	f.submitInFlight = true
	sel := f.sel
	f.mu.Unlock()

	result, err := f.platform.CheckoutOrder(ctx, sel)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitInFlight = false

	outcome := f.settleLocked(sel.PaymentMethod, result, err)
	f.outcome = &outcome
	metrics.Submits.WithLabelValues(string(outcome.Destination)).Inc()

	out := outcome
	return &out, sel, nil
}

// settleLocked maps a checkout response onto the navigation branch
func (f *Flow) settleLocked(method domain.PaymentMethod, result *domain.CheckoutResult, err error) Outcome {
	if err != nil {
		f.logger.Warn("checkout submission failed", zap.Error(err))
		f.phase = domain.FlowPhaseFailed
		return Outcome{
			Destination: domain.DestinationFailure,
			Message:     "We could not place your order. Please try again.",
		}
	}

	if method == domain.PaymentMethodGateway {
		if result.PaymentURL == "" {
			// nominally successful response without a redirect target
			f.logger.Error("gateway checkout returned no payment url",
				zap.Int64("order_id", result.OrderID))
			f.phase = domain.FlowPhaseFailed
			return Outcome{
				Destination: domain.DestinationFailure,
				OrderID:     result.OrderID,
				OrderCode:   result.OrderCode,
				Message:     "Payment could not be started for this order.",
			}
		}
		f.phase = domain.FlowPhaseRedirecting
		return Outcome{
			Destination: domain.DestinationRedirect,
			OrderID:     result.OrderID,
			OrderCode:   result.OrderCode,
			PaymentURL:  result.PaymentURL,
		}
	}

	f.phase = domain.FlowPhaseCompleted
	return Outcome{
		Destination: domain.DestinationSuccess,
		OrderID:     result.OrderID,
		OrderCode:   result.OrderCode,
	}
}
