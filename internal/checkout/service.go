package checkout

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/modomart/checkoutbff/internal/domain"
	"github.com/modomart/checkoutbff/internal/metrics"
	"github.com/modomart/checkoutbff/internal/repository"
	"github.com/modomart/checkoutbff/pkg/errors"
)

// flowTTL evicts flows abandoned without completing checkout
const flowTTL = 30 * time.Minute

type flowEntry struct {
	flow     *Flow
	lastSeen time.Time
}

// Service tracks live checkout flows, one per screen visit, and records
// submit outcomes for idempotent replay and auditing
type Service struct {
	mu    sync.Mutex
	flows map[uuid.UUID]*flowEntry

	repos  *repository.Repositories
	logger *zap.Logger
	stop   chan struct{}
}

// NewService creates the checkout service and starts the abandoned-flow sweep
func NewService(repos *repository.Repositories, logger *zap.Logger) *Service {
	s := &Service{
		flows:  make(map[uuid.UUID]*flowEntry),
		repos:  repos,
		logger: logger,
		stop:   make(chan struct{}),
	}
	go s.sweep()
	return s
}

// Close stops the background sweep
func (s *Service) Close() {
	close(s.stop)
}

// sweep removes flows not touched within flowTTL
func (s *Service) sweep() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.evictStale(time.Now())
		}
	}
}

func (s *Service) evictStale(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, entry := range s.flows {
		if now.Sub(entry.lastSeen) > flowTTL {
			delete(s.flows, id)
		}
	}
}

// Begin mounts a new checkout flow. An empty cart selection aborts before any
// platform call; a user with no saved default address is redirected out to
// address creation before any preview fetch is attempted. The initial preview
// fetch failure does not abort the mount; the flow carries the error.
func (s *Service) Begin(ctx context.Context, platform Platform, sel domain.SelectionState) (Snapshot, error) {
	if len(sel.CartItemIDs) == 0 {
		return Snapshot{}, &errors.ErrEmptyCart{}
	}

	if sel.PaymentMethod == "" {
		sel.PaymentMethod = domain.PaymentMethodCOD
	}
	if sel.DeliveryMethod == "" {
		sel.DeliveryMethod = domain.DeliveryMethodStandard
	}

	if sel.ShippingProfileID == nil {
		def, err := platform.GetDefaultShippingProfile(ctx)
		if err != nil {
			return Snapshot{}, err
		}
		if def == nil {
			return Snapshot{}, &errors.ErrNoShippingAddress{}
		}
		id := def.ID
		sel.ShippingProfileID = &id
	}

	flow := newFlow(uuid.New(), sel, platform, s.logger)

	s.mu.Lock()
	s.flows[flow.id] = &flowEntry{flow: flow, lastSeen: time.Now()}
	s.mu.Unlock()

	s.recordEvent(ctx, flow.id, "flow_started", map[string]interface{}{
		"cart_item_ids":       sel.CartItemIDs,
		"shipping_profile_id": *sel.ShippingProfileID,
	})

	snap, err := flow.refreshPreview(ctx)
	if err != nil {
		// mount survives a failed first fetch; the app shows the error and
		// the user can retry by changing a toggle
		s.logger.Warn("initial preview fetch failed", zap.String("flow_id", flow.id.String()), zap.Error(err))
	}
	return snap, nil
}

// Get returns a live flow by id
func (s *Service) Get(id uuid.UUID) (*Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.flows[id]
	if !ok {
		return nil, &errors.ErrNotFound{Resource: "checkout flow", ID: id.String()}
	}
	entry.lastSeen = time.Now()
	return entry.flow, nil
}

// Release discards a flow once navigation has completed
func (s *Service) Release(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, id)
}

// Replay returns the stored outcome for an Idempotency-Key, if one settled
// before. It works even after the flow itself has been released.
func (s *Service) Replay(ctx context.Context, idempotencyKey string) (*Outcome, bool) {
	stored := s.lookupKey(ctx, idempotencyKey)
	if stored == nil {
		return nil, false
	}
	metrics.IdempotentReplays.Inc()
	return replayOutcome(stored), true
}

func (s *Service) lookupKey(ctx context.Context, idempotencyKey string) *domain.IdempotencyKey {
	if idempotencyKey == "" {
		return nil
	}
	stored, err := s.repos.IdempotencyKey.Get(ctx, idempotencyKey)
	if err != nil {
		if _, ok := err.(*errors.ErrNotFound); !ok {
			// storage trouble must not block checkout; treat as no replay
			s.logger.Warn("idempotency lookup failed", zap.Error(err))
		}
		return nil
	}
	return stored
}

// Submit settles a confirm action. A recognized Idempotency-Key replays the
// stored outcome without touching the platform, and is rejected if the flow's
// selection no longer matches what the key was first submitted with;
// otherwise the flow submits once and the outcome is recorded under the key.
func (s *Service) Submit(ctx context.Context, flow *Flow, idempotencyKey string) (*Outcome, error) {
	if stored := s.lookupKey(ctx, idempotencyKey); stored != nil {
		if stored.RequestHash != hashSelection(flow.Snapshot().Selection) {
			return nil, &errors.ErrIdempotencyKeyReuse{Key: idempotencyKey}
		}
		metrics.IdempotentReplays.Inc()
		return replayOutcome(stored), nil
	}

	flowID := flow.ID()
	outcome, submitted, err := flow.Submit(ctx)
	if err != nil {
		s.recordEvent(ctx, flowID, "submit_rejected", map[string]interface{}{
			"reason": err.Error(),
		})
		return nil, err
	}

	s.recordEvent(ctx, flowID, "submit_settled", map[string]interface{}{
		"destination": outcome.Destination,
		"order_id":    outcome.OrderID,
		"order_code":  outcome.OrderCode,
	})

	// any settle that carries an order must replay on retry, even one that
	// settled as a failure (gateway order without a payment URL). Only a
	// submit that placed nothing upstream may attempt again under the same
	// key.
	placedOrder := outcome.OrderID != 0 || outcome.OrderCode != ""
	if idempotencyKey != "" && (outcome.Destination != domain.DestinationFailure || placedOrder) {
		record := &domain.IdempotencyKey{
			Key:         idempotencyKey,
			FlowID:      flowID,
			RequestHash: hashSelection(submitted),
			Destination: outcome.Destination,
			OrderID:     outcome.OrderID,
			OrderCode:   outcome.OrderCode,
		}
		if outcome.PaymentURL != "" {
			record.PaymentURL = &outcome.PaymentURL
		}
		if outcome.Message != "" {
			record.Message = &outcome.Message
		}
		if err := s.repos.IdempotencyKey.Create(ctx, record); err != nil {
			// replay protection degrades, the order itself is already placed
			s.logger.Warn("Failed to store idempotency key", zap.Error(err))
		}
	}

	return outcome, nil
}

func (s *Service) recordEvent(ctx context.Context, flowID uuid.UUID, eventType string, data map[string]interface{}) {
	event := &domain.FlowEvent{
		FlowID:    flowID,
		EventType: eventType,
		EventData: data,
	}
	if err := s.repos.FlowEvent.Create(ctx, event); err != nil {
		s.logger.Warn("Failed to record flow event", zap.String("event_type", eventType), zap.Error(err))
	}
}

func replayOutcome(record *domain.IdempotencyKey) *Outcome {
	outcome := &Outcome{
		Destination: record.Destination,
		OrderID:     record.OrderID,
		OrderCode:   record.OrderCode,
	}
	if record.PaymentURL != nil {
		outcome.PaymentURL = *record.PaymentURL
	}
	if record.Message != nil {
		outcome.Message = *record.Message
	}
	return outcome
}

func hashSelection(sel domain.SelectionState) string {
	payload, err := json.Marshal(sel)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
