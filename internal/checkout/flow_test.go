package checkout

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/modomart/checkoutbff/internal/domain"
	"github.com/modomart/checkoutbff/internal/repository"
	"github.com/modomart/checkoutbff/pkg/errors"
)

// --- Fakes ---

type fakePlatform struct {
	mu sync.Mutex

	previewCalls  int32
	checkoutCalls int32
	defaultCalls  int32

	previewFn  func(ctx context.Context, sel domain.SelectionState) (*domain.OrderPreview, error)
	checkoutFn func(ctx context.Context, sel domain.SelectionState) (*domain.CheckoutResult, error)
	defaultFn  func(ctx context.Context) (*domain.ResolvedAddress, error)
}

func (f *fakePlatform) GetOrderPreview(ctx context.Context, sel domain.SelectionState) (*domain.OrderPreview, error) {
	atomic.AddInt32(&f.previewCalls, 1)
	f.mu.Lock()
	fn := f.previewFn
	f.mu.Unlock()
	if fn == nil {
		return previewWithTotal(7, 100), nil
	}
	return fn(ctx, sel)
}

func (f *fakePlatform) CheckoutOrder(ctx context.Context, sel domain.SelectionState) (*domain.CheckoutResult, error) {
	atomic.AddInt32(&f.checkoutCalls, 1)
	f.mu.Lock()
	fn := f.checkoutFn
	f.mu.Unlock()
	if fn == nil {
		return &domain.CheckoutResult{OrderID: 1, OrderCode: "ORD-1"}, nil
	}
	return fn(ctx, sel)
}

func (f *fakePlatform) GetDefaultShippingProfile(ctx context.Context) (*domain.ResolvedAddress, error) {
	atomic.AddInt32(&f.defaultCalls, 1)
	if f.defaultFn == nil {
		return &domain.ResolvedAddress{ID: 7, FirstName: "Anh", LastName: "Tran"}, nil
	}
	return f.defaultFn(ctx)
}

func (f *fakePlatform) GetShippingProfiles(ctx context.Context) ([]domain.ResolvedAddress, error) {
	return nil, nil
}

func (f *fakePlatform) setPreviewFn(fn func(ctx context.Context, sel domain.SelectionState) (*domain.OrderPreview, error)) {
	f.mu.Lock()
	f.previewFn = fn
	f.mu.Unlock()
}

func previewWithTotal(profileID int64, total float64) *domain.OrderPreview {
	preview := &domain.OrderPreview{
		LineItems:  []domain.LineItem{{CartItemID: 11, ProductName: "Tee", Quantity: 2, FinalPrice: total / 2}},
		FinalTotal: total,
	}
	if profileID != 0 {
		preview.ShippingProfile = &domain.ResolvedAddress{ID: profileID}
	}
	return preview
}

type stubIdempotencyRepo struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyKey
}

func newStubIdempotencyRepo() *stubIdempotencyRepo {
	return &stubIdempotencyRepo{records: make(map[string]*domain.IdempotencyKey)}
}

func (s *stubIdempotencyRepo) Get(ctx context.Context, key string) (*domain.IdempotencyKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.records[key]; ok {
		return record, nil
	}
	return nil, &errors.ErrNotFound{Resource: "idempotency key", ID: key}
}

func (s *stubIdempotencyRepo) Create(ctx context.Context, record *domain.IdempotencyKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Key] = record
	return nil
}

type stubEventRepo struct {
	mu     sync.Mutex
	events []*domain.FlowEvent
}

func (s *stubEventRepo) Create(ctx context.Context, event *domain.FlowEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *stubEventRepo) ListByFlowID(ctx context.Context, flowID uuid.UUID) ([]*domain.FlowEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events, nil
}

func newTestService(t *testing.T) (*Service, *stubIdempotencyRepo, *stubEventRepo) {
	t.Helper()
	idem := newStubIdempotencyRepo()
	events := &stubEventRepo{}
	svc := NewService(&repository.Repositories{
		IdempotencyKey: idem,
		FlowEvent:      events,
	}, zaptest.NewLogger(t))
	t.Cleanup(svc.Close)
	return svc, idem, events
}

func selection(ids ...int64) domain.SelectionState {
	profileID := int64(7)
	return domain.SelectionState{
		ShippingProfileID: &profileID,
		CartItemIDs:       ids,
		PaymentMethod:     domain.PaymentMethodCOD,
		DeliveryMethod:    domain.DeliveryMethodStandard,
	}
}

// --- Mount ---

func TestBeginEmptyCartAborts(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}

	_, err := svc.Begin(context.Background(), platform, domain.SelectionState{})

	var emptyCart *errors.ErrEmptyCart
	require.ErrorAs(t, err, &emptyCart)
	assert.EqualValues(t, 0, atomic.LoadInt32(&platform.previewCalls))
	assert.EqualValues(t, 0, atomic.LoadInt32(&platform.defaultCalls))
}

func TestBeginNoDefaultAddressRedirectsBeforePreview(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{
		defaultFn: func(ctx context.Context) (*domain.ResolvedAddress, error) {
			return nil, nil
		},
	}

	sel := selection(1, 2)
	sel.ShippingProfileID = nil
	_, err := svc.Begin(context.Background(), platform, sel)

	var noAddress *errors.ErrNoShippingAddress
	require.ErrorAs(t, err, &noAddress)
	assert.EqualValues(t, 0, atomic.LoadInt32(&platform.previewCalls),
		"no preview fetch may happen before the address redirect")
}

func TestBeginFetchesPreviewOrError(t *testing.T) {
	svc, _, _ := newTestService(t)

	t.Run("preview", func(t *testing.T) {
		platform := &fakePlatform{}
		platform.setPreviewFn(func(ctx context.Context, sel domain.SelectionState) (*domain.OrderPreview, error) {
			return previewWithTotal(7, 250), nil
		})

		snap, err := svc.Begin(context.Background(), platform, selection(1))
		require.NoError(t, err)
		require.NotNil(t, snap.Preview)
		assert.Empty(t, snap.PreviewError)
		assert.Equal(t, 250.0, snap.Preview.FinalTotal)
	})

	t.Run("failure signal", func(t *testing.T) {
		platform := &fakePlatform{}
		platform.setPreviewFn(func(ctx context.Context, sel domain.SelectionState) (*domain.OrderPreview, error) {
			return nil, &errors.ErrUpstream{Operation: "order preview", Status: 500, Message: "boom"}
		})

		snap, err := svc.Begin(context.Background(), platform, selection(1))
		require.NoError(t, err, "mount survives a failed first fetch")
		assert.Nil(t, snap.Preview)
		assert.NotEmpty(t, snap.PreviewError, "a fetch must yield a preview or a failure signal, never nothing")
	})
}

func TestBeginWritesBackServerConfirmedProfileID(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}
	platform.setPreviewFn(func(ctx context.Context, sel domain.SelectionState) (*domain.OrderPreview, error) {
		// server resolves the raw id onto a different effective profile
		return previewWithTotal(9, 100), nil
	})

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	require.NotNil(t, snap.Selection.ShippingProfileID)
	assert.EqualValues(t, 9, *snap.Selection.ShippingProfileID)
}

// --- Preview refetch ---

func TestRapidToggleAppliesOnlyLatestPreview(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}

	entered := make(chan struct{})
	release := make(chan struct{})
	var enterOnce sync.Once

	platform.setPreviewFn(func(ctx context.Context, sel domain.SelectionState) (*domain.OrderPreview, error) {
		if sel.UsePoints {
			enterOnce.Do(func() { close(entered) })
			<-release
			return previewWithTotal(7, 50), nil
		}
		return previewWithTotal(7, 100), nil
	})

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)

	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		// first toggle: its response is delayed past the second toggle
		flow.SetUsePoints(context.Background(), true)
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first toggle never reached the platform")
	}

	// second toggle settles while the first is still in flight
	second, err := flow.SetUsePoints(context.Background(), false)
	require.NoError(t, err)
	require.NotNil(t, second.Preview)
	assert.Equal(t, 100.0, second.Preview.FinalTotal)

	close(release)
	wg.Wait()

	final := flow.Snapshot()
	require.NotNil(t, final.Preview)
	assert.Equal(t, 100.0, final.Preview.FinalTotal,
		"the displayed preview must reflect the last toggle, never a late stale response")
	assert.False(t, final.Selection.UsePoints)
}

func TestPreviewFailureKeepsStaleBreakdown(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	require.NotNil(t, snap.Preview)

	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	platform.setPreviewFn(func(ctx context.Context, sel domain.SelectionState) (*domain.OrderPreview, error) {
		return nil, &errors.ErrUpstream{Operation: "order preview", Status: 503, Message: "down"}
	})

	after, err := flow.SetUsePoints(context.Background(), true)
	require.Error(t, err)
	require.NotNil(t, after.Preview, "last-known-good preview stays visible")
	assert.Equal(t, snap.Preview.FinalTotal, after.Preview.FinalTotal)
	assert.NotEmpty(t, after.PreviewError)

	// a later successful refresh clears the error
	platform.setPreviewFn(nil)
	recovered, err := flow.SetUsePoints(context.Background(), false)
	require.NoError(t, err)
	assert.Empty(t, recovered.PreviewError)
}

// --- Submit ---

func TestSubmitIssuesExactlyOneCheckoutCall(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}

	entered := make(chan struct{})
	release := make(chan struct{})
	platform.checkoutFn = func(ctx context.Context, sel domain.SelectionState) (*domain.CheckoutResult, error) {
		close(entered)
		<-release
		return &domain.CheckoutResult{OrderID: 41, OrderCode: "ORD-41"}, nil
	}

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcome, err := svc.Submit(context.Background(), flow, "")
		assert.NoError(t, err)
		assert.Equal(t, domain.DestinationSuccess, outcome.Destination)
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("submit never reached the platform")
	}

	// the double tap
	_, err = svc.Submit(context.Background(), flow, "")
	var inFlight *errors.ErrSubmitInFlight
	require.ErrorAs(t, err, &inFlight)
	assert.EqualValues(t, 1, atomic.LoadInt32(&platform.checkoutCalls))

	close(release)
	wg.Wait()
	assert.EqualValues(t, 1, atomic.LoadInt32(&platform.checkoutCalls))
}

func TestSubmitCODNavigatesToSuccess(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}
	platform.checkoutFn = func(ctx context.Context, sel domain.SelectionState) (*domain.CheckoutResult, error) {
		assert.Equal(t, domain.PaymentMethodCOD, sel.PaymentMethod)
		return &domain.CheckoutResult{OrderID: 12, OrderCode: "ORD-12"}, nil
	}

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	outcome, err := svc.Submit(context.Background(), flow, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DestinationSuccess, outcome.Destination)
	assert.EqualValues(t, 12, outcome.OrderID)
	assert.Equal(t, "ORD-12", outcome.OrderCode)
	assert.Empty(t, outcome.PaymentURL, "COD must never carry a payment URL")
}

func TestSubmitGatewayWithURLRedirects(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}
	platform.checkoutFn = func(ctx context.Context, sel domain.SelectionState) (*domain.CheckoutResult, error) {
		return &domain.CheckoutResult{OrderID: 13, OrderCode: "ORD-13", PaymentURL: "https://pay.example/redirect"}, nil
	}

	sel := selection(1)
	sel.PaymentMethod = domain.PaymentMethodGateway
	snap, err := svc.Begin(context.Background(), platform, sel)
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	outcome, err := svc.Submit(context.Background(), flow, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DestinationRedirect, outcome.Destination)
	assert.Equal(t, "https://pay.example/redirect", outcome.PaymentURL)
}

func TestSubmitGatewayWithoutURLFails(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}
	platform.checkoutFn = func(ctx context.Context, sel domain.SelectionState) (*domain.CheckoutResult, error) {
		return &domain.CheckoutResult{OrderID: 14, OrderCode: "ORD-14"}, nil
	}

	sel := selection(1)
	sel.PaymentMethod = domain.PaymentMethodGateway
	snap, err := svc.Begin(context.Background(), platform, sel)
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	outcome, err := svc.Submit(context.Background(), flow, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DestinationFailure, outcome.Destination,
		"a gateway order without a payment URL must not look successful")
	assert.NotEmpty(t, outcome.Message)
}

func TestSubmitUpstreamFailureSettlesToFailure(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}
	platform.checkoutFn = func(ctx context.Context, sel domain.SelectionState) (*domain.CheckoutResult, error) {
		return nil, &errors.ErrUpstream{Operation: "checkout", Status: 500, Message: "boom"}
	}

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	outcome, err := svc.Submit(context.Background(), flow, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DestinationFailure, outcome.Destination)
	assert.NotEmpty(t, outcome.Message)

	// the user may re-initiate after a failure; there is no automatic retry
	assert.EqualValues(t, 1, atomic.LoadInt32(&platform.checkoutCalls))
	platform.checkoutFn = nil
	second, err := svc.Submit(context.Background(), flow, "")
	require.NoError(t, err)
	assert.Equal(t, domain.DestinationSuccess, second.Destination)
}

func TestSubmitWithoutResolvedAddressIsRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}
	platform.setPreviewFn(func(ctx context.Context, sel domain.SelectionState) (*domain.OrderPreview, error) {
		// breakdown without a resolved shipping profile
		return previewWithTotal(0, 100), nil
	})

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), flow, "")
	var noAddress *errors.ErrNoShippingAddress
	require.ErrorAs(t, err, &noAddress)
	assert.EqualValues(t, 0, atomic.LoadInt32(&platform.checkoutCalls))
}

func TestSubmitAfterCompletionIsRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), flow, "")
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), flow, "")
	var transition *errors.ErrInvalidStateTransition
	require.ErrorAs(t, err, &transition)
	assert.EqualValues(t, 1, atomic.LoadInt32(&platform.checkoutCalls))
}

func TestSubmitReplaysStoredIdempotencyKey(t *testing.T) {
	svc, idem, _ := newTestService(t)
	platform := &fakePlatform{}

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	first, err := svc.Submit(context.Background(), flow, "key-1")
	require.NoError(t, err)
	require.Len(t, idem.records, 1)

	// same key replays the stored outcome without another platform call
	replay, err := svc.Submit(context.Background(), flow, "key-1")
	require.NoError(t, err)
	assert.Equal(t, first.Destination, replay.Destination)
	assert.Equal(t, first.OrderID, replay.OrderID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&platform.checkoutCalls))
}

func TestSubmitGatewayWithoutURLReplaysUnderSameKey(t *testing.T) {
	svc, idem, _ := newTestService(t)
	platform := &fakePlatform{}
	platform.checkoutFn = func(ctx context.Context, sel domain.SelectionState) (*domain.CheckoutResult, error) {
		// the platform placed the order but returned no redirect target
		return &domain.CheckoutResult{OrderID: 99, OrderCode: "ORD-99"}, nil
	}

	sel := selection(1)
	sel.PaymentMethod = domain.PaymentMethodGateway
	snap, err := svc.Begin(context.Background(), platform, sel)
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	first, err := svc.Submit(context.Background(), flow, "key-gw")
	require.NoError(t, err)
	assert.Equal(t, domain.DestinationFailure, first.Destination)
	require.Len(t, idem.records, 1, "an order was placed, so the key must be recorded")

	// a retry with the same key must replay, not place a second order
	replay, err := svc.Submit(context.Background(), flow, "key-gw")
	require.NoError(t, err)
	assert.Equal(t, domain.DestinationFailure, replay.Destination)
	assert.EqualValues(t, 99, replay.OrderID)
	assert.EqualValues(t, 1, atomic.LoadInt32(&platform.checkoutCalls))
}

func TestSubmitUpstreamErrorLeavesKeyFreeForRetry(t *testing.T) {
	svc, idem, _ := newTestService(t)
	platform := &fakePlatform{}
	platform.checkoutFn = func(ctx context.Context, sel domain.SelectionState) (*domain.CheckoutResult, error) {
		return nil, &errors.ErrUpstream{Operation: "checkout", Status: 500, Message: "boom"}
	}

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	first, err := svc.Submit(context.Background(), flow, "key-err")
	require.NoError(t, err)
	assert.Equal(t, domain.DestinationFailure, first.Destination)
	assert.Empty(t, idem.records, "nothing was placed, the key stays free")

	// the retry reaches the platform again
	platform.checkoutFn = nil
	second, err := svc.Submit(context.Background(), flow, "key-err")
	require.NoError(t, err)
	assert.Equal(t, domain.DestinationSuccess, second.Destination)
	assert.EqualValues(t, 2, atomic.LoadInt32(&platform.checkoutCalls))
}

func TestSubmitRejectsKeyReuseWithChangedSelection(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), flow, "key-reused")
	require.NoError(t, err)

	flow.SetNote("changed after the fact")
	_, err = svc.Submit(context.Background(), flow, "key-reused")
	var reuse *errors.ErrIdempotencyKeyReuse
	require.ErrorAs(t, err, &reuse)
	assert.EqualValues(t, 1, atomic.LoadInt32(&platform.checkoutCalls))
}

// --- Flow registry ---

func TestAbandonedFlowIsEvicted(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}

	stale, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	fresh, err := svc.Begin(context.Background(), platform, selection(2))
	require.NoError(t, err)

	svc.mu.Lock()
	svc.flows[stale.FlowID].lastSeen = time.Now().Add(-flowTTL - time.Minute)
	svc.mu.Unlock()

	svc.evictStale(time.Now())

	_, err = svc.Get(stale.FlowID)
	var notFound *errors.ErrNotFound
	require.ErrorAs(t, err, &notFound)

	_, err = svc.Get(fresh.FlowID)
	require.NoError(t, err)
}

// --- Selection mutations ---

func TestSetPaymentMethodDoesNotRefetch(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	calls := atomic.LoadInt32(&platform.previewCalls)
	after, err := flow.SetPaymentMethod(domain.PaymentMethodGateway)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodGateway, after.Selection.PaymentMethod)
	assert.Equal(t, calls, atomic.LoadInt32(&platform.previewCalls))

	noteSnap := flow.SetNote("leave at the door")
	assert.Equal(t, "leave at the door", noteSnap.Selection.Note)
	assert.Equal(t, calls, atomic.LoadInt32(&platform.previewCalls))
}

func TestSetDeliveryMethodRefetches(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)
	flow, err := svc.Get(snap.FlowID)
	require.NoError(t, err)

	calls := atomic.LoadInt32(&platform.previewCalls)
	after, err := flow.SetDeliveryMethod(context.Background(), domain.DeliveryMethodExpress)
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryMethodExpress, after.Selection.DeliveryMethod)
	assert.Equal(t, calls+1, atomic.LoadInt32(&platform.previewCalls))

	_, err = flow.SetDeliveryMethod(context.Background(), domain.DeliveryMethod("DRONE"))
	assert.Error(t, err)
}

func TestReleasedFlowIsGone(t *testing.T) {
	svc, _, _ := newTestService(t)
	platform := &fakePlatform{}

	snap, err := svc.Begin(context.Background(), platform, selection(1))
	require.NoError(t, err)

	svc.Release(snap.FlowID)
	_, err = svc.Get(snap.FlowID)
	var notFound *errors.ErrNotFound
	require.ErrorAs(t, err, &notFound)
}
