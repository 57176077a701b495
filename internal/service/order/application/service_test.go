// internal/service/order/application/service_test.go
package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	invdomain "github.com/since-leoo/mine-shop-sub008/internal/service/inventory/domain"
	"github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
	"github.com/since-leoo/mine-shop-sub008/internal/service/order/domain/port"
)

type memOrderRepo struct {
	mu       sync.Mutex
	orders   map[string]*domain.Order
	failNext error
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*domain.Order)}
}

func (r *memOrderRepo) Create(_ context.Context, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNext != nil {
		err := r.failNext
		r.failNext = nil
		return err
	}
	copied := *order
	r.orders[order.OrderNo] = &copied
	return nil
}

func (r *memOrderRepo) FindByNo(_ context.Context, orderNo string) (*domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNo]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *memOrderRepo) TransitionStatus(_ context.Context, orderNo string, from, to domain.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNo]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
	if to == domain.StatusPaid {
		o.PaidAt = time.Now()
	}
	return true, nil
}

func (r *memOrderRepo) MarkConfirmed(_ context.Context, orderNo string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[orderNo]; ok {
		o.Confirmed = true
	}
	return nil
}

func (r *memOrderRepo) MarkRefundEligible(_ context.Context, orderNo string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if o, ok := r.orders[orderNo]; ok {
		o.RefundEligible = true
	}
	return nil
}

func (r *memOrderRepo) CountPaidByMemberAndActivity(_ context.Context, memberNo, activityID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, o := range r.orders {
		if o.MemberNo == memberNo && o.ActivityID == activityID &&
			o.Status != domain.StatusCancelled && o.Status != domain.StatusRefunded {
			total += o.Quantity
		}
	}
	return total, nil
}

type fakeProducer struct {
	mu      sync.Mutex
	created []*domain.OrderCreatedEvent
	paid    []*domain.OrderPaidEvent
}

func (p *fakeProducer) ProduceOrderCreated(_ context.Context, e *domain.OrderCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, e)
	return nil
}

func (p *fakeProducer) ProduceOrderPaid(_ context.Context, e *domain.OrderPaidEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paid = append(p.paid, e)
	return nil
}

type fakeReserver struct {
	mu       sync.Mutex
	nextID   string
	released []string
}

func (f *fakeReserver) TryReserve(_ context.Context, resourceID string, qty int64) (*invdomain.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &invdomain.Reservation{ID: f.nextID, ResourceID: resourceID, Quantity: qty, Status: invdomain.ReservationReserved}, nil
}

func (f *fakeReserver) Release(_ context.Context, reservationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, reservationID)
	return nil
}

type fakeCoupons struct {
	discount decimal.Decimal
	released int
}

func (f *fakeCoupons) ApplyToOrder(_ context.Context, _, _ string, _ decimal.Decimal) (*port.CouponApplication, error) {
	return &port.CouponApplication{
		Discount:   f.discount,
		Compensate: func(context.Context) { f.released++ },
	}, nil
}

// stubStrategy 固定价格、固定预占单号的测试策略。
type stubStrategy struct {
	validateErr error
	reserveErr  error
	price       decimal.Decimal
	reservation string
	compensated int
}

func (s *stubStrategy) Validate(_ context.Context, _ *domain.OrderDraft) error { return s.validateErr }

func (s *stubStrategy) PriceLine(_ context.Context, draft *domain.OrderDraft) (*domain.PricedLine, error) {
	qty := decimal.NewFromInt(draft.Quantity)
	return &domain.PricedLine{
		SkuID:     draft.SkuID,
		Quantity:  draft.Quantity,
		UnitPrice: s.price,
		Discount:  decimal.Zero,
		PayAmount: s.price.Mul(qty),
	}, nil
}

func (s *stubStrategy) Reserve(_ context.Context, _ *domain.OrderDraft) (*domain.ReserveResult, error) {
	if s.reserveErr != nil {
		return nil, s.reserveErr
	}
	return &domain.ReserveResult{
		ReservationID: s.reservation,
		Compensate:    func(context.Context) { s.compensated++ },
	}, nil
}

func passthroughTx() TxRunner {
	return TxRunnerFunc(func(ctx context.Context, fn func(ctx context.Context) error) error {
		return fn(ctx)
	})
}

func newTestService(repo *memOrderRepo, producer *fakeProducer, reserver *fakeReserver, coupons port.CouponService, strategies map[domain.Type]domain.Strategy) *OrderService {
	registry := domain.NewStrategyRegistry()
	for t, s := range strategies {
		registry.Register(t, s)
	}
	return NewOrderService(registry, repo, producer, coupons, reserver, passthroughTx(), otel.Tracer("test"))
}

func TestPlaceOrderUnsupportedType(t *testing.T) {
	svc := newTestService(newMemOrderRepo(), &fakeProducer{}, &fakeReserver{}, &fakeCoupons{}, nil)

	_, err := svc.PlaceOrder(context.Background(), &PlaceOrderCommand{
		MemberNo: "m-1", Type: domain.Type("MYSTERY_BOX"), SkuID: "sku-1", Quantity: 1,
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedOrderType)
}

func TestPlaceOrderSuccess(t *testing.T) {
	repo := newMemOrderRepo()
	producer := &fakeProducer{}
	strategy := &stubStrategy{price: decimal.NewFromInt(30), reservation: "rsv-1"}
	svc := newTestService(repo, producer, &fakeReserver{}, &fakeCoupons{},
		map[domain.Type]domain.Strategy{domain.TypeNormal: strategy})

	result, err := svc.PlaceOrder(context.Background(), &PlaceOrderCommand{
		MemberNo: "m-1", Type: domain.TypeNormal, SkuID: "sku-1", Quantity: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, "60", result.PayAmount)
	assert.Equal(t, string(domain.StatusPending), result.Status)

	stored, err := repo.FindByNo(context.Background(), result.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, "rsv-1", stored.ReservationID)
	require.Len(t, producer.created, 1)
	assert.Equal(t, result.OrderNo, producer.created[0].OrderNo)
	assert.Zero(t, strategy.compensated)
}

func TestPlaceOrderAppliesCoupon(t *testing.T) {
	repo := newMemOrderRepo()
	strategy := &stubStrategy{price: decimal.NewFromInt(100), reservation: "rsv-1"}
	coupons := &fakeCoupons{discount: decimal.NewFromInt(15)}
	svc := newTestService(repo, &fakeProducer{}, &fakeReserver{}, coupons,
		map[domain.Type]domain.Strategy{domain.TypeNormal: strategy})

	result, err := svc.PlaceOrder(context.Background(), &PlaceOrderCommand{
		MemberNo: "m-1", Type: domain.TypeNormal, SkuID: "sku-1", Quantity: 1, CouponGrantID: "grant-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "85", result.PayAmount)
	assert.Zero(t, coupons.released)
}

func TestPlaceOrderRunsCompensationsOnFailure(t *testing.T) {
	repo := newMemOrderRepo()
	repo.failNext = errors.New("duplicate key")
	producer := &fakeProducer{}
	strategy := &stubStrategy{price: decimal.NewFromInt(10), reservation: "rsv-1"}
	coupons := &fakeCoupons{discount: decimal.NewFromInt(1)}
	svc := newTestService(repo, producer, &fakeReserver{}, coupons,
		map[domain.Type]domain.Strategy{domain.TypeNormal: strategy})

	_, err := svc.PlaceOrder(context.Background(), &PlaceOrderCommand{
		MemberNo: "m-1", Type: domain.TypeNormal, SkuID: "sku-1", Quantity: 1, CouponGrantID: "grant-1",
	})
	require.Error(t, err)
	assert.Equal(t, 1, strategy.compensated, "reserve compensation must run after tx failure")
	assert.Equal(t, 1, coupons.released, "coupon freeze must be compensated after tx failure")
	assert.Empty(t, producer.created)
	assert.Empty(t, repo.orders)
}

func TestMarkPaidIsIdempotent(t *testing.T) {
	repo := newMemOrderRepo()
	producer := &fakeProducer{}
	strategy := &stubStrategy{price: decimal.NewFromInt(10), reservation: "rsv-1"}
	svc := newTestService(repo, producer, &fakeReserver{}, &fakeCoupons{},
		map[domain.Type]domain.Strategy{domain.TypeNormal: strategy})

	result, err := svc.PlaceOrder(context.Background(), &PlaceOrderCommand{
		MemberNo: "m-1", Type: domain.TypeNormal, SkuID: "sku-1", Quantity: 1,
	})
	require.NoError(t, err)

	require.NoError(t, svc.MarkPaid(context.Background(), result.OrderNo))
	require.NoError(t, svc.MarkPaid(context.Background(), result.OrderNo))

	require.Len(t, producer.paid, 1, "duplicate pay callback must not produce a second event")
	assert.Equal(t, "paid-"+result.OrderNo, producer.paid[0].EventID)

	stored, err := repo.FindByNo(context.Background(), result.OrderNo)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaid, stored.Status)
}

func TestMarkPaidOnCancelledOrderFails(t *testing.T) {
	repo := newMemOrderRepo()
	strategy := &stubStrategy{price: decimal.NewFromInt(10), reservation: "rsv-1"}
	svc := newTestService(repo, &fakeProducer{}, &fakeReserver{}, &fakeCoupons{},
		map[domain.Type]domain.Strategy{domain.TypeNormal: strategy})

	result, err := svc.PlaceOrder(context.Background(), &PlaceOrderCommand{
		MemberNo: "m-1", Type: domain.TypeNormal, SkuID: "sku-1", Quantity: 1,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(context.Background(), result.OrderNo))

	err = svc.MarkPaid(context.Background(), result.OrderNo)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestCancelReleasesReservation(t *testing.T) {
	repo := newMemOrderRepo()
	reserver := &fakeReserver{}
	strategy := &stubStrategy{price: decimal.NewFromInt(10), reservation: "rsv-42"}
	svc := newTestService(repo, &fakeProducer{}, reserver, &fakeCoupons{},
		map[domain.Type]domain.Strategy{domain.TypeNormal: strategy})

	result, err := svc.PlaceOrder(context.Background(), &PlaceOrderCommand{
		MemberNo: "m-1", Type: domain.TypeNormal, SkuID: "sku-1", Quantity: 1,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(context.Background(), result.OrderNo))
	require.NoError(t, svc.Cancel(context.Background(), result.OrderNo), "cancel retry is a no-op")

	assert.Equal(t, []string{"rsv-42"}, reserver.released)
}
