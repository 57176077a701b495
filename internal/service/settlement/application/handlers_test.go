// internal/service/settlement/application/handlers_test.go
package application

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gbdomain "github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/domain"
	orderdomain "github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
)

type memOrderRepo struct {
	mu     sync.Mutex
	orders map[string]*orderdomain.Order
}

func newMemOrderRepo() *memOrderRepo {
	return &memOrderRepo{orders: make(map[string]*orderdomain.Order)}
}

func (r *memOrderRepo) put(o *orderdomain.Order) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders[o.OrderNo] = o
}

func (r *memOrderRepo) Create(_ context.Context, o *orderdomain.Order) error {
	r.put(o)
	return nil
}

func (r *memOrderRepo) FindByNo(_ context.Context, orderNo string) (*orderdomain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNo]
	if !ok {
		return nil, orderdomain.ErrOrderNotFound
	}
	copied := *o
	return &copied, nil
}

func (r *memOrderRepo) TransitionStatus(_ context.Context, orderNo string, from, to orderdomain.Status) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[orderNo]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = to
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

func (r *memOrderRepo) CountPaidByMemberAndActivity(_ context.Context, _, _ string) (int64, error) {
	return 0, nil
}

type fakeStock struct {
	mu        sync.Mutex
	committed []string
	released  []string
}

func (f *fakeStock) Commit(_ context.Context, reservationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, reservationID)
	return nil
}

func (f *fakeStock) Release(_ context.Context, reservationID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, reservationID)
	return nil
}

type fakeCoupons struct {
	used []string
}

func (f *fakeCoupons) MarkUsed(_ context.Context, grantID string) error {
	f.used = append(f.used, grantID)
	return nil
}

func paidOrder(orderNo string, orderType orderdomain.Type) *orderdomain.Order {
	return &orderdomain.Order{
		OrderNo:       orderNo,
		MemberNo:      "m-1",
		Type:          orderType,
		Status:        orderdomain.StatusPaid,
		SkuID:         "sku-1",
		Quantity:      1,
		ReservationID: "rsv-" + orderNo,
	}
}

func TestOrderPaidHandlerCommitsNormalOrder(t *testing.T) {
	orders := newMemOrderRepo()
	stock := &fakeStock{}
	coupons := &fakeCoupons{}
	orders.put(paidOrder("PO1", orderdomain.TypeNormal))
	handler := NewOrderPaidHandler(orders, stock, coupons)

	payload, _ := json.Marshal(&orderdomain.OrderPaidEvent{
		EventID:       "paid-PO1",
		OrderNo:       "PO1",
		Type:          orderdomain.TypeNormal,
		ReservationID: "rsv-PO1",
		CouponGrantID: "grant-1",
		PaidAt:        time.Now(),
	})
	require.NoError(t, handler.Handle(context.Background(), "paid-PO1", payload))

	assert.Equal(t, []string{"rsv-PO1"}, stock.committed)
	assert.Equal(t, []string{"grant-1"}, coupons.used)
	stored, _ := orders.FindByNo(context.Background(), "PO1")
	assert.True(t, stored.Confirmed)
}

func TestOrderPaidHandlerDefersGroupBuy(t *testing.T) {
	orders := newMemOrderRepo()
	stock := &fakeStock{}
	orders.put(paidOrder("PO1", orderdomain.TypeGroupBuy))
	handler := NewOrderPaidHandler(orders, stock, &fakeCoupons{})

	payload, _ := json.Marshal(&orderdomain.OrderPaidEvent{
		EventID:       "paid-PO1",
		OrderNo:       "PO1",
		Type:          orderdomain.TypeGroupBuy,
		ReservationID: "rsv-PO1",
	})
	require.NoError(t, handler.Handle(context.Background(), "paid-PO1", payload))

	assert.Empty(t, stock.committed, "group buy stock commit waits for the group to settle")
	stored, _ := orders.FindByNo(context.Background(), "PO1")
	assert.False(t, stored.Confirmed)
}

func TestGroupSettledHandlerConfirmsSucceededGroup(t *testing.T) {
	orders := newMemOrderRepo()
	stock := &fakeStock{}
	orders.put(paidOrder("PO1", orderdomain.TypeGroupBuy))
	orders.put(paidOrder("PO2", orderdomain.TypeGroupBuy))
	handler := NewGroupSettledHandler(orders, stock)

	payload, _ := json.Marshal(&gbdomain.GroupSettledEvent{
		EventID:  "gbs-g1",
		GroupNo:  "g1",
		Status:   gbdomain.GroupSucceeded,
		OrderNos: []string{"PO1", "PO2"},
	})
	require.NoError(t, handler.Handle(context.Background(), "gbs-g1", payload))

	assert.ElementsMatch(t, []string{"rsv-PO1", "rsv-PO2"}, stock.committed)
	for _, no := range []string{"PO1", "PO2"} {
		stored, _ := orders.FindByNo(context.Background(), no)
		assert.True(t, stored.Confirmed, no)
	}
}

func TestGroupSettledHandlerReleasesFailedGroup(t *testing.T) {
	orders := newMemOrderRepo()
	stock := &fakeStock{}
	orders.put(paidOrder("PO1", orderdomain.TypeGroupBuy))
	handler := NewGroupSettledHandler(orders, stock)

	payload, _ := json.Marshal(&gbdomain.GroupSettledEvent{
		EventID:  "gbs-g1",
		GroupNo:  "g1",
		Status:   gbdomain.GroupFailed,
		OrderNos: []string{"PO1"},
	})
	require.NoError(t, handler.Handle(context.Background(), "gbs-g1", payload))

	assert.Equal(t, []string{"rsv-PO1"}, stock.released)
	assert.Empty(t, stock.committed)
	stored, _ := orders.FindByNo(context.Background(), "PO1")
	assert.True(t, stored.RefundEligible)
	assert.False(t, stored.Confirmed)
}

func TestGroupSettledHandlerSkipsCancelledOrder(t *testing.T) {
	orders := newMemOrderRepo()
	stock := &fakeStock{}
	cancelled := paidOrder("PO1", orderdomain.TypeGroupBuy)
	cancelled.Status = orderdomain.StatusCancelled
	orders.put(cancelled)
	orders.put(paidOrder("PO2", orderdomain.TypeGroupBuy))
	handler := NewGroupSettledHandler(orders, stock)

	payload, _ := json.Marshal(&gbdomain.GroupSettledEvent{
		EventID:  "gbs-g1",
		GroupNo:  "g1",
		Status:   gbdomain.GroupSucceeded,
		OrderNos: []string{"PO1", "PO2"},
	})
	require.NoError(t, handler.Handle(context.Background(), "gbs-g1", payload))

	// 取消订单的预占早已释放，不能再提交；已付订单照常确认
	assert.Equal(t, []string{"rsv-PO2"}, stock.committed)
	stored, _ := orders.FindByNo(context.Background(), "PO1")
	assert.False(t, stored.Confirmed)
	stored, _ = orders.FindByNo(context.Background(), "PO2")
	assert.True(t, stored.Confirmed)
}

func TestGroupSettledHandlerSkipsMissingOrder(t *testing.T) {
	orders := newMemOrderRepo()
	stock := &fakeStock{}
	orders.put(paidOrder("PO2", orderdomain.TypeGroupBuy))
	handler := NewGroupSettledHandler(orders, stock)

	payload, _ := json.Marshal(&gbdomain.GroupSettledEvent{
		EventID:  "gbs-g1",
		GroupNo:  "g1",
		Status:   gbdomain.GroupSucceeded,
		OrderNos: []string{"PO-missing", "PO2"},
	})
	require.NoError(t, handler.Handle(context.Background(), "gbs-g1", payload))

	assert.Equal(t, []string{"rsv-PO2"}, stock.committed)
}
