// internal/service/seckill/application/strategy_test.go
package application

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	invdomain "github.com/since-leoo/mine-shop-sub008/internal/service/inventory/domain"
	orderdomain "github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
	"github.com/since-leoo/mine-shop-sub008/internal/service/seckill/domain"
)

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*domain.Session)}
}

func (r *memSessionRepo) Create(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.sessions[s.ID] = &copied
	return nil
}

func (r *memSessionRepo) FindByID(_ context.Context, id string) (*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *memSessionRepo) TransitionStatus(_ context.Context, id string, from, to domain.SessionStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	return true, nil
}

func (r *memSessionRepo) FindDueForActivation(_ context.Context, now time.Time) ([]*domain.Session, error) {
	return r.findDue(domain.SessionPending, func(s *domain.Session) bool { return !s.StartAt.After(now) })
}

func (r *memSessionRepo) FindDueForEnd(_ context.Context, now time.Time) ([]*domain.Session, error) {
	return r.findDue(domain.SessionActive, func(s *domain.Session) bool { return !s.EndAt.After(now) })
}

func (r *memSessionRepo) findDue(status domain.SessionStatus, due func(*domain.Session) bool) ([]*domain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var result []*domain.Session
	for _, s := range r.sessions {
		if s.Status == status && due(s) {
			copied := *s
			result = append(result, &copied)
		}
	}
	return result, nil
}

// fakeGate 复刻 Lua 脚本的原子语义：额度判断和扣减在一把锁里完成。
type fakeGate struct {
	mu     sync.Mutex
	stock  map[string]int64
	used   map[string]int64
	primes int
}

func newFakeGate() *fakeGate {
	return &fakeGate{stock: make(map[string]int64), used: make(map[string]int64)}
}

func (g *fakeGate) Prime(_ context.Context, sessionID string, stock int64, _ time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.stock[sessionID]; ok {
		return nil
	}
	g.stock[sessionID] = stock
	g.primes++
	return nil
}

func (g *fakeGate) Admit(_ context.Context, sessionID, memberNo string, qty, cap int64) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	stock, ok := g.stock[sessionID]
	if !ok || stock < qty {
		return 0, domain.ErrSoldOut
	}
	key := sessionID + "/" + memberNo
	if g.used[key]+qty > cap {
		return 0, domain.ErrCapExceeded
	}
	g.stock[sessionID] -= qty
	g.used[key] += qty
	return g.stock[sessionID], nil
}

func (g *fakeGate) Refund(_ context.Context, sessionID, memberNo string, qty int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := sessionID + "/" + memberNo
	if g.used[key] <= 0 {
		return nil
	}
	if qty > g.used[key] {
		qty = g.used[key]
	}
	g.used[key] -= qty
	// 已 Drain 的场次不回写库存键
	if _, ok := g.stock[sessionID]; ok {
		g.stock[sessionID] += qty
	}
	return nil
}

func (g *fakeGate) Drain(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.stock, sessionID)
	return nil
}

// memReserver 复刻账本的条件更新语义。
type memReserver struct {
	mu       sync.Mutex
	total    map[string]int64
	reserved map[string]int64
	seq      int
	failAll  bool
}

func newMemReserver() *memReserver {
	return &memReserver{total: make(map[string]int64), reserved: make(map[string]int64)}
}

func (m *memReserver) TryReserve(_ context.Context, resourceID string, qty int64) (*invdomain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAll {
		return nil, invdomain.ErrOutOfStock
	}
	if m.reserved[resourceID]+qty > m.total[resourceID] {
		return nil, invdomain.ErrOutOfStock
	}
	m.reserved[resourceID] += qty
	m.seq++
	return &invdomain.Reservation{ID: "rsv-" + resourceID, ResourceID: resourceID, Quantity: qty}, nil
}

func (m *memReserver) Release(_ context.Context, _ string) error { return nil }

func (m *memReserver) Provision(_ context.Context, resourceID string, total int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.total[resourceID] = total
	return nil
}

func activeSession(id string, stock, cap int64) *domain.Session {
	now := time.Now()
	return &domain.Session{
		ID:         id,
		SkuID:      "sku-1",
		Price:      decimal.NewFromInt(99),
		TotalStock: stock,
		PerUserCap: cap,
		StartAt:    now.Add(-time.Minute),
		EndAt:      now.Add(time.Hour),
		Status:     domain.SessionActive,
	}
}

// fakePaidCounter 固定返回已付件数，模拟订单仓储的持久计数。
type fakePaidCounter struct {
	paid int64
}

func (c *fakePaidCounter) CountPaidByMemberAndActivity(_ context.Context, _, _ string) (int64, error) {
	return c.paid, nil
}

func newTestStrategy(repo *memSessionRepo, gate *fakeGate, reserver *memReserver) *SeckillStrategy {
	tracer := otel.Tracer("test")
	service := NewSeckillService(repo, gate, reserver, tracer)
	return NewSeckillStrategy(service, repo, gate, &fakePaidCounter{}, reserver, tracer)
}

func TestConcurrentPurchaseNeverOversells(t *testing.T) {
	repo := newMemSessionRepo()
	gate := newFakeGate()
	reserver := newMemReserver()
	session := activeSession("s-1", 5, 1)
	require.NoError(t, repo.Create(context.Background(), session))
	require.NoError(t, reserver.Provision(context.Background(), ResourceID("s-1"), 5))
	require.NoError(t, gate.Prime(context.Background(), "s-1", 5, time.Hour))

	strategy := newTestStrategy(repo, gate, reserver)

	const buyers = 10
	results := make(chan error, buyers)
	var wg sync.WaitGroup
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			draft := &orderdomain.OrderDraft{
				OrderNo:    "PO-" + string(rune('a'+i)),
				MemberNo:   "member-" + string(rune('a'+i)),
				Type:       orderdomain.TypeSeckill,
				SkuID:      "sku-1",
				Quantity:   1,
				ActivityID: "s-1",
			}
			if err := strategy.Validate(context.Background(), draft); err != nil {
				results <- err
				return
			}
			_, err := strategy.Reserve(context.Background(), draft)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var won, soldOut int
	for err := range results {
		switch {
		case err == nil:
			won++
		case assert.ErrorIs(t, err, domain.ErrSoldOut):
			soldOut++
		}
	}
	assert.Equal(t, 5, won, "exactly the session stock must be admitted")
	assert.Equal(t, 5, soldOut)

	// 售罄后场次状态被翻到 SOLD_OUT
	stored, err := repo.FindByID(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionSoldOut, stored.Status)
}

func TestPerUserCapAcrossOrders(t *testing.T) {
	repo := newMemSessionRepo()
	gate := newFakeGate()
	reserver := newMemReserver()
	require.NoError(t, repo.Create(context.Background(), activeSession("s-1", 10, 2)))
	require.NoError(t, reserver.Provision(context.Background(), ResourceID("s-1"), 10))
	require.NoError(t, gate.Prime(context.Background(), "s-1", 10, time.Hour))

	strategy := newTestStrategy(repo, gate, reserver)
	draft := &orderdomain.OrderDraft{
		MemberNo: "member-1", Type: orderdomain.TypeSeckill,
		SkuID: "sku-1", Quantity: 1, ActivityID: "s-1",
	}

	_, err := strategy.Reserve(context.Background(), draft)
	require.NoError(t, err)
	_, err = strategy.Reserve(context.Background(), draft)
	require.NoError(t, err)

	// 第三次跨单累计超过限购
	_, err = strategy.Reserve(context.Background(), draft)
	assert.ErrorIs(t, err, domain.ErrCapExceeded)
}

func TestReserveRefundsGateWhenLedgerRejects(t *testing.T) {
	repo := newMemSessionRepo()
	gate := newFakeGate()
	reserver := newMemReserver()
	reserver.failAll = true
	require.NoError(t, repo.Create(context.Background(), activeSession("s-1", 5, 5)))
	require.NoError(t, gate.Prime(context.Background(), "s-1", 5, time.Hour))

	strategy := newTestStrategy(repo, gate, reserver)
	draft := &orderdomain.OrderDraft{
		MemberNo: "member-1", Type: orderdomain.TypeSeckill,
		SkuID: "sku-1", Quantity: 2, ActivityID: "s-1",
	}

	_, err := strategy.Reserve(context.Background(), draft)
	require.Error(t, err)

	gate.mu.Lock()
	defer gate.mu.Unlock()
	assert.Equal(t, int64(5), gate.stock["s-1"], "gate quota must be refunded after ledger rejection")
	assert.Equal(t, int64(0), gate.used["s-1/member-1"])
}

func TestExhaustingAdmitFlipsSoldOut(t *testing.T) {
	repo := newMemSessionRepo()
	gate := newFakeGate()
	reserver := newMemReserver()
	require.NoError(t, repo.Create(context.Background(), activeSession("s-1", 1, 1)))
	require.NoError(t, reserver.Provision(context.Background(), ResourceID("s-1"), 1))
	require.NoError(t, gate.Prime(context.Background(), "s-1", 1, time.Hour))

	strategy := newTestStrategy(repo, gate, reserver)
	draft := &orderdomain.OrderDraft{
		MemberNo: "member-1", Type: orderdomain.TypeSeckill,
		SkuID: "sku-1", Quantity: 1, ActivityID: "s-1",
	}

	// 抢走最后一件的请求本身成功，不需要等后续失败请求来触发翻转
	_, err := strategy.Reserve(context.Background(), draft)
	require.NoError(t, err)

	stored, err := repo.FindByID(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionSoldOut, stored.Status)
}

func TestValidateEnforcesDurableCap(t *testing.T) {
	repo := newMemSessionRepo()
	require.NoError(t, repo.Create(context.Background(), activeSession("s-1", 10, 2)))

	tracer := otel.Tracer("test")
	gate := newFakeGate()
	reserver := newMemReserver()
	service := NewSeckillService(repo, gate, reserver, tracer)
	// 数据库里已经有 2 件已付订单，闸门键就算过期也不能再放行
	strategy := NewSeckillStrategy(service, repo, gate, &fakePaidCounter{paid: 2}, reserver, tracer)

	err := strategy.Validate(context.Background(), &orderdomain.OrderDraft{
		MemberNo: "member-1", SkuID: "sku-1", Quantity: 1, ActivityID: "s-1",
	})
	assert.ErrorIs(t, err, domain.ErrCapExceeded)
}

func TestRefundAfterDrainDoesNotRecreateStock(t *testing.T) {
	gate := newFakeGate()
	require.NoError(t, gate.Prime(context.Background(), "s-1", 5, time.Hour))
	_, err := gate.Admit(context.Background(), "s-1", "member-1", 1, 1)
	require.NoError(t, err)
	require.NoError(t, gate.Drain(context.Background(), "s-1"))

	require.NoError(t, gate.Refund(context.Background(), "s-1", "member-1", 1))

	gate.mu.Lock()
	defer gate.mu.Unlock()
	_, exists := gate.stock["s-1"]
	assert.False(t, exists, "a refund after drain must not recreate the stock key")
	assert.Equal(t, int64(0), gate.used["s-1/member-1"])
}

func TestValidateRejectsInactiveSession(t *testing.T) {
	repo := newMemSessionRepo()
	session := activeSession("s-1", 5, 1)
	session.Status = domain.SessionPending
	require.NoError(t, repo.Create(context.Background(), session))

	strategy := newTestStrategy(repo, newFakeGate(), newMemReserver())
	err := strategy.Validate(context.Background(), &orderdomain.OrderDraft{
		MemberNo: "m-1", SkuID: "sku-1", Quantity: 1, ActivityID: "s-1",
	})
	assert.ErrorIs(t, err, domain.ErrSessionNotActive)
}

func TestActivateDueSessionsPrimesGateOnce(t *testing.T) {
	repo := newMemSessionRepo()
	gate := newFakeGate()
	reserver := newMemReserver()
	session := activeSession("s-1", 5, 1)
	session.Status = domain.SessionPending
	require.NoError(t, repo.Create(context.Background(), session))

	service := NewSeckillService(repo, gate, reserver, otel.Tracer("test"))

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, service.ActivateDueSessions(context.Background(), time.Now()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, gate.primes, "concurrent sweeps must prime the gate exactly once")
	stored, err := repo.FindByID(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionActive, stored.Status)
}

func TestEndDueSessionsDrainsGate(t *testing.T) {
	repo := newMemSessionRepo()
	gate := newFakeGate()
	session := activeSession("s-1", 5, 1)
	session.EndAt = time.Now().Add(-time.Minute)
	require.NoError(t, repo.Create(context.Background(), session))
	require.NoError(t, gate.Prime(context.Background(), "s-1", 5, time.Hour))

	service := NewSeckillService(repo, gate, newMemReserver(), otel.Tracer("test"))
	require.NoError(t, service.EndDueSessions(context.Background(), time.Now()))

	stored, err := repo.FindByID(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionEnded, stored.Status)

	gate.mu.Lock()
	defer gate.mu.Unlock()
	_, primed := gate.stock["s-1"]
	assert.False(t, primed, "gate keys must be drained when the session ends")
}
