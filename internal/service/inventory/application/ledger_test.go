package application

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/since-leoo/mine-shop-sub008/internal/service/inventory/domain"
)

// memInventoryRepo 以互斥锁模拟数据库行锁下的条件更新语义，
// 用于验证账本在任意并发交错下的不变式。
type memInventoryRepo struct {
	mu           sync.Mutex
	units        map[string]*domain.InventoryUnit
	reservations map[string]*domain.Reservation
}

func newMemInventoryRepo() *memInventoryRepo {
	return &memInventoryRepo{
		units:        make(map[string]*domain.InventoryUnit),
		reservations: make(map[string]*domain.Reservation),
	}
}

func (m *memInventoryRepo) FindUnit(_ context.Context, resourceID string) (*domain.InventoryUnit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[resourceID]
	if !ok {
		return nil, domain.ErrUnitNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memInventoryRepo) CreateUnit(_ context.Context, unit *domain.InventoryUnit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *unit
	m.units[unit.ResourceID] = &cp
	return nil
}

func (m *memInventoryRepo) ReserveQuantity(_ context.Context, resourceID string, qty int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[resourceID]
	if !ok {
		return false, nil
	}
	if u.ReservedQuantity+u.SoldQuantity+qty > u.TotalQuantity {
		return false, nil
	}
	u.ReservedQuantity += qty
	return true, nil
}

func (m *memInventoryRepo) CommitQuantity(_ context.Context, resourceID string, qty int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[resourceID]
	if !ok || u.ReservedQuantity < qty {
		return false, nil
	}
	u.ReservedQuantity -= qty
	u.SoldQuantity += qty
	return true, nil
}

func (m *memInventoryRepo) ReleaseQuantity(_ context.Context, resourceID string, qty int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.units[resourceID]
	if !ok || u.ReservedQuantity < qty {
		return false, nil
	}
	u.ReservedQuantity -= qty
	return true, nil
}

func (m *memInventoryRepo) CreateReservation(_ context.Context, res *domain.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *res
	m.reservations[res.ID] = &cp
	return nil
}

func (m *memInventoryRepo) FindReservation(_ context.Context, id string) (*domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok {
		return nil, domain.ErrReservationNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memInventoryRepo) TransitionReservation(_ context.Context, id string, from, to domain.ReservationStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok || r.Status != from {
		return false, nil
	}
	r.Status = to
	return true, nil
}

func newTestLedger(t *testing.T, total int64) (*Ledger, *memInventoryRepo) {
	t.Helper()
	repo := newMemInventoryRepo()
	require.NoError(t, repo.CreateUnit(context.Background(), &domain.InventoryUnit{
		ResourceID:    "sku-1001",
		TotalQuantity: total,
	}))
	return NewLedger(repo, otel.Tracer("test")), repo
}

func TestTryReserveOutOfStock(t *testing.T) {
	ledger, _ := newTestLedger(t, 2)
	ctx := context.Background()

	_, err := ledger.TryReserve(ctx, "sku-1001", 3)
	assert.ErrorIs(t, err, domain.ErrOutOfStock)

	res, err := ledger.TryReserve(ctx, "sku-1001", 2)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationReserved, res.Status)

	_, err = ledger.TryReserve(ctx, "sku-1001", 1)
	assert.ErrorIs(t, err, domain.ErrOutOfStock)
}

// 核心属性：total=N 时，任意并发交错下成功的预占数量之和不超过 N。
func TestConcurrentReserveNeverOversells(t *testing.T) {
	const total = 50
	const workers = 200
	ledger, repo := newTestLedger(t, total)
	ctx := context.Background()

	var wg sync.WaitGroup
	var succeeded, outOfStock int64
	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := ledger.TryReserve(ctx, "sku-1001", 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case err == domain.ErrOutOfStock:
				outOfStock++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(total), succeeded)
	assert.Equal(t, int64(workers-total), outOfStock)

	unit, err := repo.FindUnit(ctx, "sku-1001")
	require.NoError(t, err)
	assert.Equal(t, int64(total), unit.ReservedQuantity)
	assert.LessOrEqual(t, unit.ReservedQuantity+unit.SoldQuantity, unit.TotalQuantity)
}

func TestReleaseIsIdempotent(t *testing.T) {
	ledger, repo := newTestLedger(t, 5)
	ctx := context.Background()

	res, err := ledger.TryReserve(ctx, "sku-1001", 2)
	require.NoError(t, err)

	require.NoError(t, ledger.Release(ctx, res.ID))
	// 第二次释放是 no-op，账本不会被双倍回补
	require.NoError(t, ledger.Release(ctx, res.ID))

	unit, err := repo.FindUnit(ctx, "sku-1001")
	require.NoError(t, err)
	assert.Equal(t, int64(0), unit.ReservedQuantity)
	assert.Equal(t, int64(5), unit.Available())
}

func TestCommitMovesReservedToSold(t *testing.T) {
	ledger, repo := newTestLedger(t, 5)
	ctx := context.Background()

	res, err := ledger.TryReserve(ctx, "sku-1001", 3)
	require.NoError(t, err)
	require.NoError(t, ledger.Commit(ctx, res.ID))
	// 结算事件重投：重复提交是 no-op
	require.NoError(t, ledger.Commit(ctx, res.ID))

	unit, err := repo.FindUnit(ctx, "sku-1001")
	require.NoError(t, err)
	assert.Equal(t, int64(0), unit.ReservedQuantity)
	assert.Equal(t, int64(3), unit.SoldQuantity)
}

func TestCommitAfterReleaseIsRejected(t *testing.T) {
	ledger, _ := newTestLedger(t, 5)
	ctx := context.Background()

	res, err := ledger.TryReserve(ctx, "sku-1001", 1)
	require.NoError(t, err)
	require.NoError(t, ledger.Release(ctx, res.ID))

	assert.Error(t, ledger.Commit(ctx, res.ID))
}
