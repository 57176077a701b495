// internal/service/promotion/application/service_test.go
package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"github.com/since-leoo/mine-shop-sub008/internal/service/promotion/domain"
	"github.com/since-leoo/mine-shop-sub008/internal/service/promotion/infrastructure"
)

type memCouponRepo struct {
	mu        sync.Mutex
	templates map[string]*domain.CouponTemplate
	grants    map[string]*domain.CouponGrant
	// (coupon_id, member_no, seq) 唯一键
	grantKeys map[string]struct{}
}

func newMemCouponRepo() *memCouponRepo {
	return &memCouponRepo{
		templates: make(map[string]*domain.CouponTemplate),
		grants:    make(map[string]*domain.CouponGrant),
		grantKeys: make(map[string]struct{}),
	}
}

func (r *memCouponRepo) CreateTemplate(_ context.Context, t *domain.CouponTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *t
	r.templates[t.ID] = &copied
	return nil
}

func (r *memCouponRepo) FindTemplate(_ context.Context, couponID string) (*domain.CouponTemplate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[couponID]
	if !ok {
		return nil, domain.ErrCouponNotFound
	}
	copied := *t
	return &copied, nil
}

func (r *memCouponRepo) IncrementIssued(_ context.Context, couponID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[couponID]
	if !ok || t.IssuedQuantity >= t.TotalQuantity {
		return false, nil
	}
	t.IssuedQuantity++
	return true, nil
}

func (r *memCouponRepo) DecrementIssued(_ context.Context, couponID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.templates[couponID]; ok && t.IssuedQuantity > 0 {
		t.IssuedQuantity--
	}
	return nil
}

func (r *memCouponRepo) CreateGrant(_ context.Context, g *domain.CouponGrant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%s/%s/%d", g.CouponID, g.MemberNo, g.Seq)
	if _, exists := r.grantKeys[key]; exists {
		return domain.ErrLimitExceeded
	}
	r.grantKeys[key] = struct{}{}
	copied := *g
	r.grants[g.GrantID] = &copied
	return nil
}

func (r *memCouponRepo) FindGrant(_ context.Context, grantID string) (*domain.CouponGrant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[grantID]
	if !ok {
		return nil, domain.ErrGrantNotFound
	}
	copied := *g
	return &copied, nil
}

func (r *memCouponRepo) CountGrantsByMember(_ context.Context, couponID, memberNo string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, g := range r.grants {
		if g.CouponID == couponID && g.MemberNo == memberNo {
			count++
		}
	}
	return count, nil
}

func (r *memCouponRepo) TransitionGrant(_ context.Context, grantID string, from, to domain.GrantStatus, orderNo string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.grants[grantID]
	if !ok || g.Status != from {
		return false, nil
	}
	g.Status = to
	if orderNo != "" {
		g.OrderNo = orderNo
	}
	return true, nil
}

func (r *memCouponRepo) ExpireGrants(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired int64
	for _, g := range r.grants {
		if g.Status == domain.GrantUnused && !now.Before(g.ValidUntil) {
			g.Status = domain.GrantExpired
			expired++
		}
	}
	return expired, nil
}

func newTestPromotion(t *testing.T) (*PromotionService, *memCouponRepo) {
	t.Helper()
	repo := newMemCouponRepo()
	rules, err := infrastructure.NewCelRuleEngine()
	require.NoError(t, err)
	return NewPromotionService(repo, rules, otel.Tracer("test")), repo
}

func issueTemplate(t *testing.T, svc *PromotionService, total, perUser int64, ruleExpr string) *domain.CouponTemplate {
	t.Helper()
	template, err := svc.CreateTemplate(context.Background(), &CreateTemplateCommand{
		Name:          "满100减20",
		Type:          domain.CouponFixed,
		Value:         decimal.NewFromInt(20),
		TotalQuantity: total,
		PerUserLimit:  perUser,
		RuleExpr:      ruleExpr,
		ValidFrom:     time.Now().Add(-time.Minute),
		ValidUntil:    time.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return template
}

func TestConcurrentReceiveRespectsTotalQuantity(t *testing.T) {
	svc, repo := newTestPromotion(t)
	template := issueTemplate(t, svc, 5, 1, "")

	const members = 20
	results := make(chan error, members)
	var wg sync.WaitGroup
	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Receive(context.Background(), template.ID, fmt.Sprintf("member-%d", i))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var received, issuedOut int
	for err := range results {
		switch {
		case err == nil:
			received++
		case assert.ErrorIs(t, err, domain.ErrIssuedOut):
			issuedOut++
		}
	}
	assert.Equal(t, 5, received, "exactly the total quantity may be issued")
	assert.Equal(t, 15, issuedOut)

	stored, err := repo.FindTemplate(context.Background(), template.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.IssuedQuantity)
}

func TestPerUserLimitUnderConcurrency(t *testing.T) {
	svc, repo := newTestPromotion(t)
	template := issueTemplate(t, svc, 100, 1, "")

	const attempts = 10
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Receive(context.Background(), template.ID, "member-1")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var received int
	for err := range results {
		if err == nil {
			received++
		} else {
			assert.ErrorIs(t, err, domain.ErrLimitExceeded)
		}
	}
	assert.Equal(t, 1, received, "one member must not exceed the per-user limit")

	// 被唯一键拦下的请求要把发放计数还回去
	stored, err := repo.FindTemplate(context.Background(), template.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.IssuedQuantity)
}

func TestReceiveOutsideIssueWindow(t *testing.T) {
	svc, _ := newTestPromotion(t)
	template, err := svc.CreateTemplate(context.Background(), &CreateTemplateCommand{
		Name:          "未开始",
		Type:          domain.CouponFixed,
		Value:         decimal.NewFromInt(5),
		TotalQuantity: 10,
		PerUserLimit:  1,
		ValidFrom:     time.Now().Add(time.Hour),
		ValidUntil:    time.Now().Add(2 * time.Hour),
	})
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), template.ID, "member-1")
	assert.ErrorIs(t, err, domain.ErrNotStarted)
}

func TestApplyToOrderFreezesAndComputesDiscount(t *testing.T) {
	svc, repo := newTestPromotion(t)
	template := issueTemplate(t, svc, 10, 1, "")
	grant, err := svc.Receive(context.Background(), template.ID, "member-1")
	require.NoError(t, err)

	app, err := svc.ApplyToOrder(context.Background(), grant.GrantID, "PO1", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "20", app.Discount.String())

	stored, err := repo.FindGrant(context.Background(), grant.GrantID)
	require.NoError(t, err)
	assert.Equal(t, domain.GrantFrozen, stored.Status)
	assert.Equal(t, "PO1", stored.OrderNo)

	// 补偿解冻
	app.Compensate(context.Background())
	stored, err = repo.FindGrant(context.Background(), grant.GrantID)
	require.NoError(t, err)
	assert.Equal(t, domain.GrantUnused, stored.Status)
}

func TestDiscountNeverExceedsOrderAmount(t *testing.T) {
	svc, _ := newTestPromotion(t)
	template := issueTemplate(t, svc, 10, 1, "")
	grant, err := svc.Receive(context.Background(), template.ID, "member-1")
	require.NoError(t, err)

	app, err := svc.ApplyToOrder(context.Background(), grant.GrantID, "PO1", decimal.NewFromInt(8))
	require.NoError(t, err)
	assert.Equal(t, "8", app.Discount.String())
}

func TestApplyToOrderRuleRejected(t *testing.T) {
	svc, _ := newTestPromotion(t)
	template := issueTemplate(t, svc, 10, 1, "orderAmount >= 100.0")
	grant, err := svc.Receive(context.Background(), template.ID, "member-1")
	require.NoError(t, err)

	_, err = svc.ApplyToOrder(context.Background(), grant.GrantID, "PO1", decimal.NewFromInt(99))
	assert.ErrorIs(t, err, domain.ErrRuleRejected)

	app, err := svc.ApplyToOrder(context.Background(), grant.GrantID, "PO2", decimal.NewFromInt(100))
	require.NoError(t, err)
	assert.Equal(t, "20", app.Discount.String())
}

func TestApplyToOrderSingleWinnerUnderConcurrency(t *testing.T) {
	svc, _ := newTestPromotion(t)
	template := issueTemplate(t, svc, 10, 1, "")
	grant, err := svc.Receive(context.Background(), template.ID, "member-1")
	require.NoError(t, err)

	const attempts = 8
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.ApplyToOrder(context.Background(), grant.GrantID, fmt.Sprintf("PO%d", i), decimal.NewFromInt(100))
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var won int
	for err := range results {
		if err == nil {
			won++
		} else {
			assert.ErrorIs(t, err, domain.ErrGrantNotUsable)
		}
	}
	assert.Equal(t, 1, won, "one grant can only be frozen by one order")
}

func TestMarkUsedIsIdempotent(t *testing.T) {
	svc, repo := newTestPromotion(t)
	template := issueTemplate(t, svc, 10, 1, "")
	grant, err := svc.Receive(context.Background(), template.ID, "member-1")
	require.NoError(t, err)
	_, err = svc.ApplyToOrder(context.Background(), grant.GrantID, "PO1", decimal.NewFromInt(100))
	require.NoError(t, err)

	require.NoError(t, svc.MarkUsed(context.Background(), grant.GrantID))
	require.NoError(t, svc.MarkUsed(context.Background(), grant.GrantID), "settlement replays must be no-ops")

	stored, err := repo.FindGrant(context.Background(), grant.GrantID)
	require.NoError(t, err)
	assert.Equal(t, domain.GrantUsed, stored.Status)
}

func TestExpireDueGrants(t *testing.T) {
	svc, repo := newTestPromotion(t)
	template := issueTemplate(t, svc, 10, 1, "")
	grant, err := svc.Receive(context.Background(), template.ID, "member-1")
	require.NoError(t, err)

	require.NoError(t, svc.ExpireDueGrants(context.Background(), time.Now().Add(2*time.Hour)))

	stored, err := repo.FindGrant(context.Background(), grant.GrantID)
	require.NoError(t, err)
	assert.Equal(t, domain.GrantExpired, stored.Status)

	_, err = svc.ApplyToOrder(context.Background(), grant.GrantID, "PO1", decimal.NewFromInt(100))
	assert.ErrorIs(t, err, domain.ErrGrantNotUsable)
}
