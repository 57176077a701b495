// internal/service/promotion/application/service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	orderport "github.com/since-leoo/mine-shop-sub008/internal/service/order/domain/port"
	"github.com/since-leoo/mine-shop-sub008/internal/service/promotion/domain"
)

var couponCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mineshop",
	Subsystem: "promotion",
	Name:      "coupon_events_total",
	Help:      "Coupon guard events by kind.",
}, []string{"kind"})

// CreateTemplateCommand 创建券模板。
type CreateTemplateCommand struct {
	Name          string            `json:"name"`
	Type          domain.CouponType `json:"type"`
	Value         decimal.Decimal   `json:"value"`
	TotalQuantity int64             `json:"totalQuantity"`
	PerUserLimit  int64             `json:"perUserLimit"`
	RuleExpr      string            `json:"ruleExpr,omitempty"`
	ValidFrom     time.Time         `json:"validFrom"`
	ValidUntil    time.Time         `json:"validUntil"`
}

// PromotionService 优惠券发放与核销。
// 发放走 计数条件加一 + (coupon_id, member_no, seq) 唯一键 双保险：
// 计数挡总量，唯一键挡并发下的单人超领。
type PromotionService struct {
	repo   domain.CouponRepository
	rules  domain.RuleEngine
	tracer trace.Tracer
}

func NewPromotionService(repo domain.CouponRepository, rules domain.RuleEngine, tracer trace.Tracer) *PromotionService {
	return &PromotionService{repo: repo, rules: rules, tracer: tracer}
}

// CreateTemplate 创建券模板，版本从 1 起。
func (s *PromotionService) CreateTemplate(ctx context.Context, cmd *CreateTemplateCommand) (*domain.CouponTemplate, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.CreateTemplate")
	defer span.End()

	// 规则表达式在创建时就编译一遍，写错的规则不让入库
	if cmd.RuleExpr != "" {
		if _, err := s.rules.Evaluate(ctx, cmd.RuleExpr, map[string]interface{}{
			"orderAmount": 0.0, "memberNo": "", "quantity": int64(0),
		}); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	template := &domain.CouponTemplate{
		ID:            uuid.New().String(),
		Name:          cmd.Name,
		Version:       1,
		Type:          cmd.Type,
		Value:         cmd.Value,
		TotalQuantity: cmd.TotalQuantity,
		PerUserLimit:  cmd.PerUserLimit,
		RuleExpr:      cmd.RuleExpr,
		ValidFrom:     cmd.ValidFrom,
		ValidUntil:    cmd.ValidUntil,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	span.SetAttributes(attribute.String("promotion.coupon_id", template.ID))
	if err := s.repo.CreateTemplate(ctx, template); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().
		Str("coupon_id", template.ID).
		Int64("total_quantity", template.TotalQuantity).
		Msg("coupon template created")
	return template, nil
}

// Receive 领券。
// 先做总量条件加一，再按 已领数+1 作为 seq 写领取记录；并发下两个请求算出同一个
// seq 时唯一键拦下后来者，计数回滚。
func (s *PromotionService) Receive(ctx context.Context, couponID, memberNo string) (*domain.CouponGrant, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.Receive")
	defer span.End()
	span.SetAttributes(
		attribute.String("promotion.coupon_id", couponID),
		attribute.String("promotion.member_no", memberNo),
	)

	template, err := s.repo.FindTemplate(ctx, couponID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := template.InIssueWindow(now); err != nil {
		return nil, err
	}

	count, err := s.repo.CountGrantsByMember(ctx, couponID, memberNo)
	if err != nil {
		return nil, err
	}
	if count >= template.PerUserLimit {
		couponCounter.WithLabelValues("limit_exceeded").Inc()
		return nil, domain.ErrLimitExceeded
	}

	ok, err := s.repo.IncrementIssued(ctx, couponID)
	if err != nil {
		return nil, err
	}
	if !ok {
		couponCounter.WithLabelValues("issued_out").Inc()
		return nil, domain.ErrIssuedOut
	}

	grant := &domain.CouponGrant{
		GrantID:       uuid.New().String(),
		CouponID:      couponID,
		CouponVersion: template.Version,
		MemberNo:      memberNo,
		Seq:           count + 1,
		Status:        domain.GrantUnused,
		ValidUntil:    template.ValidUntil,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.repo.CreateGrant(ctx, grant); err != nil {
		// 领取记录没写进去，发放计数还回去
		if rollbackErr := s.repo.DecrementIssued(ctx, couponID); rollbackErr != nil {
			logger.Ctx(ctx).Error().Err(rollbackErr).
				Str("coupon_id", couponID).
				Msg("🚨 roll back issued count failed")
		}
		if err == domain.ErrLimitExceeded {
			couponCounter.WithLabelValues("limit_exceeded").Inc()
		}
		return nil, err
	}

	couponCounter.WithLabelValues("received").Inc()
	logger.Ctx(ctx).Info().
		Str("coupon_id", couponID).
		Str("grant_id", grant.GrantID).
		Str("member_no", memberNo).
		Msg("coupon received")
	return grant, nil
}

// ApplyToOrder 下单用券：校验可用性和规则，冻结并计算抵扣。
// 返回的补偿在订单事务失败后解冻券。实现订单域的 CouponService 端口。
func (s *PromotionService) ApplyToOrder(ctx context.Context, grantID, orderNo string, orderAmount decimal.Decimal) (*orderport.CouponApplication, error) {
	ctx, span := s.tracer.Start(ctx, "promotion.ApplyToOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("promotion.grant_id", grantID),
		attribute.String("promotion.order_no", orderNo),
	)

	grant, err := s.repo.FindGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if err := grant.Usable(now); err != nil {
		return nil, err
	}
	template, err := s.repo.FindTemplate(ctx, grant.CouponID)
	if err != nil {
		return nil, err
	}

	amount, _ := orderAmount.Float64()
	pass, err := s.rules.Evaluate(ctx, template.RuleExpr, map[string]interface{}{
		"orderAmount": amount,
		"memberNo":    grant.MemberNo,
		"quantity":    int64(1),
	})
	if err != nil {
		return nil, err
	}
	if !pass {
		couponCounter.WithLabelValues("rule_rejected").Inc()
		return nil, domain.ErrRuleRejected
	}

	ok, err := s.repo.TransitionGrant(ctx, grantID, domain.GrantUnused, domain.GrantFrozen, orderNo)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 可用性预检和冻结之间被并发下单抢先
		return nil, domain.ErrGrantNotUsable
	}

	couponCounter.WithLabelValues("frozen").Inc()
	return &orderport.CouponApplication{
		Discount: template.DiscountFor(orderAmount),
		Compensate: func(ctx context.Context) {
			if err := s.Unfreeze(ctx, grantID); err != nil {
				logger.Ctx(ctx).Error().Err(err).
					Str("grant_id", grantID).
					Msg("🚨 unfreeze grant failed during compensation")
			}
		},
	}, nil
}

// MarkUsed 核销冻结中的券，结算消费者调用。幂等：已核销的重复调用是 no-op。
func (s *PromotionService) MarkUsed(ctx context.Context, grantID string) error {
	ok, err := s.repo.TransitionGrant(ctx, grantID, domain.GrantFrozen, domain.GrantUsed, "")
	if err != nil {
		return err
	}
	if !ok {
		grant, err := s.repo.FindGrant(ctx, grantID)
		if err != nil {
			return err
		}
		if grant.Status == domain.GrantUsed {
			return nil
		}
		return domain.ErrGrantNotUsable
	}
	couponCounter.WithLabelValues("used").Inc()
	return nil
}

// Unfreeze 解冻券，订单取消或下单失败补偿时调用。幂等。
func (s *PromotionService) Unfreeze(ctx context.Context, grantID string) error {
	ok, err := s.repo.TransitionGrant(ctx, grantID, domain.GrantFrozen, domain.GrantUnused, "")
	if err != nil {
		return err
	}
	if ok {
		couponCounter.WithLabelValues("unfrozen").Inc()
	}
	return nil
}

// ExpireDueGrants 过期扫描，调度任务入口。
func (s *PromotionService) ExpireDueGrants(ctx context.Context, now time.Time) error {
	expired, err := s.repo.ExpireGrants(ctx, now)
	if err != nil {
		return err
	}
	if expired > 0 {
		logger.Ctx(ctx).Info().Int64("count", expired).Msg("coupon grants expired")
	}
	return nil
}

// GetGrant 查询领取记录。
func (s *PromotionService) GetGrant(ctx context.Context, grantID string) (*domain.CouponGrant, error) {
	return s.repo.FindGrant(ctx, grantID)
}
