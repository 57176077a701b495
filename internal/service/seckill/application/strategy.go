// internal/service/seckill/application/strategy.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	orderapp "github.com/since-leoo/mine-shop-sub008/internal/service/order/application"
	orderdomain "github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
	"github.com/since-leoo/mine-shop-sub008/internal/service/seckill/domain"
)

// PaidOrderCounter 查会员在场次内已支付的累计件数。订单仓储满足它。
type PaidOrderCounter interface {
	CountPaidByMemberAndActivity(ctx context.Context, memberNo, activityID string) (int64, error)
}

// SeckillStrategy 秒杀订单策略。
// 流量先过 Redis 闸门（额度 + 单用户限购原子判定），过闸的请求才碰数据库账本。
// 闸门额度在事务之外，下单事务失败后必须退回去，退额度逻辑挂在补偿上。
type SeckillStrategy struct {
	service    *SeckillService
	sessions   domain.SessionRepository
	gate       domain.AdmissionGate
	paidOrders PaidOrderCounter
	reserver   orderapp.StockReserver
	tracer     trace.Tracer
}

func NewSeckillStrategy(service *SeckillService, sessions domain.SessionRepository, gate domain.AdmissionGate, paidOrders PaidOrderCounter, reserver orderapp.StockReserver, tracer trace.Tracer) *SeckillStrategy {
	return &SeckillStrategy{service: service, sessions: sessions, gate: gate, paidOrders: paidOrders, reserver: reserver, tracer: tracer}
}

func (s *SeckillStrategy) Validate(ctx context.Context, draft *orderdomain.OrderDraft) error {
	ctx, span := s.tracer.Start(ctx, "seckill.strategy.Validate")
	defer span.End()

	if draft.ActivityID == "" {
		return fmt.Errorf("seckill: activity id is required")
	}
	session, err := s.sessions.FindByID(ctx, draft.ActivityID)
	if err != nil {
		return err
	}
	if err := session.Purchasable(time.Now()); err != nil {
		return err
	}
	if session.SkuID != draft.SkuID {
		return fmt.Errorf("seckill: sku %s is not in session %s", draft.SkuID, session.ID)
	}
	if !session.WithinCap(draft.Quantity) {
		return domain.ErrCapExceeded
	}
	// 闸门键会过期，限购的持久兜底是数据库里的已付订单计数
	paid, err := s.paidOrders.CountPaidByMemberAndActivity(ctx, draft.MemberNo, draft.ActivityID)
	if err != nil {
		return err
	}
	if !session.WithinCap(paid + draft.Quantity) {
		return domain.ErrCapExceeded
	}
	return nil
}

func (s *SeckillStrategy) PriceLine(ctx context.Context, draft *orderdomain.OrderDraft) (*orderdomain.PricedLine, error) {
	session, err := s.sessions.FindByID(ctx, draft.ActivityID)
	if err != nil {
		return nil, err
	}
	qty := decimal.NewFromInt(draft.Quantity)
	return &orderdomain.PricedLine{
		SkuID:     draft.SkuID,
		Quantity:  draft.Quantity,
		UnitPrice: session.Price,
		Discount:  decimal.Zero,
		PayAmount: session.Price.Mul(qty),
	}, nil
}

// Reserve 先抢闸门额度，再在事务里预占账本。
// 账本预占失败时立刻退回闸门额度；预占成功后把退额度挂成补偿，
// 留给外层在订单事务整体失败时执行。
func (s *SeckillStrategy) Reserve(ctx context.Context, draft *orderdomain.OrderDraft) (*orderdomain.ReserveResult, error) {
	ctx, span := s.tracer.Start(ctx, "seckill.strategy.Reserve")
	defer span.End()

	session, err := s.sessions.FindByID(ctx, draft.ActivityID)
	if err != nil {
		return nil, err
	}

	remaining, err := s.gate.Admit(ctx, session.ID, draft.MemberNo, draft.Quantity, session.PerUserCap)
	if err != nil {
		if err == domain.ErrSoldOut {
			s.service.markSoldOut(ctx, session.ID)
		}
		return nil, err
	}
	if remaining == 0 {
		// 抢走最后额度的请求顺手把场次翻到售罄，不等下一个失败请求来触发
		s.service.markSoldOut(ctx, session.ID)
	}

	reservation, err := s.reserver.TryReserve(ctx, ResourceID(session.ID), draft.Quantity)
	if err != nil {
		if refundErr := s.gate.Refund(ctx, session.ID, draft.MemberNo, draft.Quantity); refundErr != nil {
			logger.Ctx(ctx).Error().Err(refundErr).
				Str("session_id", session.ID).
				Str("member_no", draft.MemberNo).
				Msg("🚨 refund gate quota failed after ledger rejection")
		}
		return nil, err
	}

	sessionID, memberNo, qty := session.ID, draft.MemberNo, draft.Quantity
	return &orderdomain.ReserveResult{
		ReservationID: reservation.ID,
		Compensate: func(ctx context.Context) {
			if err := s.gate.Refund(ctx, sessionID, memberNo, qty); err != nil {
				logger.Ctx(ctx).Error().Err(err).
					Str("session_id", sessionID).
					Str("member_no", memberNo).
					Msg("🚨 refund gate quota failed during compensation")
			}
		},
	}, nil
}
