// internal/service/groupbuy/application/strategy.go
package application

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/domain"
	invdomain "github.com/since-leoo/mine-shop-sub008/internal/service/inventory/domain"
	orderapp "github.com/since-leoo/mine-shop-sub008/internal/service/order/application"
	orderdomain "github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
)

// GroupBuyStrategy 拼团订单策略。
// GroupNo 为空表示开团，否则参团；每单固定一件，按团购价计价。
// 开团/占位和库存预占都在下单事务里，任何一步失败整体回滚，不会出现占了团位
// 却没有订单的悬挂团员。
type GroupBuyStrategy struct {
	service    *GroupBuyService
	activities domain.ActivityRepository
	reserver   orderapp.StockReserver
	tracer     trace.Tracer
}

func NewGroupBuyStrategy(service *GroupBuyService, activities domain.ActivityRepository, reserver orderapp.StockReserver, tracer trace.Tracer) *GroupBuyStrategy {
	return &GroupBuyStrategy{service: service, activities: activities, reserver: reserver, tracer: tracer}
}

func (s *GroupBuyStrategy) Validate(ctx context.Context, draft *orderdomain.OrderDraft) error {
	ctx, span := s.tracer.Start(ctx, "groupbuy.strategy.Validate")
	defer span.End()

	if draft.ActivityID == "" {
		return fmt.Errorf("groupbuy: activity id is required")
	}
	if draft.Quantity != 1 {
		return fmt.Errorf("groupbuy: quantity must be 1, got %d", draft.Quantity)
	}
	activity, err := s.activities.FindByID(ctx, draft.ActivityID)
	if err != nil {
		return err
	}
	if err := activity.Joinable(time.Now()); err != nil {
		return err
	}
	if activity.SkuID != draft.SkuID {
		return fmt.Errorf("groupbuy: sku %s is not in activity %s", draft.SkuID, activity.ID)
	}
	return nil
}

func (s *GroupBuyStrategy) PriceLine(ctx context.Context, draft *orderdomain.OrderDraft) (*orderdomain.PricedLine, error) {
	activity, err := s.activities.FindByID(ctx, draft.ActivityID)
	if err != nil {
		return nil, err
	}
	return &orderdomain.PricedLine{
		SkuID:     draft.SkuID,
		Quantity:  draft.Quantity,
		UnitPrice: activity.GroupPrice,
		Discount:  decimal.Zero,
		PayAmount: activity.GroupPrice,
	}, nil
}

// Reserve 先预占活动库存，再开团或占团位。
// 全部动作都在事务内，失败即回滚，不需要额外补偿。
func (s *GroupBuyStrategy) Reserve(ctx context.Context, draft *orderdomain.OrderDraft) (*orderdomain.ReserveResult, error) {
	ctx, span := s.tracer.Start(ctx, "groupbuy.strategy.Reserve")
	defer span.End()

	activity, err := s.activities.FindByID(ctx, draft.ActivityID)
	if err != nil {
		return nil, err
	}

	reservation, err := s.reserver.TryReserve(ctx, ResourceID(activity.ID), draft.Quantity)
	if err != nil {
		if errors.Is(err, invdomain.ErrOutOfStock) {
			// 活动库存抢光，翻到 SOLD_OUT 挡住后续请求
			s.service.markSoldOut(ctx, activity.ID)
			return nil, domain.ErrSoldOut
		}
		return nil, err
	}

	if draft.GroupNo == "" {
		group, err := s.service.OpenGroup(ctx, activity, draft.MemberNo, draft.OrderNo)
		if err != nil {
			return nil, err
		}
		// 回写团号，订单行上带着自己所在的团
		draft.GroupNo = group.GroupNo
	} else {
		if _, err := s.service.JoinGroup(ctx, draft.GroupNo, draft.MemberNo, draft.OrderNo); err != nil {
			return nil, err
		}
	}
	return &orderdomain.ReserveResult{ReservationID: reservation.ID}, nil
}
