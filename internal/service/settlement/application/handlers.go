// internal/service/settlement/application/handlers.go
package application

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	gbdomain "github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/domain"
	orderdomain "github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
)

// StockSettler 结算侧对库存账本的依赖。*inventory/application.Ledger 满足它。
type StockSettler interface {
	Commit(ctx context.Context, reservationID string) error
	Release(ctx context.Context, reservationID string) error
}

// CouponSettler 结算侧对优惠域的依赖。*promotion/application.PromotionService 满足它。
type CouponSettler interface {
	MarkUsed(ctx context.Context, grantID string) error
}

// OrderPaidHandler 消费支付事件：核销券；非拼团订单直接提交库存并确认。
// 拼团订单的库存提交等成团结算，这里不动。
type OrderPaidHandler struct {
	orders  orderdomain.OrderRepository
	stock   StockSettler
	coupons CouponSettler
}

func NewOrderPaidHandler(orders orderdomain.OrderRepository, stock StockSettler, coupons CouponSettler) *OrderPaidHandler {
	return &OrderPaidHandler{orders: orders, stock: stock, coupons: coupons}
}

func (h *OrderPaidHandler) Name() string { return "order-paid-settlement" }

func (h *OrderPaidHandler) Handle(ctx context.Context, eventID string, payload []byte) error {
	var event orderdomain.OrderPaidEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return errors.Wrap(err, "unmarshal order paid event")
	}

	if event.CouponGrantID != "" {
		if err := h.coupons.MarkUsed(ctx, event.CouponGrantID); err != nil {
			return err
		}
	}

	if event.Type == orderdomain.TypeGroupBuy {
		logger.Ctx(ctx).Debug().
			Str("order_no", event.OrderNo).
			Msg("group buy order paid, settlement deferred until the group settles")
		return nil
	}

	if event.ReservationID != "" {
		if err := h.stock.Commit(ctx, event.ReservationID); err != nil {
			return err
		}
	}
	if err := h.orders.MarkConfirmed(ctx, event.OrderNo); err != nil {
		return err
	}
	logger.Ctx(ctx).Info().
		Str("order_no", event.OrderNo).
		Str("event_id", eventID).
		Msg("order settled after payment")
	return nil
}

// GroupSettledHandler 消费拼团终态事件。
// 成团：确认团内订单并提交库存预占；失败：标记可退款并释放预占。
// 底层的确认/提交/释放全部幂等，事件重投不会重复结算。
type GroupSettledHandler struct {
	orders orderdomain.OrderRepository
	stock  StockSettler
}

func NewGroupSettledHandler(orders orderdomain.OrderRepository, stock StockSettler) *GroupSettledHandler {
	return &GroupSettledHandler{orders: orders, stock: stock}
}

func (h *GroupSettledHandler) Name() string { return "groupbuy-settlement" }

func (h *GroupSettledHandler) Handle(ctx context.Context, eventID string, payload []byte) error {
	var event gbdomain.GroupSettledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return errors.Wrap(err, "unmarshal group settled event")
	}

	for _, orderNo := range event.OrderNos {
		order, err := h.orders.FindByNo(ctx, orderNo)
		if errors.Is(err, orderdomain.ErrOrderNotFound) {
			// 下单事务回滚但团员记录先于事件生成的情况不存在；真丢单属于数据问题，记下来继续
			logger.Ctx(ctx).Error().Str("order_no", orderNo).Str("group_no", event.GroupNo).Msg("🚨 order missing during group settlement")
			continue
		}
		if err != nil {
			return err
		}
		if order.Status == orderdomain.StatusCancelled {
			// 取消时预占已释放，团位不回收但结算对这笔订单不再有事可做
			logger.Ctx(ctx).Info().
				Str("order_no", orderNo).
				Str("group_no", event.GroupNo).
				Msg("cancelled order skipped during group settlement")
			continue
		}

		switch event.Status {
		case gbdomain.GroupSucceeded:
			if err := h.stock.Commit(ctx, order.ReservationID); err != nil {
				return err
			}
			if err := h.orders.MarkConfirmed(ctx, orderNo); err != nil {
				return err
			}
		case gbdomain.GroupFailed:
			if err := h.stock.Release(ctx, order.ReservationID); err != nil {
				return err
			}
			if err := h.orders.MarkRefundEligible(ctx, orderNo); err != nil {
				return err
			}
		}
	}

	logger.Ctx(ctx).Info().
		Str("group_no", event.GroupNo).
		Str("status", string(event.Status)).
		Int("orders", len(event.OrderNos)).
		Str("event_id", eventID).
		Msg("✅ group settled")
	return nil
}
