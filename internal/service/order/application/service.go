// internal/service/order/application/service.go
package application

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	"github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
	"github.com/since-leoo/mine-shop-sub008/internal/service/order/domain/port"
)

var placeOrderCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mineshop",
	Subsystem: "order",
	Name:      "place_total",
	Help:      "Order placement attempts by type and outcome.",
}, []string{"order_type", "outcome"})

// OrderService 是下单编排器。
// 它不认识任何一种促销玩法，所有玩法差异都被策略注册表隔离在外。
type OrderService struct {
	registry *domain.StrategyRegistry
	repo     domain.OrderRepository
	producer domain.OrderEventProducer
	coupons  port.CouponService
	reserver StockReserver
	tx       TxRunner
	tracer   trace.Tracer
}

func NewOrderService(
	registry *domain.StrategyRegistry,
	repo domain.OrderRepository,
	producer domain.OrderEventProducer,
	coupons port.CouponService,
	reserver StockReserver,
	tx TxRunner,
	tracer trace.Tracer,
) *OrderService {
	return &OrderService{
		registry: registry,
		repo:     repo,
		producer: producer,
		coupons:  coupons,
		reserver: reserver,
		tx:       tx,
		tracer:   tracer,
	}
}

func newOrderNo() string {
	return "PO" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// PlaceOrder 执行一次下单：解析策略，在同一个事务里完成 校验/计价/预占/落单，
// 事务失败后执行策略登记的补偿，提交后发布 OrderCreated 事件。
func (s *OrderService) PlaceOrder(ctx context.Context, cmd *PlaceOrderCommand) (*PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.type", string(cmd.Type)),
		attribute.String("order.member_no", cmd.MemberNo),
		attribute.String("order.sku_id", cmd.SkuID),
	)

	strategy, err := s.registry.Resolve(cmd.Type)
	if err != nil {
		// 策略缺失是装配错误，打 Error 级别日志方便在部署后第一时间发现
		logger.Ctx(ctx).Error().Err(err).Str("order_type", string(cmd.Type)).Msg("no strategy registered for order type")
		placeOrderCounter.WithLabelValues(string(cmd.Type), "unsupported").Inc()
		return nil, err
	}

	draft := &domain.OrderDraft{
		OrderNo:       newOrderNo(),
		MemberNo:      cmd.MemberNo,
		Type:          cmd.Type,
		SkuID:         cmd.SkuID,
		Quantity:      cmd.Quantity,
		ActivityID:    cmd.ActivityID,
		GroupNo:       cmd.GroupNo,
		CouponGrantID: cmd.CouponGrantID,
	}
	span.SetAttributes(attribute.String("order.order_no", draft.OrderNo))

	var (
		order         *domain.Order
		compensations []domain.Compensation
	)
	txErr := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := strategy.Validate(ctx, draft); err != nil {
			return err
		}

		line, err := strategy.PriceLine(ctx, draft)
		if err != nil {
			return err
		}

		if draft.CouponGrantID != "" {
			app, err := s.coupons.ApplyToOrder(ctx, draft.CouponGrantID, draft.OrderNo, line.PayAmount)
			if err != nil {
				return err
			}
			if app.Compensate != nil {
				compensations = append(compensations, app.Compensate)
			}
			line.Discount = line.Discount.Add(app.Discount)
			line.PayAmount = line.PayAmount.Sub(app.Discount)
			if line.PayAmount.IsNegative() {
				line.PayAmount = decimal.Zero
			}
		}

		reserved, err := strategy.Reserve(ctx, draft)
		if err != nil {
			return err
		}
		if reserved.Compensate != nil {
			compensations = append(compensations, reserved.Compensate)
		}

		order, err = domain.NewOrder(draft, line, reserved.ReservationID)
		if err != nil {
			return err
		}
		return s.repo.Create(ctx, order)
	})
	if txErr != nil {
		// 事务已回滚，倒序执行补偿，归还事务外占用的资源（Redis 准入额度、冻结的券）
		for i := len(compensations) - 1; i >= 0; i-- {
			compensations[i](ctx)
		}
		placeOrderCounter.WithLabelValues(string(cmd.Type), "rejected").Inc()
		span.RecordError(txErr)
		span.SetStatus(codes.Error, "place order failed")
		return nil, txErr
	}

	event := &domain.OrderCreatedEvent{
		EventID:       uuid.New().String(),
		OrderNo:       order.OrderNo,
		MemberNo:      order.MemberNo,
		Type:          order.Type,
		SkuID:         order.SkuID,
		Quantity:      order.Quantity,
		ActivityID:    order.ActivityID,
		GroupNo:       order.GroupNo,
		ReservationID: order.ReservationID,
		CreatedAt:     order.CreatedAt,
	}
	if err := s.producer.ProduceOrderCreated(ctx, event); err != nil {
		// 订单已落库，事件发布失败不回滚下单，记错误等待对账补发
		logger.Ctx(ctx).Error().Err(err).Str("order_no", order.OrderNo).Msg("produce order created event failed")
	}

	placeOrderCounter.WithLabelValues(string(cmd.Type), "placed").Inc()
	logger.Ctx(ctx).Info().
		Str("order_no", order.OrderNo).
		Str("order_type", string(order.Type)).
		Str("pay_amount", order.PayAmount.String()).
		Msg("✅ order placed")
	return &PlaceOrderResult{
		OrderNo:   order.OrderNo,
		Status:    string(order.Status),
		PayAmount: order.PayAmount.String(),
	}, nil
}

// MarkPaid 处理支付成功回调。
// 状态推进是 CAS：并发重复回调只有一次能从 PENDING 走到 PAID，
// 已经是 PAID 的重复回调按幂等成功处理。
func (s *OrderService) MarkPaid(ctx context.Context, orderNo string) error {
	ctx, span := s.tracer.Start(ctx, "order.MarkPaid")
	defer span.End()
	span.SetAttributes(attribute.String("order.order_no", orderNo))

	ok, err := s.repo.TransitionStatus(ctx, orderNo, domain.StatusPending, domain.StatusPaid)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !ok {
		current, err := s.repo.FindByNo(ctx, orderNo)
		if err != nil {
			return err
		}
		if current.Status == domain.StatusPaid {
			span.AddEvent("order already paid, callback is a no-op")
			return nil
		}
		return domain.ErrInvalidTransition
	}

	order, err := s.repo.FindByNo(ctx, orderNo)
	if err != nil {
		return err
	}
	event := &domain.OrderPaidEvent{
		// EventID 由订单号派生：同一笔支付无论重发多少次，结算侧看到的都是同一个事件
		EventID:       "paid-" + orderNo,
		OrderNo:       order.OrderNo,
		MemberNo:      order.MemberNo,
		Type:          order.Type,
		ActivityID:    order.ActivityID,
		GroupNo:       order.GroupNo,
		ReservationID: order.ReservationID,
		CouponGrantID: order.CouponGrantID,
		PaidAt:        time.Now(),
	}
	if err := s.producer.ProduceOrderPaid(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order_no", orderNo).Msg("produce order paid event failed")
		return err
	}
	logger.Ctx(ctx).Info().Str("order_no", orderNo).Msg("order marked paid")
	return nil
}

// Cancel 取消一个待支付订单并归还库存预占。
// 预占释放是幂等的，取消重试不会双倍回补库存。
func (s *OrderService) Cancel(ctx context.Context, orderNo string) error {
	ctx, span := s.tracer.Start(ctx, "order.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("order.order_no", orderNo))

	ok, err := s.repo.TransitionStatus(ctx, orderNo, domain.StatusPending, domain.StatusCancelled)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !ok {
		current, err := s.repo.FindByNo(ctx, orderNo)
		if err != nil {
			return err
		}
		if current.Status == domain.StatusCancelled {
			return nil
		}
		return domain.ErrInvalidTransition
	}

	order, err := s.repo.FindByNo(ctx, orderNo)
	if err != nil {
		return err
	}
	if order.ReservationID != "" {
		if err := s.reserver.Release(ctx, order.ReservationID); err != nil {
			span.RecordError(err)
			return err
		}
	}
	logger.Ctx(ctx).Info().Str("order_no", orderNo).Msg("order cancelled")
	return nil
}

// Get 查询订单。
func (s *OrderService) Get(ctx context.Context, orderNo string) (*domain.Order, error) {
	return s.repo.FindByNo(ctx, orderNo)
}
