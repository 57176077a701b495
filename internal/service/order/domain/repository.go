// internal/service/order/domain/repository.go
package domain

import "context"

// OrderRepository 定义订单聚合的持久化接口，由基础设施层实现。
type OrderRepository interface {
	Create(ctx context.Context, order *Order) error
	FindByNo(ctx context.Context, orderNo string) (*Order, error)

	// TransitionStatus 状态 CAS：UPDATE ... SET status = to WHERE order_no = ? AND status = from。
	// 返回 false 表示订单已不处于 from 状态（并发支付回调/取消竞争时只有一个赢家）。
	TransitionStatus(ctx context.Context, orderNo string, from, to Status) (bool, error)

	// MarkConfirmed 拼团成团结算时确认订单，幂等（重复确认影响 0 行也返回 nil）。
	MarkConfirmed(ctx context.Context, orderNo string) error

	// MarkRefundEligible 拼团失败时标记订单可退款，幂等。退款执行由外部系统完成。
	MarkRefundEligible(ctx context.Context, orderNo string) error

	// CountPaidByMemberAndActivity 统计某会员在某活动下已占用的购买量（PENDING/PAID 都算），
	// 用于限购复核。
	CountPaidByMemberAndActivity(ctx context.Context, memberNo, activityID string) (int64, error)
}

// OrderEventProducer 是订单事件的出站端口，基础设施层用 Kafka 实现。
type OrderEventProducer interface {
	ProduceOrderCreated(ctx context.Context, event *OrderCreatedEvent) error
	ProduceOrderPaid(ctx context.Context, event *OrderPaidEvent) error
}
