// internal/service/groupbuy/domain/event.go
package domain

import (
	"context"
	"time"
)

// GroupSettledEvent 团到达终态后发布，驱动订单确认或退款标记。
// EventID 由团号派生，结算扫描重跑时事件不变，消费侧按 EventID 去重。
type GroupSettledEvent struct {
	EventID    string      `json:"eventId"`
	GroupNo    string      `json:"groupNo"`
	ActivityID string      `json:"activityId"`
	Status     GroupStatus `json:"status"`
	OrderNos   []string    `json:"orderNos"`
	SettledAt  time.Time   `json:"settledAt"`
}

// GroupEventProducer 拼团事件出站端口。
type GroupEventProducer interface {
	ProduceGroupSettled(ctx context.Context, event *GroupSettledEvent) error
}
