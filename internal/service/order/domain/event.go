// internal/service/order/domain/event.go
package domain

import "time"

// OrderCreatedEvent 在下单事务提交后发布。
type OrderCreatedEvent struct {
	EventID       string    `json:"eventId"`
	OrderNo       string    `json:"orderNo"`
	MemberNo      string    `json:"memberNo"`
	Type          Type      `json:"type"`
	SkuID         string    `json:"skuId"`
	Quantity      int64     `json:"quantity"`
	ActivityID    string    `json:"activityId,omitempty"`
	GroupNo       string    `json:"groupNo,omitempty"`
	ReservationID string    `json:"reservationId"`
	CreatedAt     time.Time `json:"createdAt"`
}

// OrderPaidEvent 在订单支付成功后发布，驱动结算流水线。
// 投递语义是 at-least-once：EventID 由订单号派生，同一笔支付重投时 EventID 不变，
// 结算侧据此去重。
type OrderPaidEvent struct {
	EventID       string    `json:"eventId"`
	OrderNo       string    `json:"orderNo"`
	MemberNo      string    `json:"memberNo"`
	Type          Type      `json:"type"`
	ActivityID    string    `json:"activityId,omitempty"`
	GroupNo       string    `json:"groupNo,omitempty"`
	ReservationID string    `json:"reservationId"`
	CouponGrantID string    `json:"couponGrantId,omitempty"`
	PaidAt        time.Time `json:"paidAt"`
}
