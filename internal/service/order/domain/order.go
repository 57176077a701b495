// internal/service/order/domain/order.go
package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Type 是订单类型，决定下单时走哪个策略。
type Type string

const (
	TypeNormal   Type = "NORMAL"
	TypeSeckill  Type = "SECKILL"
	TypeGroupBuy Type = "GROUP_BUY"
)

var (
	// ErrOrderNotFound 订单不存在。
	ErrOrderNotFound = errors.New("order: not found")
	// ErrInvalidTransition 非法的状态流转。
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrUnsupportedOrderType 订单类型没有注册对应策略，属于配置错误而非用户可见失败。
	ErrUnsupportedOrderType = errors.New("order: unsupported order type")
)

// Order 是订单聚合根。
// 活动/拼团只保留弱引用 id，不做级联；预占单 id 记录在订单上，结算时据此提交库存。
type Order struct {
	OrderNo       string
	MemberNo      string
	Type          Type
	Status        Status
	SkuID         string
	Quantity      int64
	UnitPrice     decimal.Decimal
	Discount      decimal.Decimal
	PayAmount     decimal.Decimal
	ActivityID    string
	GroupNo       string
	ReservationID string
	CouponGrantID string
	// Confirmed 表示拼团成团后订单已被结算确认
	Confirmed bool
	// RefundEligible 表示拼团失败后订单已被标记为可退款（退款执行是外部协作方）
	RefundEligible bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PaidAt         time.Time
}

// NewOrder 根据计价结果创建一个待支付订单。
func NewOrder(draft *OrderDraft, line *PricedLine, reservationID string) (*Order, error) {
	if draft.OrderNo == "" || draft.MemberNo == "" || draft.SkuID == "" {
		return nil, errors.New("order: draft missing required fields")
	}
	if draft.Quantity <= 0 {
		return nil, errors.New("order: quantity must be positive")
	}
	now := time.Now()
	return &Order{
		OrderNo:       draft.OrderNo,
		MemberNo:      draft.MemberNo,
		Type:          draft.Type,
		Status:        StatusPending,
		SkuID:         draft.SkuID,
		Quantity:      draft.Quantity,
		UnitPrice:     line.UnitPrice,
		Discount:      line.Discount,
		PayAmount:     line.PayAmount,
		ActivityID:    draft.ActivityID,
		GroupNo:       draft.GroupNo,
		ReservationID: reservationID,
		CouponGrantID: draft.CouponGrantID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Transition 在聚合上执行一次状态流转，非法流转返回 ErrInvalidTransition。
// 持久化层还会用同样的条件再做一次 CAS，聚合校验只是第一道闸。
func (o *Order) Transition(to Status) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	if to == StatusPaid {
		o.PaidAt = o.UpdatedAt
	}
	return nil
}
