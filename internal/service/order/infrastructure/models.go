// internal/service/order/infrastructure/models.go
package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
)

// OrderModel 订单表。金额列用 decimal(10,2)，避免浮点。
type OrderModel struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement"`
	OrderNo        string          `gorm:"column:order_no;type:varchar(64);uniqueIndex"`
	MemberNo       string          `gorm:"column:member_no;type:varchar(64);index:idx_member_activity,priority:1"`
	OrderType      string          `gorm:"column:order_type;type:varchar(16)"`
	Status         string          `gorm:"column:status;type:varchar(24);index"`
	SkuID          string          `gorm:"column:sku_id;type:varchar(64)"`
	Quantity       int64           `gorm:"column:quantity"`
	UnitPrice      decimal.Decimal `gorm:"column:unit_price;type:decimal(10,2)"`
	Discount       decimal.Decimal `gorm:"column:discount;type:decimal(10,2)"`
	PayAmount      decimal.Decimal `gorm:"column:pay_amount;type:decimal(10,2)"`
	ActivityID     string          `gorm:"column:activity_id;type:varchar(64);index:idx_member_activity,priority:2"`
	GroupNo        string          `gorm:"column:group_no;type:varchar(64);index"`
	ReservationID  string          `gorm:"column:reservation_id;type:varchar(64)"`
	CouponGrantID  string          `gorm:"column:coupon_grant_id;type:varchar(64)"`
	Confirmed      bool            `gorm:"column:confirmed"`
	RefundEligible bool            `gorm:"column:refund_eligible"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
	PaidAt         *time.Time      `gorm:"column:paid_at"`
}

func (OrderModel) TableName() string { return "promo_orders" }

func toOrderModel(o *domain.Order) *OrderModel {
	m := &OrderModel{
		OrderNo:        o.OrderNo,
		MemberNo:       o.MemberNo,
		OrderType:      string(o.Type),
		Status:         string(o.Status),
		SkuID:          o.SkuID,
		Quantity:       o.Quantity,
		UnitPrice:      o.UnitPrice,
		Discount:       o.Discount,
		PayAmount:      o.PayAmount,
		ActivityID:     o.ActivityID,
		GroupNo:        o.GroupNo,
		ReservationID:  o.ReservationID,
		CouponGrantID:  o.CouponGrantID,
		Confirmed:      o.Confirmed,
		RefundEligible: o.RefundEligible,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
	if !o.PaidAt.IsZero() {
		paidAt := o.PaidAt
		m.PaidAt = &paidAt
	}
	return m
}

func toDomainOrder(m *OrderModel) *domain.Order {
	o := &domain.Order{
		OrderNo:        m.OrderNo,
		MemberNo:       m.MemberNo,
		Type:           domain.Type(m.OrderType),
		Status:         domain.Status(m.Status),
		SkuID:          m.SkuID,
		Quantity:       m.Quantity,
		UnitPrice:      m.UnitPrice,
		Discount:       m.Discount,
		PayAmount:      m.PayAmount,
		ActivityID:     m.ActivityID,
		GroupNo:        m.GroupNo,
		ReservationID:  m.ReservationID,
		CouponGrantID:  m.CouponGrantID,
		Confirmed:      m.Confirmed,
		RefundEligible: m.RefundEligible,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
	if m.PaidAt != nil {
		o.PaidAt = *m.PaidAt
	}
	return o
}
