// internal/service/order/domain/port/coupon.go
package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// CouponApplication 是一次优惠券抵扣的结果。
type CouponApplication struct {
	Discount decimal.Decimal
	// Compensate 回滚本次抵扣（解冻券），在下单事务失败后调用。
	Compensate func(ctx context.Context)
}

// CouponService 是优惠域暴露给订单编排的出站端口。
type CouponService interface {
	// ApplyToOrder 校验并冻结一张已领取的优惠券，返回抵扣金额。
	ApplyToOrder(ctx context.Context, grantID, orderNo string, orderAmount decimal.Decimal) (*CouponApplication, error)
}
