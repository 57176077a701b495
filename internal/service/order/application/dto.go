// internal/service/order/application/dto.go
package application

import (
	"context"

	invdomain "github.com/since-leoo/mine-shop-sub008/internal/service/inventory/domain"
	"github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
)

// PlaceOrderCommand 下单命令。
type PlaceOrderCommand struct {
	MemberNo      string      `json:"memberNo"`
	Type          domain.Type `json:"type"`
	SkuID         string      `json:"skuId"`
	Quantity      int64       `json:"quantity"`
	ActivityID    string      `json:"activityId,omitempty"`
	GroupNo       string      `json:"groupNo,omitempty"`
	CouponGrantID string      `json:"couponGrantId,omitempty"`
}

// PlaceOrderResult 下单结果。
type PlaceOrderResult struct {
	OrderNo   string `json:"orderNo"`
	Status    string `json:"status"`
	PayAmount string `json:"payAmount"`
}

// StockReserver 是订单编排对库存账本的依赖。*inventory/application.Ledger 满足它。
type StockReserver interface {
	TryReserve(ctx context.Context, resourceID string, qty int64) (*invdomain.Reservation, error)
	Release(ctx context.Context, reservationID string) error
}
