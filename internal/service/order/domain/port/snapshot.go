// internal/service/order/domain/port/snapshot.go
package port

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrSkuNotFound 商品快照不存在。
var ErrSkuNotFound = errors.New("snapshot: sku not found")

// SkuSnapshot 是商品中心提供的只读快照：售价与基准库存。
type SkuSnapshot struct {
	SkuID     string
	Price     decimal.Decimal
	OnSale    bool
	StockBase int64
}

// SnapshotService 是商品/价格快照服务的出站端口。
// 商品中心是外部协作方，策略只读消费它的数据。
type SnapshotService interface {
	GetSkuSnapshot(ctx context.Context, skuID string) (*SkuSnapshot, error)
}
