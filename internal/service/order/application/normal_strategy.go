// internal/service/order/application/normal_strategy.go
package application

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"

	"github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
	"github.com/since-leoo/mine-shop-sub008/internal/service/order/domain/port"
)

// 普通订单单笔限购，防止脚本扫货
const maxNormalQuantityPerOrder = 50

// NormalStrategy 普通订单策略：按商品快照原价售卖，库存直接走账本预占。
type NormalStrategy struct {
	snapshot port.SnapshotService
	reserver StockReserver
	tracer   trace.Tracer
}

func NewNormalStrategy(snapshot port.SnapshotService, reserver StockReserver, tracer trace.Tracer) *NormalStrategy {
	return &NormalStrategy{snapshot: snapshot, reserver: reserver, tracer: tracer}
}

func (s *NormalStrategy) Validate(ctx context.Context, draft *domain.OrderDraft) error {
	ctx, span := s.tracer.Start(ctx, "order.normal.Validate")
	defer span.End()

	if draft.Quantity <= 0 || draft.Quantity > maxNormalQuantityPerOrder {
		return fmt.Errorf("order: quantity %d out of range [1, %d]", draft.Quantity, maxNormalQuantityPerOrder)
	}
	snap, err := s.snapshot.GetSkuSnapshot(ctx, draft.SkuID)
	if err != nil {
		return err
	}
	if !snap.OnSale {
		return fmt.Errorf("order: sku %s is not on sale", draft.SkuID)
	}
	return nil
}

func (s *NormalStrategy) PriceLine(ctx context.Context, draft *domain.OrderDraft) (*domain.PricedLine, error) {
	snap, err := s.snapshot.GetSkuSnapshot(ctx, draft.SkuID)
	if err != nil {
		return nil, err
	}
	qty := decimal.NewFromInt(draft.Quantity)
	return &domain.PricedLine{
		SkuID:     draft.SkuID,
		Quantity:  draft.Quantity,
		UnitPrice: snap.Price,
		Discount:  decimal.Zero,
		PayAmount: snap.Price.Mul(qty),
	}, nil
}

// Reserve 在当前事务里预占账本库存。
// 预占本身在事务内，事务回滚即自动归还，不需要额外补偿。
func (s *NormalStrategy) Reserve(ctx context.Context, draft *domain.OrderDraft) (*domain.ReserveResult, error) {
	reservation, err := s.reserver.TryReserve(ctx, "sku:"+draft.SkuID, draft.Quantity)
	if err != nil {
		return nil, err
	}
	return &domain.ReserveResult{ReservationID: reservation.ID}, nil
}
