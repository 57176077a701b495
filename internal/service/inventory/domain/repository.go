// internal/service/inventory/domain/repository.go
package domain

import "context"

// Repository 定义库存账本的持久化原语。
// 所有数量变更都必须是"带条件的单条更新"：实现层用
// UPDATE ... WHERE <不变式仍然成立> 表达，返回是否真的改到了行。
// 行级锁让并发预占在存储层自然串行化，这是跨进程互斥唯一可靠的手段。
type Repository interface {
	FindUnit(ctx context.Context, resourceID string) (*InventoryUnit, error)
	CreateUnit(ctx context.Context, unit *InventoryUnit) error

	// ReserveQuantity 预占数量：
	// UPDATE ... SET reserved = reserved + qty WHERE reserved + sold + qty <= total。
	// 返回 false 表示条件不满足（库存不足），没有任何变更。
	ReserveQuantity(ctx context.Context, resourceID string, qty int64) (bool, error)

	// CommitQuantity 预占转实售：reserved -= qty, sold += qty WHERE reserved >= qty。
	CommitQuantity(ctx context.Context, resourceID string, qty int64) (bool, error)

	// ReleaseQuantity 归还预占：reserved -= qty WHERE reserved >= qty。
	ReleaseQuantity(ctx context.Context, resourceID string, qty int64) (bool, error)

	CreateReservation(ctx context.Context, res *Reservation) error
	FindReservation(ctx context.Context, id string) (*Reservation, error)

	// TransitionReservation 预占单状态 CAS：UPDATE ... SET status = to WHERE id = ? AND status = from。
	// 返回 false 表示预占单已不处于 from 状态。
	TransitionReservation(ctx context.Context, id string, from, to ReservationStatus) (bool, error)
}
