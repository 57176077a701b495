// internal/service/inventory/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/database"
	"github.com/since-leoo/mine-shop-sub008/internal/service/inventory/domain"
)

// GormInventoryRepository 是 domain.Repository 的 GORM 实现。
// 数量变更全部走条件 UPDATE + RowsAffected 判定，读操作不参与任何决策。
type GormInventoryRepository struct {
	db *gorm.DB
}

func NewGormInventoryRepository(db *gorm.DB) *GormInventoryRepository {
	return &GormInventoryRepository{db: db}
}

func (r *GormInventoryRepository) conn(ctx context.Context) *gorm.DB {
	return database.FromContext(ctx, r.db)
}

func (r *GormInventoryRepository) FindUnit(ctx context.Context, resourceID string) (*domain.InventoryUnit, error) {
	var model InventoryUnitModel
	err := r.conn(ctx).Where("resource_id = ?", resourceID).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUnitNotFound
		}
		return nil, errors.Wrap(err, "find inventory unit")
	}
	return toDomainUnit(&model), nil
}

func (r *GormInventoryRepository) CreateUnit(ctx context.Context, unit *domain.InventoryUnit) error {
	model := InventoryUnitModel{
		ResourceID:       unit.ResourceID,
		TotalQuantity:    unit.TotalQuantity,
		ReservedQuantity: unit.ReservedQuantity,
		SoldQuantity:     unit.SoldQuantity,
	}
	return errors.Wrap(r.conn(ctx).Create(&model).Error, "create inventory unit")
}

func (r *GormInventoryRepository) ReserveQuantity(ctx context.Context, resourceID string, qty int64) (bool, error) {
	// 单条条件更新。WHERE 里重述不变式，行锁保证并发预占串行化，永不超卖。
	res := r.conn(ctx).Model(&InventoryUnitModel{}).
		Where("resource_id = ? AND reserved_quantity + sold_quantity + ? <= total_quantity", resourceID, qty).
		Update("reserved_quantity", gorm.Expr("reserved_quantity + ?", qty))
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "reserve quantity")
	}
	return res.RowsAffected > 0, nil
}

func (r *GormInventoryRepository) CommitQuantity(ctx context.Context, resourceID string, qty int64) (bool, error) {
	res := r.conn(ctx).Model(&InventoryUnitModel{}).
		Where("resource_id = ? AND reserved_quantity >= ?", resourceID, qty).
		Updates(map[string]interface{}{
			"reserved_quantity": gorm.Expr("reserved_quantity - ?", qty),
			"sold_quantity":     gorm.Expr("sold_quantity + ?", qty),
		})
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "commit quantity")
	}
	return res.RowsAffected > 0, nil
}

func (r *GormInventoryRepository) ReleaseQuantity(ctx context.Context, resourceID string, qty int64) (bool, error) {
	res := r.conn(ctx).Model(&InventoryUnitModel{}).
		Where("resource_id = ? AND reserved_quantity >= ?", resourceID, qty).
		Update("reserved_quantity", gorm.Expr("reserved_quantity - ?", qty))
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "release quantity")
	}
	return res.RowsAffected > 0, nil
}

func (r *GormInventoryRepository) CreateReservation(ctx context.Context, reservation *domain.Reservation) error {
	model := ReservationModel{
		ID:         reservation.ID,
		ResourceID: reservation.ResourceID,
		Quantity:   reservation.Quantity,
		Status:     string(reservation.Status),
	}
	return errors.Wrap(r.conn(ctx).Create(&model).Error, "create reservation")
}

func (r *GormInventoryRepository) FindReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	var model ReservationModel
	err := r.conn(ctx).Where("id = ?", id).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrReservationNotFound
		}
		return nil, errors.Wrap(err, "find reservation")
	}
	return toDomainReservation(&model), nil
}

func (r *GormInventoryRepository) TransitionReservation(ctx context.Context, id string, from, to domain.ReservationStatus) (bool, error) {
	res := r.conn(ctx).Model(&ReservationModel{}).
		Where("id = ? AND status = ?", id, string(from)).
		Update("status", string(to))
	if res.Error != nil {
		return false, errors.Wrap(res.Error, "transition reservation")
	}
	return res.RowsAffected > 0, nil
}
