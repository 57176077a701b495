// internal/service/order/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/database"
	"github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
)

// GormOrderRepository 订单仓储的 GORM 实现。
// 所有方法通过 database.FromContext 取事务句柄，和策略的预占操作共享同一个事务。
type GormOrderRepository struct {
	db *gorm.DB
}

func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

func (r *GormOrderRepository) Create(ctx context.Context, order *domain.Order) error {
	db := database.FromContext(ctx, r.db)
	if err := db.WithContext(ctx).Create(toOrderModel(order)).Error; err != nil {
		return errors.Wrapf(err, "create order %s", order.OrderNo)
	}
	return nil
}

func (r *GormOrderRepository) FindByNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	db := database.FromContext(ctx, r.db)
	var m OrderModel
	err := db.WithContext(ctx).Where("order_no = ?", orderNo).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find order %s", orderNo)
	}
	return toDomainOrder(&m), nil
}

// TransitionStatus 状态 CAS。只有当前状态等于 from 时才更新，返回是否真的流转了。
func (r *GormOrderRepository) TransitionStatus(ctx context.Context, orderNo string, from, to domain.Status) (bool, error) {
	db := database.FromContext(ctx, r.db)
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now(),
	}
	if to == domain.StatusPaid {
		updates["paid_at"] = time.Now()
	}
	result := db.WithContext(ctx).Model(&OrderModel{}).
		Where("order_no = ? AND status = ?", orderNo, string(from)).
		Updates(updates)
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "transition order %s %s -> %s", orderNo, from, to)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormOrderRepository) MarkConfirmed(ctx context.Context, orderNo string) error {
	db := database.FromContext(ctx, r.db)
	err := db.WithContext(ctx).Model(&OrderModel{}).
		Where("order_no = ? AND confirmed = ?", orderNo, false).
		Updates(map[string]interface{}{"confirmed": true, "updated_at": time.Now()}).Error
	return errors.Wrapf(err, "mark order %s confirmed", orderNo)
}

func (r *GormOrderRepository) MarkRefundEligible(ctx context.Context, orderNo string) error {
	db := database.FromContext(ctx, r.db)
	err := db.WithContext(ctx).Model(&OrderModel{}).
		Where("order_no = ? AND refund_eligible = ?", orderNo, false).
		Updates(map[string]interface{}{"refund_eligible": true, "updated_at": time.Now()}).Error
	return errors.Wrapf(err, "mark order %s refund eligible", orderNo)
}

// CountPaidByMemberAndActivity 统计会员在活动下已占用的购买量。
// PENDING 也计入，否则同一用户可以在支付窗口内重复下单绕过限购。
func (r *GormOrderRepository) CountPaidByMemberAndActivity(ctx context.Context, memberNo, activityID string) (int64, error) {
	db := database.FromContext(ctx, r.db)
	var total int64
	err := db.WithContext(ctx).Model(&OrderModel{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("member_no = ? AND activity_id = ? AND status NOT IN ?",
			memberNo, activityID, []string{string(domain.StatusCancelled), string(domain.StatusRefunded)}).
		Scan(&total).Error
	if err != nil {
		return 0, errors.Wrapf(err, "count purchases member=%s activity=%s", memberNo, activityID)
	}
	return total, nil
}
