// internal/service/promotion/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/database"
	"github.com/since-leoo/mine-shop-sub008/internal/service/promotion/domain"
)

// GormCouponRepository 券仓储的 GORM 实现。
type GormCouponRepository struct {
	db *gorm.DB
}

func NewGormCouponRepository(db *gorm.DB) *GormCouponRepository {
	return &GormCouponRepository{db: db}
}

func (r *GormCouponRepository) CreateTemplate(ctx context.Context, template *domain.CouponTemplate) error {
	db := database.FromContext(ctx, r.db)
	if err := db.WithContext(ctx).Create(toTemplateModel(template)).Error; err != nil {
		return errors.Wrapf(err, "create coupon template %s", template.ID)
	}
	return nil
}

func (r *GormCouponRepository) FindTemplate(ctx context.Context, couponID string) (*domain.CouponTemplate, error) {
	db := database.FromContext(ctx, r.db)
	var m CouponTemplateModel
	err := db.WithContext(ctx).Where("coupon_id = ?", couponID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrCouponNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find coupon template %s", couponID)
	}
	return toDomainTemplate(&m), nil
}

func (r *GormCouponRepository) IncrementIssued(ctx context.Context, couponID string) (bool, error) {
	db := database.FromContext(ctx, r.db)
	result := db.WithContext(ctx).Model(&CouponTemplateModel{}).
		Where("coupon_id = ? AND issued_quantity < total_quantity", couponID).
		Updates(map[string]interface{}{
			"issued_quantity": gorm.Expr("issued_quantity + 1"),
			"updated_at":      time.Now(),
		})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "increment issued of coupon %s", couponID)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormCouponRepository) DecrementIssued(ctx context.Context, couponID string) error {
	db := database.FromContext(ctx, r.db)
	err := db.WithContext(ctx).Model(&CouponTemplateModel{}).
		Where("coupon_id = ? AND issued_quantity > 0", couponID).
		Updates(map[string]interface{}{
			"issued_quantity": gorm.Expr("issued_quantity - 1"),
			"updated_at":      time.Now(),
		}).Error
	return errors.Wrapf(err, "decrement issued of coupon %s", couponID)
}

func (r *GormCouponRepository) CreateGrant(ctx context.Context, grant *domain.CouponGrant) error {
	db := database.FromContext(ctx, r.db)
	err := db.WithContext(ctx).Create(toGrantModel(grant)).Error
	if err != nil && strings.Contains(err.Error(), "Duplicate entry") {
		return domain.ErrLimitExceeded
	}
	if err != nil {
		return errors.Wrapf(err, "create grant %s", grant.GrantID)
	}
	return nil
}

func (r *GormCouponRepository) FindGrant(ctx context.Context, grantID string) (*domain.CouponGrant, error) {
	db := database.FromContext(ctx, r.db)
	var m CouponGrantModel
	err := db.WithContext(ctx).Where("grant_id = ?", grantID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrGrantNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find grant %s", grantID)
	}
	return toDomainGrant(&m), nil
}

func (r *GormCouponRepository) CountGrantsByMember(ctx context.Context, couponID, memberNo string) (int64, error) {
	db := database.FromContext(ctx, r.db)
	var count int64
	err := db.WithContext(ctx).Model(&CouponGrantModel{}).
		Where("coupon_id = ? AND member_no = ?", couponID, memberNo).
		Count(&count).Error
	if err != nil {
		return 0, errors.Wrapf(err, "count grants coupon=%s member=%s", couponID, memberNo)
	}
	return count, nil
}

func (r *GormCouponRepository) TransitionGrant(ctx context.Context, grantID string, from, to domain.GrantStatus, orderNo string) (bool, error) {
	db := database.FromContext(ctx, r.db)
	updates := map[string]interface{}{
		"status":     string(to),
		"updated_at": time.Now(),
	}
	if orderNo != "" {
		updates["order_no"] = orderNo
	}
	result := db.WithContext(ctx).Model(&CouponGrantModel{}).
		Where("grant_id = ? AND status = ?", grantID, string(from)).
		Updates(updates)
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "transition grant %s %s -> %s", grantID, from, to)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormCouponRepository) ExpireGrants(ctx context.Context, now time.Time) (int64, error) {
	db := database.FromContext(ctx, r.db)
	result := db.WithContext(ctx).Model(&CouponGrantModel{}).
		Where("status = ? AND valid_until <= ?", string(domain.GrantUnused), now).
		Updates(map[string]interface{}{"status": string(domain.GrantExpired), "updated_at": time.Now()})
	if result.Error != nil {
		return 0, errors.Wrap(result.Error, "expire grants")
	}
	return result.RowsAffected, nil
}
