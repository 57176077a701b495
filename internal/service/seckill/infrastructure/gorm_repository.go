// internal/service/seckill/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/database"
	"github.com/since-leoo/mine-shop-sub008/internal/service/seckill/domain"
)

// GormSessionRepository 秒杀场次仓储的 GORM 实现。
type GormSessionRepository struct {
	db *gorm.DB
}

func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	db := database.FromContext(ctx, r.db)
	if err := db.WithContext(ctx).Create(toSessionModel(session)).Error; err != nil {
		return errors.Wrapf(err, "create seckill session %s", session.ID)
	}
	return nil
}

func (r *GormSessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	db := database.FromContext(ctx, r.db)
	var m SessionModel
	err := db.WithContext(ctx).Where("session_id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find seckill session %s", id)
	}
	return toDomainSession(&m), nil
}

func (r *GormSessionRepository) TransitionStatus(ctx context.Context, id string, from, to domain.SessionStatus) (bool, error) {
	db := database.FromContext(ctx, r.db)
	result := db.WithContext(ctx).Model(&SessionModel{}).
		Where("session_id = ? AND status = ?", id, string(from)).
		Updates(map[string]interface{}{"status": string(to), "updated_at": time.Now()})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "transition session %s %s -> %s", id, from, to)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormSessionRepository) FindDueForActivation(ctx context.Context, now time.Time) ([]*domain.Session, error) {
	return r.findByStatusAndDeadline(ctx, domain.SessionPending, "start_at <= ?", now)
}

func (r *GormSessionRepository) FindDueForEnd(ctx context.Context, now time.Time) ([]*domain.Session, error) {
	sessions, err := r.findByStatusAndDeadline(ctx, domain.SessionActive, "end_at <= ?", now)
	if err != nil {
		return nil, err
	}
	soldOut, err := r.findByStatusAndDeadline(ctx, domain.SessionSoldOut, "end_at <= ?", now)
	if err != nil {
		return nil, err
	}
	return append(sessions, soldOut...), nil
}

func (r *GormSessionRepository) findByStatusAndDeadline(ctx context.Context, status domain.SessionStatus, cond string, now time.Time) ([]*domain.Session, error) {
	db := database.FromContext(ctx, r.db)
	var models []SessionModel
	err := db.WithContext(ctx).
		Where("status = ?", string(status)).
		Where(cond, now).
		Limit(200).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "find %s sessions", status)
	}
	sessions := make([]*domain.Session, 0, len(models))
	for i := range models {
		sessions = append(sessions, toDomainSession(&models[i]))
	}
	return sessions, nil
}
