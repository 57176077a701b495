// internal/service/seckill/infrastructure/models.go
package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/since-leoo/mine-shop-sub008/internal/service/seckill/domain"
)

// SessionModel 秒杀场次表。
type SessionModel struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement"`
	SessionID  string          `gorm:"column:session_id;type:varchar(64);uniqueIndex"`
	SkuID      string          `gorm:"column:sku_id;type:varchar(64);index"`
	Name       string          `gorm:"column:name;type:varchar(128)"`
	Price      decimal.Decimal `gorm:"column:price;type:decimal(10,2)"`
	TotalStock int64           `gorm:"column:total_stock"`
	PerUserCap int64           `gorm:"column:per_user_cap"`
	StartAt    time.Time       `gorm:"column:start_at;index:idx_status_start,priority:2"`
	EndAt      time.Time       `gorm:"column:end_at;index:idx_status_end,priority:2"`
	Status     string          `gorm:"column:status;type:varchar(16);index:idx_status_start,priority:1;index:idx_status_end,priority:1"`
	CreatedAt  time.Time       `gorm:"column:created_at"`
	UpdatedAt  time.Time       `gorm:"column:updated_at"`
}

func (SessionModel) TableName() string { return "seckill_sessions" }

func toSessionModel(s *domain.Session) *SessionModel {
	return &SessionModel{
		SessionID:  s.ID,
		SkuID:      s.SkuID,
		Name:       s.Name,
		Price:      s.Price,
		TotalStock: s.TotalStock,
		PerUserCap: s.PerUserCap,
		StartAt:    s.StartAt,
		EndAt:      s.EndAt,
		Status:     string(s.Status),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}
}

func toDomainSession(m *SessionModel) *domain.Session {
	return &domain.Session{
		ID:         m.SessionID,
		SkuID:      m.SkuID,
		Name:       m.Name,
		Price:      m.Price,
		TotalStock: m.TotalStock,
		PerUserCap: m.PerUserCap,
		StartAt:    m.StartAt,
		EndAt:      m.EndAt,
		Status:     domain.SessionStatus(m.Status),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}
