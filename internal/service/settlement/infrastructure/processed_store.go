// internal/service/settlement/infrastructure/processed_store.go
package infrastructure

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/database"
)

// ProcessedEventModel 事件处理去重表。
type ProcessedEventModel struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement"`
	EventID     string    `gorm:"column:event_id;type:varchar(128);uniqueIndex:uk_event_handler,priority:1"`
	HandlerName string    `gorm:"column:handler_name;type:varchar(64);uniqueIndex:uk_event_handler,priority:2"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
}

func (ProcessedEventModel) TableName() string { return "settlement_processed_events" }

// GormProcessedStore 去重表的 GORM 实现。
type GormProcessedStore struct {
	db *gorm.DB
}

func NewGormProcessedStore(db *gorm.DB) *GormProcessedStore {
	return &GormProcessedStore{db: db}
}

func (s *GormProcessedStore) Processed(ctx context.Context, eventID, handler string) (bool, error) {
	db := database.FromContext(ctx, s.db)
	var count int64
	err := db.WithContext(ctx).Model(&ProcessedEventModel{}).
		Where("event_id = ? AND handler_name = ?", eventID, handler).
		Count(&count).Error
	if err != nil {
		return false, errors.Wrapf(err, "check processed event %s/%s", eventID, handler)
	}
	return count > 0, nil
}

func (s *GormProcessedStore) MarkProcessed(ctx context.Context, eventID, handler string) error {
	db := database.FromContext(ctx, s.db)
	err := db.WithContext(ctx).Create(&ProcessedEventModel{
		EventID:     eventID,
		HandlerName: handler,
		ProcessedAt: time.Now(),
	}).Error
	// 并发重投时另一个消费者刚落了记录，按已处理对待
	if err != nil && strings.Contains(err.Error(), "Duplicate entry") {
		return nil
	}
	return errors.Wrapf(err, "mark event %s/%s processed", eventID, handler)
}
