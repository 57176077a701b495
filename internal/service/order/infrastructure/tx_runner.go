// internal/service/order/infrastructure/tx_runner.go
package infrastructure

import (
	"context"

	"gorm.io/gorm"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/database"
)

// GormTxRunner 用 GORM 事务实现应用层的 TxRunner。
// 事务句柄写进 ctx，事务内所有仓储调用都落在同一个连接上。
type GormTxRunner struct {
	db *gorm.DB
}

func NewGormTxRunner(db *gorm.DB) *GormTxRunner {
	return &GormTxRunner{db: db}
}

func (r *GormTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.Transaction(ctx, r.db, fn)
}
