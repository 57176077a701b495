// internal/pkg/database/database.go
package database

import (
	"context"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open 建立 MySQL 连接池。促销核心的写路径都是短事务，连接数不需要太大。
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

type txKey struct{}

// Transaction 在一个数据库事务中执行 fn，并把事务句柄塞进 ctx。
// 各仓储通过 FromContext 取事务句柄，从而让"校验 + 预占 + 建单"落在同一个事务里，
// 任何一步失败整体回滚。
func Transaction(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

type detachedTx struct{}

// Detach 返回一个不携带事务句柄的 ctx。
// 给"事务回滚也要留下"的旁路写入用，比如售罄状态翻转。
func Detach(ctx context.Context) context.Context {
	return context.WithValue(ctx, txKey{}, detachedTx{})
}

// FromContext 返回 ctx 中的事务句柄；不在事务中时返回默认连接。
func FromContext(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx
	}
	return db.WithContext(ctx)
}
