// internal/service/seckill/domain/session.go
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// SessionStatus 秒杀场次状态。
type SessionStatus string

const (
	SessionPending SessionStatus = "PENDING"
	SessionActive  SessionStatus = "ACTIVE"
	SessionSoldOut SessionStatus = "SOLD_OUT"
	SessionEnded   SessionStatus = "ENDED"
)

var (
	// ErrSessionNotFound 场次不存在。
	ErrSessionNotFound = errors.New("seckill: session not found")
	// ErrSessionNotActive 场次不在可购状态（未开始/已结束/已售罄）。
	ErrSessionNotActive = errors.New("seckill: session not active")
	// ErrSoldOut 场次库存已被抢光。
	ErrSoldOut = errors.New("seckill: sold out")
	// ErrCapExceeded 超过单用户限购。
	ErrCapExceeded = errors.New("seckill: per-user cap exceeded")
)

// Session 秒杀场次聚合。
// TotalStock 是场次专属库存，和商品基准库存互相独立；
// PerUserCap 是整个场次内的累计限购，不是单笔限购。
type Session struct {
	ID         string
	SkuID      string
	Name       string
	Price      decimal.Decimal
	TotalStock int64
	PerUserCap int64
	StartAt    time.Time
	EndAt      time.Time
	Status     SessionStatus
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Purchasable 判断当前时刻能否在该场次下单。
// 状态与时间窗都要满足：ACTIVE 但时间已越界同样拒绝，激活任务可能尚未跑到。
func (s *Session) Purchasable(now time.Time) error {
	if s.Status != SessionActive {
		return ErrSessionNotActive
	}
	if now.Before(s.StartAt) || !now.Before(s.EndAt) {
		return ErrSessionNotActive
	}
	return nil
}

// WithinCap 判断一次购买量是否超出单用户限购。
func (s *Session) WithinCap(qty int64) bool {
	return qty > 0 && qty <= s.PerUserCap
}
