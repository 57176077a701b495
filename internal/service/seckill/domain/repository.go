// internal/service/seckill/domain/repository.go
package domain

import (
	"context"
	"time"
)

// SessionRepository 秒杀场次持久化接口。
type SessionRepository interface {
	Create(ctx context.Context, session *Session) error
	FindByID(ctx context.Context, id string) (*Session, error)

	// TransitionStatus 场次状态 CAS。并发的激活/结束任务里只有一个实例能改到行。
	TransitionStatus(ctx context.Context, id string, from, to SessionStatus) (bool, error)

	// FindByStatusDue 找出状态为 status 且截止时间已到（deadline 按状态取 start_at 或
	// end_at）的场次，供调度任务扫描。
	FindDueForActivation(ctx context.Context, now time.Time) ([]*Session, error)
	FindDueForEnd(ctx context.Context, now time.Time) ([]*Session, error)
}

// AdmissionGate 是秒杀准入闸门的出站端口，Redis Lua 实现。
// 闸门只负责挡流量：额度判断和扣减原子完成，真正的库存账本在数据库里。
type AdmissionGate interface {
	// Prime 在场次激活时装载额度。幂等：已装载过的场次不会被重置。
	Prime(ctx context.Context, sessionID string, stock int64, ttl time.Duration) error
	// Admit 申请准入额度，返回扣减后的剩余额度。
	// 库存不足返回 ErrSoldOut，超限购返回 ErrCapExceeded；
	// 返回 0 表示这笔请求拿走了最后的额度。
	Admit(ctx context.Context, sessionID, memberNo string, qty, perUserCap int64) (int64, error)
	// Refund 归还准入额度，下单事务失败后的补偿。多退不会把库存抬过装载值。
	Refund(ctx context.Context, sessionID, memberNo string, qty int64) error
	// Drain 场次结束时清理闸门键。
	Drain(ctx context.Context, sessionID string) error
}
