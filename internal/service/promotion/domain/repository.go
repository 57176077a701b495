// internal/service/promotion/domain/repository.go
package domain

import (
	"context"
	"time"
)

// CouponRepository 券模板与领取记录的持久化接口。
type CouponRepository interface {
	CreateTemplate(ctx context.Context, template *CouponTemplate) error
	FindTemplate(ctx context.Context, couponID string) (*CouponTemplate, error)

	// IncrementIssued 发放计数条件加一：
	// UPDATE ... SET issued_quantity = issued_quantity + 1
	// WHERE coupon_id = ? AND issued_quantity < total_quantity。
	// 返回 false 表示已发完。
	IncrementIssued(ctx context.Context, couponID string) (bool, error)
	// DecrementIssued 领取失败回滚计数。
	DecrementIssued(ctx context.Context, couponID string) error

	// CreateGrant 写领取记录，(coupon_id, member_no, seq) 唯一键冲突返回 ErrLimitExceeded。
	CreateGrant(ctx context.Context, grant *CouponGrant) error
	FindGrant(ctx context.Context, grantID string) (*CouponGrant, error)
	CountGrantsByMember(ctx context.Context, couponID, memberNo string) (int64, error)

	// TransitionGrant 券状态 CAS，用券/解冻/核销都走这里。
	TransitionGrant(ctx context.Context, grantID string, from, to GrantStatus, orderNo string) (bool, error)

	// ExpireGrants 把过期未用的券批量翻成 EXPIRED，返回行数，调度任务入口。
	ExpireGrants(ctx context.Context, now time.Time) (int64, error)
}

// RuleEngine 用券规则求值的出站端口，CEL 实现。
type RuleEngine interface {
	// Evaluate 对规则表达式求值。expr 为空视为放行。
	Evaluate(ctx context.Context, expr string, vars map[string]interface{}) (bool, error)
}
