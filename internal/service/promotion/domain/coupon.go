// internal/service/promotion/domain/coupon.go
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// CouponType 券的抵扣方式。
type CouponType string

const (
	// CouponFixed 满减券，Value 是抵扣金额。
	CouponFixed CouponType = "FIXED"
	// CouponPercent 折扣券，Value 是折扣百分比（10 表示减免 10%）。
	CouponPercent CouponType = "PERCENT"
)

// GrantStatus 已领取券的状态。
type GrantStatus string

const (
	GrantUnused  GrantStatus = "UNUSED"
	GrantFrozen  GrantStatus = "FROZEN"
	GrantUsed    GrantStatus = "USED"
	GrantExpired GrantStatus = "EXPIRED"
)

var (
	// ErrCouponNotFound 券模板不存在。
	ErrCouponNotFound = errors.New("promotion: coupon not found")
	// ErrGrantNotFound 领取记录不存在。
	ErrGrantNotFound = errors.New("promotion: grant not found")
	// ErrIssuedOut 券已发完。
	ErrIssuedOut = errors.New("promotion: coupon issued out")
	// ErrLimitExceeded 超过单用户领取上限。
	ErrLimitExceeded = errors.New("promotion: per-user limit exceeded")
	// ErrNotStarted 发放期未开始。
	ErrNotStarted = errors.New("promotion: coupon not started")
	// ErrExpired 券已过期。
	ErrExpired = errors.New("promotion: coupon expired")
	// ErrGrantNotUsable 券不在可用状态（已冻结/已用/已过期）。
	ErrGrantNotUsable = errors.New("promotion: grant not usable")
	// ErrRuleRejected 用券规则不满足。
	ErrRuleRejected = errors.New("promotion: rule rejected")
)

// CouponTemplate 券模板聚合。
// Version 每次改模板加一，已领的券按领取时刻的版本结算，模板变更不回溯。
// RuleExpr 是 CEL 表达式，为空表示无门槛。
type CouponTemplate struct {
	ID             string
	Name           string
	Version        int64
	Type           CouponType
	Value          decimal.Decimal
	TotalQuantity  int64
	IssuedQuantity int64
	PerUserLimit   int64
	RuleExpr       string
	ValidFrom      time.Time
	ValidUntil     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InIssueWindow 判断当前时刻是否在发放期内。
func (t *CouponTemplate) InIssueWindow(now time.Time) error {
	if now.Before(t.ValidFrom) {
		return ErrNotStarted
	}
	if !now.Before(t.ValidUntil) {
		return ErrExpired
	}
	return nil
}

// DiscountFor 按券类型计算对一笔金额的抵扣，抵扣不超过订单金额。
func (t *CouponTemplate) DiscountFor(amount decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch t.Type {
	case CouponPercent:
		discount = amount.Mul(t.Value).Div(decimal.NewFromInt(100)).Round(2)
	default:
		discount = t.Value
	}
	if discount.GreaterThan(amount) {
		return amount
	}
	return discount
}

// CouponGrant 一张已领取的券。
// (coupon_id, member_no, seq) 唯一，seq 从 1 起，领取并发时唯一键兜底限领。
type CouponGrant struct {
	GrantID        string
	CouponID       string
	CouponVersion  int64
	MemberNo       string
	Seq            int64
	Status         GrantStatus
	OrderNo        string
	ValidUntil     time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Usable 判断券当前能否用于下单。
func (g *CouponGrant) Usable(now time.Time) error {
	if g.Status != GrantUnused {
		return ErrGrantNotUsable
	}
	if !now.Before(g.ValidUntil) {
		return ErrExpired
	}
	return nil
}
