// internal/service/groupbuy/domain/activity.go
package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// ActivityStatus 拼团活动状态。
// 正向流转: PENDING -> ACTIVE -> SOLD_OUT -> ENDED；
// CANCELLED 是唯一的非正向迁移，PENDING/ACTIVE 都可以直接取消。
type ActivityStatus string

const (
	ActivityPending   ActivityStatus = "PENDING"
	ActivityActive    ActivityStatus = "ACTIVE"
	ActivitySoldOut   ActivityStatus = "SOLD_OUT"
	ActivityEnded     ActivityStatus = "ENDED"
	ActivityCancelled ActivityStatus = "CANCELLED"
)

// GroupStatus 团状态。
type GroupStatus string

const (
	GroupForming   GroupStatus = "FORMING"
	GroupSucceeded GroupStatus = "SUCCEEDED"
	GroupFailed    GroupStatus = "FAILED"
)

var (
	// ErrActivityNotFound 活动不存在。
	ErrActivityNotFound = errors.New("groupbuy: activity not found")
	// ErrActivityNotActive 活动不在可开团/可参团状态。
	ErrActivityNotActive = errors.New("groupbuy: activity not active")
	// ErrGroupNotFound 团不存在。
	ErrGroupNotFound = errors.New("groupbuy: group not found")
	// ErrGroupFull 团员已满。
	ErrGroupFull = errors.New("groupbuy: group is full")
	// ErrGroupNotJoinable 团已成团/已失败，不能再加入。
	ErrGroupNotJoinable = errors.New("groupbuy: group not joinable")
	// ErrGroupExpired 团已超时仍在拼，等失败扫描收尾，不能再加入。
	ErrGroupExpired = errors.New("groupbuy: group expired")
	// ErrDuplicateMember 同一会员重复入团。
	ErrDuplicateMember = errors.New("groupbuy: member already in group")
	// ErrSoldOut 活动库存已被抢光，新开团/参团一律拒绝。
	ErrSoldOut = errors.New("groupbuy: activity sold out")
)

// Activity 拼团活动聚合。
// RequiredCount 是成团人数；GroupTTL 是开团后的成团时限，超时未满员判团失败。
type Activity struct {
	ID            string
	SkuID         string
	Name          string
	GroupPrice    decimal.Decimal
	RequiredCount int64
	GroupTTL      time.Duration
	TotalStock    int64
	StartAt       time.Time
	EndAt         time.Time
	Status        ActivityStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Joinable 判断当前时刻能否在该活动下开团/参团。
// 售罄的活动单独报 ErrSoldOut：已有的团还能靠预占库存走完，但不再放新人进来。
func (a *Activity) Joinable(now time.Time) error {
	if a.Status == ActivitySoldOut {
		return ErrSoldOut
	}
	if a.Status != ActivityActive {
		return ErrActivityNotActive
	}
	if now.Before(a.StartAt) || !now.Before(a.EndAt) {
		return ErrActivityNotActive
	}
	return nil
}

// Group 团聚合。
// MemberCount 只增不减：取消订单不踢人，成团判定以入团时刻为准；
// 取消的订单在成团结算时被跳过，不确认也不提交库存。
// Settled 表示成团/失败事件已经发布过，结算扫描据此做到恰好发布一次的效果。
type Group struct {
	GroupNo       string
	ActivityID    string
	LeaderNo      string
	RequiredCount int64
	MemberCount   int64
	Status        GroupStatus
	Settled       bool
	ExpiresAt     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Expired 判断团是否已超时。
func (g *Group) Expired(now time.Time) bool {
	return !now.Before(g.ExpiresAt)
}

// GroupMember 团员记录，(group_no, member_no) 唯一。
type GroupMember struct {
	GroupNo  string
	MemberNo string
	OrderNo  string
	JoinedAt time.Time
}
