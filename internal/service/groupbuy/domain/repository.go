// internal/service/groupbuy/domain/repository.go
package domain

import (
	"context"
	"time"
)

// ActivityRepository 拼团活动持久化接口。
type ActivityRepository interface {
	Create(ctx context.Context, activity *Activity) error
	FindByID(ctx context.Context, id string) (*Activity, error)
	TransitionStatus(ctx context.Context, id string, from, to ActivityStatus) (bool, error)
	FindDueForActivation(ctx context.Context, now time.Time) ([]*Activity, error)
	FindDueForEnd(ctx context.Context, now time.Time) ([]*Activity, error)
}

// GroupRepository 团持久化接口。
type GroupRepository interface {
	Create(ctx context.Context, group *Group) error
	FindByNo(ctx context.Context, groupNo string) (*Group, error)

	// IncrementMember 占一个团位：UPDATE ... SET member_count = member_count + 1
	// WHERE group_no = ? AND status = 'FORMING' AND member_count < required_count
	// AND expires_at > now。返回更新后的人数；没抢到位返回 (0, false)。
	IncrementMember(ctx context.Context, groupNo string, now time.Time) (int64, bool, error)

	// TransitionStatus 团状态 CAS。
	TransitionStatus(ctx context.Context, groupNo string, from, to GroupStatus) (bool, error)

	// AddMember 写团员记录，唯一键冲突返回 ErrDuplicateMember。
	AddMember(ctx context.Context, member *GroupMember) error
	ListMembers(ctx context.Context, groupNo string) ([]*GroupMember, error)

	// FindExpiredForming 找出已超时仍在拼的团，供失败扫描。
	FindExpiredForming(ctx context.Context, now time.Time) ([]*Group, error)
	// FindUnsettled 找出已终态但事件尚未发布的团，供结算扫描。
	FindUnsettled(ctx context.Context, status GroupStatus) ([]*Group, error)
	// MarkSettled 事件发布成功后落标记。CAS：已标记过返回 false。
	MarkSettled(ctx context.Context, groupNo string) (bool, error)
}
