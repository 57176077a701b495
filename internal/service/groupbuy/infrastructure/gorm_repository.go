// internal/service/groupbuy/infrastructure/gorm_repository.go
package infrastructure

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/database"
	"github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/domain"
)

// GormActivityRepository 拼团活动仓储。
type GormActivityRepository struct {
	db *gorm.DB
}

func NewGormActivityRepository(db *gorm.DB) *GormActivityRepository {
	return &GormActivityRepository{db: db}
}

func (r *GormActivityRepository) Create(ctx context.Context, activity *domain.Activity) error {
	db := database.FromContext(ctx, r.db)
	if err := db.WithContext(ctx).Create(toActivityModel(activity)).Error; err != nil {
		return errors.Wrapf(err, "create groupbuy activity %s", activity.ID)
	}
	return nil
}

func (r *GormActivityRepository) FindByID(ctx context.Context, id string) (*domain.Activity, error) {
	db := database.FromContext(ctx, r.db)
	var m ActivityModel
	err := db.WithContext(ctx).Where("activity_id = ?", id).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrActivityNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find groupbuy activity %s", id)
	}
	return toDomainActivity(&m), nil
}

func (r *GormActivityRepository) TransitionStatus(ctx context.Context, id string, from, to domain.ActivityStatus) (bool, error) {
	db := database.FromContext(ctx, r.db)
	result := db.WithContext(ctx).Model(&ActivityModel{}).
		Where("activity_id = ? AND status = ?", id, string(from)).
		Updates(map[string]interface{}{"status": string(to), "updated_at": time.Now()})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "transition activity %s %s -> %s", id, from, to)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormActivityRepository) FindDueForActivation(ctx context.Context, now time.Time) ([]*domain.Activity, error) {
	return r.findByStatus(ctx, []domain.ActivityStatus{domain.ActivityPending}, "start_at <= ?", now)
}

func (r *GormActivityRepository) FindDueForEnd(ctx context.Context, now time.Time) ([]*domain.Activity, error) {
	// 售罄的活动到点一样要收尾
	return r.findByStatus(ctx, []domain.ActivityStatus{domain.ActivityActive, domain.ActivitySoldOut}, "end_at <= ?", now)
}

func (r *GormActivityRepository) findByStatus(ctx context.Context, statuses []domain.ActivityStatus, cond string, now time.Time) ([]*domain.Activity, error) {
	db := database.FromContext(ctx, r.db)
	var models []ActivityModel
	err := db.WithContext(ctx).
		Where("status IN ?", statuses).
		Where(cond, now).
		Limit(200).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "find due activities")
	}
	activities := make([]*domain.Activity, 0, len(models))
	for i := range models {
		activities = append(activities, toDomainActivity(&models[i]))
	}
	return activities, nil
}

// GormGroupRepository 团仓储。
type GormGroupRepository struct {
	db *gorm.DB
}

func NewGormGroupRepository(db *gorm.DB) *GormGroupRepository {
	return &GormGroupRepository{db: db}
}

func (r *GormGroupRepository) Create(ctx context.Context, group *domain.Group) error {
	db := database.FromContext(ctx, r.db)
	if err := db.WithContext(ctx).Create(toGroupModel(group)).Error; err != nil {
		return errors.Wrapf(err, "create group %s", group.GroupNo)
	}
	return nil
}

func (r *GormGroupRepository) FindByNo(ctx context.Context, groupNo string) (*domain.Group, error) {
	db := database.FromContext(ctx, r.db)
	var m GroupModel
	err := db.WithContext(ctx).Where("group_no = ?", groupNo).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrGroupNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "find group %s", groupNo)
	}
	return toDomainGroup(&m), nil
}

// IncrementMember 条件加一占团位，满员/非拼团中/已过期都占不到。
// 占到位后再查一次人数；两步在同一个事务里，外部看到的人数不会回退。
func (r *GormGroupRepository) IncrementMember(ctx context.Context, groupNo string, now time.Time) (int64, bool, error) {
	db := database.FromContext(ctx, r.db)
	result := db.WithContext(ctx).Model(&GroupModel{}).
		Where("group_no = ? AND status = ? AND member_count < required_count AND expires_at > ?",
			groupNo, string(domain.GroupForming), now).
		Updates(map[string]interface{}{
			"member_count": gorm.Expr("member_count + 1"),
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return 0, false, errors.Wrapf(result.Error, "increment member of group %s", groupNo)
	}
	if result.RowsAffected == 0 {
		return 0, false, nil
	}
	var m GroupModel
	if err := db.WithContext(ctx).Where("group_no = ?", groupNo).First(&m).Error; err != nil {
		return 0, false, errors.Wrapf(err, "reload group %s", groupNo)
	}
	return m.MemberCount, true, nil
}

func (r *GormGroupRepository) TransitionStatus(ctx context.Context, groupNo string, from, to domain.GroupStatus) (bool, error) {
	db := database.FromContext(ctx, r.db)
	result := db.WithContext(ctx).Model(&GroupModel{}).
		Where("group_no = ? AND status = ?", groupNo, string(from)).
		Updates(map[string]interface{}{"status": string(to), "updated_at": time.Now()})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "transition group %s %s -> %s", groupNo, from, to)
	}
	return result.RowsAffected > 0, nil
}

func (r *GormGroupRepository) AddMember(ctx context.Context, member *domain.GroupMember) error {
	db := database.FromContext(ctx, r.db)
	err := db.WithContext(ctx).Create(&GroupMemberModel{
		GroupNo:  member.GroupNo,
		MemberNo: member.MemberNo,
		OrderNo:  member.OrderNo,
		JoinedAt: member.JoinedAt,
	}).Error
	if err != nil && strings.Contains(err.Error(), "Duplicate entry") {
		return domain.ErrDuplicateMember
	}
	if err != nil {
		return errors.Wrapf(err, "add member %s to group %s", member.MemberNo, member.GroupNo)
	}
	return nil
}

func (r *GormGroupRepository) ListMembers(ctx context.Context, groupNo string) ([]*domain.GroupMember, error) {
	db := database.FromContext(ctx, r.db)
	var models []GroupMemberModel
	if err := db.WithContext(ctx).Where("group_no = ?", groupNo).Find(&models).Error; err != nil {
		return nil, errors.Wrapf(err, "list members of group %s", groupNo)
	}
	members := make([]*domain.GroupMember, 0, len(models))
	for _, m := range models {
		members = append(members, &domain.GroupMember{
			GroupNo:  m.GroupNo,
			MemberNo: m.MemberNo,
			OrderNo:  m.OrderNo,
			JoinedAt: m.JoinedAt,
		})
	}
	return members, nil
}

func (r *GormGroupRepository) FindExpiredForming(ctx context.Context, now time.Time) ([]*domain.Group, error) {
	db := database.FromContext(ctx, r.db)
	var models []GroupModel
	err := db.WithContext(ctx).
		Where("status = ? AND expires_at <= ?", string(domain.GroupForming), now).
		Limit(500).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "find expired forming groups")
	}
	return toDomainGroups(models), nil
}

func (r *GormGroupRepository) FindUnsettled(ctx context.Context, status domain.GroupStatus) ([]*domain.Group, error) {
	db := database.FromContext(ctx, r.db)
	var models []GroupModel
	err := db.WithContext(ctx).
		Where("status = ? AND settled = ?", string(status), false).
		Limit(500).
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrapf(err, "find unsettled %s groups", status)
	}
	return toDomainGroups(models), nil
}

func (r *GormGroupRepository) MarkSettled(ctx context.Context, groupNo string) (bool, error) {
	db := database.FromContext(ctx, r.db)
	result := db.WithContext(ctx).Model(&GroupModel{}).
		Where("group_no = ? AND settled = ?", groupNo, false).
		Updates(map[string]interface{}{"settled": true, "updated_at": time.Now()})
	if result.Error != nil {
		return false, errors.Wrapf(result.Error, "mark group %s settled", groupNo)
	}
	return result.RowsAffected > 0, nil
}

func toDomainGroups(models []GroupModel) []*domain.Group {
	groups := make([]*domain.Group, 0, len(models))
	for i := range models {
		groups = append(groups, toDomainGroup(&models[i]))
	}
	return groups
}
