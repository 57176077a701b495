// internal/service/groupbuy/application/service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/database"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	"github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/domain"
)

var groupOutcomeCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mineshop",
	Subsystem: "groupbuy",
	Name:      "group_outcomes_total",
	Help:      "Group buy outcomes by final status.",
}, []string{"status"})

// StockProvisioner 为活动开库存账本单元。*inventory/application.Ledger 满足它。
type StockProvisioner interface {
	Provision(ctx context.Context, resourceID string, total int64) error
}

// CreateActivityCommand 创建拼团活动。
type CreateActivityCommand struct {
	SkuID          string          `json:"skuId"`
	Name           string          `json:"name"`
	GroupPrice     decimal.Decimal `json:"groupPrice"`
	RequiredCount  int64           `json:"requiredCount"`
	GroupTTLMinute int64           `json:"groupTtlMinutes"`
	TotalStock     int64           `json:"totalStock"`
	StartAt        time.Time       `json:"startAt"`
	EndAt          time.Time       `json:"endAt"`
}

// GroupBuyService 拼团生命周期：活动上下线、开团、入团、失败扫描、结算扫描。
type GroupBuyService struct {
	activities  domain.ActivityRepository
	groups      domain.GroupRepository
	producer    domain.GroupEventProducer
	provisioner StockProvisioner
	tracer      trace.Tracer
}

func NewGroupBuyService(
	activities domain.ActivityRepository,
	groups domain.GroupRepository,
	producer domain.GroupEventProducer,
	provisioner StockProvisioner,
	tracer trace.Tracer,
) *GroupBuyService {
	return &GroupBuyService{
		activities:  activities,
		groups:      groups,
		producer:    producer,
		provisioner: provisioner,
		tracer:      tracer,
	}
}

// ResourceID 活动在库存账本里的资源标识。
func ResourceID(activityID string) string {
	return "groupbuy:" + activityID
}

// CreateActivity 创建 PENDING 活动并开好账本单元。
func (s *GroupBuyService) CreateActivity(ctx context.Context, cmd *CreateActivityCommand) (*domain.Activity, error) {
	ctx, span := s.tracer.Start(ctx, "groupbuy.CreateActivity")
	defer span.End()

	now := time.Now()
	activity := &domain.Activity{
		ID:            uuid.New().String(),
		SkuID:         cmd.SkuID,
		Name:          cmd.Name,
		GroupPrice:    cmd.GroupPrice,
		RequiredCount: cmd.RequiredCount,
		GroupTTL:      time.Duration(cmd.GroupTTLMinute) * time.Minute,
		TotalStock:    cmd.TotalStock,
		StartAt:       cmd.StartAt,
		EndAt:         cmd.EndAt,
		Status:        domain.ActivityPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	span.SetAttributes(attribute.String("groupbuy.activity_id", activity.ID))

	if err := s.provisioner.Provision(ctx, ResourceID(activity.ID), activity.TotalStock); err != nil {
		return nil, err
	}
	if err := s.activities.Create(ctx, activity); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().
		Str("activity_id", activity.ID).
		Int64("required_count", activity.RequiredCount).
		Msg("groupbuy activity created")
	return activity, nil
}

// CancelActivity 下架活动，PENDING 和 ACTIVE 都允许取消。
// 已开出的团不受影响，按自己的时限走完；重复取消按幂等成功处理。
func (s *GroupBuyService) CancelActivity(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "groupbuy.CancelActivity")
	defer span.End()
	span.SetAttributes(attribute.String("groupbuy.activity_id", id))

	for _, from := range []domain.ActivityStatus{domain.ActivityPending, domain.ActivityActive} {
		ok, err := s.activities.TransitionStatus(ctx, id, from, domain.ActivityCancelled)
		if err != nil {
			return err
		}
		if ok {
			logger.Ctx(ctx).Info().Str("activity_id", id).Msg("🛑 groupbuy activity cancelled")
			return nil
		}
	}
	activity, err := s.activities.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if activity.Status == domain.ActivityCancelled {
		return nil
	}
	return domain.ErrActivityNotActive
}

// markSoldOut 活动库存抢光后把状态翻到 SOLD_OUT。
// 触发点在失败的下单事务里，写入走 Detach 剥离事务句柄，回滚带不走它。
func (s *GroupBuyService) markSoldOut(ctx context.Context, activityID string) {
	ctx = database.Detach(ctx)
	ok, err := s.activities.TransitionStatus(ctx, activityID, domain.ActivityActive, domain.ActivitySoldOut)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("activity_id", activityID).Msg("mark activity sold out failed")
		return
	}
	if ok {
		logger.Ctx(ctx).Info().Str("activity_id", activityID).Msg("groupbuy activity sold out")
	}
}

// GetActivity 查询活动。
func (s *GroupBuyService) GetActivity(ctx context.Context, id string) (*domain.Activity, error) {
	return s.activities.FindByID(ctx, id)
}

// GetGroup 查询团。
func (s *GroupBuyService) GetGroup(ctx context.Context, groupNo string) (*domain.Group, error) {
	return s.groups.FindByNo(ctx, groupNo)
}

// OpenGroup 开一个新团，开团人即第一个团员。和下单同事务调用。
func (s *GroupBuyService) OpenGroup(ctx context.Context, activity *domain.Activity, memberNo, orderNo string) (*domain.Group, error) {
	ctx, span := s.tracer.Start(ctx, "groupbuy.OpenGroup")
	defer span.End()

	now := time.Now()
	group := &domain.Group{
		GroupNo:       uuid.New().String(),
		ActivityID:    activity.ID,
		LeaderNo:      memberNo,
		RequiredCount: activity.RequiredCount,
		MemberCount:   1,
		Status:        domain.GroupForming,
		ExpiresAt:     now.Add(activity.GroupTTL),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	span.SetAttributes(attribute.String("groupbuy.group_no", group.GroupNo))

	if err := s.groups.Create(ctx, group); err != nil {
		return nil, err
	}
	if err := s.groups.AddMember(ctx, &domain.GroupMember{
		GroupNo:  group.GroupNo,
		MemberNo: memberNo,
		OrderNo:  orderNo,
		JoinedAt: now,
	}); err != nil {
		return nil, err
	}
	// 一人团开团即成团
	if group.RequiredCount <= 1 {
		if _, err := s.groups.TransitionStatus(ctx, group.GroupNo, domain.GroupForming, domain.GroupSucceeded); err != nil {
			return nil, err
		}
		group.Status = domain.GroupSucceeded
	}
	logger.Ctx(ctx).Info().
		Str("group_no", group.GroupNo).
		Str("leader_no", memberNo).
		Msg("group opened")
	return group, nil
}

// JoinGroup 加入已有的团。和下单同事务调用。
// 占位顺序：先写团员记录（唯一键挡重复入团），再做人数条件加一；
// 第 N 个占到位的请求负责把团翻成 SUCCEEDED。
func (s *GroupBuyService) JoinGroup(ctx context.Context, groupNo, memberNo, orderNo string) (*domain.Group, error) {
	ctx, span := s.tracer.Start(ctx, "groupbuy.JoinGroup")
	defer span.End()
	span.SetAttributes(attribute.String("groupbuy.group_no", groupNo))

	group, err := s.groups.FindByNo(ctx, groupNo)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if group.Status != domain.GroupForming {
		return nil, domain.ErrGroupNotJoinable
	}
	if group.Expired(now) {
		return nil, domain.ErrGroupExpired
	}

	if err := s.groups.AddMember(ctx, &domain.GroupMember{
		GroupNo:  groupNo,
		MemberNo: memberNo,
		OrderNo:  orderNo,
		JoinedAt: now,
	}); err != nil {
		return nil, err
	}

	count, ok, err := s.groups.IncrementMember(ctx, groupNo, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// 预检后有人抢完了位置，或团刚好过期/翻状态
		return nil, domain.ErrGroupFull
	}
	if count == group.RequiredCount {
		if _, err := s.groups.TransitionStatus(ctx, groupNo, domain.GroupForming, domain.GroupSucceeded); err != nil {
			return nil, err
		}
		logger.Ctx(ctx).Info().Str("group_no", groupNo).Msg("✅ group completed")
	}
	return s.groups.FindByNo(ctx, groupNo)
}

// ActivateDueActivities 激活到点的活动，调度任务入口。
func (s *GroupBuyService) ActivateDueActivities(ctx context.Context, now time.Time) error {
	due, err := s.activities.FindDueForActivation(ctx, now)
	if err != nil {
		return err
	}
	for _, activity := range due {
		ok, err := s.activities.TransitionStatus(ctx, activity.ID, domain.ActivityPending, domain.ActivityActive)
		if err != nil {
			return err
		}
		if ok {
			logger.Ctx(ctx).Info().Str("activity_id", activity.ID).Msg("groupbuy activity activated")
		}
	}
	return nil
}

// EndDueActivities 下线到期的活动，售罄的活动同样到点收尾。
// 进行中的团不受影响，按自己的时限走完。
func (s *GroupBuyService) EndDueActivities(ctx context.Context, now time.Time) error {
	due, err := s.activities.FindDueForEnd(ctx, now)
	if err != nil {
		return err
	}
	for _, activity := range due {
		ok, err := s.activities.TransitionStatus(ctx, activity.ID, activity.Status, domain.ActivityEnded)
		if err != nil {
			return err
		}
		if ok {
			logger.Ctx(ctx).Info().Str("activity_id", activity.ID).Msg("groupbuy activity ended")
		}
	}
	return nil
}

// ExpireFormingGroups 把超时未满员的团判为失败，调度任务入口。
// 只翻状态，订单退款标记和库存释放由结算消费者处理。
func (s *GroupBuyService) ExpireFormingGroups(ctx context.Context, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, "groupbuy.ExpireFormingGroups")
	defer span.End()

	expired, err := s.groups.FindExpiredForming(ctx, now)
	if err != nil {
		return err
	}
	for _, group := range expired {
		ok, err := s.groups.TransitionStatus(ctx, group.GroupNo, domain.GroupForming, domain.GroupFailed)
		if err != nil {
			return err
		}
		if ok {
			groupOutcomeCounter.WithLabelValues(string(domain.GroupFailed)).Inc()
			logger.Ctx(ctx).Info().
				Str("group_no", group.GroupNo).
				Int64("member_count", group.MemberCount).
				Msg("group expired without completing")
		}
	}
	return nil
}

// SettleFinishedGroups 为已到终态的团发布结算事件，调度任务入口。
// 先发事件后落 settled 标记：中途宕机会导致事件重发，EventID 不变，消费侧去重兜底。
func (s *GroupBuyService) SettleFinishedGroups(ctx context.Context, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, "groupbuy.SettleFinishedGroups")
	defer span.End()

	for _, status := range []domain.GroupStatus{domain.GroupSucceeded, domain.GroupFailed} {
		groups, err := s.groups.FindUnsettled(ctx, status)
		if err != nil {
			return err
		}
		for _, group := range groups {
			members, err := s.groups.ListMembers(ctx, group.GroupNo)
			if err != nil {
				return err
			}
			orderNos := make([]string, 0, len(members))
			for _, m := range members {
				orderNos = append(orderNos, m.OrderNo)
			}
			event := &domain.GroupSettledEvent{
				EventID:    "gbs-" + group.GroupNo,
				GroupNo:    group.GroupNo,
				ActivityID: group.ActivityID,
				Status:     group.Status,
				OrderNos:   orderNos,
				SettledAt:  now,
			}
			if err := s.producer.ProduceGroupSettled(ctx, event); err != nil {
				return err
			}
			if _, err := s.groups.MarkSettled(ctx, group.GroupNo); err != nil {
				return err
			}
			if status == domain.GroupSucceeded {
				groupOutcomeCounter.WithLabelValues(string(domain.GroupSucceeded)).Inc()
			}
		}
	}
	return nil
}
