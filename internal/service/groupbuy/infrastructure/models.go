// internal/service/groupbuy/infrastructure/models.go
package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/domain"
)

// ActivityModel 拼团活动表。
type ActivityModel struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement"`
	ActivityID    string          `gorm:"column:activity_id;type:varchar(64);uniqueIndex"`
	SkuID         string          `gorm:"column:sku_id;type:varchar(64);index"`
	Name          string          `gorm:"column:name;type:varchar(128)"`
	GroupPrice    decimal.Decimal `gorm:"column:group_price;type:decimal(10,2)"`
	RequiredCount int64           `gorm:"column:required_count"`
	GroupTTLSec   int64           `gorm:"column:group_ttl_seconds"`
	TotalStock    int64           `gorm:"column:total_stock"`
	StartAt       time.Time       `gorm:"column:start_at;index:idx_gb_status_start,priority:2"`
	EndAt         time.Time       `gorm:"column:end_at;index:idx_gb_status_end,priority:2"`
	Status        string          `gorm:"column:status;type:varchar(16);index:idx_gb_status_start,priority:1;index:idx_gb_status_end,priority:1"`
	CreatedAt     time.Time       `gorm:"column:created_at"`
	UpdatedAt     time.Time       `gorm:"column:updated_at"`
}

func (ActivityModel) TableName() string { return "groupbuy_activities" }

// GroupModel 团表。member_count 的并发加一靠条件更新，不用行锁。
type GroupModel struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	GroupNo       string    `gorm:"column:group_no;type:varchar(64);uniqueIndex"`
	ActivityID    string    `gorm:"column:activity_id;type:varchar(64);index"`
	LeaderNo      string    `gorm:"column:leader_no;type:varchar(64)"`
	RequiredCount int64     `gorm:"column:required_count"`
	MemberCount   int64     `gorm:"column:member_count"`
	Status        string    `gorm:"column:status;type:varchar(16);index:idx_group_status_expire,priority:1"`
	Settled       bool      `gorm:"column:settled;index"`
	ExpiresAt     time.Time `gorm:"column:expires_at;index:idx_group_status_expire,priority:2"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (GroupModel) TableName() string { return "groupbuy_groups" }

// GroupMemberModel 团员表，(group_no, member_no) 唯一键挡重复入团。
type GroupMemberModel struct {
	ID       uint64    `gorm:"primaryKey;autoIncrement"`
	GroupNo  string    `gorm:"column:group_no;type:varchar(64);uniqueIndex:uk_group_member,priority:1"`
	MemberNo string    `gorm:"column:member_no;type:varchar(64);uniqueIndex:uk_group_member,priority:2"`
	OrderNo  string    `gorm:"column:order_no;type:varchar(64)"`
	JoinedAt time.Time `gorm:"column:joined_at"`
}

func (GroupMemberModel) TableName() string { return "groupbuy_members" }

func toActivityModel(a *domain.Activity) *ActivityModel {
	return &ActivityModel{
		ActivityID:    a.ID,
		SkuID:         a.SkuID,
		Name:          a.Name,
		GroupPrice:    a.GroupPrice,
		RequiredCount: a.RequiredCount,
		GroupTTLSec:   int64(a.GroupTTL.Seconds()),
		TotalStock:    a.TotalStock,
		StartAt:       a.StartAt,
		EndAt:         a.EndAt,
		Status:        string(a.Status),
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

func toDomainActivity(m *ActivityModel) *domain.Activity {
	return &domain.Activity{
		ID:            m.ActivityID,
		SkuID:         m.SkuID,
		Name:          m.Name,
		GroupPrice:    m.GroupPrice,
		RequiredCount: m.RequiredCount,
		GroupTTL:      time.Duration(m.GroupTTLSec) * time.Second,
		TotalStock:    m.TotalStock,
		StartAt:       m.StartAt,
		EndAt:         m.EndAt,
		Status:        domain.ActivityStatus(m.Status),
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func toGroupModel(g *domain.Group) *GroupModel {
	return &GroupModel{
		GroupNo:       g.GroupNo,
		ActivityID:    g.ActivityID,
		LeaderNo:      g.LeaderNo,
		RequiredCount: g.RequiredCount,
		MemberCount:   g.MemberCount,
		Status:        string(g.Status),
		Settled:       g.Settled,
		ExpiresAt:     g.ExpiresAt,
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
	}
}

func toDomainGroup(m *GroupModel) *domain.Group {
	return &domain.Group{
		GroupNo:       m.GroupNo,
		ActivityID:    m.ActivityID,
		LeaderNo:      m.LeaderNo,
		RequiredCount: m.RequiredCount,
		MemberCount:   m.MemberCount,
		Status:        domain.GroupStatus(m.Status),
		Settled:       m.Settled,
		ExpiresAt:     m.ExpiresAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
