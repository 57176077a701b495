// internal/service/promotion/infrastructure/models.go
package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/since-leoo/mine-shop-sub008/internal/service/promotion/domain"
)

// CouponTemplateModel 券模板表。
type CouponTemplateModel struct {
	ID             uint64          `gorm:"primaryKey;autoIncrement"`
	CouponID       string          `gorm:"column:coupon_id;type:varchar(64);uniqueIndex"`
	Name           string          `gorm:"column:name;type:varchar(128)"`
	Version        int64           `gorm:"column:version"`
	CouponType     string          `gorm:"column:coupon_type;type:varchar(16)"`
	Value          decimal.Decimal `gorm:"column:value;type:decimal(10,2)"`
	TotalQuantity  int64           `gorm:"column:total_quantity"`
	IssuedQuantity int64           `gorm:"column:issued_quantity"`
	PerUserLimit   int64           `gorm:"column:per_user_limit"`
	RuleExpr       string          `gorm:"column:rule_expr;type:varchar(512)"`
	ValidFrom      time.Time       `gorm:"column:valid_from"`
	ValidUntil     time.Time       `gorm:"column:valid_until"`
	CreatedAt      time.Time       `gorm:"column:created_at"`
	UpdatedAt      time.Time       `gorm:"column:updated_at"`
}

func (CouponTemplateModel) TableName() string { return "coupon_templates" }

// CouponGrantModel 领取记录表，(coupon_id, member_no, seq) 唯一键兜底限领。
type CouponGrantModel struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	GrantID       string    `gorm:"column:grant_id;type:varchar(64);uniqueIndex"`
	CouponID      string    `gorm:"column:coupon_id;type:varchar(64);uniqueIndex:uk_coupon_member_seq,priority:1"`
	CouponVersion int64     `gorm:"column:coupon_version"`
	MemberNo      string    `gorm:"column:member_no;type:varchar(64);uniqueIndex:uk_coupon_member_seq,priority:2;index"`
	Seq           int64     `gorm:"column:seq;uniqueIndex:uk_coupon_member_seq,priority:3"`
	Status        string    `gorm:"column:status;type:varchar(16);index:idx_grant_status_valid,priority:1"`
	OrderNo       string    `gorm:"column:order_no;type:varchar(64)"`
	ValidUntil    time.Time `gorm:"column:valid_until;index:idx_grant_status_valid,priority:2"`
	CreatedAt     time.Time `gorm:"column:created_at"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (CouponGrantModel) TableName() string { return "coupon_grants" }

func toTemplateModel(t *domain.CouponTemplate) *CouponTemplateModel {
	return &CouponTemplateModel{
		CouponID:       t.ID,
		Name:           t.Name,
		Version:        t.Version,
		CouponType:     string(t.Type),
		Value:          t.Value,
		TotalQuantity:  t.TotalQuantity,
		IssuedQuantity: t.IssuedQuantity,
		PerUserLimit:   t.PerUserLimit,
		RuleExpr:       t.RuleExpr,
		ValidFrom:      t.ValidFrom,
		ValidUntil:     t.ValidUntil,
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
	}
}

func toDomainTemplate(m *CouponTemplateModel) *domain.CouponTemplate {
	return &domain.CouponTemplate{
		ID:             m.CouponID,
		Name:           m.Name,
		Version:        m.Version,
		Type:           domain.CouponType(m.CouponType),
		Value:          m.Value,
		TotalQuantity:  m.TotalQuantity,
		IssuedQuantity: m.IssuedQuantity,
		PerUserLimit:   m.PerUserLimit,
		RuleExpr:       m.RuleExpr,
		ValidFrom:      m.ValidFrom,
		ValidUntil:     m.ValidUntil,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}
}

func toGrantModel(g *domain.CouponGrant) *CouponGrantModel {
	return &CouponGrantModel{
		GrantID:       g.GrantID,
		CouponID:      g.CouponID,
		CouponVersion: g.CouponVersion,
		MemberNo:      g.MemberNo,
		Seq:           g.Seq,
		Status:        string(g.Status),
		OrderNo:       g.OrderNo,
		ValidUntil:    g.ValidUntil,
		CreatedAt:     g.CreatedAt,
		UpdatedAt:     g.UpdatedAt,
	}
}

func toDomainGrant(m *CouponGrantModel) *domain.CouponGrant {
	return &domain.CouponGrant{
		GrantID:       m.GrantID,
		CouponID:      m.CouponID,
		CouponVersion: m.CouponVersion,
		MemberNo:      m.MemberNo,
		Seq:           m.Seq,
		Status:        domain.GrantStatus(m.Status),
		OrderNo:       m.OrderNo,
		ValidUntil:    m.ValidUntil,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}
