// internal/service/inventory/infrastructure/models.go
package infrastructure

import (
	"time"

	"github.com/since-leoo/mine-shop-sub008/internal/service/inventory/domain"
)

// InventoryUnitModel 是库存账本在数据库中的表示。
type InventoryUnitModel struct {
	ResourceID       string `gorm:"primaryKey;size:64"`
	TotalQuantity    int64  `gorm:"not null"`
	ReservedQuantity int64  `gorm:"not null;default:0"`
	SoldQuantity     int64  `gorm:"not null;default:0"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (InventoryUnitModel) TableName() string {
	return "inventory_units"
}

// ReservationModel 是预占单在数据库中的表示。
type ReservationModel struct {
	ID         string `gorm:"primaryKey;size:64"`
	ResourceID string `gorm:"index;size:64;not null"`
	Quantity   int64  `gorm:"not null"`
	Status     string `gorm:"size:16;not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (ReservationModel) TableName() string {
	return "inventory_reservations"
}

func toDomainUnit(m *InventoryUnitModel) *domain.InventoryUnit {
	return &domain.InventoryUnit{
		ResourceID:       m.ResourceID,
		TotalQuantity:    m.TotalQuantity,
		ReservedQuantity: m.ReservedQuantity,
		SoldQuantity:     m.SoldQuantity,
		UpdatedAt:        m.UpdatedAt,
	}
}

func toDomainReservation(m *ReservationModel) *domain.Reservation {
	return &domain.Reservation{
		ID:         m.ID,
		ResourceID: m.ResourceID,
		Quantity:   m.Quantity,
		Status:     domain.ReservationStatus(m.Status),
		CreatedAt:  m.CreatedAt,
	}
}
