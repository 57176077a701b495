// internal/service/inventory/domain/inventory.go
package domain

import (
	"errors"
	"time"
)

var (
	// ErrOutOfStock 库存不足，预占失败。这是预期内的业务失败，调用方直接透出给用户。
	ErrOutOfStock = errors.New("inventory: out of stock")
	// ErrUnitNotFound 库存资源不存在。
	ErrUnitNotFound = errors.New("inventory: unit not found")
	// ErrReservationNotFound 预占记录不存在。
	ErrReservationNotFound = errors.New("inventory: reservation not found")
)

// InventoryUnit 是一份可计数的有限资源：sku 库存、秒杀配额、拼团名额、优惠券张数
// 都用同一张账本表达。
// 不变式: SoldQuantity + ReservedQuantity <= TotalQuantity，任何时刻成立。
// 账本只通过单条条件更新（compare-and-swap）变更，绝不允许读-改-写。
type InventoryUnit struct {
	ResourceID       string
	TotalQuantity    int64
	ReservedQuantity int64
	SoldQuantity     int64
	UpdatedAt        time.Time
}

// Available 返回还可预占的数量。
func (u *InventoryUnit) Available() int64 {
	return u.TotalQuantity - u.ReservedQuantity - u.SoldQuantity
}

// Exhausted 判断资源是否已经全部售出。
func (u *InventoryUnit) Exhausted() bool {
	return u.SoldQuantity >= u.TotalQuantity
}

// ReservationStatus 是预占单的生命周期状态。
type ReservationStatus string

const (
	ReservationReserved  ReservationStatus = "RESERVED"
	ReservationCommitted ReservationStatus = "COMMITTED"
	ReservationReleased  ReservationStatus = "RELEASED"
)

// Reservation 是对账本的一次临时占用，之后要么 Commit 转为实售，要么 Release 归还。
// 状态流转单向: RESERVED -> COMMITTED / RELEASED，由预占单状态列上的条件更新保证，
// 这也是 Release 幂等性的来源：第二次释放时状态早已不是 RESERVED，更新影响 0 行。
type Reservation struct {
	ID         string
	ResourceID string
	Quantity   int64
	Status     ReservationStatus
	CreatedAt  time.Time
}
