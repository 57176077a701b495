// internal/service/inventory/application/ledger.go
package application

import (
	"context"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	"github.com/since-leoo/mine-shop-sub008/internal/service/inventory/domain"
)

var reserveCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mineshop",
	Subsystem: "inventory",
	Name:      "reserve_total",
	Help:      "Inventory reservation attempts by outcome.",
}, []string{"outcome"})

// Ledger 是库存账本的应用服务，对外提供 预占/提交/释放 三个原语。
// 它自身无状态，可以在同一个数据库事务里被订单编排调用（事务通过 ctx 传递）。
type Ledger struct {
	repo   domain.Repository
	tracer trace.Tracer
}

func NewLedger(repo domain.Repository, tracer trace.Tracer) *Ledger {
	return &Ledger{repo: repo, tracer: tracer}
}

// Provision 为资源开一个账本单元。活动创建时调用，资源已存在则报错。
func (l *Ledger) Provision(ctx context.Context, resourceID string, total int64) error {
	ctx, span := l.tracer.Start(ctx, "inventory.Provision")
	defer span.End()
	span.SetAttributes(
		attribute.String("inventory.resource_id", resourceID),
		attribute.Int64("inventory.total", total),
	)
	return l.repo.CreateUnit(ctx, &domain.InventoryUnit{
		ResourceID:    resourceID,
		TotalQuantity: total,
	})
}

// TryReserve 对资源做一次原子预占。
// 库存不足时快速失败返回 ErrOutOfStock，绝不超卖；成功返回可提交/可释放的预占单。
func (l *Ledger) TryReserve(ctx context.Context, resourceID string, qty int64) (*domain.Reservation, error) {
	ctx, span := l.tracer.Start(ctx, "inventory.TryReserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("inventory.resource_id", resourceID),
		attribute.Int64("inventory.quantity", qty),
	)

	ok, err := l.repo.ReserveQuantity(ctx, resourceID, qty)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "reserve quantity failed")
		return nil, err
	}
	if !ok {
		reserveCounter.WithLabelValues("out_of_stock").Inc()
		span.AddEvent("out of stock")
		return nil, domain.ErrOutOfStock
	}

	reservation := &domain.Reservation{
		ID:         uuid.New().String(),
		ResourceID: resourceID,
		Quantity:   qty,
		Status:     domain.ReservationReserved,
	}
	if err := l.repo.CreateReservation(ctx, reservation); err != nil {
		// 预占单写不进去就把数量还回账本，避免泄漏预占额度
		if _, releaseErr := l.repo.ReleaseQuantity(ctx, resourceID, qty); releaseErr != nil {
			logger.Ctx(ctx).Error().Err(releaseErr).
				Str("resource_id", resourceID).
				Msg("failed to roll back reserved quantity after reservation create failure")
		}
		span.RecordError(err)
		return nil, err
	}

	reserveCounter.WithLabelValues("reserved").Inc()
	return reservation, nil
}

// Commit 把预占转为实售。
// 对已提交的预占单重复调用是 no-op（结算事件可能重投）；对已释放的预占单提交属于
// 一致性错误，记日志并拒绝。
func (l *Ledger) Commit(ctx context.Context, reservationID string) error {
	ctx, span := l.tracer.Start(ctx, "inventory.Commit")
	defer span.End()
	span.SetAttributes(attribute.String("inventory.reservation_id", reservationID))

	reservation, err := l.repo.FindReservation(ctx, reservationID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	ok, err := l.repo.TransitionReservation(ctx, reservationID, domain.ReservationReserved, domain.ReservationCommitted)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !ok {
		// 状态 CAS 没改到行：要么已提交（幂等，直接成功），要么已释放（异常）
		current, err := l.repo.FindReservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if current.Status == domain.ReservationCommitted {
			span.AddEvent("reservation already committed, no-op")
			return nil
		}
		logger.Ctx(ctx).Error().
			Str("reservation_id", reservationID).
			Str("status", string(current.Status)).
			Msg("commit attempted on a released reservation")
		return domain.ErrReservationNotFound
	}

	if _, err := l.repo.CommitQuantity(ctx, reservation.ResourceID, reservation.Quantity); err != nil {
		span.RecordError(err)
		return err
	}
	reserveCounter.WithLabelValues("committed").Inc()
	return nil
}

// Release 归还预占。幂等：重复释放是 no-op 而非错误，重试补偿不会造成双倍回补。
func (l *Ledger) Release(ctx context.Context, reservationID string) error {
	ctx, span := l.tracer.Start(ctx, "inventory.Release")
	defer span.End()
	span.SetAttributes(attribute.String("inventory.reservation_id", reservationID))

	reservation, err := l.repo.FindReservation(ctx, reservationID)
	if err != nil {
		span.RecordError(err)
		return err
	}

	ok, err := l.repo.TransitionReservation(ctx, reservationID, domain.ReservationReserved, domain.ReservationReleased)
	if err != nil {
		span.RecordError(err)
		return err
	}
	if !ok {
		span.AddEvent("reservation not in RESERVED state, release is a no-op")
		return nil
	}

	if _, err := l.repo.ReleaseQuantity(ctx, reservation.ResourceID, reservation.Quantity); err != nil {
		span.RecordError(err)
		return err
	}
	reserveCounter.WithLabelValues("released").Inc()
	return nil
}
