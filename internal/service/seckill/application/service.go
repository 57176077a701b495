// internal/service/seckill/application/service.go
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
	"github.com/since-leoo/mine-shop-sub008/internal/service/seckill/domain"
)

var sessionLifecycleCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mineshop",
	Subsystem: "seckill",
	Name:      "session_transitions_total",
	Help:      "Seckill session lifecycle transitions by target status.",
}, []string{"to"})

// StockProvisioner 为场次开库存账本单元。*inventory/application.Ledger 满足它。
type StockProvisioner interface {
	Provision(ctx context.Context, resourceID string, total int64) error
}

// CreateSessionCommand 创建秒杀场次。
type CreateSessionCommand struct {
	SkuID      string          `json:"skuId"`
	Name       string          `json:"name"`
	Price      decimal.Decimal `json:"price"`
	TotalStock int64           `json:"totalStock"`
	PerUserCap int64           `json:"perUserCap"`
	StartAt    time.Time       `json:"startAt"`
	EndAt      time.Time       `json:"endAt"`
}

// SeckillService 管理秒杀场次生命周期：创建、激活、售罄、结束。
// 激活和结束由调度器驱动，全部走状态 CAS，多实例并发扫描也只会生效一次。
type SeckillService struct {
	sessions    domain.SessionRepository
	gate        domain.AdmissionGate
	provisioner StockProvisioner
	tracer      trace.Tracer
}

func NewSeckillService(sessions domain.SessionRepository, gate domain.AdmissionGate, provisioner StockProvisioner, tracer trace.Tracer) *SeckillService {
	return &SeckillService{sessions: sessions, gate: gate, provisioner: provisioner, tracer: tracer}
}

// ResourceID 场次在库存账本里的资源标识。
func ResourceID(sessionID string) string {
	return "seckill:" + sessionID
}

// CreateSession 创建 PENDING 场次并开好账本单元。
func (s *SeckillService) CreateSession(ctx context.Context, cmd *CreateSessionCommand) (*domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "seckill.CreateSession")
	defer span.End()

	now := time.Now()
	session := &domain.Session{
		ID:         uuid.New().String(),
		SkuID:      cmd.SkuID,
		Name:       cmd.Name,
		Price:      cmd.Price,
		TotalStock: cmd.TotalStock,
		PerUserCap: cmd.PerUserCap,
		StartAt:    cmd.StartAt,
		EndAt:      cmd.EndAt,
		Status:     domain.SessionPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	span.SetAttributes(attribute.String("seckill.session_id", session.ID))

	if err := s.provisioner.Provision(ctx, ResourceID(session.ID), session.TotalStock); err != nil {
		return nil, err
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	logger.Ctx(ctx).Info().
		Str("session_id", session.ID).
		Str("sku_id", session.SkuID).
		Int64("total_stock", session.TotalStock).
		Msg("seckill session created")
	return session, nil
}

// GetSession 查询场次。
func (s *SeckillService) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	return s.sessions.FindByID(ctx, id)
}

// ActivateDueSessions 激活所有到点的 PENDING 场次。
// 赢得 CAS 的实例负责装载闸门额度；Prime 是 NX 写入，重复激活不会重置额度。
func (s *SeckillService) ActivateDueSessions(ctx context.Context, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, "seckill.ActivateDueSessions")
	defer span.End()

	due, err := s.sessions.FindDueForActivation(ctx, now)
	if err != nil {
		return err
	}
	for _, session := range due {
		ok, err := s.sessions.TransitionStatus(ctx, session.ID, domain.SessionPending, domain.SessionActive)
		if err != nil {
			return err
		}
		if !ok {
			continue // 别的实例已经激活
		}
		ttl := session.EndAt.Sub(now) + time.Hour
		if err := s.gate.Prime(ctx, session.ID, session.TotalStock, ttl); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("session_id", session.ID).Msg("🚨 prime admission gate failed")
			return err
		}
		sessionLifecycleCounter.WithLabelValues(string(domain.SessionActive)).Inc()
		logger.Ctx(ctx).Info().Str("session_id", session.ID).Msg("✅ seckill session activated")
	}
	return nil
}

// EndDueSessions 结束所有过期场次并清理闸门。
func (s *SeckillService) EndDueSessions(ctx context.Context, now time.Time) error {
	ctx, span := s.tracer.Start(ctx, "seckill.EndDueSessions")
	defer span.End()

	due, err := s.sessions.FindDueForEnd(ctx, now)
	if err != nil {
		return err
	}
	for _, session := range due {
		ok, err := s.sessions.TransitionStatus(ctx, session.ID, session.Status, domain.SessionEnded)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := s.gate.Drain(ctx, session.ID); err != nil {
			logger.Ctx(ctx).Error().Err(err).Str("session_id", session.ID).Msg("drain admission gate failed")
		}
		sessionLifecycleCounter.WithLabelValues(string(domain.SessionEnded)).Inc()
		logger.Ctx(ctx).Info().Str("session_id", session.ID).Msg("seckill session ended")
	}
	return nil
}

// markSoldOut 场次额度抢光后把状态翻到 SOLD_OUT。尽力而为：CAS 失败说明已经翻过。
// 触发点可能在要回滚的下单事务里，写入走 Detach 剥离事务句柄。
func (s *SeckillService) markSoldOut(ctx context.Context, sessionID string) {
	ctx = database.Detach(ctx)
	ok, err := s.sessions.TransitionStatus(ctx, sessionID, domain.SessionActive, domain.SessionSoldOut)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("session_id", sessionID).Msg("mark session sold out failed")
		return
	}
	if ok {
		sessionLifecycleCounter.WithLabelValues(string(domain.SessionSoldOut)).Inc()
		logger.Ctx(ctx).Info().Str("session_id", sessionID).Msg("seckill session sold out")
	}
}
