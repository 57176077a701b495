// internal/service/order/domain/strategy.go
package domain

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

// OrderDraft 是下单请求进入策略前的形态。
type OrderDraft struct {
	OrderNo       string
	MemberNo      string
	Type          Type
	SkuID         string
	Quantity      int64
	ActivityID    string
	GroupNo       string
	CouponGrantID string
}

// PricedLine 是策略计价后的订单行。
type PricedLine struct {
	SkuID     string
	Quantity  int64
	UnitPrice decimal.Decimal
	Discount  decimal.Decimal
	PayAmount decimal.Decimal
}

// Compensation 是一段失败补偿逻辑，事务回滚后执行，用于归还事务外占用的资源
// （例如秒杀的 Redis 准入额度）。
type Compensation func(ctx context.Context)

// ReserveResult 是策略预占资源的结果。
type ReserveResult struct {
	// ReservationID 关联库存账本里的预占单，记录在订单上供结算提交。
	ReservationID string
	// Compensate 在下单事务失败后调用；可以为 nil。
	Compensate Compensation
}

// Strategy 是订单类型策略：每种促销玩法（普通/秒杀/拼团）在下单时的
// 校验、计价与资源预占逻辑。
// Validate 与 Reserve 必须在同一个数据库事务里执行（事务经由 ctx 传递），
// 活动窗口与库存的复核不能和预占之间留下竞态窗口。
type Strategy interface {
	// Validate 校验订单草稿在当前活动状态下是否可下单。
	Validate(ctx context.Context, draft *OrderDraft) error
	// PriceLine 计算订单行价格。
	PriceLine(ctx context.Context, draft *OrderDraft) (*PricedLine, error)
	// Reserve 原子预占本次下单需要的全部有限资源。
	Reserve(ctx context.Context, draft *OrderDraft) (*ReserveResult, error)
}

// StrategyRegistry 是显式构造、显式注入的策略注册表。
// 各促销插件在进程启动（组装根）时注册自己的策略；运行期解析不到策略
// 说明部署配置有问题，返回 ErrUnsupportedOrderType 由上层按致命错误处理。
type StrategyRegistry struct {
	mu         sync.RWMutex
	strategies map[Type]Strategy
}

func NewStrategyRegistry() *StrategyRegistry {
	return &StrategyRegistry{strategies: make(map[Type]Strategy)}
}

// Register 注册一种订单类型的策略，重复注册直接 panic，属于启动期的装配错误。
func (r *StrategyRegistry) Register(t Type, s Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.strategies[t]; exists {
		panic(fmt.Sprintf("order strategy for type %s registered twice", t))
	}
	r.strategies[t] = s
}

// Resolve 按订单类型解析策略。
func (r *StrategyRegistry) Resolve(t Type) (Strategy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.strategies[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedOrderType, t)
	}
	return s, nil
}

// Types 返回已注册的订单类型，按字典序，便于启动日志输出。
func (r *StrategyRegistry) Types() []Type {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]Type, 0, len(r.strategies))
	for t := range r.strategies {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}
