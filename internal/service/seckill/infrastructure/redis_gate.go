// internal/service/seckill/infrastructure/redis_gate.go
package infrastructure

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/redis"
	"github.com/since-leoo/mine-shop-sub008/internal/service/seckill/domain"
)

const (
	scriptAdmit  = "seckill_admit"
	scriptRefund = "seckill_refund"
	scriptPrime  = "seckill_prime"
)

// RedisAdmissionGate 用 Redis Lua 实现秒杀准入闸门。
type RedisAdmissionGate struct {
	client *redis.Client
}

func NewRedisAdmissionGate(client *redis.Client) (*RedisAdmissionGate, error) {
	for name, content := range map[string]string{
		scriptAdmit:  admitScript,
		scriptRefund: refundScript,
		scriptPrime:  primeScript,
	} {
		if err := client.LoadScriptFromContent(name, content); err != nil {
			return nil, errors.Wrapf(err, "load script %s", name)
		}
	}
	return &RedisAdmissionGate{client: client}, nil
}

func stockKey(sessionID string) string {
	return fmt.Sprintf("seckill:{%s}:stock", sessionID)
}

func userKey(sessionID, memberNo string) string {
	// 和库存键用同一个 hash tag，集群模式下两个键落在同一个槽，脚本才能原子执行
	return fmt.Sprintf("seckill:{%s}:user:%s", sessionID, memberNo)
}

func (g *RedisAdmissionGate) Prime(ctx context.Context, sessionID string, stock int64, ttl time.Duration) error {
	result, err := g.client.RunScript(ctx, scriptPrime, []string{stockKey(sessionID)}, stock, int64(ttl.Seconds()))
	if err != nil {
		return errors.Wrapf(err, "prime gate for session %s", sessionID)
	}
	if result.(int64) == 0 {
		logger.Ctx(ctx).Info().Str("session_id", sessionID).Msg("gate already primed, skip")
	}
	return nil
}

func (g *RedisAdmissionGate) Admit(ctx context.Context, sessionID, memberNo string, qty, perUserCap int64) (int64, error) {
	keys := []string{stockKey(sessionID), userKey(sessionID, memberNo)}
	// 用户占用键的 TTL 给 24h，场次结束后由 Drain 统一清理
	result, err := g.client.RunScript(ctx, scriptAdmit, keys, qty, perUserCap, int64((24*time.Hour).Seconds()))
	if err != nil {
		return 0, errors.Wrapf(err, "admit member %s to session %s", memberNo, sessionID)
	}
	remaining := result.(int64)
	switch remaining {
	case -1:
		return 0, domain.ErrSoldOut
	case -2:
		return 0, domain.ErrCapExceeded
	}
	return remaining, nil
}

func (g *RedisAdmissionGate) Refund(ctx context.Context, sessionID, memberNo string, qty int64) error {
	keys := []string{stockKey(sessionID), userKey(sessionID, memberNo)}
	if _, err := g.client.RunScript(ctx, scriptRefund, keys, qty); err != nil {
		return errors.Wrapf(err, "refund member %s quota in session %s", memberNo, sessionID)
	}
	return nil
}

func (g *RedisAdmissionGate) Drain(ctx context.Context, sessionID string) error {
	if err := g.client.GetClient().Del(ctx, stockKey(sessionID)).Err(); err != nil {
		return errors.Wrapf(err, "drain gate for session %s", sessionID)
	}
	return nil
}
