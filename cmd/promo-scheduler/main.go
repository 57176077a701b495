// cmd/promo-scheduler/main.go
package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/bootstrap"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/config"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/database"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/redis"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/zookeeper"
	gbapp "github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/application"
	gbinfra "github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/infrastructure"
	invapp "github.com/since-leoo/mine-shop-sub008/internal/service/inventory/application"
	invinfra "github.com/since-leoo/mine-shop-sub008/internal/service/inventory/infrastructure"
	promapp "github.com/since-leoo/mine-shop-sub008/internal/service/promotion/application"
	prominfra "github.com/since-leoo/mine-shop-sub008/internal/service/promotion/infrastructure"
	"github.com/since-leoo/mine-shop-sub008/internal/service/scheduler"
	skapp "github.com/since-leoo/mine-shop-sub008/internal/service/seckill/application"
	skinfra "github.com/since-leoo/mine-shop-sub008/internal/service/seckill/infrastructure"
)

// 调度进程：到点的活动激活/结束、超时团判败、终态团结算、过期券清理。
// 任务全部幂等，ZooKeeper 锁只做多实例去重，抢不到锁就跳过本轮。
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := database.Open(cfg.Infra.MySQL.DSN)
	if err != nil {
		log.Fatalf("open mysql: %v", err)
	}
	redisClient, err := redis.NewClient(cfg.Infra.Redis.Addrs)
	if err != nil {
		log.Fatalf("connect redis: %v", err)
	}
	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Addrs, 10*time.Second)
	if err != nil {
		log.Fatalf("connect zookeeper: %v", err)
	}
	brokers := strings.Split(cfg.Infra.Kafka.Brokers, ",")
	tracer := otel.Tracer("promo-scheduler")

	ledger := invapp.NewLedger(invinfra.NewGormInventoryRepository(db), tracer)

	gate, err := skinfra.NewRedisAdmissionGate(redisClient)
	if err != nil {
		log.Fatalf("create admission gate: %v", err)
	}
	seckillService := skapp.NewSeckillService(skinfra.NewGormSessionRepository(db), gate, ledger, tracer)

	groupProducer := gbinfra.NewKafkaGroupProducer(brokers)
	groupBuyService := gbapp.NewGroupBuyService(
		gbinfra.NewGormActivityRepository(db),
		gbinfra.NewGormGroupRepository(db),
		groupProducer,
		ledger,
		tracer,
	)

	ruleEngine, err := prominfra.NewCelRuleEngine()
	if err != nil {
		log.Fatalf("create rule engine: %v", err)
	}
	promotionService := promapp.NewPromotionService(prominfra.NewGormCouponRepository(db), ruleEngine, tracer)

	interval := time.Duration(cfg.Promo.SweepIntervalSeconds) * time.Second
	jobTimeout := 30 * time.Second
	sched := scheduler.New(
		func(jobName string) (scheduler.JobLocker, error) {
			return zookeeper.NewJobLock(zkConn, jobName)
		},
		scheduler.Job{Name: "seckill-activate", Interval: interval, Timeout: jobTimeout, Run: seckillService.ActivateDueSessions},
		scheduler.Job{Name: "seckill-end", Interval: interval, Timeout: jobTimeout, Run: seckillService.EndDueSessions},
		scheduler.Job{Name: "groupbuy-activate", Interval: interval, Timeout: jobTimeout, Run: groupBuyService.ActivateDueActivities},
		scheduler.Job{Name: "groupbuy-end", Interval: interval, Timeout: jobTimeout, Run: groupBuyService.EndDueActivities},
		scheduler.Job{Name: "groupbuy-expire-groups", Interval: interval, Timeout: jobTimeout, Run: groupBuyService.ExpireFormingGroups},
		scheduler.Job{Name: "groupbuy-settle", Interval: interval, Timeout: jobTimeout, Run: groupBuyService.SettleFinishedGroups},
		scheduler.Job{Name: "coupon-expire", Interval: time.Minute, Timeout: jobTimeout, Run: promotionService.ExpireDueGrants},
	)

	schedCtx, stopScheduler := context.WithCancel(context.Background())
	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(schedCtx) }()

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: "promo-scheduler",
		Port:        cfg.Service.Port,
		OnShutdown: func(ctx context.Context) {
			stopScheduler()
			select {
			case err := <-schedDone:
				if err != nil {
					logger.Logger.Error().Err(err).Msg("scheduler exited with error")
				}
			case <-ctx.Done():
				logger.Logger.Warn().Msg("scheduler did not stop before shutdown deadline")
			}
			_ = groupProducer.Close()
			_ = redisClient.Close()
			zkConn.Close()
		},
	})
}
