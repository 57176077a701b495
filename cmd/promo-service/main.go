// cmd/promo-service/main.go
package main

import (
	"context"
	"flag"
	"log"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/bootstrap"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/config"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/database"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/httpclient"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/mq"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/redis"
	gbapp "github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/application"
	gbinfra "github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/infrastructure"
	gbiface "github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/interfaces"
	invapp "github.com/since-leoo/mine-shop-sub008/internal/service/inventory/application"
	invinfra "github.com/since-leoo/mine-shop-sub008/internal/service/inventory/infrastructure"
	orderapp "github.com/since-leoo/mine-shop-sub008/internal/service/order/application"
	orderdomain "github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
	orderinfra "github.com/since-leoo/mine-shop-sub008/internal/service/order/infrastructure"
	orderiface "github.com/since-leoo/mine-shop-sub008/internal/service/order/interfaces"
	promapp "github.com/since-leoo/mine-shop-sub008/internal/service/promotion/application"
	prominfra "github.com/since-leoo/mine-shop-sub008/internal/service/promotion/infrastructure"
	promiface "github.com/since-leoo/mine-shop-sub008/internal/service/promotion/interfaces"
	skapp "github.com/since-leoo/mine-shop-sub008/internal/service/seckill/application"
	skinfra "github.com/since-leoo/mine-shop-sub008/internal/service/seckill/infrastructure"
	skiface "github.com/since-leoo/mine-shop-sub008/internal/service/seckill/interfaces"
	setapp "github.com/since-leoo/mine-shop-sub008/internal/service/settlement/application"
	setdomain "github.com/since-leoo/mine-shop-sub008/internal/service/settlement/domain"
	setinfra "github.com/since-leoo/mine-shop-sub008/internal/service/settlement/infrastructure"
)

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
	brokers := strings.Split(cfg.Infra.Kafka.Brokers, ",")
	tracer := otel.Tracer(cfg.Service.Name)

	// 库存账本
	ledger := invapp.NewLedger(invinfra.NewGormInventoryRepository(db), tracer)

	// 优惠券
	ruleEngine, err := prominfra.NewCelRuleEngine()
	if err != nil {
		log.Fatalf("create rule engine: %v", err)
	}
	promotionService := promapp.NewPromotionService(prominfra.NewGormCouponRepository(db), ruleEngine, tracer)

	// 秒杀
	gate, err := skinfra.NewRedisAdmissionGate(redisClient)
	if err != nil {
		log.Fatalf("create admission gate: %v", err)
	}
	sessionRepo := skinfra.NewGormSessionRepository(db)
	seckillService := skapp.NewSeckillService(sessionRepo, gate, ledger, tracer)

	// 拼团
	activityRepo := gbinfra.NewGormActivityRepository(db)
	groupRepo := gbinfra.NewGormGroupRepository(db)
	groupProducer := gbinfra.NewKafkaGroupProducer(brokers)
	groupBuyService := gbapp.NewGroupBuyService(activityRepo, groupRepo, groupProducer, ledger, tracer)

	// 订单：策略注册表在组装根一次装好，运行期不再变化
	orderRepo := orderinfra.NewGormOrderRepository(db)
	registry := orderdomain.NewStrategyRegistry()
	snapshot := orderinfra.NewHTTPSnapshotAdapter(httpclient.NewClient(tracer), cfg.Promo.ProductServiceURL)
	registry.Register(orderdomain.TypeNormal, orderapp.NewNormalStrategy(snapshot, ledger, tracer))
	registry.Register(orderdomain.TypeSeckill, skapp.NewSeckillStrategy(seckillService, sessionRepo, gate, orderRepo, ledger, tracer))
	registry.Register(orderdomain.TypeGroupBuy, gbapp.NewGroupBuyStrategy(groupBuyService, activityRepo, ledger, tracer))

	orderProducer := orderinfra.NewKafkaOrderProducer(brokers)
	orderService := orderapp.NewOrderService(
		registry, orderRepo, orderProducer, promotionService, ledger,
		orderinfra.NewGormTxRunner(db), tracer,
	)

	// 结算流水线：订阅表 + 去重表 + 有界重试/死信
	dispatcher := setdomain.NewDispatcher(setinfra.NewGormProcessedStore(db))
	dispatcher.Subscribe(orderinfra.TopicOrderPaid, setapp.NewOrderPaidHandler(orderRepo, ledger, promotionService))
	dispatcher.Subscribe(gbinfra.TopicGroupSettled, setapp.NewGroupSettledHandler(orderRepo, ledger))

	dltWriter := mq.NewKafkaWriter(brokers, setinfra.TopicSettlementDLT)
	failures := mq.NewFailureHandler(dltWriter, cfg.Promo.SettlementMaxAttempts, time.Second)
	paidConsumer := setinfra.NewConsumer(brokers, orderinfra.TopicOrderPaid, "promo-settlement", failures, dispatcher)
	groupConsumer := setinfra.NewConsumer(brokers, gbinfra.TopicGroupSettled, "promo-settlement", failures, dispatcher)
	dltMonitor := setinfra.NewDeadLetterMonitor(brokers, "promo-settlement-dlt")

	consumerCtx, stopConsumers := context.WithCancel(context.Background())
	g, consumerCtx := errgroup.WithContext(consumerCtx)
	g.Go(func() error { return paidConsumer.Run(consumerCtx) })
	g.Go(func() error { return groupConsumer.Run(consumerCtx) })
	g.Go(func() error { return dltMonitor.Run(consumerCtx) })

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: cfg.Service.Name,
		Port:        cfg.Service.Port,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			orderiface.NewHandler(orderService).RegisterHandlers(appCtx.Mux)
			skiface.NewHandler(seckillService).RegisterHandlers(appCtx.Mux)
			gbiface.NewHandler(groupBuyService).RegisterHandlers(appCtx.Mux)
			promiface.NewHandler(promotionService).RegisterHandlers(appCtx.Mux)
			logger.Logger.Info().
				Strs("order_types", typeNames(registry.Types())).
				Msg("order strategies registered")
		},
		OnShutdown: func(ctx context.Context) {
			stopConsumers()
			if err := g.Wait(); err != nil {
				logger.Logger.Error().Err(err).Msg("settlement consumers exited with error")
			}
			_ = paidConsumer.Close()
			_ = groupConsumer.Close()
			_ = dltMonitor.Close()
			_ = dltWriter.Close()
			_ = orderProducer.Close()
			_ = groupProducer.Close()
			_ = redisClient.Close()
		},
	})
}

func typeNames(types []orderdomain.Type) []string {
	names := make([]string, 0, len(types))
	for _, t := range types {
		names = append(names, string(t))
	}
	return names
}
