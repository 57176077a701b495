// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/config"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/nacos"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/tracing"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/utils"
)

// AppCtx 传递给各服务的注册回调，用于挂载各自的 HTTP 路由。
type AppCtx struct {
	Mux *http.ServeMux
}

// AppInfo 描述一个服务进程的启动参数。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)
	// OnShutdown 在收到退出信号后、HTTP 关停前执行，用于停消费者、关连接。
	OnShutdown func(ctx context.Context)
}

// StartService 封装所有服务进程的通用启动与优雅关停流程：
// tracing -> nacos 注册 -> HTTP(健康检查/metrics) -> 阻塞等信号 -> 逆序清理。
func StartService(info AppInfo) {
	cfg := config.GetCurrentConfig()

	logger.Init(info.ServiceName)

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	var namingClient *nacos.Client
	var ip string
	if cfg.Infra.Nacos.ServerAddrs != "" {
		namingClient, err = nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		ip, err = utils.GetOutboundIP()
		if err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.Logger.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		logger.Logger.Info().Str("addr", server.Addr).Msgf("✅ %s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Logger.Info().Msgf("🛑 shutting down %s ...", info.ServiceName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 清理顺序与初始化相反
	if namingClient != nil {
		if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
			logger.Logger.Error().Err(err).Msg("error deregistering from nacos")
		}
	}
	if info.OnShutdown != nil {
		info.OnShutdown(ctx)
	}
	if err := tp.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down tracer provider")
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Logger.Error().Err(err).Msg("error shutting down http server")
	}
	logger.Logger.Info().Msgf("%s gracefully shut down", info.ServiceName)
}
