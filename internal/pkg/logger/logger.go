// internal/pkg/logger/logger.go
package logger

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger 是进程内共享的根日志器。
// 所有业务代码都应该通过 Ctx(ctx) 获取带链路信息的日志器，而不是直接使用它。
var Logger zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// Init 根据服务名和日志级别重建根日志器，在每个服务的组装根中调用一次。
func Init(serviceName string) {
	level := zerolog.InfoLevel
	if lv, err := zerolog.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil && lv != zerolog.NoLevel {
		level = lv
	}
	Logger = zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Ctx 返回一个附带了当前 Span 的 trace_id / span_id 的日志器。
// 这样业务日志可以和 Jaeger 中的链路互相跳转。
func Ctx(ctx context.Context) *zerolog.Logger {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.IsValid() {
		return &Logger
	}
	l := Logger.With().
		Str("trace_id", spanCtx.TraceID().String()).
		Str("span_id", spanCtx.SpanID().String()).
		Logger()
	return &l
}
