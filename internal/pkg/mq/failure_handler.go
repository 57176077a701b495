// internal/pkg/mq/failure_handler.go
package mq

import (
	"context"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
)

// 死信消息头，记录原始位置与失败原因，便于人工排查。
const (
	HeaderRetryAttempt      = "x-retry-attempt"
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionMessage  = "x-exception-message"
)

// FailureHandler 实现消费失败的有界重试：
// 处理函数返回错误时按固定退避原地重试，重试耗尽后把消息连同失败上下文写入死信主题。
// 死信只记录、不再投递，需要运维介入。
type FailureHandler struct {
	dltWriter   *kafka.Writer
	maxAttempts int
	backoff     time.Duration
}

// NewFailureHandler 创建一个失败处理器。maxAttempts 含首次执行，最小为 1。
func NewFailureHandler(dltWriter *kafka.Writer, maxAttempts int, backoff time.Duration) *FailureHandler {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &FailureHandler{dltWriter: dltWriter, maxAttempts: maxAttempts, backoff: backoff}
}

// Execute 运行 process，失败则重试，重试耗尽后送死信。
// 返回 nil 表示消息可以安全提交 offset（成功或已送死信）。
func (f *FailureHandler) Execute(ctx context.Context, msg kafka.Message, process func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		lastErr = process(ctx)
		if lastErr == nil {
			return nil
		}
		logger.Ctx(ctx).Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", f.maxAttempts).
			Str("topic", msg.Topic).
			Msg("message processing failed, will retry")
		if attempt < f.maxAttempts {
			select {
			case <-time.After(f.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return f.sendToDeadLetter(ctx, msg, lastErr)
}

func (f *FailureHandler) sendToDeadLetter(ctx context.Context, msg kafka.Message, cause error) error {
	dltMsg := kafka.Message{
		Key:   msg.Key,
		Value: msg.Value,
		Headers: append(msg.Headers,
			kafka.Header{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
			kafka.Header{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
			kafka.Header{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
			kafka.Header{Key: HeaderExceptionMessage, Value: []byte(cause.Error())},
		),
	}
	InjectTraceContext(ctx, &dltMsg.Headers)

	if err := f.dltWriter.WriteMessages(ctx, dltMsg); err != nil {
		// 死信都写不进去时不能提交 offset，让消费组重新投递
		logger.Ctx(ctx).Error().Err(err).Str("topic", msg.Topic).Msg("failed to write dead letter message")
		return err
	}
	logger.Ctx(ctx).Error().
		Err(cause).
		Str("original_topic", msg.Topic).
		Int64("original_offset", msg.Offset).
		Msg("🚨 message moved to dead letter topic after retries exhausted")
	return nil
}
