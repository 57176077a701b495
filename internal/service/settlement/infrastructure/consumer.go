// internal/service/settlement/infrastructure/consumer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/segmentio/kafka-go"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/mq"
	"github.com/since-leoo/mine-shop-sub008/internal/service/settlement/domain"
)

// TopicSettlementDLT 结算流水线的死信主题。
const TopicSettlementDLT = "promo.settlement.dlt"

// Consumer 一个主题的结算消费者：取消息、恢复链路上下文、按主题分发，
// 失败走有界重试 + 死信，Execute 返回 nil 才提交 offset。
type Consumer struct {
	reader     *kafka.Reader
	failures   *mq.FailureHandler
	dispatcher *domain.Dispatcher
	topic      string
}

func NewConsumer(brokers []string, topic, groupID string, failures *mq.FailureHandler, dispatcher *domain.Dispatcher) *Consumer {
	return &Consumer{
		reader:     mq.NewKafkaReader(brokers, topic, groupID),
		failures:   failures,
		dispatcher: dispatcher,
		topic:      topic,
	}
}

// eventEnvelope 只取去重需要的事件号，事件体原样交给处理器。
type eventEnvelope struct {
	EventID string `json:"eventId"`
}

// Run 消费循环，ctx 取消后返回。
func (c *Consumer) Run(ctx context.Context) error {
	logger.Ctx(ctx).Info().Str("topic", c.topic).Msg("settlement consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		msgCtx := mq.ExtractTraceContext(ctx, msg.Headers)

		var envelope eventEnvelope
		if err := json.Unmarshal(msg.Value, &envelope); err != nil || envelope.EventID == "" {
			// 连事件号都解不出来的消息重试没有意义，直接进死信
			logger.Ctx(msgCtx).Error().
				Str("topic", c.topic).
				Int64("offset", msg.Offset).
				Msg("malformed settlement event")
			envelope.EventID = ""
		}

		err = c.failures.Execute(msgCtx, msg, func(ctx context.Context) error {
			if envelope.EventID == "" {
				return domain.ErrNoHandlers
			}
			return c.dispatcher.Dispatch(ctx, c.topic, envelope.EventID, msg.Value)
		})
		if err != nil {
			// 死信也写不进去，不提交 offset，等重新投递
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(msgCtx).Error().Err(err).Str("topic", c.topic).Msg("commit offset failed")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// DeadLetterMonitor 盯住死信主题，把进死信的消息打出结构化日志供运维排查。
type DeadLetterMonitor struct {
	reader *kafka.Reader
}

func NewDeadLetterMonitor(brokers []string, groupID string) *DeadLetterMonitor {
	return &DeadLetterMonitor{reader: mq.NewKafkaReader(brokers, TopicSettlementDLT, groupID)}
}

func (m *DeadLetterMonitor) Run(ctx context.Context) error {
	for {
		msg, err := m.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		event := logger.Ctx(mq.ExtractTraceContext(ctx, msg.Headers)).Error()
		for _, h := range msg.Headers {
			switch h.Key {
			case mq.HeaderOriginalTopic, mq.HeaderExceptionMessage, mq.HeaderOriginalOffset:
				event = event.Str(h.Key, string(h.Value))
			}
		}
		event.Str("key", string(msg.Key)).Msg("🚨 settlement dead letter received")
		if err := m.reader.CommitMessages(ctx, msg); err != nil {
			logger.Ctx(ctx).Error().Err(err).Msg("commit dead letter offset failed")
		}
	}
}

func (m *DeadLetterMonitor) Close() error {
	return m.reader.Close()
}
