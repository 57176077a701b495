// internal/service/groupbuy/infrastructure/kafka_producer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/mq"
	"github.com/since-leoo/mine-shop-sub008/internal/service/groupbuy/domain"
)

const TopicGroupSettled = "promo.groupbuy.settled"

// KafkaGroupProducer 拼团结算事件生产者。Key 用团号，一个团的事件有序。
type KafkaGroupProducer struct {
	writer *kafka.Writer
}

func NewKafkaGroupProducer(brokers []string) *KafkaGroupProducer {
	return &KafkaGroupProducer{writer: mq.NewKafkaWriter(brokers, TopicGroupSettled)}
}

func (p *KafkaGroupProducer) ProduceGroupSettled(ctx context.Context, event *domain.GroupSettledEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal group settled event")
	}
	if err := mq.ProduceMessage(ctx, p.writer, []byte(event.GroupNo), payload); err != nil {
		return errors.Wrapf(err, "produce group settled %s", event.GroupNo)
	}
	logger.Ctx(ctx).Info().
		Str("group_no", event.GroupNo).
		Str("status", string(event.Status)).
		Str("event_id", event.EventID).
		Msg("group settled event produced")
	return nil
}

func (p *KafkaGroupProducer) Close() error {
	return p.writer.Close()
}
