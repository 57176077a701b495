// internal/service/order/infrastructure/kafka_producer.go
package infrastructure

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/since-leoo/mine-shop-sub008/internal/pkg/logger"
	"github.com/since-leoo/mine-shop-sub008/internal/pkg/mq"
	"github.com/since-leoo/mine-shop-sub008/internal/service/order/domain"
)

const (
	TopicOrderCreated = "promo.order.created"
	TopicOrderPaid    = "promo.order.paid"
)

// KafkaOrderProducer 把订单事件发到 Kafka。
// Key 用订单号，同一笔订单的事件保证落在同一分区。
type KafkaOrderProducer struct {
	createdWriter *kafka.Writer
	paidWriter    *kafka.Writer
}

func NewKafkaOrderProducer(brokers []string) *KafkaOrderProducer {
	return &KafkaOrderProducer{
		createdWriter: mq.NewKafkaWriter(brokers, TopicOrderCreated),
		paidWriter:    mq.NewKafkaWriter(brokers, TopicOrderPaid),
	}
}

func (p *KafkaOrderProducer) ProduceOrderCreated(ctx context.Context, event *domain.OrderCreatedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal order created event")
	}
	if err := mq.ProduceMessage(ctx, p.createdWriter, []byte(event.OrderNo), payload); err != nil {
		return errors.Wrapf(err, "produce order created %s", event.OrderNo)
	}
	logger.Ctx(ctx).Info().Str("order_no", event.OrderNo).Str("event_id", event.EventID).Msg("order created event produced")
	return nil
}

func (p *KafkaOrderProducer) ProduceOrderPaid(ctx context.Context, event *domain.OrderPaidEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal order paid event")
	}
	if err := mq.ProduceMessage(ctx, p.paidWriter, []byte(event.OrderNo), payload); err != nil {
		return errors.Wrapf(err, "produce order paid %s", event.OrderNo)
	}
	logger.Ctx(ctx).Info().Str("order_no", event.OrderNo).Str("event_id", event.EventID).Msg("order paid event produced")
	return nil
}

func (p *KafkaOrderProducer) Close() error {
	if err := p.createdWriter.Close(); err != nil {
		return err
	}
	return p.paidWriter.Close()
}
