// internal/service/settlement/domain/dispatcher.go
package domain

import (
	"context"
	"errors"
	"sync"
)

// ErrNoHandlers 主题没有任何订阅者，属于装配错误。
var ErrNoHandlers = errors.New("settlement: no handlers subscribed for topic")

// Handler 结算事件处理器。
// Handle 必须幂等：事件按 at-least-once 投递，去重失效时靠处理器自身兜底。
type Handler interface {
	Name() string
	Handle(ctx context.Context, eventID string, payload []byte) error
}

// Dispatcher 显式构造的订阅表：主题 -> 处理器列表。
// 组装根在启动时 Subscribe，消费者按主题分发；每个处理器独立去重，
// 一个处理器失败不会让同主题其它处理器重复执行已成功的部分。
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	store    ProcessedEventStore
}

func NewDispatcher(store ProcessedEventStore) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string][]Handler),
		store:    store,
	}
}

// Subscribe 给主题挂一个处理器。
func (d *Dispatcher) Subscribe(topic string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[topic] = append(d.handlers[topic], handler)
}

// Topics 返回有订阅者的主题列表。
func (d *Dispatcher) Topics() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	topics := make([]string, 0, len(d.handlers))
	for topic := range d.handlers {
		topics = append(topics, topic)
	}
	return topics
}

// Dispatch 把事件分发给主题下的所有处理器。
// 每个处理器先查去重表，已处理过的直接跳过；处理成功后落处理记录。
// 处理成功但记录没落上时，重投会再执行一次，处理器幂等兜底。
func (d *Dispatcher) Dispatch(ctx context.Context, topic, eventID string, payload []byte) error {
	d.mu.RLock()
	handlers := d.handlers[topic]
	d.mu.RUnlock()
	if len(handlers) == 0 {
		return ErrNoHandlers
	}

	for _, handler := range handlers {
		processed, err := d.store.Processed(ctx, eventID, handler.Name())
		if err != nil {
			return err
		}
		if processed {
			continue
		}
		if err := handler.Handle(ctx, eventID, payload); err != nil {
			return err
		}
		if err := d.store.MarkProcessed(ctx, eventID, handler.Name()); err != nil {
			return err
		}
	}
	return nil
}

// ProcessedEventStore 事件处理去重表。(event_id, handler) 唯一。
type ProcessedEventStore interface {
	Processed(ctx context.Context, eventID, handler string) (bool, error)
	MarkProcessed(ctx context.Context, eventID, handler string) error
}
