// Package kafkatest provides an in-memory broker that satisfies the producer and
// handler contracts of kafka_infra, for tests that need a full request/reply loop.
package kafkatest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	kafka_infra "purchaseorders/internal/infrastructure/kafka"
)

var ErrBrokerClosed = errors.New("kafkatest: broker closed")

// Broker delivers every topic on a single ordered partition.
type Broker struct {
	mu       sync.Mutex
	topics   map[string]*topic
	produced map[string][]kafka.Message
	failWith error
	closed   bool
	wg       sync.WaitGroup
}

type topic struct {
	queue    chan kafka.Message
	handlers []kafka_infra.MessageHandler
	delay    time.Duration
	paused   bool
	offset   int64
}

func NewBroker() *Broker {
	return &Broker{
		topics:   make(map[string]*topic),
		produced: make(map[string][]kafka.Message),
	}
}

// Subscribe registers h for name. Handler errors are ignored; there is no redelivery.
func (b *Broker) Subscribe(name string, h kafka_infra.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.topicLocked(name)
	t.handlers = append(t.handlers, h)
}

// FailProduce makes every later Produce call return err; nil restores delivery.
func (b *Broker) FailProduce(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWith = err
}

// Pause records but never delivers messages on name.
func (b *Broker) Pause(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topicLocked(name).paused = true
}

// Delay postpones delivery of every message on name by d.
func (b *Broker) Delay(name string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.topicLocked(name).delay = d
}

func (b *Broker) Produce(_ context.Context, msgs ...kafka.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBrokerClosed
	}
	if b.failWith != nil {
		return b.failWith
	}
	for _, msg := range msgs {
		t := b.topicLocked(msg.Topic)
		msg.Offset = t.offset
		msg.Time = time.Now()
		t.offset++
		b.produced[msg.Topic] = append(b.produced[msg.Topic], msg)
		if !t.paused {
			t.queue <- msg
		}
	}
	return nil
}

// Messages returns every message produced on name so far.
func (b *Broker) Messages(name string) []kafka.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]kafka.Message(nil), b.produced[name]...)
}

func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, t := range b.topics {
		close(t.queue)
	}
	b.mu.Unlock()
	b.wg.Wait()
	return nil
}

func (b *Broker) topicLocked(name string) *topic {
	if t, ok := b.topics[name]; ok {
		return t
	}
	t := &topic{queue: make(chan kafka.Message, 1024)}
	b.topics[name] = t
	b.wg.Add(1)
	go b.deliver(name, t)
	return t
}

func (b *Broker) deliver(name string, t *topic) {
	defer b.wg.Done()
	for msg := range t.queue {
		b.mu.Lock()
		delay := t.delay
		handlers := append([]kafka_infra.MessageHandler(nil), t.handlers...)
		b.mu.Unlock()

		if delay > 0 {
			time.Sleep(delay)
		}
		msg.Partition = 0
		for _, h := range handlers {
			_ = h(context.Background(), msg)
		}
	}
}

var _ kafka_infra.Producer = (*Broker)(nil)
