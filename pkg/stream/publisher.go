// Package stream fans engine events out to Kafka so downstream consumers
// (market data, account history, risk) get an ordered per-symbol feed
// without coupling to the matching core.
package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/openexch/excore/pkg/core/engine"
)

// Publisher writes engine events to one Kafka topic, keyed by symbol so a
// symbol's events land on a single partition in order.
type Publisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

func NewPublisher(brokers []string, topic string, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Error("kafka publish failed", zap.Int("messages", len(messages)), zap.Error(err))
				}
			},
		},
		log: log.Named("stream"),
	}
}

// Handle is an engine.EventHandler; register it before the engine starts.
func (p *Publisher) Handle(ev *engine.Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		p.log.Error("event marshal failed", zap.String("type", ev.Type), zap.Error(err))
		return
	}
	err = p.writer.WriteMessages(context.Background(), kafka.Message{
		Key:   []byte(ev.Symbol),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(ev.Type)},
		},
	})
	if err != nil {
		p.log.Error("kafka write failed", zap.String("symbol", ev.Symbol), zap.Error(err))
	}
}

// Close flushes buffered messages and shuts the writer down.
func (p *Publisher) Close() error {
	return p.writer.Close()
}
