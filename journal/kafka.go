package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rustyeddy/papertrader/broker"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the message body published for every journal entry.
type Event struct {
	Type   string              `json:"type"`
	Trade  *broker.TradeRecord `json:"trade,omitempty"`
	Equity *EquitySnapshot     `json:"equity,omitempty"`
}

// KafkaJournal publishes trades and equity snapshots to a topic, keyed
// by symbol so one symbol's trades stay ordered.
type KafkaJournal struct {
	writer  messageWriter
	timeout time.Duration
}

func NewKafka(brokers []string, topic string) (*KafkaJournal, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka: brokers are required")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		WriteTimeout: 10 * time.Second,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &KafkaJournal{writer: w, timeout: 10 * time.Second}, nil
}

func (j *KafkaJournal) publish(key string, ev Event, at time.Time) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()
	return j.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: b,
		Time:  at,
	})
}

func (j *KafkaJournal) RecordTrade(rec broker.TradeRecord) error {
	return j.publish(rec.Symbol, Event{Type: "trade", Trade: &rec}, rec.ExitTime)
}

func (j *KafkaJournal) RecordEquity(e EquitySnapshot) error {
	return j.publish("equity", Event{Type: "equity", Equity: &e}, e.Time)
}

func (j *KafkaJournal) Close() error {
	return j.writer.Close()
}
