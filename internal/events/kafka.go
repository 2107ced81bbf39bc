package events

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"salonsched/backend/internal/store"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaSink struct {
	writer messageWriter
}

func NewKafkaSink(brokers []string) *KafkaSink {
	return &KafkaSink{writer: kafka.NewWriter(kafka.WriterConfig{
		Brokers:  brokers,
		Balancer: &kafka.Hash{},
	})}
}

func (s *KafkaSink) Publish(ctx context.Context, rec store.OutboxRecord) error {
	return s.writer.WriteMessages(ctx, kafkaMessage(ctx, rec))
}

func (s *KafkaSink) Close() error {
	return s.writer.Close()
}

func kafkaMessage(ctx context.Context, rec store.OutboxRecord) kafka.Message {
	evt := rec.Event
	msg := kafka.Message{
		Topic: string(evt.Type),
		Key:   []byte(evt.AggregateID.String()),
		Value: evt.Payload,
		Headers: []kafka.Header{
			{Key: headerEventID, Value: []byte(evt.ID.String())},
			{Key: headerEventType, Value: []byte(evt.Type)},
			{Key: headerSalonID, Value: []byte(evt.SalonID.String())},
		},
	}
	msg.Headers = injectTraceHeaders(ctx, msg.Headers)
	return msg
}

func injectTraceHeaders(ctx context.Context, headers []kafka.Header) []kafka.Header {
	carrier := &kafkaHeaderCarrier{headers: headers}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier.headers
}

type kafkaHeaderCarrier struct {
	headers []kafka.Header
}

func (c *kafkaHeaderCarrier) Get(key string) string {
	for _, h := range c.headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *kafkaHeaderCarrier) Keys() []string {
	keys := make([]string, 0, len(c.headers))
	for _, h := range c.headers {
		keys = append(keys, h.Key)
	}
	return keys
}

func (c *kafkaHeaderCarrier) Set(key string, value string) {
	for i := range c.headers {
		if c.headers[i].Key == key {
			c.headers[i].Value = []byte(value)
			return
		}
	}
	c.headers = append(c.headers, kafka.Header{Key: key, Value: []byte(value)})
}

var _ propagation.TextMapCarrier = (*kafkaHeaderCarrier)(nil)

// KafkaReadyCheck dials the first broker.
func KafkaReadyCheck(brokers string) func(context.Context) error {
	return func(ctx context.Context) error {
		list := SplitBrokers(brokers)
		if len(list) == 0 {
			return errors.New("kafka brokers not configured")
		}
		dialer := kafka.Dialer{Timeout: 2 * time.Second}
		conn, err := dialer.DialContext(ctx, "tcp", list[0])
		if err != nil {
			return err
		}
		_ = conn.Close()
		return nil
	}
}
