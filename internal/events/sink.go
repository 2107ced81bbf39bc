// Package events relays outbox rows to a broker. Kafka topics and NATS
// subjects are named after the event type; the aggregate id is the
// partition key so events of one appointment stay ordered.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"salonsched/backend/internal/store"
)

const (
	headerEventID   = "event_id"
	headerEventType = "event_type"
	headerSalonID   = "salon_id"
)

type Sink interface {
	Publish(ctx context.Context, rec store.OutboxRecord) error
	Close() error
}

// LogSink writes events to the logger. Used when no broker is configured.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Publish(ctx context.Context, rec store.OutboxRecord) error {
	evt := rec.Event
	s.logger.InfoContext(ctx, "domain event",
		headerEventID, evt.ID.String(),
		headerEventType, string(evt.Type),
		"aggregate_id", evt.AggregateID.String(),
		headerSalonID, evt.SalonID.String(),
		"payload", string(evt.Payload),
	)
	return nil
}

func (s *LogSink) Close() error { return nil }

// NewSink builds the sink named by kind: "log", "kafka" or "nats".
func NewSink(kind, kafkaBrokers, natsURL string, logger *slog.Logger) (Sink, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "log":
		return NewLogSink(logger), nil
	case "kafka":
		brokers := SplitBrokers(kafkaBrokers)
		if len(brokers) == 0 {
			return nil, fmt.Errorf("events sink kafka requires kafka.brokers")
		}
		return NewKafkaSink(brokers), nil
	case "nats":
		if strings.TrimSpace(natsURL) == "" {
			return nil, fmt.Errorf("events sink nats requires nats.url")
		}
		return DialNATSSink(natsURL)
	default:
		return nil, fmt.Errorf("unknown events sink %q", kind)
	}
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		b = strings.TrimSpace(b)
		if b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
