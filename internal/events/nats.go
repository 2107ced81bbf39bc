package events

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"salonsched/backend/internal/store"
)

type msgPublisher interface {
	PublishMsg(msg *nats.Msg) error
}

type NATSSink struct {
	pub  msgPublisher
	conn *nats.Conn
}

func DialNATSSink(url string) (*NATSSink, error) {
	conn, err := nats.Connect(url,
		nats.Name("salonsched-relay"),
		nats.Timeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return &NATSSink{pub: conn, conn: conn}, nil
}

func (s *NATSSink) Publish(ctx context.Context, rec store.OutboxRecord) error {
	return s.pub.PublishMsg(natsMessage(ctx, rec))
}

func (s *NATSSink) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.FlushTimeout(5 * time.Second)
	s.conn.Close()
	return err
}

// Ready reports whether the connection is up.
func (s *NATSSink) Ready(ctx context.Context) error {
	if s.conn == nil || !s.conn.IsConnected() {
		return errors.New("nats not connected")
	}
	return nil
}

func natsMessage(ctx context.Context, rec store.OutboxRecord) *nats.Msg {
	evt := rec.Event
	msg := nats.NewMsg(string(evt.Type))
	msg.Data = evt.Payload
	msg.Header.Set(headerEventID, evt.ID.String())
	msg.Header.Set(headerEventType, string(evt.Type))
	msg.Header.Set(headerSalonID, evt.SalonID.String())
	// JetStream drops duplicates with the same id inside its window.
	msg.Header.Set(nats.MsgIdHdr, evt.ID.String())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(msg.Header))
	return msg
}
