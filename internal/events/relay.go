package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"salonsched/backend/internal/metrics"
	"salonsched/backend/internal/store"
	"salonsched/backend/internal/telemetry"
)

type RelayConfig struct {
	PollEvery time.Duration
	BatchSize int
}

// Relay moves committed outbox rows to a sink. A failed publish stops the
// batch so later events of the same aggregate are not sent ahead of it.
type Relay struct {
	outbox  store.Outbox
	sink    Sink
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     RelayConfig
}

func NewRelay(outbox store.Outbox, sink Sink, logger *slog.Logger, m *metrics.Metrics, cfg RelayConfig) *Relay {
	if cfg.PollEvery <= 0 {
		cfg.PollEvery = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{outbox: outbox, sink: sink, logger: logger, metrics: m, cfg: cfg}
}

func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.PollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

func (r *Relay) drain(ctx context.Context) {
	for ctx.Err() == nil {
		n, err := r.RunOnce(ctx)
		if err != nil {
			r.logger.Error("outbox publish failed", "err", err)
			return
		}
		if n < r.cfg.BatchSize {
			return
		}
	}
}

// RunOnce publishes at most one batch and returns how many events were sent.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	return r.outbox.ClaimBatch(ctx, r.cfg.BatchSize, func(ctx context.Context, batch []store.OutboxRecord) ([]uuid.UUID, error) {
		published := make([]uuid.UUID, 0, len(batch))
		for _, rec := range batch {
			if err := r.publish(ctx, rec); err != nil {
				r.metrics.EventPublished(string(rec.Event.Type), "error")
				return published, err
			}
			r.metrics.EventPublished(string(rec.Event.Type), "ok")
			published = append(published, rec.Event.ID)
		}
		return published, nil
	})
}

func (r *Relay) publish(ctx context.Context, rec store.OutboxRecord) error {
	msgCtx := telemetry.ContextWithTraceContext(ctx, rec.TraceParent, rec.TraceState)
	msgCtx, span := telemetry.Tracer().Start(msgCtx, "outbox.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("event.id", rec.Event.ID.String()),
			attribute.String("event.type", string(rec.Event.Type)),
			attribute.Int("outbox.attempts", rec.Attempts),
		),
	)
	defer span.End()

	if err := r.sink.Publish(msgCtx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
