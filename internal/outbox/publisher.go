package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/pawprint-labs/groomsched/libs/db"
	"github.com/pawprint-labs/groomsched/libs/kafkax"
	otelx "github.com/pawprint-labs/groomsched/libs/otel"
	"github.com/segmentio/kafka-go"
)

const (
	defaultPollEvery = 2 * time.Second
	defaultBatchSize = 50
)

// Publisher drains committed outbox rows into Kafka on a fixed poll
// interval. Rows are marked published in the same transaction that read
// them, so delivery is at-least-once: a crash between the Kafka write and
// the mark replays the batch on the next tick.
type Publisher struct {
	pool      *db.Pool
	repo      *Repository
	logger    *slog.Logger
	brokers   []string
	pollEvery time.Duration
	batchSize int
}

type PublisherConfig struct {
	Brokers   string
	PollEvery time.Duration
	BatchSize int
}

func NewPublisher(pool *db.Pool, repo *Repository, logger *slog.Logger, cfg PublisherConfig) *Publisher {
	p := &Publisher{
		pool:      pool,
		repo:      repo,
		logger:    logger,
		brokers:   kafkax.SplitBrokers(cfg.Brokers),
		pollEvery: cfg.PollEvery,
		batchSize: cfg.BatchSize,
	}
	if p.pollEvery <= 0 {
		p.pollEvery = defaultPollEvery
	}
	if p.batchSize <= 0 {
		p.batchSize = defaultBatchSize
	}
	return p
}

// Run blocks until ctx is canceled. With no brokers configured the relay
// is disabled and events accumulate unpublished.
func (p *Publisher) Run(ctx context.Context) {
	if len(p.brokers) == 0 {
		p.logger.Warn("outbox relay disabled (no kafka brokers configured)")
		return
	}

	writer := kafka.NewWriter(kafka.WriterConfig{
		Brokers:  p.brokers,
		Balancer: &kafka.Hash{},
	})
	defer writer.Close()

	ticker := time.NewTicker(p.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := p.relayOnce(ctx, writer)
			if err != nil {
				p.logger.Error("outbox relay failed", "err", err)
			} else if n > 0 {
				p.logger.Info("outbox relayed", "events", n)
			}
		}
	}
}

func (p *Publisher) relayOnce(ctx context.Context, writer *kafka.Writer) (int, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	records, err := p.repo.FetchUnpublished(ctx, tx, p.batchSize)
	if err != nil {
		return 0, err
	}
	if len(records) == 0 {
		return 0, tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(records))
	ids := make([]int64, 0, len(records))
	for _, rec := range records {
		msgCtx := otelx.ContextWithTraceContext(ctx, rec.Traceparent, rec.Tracestate)
		msg := kafka.Message{
			Topic: rec.EventType,
			Key:   []byte(rec.AggregateID),
			Value: rec.Payload,
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(rec.EventID)},
				{Key: "event_type", Value: []byte(rec.EventType)},
			},
		}
		msg.Headers = kafkax.InjectTraceHeaders(msgCtx, msg.Headers)
		msgs = append(msgs, msg)
		ids = append(ids, rec.ID)
	}

	if err := writer.WriteMessages(ctx, msgs...); err != nil {
		return 0, err
	}
	if err := p.repo.MarkPublished(ctx, tx, ids); err != nil {
		return 0, err
	}
	return len(ids), tx.Commit(ctx)
}
