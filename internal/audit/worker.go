package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

const (
	// Topic carries the audit event stream.
	Topic = "pigateway.audit.events"

	defaultBatchSize    = 100
	defaultPollInterval = 2 * time.Second
)

// Worker drains the outbox and publishes events to Kafka. One worker per
// process; the published_at stamp keeps restarts from re-sending.
type Worker struct {
	store        Store
	client       *kgo.Client
	logger       *slog.Logger
	batchSize    int
	pollInterval time.Duration
}

// NewWorker connects to the brokers and ensures the topic exists.
func NewWorker(ctx context.Context, brokers []string, store Store, logger *slog.Logger) (*Worker, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(Topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to kafka: %w", err)
	}

	if err := ensureTopic(ctx, client); err != nil {
		client.Close()
		return nil, err
	}

	return &Worker{
		store:        store,
		client:       client,
		logger:       logger,
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
	}, nil
}

func ensureTopic(ctx context.Context, client *kgo.Client) error {
	adm := kadm.NewClient(client)
	resp, err := adm.CreateTopic(ctx, 3, 1, nil, Topic)
	if err != nil {
		return fmt.Errorf("ensure audit topic: %w", err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("ensure audit topic: %w", resp.Err)
	}
	return nil
}

// Run polls the outbox until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.drainOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) error {
	events, err := w.store.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("fetch outbox: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			w.logger.ErrorContext(ctx, "skipping unmarshalable audit event", "event_id", event.ID, "error", err)
			published = append(published, event.ID)
			continue
		}
		record := &kgo.Record{
			Key:   []byte(event.PaymentID),
			Value: payload,
		}
		if err := w.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			// Leave the rest unpublished; the next tick retries in order.
			if markErr := w.store.MarkPublished(ctx, published); markErr != nil {
				return fmt.Errorf("mark published after partial drain: %w", markErr)
			}
			return fmt.Errorf("produce audit event: %w", err)
		}
		published = append(published, event.ID)
	}

	if err := w.store.MarkPublished(ctx, published); err != nil {
		return fmt.Errorf("mark published: %w", err)
	}
	w.logger.DebugContext(ctx, "published audit events", "count", len(published))
	return nil
}

// Close flushes buffered records and releases the Kafka client.
func (w *Worker) Close() {
	w.client.Close()
}
