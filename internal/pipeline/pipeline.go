package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/couchcryptid/parking-recommender/internal/domain"
	"github.com/couchcryptid/parking-recommender/internal/observability"
	"github.com/couchcryptid/storm-data-shared/retry"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 5 * time.Second
)

// BatchExtractor reads up to batchSize raw events from the source.
type BatchExtractor interface {
	ExtractBatch(ctx context.Context, batchSize int) ([]domain.RawEvent, error)
}

// Transformer converts a raw event into an output event.
type Transformer interface {
	Transform(ctx context.Context, raw domain.RawEvent) (domain.OutputEvent, error)
}

// BatchLoader writes multiple output events to the destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, events []domain.OutputEvent) error
}

// Pipeline consumes recommendation requests in batches, scores them, and
// publishes the responses.
type Pipeline struct {
	extractor   BatchExtractor
	transformer Transformer
	loader      BatchLoader
	logger      *slog.Logger
	metrics     *observability.Metrics
	batchSize   int
}

// New creates a Pipeline with the given stages and observability.
func New(e BatchExtractor, t Transformer, l BatchLoader, logger *slog.Logger, metrics *observability.Metrics, batchSize int) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
		batchSize:   batchSize,
	}
}

// Run processes batches until the context is cancelled. Extract and load
// failures are retried with exponential backoff; it only returns nil.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "batch_size", p.batchSize)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)

	delay := initialBackoff
	for ctx.Err() == nil {
		if err := p.processBatch(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			if !retry.SleepWithContext(ctx, delay) {
				break
			}
			delay = retry.NextBackoff(delay, maxBackoff)
			continue
		}
		delay = initialBackoff
	}
	p.logger.Info("pipeline stopping", "reason", ctx.Err())
	return nil
}

// processBatch runs one extract, transform, load cycle. A returned error
// means the batch must be retried; nothing was committed past the failure.
func (p *Pipeline) processBatch(ctx context.Context) error {
	start := time.Now()

	rawBatch, err := p.extractor.ExtractBatch(ctx, p.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Error("extract batch failed", "error", err)
		}
		return err
	}
	if len(rawBatch) == 0 {
		return nil
	}
	p.metrics.MessagesConsumed.Add(float64(len(rawBatch)))
	p.metrics.BatchSize.Observe(float64(len(rawBatch)))

	outBatch := make([]domain.OutputEvent, 0, len(rawBatch))
	loaded := make([]domain.RawEvent, 0, len(rawBatch))
	for _, raw := range rawBatch {
		out, err := p.transformer.Transform(ctx, raw)
		if err != nil {
			// Poison messages are committed so they are never redelivered.
			p.logger.Warn("transform failed, skipping message",
				"error", err,
				"topic", raw.Topic,
				"partition", raw.Partition,
				"offset", raw.Offset,
			)
			p.metrics.TransformErrors.Inc()
			p.commit(ctx, raw)
			continue
		}
		outBatch = append(outBatch, out)
		loaded = append(loaded, raw)
	}
	if len(outBatch) == 0 {
		return nil
	}

	if err := p.loader.LoadBatch(ctx, outBatch); err != nil {
		if ctx.Err() == nil {
			p.logger.Error("load batch failed", "error", err, "batch_size", len(outBatch))
		}
		return err
	}
	p.metrics.MessagesProduced.Add(float64(len(outBatch)))
	for _, raw := range loaded {
		p.commit(ctx, raw)
	}
	p.metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	return nil
}

func (p *Pipeline) commit(ctx context.Context, raw domain.RawEvent) {
	if raw.Commit == nil {
		return
	}
	if err := raw.Commit(ctx); err != nil {
		p.logger.Warn("commit offset failed", "error", err,
			"topic", raw.Topic, "partition", raw.Partition, "offset", raw.Offset)
	}
}
