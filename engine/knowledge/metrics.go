package knowledge

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce           sync.Once
	metricsMu             sync.Mutex
	metricsInitErr        error
	ingestDurationHist    metric.Float64Histogram
	chunkCounter          metric.Int64Counter
	queryLatencyHist      metric.Float64Histogram
	retrievalEmptyCounter metric.Int64Counter
	generationCounter     metric.Int64Counter
)

func RecordIngestDuration(ctx context.Context, ownerID string, d time.Duration) {
	if err := ensureMetrics(); err != nil || ingestDurationHist == nil {
		return
	}
	ingestDurationHist.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("owner_id", ownerID)))
}

func RecordIngestChunks(ctx context.Context, ownerID string, chunks int) {
	if chunks <= 0 {
		return
	}
	if err := ensureMetrics(); err != nil || chunkCounter == nil {
		return
	}
	chunkCounter.Add(ctx, int64(chunks), metric.WithAttributes(attribute.String("owner_id", ownerID)))
}

func RecordQueryLatency(ctx context.Context, d time.Duration) {
	if err := ensureMetrics(); err != nil || queryLatencyHist == nil {
		return
	}
	queryLatencyHist.Record(ctx, d.Seconds())
}

func RecordRetrievalEmpty(ctx context.Context, stage string) {
	if err := ensureMetrics(); err != nil || retrievalEmptyCounter == nil {
		return
	}
	retrievalEmptyCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

func RecordGeneration(ctx context.Context, outcome string) {
	if err := ensureMetrics(); err != nil || generationCounter == nil {
		return
	}
	generationCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func ResetMetricsForTesting() {
	metricsMu.Lock()
	metricsOnce = sync.Once{}
	metricsInitErr = nil
	ingestDurationHist = nil
	chunkCounter = nil
	queryLatencyHist = nil
	retrievalEmptyCounter = nil
	generationCounter = nil
	metricsMu.Unlock()
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("lumflare.knowledge")
		metricsInitErr = initMetrics(meter)
	})
	return metricsInitErr
}

func initMetrics(meter metric.Meter) error {
	var err error
	ingestDurationHist, err = meter.Float64Histogram(
		"lumflare_knowledge_ingest_duration_seconds",
		metric.WithDescription("Latency of document indexing runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return err
	}
	chunkCounter, err = meter.Int64Counter(
		"lumflare_knowledge_chunks_total",
		metric.WithDescription("Number of chunks persisted per indexing run"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	queryLatencyHist, err = meter.Float64Histogram(
		"lumflare_knowledge_query_latency_seconds",
		metric.WithDescription("Latency of retrieval queries"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5),
	)
	if err != nil {
		return err
	}
	retrievalEmptyCounter, err = meter.Int64Counter(
		"lumflare_knowledge_retrieval_empty_total",
		metric.WithDescription("Number of retrieval attempts that returned no chunks"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return err
	}
	generationCounter, err = meter.Int64Counter(
		"lumflare_knowledge_generation_total",
		metric.WithDescription("Number of generation calls classified by outcome"),
		metric.WithUnit("1"),
	)
	return err
}
