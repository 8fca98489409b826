package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "feature-flag-service"

var (
	metricsOnce        sync.Once
	repoOperations     metric.Int64Counter
	flagEvaluations    metric.Int64Counter
	cacheEvents        metric.Int64Counter
	httpRequestCounter metric.Int64Counter
)

func initMetrics() {
	meter := otel.Meter(meterName)
	repoOperations, _ = meter.Int64Counter("flag_repository_operations_total",
		metric.WithDescription("Repository operations by entity, operation and outcome"))
	flagEvaluations, _ = meter.Int64Counter("flag_evaluations_total",
		metric.WithDescription("Flag evaluations by resolution reason"))
	cacheEvents, _ = meter.Int64Counter("flag_cache_events_total",
		metric.WithDescription("Flag cache lookups and invalidations by outcome"))
	httpRequestCounter, _ = meter.Int64Counter("http_requests_total",
		metric.WithDescription("HTTP requests by route and status class"))
}

func RecordRepositoryOperation(ctx context.Context, entity, operation, outcome string) {
	metricsOnce.Do(initMetrics)
	if repoOperations == nil {
		return
	}
	repoOperations.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("entity", entity),
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		))
}

func RecordEvaluation(ctx context.Context, reason string) {
	metricsOnce.Do(initMetrics)
	if flagEvaluations == nil {
		return
	}
	flagEvaluations.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordCacheEvent tracks cache-aside outcomes: hit, miss, error, invalidate.
func RecordCacheEvent(ctx context.Context, operation, outcome string) {
	metricsOnce.Do(initMetrics)
	if cacheEvents == nil {
		return
	}
	cacheEvents.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("outcome", outcome),
		))
}

func RecordHTTPRequest(ctx context.Context, route, statusClass string) {
	metricsOnce.Do(initMetrics)
	if httpRequestCounter == nil {
		return
	}
	httpRequestCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("route", route),
			attribute.String("status_class", statusClass),
		))
}
