package utils

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// Counters exposed for operations.
// All are best-effort: a metrics pipeline outage must never fail a write path.
type ledgerMetrics struct {
	eventsValidated     metric.Int64Counter
	eventsLegacyMapped  metric.Int64Counter
	eventsRejected      metric.Int64Counter
	invalidationItems   metric.Int64Counter
	invalidationBatches metric.Int64Counter
	invalidationRetries metric.Int64Counter
	invalidationExpired metric.Int64Counter
	drainLatencyMs      metric.Int64Histogram
	ledgerDiscrepancies metric.Int64Counter
	ledgerEffects       metric.Int64Counter
}

var (
	metricsOnce sync.Once
	lm          ledgerMetrics
)

func getMetrics() *ledgerMetrics {
	metricsOnce.Do(func() {
		meter := otel.Meter("dailyledger")
		lm.eventsValidated, _ = meter.Int64Counter("ledger.events.validated")
		lm.eventsLegacyMapped, _ = meter.Int64Counter("ledger.events.legacy_mapped")
		lm.eventsRejected, _ = meter.Int64Counter("ledger.events.rejected")
		lm.invalidationItems, _ = meter.Int64Counter("ledger.invalidation.enqueued")
		lm.invalidationBatches, _ = meter.Int64Counter("ledger.invalidation.batches")
		lm.invalidationRetries, _ = meter.Int64Counter("ledger.invalidation.retries")
		lm.invalidationExpired, _ = meter.Int64Counter("ledger.invalidation.dropped_expired")
		lm.drainLatencyMs, _ = meter.Int64Histogram("ledger.invalidation.drain_ms")
		lm.ledgerDiscrepancies, _ = meter.Int64Counter("ledger.balance.discrepancies")
		lm.ledgerEffects, _ = meter.Int64Counter("ledger.balance.effects")
	})
	return &lm
}

func CountEventValidated(ctx context.Context)    { add(ctx, getMetrics().eventsValidated, 1) }
func CountEventLegacyMapped(ctx context.Context) { add(ctx, getMetrics().eventsLegacyMapped, 1) }
func CountEventRejected(ctx context.Context)     { add(ctx, getMetrics().eventsRejected, 1) }
func CountInvalidationEnqueued(ctx context.Context, n int64) {
	add(ctx, getMetrics().invalidationItems, n)
}
func CountInvalidationBatch(ctx context.Context)   { add(ctx, getMetrics().invalidationBatches, 1) }
func CountInvalidationRetry(ctx context.Context)   { add(ctx, getMetrics().invalidationRetries, 1) }
func CountInvalidationExpired(ctx context.Context, n int64) {
	add(ctx, getMetrics().invalidationExpired, n)
}
func CountLedgerDiscrepancy(ctx context.Context) { add(ctx, getMetrics().ledgerDiscrepancies, 1) }
func CountLedgerEffect(ctx context.Context)      { add(ctx, getMetrics().ledgerEffects, 1) }

func RecordDrainLatency(ctx context.Context, ms int64) {
	h := getMetrics().drainLatencyMs
	if h == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.Record(ctx, ms)
}

func add(ctx context.Context, c metric.Int64Counter, n int64) {
	if c == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	c.Add(ctx, n)
}
