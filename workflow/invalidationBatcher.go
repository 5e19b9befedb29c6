package workflow

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/SaanjSulthana/hospitality-management-platform-sub009/utils"
	"github.com/sirupsen/logrus"
)

// CacheInvalidator is the read-side cache boundary the batcher drains into.
type CacheInvalidator interface {
	InvalidateRange(ctx context.Context, orgId string, propertyId int, days []string) error
}

// CacheInvalidatorFunc adapts a function to the CacheInvalidator interface.
type CacheInvalidatorFunc func(ctx context.Context, orgId string, propertyId int, days []string) error

func (f CacheInvalidatorFunc) InvalidateRange(ctx context.Context, orgId string, propertyId int, days []string) error {
	return f(ctx, orgId, propertyId, days)
}

// InvalidationItem is one pending cache invalidation. Items for the same
// (org, property) are coalesced at drain time.
type InvalidationItem struct {
	OrgId      string
	PropertyId int
	Days       []string
	Priority   int
	EnqueuedAt time.Time

	attempts  int
	notBefore time.Time
}

type InvalidationBatcherConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	MaxAge        time.Duration
	MaxRetries    int
}

// DefaultInvalidationBatcherConfig reads tunables from env:
// INVALIDATION_BATCH_SIZE (100), INVALIDATION_FLUSH_MS (2000),
// INVALIDATION_MAX_AGE_MS (60000), INVALIDATION_MAX_RETRIES (3).
func DefaultInvalidationBatcherConfig() InvalidationBatcherConfig {
	envInt := func(name string, def int) int {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				return n
			}
		}
		return def
	}
	return InvalidationBatcherConfig{
		BatchSize:     envInt("INVALIDATION_BATCH_SIZE", 100),
		FlushInterval: time.Duration(envInt("INVALIDATION_FLUSH_MS", 2000)) * time.Millisecond,
		MaxAge:        time.Duration(envInt("INVALIDATION_MAX_AGE_MS", 60000)) * time.Millisecond,
		MaxRetries:    envInt("INVALIDATION_MAX_RETRIES", 3),
	}
}

// InvalidationBatcher coalesces invalidation requests and drains them in
// bounded batches on a size threshold or timer tick. It is a best-effort
// backstop behind the synchronous invalidation path: expired items are
// superseded and dropped, and a group that exhausts its retries is dropped
// with an alert, not an error.
type InvalidationBatcher struct {
	cfg         InvalidationBatcherConfig
	invalidator CacheInvalidator
	logger      *logrus.Logger

	mu    sync.Mutex
	items []InvalidationItem

	kick     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
	done     chan struct{}
}

type DrainStats struct {
	Batches        int
	Groups         int
	Invalidated    int
	DroppedExpired int
	Retried        int
	DroppedFailed  int
}

func NewInvalidationBatcher(cfg InvalidationBatcherConfig, invalidator CacheInvalidator, logger *logrus.Logger) *InvalidationBatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	return &InvalidationBatcher{
		cfg:         cfg,
		invalidator: invalidator,
		logger:      logger,
		kick:        make(chan struct{}, 1),
		stopped:     make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Enqueue buffers one invalidation request. Never blocks on the cache.
func (b *InvalidationBatcher) Enqueue(orgId string, propertyId int, days []string, priority int) {
	if orgId == "" || propertyId <= 0 || len(days) == 0 {
		return
	}
	item := InvalidationItem{
		OrgId:      orgId,
		PropertyId: propertyId,
		Days:       append([]string(nil), days...),
		Priority:   priority,
		EnqueuedAt: time.Now(),
	}
	b.mu.Lock()
	b.items = append(b.items, item)
	full := len(b.items) >= b.cfg.BatchSize
	b.mu.Unlock()

	utils.CountInvalidationEnqueued(nil, 1)
	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Start runs the drain loop until ctx is cancelled or Stop is called.
func (b *InvalidationBatcher) Start(ctx context.Context) {
	go func() {
		defer close(b.done)
		ticker := time.NewTicker(b.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				b.Drain(context.Background())
				return
			case <-b.stopped:
				b.Drain(context.Background())
				return
			case <-b.kick:
				b.Drain(ctx)
			case <-ticker.C:
				b.Drain(ctx)
			}
		}
	}()
}

// Stop signals the loop, waits for the final drain.
func (b *InvalidationBatcher) Stop() {
	b.stopOnce.Do(func() { close(b.stopped) })
	<-b.done
}

// Drain processes the whole backlog in batches of at most BatchSize items:
// drop expired, coalesce per (org, property), one invalidation per group,
// bounded retry with doubling delay on failure.
func (b *InvalidationBatcher) Drain(ctx context.Context) DrainStats {
	started := time.Now()
	var stats DrainStats

	b.mu.Lock()
	backlog := b.items
	b.items = nil
	b.mu.Unlock()
	if len(backlog) == 0 {
		return stats
	}

	now := time.Now()
	var ready, deferred []InvalidationItem
	for _, item := range backlog {
		if b.cfg.MaxAge > 0 && now.Sub(item.EnqueuedAt) > b.cfg.MaxAge {
			// Superseded: the synchronous path already invalidated this key.
			stats.DroppedExpired++
			continue
		}
		if item.notBefore.After(now) {
			deferred = append(deferred, item)
			continue
		}
		ready = append(ready, item)
	}
	sort.SliceStable(ready, func(i, j int) bool { return ready[i].Priority > ready[j].Priority })

	for start := 0; start < len(ready); start += b.cfg.BatchSize {
		end := start + b.cfg.BatchSize
		if end > len(ready) {
			end = len(ready)
		}
		groups := coalesceItems(ready[start:end])
		stats.Batches++
		utils.CountInvalidationBatch(ctx)

		for _, group := range groups {
			stats.Groups++
			err := b.invalidator.InvalidateRange(ctx, group.OrgId, group.PropertyId, group.Days)
			if err == nil {
				stats.Invalidated += len(group.Days)
				continue
			}
			group.attempts++
			if group.attempts > b.cfg.MaxRetries {
				stats.DroppedFailed++
				b.logger.WithFields(logrus.Fields{
					"module":      "InvalidationBatcher",
					"org_id":      group.OrgId,
					"property_id": group.PropertyId,
					"days":        len(group.Days),
					"attempts":    group.attempts,
				}).Error("invalidation group dropped after max retries: " + err.Error())
				continue
			}
			group.notBefore = now.Add(retryDelay(group.attempts))
			deferred = append(deferred, group)
			stats.Retried++
			utils.CountInvalidationRetry(ctx)
			b.logger.WithFields(logrus.Fields{
				"module":      "InvalidationBatcher",
				"org_id":      group.OrgId,
				"property_id": group.PropertyId,
				"attempt":     group.attempts,
			}).Warn("invalidation group failed, will retry: " + err.Error())
		}
	}

	if len(deferred) > 0 {
		b.mu.Lock()
		b.items = append(deferred, b.items...)
		b.mu.Unlock()
	}
	if stats.DroppedExpired > 0 {
		utils.CountInvalidationExpired(ctx, int64(stats.DroppedExpired))
	}
	utils.RecordDrainLatency(ctx, time.Since(started).Milliseconds())
	return stats
}

// PendingItems is the current backlog size, for health reporting.
func (b *InvalidationBatcher) PendingItems() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// coalesceItems merges a batch per (org, property), unioning day sets. The
// merged group keeps the oldest enqueue time and highest attempt count so age
// and retry bounds still hold.
func coalesceItems(items []InvalidationItem) []InvalidationItem {
	order := make([]string, 0, len(items))
	merged := make(map[string]*InvalidationItem, len(items))
	for _, item := range items {
		key := fmt.Sprintf("%s|%d", item.OrgId, item.PropertyId)
		group, ok := merged[key]
		if !ok {
			copied := item
			copied.Days = append([]string(nil), item.Days...)
			merged[key] = &copied
			order = append(order, key)
			continue
		}
		group.Days = append(group.Days, item.Days...)
		if item.EnqueuedAt.Before(group.EnqueuedAt) {
			group.EnqueuedAt = item.EnqueuedAt
		}
		if item.attempts > group.attempts {
			group.attempts = item.attempts
		}
		if item.Priority > group.Priority {
			group.Priority = item.Priority
		}
	}
	out := make([]InvalidationItem, 0, len(order))
	for _, key := range order {
		group := merged[key]
		group.Days = uniqueSortedDays(group.Days)
		out = append(out, *group)
	}
	return out
}

func uniqueSortedDays(days []string) []string {
	seen := make(map[string]struct{}, len(days))
	out := days[:0]
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

func retryDelay(attempt int) time.Duration {
	delay := 500 * time.Millisecond
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > 30*time.Second {
			return 30 * time.Second
		}
	}
	return delay
}
