package reports

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/SaanjSulthana/hospitality-management-platform-sub009/config"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/utils"
	"github.com/sirupsen/logrus"
)

// Per-day cache keys, so an invalidation for one calendar day never evicts its
// neighbours.
func dayCacheKey(orgId string, propertyId int, day string) string {
	return fmt.Sprintf("DailyBalanceReport:%s:%d:%s", orgId, propertyId, day)
}

func cacheGet[T any](key string, dest *T) (bool, error) {
	return config.GetRedisObject(key, dest)
}

func cacheSet(key string, obj any, ttl time.Duration) error {
	return config.SetRedisObject(key, obj, ttl)
}

// InvalidateRange clears the cached report entries of the given days for one
// (org, property). Clearing is idempotent: re-delivery of the same event just
// clears an already-empty key.
func InvalidateRange(ctx context.Context, orgId string, propertyId int, days []string) error {
	if orgId == "" || propertyId <= 0 || len(days) == 0 {
		return nil
	}
	keys := make([]string, 0, len(days))
	for _, day := range days {
		if !utils.IsDayKey(day) {
			continue
		}
		keys = append(keys, dayCacheKey(orgId, propertyId, day))
	}
	if len(keys) == 0 {
		return nil
	}
	if err := config.RemoveRedisKeys(ctx, keys); err != nil {
		return fmt.Errorf("invalidate %d report keys (%s): %w", len(keys), config.ClassifyStoreError(err), err)
	}
	return nil
}

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func logSlowReport(ctx context.Context, name string, started time.Time, extra map[string]any) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	org, _ := utils.GetOrgIdFromContext(ctx)
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	config.GetLogger().WithFields(logrus.Fields{
		"report":         name,
		"ms":             d.Milliseconds(),
		"org_id":         org,
		"correlation_id": cid,
		"extra":          extra,
	}).Warn("slow report")
}
