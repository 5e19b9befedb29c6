package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func envBool(name string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(name)))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

// DefensiveInvalidation also invalidates day-1 for every affected day.
// Only needed while producers that mis-stamp transaction dates are still live.
//
// Set via env:
// - DEFENSIVE_INVALIDATION=true
func DefensiveInvalidation() bool {
	return envBool("DEFENSIVE_INVALIDATION")
}

// ReportCacheEnabled gates the Redis read-side cache for balance reports.
//
// Set via env:
// - ENABLE_REPORT_CACHE=true
func ReportCacheEnabled() bool {
	return envBool("ENABLE_REPORT_CACHE")
}

// SyncLedgerRecompute makes the change subscriber re-derive affected ledger
// rows inline instead of leaving them to the next write.
//
// Set via env:
// - SYNC_LEDGER_RECOMPUTE=true
func SyncLedgerRecompute() bool {
	return envBool("SYNC_LEDGER_RECOMPUTE")
}

// ReportCacheTTL is how long cached report entries live.
// Env: REPORT_CACHE_TTL_SECONDS (default 120s).
func ReportCacheTTL() time.Duration {
	ttl := 120
	if v := strings.TrimSpace(os.Getenv("REPORT_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return time.Duration(ttl) * time.Second
}

// PubSubMaxOutstanding caps concurrent in-flight subscriber handlers.
// Env: PUBSUB_MAX_OUTSTANDING (default 100).
func PubSubMaxOutstanding() int {
	if v := strings.TrimSpace(os.Getenv("PUBSUB_MAX_OUTSTANDING")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 100
}
