package config

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"time"

	"github.com/bsm/redislock"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)
var redisCtx = context.Background()

func GetRedisDB() *redis.Client {
	return rdb
}

func GetRedisLock() *redislock.Client {
	return locker
}

func init() {
	godotenv.Load()
}

// ConnectRedisWithRetry connects and sets the global client + lock client.
// Call from main() after the HTTP server is listening.
func ConnectRedisWithRetry() {
	address := os.Getenv("REDIS_ADDRESS")
	if address == "" {
		GetLogger().Warn("REDIS_ADDRESS not set; report cache disabled")
		return
	}

	var attempt int
	for {
		attempt++
		client := redis.NewClient(&redis.Options{
			Addr:     address,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		if err := client.Ping(redisCtx).Err(); err == nil {
			rdb = client
			locker = redislock.New(client)
			return
		} else {
			_ = client.Close()
			sleep := time.Second * time.Duration(1<<min(attempt, 5))
			if sleep > 30*time.Second {
				sleep = 30 * time.Second
			}
			GetLogger().Warnf("failed to connect redis (attempt=%d): %v; retrying in %s", attempt, err, sleep)
			time.Sleep(sleep)
		}
	}
}

// StoreErrorKind is the closed classification the cache adapter reports.
// Callers branch on the kind, never on error-message text.
type StoreErrorKind int

const (
	StoreErrNone StoreErrorKind = iota
	StoreErrNotFound
	StoreErrTimeout
	StoreErrUnavailable
	StoreErrOther
)

func (k StoreErrorKind) String() string {
	switch k {
	case StoreErrNone:
		return "none"
	case StoreErrNotFound:
		return "not_found"
	case StoreErrTimeout:
		return "timeout"
	case StoreErrUnavailable:
		return "unavailable"
	default:
		return "other"
	}
}

// ClassifyStoreError maps an adapter error onto the closed kind enum.
func ClassifyStoreError(err error) StoreErrorKind {
	if err == nil {
		return StoreErrNone
	}
	if errors.Is(err, redis.Nil) {
		return StoreErrNotFound
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return StoreErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return StoreErrTimeout
		}
		return StoreErrUnavailable
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return StoreErrUnavailable
	}
	return StoreErrOther
}

func GetRedisObject(key string, dest interface{}) (bool, error) {
	if rdb == nil {
		return false, nil
	}
	val, err := rdb.Get(redisCtx, key).Result()
	if err != nil {
		if ClassifyStoreError(err) == StoreErrNotFound {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(val), &dest); err != nil {
		return false, err
	}
	return true, nil
}

func SetRedisObject(key string, obj interface{}, exp time.Duration) error {
	if rdb == nil {
		return nil
	}
	objInByte, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return rdb.Set(redisCtx, key, objInByte, exp).Err()
}

func RemoveRedisKey(key string) error {
	if rdb == nil {
		return nil
	}
	return rdb.Del(redisCtx, key).Err()
}

// RemoveRedisKeys deletes a batch of keys in one round trip.
func RemoveRedisKeys(ctx context.Context, keys []string) error {
	if rdb == nil || len(keys) == 0 {
		return nil
	}
	return rdb.Del(ctx, keys...).Err()
}
