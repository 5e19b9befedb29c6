package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/SaanjSulthana/hospitality-management-platform-sub009/config"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/models"
	"github.com/SaanjSulthana/hospitality-management-platform-sub009/utils"
	"github.com/bsm/redislock"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RecordEffect applies one transaction effect to the ledger inside the
// caller's unit of work, refreshes the next day's opening-balance dependency,
// and (when an event is supplied) writes the outbox row in the same
// transaction. Errors propagate: a lost balance update is a correctness bug,
// so the wrapping transaction must roll back.
func RecordEffect(ctx context.Context, tx *gorm.DB, in models.EffectInput, event *models.DomainEvent) (*models.DailyBalance, error) {
	if err := AcquirePropertyPostingLock(tx, in.OrgId, in.PropertyId); err != nil {
		return nil, err
	}
	defer ReleasePropertyPostingLock(tx, in.OrgId, in.PropertyId)

	balance, err := models.ApplyEffect(ctx, tx, in)
	if err != nil {
		return nil, err
	}

	// Today's closing feeds tomorrow's opening; refresh it if that row exists.
	nextDay, err := utils.AddDays(in.Day, 1)
	if err != nil {
		return nil, err
	}
	if err := models.RecalculateDay(ctx, tx, in.OrgId, in.PropertyId, nextDay); err != nil {
		return nil, fmt.Errorf("recalculate next day: %w", err)
	}

	if event != nil {
		if _, err := models.EnqueueDomainEvent(ctx, tx, event); err != nil {
			return nil, err
		}
	}
	return balance, nil
}

// ReverseEffect backs out a previously-recorded effect (rejection or deletion
// after approval). Same shape as RecordEffect with the sign negated.
func ReverseEffect(ctx context.Context, tx *gorm.DB, in models.EffectInput, event *models.DomainEvent) (*models.DailyBalance, error) {
	in.Sign = -in.Sign
	return RecordEffect(ctx, tx, in, event)
}

// Swappable in tests.
var publishLedgerEvent = config.PublishLedgerEvent

// PublishBestEffort publishes an event after its transaction has committed.
// Publish failures are logged and swallowed: the outbox dispatcher owns
// delivery, this direct publish only shortens the happy-path latency.
func PublishBestEffort(ctx context.Context, logger *logrus.Logger, event *models.DomainEvent) {
	if event == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	msgId, err := publishLedgerEvent(ctx, event)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"module":     "PublishBestEffort",
			"event_id":   event.EventId,
			"event_type": event.EventType,
			"org_id":     event.OrgId,
		}).Warn("best-effort publish failed (outbox will deliver): " + err.Error())
		return
	}
	logger.WithFields(logrus.Fields{
		"module":            "PublishBestEffort",
		"event_id":          event.EventId,
		"pubsub_message_id": msgId,
	}).Debug("event published")
}

// RecalculateDayGuarded re-derives one ledger day under a cross-instance
// redis lock, falling back to the DB advisory lock when redis is unavailable.
func RecalculateDayGuarded(ctx context.Context, db *gorm.DB, logger *logrus.Logger, orgId string, propertyId int, day string) error {
	locker := config.GetRedisLock()
	if locker != nil {
		lockKey := fmt.Sprintf("recalc:%s:%d:%s", orgId, propertyId, day)
		lock, err := locker.Obtain(ctx, lockKey, 30*time.Second, nil)
		if err == nil {
			defer func() { _ = lock.Release(ctx) }()
		} else if errors.Is(err, redislock.ErrNotObtained) {
			// Someone else is recalculating this exact day; their result stands.
			return nil
		} else {
			logger.WithFields(logrus.Fields{
				"module": "RecalculateDayGuarded",
				"org_id": orgId,
			}).Warn("redis lock unavailable; using db lock only: " + err.Error())
		}
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquirePropertyPostingLock(tx, orgId, propertyId); err != nil {
			return err
		}
		defer ReleasePropertyPostingLock(tx, orgId, propertyId)
		return models.RecalculateDay(ctx, tx, orgId, propertyId, day)
	})
}
